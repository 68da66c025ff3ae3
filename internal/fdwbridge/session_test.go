package fdwbridge

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/types"
)

type fakeResultSet struct {
	rows [][]byte
	pos  int
}

func (r *fakeResultSet) GetStructure() types.RowStructure { return nil }
func (r *fakeResultSet) Read(p []byte) (int, error) {
	if r.pos >= len(r.rows) {
		return 0, io.EOF
	}
	n := copy(p, r.rows[r.pos])
	r.pos++
	return n, nil
}
func (r *fakeResultSet) Close() error { return nil }

type fakeHandle struct {
	params    types.QueryInputStructure
	written   []byte
	executed  bool
	restarted int
	rs        *fakeResultSet
}

func (h *fakeHandle) GetStructure() types.QueryInputStructure { return h.params }
func (h *fakeHandle) Write(p []byte) (int, error)             { h.written = append(h.written, p...); return len(p), nil }
func (h *fakeHandle) Restart(ctx context.Context) error        { h.restarted++; return nil }
func (h *fakeHandle) Execute(ctx context.Context) (connector.ResultSet, error) {
	h.executed = true
	return h.rs, nil
}
func (h *fakeHandle) Logged() string { return "fake query" }
func (h *fakeHandle) Close() error   { return nil }

type fakeTxManager struct {
	inTx    bool
	began   int
	commits int
}

func (m *fakeTxManager) InTransaction() bool { return m.inTx }
func (m *fakeTxManager) Begin(ctx context.Context) error {
	m.inTx = true
	m.began++
	return nil
}
func (m *fakeTxManager) Commit(ctx context.Context) error {
	m.inTx = false
	m.commits++
	return nil
}
func (m *fakeTxManager) Rollback(ctx context.Context) error {
	m.inTx = false
	return nil
}

type fakeConnection struct {
	txm    *fakeTxManager
	closed bool
}

func (c *fakeConnection) Prepare(ctx context.Context, q connector.BackendQuery) (connector.QueryHandle, error) {
	return nil, errors.New("not used directly in these tests")
}
func (c *fakeConnection) TransactionManager() (connector.TransactionManager, bool) {
	if c.txm == nil {
		return nil, false
	}
	return c.txm, true
}
func (c *fakeConnection) Close() error { c.closed = true; return nil }

type fakePool struct {
	conn *fakeConnection
}

func (p *fakePool) Acquire(ctx context.Context, a *auth.Context) (connector.Connection, error) {
	return p.conn, nil
}
func (p *fakePool) Close() error { return nil }

func newTestSession(t *testing.T) (*Session, *fakeConnection, *fakeTxManager) {
	t.Helper()
	txm := &fakeTxManager{}
	conn := &fakeConnection{txm: txm}
	pool := &fakePool{conn: conn}
	sess := NewSession(catalog.DataSource{ID: "ds1", Type: "memory"}, pool)

	if err := sess.Authenticate(context.Background(), &auth.Context{Username: "alice"}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return sess, conn, txm
}

func TestSessionStateMachineHappyPath(t *testing.T) {
	sess, _, _ := newTestSession(t)

	if sess.State() != StateIdle {
		t.Fatalf("expected Idle after auth, got %s", sess.State())
	}

	if err := sess.BeginBuild(); err != nil {
		t.Fatalf("BeginBuild: %v", err)
	}
	if sess.State() != StateBuilding {
		t.Fatalf("expected Building, got %s", sess.State())
	}

	h := &fakeHandle{rs: &fakeResultSet{rows: [][]byte{[]byte("row1"), []byte("row2")}}}
	if err := sess.Prepare(h); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if sess.State() != StatePrepared {
		t.Fatalf("expected Prepared, got %s", sess.State())
	}

	if _, err := sess.WriteParams([]byte("p")); err != nil {
		t.Fatalf("WriteParams: %v", err)
	}

	if err := sess.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sess.State() != StateReading {
		t.Fatalf("expected Reading, got %s", sess.State())
	}

	buf := make([]byte, 16)
	n, err := sess.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "row1" {
		t.Fatalf("got %q, want row1", buf[:n])
	}

	if err := sess.DiscardQuery(); err != nil {
		t.Fatalf("DiscardQuery: %v", err)
	}
	if sess.State() != StateIdle {
		t.Fatalf("expected Idle after discard, got %s", sess.State())
	}
}

func TestSessionRejectsOutOfOrderOperations(t *testing.T) {
	sess, _, _ := newTestSession(t)

	// Execute before Prepare must fail.
	if err := sess.Execute(context.Background()); err == nil {
		t.Fatal("expected error executing before prepare")
	}
	// WriteParams before Prepare must fail.
	if _, err := sess.WriteParams([]byte("x")); err == nil {
		t.Fatal("expected error writing params before prepare")
	}
	// A second Authenticate must fail; already past Unauthed.
	if err := sess.Authenticate(context.Background(), &auth.Context{Username: "bob"}); err == nil {
		t.Fatal("expected error re-authenticating an already-authed session")
	}
}

func TestSessionAuthImmutableDuringTransaction(t *testing.T) {
	sess, _, txm := newTestSession(t)

	if err := sess.BeginTx(context.Background()); err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if !txm.inTx {
		t.Fatal("expected transaction manager to report in-progress transaction")
	}

	if err := sess.Authenticate(context.Background(), &auth.Context{Username: "mallory"}); err == nil {
		t.Fatal("expected Authenticate to fail outright (already authed)")
	}

	if err := sess.CommitTx(context.Background()); err != nil {
		t.Fatalf("CommitTx: %v", err)
	}
	if txm.commits != 1 {
		t.Fatalf("expected 1 commit, got %d", txm.commits)
	}
}

func TestSessionCloseReleasesBackendConnection(t *testing.T) {
	sess, conn, _ := newTestSession(t)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !conn.closed {
		t.Fatal("expected backend connection to be closed")
	}
}
