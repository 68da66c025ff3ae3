package fdwbridge

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

type fakeBackendQuery struct{}

func (fakeBackendQuery) Logged() string { return "select * from t" }

type fakeCompiler struct {
	handle *fakeHandle
}

func (c *fakeCompiler) CompileQuery(ctx context.Context, conn connector.Connection, entities map[string]catalog.Entity, q sqlil.Query) (connector.BackendQuery, error) {
	return fakeBackendQuery{}, nil
}
func (c *fakeCompiler) QueryFromString(ctx context.Context, conn connector.Connection, sqlText string, params types.QueryInputStructure) (connector.BackendQuery, error) {
	return fakeBackendQuery{}, nil
}

type stubConnWithPrepare struct {
	*fakeConnection
	handle *fakeHandle
}

func (c *stubConnWithPrepare) Prepare(ctx context.Context, q connector.BackendQuery) (connector.QueryHandle, error) {
	return c.handle, nil
}

type fakeAuthenticator struct {
	ds   catalog.DataSource
	pool connector.Pool
}

func (a *fakeAuthenticator) Authenticate(ctx context.Context, dataSourceID string, credentials []byte) (catalog.DataSource, connector.Pool, *auth.Context, error) {
	return a.ds, a.pool, &auth.Context{Username: "alice"}, nil
}

type fakeServerCompiler struct {
	compiler connector.QueryCompiler
	entities map[string]catalog.Entity
}

func (c *fakeServerCompiler) CompilerFor(ds catalog.DataSource) (connector.QueryCompiler, error) {
	return c.compiler, nil
}
func (c *fakeServerCompiler) PlannerFor(ds catalog.DataSource) (connector.QueryPlanner, error) {
	return nil, nil
}
func (c *fakeServerCompiler) EntitiesFor(ds catalog.DataSource) map[string]catalog.Entity {
	return c.entities
}

// newPipeHarness puts a connHandler on one end of a net.Pipe (no
// underlying socket) and returns the other end as the client, with fake
// pool, connection and query handle behind the server.
func newPipeHarness(t *testing.T) (client net.Conn, h *connHandler, txm *fakeTxManager) {
	t.Helper()
	client, serverSide := net.Pipe()

	txm = &fakeTxManager{}
	conn := &fakeConnection{txm: txm}
	handle := &fakeHandle{
		params: types.QueryInputStructure{{ID: 1, Type: types.Int64()}},
		rs:     &fakeResultSet{rows: [][]byte{[]byte("rowbytes")}},
	}
	pool := &fakePool{conn: conn}
	wrappedPool := &wrappingPool{pool: pool, conn: &stubConnWithPrepare{fakeConnection: conn, handle: handle}}

	srv := NewServer(
		&fakeAuthenticator{ds: catalog.DataSource{ID: "ds1", Type: "memory"}, pool: wrappedPool},
		&fakeServerCompiler{compiler: &fakeCompiler{handle: handle}, entities: map[string]catalog.Entity{}},
		"", time.Second,
	)

	h = &connHandler{conn: serverSide, server: srv}
	return client, h, txm
}

// serveHandshakeAndRun does the server side of the handshake the way
// Server.handleConnection does, then runs h's frame loop.
func serveHandshakeAndRun(ctx context.Context, h *connHandler) error {
	if err := WriteHandshake(h.conn); err != nil {
		return err
	}
	if _, _, err := ReadHandshake(h.conn); err != nil {
		return err
	}
	return h.run(ctx)
}

// wrappingPool substitutes a connection whose Prepare returns a fixed
// handle, since fakeConnection.Prepare alone always errors (it's not
// exercised by the session-level tests).
type wrappingPool struct {
	pool connector.Pool
	conn connector.Connection
}

func (p *wrappingPool) Acquire(ctx context.Context, a *auth.Context) (connector.Connection, error) {
	return p.conn, nil
}
func (p *wrappingPool) Close() error { return nil }

func TestServerEndToEndQueryLifecycle(t *testing.T) {
	client, h, _ := newPipeHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = serveHandshakeAndRun(ctx, h)
	}()

	if _, _, err := ReadHandshake(client); err != nil {
		t.Fatalf("client handshake read: %v", err)
	}
	if err := WriteHandshake(client); err != nil {
		t.Fatalf("client handshake write: %v", err)
	}

	send := func(tag Tag, payload []byte) Frame {
		if err := WriteFrame(client, Frame{Tag: tag, Payload: payload}); err != nil {
			t.Fatalf("WriteFrame(%v): %v", tag, err)
		}
		resp, err := ReadFrame(client)
		if err != nil {
			t.Fatalf("ReadFrame after %v: %v", tag, err)
		}
		if resp.Tag == TagError {
			var e ErrorResponse
			_ = json.Unmarshal(resp.Payload, &e)
			t.Fatalf("server returned error for %v: %+v", tag, e)
		}
		return resp
	}

	authResp := send(TagAuthDataSource, encodeJSON(AuthDataSourceRequest{DataSourceID: "ds1"}))
	if authResp.Tag != TagAuthAccepted {
		t.Fatalf("expected TagAuthAccepted, got %v", authResp.Tag)
	}

	sel, err := toWireSelect(sqlil.Select{Entity: "people"})
	if err != nil {
		t.Fatalf("toWireSelect: %v", err)
	}
	send(TagSelect, encodeJSON(SelectRequest{Query: sel}))

	prepResp := send(TagPrepare, nil)
	if prepResp.Tag != TagQueryPrepared {
		t.Fatalf("expected TagQueryPrepared, got %v", prepResp.Tag)
	}

	send(TagWriteParams, []byte("parambytes"))

	execResp := send(TagExecute, nil)
	if execResp.Tag != TagQueryExecuted {
		t.Fatalf("expected TagQueryExecuted, got %v", execResp.Tag)
	}

	readResp := send(TagRead, nil)
	if readResp.Tag != TagResultData || string(readResp.Payload) != "rowbytes" {
		t.Fatalf("expected result data %q, got %v %q", "rowbytes", readResp.Tag, readResp.Payload)
	}

	closeResp := send(TagClose, nil)
	if closeResp.Tag != TagOpResult {
		t.Fatalf("expected TagOpResult on close, got %v", closeResp.Tag)
	}
}

func TestServerRejectsOperationsBeforeAuth(t *testing.T) {
	client, h, _ := newPipeHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = serveHandshakeAndRun(ctx, h) }()

	_, _, _ = ReadHandshake(client)
	_ = WriteHandshake(client)

	if err := WriteFrame(client, Frame{Tag: TagExecute}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	resp, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if resp.Tag != TagError {
		t.Fatalf("expected TagError for unauthenticated execute, got %v", resp.Tag)
	}
}

func TestServerCancellationUnblocksPendingRead(t *testing.T) {
	client, h, _ := newPipeHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serveHandshakeAndRun(ctx, h) }()

	_, _, _ = ReadHandshake(client)
	_ = WriteHandshake(client)

	// Server is now blocked in ReadFrame waiting on the next client
	// message. Cancelling must unblock it promptly (invariant 7)
	// rather than waiting indefinitely for client input.
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not observe cancellation within 2s")
	}
}
