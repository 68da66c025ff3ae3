package fdwbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/ansilo-run/ansilo/internal/ansierr"
	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
)

// SessionState is the bridge session's state machine (spec.md §4.F):
//
//	Unauthed -> Authed -> Idle -> Building -> Prepared -> Executing -> Reading -> Idle
//
// DiscardQuery returns to Idle from any state after Authed. The shape
// mirrors the teacher's pool.ConnState enum; each Session method checks
// the current state through allowed before acting.
type SessionState int

const (
	StateUnauthed SessionState = iota
	StateAuthed
	StateIdle
	StateBuilding
	StatePrepared
	StateExecuting
	StateReading
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthed:
		return "unauthed"
	case StateAuthed:
		return "authed"
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StatePrepared:
		return "prepared"
	case StateExecuting:
		return "executing"
	case StateReading:
		return "reading"
	default:
		return "unknown"
	}
}

// Session is one bridge connection's server-side state: authenticated
// data source binding, current query being built/executed, and the
// auth context bound for the lifetime of any open transaction
// (invariant 5, enforced by auth.Binder).
type Session struct {
	mu sync.Mutex

	state SessionState
	ds    catalog.DataSource

	pool  connector.Pool
	conn  connector.Connection
	binder *auth.Binder

	pendingQuery sqlil.Query

	handle    connector.QueryHandle
	resultSet connector.ResultSet
	txm       connector.TransactionManager
}

// NewSession constructs a session bound to a single backend pool and
// the data source it was resolved from. Authentication against the
// data source itself (AuthDataSource) happens via Authenticate, not
// here.
func NewSession(ds catalog.DataSource, pool connector.Pool) *Session {
	s := &Session{state: StateUnauthed, ds: ds, pool: pool}
	s.binder = auth.NewBinder(func() bool {
		return s.txm != nil && s.txm.InTransaction()
	})
	return s
}

// allowed reports whether the session's current state is one of want.
func (s *Session) allowed(want ...SessionState) error {
	for _, w := range want {
		if s.state == w {
			return nil
		}
	}
	return ansierr.New(ansierr.KindProtocolViolation,
		fmt.Sprintf("operation not valid in state %s", s.state))
}

// Authenticate transitions Unauthed -> Authed -> Idle, acquiring a
// backend connection under the supplied auth context.
func (s *Session) Authenticate(ctx context.Context, authContext *auth.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.allowed(StateUnauthed); err != nil {
		return err
	}
	if err := s.binder.SetAuth(authContext); err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx, authContext)
	if err != nil {
		return ansierr.Wrap(ansierr.KindAuthRejected, err, "acquiring backend connection")
	}
	s.conn = conn
	s.txm, _ = conn.TransactionManager()
	s.state = StateIdle
	return nil
}

// BeginBuild transitions Idle -> Building for a new query (Select,
// Insert, BulkInsert, Update or Delete).
func (s *Session) BeginBuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.allowed(StateIdle); err != nil {
		return err
	}
	s.state = StateBuilding
	return nil
}

// Prepare transitions Building -> Prepared, binding the compiled query
// handle returned by the connector.
func (s *Session) Prepare(handle connector.QueryHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.allowed(StateBuilding); err != nil {
		return err
	}
	s.handle = handle
	s.state = StatePrepared
	return nil
}

// WriteParams stays in Prepared, streaming encoded parameter bytes into
// the held handle.
func (s *Session) WriteParams(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.allowed(StatePrepared); err != nil {
		return 0, err
	}
	return s.handle.Write(p)
}

// Execute transitions Prepared -> Executing -> Reading.
func (s *Session) Execute(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.allowed(StatePrepared); err != nil {
		return err
	}
	s.state = StateExecuting

	rs, err := s.handle.Execute(ctx)
	if err != nil {
		s.state = StatePrepared
		return ansierr.Wrap(ansierr.KindBackendError, err, "executing query")
	}
	s.resultSet = rs
	s.state = StateReading
	return nil
}

// Read stays in Reading, pulling the next chunk of row-codec bytes from
// the result set. Returns io.EOF (wrapped by the caller into a
// zero-length terminal ResultData frame) when exhausted.
func (s *Session) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.allowed(StateReading); err != nil {
		return 0, err
	}
	return s.resultSet.Read(p)
}

// Restart returns Prepared|Reading -> Prepared so a new set of
// parameters can be written against the same compiled plan.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.allowed(StatePrepared, StateReading); err != nil {
		return err
	}
	if s.resultSet != nil {
		_ = s.resultSet.Close()
		s.resultSet = nil
	}
	if err := s.handle.Restart(ctx); err != nil {
		return ansierr.Wrap(ansierr.KindBackendError, err, "restarting query")
	}
	s.state = StatePrepared
	return nil
}

// DiscardQuery releases the current query (if any) and returns to Idle
// from any state after Authed.
func (s *Session) DiscardQuery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnauthed {
		return s.allowed(StateIdle, StateBuilding, StatePrepared, StateExecuting, StateReading)
	}
	if s.resultSet != nil {
		_ = s.resultSet.Close()
		s.resultSet = nil
	}
	if s.handle != nil {
		_ = s.handle.Close()
		s.handle = nil
	}
	s.state = StateIdle
	return nil
}

// BeginTx starts a backend transaction. Auth is immutable for its
// duration (invariant 5, enforced by s.binder's inTx predicate).
func (s *Session) BeginTx(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txm == nil {
		return ansierr.New(ansierr.KindUnsupported, "backend does not support transactions")
	}
	return s.txm.Begin(ctx)
}

func (s *Session) CommitTx(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txm == nil {
		return ansierr.New(ansierr.KindUnsupported, "backend does not support transactions")
	}
	return s.txm.Commit(ctx)
}

func (s *Session) RollbackTx(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txm == nil {
		return ansierr.New(ansierr.KindUnsupported, "backend does not support transactions")
	}
	return s.txm.Rollback(ctx)
}

// Close tears the session down: closes any open handle/result set, then
// the backend connection itself.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultSet != nil {
		_ = s.resultSet.Close()
	}
	if s.handle != nil {
		_ = s.handle.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// State returns the session's current state (for tests and metrics).
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DataSource returns the catalog data source this session was opened
// against.
func (s *Session) DataSource() catalog.DataSource {
	return s.ds
}
