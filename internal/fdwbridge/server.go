package fdwbridge

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/ansilo-run/ansilo/internal/ansierr"
	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
)

// Authenticator resolves a bridge-level AuthDataSource request into a
// backend connection pool and an auth.Context, consulting the catalog
// and a connector.Registry. Kept as an interface so Server tests can
// substitute a fake without standing up a real connector.
type Authenticator interface {
	Authenticate(ctx context.Context, dataSourceID string, credentials []byte) (catalog.DataSource, connector.Pool, *auth.Context, error)
}

// Compiler resolves the connector.QueryCompiler and entity metadata
// needed to turn a session's pending SQLIL query into a BackendQuery,
// given the data source it was authenticated against.
type Compiler interface {
	CompilerFor(ds catalog.DataSource) (connector.QueryCompiler, error)
	PlannerFor(ds catalog.DataSource) (connector.QueryPlanner, error)
	EntitiesFor(ds catalog.DataSource) map[string]catalog.Entity
}

// Server accepts connections on a Unix domain socket and runs one
// Session per connection. Directly adapted from the teacher's
// proxy.Server: an accept loop spawning a goroutine per connection,
// context-cancellation-driven shutdown, WaitGroup-tracked lifetime —
// generalised from two hardwired TCP listeners (postgres/mysql) to a
// single Unix socket carrying Ansilo's own tagged protocol.
type Server struct {
	auth     Authenticator
	compiler Compiler

	socketPath  string
	cancelGrace time.Duration
	listener    net.Listener

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer constructs a bridge server. cancelGrace bounds how long Stop
// waits for session goroutines to exit after cancelling them; each
// session's socket is closed as soon as its context is cancelled
// (invariant 7).
func NewServer(a Authenticator, c Compiler, socketPath string, cancelGrace time.Duration) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		auth:        a,
		compiler:    c,
		socketPath:  socketPath,
		cancelGrace: cancelGrace,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Listen starts accepting connections on the configured Unix socket
// path. A stale socket file from a prior, uncleanly terminated run is
// removed first.
func (s *Server) Listen() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return ansierr.Wrap(ansierr.KindInternal, err, "removing stale bridge socket %q", s.socketPath)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return ansierr.Wrap(ansierr.KindInternal, err, "listening on bridge socket %q", s.socketPath)
	}
	s.listener = ln
	log.Printf("[fdwbridge] listening on %s", s.socketPath)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				log.Printf("[fdwbridge] accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if err := WriteHandshake(conn); err != nil {
		log.Printf("[fdwbridge] handshake write failed: %v", err)
		return
	}
	if _, _, err := ReadHandshake(conn); err != nil {
		log.Printf("[fdwbridge] handshake read failed: %v", err)
		return
	}

	h := &connHandler{
		conn:   conn,
		server: s,
	}
	if err := h.run(connCtx); err != nil && !errors.Is(err, errSessionClosed) {
		log.Printf("[fdwbridge] session error: %v", err)
	}
}

// prepareQuery compiles sess's pending query against its bound
// connection's data source and prepares a handle for it.
func (s *Server) prepareQuery(ctx context.Context, sess *Session) (connector.QueryHandle, error) {
	if sess.pendingQuery == nil {
		return nil, ansierr.New(ansierr.KindProtocolViolation, "no pending query to prepare")
	}

	compiler, err := s.compiler.CompilerFor(sess.ds)
	if err != nil {
		return nil, err
	}
	entities := s.compiler.EntitiesFor(sess.ds)

	backendQuery, err := compiler.CompileQuery(ctx, sess.conn, entities, sess.pendingQuery)
	if err != nil {
		return nil, ansierr.Wrap(ansierr.KindBackendError, err, "compiling query")
	}

	return sess.conn.Prepare(ctx, backendQuery)
}

// Stop cancels every in-flight session and blocks until all connection
// goroutines have exited, mirroring the teacher's Stop() shape.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cancelGrace):
		log.Printf("[fdwbridge] cancel grace period elapsed, forcing shutdown")
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		log.Printf("[fdwbridge] failed to remove socket %q: %v", s.socketPath, err)
	}
	log.Printf("[fdwbridge] server stopped")
}
