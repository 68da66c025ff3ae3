package fdwbridge

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/ansilo-run/ansilo/internal/ansierr"
)

// errSessionClosed signals a clean TagClose, not a failure worth logging.
var errSessionClosed = errors.New("fdwbridge: session closed")

// connHandler drives one accepted connection's frame loop: read a
// request frame, dispatch it against the session state machine, write
// exactly one response frame (TagError on failure). One query in
// flight per session (spec.md §4.F concurrency note); backend fan-out
// is the connector pool's concern, not this loop's.
type connHandler struct {
	conn   net.Conn
	server *Server
	sess   *Session
}

func (h *connHandler) run(ctx context.Context) error {
	// A blocked ReadFrame only observes cancellation once this closes
	// the socket out from under it (invariant 7: shutdown must not wait
	// on an idle client). Mirrors the teacher's relay() goroutine that
	// closes the connection on ctx.Done rather than relying on the I/O
	// call itself to notice.
	stopWatcher := make(chan struct{})
	defer close(stopWatcher)
	go func() {
		select {
		case <-ctx.Done():
			h.conn.Close()
		case <-stopWatcher:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := ReadFrame(h.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		resp, closeAfter, err := h.dispatch(ctx, frame)
		if err != nil {
			if werr := WriteFrame(h.conn, Frame{Tag: TagError, Payload: encodeJSON(errorResponse(err))}); werr != nil {
				return werr
			}
			var ae *ansierr.Error
			if errors.As(err, &ae) && ae.Fatal() {
				return err
			}
			continue
		}

		if err := WriteFrame(h.conn, resp); err != nil {
			return err
		}
		if closeAfter {
			return errSessionClosed
		}
	}
}

func (h *connHandler) dispatch(ctx context.Context, f Frame) (Frame, bool, error) {
	switch f.Tag {
	case TagAuthDataSource:
		return h.handleAuth(ctx, f)
	case TagEstimateSize:
		return h.handleEstimateSize(ctx, f)
	case TagSelect, TagInsert, TagUpdate, TagDelete:
		return h.handleBuild(ctx, f)
	case TagPrepare:
		return h.handlePrepare(ctx, f)
	case TagWriteParams:
		return h.handleWriteParams(f)
	case TagExecute:
		return h.handleExecute(ctx)
	case TagRead:
		return h.handleRead()
	case TagRestart:
		return h.handleRestart(ctx)
	case TagDiscardQuery:
		return h.handleDiscardQuery()
	case TagBeginTx:
		return h.handleBeginTx(ctx)
	case TagCommit:
		return h.handleCommit(ctx)
	case TagRollback:
		return h.handleRollback(ctx)
	case TagClose:
		return h.handleClose()
	default:
		return Frame{}, false, ansierr.New(ansierr.KindProtocolViolation, "unrecognised tag %d", f.Tag)
	}
}

func (h *connHandler) handleAuth(ctx context.Context, f Frame) (Frame, bool, error) {
	var req AuthDataSourceRequest
	if err := decodeJSON(f.Payload, &req); err != nil {
		return Frame{}, false, err
	}

	ds, pool, authCtx, err := h.server.auth.Authenticate(ctx, req.DataSourceID, req.Credentials)
	if err != nil {
		return Frame{}, false, err
	}

	h.sess = NewSession(ds, pool)
	if err := h.sess.Authenticate(ctx, authCtx); err != nil {
		return Frame{}, false, err
	}

	return Frame{Tag: TagAuthAccepted, Payload: encodeJSON(AuthAcceptedResponse{Username: authCtx.Username})}, false, nil
}

func (h *connHandler) requireSession() error {
	if h.sess == nil {
		return ansierr.New(ansierr.KindProtocolViolation, "no authenticated session")
	}
	return nil
}

func (h *connHandler) handleEstimateSize(ctx context.Context, f Frame) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	var req EstimateSizeRequest
	if err := decodeJSON(f.Payload, &req); err != nil {
		return Frame{}, false, err
	}

	entity, ok := h.server.compiler.EntitiesFor(h.sess.ds)[req.EntityID]
	if !ok {
		return Frame{}, false, ansierr.New(ansierr.KindConfigInvalid, "unknown entity %q", req.EntityID)
	}
	planner, err := h.server.compiler.PlannerFor(h.sess.ds)
	if err != nil {
		return Frame{}, false, err
	}
	cost, err := planner.EstimateSize(ctx, h.sess.conn, entity)
	if err != nil {
		return Frame{}, false, ansierr.Wrap(ansierr.KindBackendError, err, "estimating size of %q", req.EntityID)
	}

	return Frame{Tag: TagEstimate, Payload: encodeJSON(EstimateResponse{
		Rows: cost.Rows, BytesPerRow: cost.BytesPerRow, StartupCost: cost.StartupCost, TotalCost: cost.TotalCost,
	})}, false, nil
}

// handleBuild transitions Idle -> Building and stashes the decoded
// query on the session for the subsequent Prepare call. The actual
// compilation (QueryCompiler.CompileQuery) happens in handlePrepare
// once the full query is known, matching the client's
// Building -> Prepared flow (spec.md §4.F).
func (h *connHandler) handleBuild(ctx context.Context, f Frame) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	if err := h.sess.BeginBuild(); err != nil {
		return Frame{}, false, err
	}

	switch f.Tag {
	case TagSelect:
		var req SelectRequest
		if err := decodeJSON(f.Payload, &req); err != nil {
			return Frame{}, false, err
		}
		q, err := fromWireSelect(req.Query)
		if err != nil {
			return Frame{}, false, err
		}
		h.sess.pendingQuery = q
	case TagInsert:
		var req InsertRequest
		if err := decodeJSON(f.Payload, &req); err != nil {
			return Frame{}, false, err
		}
		q, err := fromWireInsert(req.Query)
		if err != nil {
			return Frame{}, false, err
		}
		h.sess.pendingQuery = q
	case TagUpdate:
		var req UpdateRequest
		if err := decodeJSON(f.Payload, &req); err != nil {
			return Frame{}, false, err
		}
		q, err := fromWireUpdate(req.Query)
		if err != nil {
			return Frame{}, false, err
		}
		h.sess.pendingQuery = q
	case TagDelete:
		var req DeleteRequest
		if err := decodeJSON(f.Payload, &req); err != nil {
			return Frame{}, false, err
		}
		q, err := fromWireDelete(req.Query)
		if err != nil {
			return Frame{}, false, err
		}
		h.sess.pendingQuery = q
	}

	return Frame{Tag: TagOpResult}, false, nil
}

func (h *connHandler) handlePrepare(ctx context.Context, f Frame) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	if h.sess.pendingQuery == nil {
		return Frame{}, false, ansierr.New(ansierr.KindProtocolViolation, "prepare requested with no built query")
	}

	handle, err := h.server.prepareQuery(ctx, h.sess)
	if err != nil {
		return Frame{}, false, err
	}
	if err := h.sess.Prepare(handle); err != nil {
		return Frame{}, false, err
	}

	return Frame{Tag: TagQueryPrepared, Payload: encodeJSON(QueryPreparedResponse{Params: handle.GetStructure()})}, false, nil
}

func (h *connHandler) handleWriteParams(f Frame) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	if _, err := h.sess.WriteParams(f.Payload); err != nil {
		return Frame{}, false, err
	}
	return Frame{Tag: TagParamsWritten}, false, nil
}

func (h *connHandler) handleExecute(ctx context.Context) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	if err := h.sess.Execute(ctx); err != nil {
		return Frame{}, false, err
	}
	return Frame{Tag: TagQueryExecuted, Payload: encodeJSON(QueryExecutedResponse{Structure: h.sess.resultSet.GetStructure()})}, false, nil
}

// readChunkSize bounds a single ResultData frame's payload.
const readChunkSize = 64 * 1024

func (h *connHandler) handleRead() (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	buf := make([]byte, readChunkSize)
	n, err := h.sess.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return Frame{}, false, err
	}
	return Frame{Tag: TagResultData, Payload: buf[:n]}, false, nil
}

func (h *connHandler) handleRestart(ctx context.Context) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	if err := h.sess.Restart(ctx); err != nil {
		return Frame{}, false, err
	}
	return Frame{Tag: TagOpResult}, false, nil
}

func (h *connHandler) handleDiscardQuery() (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	h.sess.pendingQuery = nil
	if err := h.sess.DiscardQuery(); err != nil {
		return Frame{}, false, err
	}
	return Frame{Tag: TagOpResult}, false, nil
}

func (h *connHandler) handleBeginTx(ctx context.Context) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	if err := h.sess.BeginTx(ctx); err != nil {
		return Frame{}, false, err
	}
	return Frame{Tag: TagTxOk}, false, nil
}

func (h *connHandler) handleCommit(ctx context.Context) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	if err := h.sess.CommitTx(ctx); err != nil {
		return Frame{}, false, err
	}
	return Frame{Tag: TagTxOk}, false, nil
}

func (h *connHandler) handleRollback(ctx context.Context) (Frame, bool, error) {
	if err := h.requireSession(); err != nil {
		return Frame{}, false, err
	}
	if err := h.sess.RollbackTx(ctx); err != nil {
		return Frame{}, false, err
	}
	return Frame{Tag: TagTxOk}, false, nil
}

func (h *connHandler) handleClose() (Frame, bool, error) {
	if h.sess != nil {
		_ = h.sess.Close()
	}
	return Frame{Tag: TagOpResult}, true, nil
}
