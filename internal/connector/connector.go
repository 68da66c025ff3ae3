// Package connector defines the capability-bundle contract every
// backend implementation satisfies (spec.md §4.D) and a sealed registry
// resolving a catalog.DataSource's Type to the right implementation at
// boot. Capabilities are small composable interfaces rather than one
// monolithic interface, the same shape as PeerDB's connectors.Connector
// family in the retrieval pack.
package connector

import (
	"context"
	"io"

	"github.com/ansilo-run/ansilo/internal/auth"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

// Connector is the marker every capability bundle embeds: a factory for
// the one stateful resource (a Pool) bound to a data source.
type Connector interface {
	Pool(ctx context.Context, ds catalog.DataSource) (Pool, error)
}

// Pool is a logical factory bound to one data source; cloneable handle
// owning credentials and per-backend tuning. Acquire is idempotent:
// concurrent callers may serialise internally but must not deadlock.
type Pool interface {
	Acquire(ctx context.Context, auth *auth.Context) (Connection, error)
	Close() error
}

// Connection is a single backend session.
type Connection interface {
	Prepare(ctx context.Context, q BackendQuery) (QueryHandle, error)
	TransactionManager() (TransactionManager, bool)
	Close() error
}

// TransactionManager exposes explicit transaction control. Nesting is
// not required; Begin while already in a transaction is an error.
type TransactionManager interface {
	InTransaction() bool
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BackendQuery is the compiled, backend-specific form a QueryCompiler
// produces from a sqlil.Query. Connectors define their own concrete
// representation; this interface only guarantees enough to log it
// safely (no bound parameter values, only placeholders).
type BackendQuery interface {
	Logged() string
}

// QueryCompiler turns a SQLIL query into a BackendQuery. Pure: no I/O
// except metadata lookups against conn (e.g. resolving a dialect quirk).
type QueryCompiler interface {
	CompileQuery(ctx context.Context, conn Connection, entities map[string]catalog.Entity, q sqlil.Query) (BackendQuery, error)
	QueryFromString(ctx context.Context, conn Connection, sqlText string, params types.QueryInputStructure) (BackendQuery, error)
}

// PlanResult is the tri-state outcome of QueryPlanner.Apply.
type PlanResult struct {
	Kind PlanResultKind
	Cost Cost
}

type PlanResultKind int

const (
	PlanApplied PlanResultKind = iota
	PlanEstimate
	PlanNotSupported
)

// Cost mirrors spec.md's Operation Cost: planner hints returned by
// estimate_size and by each pushdown step.
type Cost struct {
	Rows         uint64
	BytesPerRow  uint64
	StartupCost  float64
	TotalCost    float64
}

// PlanState carries the incrementally built SQLIL plus whatever
// backend-specific bookkeeping a QueryPlanner needs across calls to
// Apply within one negotiation.
type PlanState interface {
	Query() sqlil.Query
	Cost() Cost
}

// SelectOp is one atomic pushdown step the negotiator offers to a
// QueryPlanner, in the fixed priority order from spec.md §4.E. Sealed to
// this package the same way sqlil.Expr is sealed to sqlil: a planner can
// only ever see one of the concrete ops below.
type SelectOp interface {
	selectOpNode()
}

// ProjectionOp offers a column projection for pushdown.
type ProjectionOp struct{ Projection []sqlil.Projection }

func (ProjectionOp) selectOpNode() {}

// FilterOp offers one additional predicate, ANDed with whatever the
// planner already accepted.
type FilterOp struct{ Predicate sqlil.Expr }

func (FilterOp) selectOpNode() {}

// EquijoinOp offers a join whose On clause is a pure equality between
// attributes of the two sides.
type EquijoinOp struct{ Join sqlil.Join }

func (EquijoinOp) selectOpNode() {}

// OtherJoinOp offers any join the negotiator couldn't prove is an
// equijoin (non-equality or cross-entity expression on).
type OtherJoinOp struct{ Join sqlil.Join }

func (OtherJoinOp) selectOpNode() {}

// GroupByOp offers a grouping key.
type GroupByOp struct{ Exprs []sqlil.Expr }

func (GroupByOp) selectOpNode() {}

// AggregateOp offers one aggregate projection over the current grouping.
type AggregateOp struct{ Aggregate sqlil.Aggregate }

func (AggregateOp) selectOpNode() {}

// OrderByOp offers a sort order.
type OrderByOp struct{ OrderBy []sqlil.OrderBy }

func (OrderByOp) selectOpNode() {}

// LimitOp offers a row cap.
type LimitOp struct{ Limit int64 }

func (LimitOp) selectOpNode() {}

// SkipOp offers a row offset.
type SkipOp struct{ Skip int64 }

func (SkipOp) selectOpNode() {}

// QueryPlanner answers whether it can push one more operation into the
// backend query being built.
type QueryPlanner interface {
	Apply(ctx context.Context, state PlanState, op SelectOp) (PlanResult, PlanState, error)
	EstimateSize(ctx context.Context, conn Connection, entity catalog.Entity) (Cost, error)
}

// QueryHandle is the mutable state machine a prepared query exposes:
// Prepared -> WritingParams -> Executed -> Reading, with Restart
// returning to WritingParams.
type QueryHandle interface {
	GetStructure() types.QueryInputStructure
	Write(p []byte) (n int, err error)
	Restart(ctx context.Context) error
	Execute(ctx context.Context) (ResultSet, error)
	// Logged returns a redaction-safe representation for observability:
	// bound parameter values are never included, only placeholders.
	Logged() string
	io.Closer
}

// ResultSet streams the row byte stream produced by an executed query.
// Read follows io.Reader semantics: 0, io.EOF signals end of stream.
type ResultSet interface {
	GetStructure() types.RowStructure
	io.Reader
	io.Closer
}

// EntitySearcher discovers entities a data source exposes. Wildcards on
// schema names are interpreted by the connector. Unsupported columns
// are silently dropped; tables with no supported columns are dropped
// entirely — a design choice, not an error.
type EntitySearcher interface {
	Discover(ctx context.Context, conn Connection, ds catalog.DataSource, opts catalog.DiscoverOptions) ([]catalog.Entity, error)
}

// EntityValidator rejects entity configurations the connector cannot
// serve, e.g. ids that would escape a filesystem-backed backend.
type EntityValidator interface {
	Validate(ctx context.Context, conn Connection, entity catalog.Entity, ds catalog.DataSource) error
}

// Factory constructs a Connector for a given connector type string
// (catalog.DataSource.Type), resolved once at boot.
type Factory func() Connector
