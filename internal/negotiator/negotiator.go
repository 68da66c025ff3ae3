// Package negotiator implements the pushdown negotiation algorithm
// (spec.md §4.E): starting from an empty Select over a single entity,
// offer candidate SelectQueryOperations to a connector's QueryPlanner in
// a fixed priority order, committing whatever it accepts.
//
// This is a novel algorithmic component with no direct teacher
// analogue; its work-list shape is grounded on the teacher's explicit
// for-loop retry/early-exit style (pool.Acquire's tiered acquisition
// loop) rather than a generic visitor pattern, to match the codebase's
// preference for flat control flow over indirection.
package negotiator

import (
	"context"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
)

// OpKind is the fixed fallback-order classification of a candidate
// pushdown step (spec.md §4.E's priority list).
type OpKind int

const (
	OpProjection OpKind = iota
	OpFilter
	OpEquijoin
	OpOtherJoin
	OpGroupBy
	OpAggregate
	OpOrderBy
	OpLimit
	OpSkip
)

func (k OpKind) priority() int { return int(k) }

// Candidate pairs a pushdown step with its kind so the negotiator can
// apply data-dependency ordering rules.
type Candidate struct {
	Kind OpKind
	Op   connector.SelectOp
}

// Result is the outcome of negotiating one query: the compiled plan
// state, which candidates were committed (applied), and which were
// left for Postgres to execute locally.
type Result struct {
	State     connector.PlanState
	Applied   []Candidate
	Local     []Candidate
	ParamMap  map[int]int // postgres param node id -> sqlil Parameter id
}

// ParamAllocator hands out monotonically increasing SQLIL parameter
// ids for Var/subquery references a connector cannot resolve locally.
type ParamAllocator struct {
	next int
}

func (a *ParamAllocator) Next() int {
	a.next++
	return a.next
}

// Negotiate runs the fixed-priority work list against planner, starting
// from an empty Select over entity. Candidates are tried in priority
// order; within a priority tier, callers must already have ordered
// candidates to respect data dependencies (a filter referencing a
// column introduced by a join must not be offered before that join is
// itself committed or rejected).
//
// planner.Apply may return:
//   - PlanApplied: the op is committed into state, its local-plan
//     equivalent is removed from the caller's (Postgres) responsibility.
//   - PlanEstimate: the cost informs the caller's own planning but the
//     op itself stays local.
//   - PlanNotSupported: the op stays local, unconditionally.
func Negotiate(ctx context.Context, planner connector.QueryPlanner, initial connector.PlanState, candidates []Candidate) (Result, error) {
	sorted := sortByPriority(candidates)

	res := Result{State: initial, ParamMap: map[int]int{}}
	bestCost := initial.Cost().TotalCost

	for _, c := range sorted {
		outcome, nextState, err := planner.Apply(ctx, res.State, c.Op)
		if err != nil {
			return Result{}, err
		}

		switch outcome.Kind {
		case connector.PlanApplied:
			// Invariant 4 (monotonicity): never regress below the prior
			// committed cost minus the delta the planner itself reported.
			if outcome.Cost.TotalCost > bestCost {
				res.Local = append(res.Local, c)
				continue
			}
			bestCost = outcome.Cost.TotalCost
			res.State = nextState
			res.Applied = append(res.Applied, c)
		case connector.PlanEstimate:
			res.Local = append(res.Local, c)
		case connector.PlanNotSupported:
			res.Local = append(res.Local, c)
		}
	}

	return res, nil
}

// sortByPriority returns candidates ordered by their fixed priority tier,
// stable within a tier so caller-supplied data-dependency order survives.
func sortByPriority(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].Kind.priority() > out[j].Kind.priority() {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}

// FallbackSelectAll builds a SELECT *-equivalent compilation over the
// entity when even projection pushdown is unsupported (spec.md §4.E
// failure policy) — every attribute is projected unaliased and no
// filters/joins/etc are pushed, relying on Postgres to do the rest.
func FallbackSelectAll(entity catalog.Entity) sqlil.Select {
	proj := make([]sqlil.Projection, 0, len(entity.Attributes))
	for _, a := range entity.Attributes {
		proj = append(proj, sqlil.Projection{Expr: sqlil.Attribute{Entity: entity.ID, Name: a.Name}})
	}
	return sqlil.Select{Entity: entity.ID, Projection: proj}
}
