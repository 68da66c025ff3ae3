package memory

import (
	"context"
	"fmt"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
)

// planState threads the sqlil.Select being built through one
// negotiation. Only Select ever reaches the planner — inserts, updates,
// and deletes aren't pushdown candidates under spec.md §4.E.
type planState struct {
	query sqlil.Select
	cost  connector.Cost
}

func (s planState) Query() sqlil.Query   { return s.query }
func (s planState) Cost() connector.Cost { return s.cost }

// Planner is this connector's QueryPlanner: it accepts projection,
// simple filters, limit, and skip; everything else (joins, grouping,
// aggregates, ordering) is left for the caller to apply locally since a
// single in-process table has nothing to gain by pushing them down.
type Planner struct{}

func (Planner) Apply(ctx context.Context, state connector.PlanState, op connector.SelectOp) (connector.PlanResult, connector.PlanState, error) {
	sel, ok := state.Query().(sqlil.Select)
	if !ok {
		return connector.PlanResult{Kind: connector.PlanNotSupported}, state, nil
	}

	switch o := op.(type) {
	case connector.ProjectionOp:
		sel.Projection = o.Projection
		next := planState{query: sel, cost: state.Cost()}
		return connector.PlanResult{Kind: connector.PlanApplied, Cost: next.cost}, next, nil

	case connector.FilterOp:
		if !pushable(o.Predicate) {
			return connector.PlanResult{Kind: connector.PlanNotSupported}, state, nil
		}
		sel.Where = append(append([]sqlil.Expr{}, sel.Where...), o.Predicate)
		next := planState{query: sel, cost: state.Cost()}
		return connector.PlanResult{Kind: connector.PlanApplied, Cost: next.cost}, next, nil

	case connector.LimitOp:
		limit := o.Limit
		sel.Limit = &limit
		next := planState{query: sel, cost: state.Cost()}
		return connector.PlanResult{Kind: connector.PlanApplied, Cost: next.cost}, next, nil

	case connector.SkipOp:
		skip := o.Skip
		sel.Skip = &skip
		next := planState{query: sel, cost: state.Cost()}
		return connector.PlanResult{Kind: connector.PlanApplied, Cost: next.cost}, next, nil

	default:
		// Equijoin, other-join, group-by, aggregate, order-by: left local.
		return connector.PlanResult{Kind: connector.PlanNotSupported}, state, nil
	}
}

func (Planner) EstimateSize(ctx context.Context, conn connector.Connection, entity catalog.Entity) (connector.Cost, error) {
	mc, ok := conn.(*Connection)
	if !ok {
		return connector.Cost{}, fmt.Errorf("memory: EstimateSize called with a foreign connection type %T", conn)
	}
	t, ok := mc.view()[entity.ID]
	if !ok {
		return connector.Cost{Rows: 0, BytesPerRow: 64}, nil
	}
	return connector.Cost{
		Rows:        uint64(len(t.rows)),
		BytesPerRow: 64,
		StartupCost: 0,
		TotalCost:   float64(len(t.rows)),
	}, nil
}

// InitialState returns the starting point for a negotiation over
// entity: a bare select-all, mirroring negotiator.FallbackSelectAll.
func InitialState(entity catalog.Entity) connector.PlanState {
	return planState{query: sqlil.Select{Entity: entity.ID}}
}
