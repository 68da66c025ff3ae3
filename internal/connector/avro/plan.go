package avro

import (
	"context"
	"fmt"
	"os"

	"github.com/linkedin/goavro/v2"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
)

type planState struct {
	query sqlil.Select
	cost  connector.Cost
}

func (s planState) Query() sqlil.Query   { return s.query }
func (s planState) Cost() connector.Cost { return s.cost }

// InitialState starts a negotiation from a bare select-all over entity.
func InitialState(entity catalog.Entity) connector.PlanState {
	return planState{query: sqlil.Select{Entity: entity.ID}}
}

// Planner accepts only projection: a sequential file scan has no index
// to exploit for filters, limits, or ordering, so everything else stays
// local — the caller still only pays for reading the columns it needs.
type Planner struct{}

func (Planner) Apply(ctx context.Context, state connector.PlanState, op connector.SelectOp) (connector.PlanResult, connector.PlanState, error) {
	sel, ok := state.Query().(sqlil.Select)
	if !ok {
		return connector.PlanResult{Kind: connector.PlanNotSupported}, state, nil
	}

	proj, ok := op.(connector.ProjectionOp)
	if !ok {
		return connector.PlanResult{Kind: connector.PlanNotSupported}, state, nil
	}
	sel.Projection = proj.Projection
	next := planState{query: sel, cost: state.Cost()}
	return connector.PlanResult{Kind: connector.PlanApplied, Cost: next.cost}, next, nil
}

func (Planner) EstimateSize(ctx context.Context, conn connector.Connection, entity catalog.Entity) (connector.Cost, error) {
	c, ok := conn.(*Connection)
	if !ok {
		return connector.Cost{}, fmt.Errorf("avro: EstimateSize called with a foreign connection type %T", conn)
	}

	f, err := os.Open(c.path(entity.ID))
	if err != nil {
		return connector.Cost{}, err
	}
	defer f.Close()

	reader, err := goavro.NewOCFReader(f)
	if err != nil {
		return connector.Cost{}, err
	}
	var rows uint64
	for reader.Scan() {
		if _, err := reader.Read(); err != nil {
			return connector.Cost{}, err
		}
		rows++
	}
	return connector.Cost{Rows: rows, BytesPerRow: 64, TotalCost: float64(rows)}, nil
}
