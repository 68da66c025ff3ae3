package negotiator

import (
	"context"
	"testing"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
)

// fakeSelectOp embeds a real op because connector.SelectOp is sealed by
// an unexported method; the embedded FilterOp supplies it.
type fakeSelectOp struct {
	connector.FilterOp
	name string
}

type fakeState struct {
	query sqlil.Query
	cost  connector.Cost
}

func (s fakeState) Query() sqlil.Query    { return s.query }
func (s fakeState) Cost() connector.Cost { return s.cost }

// fakePlanner accepts ops listed in "supported" with a monotonically
// decreasing cost, and returns NotSupported for everything else.
type fakePlanner struct {
	supported map[string]float64 // op name -> resulting total cost
}

func (p *fakePlanner) Apply(ctx context.Context, state connector.PlanState, op connector.SelectOp) (connector.PlanResult, connector.PlanState, error) {
	name := op.(fakeSelectOp).name
	cost, ok := p.supported[name]
	if !ok {
		return connector.PlanResult{Kind: connector.PlanNotSupported}, state, nil
	}
	return connector.PlanResult{Kind: connector.PlanApplied, Cost: connector.Cost{TotalCost: cost}},
		fakeState{query: state.Query(), cost: connector.Cost{TotalCost: cost}}, nil
}

func (p *fakePlanner) EstimateSize(ctx context.Context, conn connector.Connection, entity catalog.Entity) (connector.Cost, error) {
	return connector.Cost{}, nil
}

func TestNegotiateCommitsSupportedOpsInPriorityOrder(t *testing.T) {
	planner := &fakePlanner{supported: map[string]float64{
		"filter": 80,
		"join":   60,
		"group":  40,
		"order":  30,
		"limit":  10,
	}}
	initial := fakeState{query: sqlil.Select{Entity: "people"}, cost: connector.Cost{TotalCost: 100}}

	candidates := []Candidate{
		{Kind: OpLimit, Op: fakeSelectOp{name: "limit"}},
		{Kind: OpEquijoin, Op: fakeSelectOp{name: "join"}},
		{Kind: OpFilter, Op: fakeSelectOp{name: "filter"}},
		{Kind: OpGroupBy, Op: fakeSelectOp{name: "group"}},
		{Kind: OpOrderBy, Op: fakeSelectOp{name: "order"}},
	}

	res, err := Negotiate(context.Background(), planner, initial, candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Applied) != 5 {
		t.Fatalf("expected all 5 ops applied, got %d: %+v", len(res.Applied), res.Applied)
	}
	// S2-like ordering: filter, join, group, order, limit (priority order,
	// not the order offered).
	wantOrder := []string{"filter", "join", "group", "order", "limit"}
	for i, c := range res.Applied {
		if c.Op.(fakeSelectOp).name != wantOrder[i] {
			t.Errorf("applied[%d] = %s, want %s", i, c.Op.(fakeSelectOp).name, wantOrder[i])
		}
	}
}

func TestNegotiateFallsBackOnNotSupported(t *testing.T) {
	// S3: planner rejects GroupBy; everything else still applies.
	planner := &fakePlanner{supported: map[string]float64{
		"filter": 80,
		"join":   60,
		"order":  30,
		"limit":  10,
	}}
	initial := fakeState{query: sqlil.Select{Entity: "people"}, cost: connector.Cost{TotalCost: 100}}

	candidates := []Candidate{
		{Kind: OpFilter, Op: fakeSelectOp{name: "filter"}},
		{Kind: OpEquijoin, Op: fakeSelectOp{name: "join"}},
		{Kind: OpGroupBy, Op: fakeSelectOp{name: "group"}},
		{Kind: OpOrderBy, Op: fakeSelectOp{name: "order"}},
		{Kind: OpLimit, Op: fakeSelectOp{name: "limit"}},
	}

	res, err := Negotiate(context.Background(), planner, initial, candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Local) != 1 || res.Local[0].Op.(fakeSelectOp).name != "group" {
		t.Fatalf("expected group-by to fall back to local execution, got %+v", res.Local)
	}
	if len(res.Applied) != 4 {
		t.Fatalf("expected 4 ops applied, got %d", len(res.Applied))
	}
}

func TestNegotiateNeverRegressesCost(t *testing.T) {
	// invariant 4: an Applied result whose reported cost is higher than
	// the best cost committed so far must not be committed.
	planner := &fakePlanner{supported: map[string]float64{
		"cheap":      50,
		"regressive": 999,
	}}
	initial := fakeState{query: sqlil.Select{Entity: "t"}, cost: connector.Cost{TotalCost: 100}}

	res, err := Negotiate(context.Background(), planner, initial, []Candidate{
		{Kind: OpFilter, Op: fakeSelectOp{name: "cheap"}},
		{Kind: OpFilter, Op: fakeSelectOp{name: "regressive"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range res.Applied {
		if c.Op.(fakeSelectOp).name == "regressive" {
			t.Fatal("regressive op must not be committed")
		}
	}
}

func TestParamAllocatorMonotonic(t *testing.T) {
	var a ParamAllocator
	ids := []int{a.Next(), a.Next(), a.Next()}
	if ids[0] >= ids[1] || ids[1] >= ids[2] {
		t.Fatalf("expected strictly increasing ids, got %v", ids)
	}
}
