package memory

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/codec"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/negotiator"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

func testEntity() catalog.Entity {
	return catalog.Entity{
		ID:   "widgets",
		Name: "widgets",
		Attributes: []catalog.Attribute{
			{Name: "id", Type: types.Int32()},
			{Name: "name", Type: types.Utf8String(0, "UTF-8")},
		},
	}
}

func seedWidgets(c *Connector, dataSourceID string) {
	c.Dataset(dataSourceID).Seed("widgets", []string{"id", "name"}, [][]types.DataValue{
		{types.Int32Value(1), types.StringValue{Value: "cog"}},
		{types.Int32Value(2), types.StringValue{Value: "sprocket"}},
	})
}

func readAllRows(t *testing.T, rs connector.ResultSet) [][]types.DataValue {
	t.Helper()
	data, err := io.ReadAll(rs)
	if err != nil {
		t.Fatalf("reading result set: %v", err)
	}
	r := codec.NewReader(bytes.NewReader(data))
	structure := rs.GetStructure()
	var out [][]types.DataValue
	for {
		row, err := codec.DecodeRow(r, structure)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("decoding row: %v", err)
		}
		out = append(out, row)
	}
	return out
}

func TestSelectFiltersAndProjects(t *testing.T) {
	ctx := context.Background()
	c := NewConnector()
	seedWidgets(c, "ds1")

	pool, _ := c.Pool(ctx, catalog.DataSource{ID: "ds1", Type: "internal"})
	conn, err := pool.Acquire(ctx, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	entity := testEntity()
	sel := sqlil.Select{
		Entity: "widgets",
		Where: []sqlil.Expr{
			sqlil.BinaryOp{Op: sqlil.BinaryEq, Left: sqlil.Attribute{Entity: "widgets", Name: "id"}, Right: sqlil.Constant{Value: types.Int32Value(2)}},
		},
		Projection: []sqlil.Projection{
			{Expr: sqlil.Attribute{Entity: "widgets", Name: "name"}},
		},
	}

	entities := map[string]catalog.Entity{"widgets": entity}
	bq, err := Compiler{}.CompileQuery(ctx, conn, entities, sel)
	if err != nil {
		t.Fatalf("CompileQuery: %v", err)
	}
	handle, err := conn.Prepare(ctx, bq)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	rs, err := handle.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	rows := readAllRows(t, rs)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	name, ok := rows[0][0].(types.StringValue)
	if !ok || name.Value != "sprocket" {
		t.Fatalf("expected sprocket, got %+v", rows[0][0])
	}
}

func TestInsertAutocommitsImmediately(t *testing.T) {
	ctx := context.Background()
	c := NewConnector()
	pool, _ := c.Pool(ctx, catalog.DataSource{ID: "ds1", Type: "internal"})
	conn, _ := pool.Acquire(ctx, nil)

	entities := map[string]catalog.Entity{"widgets": testEntity()}
	ins := sqlil.Insert{
		Entity: "widgets",
		Columns: []sqlil.InsertColumn{
			{Name: "id", Value: sqlil.Constant{Value: types.Int32Value(9)}},
			{Name: "name", Value: sqlil.Constant{Value: types.StringValue{Value: "gear"}}},
		},
	}
	bq, err := Compiler{}.CompileQuery(ctx, conn, entities, ins)
	if err != nil {
		t.Fatalf("CompileQuery: %v", err)
	}
	h, err := conn.Prepare(ctx, bq)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := h.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	tbl := c.Dataset("ds1").Snapshot()["widgets"]
	if tbl == nil || len(tbl.rows) != 1 {
		t.Fatalf("expected 1 row committed, got %+v", tbl)
	}
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	c := NewConnector()
	seedWidgets(c, "ds1")
	pool, _ := c.Pool(ctx, catalog.DataSource{ID: "ds1", Type: "internal"})
	conn, _ := pool.Acquire(ctx, nil)

	txm, ok := conn.TransactionManager()
	if !ok {
		t.Fatal("expected a transaction manager")
	}
	if err := txm.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	entities := map[string]catalog.Entity{"widgets": testEntity()}
	del := sqlil.Delete{Entity: "widgets"}
	bq, _ := Compiler{}.CompileQuery(ctx, conn, entities, del)
	h, _ := conn.Prepare(ctx, bq)
	if _, err := h.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := txm.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	tbl := c.Dataset("ds1").Snapshot()["widgets"]
	if tbl == nil || len(tbl.rows) != 2 {
		t.Fatalf("expected rollback to preserve both rows, got %+v", tbl)
	}
}

func TestTransactionCommitAppliesWrites(t *testing.T) {
	ctx := context.Background()
	c := NewConnector()
	seedWidgets(c, "ds1")
	pool, _ := c.Pool(ctx, catalog.DataSource{ID: "ds1", Type: "internal"})
	conn, _ := pool.Acquire(ctx, nil)

	txm, _ := conn.TransactionManager()
	_ = txm.Begin(ctx)

	entities := map[string]catalog.Entity{"widgets": testEntity()}
	del := sqlil.Delete{Entity: "widgets"}
	bq, _ := Compiler{}.CompileQuery(ctx, conn, entities, del)
	h, _ := conn.Prepare(ctx, bq)
	if _, err := h.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := txm.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tbl := c.Dataset("ds1").Snapshot()["widgets"]
	if tbl == nil || len(tbl.rows) != 0 {
		t.Fatalf("expected commit to persist the delete, got %+v", tbl)
	}
}

func TestNegotiatorPushesFilterAndLimitIntoPlanner(t *testing.T) {
	ctx := context.Background()
	entity := testEntity()
	planner := Planner{}
	initial := InitialState(entity)

	candidates := []negotiator.Candidate{
		{Kind: negotiator.OpFilter, Op: connector.FilterOp{Predicate: sqlil.BinaryOp{
			Op:    sqlil.BinaryGt,
			Left:  sqlil.Attribute{Entity: "widgets", Name: "id"},
			Right: sqlil.Constant{Value: types.Int32Value(1)},
		}}},
		{Kind: negotiator.OpLimit, Op: connector.LimitOp{Limit: 5}},
		{Kind: negotiator.OpGroupBy, Op: connector.GroupByOp{Exprs: []sqlil.Expr{sqlil.Attribute{Entity: "widgets", Name: "name"}}}},
	}

	res, err := negotiator.Negotiate(ctx, planner, initial, candidates)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if len(res.Applied) != 2 {
		t.Fatalf("expected filter and limit applied, got %d applied / %d local", len(res.Applied), len(res.Local))
	}
	if len(res.Local) != 1 {
		t.Fatalf("expected group-by left local, got %d", len(res.Local))
	}

	sel, ok := res.State.Query().(sqlil.Select)
	if !ok || len(sel.Where) != 1 || sel.Limit == nil || *sel.Limit != 5 {
		t.Fatalf("unexpected final query: %+v", sel)
	}
}
