package avro

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/linkedin/goavro/v2"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/codec"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

const exampleSchema = `{
	"type": "record",
	"name": "example",
	"fields": [
		{"name": "intField", "type": "int"},
		{"name": "stringField", "type": "string"},
		{"name": "nullField", "type": "null"}
	]
}`

func writeExampleFile(t *testing.T, dir string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, "example.avro"))
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	defer f.Close()

	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Schema: exampleSchema})
	if err != nil {
		t.Fatalf("NewOCFWriter: %v", err)
	}
	record := map[string]interface{}{
		"intField":    int32(12),
		"stringField": "hey",
		"nullField":   nil,
	}
	if err := w.Append([]interface{}{record}); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestDiscoverReadsSchemaFromContainerFile(t *testing.T) {
	dir := t.TempDir()
	writeExampleFile(t, dir)

	conn := &Connection{dir: dir}
	ds := catalog.DataSource{ID: "ds1", Type: "file.avro", Options: map[string]string{"dir": dir}}

	entities, err := Searcher{}.Discover(context.Background(), conn, ds, catalog.DiscoverOptions{RemoteSchema: ""})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	e := entities[0]
	if e.ID != "example.avro" {
		t.Fatalf("expected id example.avro, got %q", e.ID)
	}
	if len(e.Attributes) != 3 {
		t.Fatalf("expected 3 attributes, got %d: %+v", len(e.Attributes), e.Attributes)
	}
	if e.Attributes[0].Name != "intField" || e.Attributes[0].Type.Kind != types.KindInt32 {
		t.Fatalf("unexpected first attribute: %+v", e.Attributes[0])
	}
	if e.Attributes[1].Name != "stringField" || e.Attributes[1].Type.Kind != types.KindUtf8String {
		t.Fatalf("unexpected second attribute: %+v", e.Attributes[1])
	}
	if e.Attributes[2].Name != "nullField" || e.Attributes[2].Type.Kind != types.KindNull {
		t.Fatalf("unexpected third attribute: %+v", e.Attributes[2])
	}
}

func TestSelectTwoColumnsReturnsOneRow(t *testing.T) {
	dir := t.TempDir()
	writeExampleFile(t, dir)

	c := NewConnector()
	ctx := context.Background()
	pool, err := c.Pool(ctx, catalog.DataSource{ID: "ds1", Type: "file.avro", Options: map[string]string{"dir": dir}})
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	conn, err := pool.Acquire(ctx, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	entities, err := Searcher{}.Discover(ctx, conn, catalog.DataSource{ID: "ds1"}, catalog.DiscoverOptions{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	entity := entities[0]

	sel := sqlil.Select{
		Entity: entity.ID,
		Projection: []sqlil.Projection{
			{Expr: sqlil.Attribute{Entity: entity.ID, Name: "intField"}},
			{Expr: sqlil.Attribute{Entity: entity.ID, Name: "stringField"}},
		},
	}
	bq, err := Compiler{}.CompileQuery(ctx, conn, map[string]catalog.Entity{entity.ID: entity}, sel)
	if err != nil {
		t.Fatalf("CompileQuery: %v", err)
	}
	h, err := conn.Prepare(ctx, bq)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	rs, err := h.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := io.ReadAll(rs)
	if err != nil {
		t.Fatalf("reading result set: %v", err)
	}
	r := codec.NewReader(bytes.NewReader(data))
	structure := rs.GetStructure()

	row, err := codec.DecodeRow(r, structure)
	if err != nil {
		t.Fatalf("decoding row: %v", err)
	}
	if len(row) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(row))
	}
	intVal, ok := row[0].(types.Int32Value)
	if !ok || intVal != 12 {
		t.Fatalf("expected intField=12, got %+v", row[0])
	}
	strVal, ok := row[1].(types.StringValue)
	if !ok || strVal.Value != "hey" {
		t.Fatalf("expected stringField=hey, got %+v", row[1])
	}

	if _, err := codec.DecodeRow(r, structure); err != io.EOF {
		t.Fatalf("expected EOF after one row, got %v", err)
	}

	_ = connector.ResultSet(rs)
}
