package avro

import (
	"context"
	"fmt"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

// compiledQuery is this connector's BackendQuery. Only Select ever
// reaches it: avro files are read-only, so Insert/Update/Delete/
// BulkInsert fail to compile rather than silently no-op.
type compiledQuery struct {
	entity catalog.Entity
	sel    sqlil.Select
}

func (q *compiledQuery) Logged() string {
	return fmt.Sprintf("SELECT ... FROM %s", q.sel.Entity)
}

// Compiler is this connector's QueryCompiler.
type Compiler struct{}

func (Compiler) CompileQuery(ctx context.Context, conn connector.Connection, entities map[string]catalog.Entity, q sqlil.Query) (connector.BackendQuery, error) {
	sel, ok := q.(sqlil.Select)
	if !ok {
		return nil, fmt.Errorf("avro: read-only connector, unsupported query type %T", q)
	}
	ent, ok := entities[sel.Entity]
	if !ok {
		return nil, fmt.Errorf("avro: unknown entity %q", sel.Entity)
	}
	return &compiledQuery{entity: ent, sel: sel}, nil
}

func (Compiler) QueryFromString(ctx context.Context, conn connector.Connection, sqlText string, params types.QueryInputStructure) (connector.BackendQuery, error) {
	return nil, fmt.Errorf("avro: raw SQL passthrough is not supported")
}
