package memory

import (
	"context"
	"fmt"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

// compiledQuery is the memory connector's BackendQuery: it carries the
// negotiated sqlil.Query verbatim (there's no lower-level dialect to
// translate into — this connector IS the backend) plus the entity
// schema needed to type result columns.
type compiledQuery struct {
	entity catalog.Entity
	query  sqlil.Query
}

func (q *compiledQuery) Logged() string {
	switch v := q.query.(type) {
	case sqlil.Select:
		return fmt.Sprintf("SELECT ... FROM %s (%d predicates)", v.Entity, len(v.Where))
	case sqlil.Insert:
		return fmt.Sprintf("INSERT INTO %s (%d columns)", v.Entity, len(v.Columns))
	case sqlil.BulkInsert:
		return fmt.Sprintf("INSERT INTO %s (%d rows)", v.Entity, len(v.Rows))
	case sqlil.Update:
		return fmt.Sprintf("UPDATE %s (%d columns, %d predicates)", v.Entity, len(v.Columns), len(v.Where))
	case sqlil.Delete:
		return fmt.Sprintf("DELETE FROM %s (%d predicates)", v.Entity, len(v.Where))
	default:
		return "memory: query"
	}
}

// Compiler is this connector's QueryCompiler: compilation is trivial
// since the negotiated SQLIL query IS what Execute walks.
type Compiler struct{}

func (Compiler) CompileQuery(ctx context.Context, conn connector.Connection, entities map[string]catalog.Entity, q sqlil.Query) (connector.BackendQuery, error) {
	entityID, err := entityIDOf(q)
	if err != nil {
		return nil, err
	}
	ent, ok := entities[entityID]
	if !ok {
		return nil, fmt.Errorf("memory: unknown entity %q", entityID)
	}
	return &compiledQuery{entity: ent, query: q}, nil
}

func (Compiler) QueryFromString(ctx context.Context, conn connector.Connection, sqlText string, params types.QueryInputStructure) (connector.BackendQuery, error) {
	return nil, fmt.Errorf("memory: raw SQL passthrough is not supported")
}

func entityIDOf(q sqlil.Query) (string, error) {
	switch v := q.(type) {
	case sqlil.Select:
		return v.Entity, nil
	case sqlil.Insert:
		return v.Entity, nil
	case sqlil.BulkInsert:
		return v.Entity, nil
	case sqlil.Update:
		return v.Entity, nil
	case sqlil.Delete:
		return v.Entity, nil
	default:
		return "", fmt.Errorf("memory: unsupported query type %T", q)
	}
}
