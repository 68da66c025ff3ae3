package sqlil

import (
	"fmt"

	"github.com/ansilo-run/ansilo/internal/ansierr"
	"github.com/ansilo-run/ansilo/internal/types"
)

// InputStructure builds the QueryInputStructure for q: every Parameter
// reachable from Exprs(), in traversal order, duplicates allowed
// (spec.md invariant 3 — the inverse check, that every id here really
// came from the query, holds by construction since it is derived from
// the same traversal).
func InputStructure(q Query) types.QueryInputStructure {
	params := Parameters(q)
	out := make(types.QueryInputStructure, len(params))
	for i, p := range params {
		out[i] = types.Param{ID: p.ID, Type: p.Type}
	}
	return out
}

// Validate checks the structural invariants spec.md names for a SQLIL
// query: every Attribute references an entity present in the
// from/join set (invariant from the glossary's SQLIL Query entry).
func Validate(q Query) error {
	scope := EntityScope(q)
	for _, a := range Attributes(q) {
		if !scope[a.Entity] {
			return ansierr.New(ansierr.KindInternal,
				"attribute %q.%q references entity %q not present in from/join set",
				a.Entity, a.Name, a.Entity)
		}
	}
	return nil
}

// String renders a compact human-readable form, useful for the
// redaction-safe logged() representation query handles expose
// (spec.md §4.D QueryHandle.logged) — it never includes Constant
// values, only their type, so sensitive literals are not logged.
func (c Constant) String() string {
	return fmt.Sprintf("<const:%s>", c.Value.Type().Kind)
}
