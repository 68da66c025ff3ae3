package sqlil

// Walk applies f to every subexpression of e, including e itself,
// depth-first pre-order. It is the one required traversal helper besides
// Exprs (spec.md §4.C).
func Walk(e Expr, f func(Expr)) {
	if e == nil {
		return
	}
	f(e)
	switch t := e.(type) {
	case Cast:
		Walk(t.Inner, f)
	case UnaryOp:
		Walk(t.Expr, f)
	case BinaryOp:
		Walk(t.Left, f)
		Walk(t.Right, f)
	case FunctionCall:
		for _, a := range t.Args {
			Walk(a, f)
		}
	case Aggregate:
		if t.Arg != nil {
			Walk(t.Arg, f)
		}
	case Case:
		for _, w := range t.Whens {
			Walk(w.When, f)
			Walk(w.Then, f)
		}
		if t.Else != nil {
			Walk(t.Else, f)
		}
	}
}

// WalkQuery applies f to every expression reachable from q, via Exprs
// then Walk on each.
func WalkQuery(q Query, f func(Expr)) {
	for _, e := range q.Exprs() {
		Walk(e, f)
	}
}

// Parameters collects every Parameter node reachable from q, in
// traversal order, duplicates allowed (used to build a
// QueryInputStructure — spec.md invariant 3).
func Parameters(q Query) []Parameter {
	var out []Parameter
	WalkQuery(q, func(e Expr) {
		if p, ok := e.(Parameter); ok {
			out = append(out, p)
		}
	})
	return out
}

// Attributes collects every Attribute node reachable from q, in
// traversal order, duplicates allowed. Used by Validate to check that
// every Attribute references an entity present in the from/join set.
func Attributes(q Query) []Attribute {
	var out []Attribute
	WalkQuery(q, func(e Expr) {
		if a, ok := e.(Attribute); ok {
			out = append(out, a)
		}
	})
	return out
}

// EntityScope returns the set of entity/alias names a query's Attribute
// nodes may legally reference: the from-entity (or its alias) plus every
// joined entity (or its alias).
func EntityScope(q Query) map[string]bool {
	scope := map[string]bool{}
	switch t := q.(type) {
	case Select:
		name := t.EntityAlias
		if name == "" {
			name = t.Entity
		}
		scope[name] = true
		for _, j := range t.Joins {
			jname := j.Alias
			if jname == "" {
				jname = j.Entity
			}
			scope[jname] = true
		}
	case Insert:
		scope[t.Entity] = true
	case BulkInsert:
		scope[t.Entity] = true
	case Update:
		scope[t.Entity] = true
	case Delete:
		scope[t.Entity] = true
	}
	return scope
}
