// Package sqlil implements the SQL Intermediate Language: a thin, stable
// AST every connector promises to accept (spec.md §4.C). It is pure
// data — no behaviour beyond traversal. Parameter ids are allocated by
// the caller (the pushdown negotiator), never by the AST itself.
package sqlil

import "github.com/ansilo-run/ansilo/internal/types"

// Expr is any SQLIL expression node. Implementations are value or
// pointer types as convenient; Walk/Exprs only need the interface.
type Expr interface {
	exprNode()
}

// Query is one of Select, Insert, BulkInsert, Update, Delete.
type Query interface {
	queryNode()
	// Exprs yields every expression reachable from this query in
	// traversal order, for parameter collection (invariant 3).
	Exprs() []Expr
}

// --- Expression nodes ---

type Constant struct {
	Value types.DataValue
}

func (Constant) exprNode() {}

// Parameter is a placeholder bound at execute time. Its id is assigned
// by the negotiator; the same id may appear more than once.
type Parameter struct {
	ID   int
	Type types.DataType
}

func (Parameter) exprNode() {}

// Attribute references a column of an entity present in the query's
// from/join set.
type Attribute struct {
	Entity string
	Name   string
}

func (Attribute) exprNode() {}

type Cast struct {
	Inner  Expr
	Target types.DataType
}

func (Cast) exprNode() {}

type UnaryOperator string

const (
	UnaryNot         UnaryOperator = "not"
	UnaryNeg         UnaryOperator = "neg"
	UnaryIsNull      UnaryOperator = "is_null"
	UnaryIsNotNull   UnaryOperator = "is_not_null"
)

type UnaryOp struct {
	Op   UnaryOperator
	Expr Expr
}

func (UnaryOp) exprNode() {}

type BinaryOperator string

const (
	BinaryAdd      BinaryOperator = "add"
	BinarySub      BinaryOperator = "sub"
	BinaryMul      BinaryOperator = "mul"
	BinaryDiv      BinaryOperator = "div"
	BinaryMod      BinaryOperator = "mod"
	BinaryEq       BinaryOperator = "eq"
	BinaryNotEq    BinaryOperator = "neq"
	BinaryLt       BinaryOperator = "lt"
	BinaryLtEq     BinaryOperator = "lte"
	BinaryGt       BinaryOperator = "gt"
	BinaryGtEq     BinaryOperator = "gte"
	BinaryAnd      BinaryOperator = "and"
	BinaryOr       BinaryOperator = "or"
	BinaryLike     BinaryOperator = "like"
	BinaryConcat   BinaryOperator = "concat"
)

type BinaryOp struct {
	Op    BinaryOperator
	Left  Expr
	Right Expr
}

func (BinaryOp) exprNode() {}

type FunctionCall struct {
	Name string
	Args []Expr
}

func (FunctionCall) exprNode() {}

type AggregateFunc string

const (
	AggCount AggregateFunc = "count"
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

type Aggregate struct {
	Func     AggregateFunc
	Arg      Expr // nil for count(*)
	Distinct bool
}

func (Aggregate) exprNode() {}

type CaseWhen struct {
	When Expr
	Then Expr
}

type Case struct {
	Whens []CaseWhen
	Else  Expr // nil means SQL NULL
}

func (Case) exprNode() {}

// --- Query nodes ---

type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinFull  JoinKind = "full"
)

type Join struct {
	Kind   JoinKind
	Entity string
	Alias  string
	On     Expr
}

type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

type OrderBy struct {
	Expr      Expr
	Direction OrderDirection
}

type Projection struct {
	Expr  Expr
	Alias string
}

// Select is the only query kind capable of joins, grouping, and
// ordering. EntityAlias names the from-entity within this query's
// attribute scope (defaults to the entity id when empty).
type Select struct {
	Entity      string
	EntityAlias string
	Joins       []Join
	Where       []Expr
	GroupBy     []Expr
	OrderBy     []OrderBy
	Limit       *int64
	Skip        *int64
	Projection  []Projection
}

func (Select) queryNode() {}

func (s Select) Exprs() []Expr {
	var out []Expr
	for _, p := range s.Projection {
		out = append(out, p.Expr)
	}
	for _, j := range s.Joins {
		if j.On != nil {
			out = append(out, j.On)
		}
	}
	out = append(out, s.Where...)
	out = append(out, s.GroupBy...)
	for _, o := range s.OrderBy {
		out = append(out, o.Expr)
	}
	return out
}

type InsertColumn struct {
	Name  string
	Value Expr
}

type Insert struct {
	Entity  string
	Columns []InsertColumn
}

func (Insert) queryNode() {}

func (i Insert) Exprs() []Expr {
	out := make([]Expr, 0, len(i.Columns))
	for _, c := range i.Columns {
		out = append(out, c.Value)
	}
	return out
}

// BulkInsert batches multiple rows of the same column set into a single
// query so a connector can pushdown a multi-row INSERT.
type BulkInsert struct {
	Entity  string
	Columns []string
	Rows    [][]Expr // each inner slice aligns with Columns
}

func (BulkInsert) queryNode() {}

func (b BulkInsert) Exprs() []Expr {
	var out []Expr
	for _, row := range b.Rows {
		out = append(out, row...)
	}
	return out
}

type UpdateColumn struct {
	Name  string
	Value Expr
}

type Update struct {
	Entity  string
	Columns []UpdateColumn
	Where   []Expr
}

func (Update) queryNode() {}

func (u Update) Exprs() []Expr {
	out := make([]Expr, 0, len(u.Columns)+len(u.Where))
	for _, c := range u.Columns {
		out = append(out, c.Value)
	}
	out = append(out, u.Where...)
	return out
}

type Delete struct {
	Entity string
	Where  []Expr
}

func (Delete) queryNode() {}

func (d Delete) Exprs() []Expr {
	return append([]Expr(nil), d.Where...)
}
