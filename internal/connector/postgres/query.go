package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

// compiledQuery is this connector's BackendQuery: SQLIL rendered down to
// real Postgres SQL text plus the ordered list of bound parameter ids
// the extended query protocol will send in Bind, mirroring how the
// teacher's internal/proxy forwarded a client's already-text query
// straight through to the backend — except here the text is generated
// from SQLIL rather than received verbatim from a client.
type compiledQuery struct {
	sql        string
	paramOrder []int
	structure  types.QueryInputStructure
	logged     string
}

func (q *compiledQuery) Logged() string { return q.logged }

// Compiler is this connector's QueryCompiler.
type Compiler struct{}

func (Compiler) CompileQuery(ctx context.Context, conn connector.Connection, entities map[string]catalog.Entity, q sqlil.Query) (connector.BackendQuery, error) {
	g := &sqlGen{}
	var sql string
	var err error
	switch v := q.(type) {
	case sqlil.Select:
		sql, err = g.buildSelect(v)
	case sqlil.Insert:
		sql, err = g.buildInsert(v)
	case sqlil.BulkInsert:
		sql, err = g.buildBulkInsert(v)
	case sqlil.Update:
		sql, err = g.buildUpdate(v)
	case sqlil.Delete:
		sql, err = g.buildDelete(v)
	default:
		return nil, fmt.Errorf("postgres: unsupported query type %T", q)
	}
	if err != nil {
		return nil, err
	}

	structure := make(types.QueryInputStructure, 0, len(g.paramOrder))
	exprs := q.Exprs()
	byID := map[int]types.DataType{}
	for _, e := range exprs {
		collectParamTypes(e, byID)
	}
	for _, id := range g.paramOrder {
		structure = append(structure, types.Param{ID: id, Type: byID[id]})
	}

	return &compiledQuery{sql: sql, paramOrder: g.paramOrder, structure: structure, logged: sql}, nil
}

// QueryFromString supports raw SQL passthrough: the caller supplies the
// exact text and parameter structure, used as-is over the wire. $1, $2...
// in sqlText are expected to already match the order of params.
func (Compiler) QueryFromString(ctx context.Context, conn connector.Connection, sqlText string, params types.QueryInputStructure) (connector.BackendQuery, error) {
	order := make([]int, len(params))
	for i, p := range params {
		order[i] = p.ID
	}
	return &compiledQuery{sql: sqlText, paramOrder: order, structure: params, logged: sqlText}, nil
}

func collectParamTypes(e sqlil.Expr, out map[int]types.DataType) {
	switch v := e.(type) {
	case sqlil.Parameter:
		out[v.ID] = v.Type
	case sqlil.UnaryOp:
		collectParamTypes(v.Expr, out)
	case sqlil.BinaryOp:
		collectParamTypes(v.Left, out)
		collectParamTypes(v.Right, out)
	case sqlil.Cast:
		collectParamTypes(v.Inner, out)
	case sqlil.FunctionCall:
		for _, a := range v.Args {
			collectParamTypes(a, out)
		}
	case sqlil.Aggregate:
		if v.Arg != nil {
			collectParamTypes(v.Arg, out)
		}
	case sqlil.Case:
		for _, w := range v.Whens {
			collectParamTypes(w.When, out)
			collectParamTypes(w.Then, out)
		}
		if v.Else != nil {
			collectParamTypes(v.Else, out)
		}
	}
}

// sqlGen renders SQLIL to Postgres SQL text, tracking the $N parameter
// order as it walks expressions. A fresh $N is minted for every
// Parameter node encountered, even repeats of the same id — Bind sends
// one value per $N, so a repeated id just gets its value copied to more
// than one position.
type sqlGen struct {
	paramOrder []int
}

func (g *sqlGen) buildSelect(sel sqlil.Select) (string, error) {
	cols := "*"
	if len(sel.Projection) > 0 {
		parts := make([]string, len(sel.Projection))
		for i, p := range sel.Projection {
			s, err := g.expr(p.Expr)
			if err != nil {
				return "", err
			}
			if p.Alias != "" {
				s += " AS " + quoteIdent(p.Alias)
			}
			parts[i] = s
		}
		cols = strings.Join(parts, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, quoteIdent(sel.Entity))
	if sel.EntityAlias != "" && sel.EntityAlias != sel.Entity {
		fmt.Fprintf(&b, " AS %s", quoteIdent(sel.EntityAlias))
	}
	for _, j := range sel.Joins {
		on, err := g.expr(j.On)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " %s JOIN %s", strings.ToUpper(string(j.Kind)), quoteIdent(j.Entity))
		if j.Alias != "" {
			fmt.Fprintf(&b, " AS %s", quoteIdent(j.Alias))
		}
		fmt.Fprintf(&b, " ON %s", on)
	}
	if len(sel.Where) > 0 {
		conds := make([]string, len(sel.Where))
		for i, w := range sel.Where {
			s, err := g.expr(w)
			if err != nil {
				return "", err
			}
			conds[i] = s
		}
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	if len(sel.GroupBy) > 0 {
		parts := make([]string, len(sel.GroupBy))
		for i, e := range sel.GroupBy {
			s, err := g.expr(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		b.WriteString(" GROUP BY " + strings.Join(parts, ", "))
	}
	if len(sel.OrderBy) > 0 {
		parts := make([]string, len(sel.OrderBy))
		for i, o := range sel.OrderBy {
			s, err := g.expr(o.Expr)
			if err != nil {
				return "", err
			}
			parts[i] = s + " " + strings.ToUpper(string(o.Direction))
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if sel.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *sel.Limit)
	}
	if sel.Skip != nil {
		fmt.Fprintf(&b, " OFFSET %d", *sel.Skip)
	}
	return b.String(), nil
}

func (g *sqlGen) buildInsert(ins sqlil.Insert) (string, error) {
	names := make([]string, len(ins.Columns))
	vals := make([]string, len(ins.Columns))
	for i, c := range ins.Columns {
		v, err := g.expr(c.Value)
		if err != nil {
			return "", err
		}
		names[i] = quoteIdent(c.Name)
		vals[i] = v
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(ins.Entity), strings.Join(names, ", "), strings.Join(vals, ", ")), nil
}

func (g *sqlGen) buildBulkInsert(b sqlil.BulkInsert) (string, error) {
	names := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		names[i] = quoteIdent(c)
	}
	rows := make([]string, len(b.Rows))
	for i, row := range b.Rows {
		vals := make([]string, len(row))
		for j, e := range row {
			v, err := g.expr(e)
			if err != nil {
				return "", err
			}
			vals[j] = v
		}
		rows[i] = "(" + strings.Join(vals, ", ") + ")"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", quoteIdent(b.Entity), strings.Join(names, ", "), strings.Join(rows, ", ")), nil
}

func (g *sqlGen) buildUpdate(u sqlil.Update) (string, error) {
	sets := make([]string, len(u.Columns))
	for i, c := range u.Columns {
		v, err := g.expr(c.Value)
		if err != nil {
			return "", err
		}
		sets[i] = fmt.Sprintf("%s = %s", quoteIdent(c.Name), v)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", quoteIdent(u.Entity), strings.Join(sets, ", "))
	if len(u.Where) > 0 {
		conds := make([]string, len(u.Where))
		for i, w := range u.Where {
			s, err := g.expr(w)
			if err != nil {
				return "", err
			}
			conds[i] = s
		}
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return sql, nil
}

func (g *sqlGen) buildDelete(d sqlil.Delete) (string, error) {
	sql := fmt.Sprintf("DELETE FROM %s", quoteIdent(d.Entity))
	if len(d.Where) > 0 {
		conds := make([]string, len(d.Where))
		for i, w := range d.Where {
			s, err := g.expr(w)
			if err != nil {
				return "", err
			}
			conds[i] = s
		}
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return sql, nil
}

func (g *sqlGen) expr(e sqlil.Expr) (string, error) {
	switch v := e.(type) {
	case sqlil.Constant:
		return constantLiteral(v.Value)
	case sqlil.Parameter:
		g.paramOrder = append(g.paramOrder, v.ID)
		return fmt.Sprintf("$%d", len(g.paramOrder)), nil
	case sqlil.Attribute:
		return quoteIdent(v.Name), nil
	case sqlil.Cast:
		inner, err := g.expr(v.Inner)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CAST(%s AS %s)", inner, pgTypeName(v.Target)), nil
	case sqlil.UnaryOp:
		inner, err := g.expr(v.Expr)
		if err != nil {
			return "", err
		}
		switch v.Op {
		case sqlil.UnaryNot:
			return fmt.Sprintf("(NOT %s)", inner), nil
		case sqlil.UnaryNeg:
			return fmt.Sprintf("(-%s)", inner), nil
		case sqlil.UnaryIsNull:
			return fmt.Sprintf("(%s IS NULL)", inner), nil
		case sqlil.UnaryIsNotNull:
			return fmt.Sprintf("(%s IS NOT NULL)", inner), nil
		default:
			return "", fmt.Errorf("postgres: unsupported unary operator %q", v.Op)
		}
	case sqlil.BinaryOp:
		left, err := g.expr(v.Left)
		if err != nil {
			return "", err
		}
		right, err := g.expr(v.Right)
		if err != nil {
			return "", err
		}
		op, err := binaryOpSQL(v.Op)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, op, right), nil
	case sqlil.FunctionCall:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			s, err := g.expr(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return fmt.Sprintf("%s(%s)", v.Name, strings.Join(args, ", ")), nil
	case sqlil.Aggregate:
		arg := "*"
		if v.Arg != nil {
			s, err := g.expr(v.Arg)
			if err != nil {
				return "", err
			}
			arg = s
		}
		distinct := ""
		if v.Distinct {
			distinct = "DISTINCT "
		}
		return fmt.Sprintf("%s(%s%s)", strings.ToUpper(string(v.Func)), distinct, arg), nil
	case sqlil.Case:
		var b strings.Builder
		b.WriteString("CASE")
		for _, w := range v.Whens {
			when, err := g.expr(w.When)
			if err != nil {
				return "", err
			}
			then, err := g.expr(w.Then)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, " WHEN %s THEN %s", when, then)
		}
		if v.Else != nil {
			els, err := g.expr(v.Else)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, " ELSE %s", els)
		}
		b.WriteString(" END")
		return b.String(), nil
	default:
		return "", fmt.Errorf("postgres: unsupported expression node %T", e)
	}
}

func binaryOpSQL(op sqlil.BinaryOperator) (string, error) {
	switch op {
	case sqlil.BinaryAdd:
		return "+", nil
	case sqlil.BinarySub:
		return "-", nil
	case sqlil.BinaryMul:
		return "*", nil
	case sqlil.BinaryDiv:
		return "/", nil
	case sqlil.BinaryMod:
		return "%", nil
	case sqlil.BinaryEq:
		return "=", nil
	case sqlil.BinaryNotEq:
		return "<>", nil
	case sqlil.BinaryLt:
		return "<", nil
	case sqlil.BinaryLtEq:
		return "<=", nil
	case sqlil.BinaryGt:
		return ">", nil
	case sqlil.BinaryGtEq:
		return ">=", nil
	case sqlil.BinaryAnd:
		return "AND", nil
	case sqlil.BinaryOr:
		return "OR", nil
	case sqlil.BinaryLike:
		return "LIKE", nil
	case sqlil.BinaryConcat:
		return "||", nil
	default:
		return "", fmt.Errorf("postgres: unsupported binary operator %q", op)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func constantLiteral(v types.DataValue) (string, error) {
	if v.IsNull() {
		return "NULL", nil
	}
	switch val := v.(type) {
	case types.BoolValue:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case types.Int8Value:
		return strconv.FormatInt(int64(val), 10), nil
	case types.Int16Value:
		return strconv.FormatInt(int64(val), 10), nil
	case types.Int32Value:
		return strconv.FormatInt(int64(val), 10), nil
	case types.Int64Value:
		return strconv.FormatInt(int64(val), 10), nil
	case types.UInt8Value:
		return strconv.FormatUint(uint64(val), 10), nil
	case types.UInt16Value:
		return strconv.FormatUint(uint64(val), 10), nil
	case types.UInt32Value:
		return strconv.FormatUint(uint64(val), 10), nil
	case types.UInt64Value:
		return strconv.FormatUint(uint64(val), 10), nil
	case types.Float32Value:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case types.Float64Value:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	case types.StringValue:
		return "'" + strings.ReplaceAll(val.Value, "'", "''") + "'", nil
	case types.BinaryValue:
		return "'\\x" + fmt.Sprintf("%x", []byte(val)) + "'", nil
	default:
		return "", fmt.Errorf("postgres: unsupported constant type %T", v)
	}
}

func pgTypeName(t types.DataType) string {
	switch t.Kind {
	case types.KindBoolean:
		return "boolean"
	case types.KindInt8, types.KindInt16:
		return "smallint"
	case types.KindInt32:
		return "integer"
	case types.KindInt64:
		return "bigint"
	case types.KindUInt8, types.KindUInt16, types.KindUInt32, types.KindUInt64:
		return "bigint"
	case types.KindFloat32:
		return "real"
	case types.KindFloat64:
		return "double precision"
	case types.KindDecimal:
		return fmt.Sprintf("numeric(%d,%d)", t.Precision, t.Scale)
	case types.KindUtf8String:
		return "text"
	case types.KindBinary:
		return "bytea"
	case types.KindJSON:
		return "jsonb"
	case types.KindDate:
		return "date"
	case types.KindTime:
		return "time"
	case types.KindDateTime:
		return "timestamp"
	case types.KindDateTimeWithTZ:
		return "timestamptz"
	case types.KindUUID:
		return "uuid"
	default:
		return "text"
	}
}
