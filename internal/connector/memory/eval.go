package memory

import (
	"fmt"

	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

// evalExpr evaluates a SQLIL expression against one row (keyed by
// column name) and a set of bound parameter values. Only the node
// kinds pushable (below) ever reach here in a compiled query. It
// handles constants, parameters, attributes, is-(not)-null/not and
// and/or/comparison operators; any other node kind or operator returns
// an error.
func evalExpr(expr sqlil.Expr, row map[string]types.DataValue, params map[int]types.DataValue) (types.DataValue, error) {
	switch e := expr.(type) {
	case sqlil.Constant:
		return e.Value, nil
	case sqlil.Parameter:
		v, ok := params[e.ID]
		if !ok {
			return types.NullValue{T: e.Type}, nil
		}
		return v, nil
	case sqlil.Attribute:
		v, ok := row[e.Name]
		if !ok {
			return nil, fmt.Errorf("memory: unknown attribute %q", e.Name)
		}
		return v, nil
	case sqlil.UnaryOp:
		inner, err := evalExpr(e.Expr, row, params)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case sqlil.UnaryIsNull:
			return types.BoolValue(inner.IsNull()), nil
		case sqlil.UnaryIsNotNull:
			return types.BoolValue(!inner.IsNull()), nil
		case sqlil.UnaryNot:
			b, ok := inner.(types.BoolValue)
			if !ok {
				return nil, fmt.Errorf("memory: NOT requires a boolean operand, got %T", inner)
			}
			return types.BoolValue(!bool(b)), nil
		default:
			return nil, fmt.Errorf("memory: unsupported unary operator %q", e.Op)
		}
	case sqlil.BinaryOp:
		left, err := evalExpr(e.Left, row, params)
		if err != nil {
			return nil, err
		}
		right, err := evalExpr(e.Right, row, params)
		if err != nil {
			return nil, err
		}
		return evalBinary(e.Op, left, right)
	default:
		return nil, fmt.Errorf("memory: unsupported expression %T", expr)
	}
}

func evalBinary(op sqlil.BinaryOperator, l, r types.DataValue) (types.DataValue, error) {
	if op == sqlil.BinaryAnd || op == sqlil.BinaryOr {
		lb, ok1 := l.(types.BoolValue)
		rb, ok2 := r.(types.BoolValue)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("memory: AND/OR require boolean operands")
		}
		if op == sqlil.BinaryAnd {
			return types.BoolValue(bool(lb) && bool(rb)), nil
		}
		return types.BoolValue(bool(lb) || bool(rb)), nil
	}

	// SQL null semantics: any comparison against null is false (not
	// null propagation), adequate for the pushed-down filters this
	// connector accepts — there's no three-valued logic anywhere else
	// in the pipeline once a predicate reaches here.
	if l.IsNull() || r.IsNull() {
		return types.BoolValue(false), nil
	}

	cmp, err := compareValues(l, r)
	if err != nil {
		return nil, err
	}
	switch op {
	case sqlil.BinaryEq:
		return types.BoolValue(cmp == 0), nil
	case sqlil.BinaryNotEq:
		return types.BoolValue(cmp != 0), nil
	case sqlil.BinaryLt:
		return types.BoolValue(cmp < 0), nil
	case sqlil.BinaryLtEq:
		return types.BoolValue(cmp <= 0), nil
	case sqlil.BinaryGt:
		return types.BoolValue(cmp > 0), nil
	case sqlil.BinaryGtEq:
		return types.BoolValue(cmp >= 0), nil
	default:
		return nil, fmt.Errorf("memory: unsupported binary operator %q in a pushed-down predicate", op)
	}
}

func compareValues(l, r types.DataValue) (int, error) {
	if lf, lok := asFloat(l); lok {
		if rf, rok := asFloat(r); rok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if ls, lok := l.(types.StringValue); lok {
		if rs, rok := r.(types.StringValue); rok {
			switch {
			case ls.Value < rs.Value:
				return -1, nil
			case ls.Value > rs.Value:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	return 0, fmt.Errorf("memory: cannot compare %T and %T", l, r)
}

func asFloat(v types.DataValue) (float64, bool) {
	switch t := v.(type) {
	case types.Int8Value:
		return float64(t), true
	case types.Int16Value:
		return float64(t), true
	case types.Int32Value:
		return float64(t), true
	case types.Int64Value:
		return float64(t), true
	case types.UInt8Value:
		return float64(t), true
	case types.UInt16Value:
		return float64(t), true
	case types.UInt32Value:
		return float64(t), true
	case types.UInt64Value:
		return float64(t), true
	case types.Float32Value:
		return float64(t), true
	case types.Float64Value:
		return float64(t), true
	default:
		return 0, false
	}
}

// pushable reports whether expr contains only node kinds this connector
// can evaluate: constants, parameters, attributes, is-(not)-null/not,
// and and/or/comparison binary ops. Anything else (function calls,
// aggregates, case expressions, casts) is left for the caller to apply
// locally.
func pushable(expr sqlil.Expr) bool {
	switch e := expr.(type) {
	case sqlil.Constant, sqlil.Parameter, sqlil.Attribute:
		return true
	case sqlil.UnaryOp:
		switch e.Op {
		case sqlil.UnaryIsNull, sqlil.UnaryIsNotNull, sqlil.UnaryNot:
			return pushable(e.Expr)
		}
		return false
	case sqlil.BinaryOp:
		switch e.Op {
		case sqlil.BinaryAnd, sqlil.BinaryOr, sqlil.BinaryEq, sqlil.BinaryNotEq,
			sqlil.BinaryLt, sqlil.BinaryLtEq, sqlil.BinaryGt, sqlil.BinaryGtEq:
			return pushable(e.Left) && pushable(e.Right)
		}
		return false
	default:
		return false
	}
}
