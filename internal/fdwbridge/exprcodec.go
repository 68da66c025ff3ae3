package fdwbridge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ansilo-run/ansilo/internal/ansierr"
	"github.com/ansilo-run/ansilo/internal/codec"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

// sqlil.Expr/Query are interfaces, so they don't round-trip through
// encoding/json on their own. exprWire tags each node with its concrete
// kind so unmarshalling can dispatch back to the right Go type; a
// Constant's payload is the same Row Codec byte encoding already used
// for row data (internal/codec), not a second ad hoc scheme.
type exprWire struct {
	Kind string          `json:"kind"`
	Node json.RawMessage `json:"node"`
}

func marshalExpr(e sqlil.Expr) (json.RawMessage, error) {
	if e == nil {
		return json.Marshal(nil)
	}

	var kind string
	var node any

	switch v := e.(type) {
	case sqlil.Constant:
		kind = "constant"
		var buf bytes.Buffer
		if err := codec.NewWriter(&buf).WriteValue(v.Value); err != nil {
			return nil, fmt.Errorf("encoding constant value: %w", err)
		}
		node = struct {
			Type  types.DataType `json:"type"`
			Bytes []byte         `json:"bytes"`
		}{Type: v.Value.Type(), Bytes: buf.Bytes()}

	case sqlil.Parameter:
		kind = "parameter"
		node = v

	case sqlil.Attribute:
		kind = "attribute"
		node = v

	case sqlil.Cast:
		kind = "cast"
		inner, err := marshalExpr(v.Inner)
		if err != nil {
			return nil, err
		}
		node = struct {
			Inner  json.RawMessage `json:"inner"`
			Target types.DataType  `json:"target"`
		}{Inner: inner, Target: v.Target}

	case sqlil.UnaryOp:
		kind = "unary"
		inner, err := marshalExpr(v.Expr)
		if err != nil {
			return nil, err
		}
		node = struct {
			Op   sqlil.UnaryOperator `json:"op"`
			Expr json.RawMessage     `json:"expr"`
		}{Op: v.Op, Expr: inner}

	case sqlil.BinaryOp:
		kind = "binary"
		left, err := marshalExpr(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := marshalExpr(v.Right)
		if err != nil {
			return nil, err
		}
		node = struct {
			Op    sqlil.BinaryOperator `json:"op"`
			Left  json.RawMessage      `json:"left"`
			Right json.RawMessage      `json:"right"`
		}{Op: v.Op, Left: left, Right: right}

	case sqlil.FunctionCall:
		kind = "function"
		args := make([]json.RawMessage, len(v.Args))
		for i, a := range v.Args {
			m, err := marshalExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = m
		}
		node = struct {
			Name string            `json:"name"`
			Args []json.RawMessage `json:"args"`
		}{Name: v.Name, Args: args}

	case sqlil.Aggregate:
		kind = "aggregate"
		var arg json.RawMessage
		if v.Arg != nil {
			m, err := marshalExpr(v.Arg)
			if err != nil {
				return nil, err
			}
			arg = m
		}
		node = struct {
			Func     sqlil.AggregateFunc `json:"func"`
			Arg      json.RawMessage     `json:"arg,omitempty"`
			Distinct bool                `json:"distinct"`
		}{Func: v.Func, Arg: arg, Distinct: v.Distinct}

	case sqlil.Case:
		kind = "case"
		whens := make([]struct {
			When json.RawMessage `json:"when"`
			Then json.RawMessage `json:"then"`
		}, len(v.Whens))
		for i, w := range v.Whens {
			when, err := marshalExpr(w.When)
			if err != nil {
				return nil, err
			}
			then, err := marshalExpr(w.Then)
			if err != nil {
				return nil, err
			}
			whens[i].When = when
			whens[i].Then = then
		}
		var els json.RawMessage
		if v.Else != nil {
			m, err := marshalExpr(v.Else)
			if err != nil {
				return nil, err
			}
			els = m
		}
		node = struct {
			Whens []struct {
				When json.RawMessage `json:"when"`
				Then json.RawMessage `json:"then"`
			} `json:"whens"`
			Else json.RawMessage `json:"else,omitempty"`
		}{Whens: whens, Else: els}

	default:
		return nil, fmt.Errorf("exprcodec: unknown expression node %T", e)
	}

	nodeBytes, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}
	return json.Marshal(exprWire{Kind: kind, Node: nodeBytes})
}

func unmarshalExpr(raw json.RawMessage) (sqlil.Expr, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}

	var w exprWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	switch w.Kind {
	case "constant":
		var n struct {
			Type  types.DataType `json:"type"`
			Bytes []byte         `json:"bytes"`
		}
		if err := json.Unmarshal(w.Node, &n); err != nil {
			return nil, err
		}
		val, err := codec.NewReader(bytes.NewReader(n.Bytes)).ReadValue(n.Type)
		if err != nil {
			return nil, fmt.Errorf("decoding constant value: %w", err)
		}
		return sqlil.Constant{Value: val}, nil

	case "parameter":
		var p sqlil.Parameter
		if err := json.Unmarshal(w.Node, &p); err != nil {
			return nil, err
		}
		return p, nil

	case "attribute":
		var a sqlil.Attribute
		if err := json.Unmarshal(w.Node, &a); err != nil {
			return nil, err
		}
		return a, nil

	case "cast":
		var n struct {
			Inner  json.RawMessage `json:"inner"`
			Target types.DataType  `json:"target"`
		}
		if err := json.Unmarshal(w.Node, &n); err != nil {
			return nil, err
		}
		inner, err := unmarshalExpr(n.Inner)
		if err != nil {
			return nil, err
		}
		return sqlil.Cast{Inner: inner, Target: n.Target}, nil

	case "unary":
		var n struct {
			Op   sqlil.UnaryOperator `json:"op"`
			Expr json.RawMessage     `json:"expr"`
		}
		if err := json.Unmarshal(w.Node, &n); err != nil {
			return nil, err
		}
		inner, err := unmarshalExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return sqlil.UnaryOp{Op: n.Op, Expr: inner}, nil

	case "binary":
		var n struct {
			Op    sqlil.BinaryOperator `json:"op"`
			Left  json.RawMessage      `json:"left"`
			Right json.RawMessage      `json:"right"`
		}
		if err := json.Unmarshal(w.Node, &n); err != nil {
			return nil, err
		}
		left, err := unmarshalExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := unmarshalExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return sqlil.BinaryOp{Op: n.Op, Left: left, Right: right}, nil

	case "function":
		var n struct {
			Name string            `json:"name"`
			Args []json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(w.Node, &n); err != nil {
			return nil, err
		}
		args := make([]sqlil.Expr, len(n.Args))
		for i, a := range n.Args {
			e, err := unmarshalExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = e
		}
		return sqlil.FunctionCall{Name: n.Name, Args: args}, nil

	case "aggregate":
		var n struct {
			Func     sqlil.AggregateFunc `json:"func"`
			Arg      json.RawMessage     `json:"arg,omitempty"`
			Distinct bool                `json:"distinct"`
		}
		if err := json.Unmarshal(w.Node, &n); err != nil {
			return nil, err
		}
		arg, err := unmarshalExpr(n.Arg)
		if err != nil {
			return nil, err
		}
		return sqlil.Aggregate{Func: n.Func, Arg: arg, Distinct: n.Distinct}, nil

	case "case":
		var n struct {
			Whens []struct {
				When json.RawMessage `json:"when"`
				Then json.RawMessage `json:"then"`
			} `json:"whens"`
			Else json.RawMessage `json:"else,omitempty"`
		}
		if err := json.Unmarshal(w.Node, &n); err != nil {
			return nil, err
		}
		whens := make([]sqlil.CaseWhen, len(n.Whens))
		for i, wh := range n.Whens {
			when, err := unmarshalExpr(wh.When)
			if err != nil {
				return nil, err
			}
			then, err := unmarshalExpr(wh.Then)
			if err != nil {
				return nil, err
			}
			whens[i] = sqlil.CaseWhen{When: when, Then: then}
		}
		els, err := unmarshalExpr(n.Else)
		if err != nil {
			return nil, err
		}
		return sqlil.Case{Whens: whens, Else: els}, nil

	default:
		return nil, ansierr.New(ansierr.KindProtocolViolation, "unknown expression kind %q", w.Kind)
	}
}

func marshalExprs(es []sqlil.Expr) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(es))
	for i, e := range es {
		m, err := marshalExpr(e)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

func unmarshalExprs(raws []json.RawMessage) ([]sqlil.Expr, error) {
	out := make([]sqlil.Expr, len(raws))
	for i, r := range raws {
		e, err := unmarshalExpr(r)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
