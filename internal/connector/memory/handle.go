package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ansilo-run/ansilo/internal/codec"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

// handle is this connector's QueryHandle. Prepared -> WritingParams ->
// Executed -> Reading, with Restart rewinding to WritingParams — the
// same state machine connector.QueryHandle documents, backed here by a
// plain byte buffer rather than a network round trip.
type handle struct {
	conn      *Connection
	query     *compiledQuery
	structure types.QueryInputStructure
	buf       []byte
	result    *resultSet
}

func newHandle(conn *Connection, q *compiledQuery) *handle {
	return &handle{
		conn:      conn,
		query:     q,
		structure: paramStructure(q.query.Exprs()),
	}
}

func (h *handle) GetStructure() types.QueryInputStructure {
	return h.structure
}

func (h *handle) Write(p []byte) (int, error) {
	h.buf = append(h.buf, p...)
	return len(p), nil
}

func (h *handle) Restart(ctx context.Context) error {
	h.buf = nil
	h.result = nil
	return nil
}

func (h *handle) Logged() string {
	return h.query.Logged()
}

func (h *handle) Close() error {
	h.result = nil
	return nil
}

func (h *handle) Execute(ctx context.Context) (connector.ResultSet, error) {
	params, err := h.decodeParams()
	if err != nil {
		return nil, fmt.Errorf("memory: decoding bound parameters: %w", err)
	}

	switch v := h.query.query.(type) {
	case sqlil.Select:
		return h.executeSelect(v, params)
	case sqlil.Insert:
		return h.executeInsert(v, params)
	case sqlil.BulkInsert:
		return h.executeBulkInsert(v, params)
	case sqlil.Update:
		return h.executeUpdate(v, params)
	case sqlil.Delete:
		return h.executeDelete(v, params)
	default:
		return nil, fmt.Errorf("memory: unsupported query type %T", h.query.query)
	}
}

func (h *handle) decodeParams() (map[int]types.DataValue, error) {
	out := make(map[int]types.DataValue, len(h.structure))
	if len(h.structure) == 0 {
		return out, nil
	}
	r := codec.NewReader(bytes.NewReader(h.buf))
	for _, p := range h.structure {
		v, err := r.ReadValue(p.Type)
		if err != nil {
			return nil, err
		}
		out[p.ID] = v
	}
	return out, nil
}

func (h *handle) executeSelect(sel sqlil.Select, params map[int]types.DataValue) (connector.ResultSet, error) {
	entity := h.query.entity
	tables := h.conn.view()
	t, ok := tables[entity.ID]
	var rows [][]types.DataValue
	var columns []string
	if ok {
		rows, columns = t.rows, t.columns
	}

	matched := make([][]types.DataValue, 0, len(rows))
	for _, row := range rows {
		rowMap := rowAsMap(columns, row)
		ok, err := matchesWhere(sel.Where, rowMap, params)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	if sel.Skip != nil && *sel.Skip > 0 {
		skip := int(*sel.Skip)
		if skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[skip:]
		}
	}
	if sel.Limit != nil && int(*sel.Limit) < len(matched) {
		matched = matched[:int(*sel.Limit)]
	}

	projection := sel.Projection
	if len(projection) == 0 {
		for _, attr := range entity.Attributes {
			projection = append(projection, sqlil.Projection{Expr: sqlil.Attribute{Entity: entity.ID, Name: attr.Name}})
		}
	}

	structure := make(types.RowStructure, len(projection))
	outRows := make([][]types.DataValue, len(matched))
	for i, row := range matched {
		rowMap := rowAsMap(columns, row)
		outRow := make([]types.DataValue, len(projection))
		for j, p := range projection {
			v, err := evalExpr(p.Expr, rowMap, params)
			if err != nil {
				return nil, err
			}
			outRow[j] = v
			if i == 0 {
				structure[j] = types.Column{Name: projectionName(p), Type: v.Type()}
			}
		}
		outRows[i] = outRow
	}
	if len(matched) == 0 {
		for j, p := range projection {
			colType := types.Null()
			if attrExpr, ok := p.Expr.(sqlil.Attribute); ok {
				if a, ok2 := entity.Attribute(attrExpr.Name); ok2 {
					colType = a.Type
				}
			}
			structure[j] = types.Column{Name: projectionName(p), Type: colType}
		}
	}

	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	for _, row := range outRows {
		if err := codec.EncodeRow(w, structure, row); err != nil {
			return nil, err
		}
	}
	return &resultSet{structure: structure, r: bytes.NewReader(buf.Bytes())}, nil
}

func (h *handle) executeInsert(ins sqlil.Insert, params map[int]types.DataValue) (connector.ResultSet, error) {
	columns := make([]string, len(ins.Columns))
	values := make([]types.DataValue, len(ins.Columns))
	for i, c := range ins.Columns {
		v, err := evalExpr(c.Value, nil, params)
		if err != nil {
			return nil, err
		}
		columns[i] = c.Name
		values[i] = v
	}
	h.conn.mutate(func(tables map[string]*table) (map[string]*table, int) {
		return insertRows(tables, ins.Entity, columns, [][]types.DataValue{values}), 1
	})
	return emptyResultSet(), nil
}

func (h *handle) executeBulkInsert(b sqlil.BulkInsert, params map[int]types.DataValue) (connector.ResultSet, error) {
	newRows := make([][]types.DataValue, len(b.Rows))
	for i, row := range b.Rows {
		values := make([]types.DataValue, len(row))
		for j, e := range row {
			v, err := evalExpr(e, nil, params)
			if err != nil {
				return nil, err
			}
			values[j] = v
		}
		newRows[i] = values
	}
	h.conn.mutate(func(tables map[string]*table) (map[string]*table, int) {
		return insertRows(tables, b.Entity, b.Columns, newRows), len(newRows)
	})
	return emptyResultSet(), nil
}

func (h *handle) executeUpdate(u sqlil.Update, params map[int]types.DataValue) (connector.ResultSet, error) {
	h.conn.mutate(func(tables map[string]*table) (map[string]*table, int) {
		t, ok := tables[u.Entity]
		if !ok {
			return tables, 0
		}
		match := func(row []types.DataValue) bool {
			ok, err := matchesWhere(u.Where, rowAsMap(t.columns, row), params)
			return err == nil && ok
		}
		apply := func(row []types.DataValue) []types.DataValue {
			out := append([]types.DataValue(nil), row...)
			rowMap := rowAsMap(t.columns, row)
			for _, c := range u.Columns {
				v, err := evalExpr(c.Value, rowMap, params)
				if err != nil {
					continue
				}
				for i, col := range t.columns {
					if col == c.Name {
						out[i] = v
					}
				}
			}
			return out
		}
		return updateRows(tables, u.Entity, match, apply)
	})
	return emptyResultSet(), nil
}

func (h *handle) executeDelete(d sqlil.Delete, params map[int]types.DataValue) (connector.ResultSet, error) {
	h.conn.mutate(func(tables map[string]*table) (map[string]*table, int) {
		t, ok := tables[d.Entity]
		if !ok {
			return tables, 0
		}
		keep := func(row []types.DataValue) bool {
			ok, err := matchesWhere(d.Where, rowAsMap(t.columns, row), params)
			return err != nil || !ok
		}
		return deleteRows(tables, d.Entity, keep)
	})
	return emptyResultSet(), nil
}

func matchesWhere(where []sqlil.Expr, row map[string]types.DataValue, params map[int]types.DataValue) (bool, error) {
	for _, expr := range where {
		v, err := evalExpr(expr, row, params)
		if err != nil {
			return false, err
		}
		b, ok := v.(types.BoolValue)
		if !ok {
			return false, fmt.Errorf("memory: WHERE clause did not evaluate to a boolean")
		}
		if !bool(b) {
			return false, nil
		}
	}
	return true, nil
}

func rowAsMap(columns []string, row []types.DataValue) map[string]types.DataValue {
	out := make(map[string]types.DataValue, len(columns))
	for i, c := range columns {
		if i < len(row) {
			out[c] = row[i]
		}
	}
	return out
}

func projectionName(p sqlil.Projection) string {
	if p.Alias != "" {
		return p.Alias
	}
	if attr, ok := p.Expr.(sqlil.Attribute); ok {
		return attr.Name
	}
	return "expr"
}

// paramStructure walks every expression reachable from a query and
// returns the ordered parameter structure, duplicates included — the
// same id may appear more than once and the caller writes the same
// bound value to each occurrence (spec.md §4.A invariant 3).
func paramStructure(exprs []sqlil.Expr) types.QueryInputStructure {
	var out types.QueryInputStructure
	for _, e := range exprs {
		collectParams(e, &out)
	}
	return out
}

func collectParams(e sqlil.Expr, out *types.QueryInputStructure) {
	switch v := e.(type) {
	case sqlil.Parameter:
		*out = append(*out, types.Param{ID: v.ID, Type: v.Type})
	case sqlil.UnaryOp:
		collectParams(v.Expr, out)
	case sqlil.BinaryOp:
		collectParams(v.Left, out)
		collectParams(v.Right, out)
	case sqlil.Cast:
		collectParams(v.Inner, out)
	case sqlil.FunctionCall:
		for _, a := range v.Args {
			collectParams(a, out)
		}
	case sqlil.Aggregate:
		if v.Arg != nil {
			collectParams(v.Arg, out)
		}
	case sqlil.Case:
		for _, w := range v.Whens {
			collectParams(w.When, out)
			collectParams(w.Then, out)
		}
		if v.Else != nil {
			collectParams(v.Else, out)
		}
	}
}

// resultSet is this connector's ResultSet: rows encoded eagerly through
// the Row Codec at Execute time, since an in-memory table has no
// benefit from streaming lazily.
type resultSet struct {
	structure types.RowStructure
	r         *bytes.Reader
}

func (rs *resultSet) GetStructure() types.RowStructure { return rs.structure }

func (rs *resultSet) Read(p []byte) (int, error) {
	if rs.r == nil {
		return 0, io.EOF
	}
	return rs.r.Read(p)
}

func (rs *resultSet) Close() error { return nil }

func emptyResultSet() *resultSet {
	return &resultSet{structure: types.RowStructure{}, r: bytes.NewReader(nil)}
}
