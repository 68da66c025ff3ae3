package avro

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/linkedin/goavro/v2"

	"github.com/ansilo-run/ansilo/internal/codec"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/sqlil"
	"github.com/ansilo-run/ansilo/internal/types"
)

// handle is this connector's QueryHandle: Prepared -> WritingParams ->
// Executed -> Reading. Avro queries have no filter pushdown and Execute
// handles only plain attribute projections, so in practice their
// parameter structure is empty; the handle still passes through the
// WritingParams state.
type handle struct {
	conn      *Connection
	query     *compiledQuery
	structure types.QueryInputStructure
	buf       []byte
}

func newHandle(conn *Connection, q *compiledQuery) *handle {
	return &handle{conn: conn, query: q, structure: paramStructure(q.sel.Exprs())}
}

func (h *handle) GetStructure() types.QueryInputStructure { return h.structure }

func (h *handle) Write(p []byte) (int, error) {
	h.buf = append(h.buf, p...)
	return len(p), nil
}

func (h *handle) Restart(ctx context.Context) error {
	h.buf = nil
	return nil
}

func (h *handle) Logged() string { return h.query.Logged() }

func (h *handle) Close() error { return nil }

func (h *handle) Execute(ctx context.Context) (connector.ResultSet, error) {
	params, err := h.decodeParams()
	if err != nil {
		return nil, fmt.Errorf("avro: decoding bound parameters: %w", err)
	}

	f, err := os.Open(h.conn.path(h.query.entity.ID))
	if err != nil {
		return nil, fmt.Errorf("avro: opening %s: %w", h.query.entity.ID, err)
	}
	defer f.Close()

	reader, err := goavro.NewOCFReader(f)
	if err != nil {
		return nil, fmt.Errorf("avro: reading %s: %w", h.query.entity.ID, err)
	}

	projection := h.query.sel.Projection
	if len(projection) == 0 {
		for _, attr := range h.query.entity.Attributes {
			projection = append(projection, sqlil.Projection{Expr: sqlil.Attribute{Entity: h.query.entity.ID, Name: attr.Name}})
		}
	}
	structure := make(types.RowStructure, len(projection))
	for i, p := range projection {
		colType := types.Null()
		if attrExpr, ok := p.Expr.(sqlil.Attribute); ok {
			if a, ok2 := h.query.entity.Attribute(attrExpr.Name); ok2 {
				colType = a.Type
			}
		}
		structure[i] = types.Column{Name: projectionName(p), Type: colType}
	}

	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	for reader.Scan() {
		native, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("avro: reading record: %w", err)
		}
		record, ok := native.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("avro: expected a record, got %T", native)
		}

		row := make([]types.DataValue, len(projection))
		for i, p := range projection {
			attrExpr, ok := p.Expr.(sqlil.Attribute)
			if !ok {
				return nil, fmt.Errorf("avro: only plain column projections are supported")
			}
			attr, ok := h.query.entity.Attribute(attrExpr.Name)
			if !ok {
				return nil, fmt.Errorf("avro: unknown attribute %q", attrExpr.Name)
			}
			v, err := nativeToValue(record[attrExpr.Name], attr.Type)
			if err != nil {
				return nil, fmt.Errorf("avro: field %q: %w", attrExpr.Name, err)
			}
			row[i] = v
		}
		_ = params // no pushed-down predicates reference params in this connector yet
		if err := codec.EncodeRow(w, structure, row); err != nil {
			return nil, err
		}
	}

	return &resultSet{structure: structure, r: bytes.NewReader(buf.Bytes())}, nil
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

func projectionName(p sqlil.Projection) string {
	if p.Alias != "" {
		return p.Alias
	}
	if attr, ok := p.Expr.(sqlil.Attribute); ok {
		return attr.Name
	}
	return "expr"
}

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

// resultSet streams the codec-encoded rows built eagerly in Execute.
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
