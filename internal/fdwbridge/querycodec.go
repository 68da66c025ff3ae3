package fdwbridge

import (
	"encoding/json"

	"github.com/ansilo-run/ansilo/internal/sqlil"
)

// wireSelect/wireInsert/... are the JSON-safe mirrors of the sqlil
// query types, with every Expr field routed through marshalExpr so the
// interface values inside them round-trip.

type wireProjection struct {
	Expr  json.RawMessage `json:"expr"`
	Alias string          `json:"alias"`
}

type wireJoin struct {
	Kind   sqlil.JoinKind  `json:"kind"`
	Entity string          `json:"entity"`
	Alias  string          `json:"alias"`
	On     json.RawMessage `json:"on"`
}

type wireOrderBy struct {
	Expr      json.RawMessage      `json:"expr"`
	Direction sqlil.OrderDirection `json:"direction"`
}

type wireSelect struct {
	Entity      string           `json:"entity"`
	EntityAlias string           `json:"entity_alias"`
	Joins       []wireJoin       `json:"joins"`
	Where       []json.RawMessage `json:"where"`
	GroupBy     []json.RawMessage `json:"group_by"`
	OrderBy     []wireOrderBy    `json:"order_by"`
	Limit       *int64           `json:"limit"`
	Skip        *int64           `json:"skip"`
	Projection  []wireProjection `json:"projection"`
}

func toWireSelect(s sqlil.Select) (wireSelect, error) {
	out := wireSelect{Entity: s.Entity, EntityAlias: s.EntityAlias, Limit: s.Limit, Skip: s.Skip}
	for _, j := range s.Joins {
		on, err := marshalExpr(j.On)
		if err != nil {
			return wireSelect{}, err
		}
		out.Joins = append(out.Joins, wireJoin{Kind: j.Kind, Entity: j.Entity, Alias: j.Alias, On: on})
	}
	where, err := marshalExprs(s.Where)
	if err != nil {
		return wireSelect{}, err
	}
	out.Where = where
	groupBy, err := marshalExprs(s.GroupBy)
	if err != nil {
		return wireSelect{}, err
	}
	out.GroupBy = groupBy
	for _, o := range s.OrderBy {
		e, err := marshalExpr(o.Expr)
		if err != nil {
			return wireSelect{}, err
		}
		out.OrderBy = append(out.OrderBy, wireOrderBy{Expr: e, Direction: o.Direction})
	}
	for _, p := range s.Projection {
		e, err := marshalExpr(p.Expr)
		if err != nil {
			return wireSelect{}, err
		}
		out.Projection = append(out.Projection, wireProjection{Expr: e, Alias: p.Alias})
	}
	return out, nil
}

func fromWireSelect(w wireSelect) (sqlil.Select, error) {
	out := sqlil.Select{Entity: w.Entity, EntityAlias: w.EntityAlias, Limit: w.Limit, Skip: w.Skip}
	for _, j := range w.Joins {
		on, err := unmarshalExpr(j.On)
		if err != nil {
			return sqlil.Select{}, err
		}
		out.Joins = append(out.Joins, sqlil.Join{Kind: j.Kind, Entity: j.Entity, Alias: j.Alias, On: on})
	}
	where, err := unmarshalExprs(w.Where)
	if err != nil {
		return sqlil.Select{}, err
	}
	out.Where = where
	groupBy, err := unmarshalExprs(w.GroupBy)
	if err != nil {
		return sqlil.Select{}, err
	}
	out.GroupBy = groupBy
	for _, o := range w.OrderBy {
		e, err := unmarshalExpr(o.Expr)
		if err != nil {
			return sqlil.Select{}, err
		}
		out.OrderBy = append(out.OrderBy, sqlil.OrderBy{Expr: e, Direction: o.Direction})
	}
	for _, p := range w.Projection {
		e, err := unmarshalExpr(p.Expr)
		if err != nil {
			return sqlil.Select{}, err
		}
		out.Projection = append(out.Projection, sqlil.Projection{Expr: e, Alias: p.Alias})
	}
	return out, nil
}

type wireInsertColumn struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type wireInsert struct {
	Entity  string             `json:"entity"`
	Columns []wireInsertColumn `json:"columns"`
}

func toWireInsert(i sqlil.Insert) (wireInsert, error) {
	out := wireInsert{Entity: i.Entity}
	for _, c := range i.Columns {
		v, err := marshalExpr(c.Value)
		if err != nil {
			return wireInsert{}, err
		}
		out.Columns = append(out.Columns, wireInsertColumn{Name: c.Name, Value: v})
	}
	return out, nil
}

func fromWireInsert(w wireInsert) (sqlil.Insert, error) {
	out := sqlil.Insert{Entity: w.Entity}
	for _, c := range w.Columns {
		v, err := unmarshalExpr(c.Value)
		if err != nil {
			return sqlil.Insert{}, err
		}
		out.Columns = append(out.Columns, sqlil.InsertColumn{Name: c.Name, Value: v})
	}
	return out, nil
}

type wireBulkInsert struct {
	Entity  string              `json:"entity"`
	Columns []string            `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
}

func toWireBulkInsert(b sqlil.BulkInsert) (wireBulkInsert, error) {
	out := wireBulkInsert{Entity: b.Entity, Columns: b.Columns}
	for _, row := range b.Rows {
		wr, err := marshalExprs(row)
		if err != nil {
			return wireBulkInsert{}, err
		}
		out.Rows = append(out.Rows, wr)
	}
	return out, nil
}

func fromWireBulkInsert(w wireBulkInsert) (sqlil.BulkInsert, error) {
	out := sqlil.BulkInsert{Entity: w.Entity, Columns: w.Columns}
	for _, row := range w.Rows {
		r, err := unmarshalExprs(row)
		if err != nil {
			return sqlil.BulkInsert{}, err
		}
		out.Rows = append(out.Rows, r)
	}
	return out, nil
}

type wireUpdateColumn struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type wireUpdate struct {
	Entity  string             `json:"entity"`
	Columns []wireUpdateColumn `json:"columns"`
	Where   []json.RawMessage  `json:"where"`
}

func toWireUpdate(u sqlil.Update) (wireUpdate, error) {
	out := wireUpdate{Entity: u.Entity}
	for _, c := range u.Columns {
		v, err := marshalExpr(c.Value)
		if err != nil {
			return wireUpdate{}, err
		}
		out.Columns = append(out.Columns, wireUpdateColumn{Name: c.Name, Value: v})
	}
	where, err := marshalExprs(u.Where)
	if err != nil {
		return wireUpdate{}, err
	}
	out.Where = where
	return out, nil
}

func fromWireUpdate(w wireUpdate) (sqlil.Update, error) {
	out := sqlil.Update{Entity: w.Entity}
	for _, c := range w.Columns {
		v, err := unmarshalExpr(c.Value)
		if err != nil {
			return sqlil.Update{}, err
		}
		out.Columns = append(out.Columns, sqlil.UpdateColumn{Name: c.Name, Value: v})
	}
	where, err := unmarshalExprs(w.Where)
	if err != nil {
		return sqlil.Update{}, err
	}
	out.Where = where
	return out, nil
}

type wireDelete struct {
	Entity string            `json:"entity"`
	Where  []json.RawMessage `json:"where"`
}

func toWireDelete(d sqlil.Delete) (wireDelete, error) {
	where, err := marshalExprs(d.Where)
	if err != nil {
		return wireDelete{}, err
	}
	return wireDelete{Entity: d.Entity, Where: where}, nil
}

func fromWireDelete(w wireDelete) (sqlil.Delete, error) {
	where, err := unmarshalExprs(w.Where)
	if err != nil {
		return sqlil.Delete{}, err
	}
	return sqlil.Delete{Entity: w.Entity, Where: where}, nil
}
