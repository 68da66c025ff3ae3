package avro

import (
	"encoding/json"
	"fmt"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/types"
)

type avroRecordSchema struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Fields []avroField `json:"fields"`
}

type avroField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

// attributesFromSchema parses an Avro record schema (the JSON string
// goavro.Codec.Schema() returns) into catalog.Attributes in field
// order. Only primitive types and ["null", primitive] unions are
// understood — nested records/arrays/maps are rejected rather than
// silently dropped, since there's no sensible flat-row representation
// for them here.
func attributesFromSchema(schemaJSON string) ([]catalog.Attribute, error) {
	var s avroRecordSchema
	if err := json.Unmarshal([]byte(schemaJSON), &s); err != nil {
		return nil, fmt.Errorf("avro: parsing schema: %w", err)
	}
	if s.Type != "record" {
		return nil, fmt.Errorf("avro: only record schemas are supported, got %q", s.Type)
	}

	attrs := make([]catalog.Attribute, 0, len(s.Fields))
	for _, f := range s.Fields {
		dt, nullable, err := parseFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("avro: field %q: %w", f.Name, err)
		}
		attrs = append(attrs, catalog.Attribute{Name: f.Name, Type: dt, Nullable: nullable})
	}
	return attrs, nil
}

func parseFieldType(raw json.RawMessage) (types.DataType, bool, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return types.DataType{}, false, err
	}

	switch t := v.(type) {
	case string:
		dt, err := primitiveType(t)
		return dt, t == "null", err
	case []interface{}:
		nullable := false
		var resolved *types.DataType
		for _, branch := range t {
			name, ok := branch.(string)
			if !ok {
				return types.DataType{}, false, fmt.Errorf("unsupported union branch %v", branch)
			}
			if name == "null" {
				nullable = true
				continue
			}
			dt, err := primitiveType(name)
			if err != nil {
				return types.DataType{}, false, err
			}
			resolved = &dt
		}
		if resolved == nil {
			return types.Null(), true, nil
		}
		return *resolved, nullable, nil
	default:
		return types.DataType{}, false, fmt.Errorf("unsupported field type %s", raw)
	}
}

func primitiveType(name string) (types.DataType, error) {
	switch name {
	case "null":
		return types.Null(), nil
	case "boolean":
		return types.Boolean(), nil
	case "int":
		return types.Int32(), nil
	case "long":
		return types.Int64(), nil
	case "float":
		return types.Float32Type(), nil
	case "double":
		return types.Float64Type(), nil
	case "bytes":
		return types.Binary(), nil
	case "string":
		return types.Utf8String(0, "UTF-8"), nil
	default:
		return types.DataType{}, fmt.Errorf("unsupported avro primitive type %q", name)
	}
}

// nativeToValue converts one goavro-decoded field value into the
// DataValue its attribute's declared type expects. Union fields decode
// as a single-key map {"<branch>": value} (or nil for the null
// branch); bare fields decode as the native Go type directly.
func nativeToValue(native interface{}, dt types.DataType) (types.DataValue, error) {
	if native == nil {
		return types.NullValue{T: dt}, nil
	}
	if m, ok := native.(map[string]interface{}); ok {
		for _, inner := range m {
			return nativeToValue(inner, dt)
		}
		return types.NullValue{T: dt}, nil
	}

	switch dt.Kind {
	case types.KindNull:
		return types.NullValue{T: dt}, nil
	case types.KindBoolean:
		b, ok := native.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", native)
		}
		return types.BoolValue(b), nil
	case types.KindInt32:
		n, ok := native.(int32)
		if !ok {
			return nil, fmt.Errorf("expected int32, got %T", native)
		}
		return types.Int32Value(n), nil
	case types.KindInt64:
		n, ok := native.(int64)
		if !ok {
			return nil, fmt.Errorf("expected int64, got %T", native)
		}
		return types.Int64Value(n), nil
	case types.KindFloat32:
		n, ok := native.(float32)
		if !ok {
			return nil, fmt.Errorf("expected float32, got %T", native)
		}
		return types.Float32Value(n), nil
	case types.KindFloat64:
		n, ok := native.(float64)
		if !ok {
			return nil, fmt.Errorf("expected float64, got %T", native)
		}
		return types.Float64Value(n), nil
	case types.KindBinary:
		b, ok := native.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", native)
		}
		return types.BinaryValue(b), nil
	case types.KindUtf8String:
		s, ok := native.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", native)
		}
		return types.StringValue{Value: s, Encoding: "UTF-8"}, nil
	default:
		return nil, fmt.Errorf("unsupported target kind %s", dt.Kind)
	}
}
