package types

import (
	"time"

	"github.com/google/uuid"
)

// DataValue is a tagged union over every scalar value Ansilo can carry
// across a connector boundary. Concrete implementations are value types
// (not pointers) so that equality and copying behave as expected for
// query parameters and row cells.
type DataValue interface {
	// Type returns the exact static type of the value.
	Type() DataType
	// IsNull reports whether this is the null value for its type.
	IsNull() bool
}

// NullValue is the null value for a declared column/param type. It keeps
// the target type tag so a reader always knows the column type without
// needing the payload (spec.md §4.A: Null coerces into any type, remains
// Null with the target tag).
type NullValue struct{ T DataType }

func (v NullValue) Type() DataType { return v.T }
func (v NullValue) IsNull() bool   { return true }

type BoolValue bool

func (v BoolValue) Type() DataType { return Boolean() }
func (v BoolValue) IsNull() bool   { return false }

type Int8Value int8

func (v Int8Value) Type() DataType { return Int8() }
func (v Int8Value) IsNull() bool   { return false }

type Int16Value int16

func (v Int16Value) Type() DataType { return Int16() }
func (v Int16Value) IsNull() bool   { return false }

type Int32Value int32

func (v Int32Value) Type() DataType { return Int32() }
func (v Int32Value) IsNull() bool   { return false }

type Int64Value int64

func (v Int64Value) Type() DataType { return Int64() }
func (v Int64Value) IsNull() bool   { return false }

type UInt8Value uint8

func (v UInt8Value) Type() DataType { return UInt8() }
func (v UInt8Value) IsNull() bool   { return false }

type UInt16Value uint16

func (v UInt16Value) Type() DataType { return UInt16() }
func (v UInt16Value) IsNull() bool   { return false }

type UInt32Value uint32

func (v UInt32Value) Type() DataType { return UInt32() }
func (v UInt32Value) IsNull() bool   { return false }

type UInt64Value uint64

func (v UInt64Value) Type() DataType { return UInt64() }
func (v UInt64Value) IsNull() bool   { return false }

type Float32Value float32

func (v Float32Value) Type() DataType { return Float32Type() }
func (v Float32Value) IsNull() bool   { return false }

type Float64Value float64

func (v Float64Value) Type() DataType { return Float64Type() }
func (v Float64Value) IsNull() bool   { return false }

// DecimalValue is a fixed-point decimal: value == Unscaled * 10^-Scale.
type DecimalValue struct {
	Unscaled  int64
	Precision int
	Scale     int
}

func (v DecimalValue) Type() DataType { return Decimal(v.Precision, v.Scale) }
func (v DecimalValue) IsNull() bool   { return false }

type StringValue struct {
	Value    string
	Encoding string
}

func (v StringValue) Type() DataType {
	return Utf8String(len([]rune(v.Value)), v.Encoding)
}
func (v StringValue) IsNull() bool { return false }

type BinaryValue []byte

func (v BinaryValue) Type() DataType { return Binary() }
func (v BinaryValue) IsNull() bool   { return false }

type JSONValue string // canonical encoded JSON text

func (v JSONValue) Type() DataType { return JSON() }
func (v JSONValue) IsNull() bool   { return false }

// DateValue is days since 1970-01-01 (spec.md §6).
type DateValue int32

func (v DateValue) Type() DataType { return Date() }
func (v DateValue) IsNull() bool   { return false }

func (v DateValue) Time() time.Time {
	return time.Unix(0, 0).UTC().AddDate(0, 0, int(v))
}

// TimeValue is microseconds since midnight (spec.md §6).
type TimeValue int64

func (v TimeValue) Type() DataType { return Time() }
func (v TimeValue) IsNull() bool   { return false }

// DateTimeValue is microseconds since 1970-01-01T00:00:00 (spec.md §6).
type DateTimeValue int64

func (v DateTimeValue) Type() DataType { return DateTime() }
func (v DateTimeValue) IsNull() bool   { return false }

func (v DateTimeValue) Time() time.Time {
	return time.UnixMicro(int64(v)).UTC()
}

// DateTimeWithTZValue carries a microsecond epoch plus an IANA zone name.
type DateTimeWithTZValue struct {
	Micros int64
	Zone   string
}

func (v DateTimeWithTZValue) Type() DataType { return DateTimeWithTZ(v.Zone) }
func (v DateTimeWithTZValue) IsNull() bool   { return false }

func (v DateTimeWithTZValue) Time() (time.Time, error) {
	loc, err := time.LoadLocation(v.Zone)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(v.Micros).In(loc), nil
}

type UUIDValue uuid.UUID

func (v UUIDValue) Type() DataType { return UUID() }
func (v UUIDValue) IsNull() bool   { return false }
