// Package types implements Ansilo's typed value model: a wire-stable set
// of scalar types and values with an explicit coercion table. Every value
// carries an exact static type discoverable without consulting the payload.
package types

import "fmt"

// Kind identifies the variant of a DataType. It is a closed enum — new
// kinds require a new case everywhere a switch on Kind is exhaustive.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindDecimal
	KindUtf8String
	KindBinary
	KindJSON
	KindDate
	KindTime
	KindDateTime
	KindDateTimeWithTZ
	KindUUID
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUInt8:
		return "uint8"
	case KindUInt16:
		return "uint16"
	case KindUInt32:
		return "uint32"
	case KindUInt64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindDecimal:
		return "decimal"
	case KindUtf8String:
		return "utf8_string"
	case KindBinary:
		return "binary"
	case KindJSON:
		return "json"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindDateTime:
		return "datetime"
	case KindDateTimeWithTZ:
		return "datetime_tz"
	case KindUUID:
		return "uuid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DataType is the exact static type of a DataValue. Precision/Scale apply
// only to KindDecimal; StringLength only to KindUtf8String. Encoding is
// the string encoding for KindUtf8String and, for KindDateTimeWithTZ, the
// IANA zone name (see DateTimeWithTZ) that values coerce into.
type DataType struct {
	Kind         Kind
	Precision    int
	Scale        int
	StringLength int    // 0 means unbounded
	Encoding     string // e.g. "UTF-8"; empty means unspecified/default
}

func Null() DataType               { return DataType{Kind: KindNull} }
func Boolean() DataType             { return DataType{Kind: KindBoolean} }
func Int8() DataType                { return DataType{Kind: KindInt8} }
func Int16() DataType               { return DataType{Kind: KindInt16} }
func Int32() DataType               { return DataType{Kind: KindInt32} }
func Int64() DataType               { return DataType{Kind: KindInt64} }
func UInt8() DataType               { return DataType{Kind: KindUInt8} }
func UInt16() DataType              { return DataType{Kind: KindUInt16} }
func UInt32() DataType              { return DataType{Kind: KindUInt32} }
func UInt64() DataType              { return DataType{Kind: KindUInt64} }
func Float32Type() DataType         { return DataType{Kind: KindFloat32} }
func Float64Type() DataType         { return DataType{Kind: KindFloat64} }
func Decimal(precision, scale int) DataType {
	return DataType{Kind: KindDecimal, Precision: precision, Scale: scale}
}
func Utf8String(length int, encoding string) DataType {
	return DataType{Kind: KindUtf8String, StringLength: length, Encoding: encoding}
}
func Binary() DataType      { return DataType{Kind: KindBinary} }
func JSON() DataType        { return DataType{Kind: KindJSON} }
func Date() DataType        { return DataType{Kind: KindDate} }
func Time() DataType        { return DataType{Kind: KindTime} }
func DateTime() DataType    { return DataType{Kind: KindDateTime} }
func DateTimeWithTZ(tz string) DataType {
	return DataType{Kind: KindDateTimeWithTZ, Encoding: tz}
}
func UUID() DataType { return DataType{Kind: KindUUID} }

// IntegerWidth returns the bit width of an integer Kind, or 0 if not one.
func (k Kind) IntegerWidth() int {
	switch k {
	case KindInt8, KindUInt8:
		return 8
	case KindInt16, KindUInt16:
		return 16
	case KindInt32, KindUInt32:
		return 32
	case KindInt64, KindUInt64:
		return 64
	default:
		return 0
	}
}

func (k Kind) IsInteger() bool {
	return k.IntegerWidth() > 0
}

func (k Kind) IsSignedInteger() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	default:
		return false
	}
}

func (k Kind) IsUnsignedInteger() bool {
	switch k {
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return true
	default:
		return false
	}
}
