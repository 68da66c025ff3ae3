package types

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Coerce implements spec.md §4.A's try_coerce_into: an explicit partial
// function from (value, target type) to a value of the target type or an
// error. It never silently loses data outside documented lossy narrowings
// (numeric narrowing that still fits, string formatting).
//
// Implemented as a free function rather than a method on DataValue so the
// dispatch table lives in one place instead of being smeared across every
// concrete value type — the same shape as config.TenantConfig's
// Effective* accessors centralising a lookup instead of duplicating it.
func Coerce(v DataValue, target DataType) (DataValue, error) {
	if v.IsNull() {
		return NullValue{T: target}, nil
	}

	switch target.Kind {
	case KindBoolean:
		return coerceToBool(v)
	case KindInt8, KindInt16, KindInt32, KindInt64, KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return coerceToInteger(v, target.Kind)
	case KindFloat32:
		f, err := coerceToFloat64(v)
		if err != nil {
			return nil, err
		}
		return Float32Value(float32(f)), nil
	case KindFloat64:
		f, err := coerceToFloat64(v)
		if err != nil {
			return nil, err
		}
		return Float64Value(f), nil
	case KindDecimal:
		return coerceToDecimal(v, target.Precision, target.Scale)
	case KindUtf8String:
		s, err := coerceToString(v)
		if err != nil {
			return nil, err
		}
		return StringValue{Value: norm.NFC.String(s), Encoding: target.Encoding}, nil
	case KindJSON:
		s, err := coerceToString(v)
		if err != nil {
			return nil, err
		}
		return JSONValue(s), nil
	case KindBinary:
		switch t := v.(type) {
		case BinaryValue:
			return t, nil
		case StringValue:
			return BinaryValue([]byte(t.Value)), nil
		}
		return nil, coercionError(v, target)
	case KindUUID:
		switch t := v.(type) {
		case UUIDValue:
			return t, nil
		case StringValue:
			u, err := parseUUID(t.Value)
			if err != nil {
				return nil, fmt.Errorf("coercing %q to uuid: %w", t.Value, err)
			}
			return u, nil
		}
		return nil, coercionError(v, target)
	case KindDate, KindTime, KindDateTime, KindDateTimeWithTZ:
		return coerceTemporal(v, target)
	case KindNull:
		return NullValue{T: target}, nil
	default:
		return nil, coercionError(v, target)
	}
}

func coercionError(v DataValue, target DataType) error {
	return fmt.Errorf("cannot coerce %s value into %s", v.Type().Kind, target.Kind)
}

func coerceToBool(v DataValue) (DataValue, error) {
	switch t := v.(type) {
	case BoolValue:
		return t, nil
	case StringValue:
		switch strings.ToLower(strings.TrimSpace(t.Value)) {
		case "true", "t", "1":
			return BoolValue(true), nil
		case "false", "f", "0":
			return BoolValue(false), nil
		}
		return nil, fmt.Errorf("cannot coerce string %q to boolean", t.Value)
	}
	i, err := coerceToInt64(v)
	if err == nil {
		return BoolValue(i != 0), nil
	}
	return nil, coercionError(v, Boolean())
}

// coerceToInt64 extracts an exact int64 representation of an integer or
// boolean value, used as a pivot before width-narrowing checks.
func coerceToInt64(v DataValue) (int64, error) {
	switch t := v.(type) {
	case BoolValue:
		if t {
			return 1, nil
		}
		return 0, nil
	case Int8Value:
		return int64(t), nil
	case Int16Value:
		return int64(t), nil
	case Int32Value:
		return int64(t), nil
	case Int64Value:
		return int64(t), nil
	case UInt8Value:
		return int64(t), nil
	case UInt16Value:
		return int64(t), nil
	case UInt32Value:
		return int64(t), nil
	case UInt64Value:
		if t > (1<<63 - 1) {
			return 0, fmt.Errorf("uint64 value %d does not fit in int64", uint64(t))
		}
		return int64(t), nil
	case StringValue:
		s := strings.TrimSpace(t.Value)
		if s == "" {
			return 0, fmt.Errorf("cannot parse empty string as integer")
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q as integer: %w", t.Value, err)
		}
		return n, nil
	case Float32Value:
		f := float64(t)
		if f != float64(int64(f)) {
			return 0, fmt.Errorf("float %v is not integral", f)
		}
		return int64(f), nil
	case Float64Value:
		if float64(t) != float64(int64(t)) {
			return 0, fmt.Errorf("float %v is not integral", float64(t))
		}
		return int64(t), nil
	}
	return 0, fmt.Errorf("cannot coerce %s to integer", v.Type().Kind)
}

func coerceToInteger(v DataValue, target Kind) (DataValue, error) {
	n, err := coerceToInt64(v)
	if err != nil {
		return nil, err
	}
	width := target.IntegerWidth()
	if target.IsUnsignedInteger() {
		if n < 0 {
			return nil, fmt.Errorf("value %d does not fit in unsigned %s", n, target)
		}
		max := uint64(1)<<uint(width) - 1
		if width == 64 {
			max = ^uint64(0)
		}
		if uint64(n) > max {
			return nil, fmt.Errorf("value %d overflows %s", n, target)
		}
		return unsignedValue(target, uint64(n)), nil
	}

	if width < 64 {
		min := int64(-1) << uint(width-1)
		max := int64(1)<<uint(width-1) - 1
		if n < min || n > max {
			return nil, fmt.Errorf("value %d overflows %s", n, target)
		}
	}
	return signedValue(target, n), nil
}

func signedValue(k Kind, n int64) DataValue {
	switch k {
	case KindInt8:
		return Int8Value(n)
	case KindInt16:
		return Int16Value(n)
	case KindInt32:
		return Int32Value(n)
	default:
		return Int64Value(n)
	}
}

func unsignedValue(k Kind, n uint64) DataValue {
	switch k {
	case KindUInt8:
		return UInt8Value(n)
	case KindUInt16:
		return UInt16Value(n)
	case KindUInt32:
		return UInt32Value(n)
	default:
		return UInt64Value(n)
	}
}

func coerceToFloat64(v DataValue) (float64, error) {
	switch t := v.(type) {
	case Float32Value:
		return float64(t), nil
	case Float64Value:
		return float64(t), nil
	case StringValue:
		s := strings.TrimSpace(t.Value)
		if s == "" {
			return 0, fmt.Errorf("cannot parse empty string as float")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q as float: %w", t.Value, err)
		}
		return f, nil
	case DecimalValue:
		return float64(t.Unscaled) / pow10(t.Scale), nil
	}
	n, err := coerceToInt64(v)
	if err == nil {
		return float64(n), nil
	}
	return 0, fmt.Errorf("cannot coerce %s to float", v.Type().Kind)
}

func pow10(n int) float64 {
	f := 1.0
	for i := 0; i < n; i++ {
		f *= 10
	}
	return f
}

func coerceToDecimal(v DataValue, precision, scale int) (DataValue, error) {
	f, err := coerceToFloat64(v)
	if err != nil {
		return nil, err
	}
	unscaled := int64(f*pow10(scale) + sign(f)*0.5)
	return DecimalValue{Unscaled: unscaled, Precision: precision, Scale: scale}, nil
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func coerceToString(v DataValue) (string, error) {
	switch t := v.(type) {
	case StringValue:
		return t.Value, nil
	case BoolValue:
		if t {
			return "true", nil
		}
		return "false", nil
	case Int8Value:
		return strconv.FormatInt(int64(t), 10), nil
	case Int16Value:
		return strconv.FormatInt(int64(t), 10), nil
	case Int32Value:
		return strconv.FormatInt(int64(t), 10), nil
	case Int64Value:
		return strconv.FormatInt(int64(t), 10), nil
	case UInt8Value:
		return strconv.FormatUint(uint64(t), 10), nil
	case UInt16Value:
		return strconv.FormatUint(uint64(t), 10), nil
	case UInt32Value:
		return strconv.FormatUint(uint64(t), 10), nil
	case UInt64Value:
		return strconv.FormatUint(uint64(t), 10), nil
	case Float32Value:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), nil
	case Float64Value:
		return strconv.FormatFloat(float64(t), 'g', -1, 64), nil
	case DecimalValue:
		return formatDecimal(t), nil
	case BinaryValue:
		return string(t), nil
	case JSONValue:
		return string(t), nil
	case UUIDValue:
		return uuidString(t), nil
	}
	return "", fmt.Errorf("cannot coerce %s to string", v.Type().Kind)
}

// formatDecimal renders the canonical decimal textual form (spec.md §6):
// no locale, no grouping, always the declared number of fractional digits.
func formatDecimal(d DecimalValue) string {
	neg := d.Unscaled < 0
	u := d.Unscaled
	if neg {
		u = -u
	}
	s := strconv.FormatInt(u, 10)
	if d.Scale <= 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	for len(s) <= d.Scale {
		s = "0" + s
	}
	whole := s[:len(s)-d.Scale]
	frac := s[len(s)-d.Scale:]
	out := whole + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}
