package types

import "testing"

func TestCoerceIntegerWidening(t *testing.T) {
	v, err := Coerce(Int8Value(42), Int64())
	if err != nil {
		t.Fatalf("widening int8->int64 failed: %v", err)
	}
	if v.(Int64Value) != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestCoerceIntegerNarrowingOverflow(t *testing.T) {
	_, err := Coerce(Int32Value(1000), Int8())
	if err == nil {
		t.Fatal("expected overflow error narrowing 1000 into int8")
	}
}

func TestCoerceIntegerNarrowingFits(t *testing.T) {
	v, err := Coerce(Int32Value(100), Int8())
	if err != nil {
		t.Fatalf("narrowing should succeed when value fits: %v", err)
	}
	if v.(Int8Value) != 100 {
		t.Errorf("expected 100, got %v", v)
	}
}

func TestCoerceStringToNumericStrict(t *testing.T) {
	if _, err := Coerce(StringValue{Value: "  "}, Int32()); err == nil {
		t.Fatal("expected error coercing whitespace-only string to int")
	}
	if _, err := Coerce(StringValue{Value: "99999999999999999999"}, Int64()); err == nil {
		t.Fatal("expected overflow error for out-of-range string")
	}
	v, err := Coerce(StringValue{Value: "42"}, Int32())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(Int32Value) != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestCoerceNumericToStringCanonical(t *testing.T) {
	v, err := Coerce(DecimalValue{Unscaled: 12345, Scale: 2}, Utf8String(0, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := v.(StringValue).Value; got != "123.45" {
		t.Errorf("expected 123.45, got %q", got)
	}
}

func TestCoerceNullPreservesTargetTag(t *testing.T) {
	v, err := Coerce(NullValue{T: Int32()}, Utf8String(0, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsNull() {
		t.Fatal("expected null to remain null")
	}
	if v.Type().Kind != KindUtf8String {
		t.Errorf("expected target tag utf8_string, got %s", v.Type().Kind)
	}
}

func TestCoerceDateTimeRequiresExplicitZone(t *testing.T) {
	_, err := Coerce(DateTimeValue(0), DateTimeWithTZ(""))
	if err == nil {
		t.Fatal("expected error coercing naive datetime without explicit zone")
	}
	v, err := Coerce(DateTimeValue(0), DateTimeWithTZ("UTC"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(DateTimeWithTZValue).Zone != "UTC" {
		t.Errorf("expected zone UTC, got %v", v)
	}
}

func TestCoerceBooleanFromString(t *testing.T) {
	v, err := Coerce(StringValue{Value: "true"}, Boolean())
	if err != nil || v.(BoolValue) != true {
		t.Fatalf("expected true, got %v err=%v", v, err)
	}
	if _, err := Coerce(StringValue{Value: "maybe"}, Boolean()); err == nil {
		t.Fatal("expected error for non-boolean string")
	}
}
