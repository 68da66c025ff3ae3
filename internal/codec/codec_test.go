package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/ansilo-run/ansilo/internal/types"
)

func sampleStructure() types.RowStructure {
	return types.RowStructure{
		{Name: "id", Type: types.Int32()},
		{Name: "note", Type: types.Utf8String(0, "")},
		{Name: "tag", Type: types.Utf8String(0, "")},
	}
}

func sampleRow() []types.DataValue {
	return []types.DataValue{
		types.Int32Value(7),
		types.NullValue{T: types.Utf8String(0, "")},
		types.StringValue{Value: "ab"},
	}
}

func TestRoundTrip(t *testing.T) {
	structure := sampleStructure()
	row := sampleRow()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := EncodeRow(w, structure, row); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	r := NewReader(&buf)
	decoded, err := DecodeRow(r, structure)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded[0].(types.Int32Value) != 7 {
		t.Errorf("col0: expected 7, got %v", decoded[0])
	}
	if !decoded[1].IsNull() {
		t.Errorf("col1: expected null, got %v", decoded[1])
	}
	if decoded[2].(types.StringValue).Value != "ab" {
		t.Errorf("col2: expected ab, got %v", decoded[2])
	}
}

// TestEncodingLayout pins the exact byte layout from spec.md §4.B/§6 for
// the scenario row [Int32(7), Null, Utf8String("ab")]: 13 bytes total.
func TestEncodingLayout(t *testing.T) {
	structure := sampleStructure()
	row := sampleRow()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := EncodeRow(w, structure, row); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	want := []byte{
		0x01, 0x07, 0x00, 0x00, 0x00, // non-null marker + int32 LE 7
		0x00, // null marker
		0x01, 0x02, 0x00, 0x00, 0x00, 'a', 'b', // non-null + u32 len 2 + "ab"
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encoding mismatch:\n got: %x\nwant: %x", buf.Bytes(), want)
	}
	if buf.Len() != 13 {
		t.Fatalf("expected 13-byte encoding, got %d", buf.Len())
	}
}

// TestPartialReadSafety feeds the encoded stream to the reader one byte
// at a time via an io.Reader that only ever returns 1 byte per Read
// call, verifying the buffered reader produces the same values as a
// single bulk read (invariant 2).
func TestPartialReadSafety(t *testing.T) {
	structure := sampleStructure()
	row := sampleRow()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := EncodeRow(w, structure, row); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	r := NewReader(&oneByteReader{data: buf.Bytes()})
	decoded, err := DecodeRow(r, structure)
	if err != nil {
		t.Fatalf("decode over 1-byte chunks failed: %v", err)
	}
	if decoded[0].(types.Int32Value) != 7 {
		t.Errorf("col0: expected 7, got %v", decoded[0])
	}
	if !decoded[1].IsNull() {
		t.Errorf("col1: expected null, got %v", decoded[1])
	}
	if decoded[2].(types.StringValue).Value != "ab" {
		t.Errorf("col2: expected ab, got %v", decoded[2])
	}
}

// oneByteReader returns at most one byte per Read call regardless of the
// caller's buffer size, simulating an arbitrarily fragmented stream.
type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
