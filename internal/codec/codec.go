// Package codec implements the self-describing, length-prefixed row byte
// stream shared by the FDW Bridge and any remote connector transport
// (spec.md §4.B, §6). The wire contract is intentionally the same shape
// as the teacher's own PostgreSQL/MySQL message framing
// (proxy.readPGMessage/writePGMessage, pool.readMySQLPoolPacket) —
// 0x00/0x01 null marker then a type-specific payload, u32 length prefix
// for anything variable-length — generalised from raw protocol bytes to
// typed DataValues.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ansilo-run/ansilo/internal/types"
)

const (
	nullMarker    byte = 0x00
	nonNullMarker byte = 0x01
)

// Writer encodes DataValues matching a RowStructure into a byte stream.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteValue encodes a single value. The caller is responsible for
// supplying values already coerced into the declared column type — the
// codec does not coerce, it only serialises (types.Coerce is the
// boundary for that).
func (w *Writer) WriteValue(v types.DataValue) error {
	if v == nil || v.IsNull() {
		_, err := w.w.Write([]byte{nullMarker})
		return err
	}
	if _, err := w.w.Write([]byte{nonNullMarker}); err != nil {
		return err
	}
	return w.writePayload(v)
}

func (w *Writer) writePayload(v types.DataValue) error {
	switch t := v.(type) {
	case types.BoolValue:
		b := byte(0)
		if t {
			b = 1
		}
		return w.writeBytes([]byte{b})
	case types.Int8Value:
		return w.writeBytes([]byte{byte(t)})
	case types.Int16Value:
		return w.writeFixed(uint64(uint16(t)), 2)
	case types.Int32Value:
		return w.writeFixed(uint64(uint32(t)), 4)
	case types.Int64Value:
		return w.writeFixed(uint64(t), 8)
	case types.UInt8Value:
		return w.writeBytes([]byte{byte(t)})
	case types.UInt16Value:
		return w.writeFixed(uint64(t), 2)
	case types.UInt32Value:
		return w.writeFixed(uint64(t), 4)
	case types.UInt64Value:
		return w.writeFixed(uint64(t), 8)
	case types.Float32Value:
		return w.writeFixed(uint64(math.Float32bits(float32(t))), 4)
	case types.Float64Value:
		return w.writeFixed(math.Float64bits(float64(t)), 8)
	case types.DecimalValue:
		return w.writeVarLen([]byte(formatDecimalCanonical(t)))
	case types.StringValue:
		return w.writeVarLen([]byte(t.Value))
	case types.BinaryValue:
		return w.writeVarLen([]byte(t))
	case types.JSONValue:
		return w.writeVarLen([]byte(t))
	case types.DateValue:
		return w.writeFixed(uint64(uint32(int32(t))), 4)
	case types.TimeValue:
		return w.writeFixed(uint64(int64(t)), 8)
	case types.DateTimeValue:
		return w.writeFixed(uint64(int64(t)), 8)
	case types.DateTimeWithTZValue:
		if err := w.writeFixed(uint64(t.Micros), 8); err != nil {
			return err
		}
		return w.writeVarLen([]byte(t.Zone))
	case types.UUIDValue:
		b := [16]byte(t)
		return w.writeBytes(b[:])
	default:
		return fmt.Errorf("codec: unsupported value type %T", v)
	}
}

func (w *Writer) writeBytes(b []byte) error {
	_, err := w.w.Write(b)
	return err
}

func (w *Writer) writeFixed(val uint64, width int) error {
	buf := make([]byte, width)
	switch width {
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(val))
	case 8:
		binary.LittleEndian.PutUint64(buf, val)
	}
	return w.writeBytes(buf)
}

func (w *Writer) writeVarLen(b []byte) error {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(b)))
	if err := w.writeBytes(lenBuf); err != nil {
		return err
	}
	return w.writeBytes(b)
}

// formatDecimalCanonical mirrors types' canonical decimal textual form.
func formatDecimalCanonical(d types.DecimalValue) string {
	s, _ := types.Coerce(d, types.Utf8String(0, ""))
	return s.(types.StringValue).Value
}

// Reader decodes a stream of DataValues against a fixed RowStructure. It
// wraps the supplied io.Reader in a *bufio.Reader and reads each part of
// a value in full, blocking until its bytes have arrived, so a value
// split across underlying reads decodes the same as one delivered whole
// (invariant 2: partial-read safety).
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// ReadValue blocks until a full value (null marker, or marker+payload) for
// the given column type is available, or returns an error (io.EOF if the
// stream ended cleanly at a value boundary).
func (r *Reader) ReadValue(colType types.DataType) (types.DataValue, error) {
	marker, err := r.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if marker == nullMarker {
		return types.NullValue{T: colType}, nil
	}
	if marker != nonNullMarker {
		return nil, fmt.Errorf("codec: invalid null marker byte 0x%02x", marker)
	}
	return r.readPayload(colType)
}

func (r *Reader) readPayload(colType types.DataType) (types.DataValue, error) {
	switch colType.Kind {
	case types.KindBoolean:
		b, err := r.readN(1)
		if err != nil {
			return nil, err
		}
		return types.BoolValue(b[0] != 0), nil
	case types.KindInt8:
		b, err := r.readN(1)
		if err != nil {
			return nil, err
		}
		return types.Int8Value(int8(b[0])), nil
	case types.KindUInt8:
		b, err := r.readN(1)
		if err != nil {
			return nil, err
		}
		return types.UInt8Value(b[0]), nil
	case types.KindInt16:
		n, err := r.readFixed(2)
		if err != nil {
			return nil, err
		}
		return types.Int16Value(int16(n)), nil
	case types.KindUInt16:
		n, err := r.readFixed(2)
		if err != nil {
			return nil, err
		}
		return types.UInt16Value(uint16(n)), nil
	case types.KindInt32:
		n, err := r.readFixed(4)
		if err != nil {
			return nil, err
		}
		return types.Int32Value(int32(n)), nil
	case types.KindUInt32:
		n, err := r.readFixed(4)
		if err != nil {
			return nil, err
		}
		return types.UInt32Value(uint32(n)), nil
	case types.KindInt64:
		n, err := r.readFixed(8)
		if err != nil {
			return nil, err
		}
		return types.Int64Value(int64(n)), nil
	case types.KindUInt64:
		n, err := r.readFixed(8)
		if err != nil {
			return nil, err
		}
		return types.UInt64Value(n), nil
	case types.KindFloat32:
		n, err := r.readFixed(4)
		if err != nil {
			return nil, err
		}
		return types.Float32Value(math.Float32frombits(uint32(n))), nil
	case types.KindFloat64:
		n, err := r.readFixed(8)
		if err != nil {
			return nil, err
		}
		return types.Float64Value(math.Float64frombits(n)), nil
	case types.KindDecimal:
		b, err := r.readVarLen()
		if err != nil {
			return nil, err
		}
		v, err := parseDecimalCanonical(string(b), colType.Precision, colType.Scale)
		if err != nil {
			return nil, err
		}
		return v, nil
	case types.KindUtf8String:
		b, err := r.readVarLen()
		if err != nil {
			return nil, err
		}
		return types.StringValue{Value: string(b), Encoding: colType.Encoding}, nil
	case types.KindBinary:
		b, err := r.readVarLen()
		if err != nil {
			return nil, err
		}
		return types.BinaryValue(b), nil
	case types.KindJSON:
		b, err := r.readVarLen()
		if err != nil {
			return nil, err
		}
		return types.JSONValue(b), nil
	case types.KindDate:
		n, err := r.readFixed(4)
		if err != nil {
			return nil, err
		}
		return types.DateValue(int32(n)), nil
	case types.KindTime:
		n, err := r.readFixed(8)
		if err != nil {
			return nil, err
		}
		return types.TimeValue(int64(n)), nil
	case types.KindDateTime:
		n, err := r.readFixed(8)
		if err != nil {
			return nil, err
		}
		return types.DateTimeValue(int64(n)), nil
	case types.KindDateTimeWithTZ:
		n, err := r.readFixed(8)
		if err != nil {
			return nil, err
		}
		zoneB, err := r.readVarLen()
		if err != nil {
			return nil, err
		}
		return types.DateTimeWithTZValue{Micros: int64(n), Zone: string(zoneB)}, nil
	case types.KindUUID:
		b, err := r.readN(16)
		if err != nil {
			return nil, err
		}
		var arr [16]byte
		copy(arr[:], b)
		return types.UUIDValue(arr), nil
	default:
		return nil, fmt.Errorf("codec: unsupported column kind %s", colType.Kind)
	}
}

func (r *Reader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) readFixed(width int) (uint64, error) {
	buf, err := r.readN(width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	case 8:
		return binary.LittleEndian.Uint64(buf), nil
	}
	return 0, fmt.Errorf("codec: invalid fixed width %d", width)
}

func (r *Reader) readVarLen() ([]byte, error) {
	lenBuf, err := r.readN(4)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	const maxVarLen = 1 << 28
	if n > maxVarLen {
		return nil, fmt.Errorf("codec: variable-length payload too large: %d", n)
	}
	return r.readN(int(n))
}

func parseDecimalCanonical(s string, precision, scale int) (types.DataValue, error) {
	v, err := types.Coerce(types.StringValue{Value: s}, types.Decimal(precision, scale))
	if err != nil {
		return nil, fmt.Errorf("codec: parsing decimal %q: %w", s, err)
	}
	return v, nil
}

// EncodeRow writes every value of row in order, matching structure's
// arity (rows are a flat concatenation with no delimiter — spec.md §4.B).
func EncodeRow(w *Writer, structure types.RowStructure, row []types.DataValue) error {
	if len(row) != len(structure) {
		return fmt.Errorf("codec: row has %d values, structure declares %d", len(row), len(structure))
	}
	for _, v := range row {
		if err := w.WriteValue(v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRow reads exactly one row matching structure's arity.
func DecodeRow(r *Reader, structure types.RowStructure) ([]types.DataValue, error) {
	row := make([]types.DataValue, len(structure))
	for i, col := range structure {
		v, err := r.ReadValue(col.Type)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}
