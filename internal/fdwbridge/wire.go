// Package fdwbridge implements the local, length-prefixed message
// protocol between the Postgres-side extension (client) and the
// connector-host process (server) — spec.md §4.F/§6. Framing and the
// accept-loop/per-connection goroutine architecture are adapted
// directly from the teacher's proxy package, generalised from raw
// Postgres-wire passthrough to Ansilo's own tagged messages.
package fdwbridge

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic bytes and version at the start of every bridge stream
// (spec.md §6).
var Magic = [4]byte{'A', 'N', 'S', 'I'}

const (
	ProtocolMajor = 1
	ProtocolMinor = 0
)

// Tag identifies a frame's message kind.
type Tag byte

const (
	// Client -> Server
	TagAuthDataSource Tag = iota + 1
	TagEstimateSize
	TagSelect
	TagInsert
	TagUpdate
	TagDelete
	TagPrepare
	TagWriteParams
	TagExecute
	TagRead
	TagRestart
	TagDiscardQuery
	TagBeginTx
	TagCommit
	TagRollback
	TagClose

	// Server -> Client
	TagAuthAccepted
	TagAuthRejected
	TagEstimate
	TagOpResult
	TagQueryPrepared
	TagParamsWritten
	TagQueryExecuted
	TagResultData
	TagTxOk
	TagError
)

// Frame is one message: a tag plus its opaque payload. Payload encoding
// is message-specific and is handled by the session layer, not here:
// structured messages, SQLIL queries included, are JSON (see
// exprcodec.go and querycodec.go), while parameter and result data are
// Row Codec bytes. SQLIL has no binary encoding.
type Frame struct {
	Tag     Tag
	Payload []byte
}

const maxFrameLen = 64 << 20 // 64MiB, generous upper bound against a malformed length prefix

// WriteHandshake writes the magic bytes and protocol version at the
// start of a stream. Called once per connection, by the server.
func WriteHandshake(w io.Writer) error {
	buf := make([]byte, 0, 6)
	buf = append(buf, Magic[:]...)
	buf = append(buf, byte(ProtocolMajor), byte(ProtocolMinor))
	_, err := w.Write(buf)
	return err
}

// ReadHandshake reads and validates the magic bytes and protocol
// version. Returns the peer's reported major/minor version.
func ReadHandshake(r io.Reader) (major, minor byte, err error) {
	buf := make([]byte, 6)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, 0, fmt.Errorf("reading bridge handshake: %w", err)
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return 0, 0, fmt.Errorf("invalid bridge magic bytes %x", buf[:4])
	}
	return buf[4], buf[5], nil
}

// WriteFrame writes a length-prefixed frame: u32 be length | u8 tag |
// payload. Length covers tag + payload, matching the teacher's PG
// message length convention (readPGMessage/writePGMessage) of
// including the length field's own semantics, not raw byte count of
// everything after it only.
func WriteFrame(w io.Writer, f Frame) error {
	buf := make([]byte, 5+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(f.Payload)))
	buf[4] = byte(f.Tag)
	copy(buf[5:], f.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame. An unknown tag is not
// rejected here — the session layer maps that to Error(ProtocolViolation)
// per spec.md §6, since only it knows the full valid tag set for the
// current session direction.
func ReadFrame(r io.Reader) (Frame, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 {
		return Frame{}, fmt.Errorf("fdwbridge: zero-length frame")
	}
	if length > maxFrameLen {
		return Frame{}, fmt.Errorf("fdwbridge: frame length %d exceeds maximum %d", length, maxFrameLen)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}

	return Frame{Tag: Tag(body[0]), Payload: body[1:]}, nil
}
