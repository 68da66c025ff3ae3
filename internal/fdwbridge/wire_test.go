package fdwbridge

import (
	"bytes"
	"testing"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHandshake(&buf); err != nil {
		t.Fatalf("WriteHandshake: %v", err)
	}
	major, minor, err := ReadHandshake(&buf)
	if err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}
	if major != ProtocolMajor || minor != ProtocolMinor {
		t.Fatalf("got version %d.%d, want %d.%d", major, minor, ProtocolMajor, ProtocolMinor)
	}
}

func TestReadHandshakeRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("XXXX\x01\x00")
	if _, _, err := ReadHandshake(buf); err == nil {
		t.Fatal("expected error for invalid magic bytes")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Tag: TagSelect, Payload: []byte("hello world")}
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Tag != want.Tag || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Tag: TagOpResult, Payload: nil}
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Tag != want.Tag || len(got.Payload) != 0 {
		t.Fatalf("got %+v, want empty payload with tag %v", got, want.Tag)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}
