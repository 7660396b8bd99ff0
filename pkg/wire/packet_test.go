package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Data(42, 7, []byte("hello world"), 65535)

	encoded := Encode(p)
	if len(encoded) != HeaderSize+len(p.Payload) {
		t.Fatalf("encoded length = %d, want %d", len(encoded), HeaderSize+len(p.Payload))
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Type != p.Type {
		t.Errorf("Type = %v, want %v", decoded.Type, p.Type)
	}
	if decoded.Sequence != p.Sequence {
		t.Errorf("Sequence = %d, want %d", decoded.Sequence, p.Sequence)
	}
	if decoded.Ack != p.Ack {
		t.Errorf("Ack = %d, want %d", decoded.Ack, p.Ack)
	}
	if decoded.Window != p.Window {
		t.Errorf("Window = %d, want %d", decoded.Window, p.Window)
	}
	if !bytes.Equal(decoded.Payload, p.Payload) {
		t.Errorf("Payload = %q, want %q", decoded.Payload, p.Payload)
	}
}

func TestEncodeDecodeEmptyPayload(t *testing.T) {
	p := Ping(1)
	decoded, err := Decode(Encode(p))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Payload) != 0 {
		t.Errorf("Payload = %q, want empty", decoded.Payload)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	encoded := Encode(Ping(1))
	encoded[0] ^= 0xFF

	if _, err := Decode(encoded); err != ErrBadMagic {
		t.Errorf("Decode err = %v, want ErrBadMagic", err)
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	encoded := Encode(Ping(1))
	encoded[2] = 99

	if _, err := Decode(encoded); err != ErrUnsupportedVersion {
		t.Errorf("Decode err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	encoded := Encode(Data(1, 0, []byte{0xAB, 0xCD}, 0))
	encoded[HeaderSize] ^= 0x01 // flip a payload bit in flight

	if _, err := Decode(encoded); err != ErrChecksumMismatch {
		t.Errorf("Decode err = %v, want ErrChecksumMismatch", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	encoded := Encode(Ping(1))
	if _, err := Decode(encoded[:HeaderSize-1]); err != ErrTruncated {
		t.Errorf("Decode err = %v, want ErrTruncated", err)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	p := Data(1, 0, []byte("payload"), 0)
	encoded := Encode(p)
	// Tamper the length field directly and recompute the checksum over
	// the tampered bytes, so only the length check can reject the packet.
	binary.BigEndian.PutUint32(encoded[offPayloadLen:offPayloadLen+4], uint32(len(p.Payload)+1))
	binary.BigEndian.PutUint16(encoded[offChecksum:offChecksum+2], 0)
	binary.BigEndian.PutUint16(encoded[offChecksum:offChecksum+2], checksum(encoded))
	if _, err := Decode(encoded); err != ErrLengthMismatch {
		t.Errorf("Decode err = %v, want ErrLengthMismatch", err)
	}
}

func TestFragmentInvariant(t *testing.T) {
	f := Fragment(1, 0xCAFEBABE, 2, 5, []byte("chunk"))
	if !f.IsFragment() {
		t.Error("expected IsFragment() true for fragment total > 1")
	}
	if f.FragmentIndex >= f.FragmentTotal {
		t.Error("fragment index must be < fragment total")
	}

	nonFrag := Data(1, 0, []byte("x"), 0)
	if nonFrag.IsFragment() {
		t.Error("expected IsFragment() false for a plain DATA packet")
	}
}

func TestChecksumCoversHeaderAndPayload(t *testing.T) {
	a := Encode(Data(1, 0, []byte("aaaa"), 0))
	b := Encode(Data(1, 0, []byte("bbbb"), 0))
	if bytes.Equal(a, b) {
		t.Fatal("different payloads must not encode identically")
	}
	// Changing only the payload must change the checksum bytes.
	if bytes.Equal(a[offChecksum:offChecksum+2], b[offChecksum:offChecksum+2]) {
		t.Error("checksum did not change for different payloads")
	}
	// Changing only a header field must change the checksum bytes too.
	c := Encode(Data(2, 0, []byte("aaaa"), 0))
	if bytes.Equal(a[offChecksum:offChecksum+2], c[offChecksum:offChecksum+2]) {
		t.Error("checksum did not change for a different header")
	}
}

func TestTypeString(t *testing.T) {
	cases := []struct {
		typ  Type
		want string
	}{
		{TypeSYN, "SYN"},
		{TypeDATA, "DATA"},
		{TypeFRAGMENT, "FRAGMENT"},
		{TypeNACK, "NACK"},
	}
	for _, c := range cases {
		if got := c.typ.String(); got != c.want {
			t.Errorf("Type(%d).String() = %q, want %q", c.typ, got, c.want)
		}
	}
}
