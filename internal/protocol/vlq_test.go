package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestSignedVLQRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value int64
	}{
		{name: "zero", value: 0},
		{name: "one", value: 1},
		{name: "negative one", value: -1},
		{name: "small positive", value: 63},
		{name: "small negative", value: -64},
		{name: "multi byte", value: 300},
		{name: "negative multi byte", value: -300},
		{name: "large payload length", value: 1 << 20},
		{name: "compressed large payload", value: -(1 << 20)},
		{name: "int32 max", value: 1<<31 - 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := AppendSignedVLQ(nil, tc.value)
			got, raw, err := ReadSignedVLQ(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("ReadSignedVLQ: %v", err)
			}
			if got != tc.value {
				t.Fatalf("round trip mismatch: wrote %d, read %d", tc.value, got)
			}
			if !bytes.Equal(raw, encoded) {
				t.Fatalf("raw bytes not preserved: wrote %x, captured %x", encoded, raw)
			}
		})
	}
}

func TestUnsignedVLQRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 16384, 1 << 40} {
		encoded := AppendVLQ(nil, v)
		got, _, err := ReadVLQ(bytes.NewReader(encoded))
		if err != nil {
			t.Fatalf("ReadVLQ(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: wrote %d, read %d", v, got)
		}
	}
}

func TestVLQKnownEncodings(t *testing.T) {
	// Big-endian base-128, continuation bit on all but the last byte.
	tests := []struct {
		value uint64
		wire  []byte
	}{
		{value: 0, wire: []byte{0x00}},
		{value: 127, wire: []byte{0x7f}},
		{value: 128, wire: []byte{0x81, 0x00}},
		{value: 300, wire: []byte{0x82, 0x2c}},
	}
	for _, tc := range tests {
		if got := AppendVLQ(nil, tc.value); !bytes.Equal(got, tc.wire) {
			t.Errorf("AppendVLQ(%d) = %x, want %x", tc.value, got, tc.wire)
		}
	}
}

func TestVLQTruncated(t *testing.T) {
	// Continuation bit set but no following byte.
	if _, _, err := ReadVLQ(bytes.NewReader([]byte{0x81})); err == nil {
		t.Fatal("expected error for truncated vlq, got nil")
	}
}

func TestVLQOverflow(t *testing.T) {
	over := bytes.Repeat([]byte{0xff}, 11)
	if _, _, err := ReadVLQ(bytes.NewReader(over)); !errors.Is(err, ErrVLQOverflow) {
		t.Fatalf("expected ErrVLQOverflow, got %v", err)
	}
}
