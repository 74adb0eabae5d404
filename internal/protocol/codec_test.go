package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReadFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		typeID   uint8
		body     []byte
		compress bool
	}{
		{name: "empty body", typeID: PktClientDisconnectRequest, body: nil},
		{name: "small uncompressed", typeID: PktChatSent, body: NewPayloadBuilder().WriteString("hello").WriteByte(0).Build()},
		{name: "unmapped type", typeID: PktTileUpdate, body: bytes.Repeat([]byte{0xab}, 40)},
		{name: "compressed", typeID: PktWorldStart, body: bytes.Repeat([]byte("starbound"), 200), compress: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wire, err := BuildFrame(tc.typeID, tc.body, tc.compress)
			if err != nil {
				t.Fatalf("BuildFrame: %v", err)
			}

			f, err := ReadFrame(bytes.NewReader(wire), ToServer)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if f.Type != tc.typeID {
				t.Errorf("type = %d, want %d", f.Type, tc.typeID)
			}
			if f.Compressed != tc.compress {
				t.Errorf("compressed = %v, want %v", f.Compressed, tc.compress)
			}
			if !bytes.Equal(f.Payload, tc.body) && !(len(f.Payload) == 0 && len(tc.body) == 0) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(f.Payload), len(tc.body))
			}
			// The raw bytes must be the exact transmitted form, so that
			// pass-through forwarding is byte identical.
			if !bytes.Equal(f.Raw, wire) {
				t.Errorf("raw bytes not preserved verbatim")
			}

			var out bytes.Buffer
			if err := WriteFrame(&out, f); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}
			if !bytes.Equal(out.Bytes(), wire) {
				t.Errorf("WriteFrame output differs from original wire bytes")
			}
		})
	}
}

func TestReadFrameCompressedRawKeepsCompressedForm(t *testing.T) {
	body := bytes.Repeat([]byte("abcdef"), 500)
	wire, err := BuildFrame(PktEntityUpdate, body, true)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}

	f, err := ReadFrame(bytes.NewReader(wire), ToClient)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(f.Payload, body) {
		t.Error("payload was not inflated")
	}
	if len(f.Raw) >= 1+len(body) {
		t.Errorf("raw should hold the compressed wire form, got %d bytes for a %d byte body", len(f.Raw), len(body))
	}
	if f.Size != len(f.Raw)-headerLen(f.Raw) {
		t.Errorf("size = %d, want compressed byte count %d", f.Size, len(f.Raw)-headerLen(f.Raw))
	}
}

// headerLen computes the header length of a raw frame (type byte + vlq).
func headerLen(raw []byte) int {
	n := 1
	for ; n < len(raw); n++ {
		if raw[n]&0x80 == 0 {
			n++
			break
		}
	}
	return n
}

func TestReadFrameTruncated(t *testing.T) {
	wire, err := BuildFrame(PktChatSent, NewPayloadBuilder().WriteString("truncate me").WriteByte(1).Build(), false)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}

	tests := []struct {
		name string
		cut  int
	}{
		{name: "mid header", cut: 1},
		{name: "mid payload", cut: len(wire) - 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(wire[:tc.cut]), ToServer)
			if !errors.Is(err, ErrIncompleteStream) {
				t.Fatalf("expected ErrIncompleteStream, got %v", err)
			}
		})
	}
}

func TestReadFrameCleanEOFBetweenFrames(t *testing.T) {
	// A stream ending exactly on a frame boundary is an orderly close.
	_, err := ReadFrame(bytes.NewReader(nil), ToServer)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at frame boundary, got %v", err)
	}
	if errors.Is(err, ErrIncompleteStream) {
		t.Fatal("clean EOF must not be reported as an incomplete stream")
	}
}

func TestDecodeUnknownTypeYieldsEmptyBody(t *testing.T) {
	body, err := Decode(PktSystemObjectSpawn, bytes.Repeat([]byte{0x01}, 40))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty body for unmapped type, got %v", body)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	// chat_sent with a string length running past the payload end.
	_, err := Decode(PktChatSent, []byte{0x7f})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestHookNames(t *testing.T) {
	tests := []struct {
		typeID uint8
		want   string
	}{
		{typeID: PktChatSent, want: "on_chat_sent"},
		{typeID: PktProtocolRequest, want: "on_protocol_request"},
		{typeID: PktSystemObjectSpawn, want: "on_system_object_spawn"},
	}
	for _, tc := range tests {
		if got := HookName(tc.typeID); got != tc.want {
			t.Errorf("HookName(%d) = %q, want %q", tc.typeID, got, tc.want)
		}
	}
	if got := HookName(200); got != "" {
		t.Errorf("HookName(200) = %q, want empty", got)
	}

	id, ok := PacketID("chat_sent")
	if !ok || id != PktChatSent {
		t.Errorf("PacketID(chat_sent) = %d, %v", id, ok)
	}
}
