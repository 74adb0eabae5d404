package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
)

// PayloadBuilder constructs frame payloads for frames the proxy originates
// itself: chat messages to clients, disconnect notices, and test fixtures.
type PayloadBuilder struct {
	buf bytes.Buffer
}

// NewPayloadBuilder creates a new PayloadBuilder.
func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{}
}

// Reset clears the builder for reuse.
func (b *PayloadBuilder) Reset() {
	b.buf.Reset()
}

// WriteByte writes a single byte.
func (b *PayloadBuilder) WriteByte(v byte) *PayloadBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteBool writes a boolean as a single byte.
func (b *PayloadBuilder) WriteBool(v bool) *PayloadBuilder {
	if v {
		return b.WriteByte(1)
	}
	return b.WriteByte(0)
}

// WriteUint32 writes a uint32 in big-endian order.
func (b *PayloadBuilder) WriteUint32(v uint32) *PayloadBuilder {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

// WriteVLQ writes an unsigned variable-length quantity.
func (b *PayloadBuilder) WriteVLQ(v uint64) *PayloadBuilder {
	b.buf.Write(AppendVLQ(nil, v))
	return b
}

// WriteString writes a VLQ-length-prefixed UTF-8 string.
func (b *PayloadBuilder) WriteString(s string) *PayloadBuilder {
	b.WriteVLQ(uint64(len(s)))
	b.buf.WriteString(s)
	return b
}

// WriteByteBlob writes a VLQ-length-prefixed byte blob.
func (b *PayloadBuilder) WriteByteBlob(data []byte) *PayloadBuilder {
	b.WriteVLQ(uint64(len(data)))
	b.buf.Write(data)
	return b
}

// WriteUUID writes a 16-byte uuid given as a 32-character hex string.
// Short or malformed input is zero-padded so the payload stays well formed.
func (b *PayloadBuilder) WriteUUID(hexUUID string) *PayloadBuilder {
	var raw [16]byte
	if decoded, err := hex.DecodeString(hexUUID); err == nil {
		copy(raw[:], decoded)
	}
	b.buf.Write(raw[:])
	return b
}

// WriteBytes writes raw bytes with no prefix.
func (b *PayloadBuilder) WriteBytes(data []byte) *PayloadBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed payload bytes.
func (b *PayloadBuilder) Build() []byte {
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// BuildChatReceived assembles the wire form of a chat_received frame, the
// vehicle for every proxy-originated message shown to a player.
func BuildChatReceived(mode byte, channel string, clientID uint32, name, message string) ([]byte, error) {
	body := NewPayloadBuilder().
		WriteByte(mode).
		WriteString(channel).
		WriteUint32(clientID).
		WriteString(name).
		WriteString(message).
		Build()
	return BuildFrame(PktChatReceived, body, false)
}

// BuildServerDisconnect assembles the wire form of a server_disconnect
// frame, sent to clients during graceful proxy shutdown.
func BuildServerDisconnect(reason string) ([]byte, error) {
	body := NewPayloadBuilder().WriteString(reason).Build()
	return BuildFrame(PktServerDisconnect, body, false)
}

// BuildChatSent assembles the wire form of a chat_sent frame.
func BuildChatSent(message string, sendMode byte) ([]byte, error) {
	body := NewPayloadBuilder().WriteString(message).WriteByte(sendMode).Build()
	return BuildFrame(PktChatSent, body, false)
}
