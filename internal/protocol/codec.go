package protocol

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// MaxPayloadSize is the largest payload (compressed or not) the codec will
// accept for a single frame. Anything bigger indicates a corrupt or hostile
// stream.
const MaxPayloadSize = 16 << 20

// ErrIncompleteStream marks a truncated or unreadable frame. It is fatal to
// the connection that produced it: the stream position is unknown and no
// mid-frame retry is possible.
var ErrIncompleteStream = errors.New("incomplete stream")

// Direction indicates which way a frame is travelling through the proxy.
type Direction int

const (
	ToServer Direction = iota // client -> upstream game server
	ToClient                  // upstream game server -> client
)

func (d Direction) String() string {
	if d == ToServer {
		return "to_server"
	}
	return "to_client"
}

// Frame is one discrete protocol message as read off the wire. Raw holds
// the header and payload exactly as transmitted and is what gets forwarded
// when the frame is permitted through; Payload is always the inflated form.
// Decoded is populated lazily by the decode cache and may be mutated by
// extensions, but forwarding always sends Raw, never a re-encoding.
type Frame struct {
	Type       uint8
	Size       int // payload byte count on the wire (compressed size if compressed)
	Compressed bool
	Payload    []byte
	Raw        []byte
	Direction  Direction
	Decoded    map[string]any
}

// ReadFrame reads exactly one frame from the stream. The wire format is a
// 1-byte type id followed by a signed VLQ whose sign encodes compression
// (negative = zlib-compressed payload, magnitude = compressed byte count)
// and then that many payload bytes. Truncation anywhere inside the frame is
// reported as ErrIncompleteStream.
func ReadFrame(r io.Reader, dir Direction) (*Frame, error) {
	var header [1]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, incomplete("type id", err)
	}

	size, sizeRaw, err := ReadSignedVLQ(r)
	if err != nil {
		return nil, incomplete("length", err)
	}

	compressed := false
	if size < 0 {
		compressed = true
		size = -size
	}
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("frame payload of %d bytes exceeds limit: %w", size, ErrIncompleteStream)
	}

	wireData := make([]byte, size)
	if _, err := io.ReadFull(r, wireData); err != nil {
		return nil, incomplete("payload", err)
	}

	payload := wireData
	if compressed {
		zr, err := zlib.NewReader(bytes.NewReader(wireData))
		if err != nil {
			return nil, fmt.Errorf("inflating frame payload: %w", err)
		}
		payload, err = io.ReadAll(io.LimitReader(zr, MaxPayloadSize+1))
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("inflating frame payload: %w", err)
		}
		if len(payload) > MaxPayloadSize {
			return nil, fmt.Errorf("inflated payload exceeds limit: %w", ErrIncompleteStream)
		}
	}

	raw := make([]byte, 0, 1+len(sizeRaw)+len(wireData))
	raw = append(raw, header[0])
	raw = append(raw, sizeRaw...)
	raw = append(raw, wireData...)

	return &Frame{
		Type:       header[0],
		Size:       int(size),
		Compressed: compressed,
		Payload:    payload,
		Raw:        raw,
		Direction:  dir,
	}, nil
}

// WriteFrame forwards a frame byte-for-byte as it was received.
func WriteFrame(w io.Writer, f *Frame) error {
	if _, err := w.Write(f.Raw); err != nil {
		return fmt.Errorf("writing frame type %d: %w", f.Type, err)
	}
	return nil
}

// BuildFrame assembles the wire form of a frame the proxy originates itself
// (extensions sending chat, disconnect notices). The body is the already
// encoded payload for the given type id.
func BuildFrame(typeID uint8, body []byte, compress bool) ([]byte, error) {
	wireData := body
	length := int64(len(body))
	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, fmt.Errorf("deflating frame payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("deflating frame payload: %w", err)
		}
		wireData = buf.Bytes()
		length = -int64(len(wireData))
	}

	out := make([]byte, 0, 1+2+len(wireData))
	out = append(out, typeID)
	out = AppendSignedVLQ(out, length)
	out = append(out, wireData...)
	return out, nil
}

// incomplete wraps a short read in ErrIncompleteStream, preserving a clean
// io.EOF for a frame boundary: a stream that ends exactly between frames is
// an orderly close, not a truncation.
func incomplete(part string, err error) error {
	if part == "type id" && errors.Is(err, io.EOF) {
		return io.EOF
	}
	return fmt.Errorf("reading frame %s: %w: %v", part, ErrIncompleteStream, err)
}
