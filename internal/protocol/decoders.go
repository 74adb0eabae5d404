package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrDecode marks a malformed payload for a type that has a decoder. It is
// non-fatal: the frame is still forwardable with an empty decoded body.
var ErrDecode = errors.New("decode error")

// DecoderFunc decodes a (decompressed) payload into a structured body.
type DecoderFunc func(payload []byte) (map[string]any, error)

// decoders is the per-type decode table. Only the types the bundled
// extensions inspect carry decoders; nil entries are opaque and decode to an
// empty body, which keeps the frame forwardable.
var decoders = [PacketCount]DecoderFunc{
	PktProtocolRequest:         decodeProtocolRequest,
	PktProtocolResponse:        decodeProtocolResponse,
	PktServerDisconnect:        decodeServerDisconnect,
	PktConnectSuccess:          decodeConnectSuccess,
	PktConnectFailure:          decodeConnectFailure,
	PktHandshakeChallenge:      decodeHandshakeChallenge,
	PktChatReceived:            decodeChatReceived,
	PktPause:                   decodePause,
	PktClientConnect:           decodeClientConnect,
	PktClientDisconnectRequest: decodeEmptyBody,
	PktHandshakeResponse:       decodeHandshakeResponse,
	PktChatSent:                decodeChatSent,
	PktEntityMessage:           decodeEntityMessage,
}

// HasDecoder reports whether a type id has a structured decoder.
func HasDecoder(typeID uint8) bool {
	return int(typeID) < PacketCount && decoders[typeID] != nil
}

// Decode runs the per-type decoder for a payload. Unknown or unmapped type
// ids yield an empty body and no error; a decoder failure is wrapped in
// ErrDecode so callers can log it and pass the frame on regardless.
func Decode(typeID uint8, payload []byte) (map[string]any, error) {
	if int(typeID) >= PacketCount || decoders[typeID] == nil {
		return map[string]any{}, nil
	}
	body, err := decoders[typeID](payload)
	if err != nil {
		return map[string]any{}, fmt.Errorf("%w for %s: %v", ErrDecode, packetNames[typeID], err)
	}
	return body, nil
}

// ---- payload primitives ----

func readString(r *bytes.Reader) (string, error) {
	n, err := readByteVLQ(r)
	if err != nil {
		return "", err
	}
	if n > uint64(r.Len()) {
		return "", fmt.Errorf("string length %d exceeds remaining payload", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readByteBlob(r *bytes.Reader) ([]byte, error) {
	n, err := readByteVLQ(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("blob length %d exceeds remaining payload", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readUUID(r *bytes.Reader) (string, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// ---- per-type decoders ----

func decodeProtocolRequest(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	version, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{"request_protocol_version": version}, nil
}

func decodeProtocolResponse(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	allowed, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return map[string]any{"server_response": allowed != 0}, nil
}

func decodeServerDisconnect(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	reason, err := readString(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{"reason": reason}, nil
}

func decodeConnectSuccess(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	clientID, err := readByteVLQ(r)
	if err != nil {
		return nil, err
	}
	serverUUID, err := readUUID(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"client_id":   clientID,
		"server_uuid": serverUUID,
	}, nil
}

func decodeConnectFailure(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	reason, err := readString(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{"reason": reason}, nil
}

func decodeHandshakeChallenge(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	salt, err := readString(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{"salt": salt}, nil
}

func decodeChatReceived(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	mode, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	channel, err := readString(r)
	if err != nil {
		return nil, err
	}
	clientID, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	message, err := readString(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"mode":      mode,
		"channel":   channel,
		"client_id": clientID,
		"name":      name,
		"message":   message,
	}, nil
}

func decodePause(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	paused, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return map[string]any{"paused": paused != 0}, nil
}

// decodeClientConnect extracts the identity fields from the head of a
// client_connect payload. The tail (ship data, mode flags) is carried
// opaquely; the proxy never needs it.
func decodeClientConnect(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	digest, err := readByteBlob(r)
	if err != nil {
		return nil, err
	}
	uuid, err := readUUID(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"asset_digest": digest,
		"uuid":         uuid,
		"name":         name,
	}, nil
}

func decodeEmptyBody(payload []byte) (map[string]any, error) {
	return map[string]any{}, nil
}

func decodeHandshakeResponse(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	response, err := readString(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{"response": response}, nil
}

func decodeChatSent(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	message, err := readString(r)
	if err != nil {
		return nil, err
	}
	sendMode, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"message":   message,
		"send_mode": sendMode,
	}, nil
}

// decodeEntityMessage extracts the target entity and message name; the
// argument list is game data the proxy inspects only by name.
func decodeEntityMessage(payload []byte) (map[string]any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readByteVLQ(r)
	if err != nil {
		return nil, err
	}
	messageName, err := readString(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"entity_id":    entityID,
		"message_name": messageName,
	}, nil
}
