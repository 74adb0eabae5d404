package protocol

import (
	"bytes"
	"reflect"
	"testing"
)

func TestDecodeChatSent(t *testing.T) {
	wire, err := BuildChatSent("hello world", 1)
	if err != nil {
		t.Fatalf("BuildChatSent: %v", err)
	}
	f, err := ReadFrame(bytes.NewReader(wire), ToServer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	body, err := Decode(f.Type, f.Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body["message"] != "hello world" {
		t.Errorf("message = %v, want hello world", body["message"])
	}
	if body["send_mode"] != byte(1) {
		t.Errorf("send_mode = %v, want 1", body["send_mode"])
	}
}

func TestDecodeChatReceived(t *testing.T) {
	wire, err := BuildChatReceived(0, "universe", 42, "Nuru", "welcome to the outpost")
	if err != nil {
		t.Fatalf("BuildChatReceived: %v", err)
	}
	f, err := ReadFrame(bytes.NewReader(wire), ToClient)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	body, err := Decode(f.Type, f.Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{
		"mode":      byte(0),
		"channel":   "universe",
		"client_id": uint32(42),
		"name":      "Nuru",
		"message":   "welcome to the outpost",
	}
	if !reflect.DeepEqual(body, want) {
		t.Errorf("decoded body = %v, want %v", body, want)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	// Decoding the same payload twice yields structurally equal bodies.
	payload := NewPayloadBuilder().
		WriteByteBlob([]byte{0xde, 0xad}).
		WriteUUID("00112233445566778899aabbccddeeff").
		WriteString("Esther").
		Build()

	first, err := Decode(PktClientConnect, payload)
	if err != nil {
		t.Fatalf("first Decode: %v", err)
	}
	second, err := Decode(PktClientConnect, payload)
	if err != nil {
		t.Fatalf("second Decode: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated decode differs: %v vs %v", first, second)
	}
	if first["name"] != "Esther" {
		t.Errorf("name = %v, want Esther", first["name"])
	}
	if first["uuid"] != "00112233445566778899aabbccddeeff" {
		t.Errorf("uuid = %v", first["uuid"])
	}
}

func TestDecodeServerDisconnect(t *testing.T) {
	wire, err := BuildServerDisconnect("proxy shutting down")
	if err != nil {
		t.Fatalf("BuildServerDisconnect: %v", err)
	}
	f, err := ReadFrame(bytes.NewReader(wire), ToClient)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	body, err := Decode(f.Type, f.Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body["reason"] != "proxy shutting down" {
		t.Errorf("reason = %v", body["reason"])
	}
}

func TestDecodeEntityMessage(t *testing.T) {
	payload := NewPayloadBuilder().
		WriteVLQ(77).
		WriteString("applyStatusEffect").
		Build()

	body, err := Decode(PktEntityMessage, payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body["message_name"] != "applyStatusEffect" {
		t.Errorf("message_name = %v", body["message_name"])
	}
	if body["entity_id"] != uint64(77) {
		t.Errorf("entity_id = %v", body["entity_id"])
	}
}
