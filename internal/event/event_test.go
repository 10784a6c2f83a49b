package event

import (
	"encoding/json"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{"type":"message:send","payload":{"receiver_id":2,"content":"hi","client_message_id":"c-1"}}`)

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if ev.Type != TypeMessageSend {
		t.Fatalf("expected %q, got %q", TypeMessageSend, ev.Type)
	}

	var p MessageSendPayload
	if err := Decode(ev.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.ReceiverID != 2 || p.Content != "hi" || p.ClientMessageID != "c-1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodeMissingPayload(t *testing.T) {
	var ev Event
	if err := json.Unmarshal([]byte(`{"type":"heartbeat"}`), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var p AuthenticatePayload
	if err := Decode(ev.Payload, &p); err != nil {
		t.Fatalf("nil payload must decode to zero value: %v", err)
	}
	if p.UserID != 0 || p.Token != "" {
		t.Fatalf("expected zero payload, got %+v", p)
	}
}
