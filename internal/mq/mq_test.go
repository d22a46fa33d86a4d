package mq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Foreman/internal/domain"
)

// --- Message Tests ---

func TestDecodeMessage(t *testing.T) {
	body := []byte(`{"id":"m1","type":"worker.keepalive","payload":{"worker_id":"w1","timestamp":42},"timestamp":"2024-01-01T00:00:00Z"}`)

	msg, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Type != MessageTypeKeepAlive {
		t.Errorf("unexpected type %q", msg.Type)
	}

	payload, err := ParsePayload[KeepAlivePayload](&msg)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload.WorkerID != "w1" || payload.Timestamp != 42 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestDecodeMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "keepalive"},
		{"missing type", `{"id":"m1","payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMessage([]byte(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestActionUpdatePayload(t *testing.T) {
	msg := NewMessage(MessageTypeActionUpdate, ActionUpdatePayload{
		WorkerID:    "w1",
		OperationID: "op-1",
		Kind:        domain.UpdateFailed,
		ExitCode:    3,
		Error:       "boom",
	}, time.Unix(0, 0))

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeMessage(body)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := ParsePayload[ActionUpdatePayload](&decoded)
	if err != nil {
		t.Fatal(err)
	}

	update := payload.Update()
	if update.Kind != domain.UpdateFailed || update.ExitCode != 3 || update.Error != "boom" {
		t.Errorf("unexpected update: %+v", update)
	}
	if decoded.ID == "" {
		t.Error("message id must be generated")
	}
}

// --- Error Tests ---

func TestPermanent(t *testing.T) {
	cause := errors.New("unknown worker")
	err := Permanent(cause)

	if !errors.Is(err, ErrPermanent) {
		t.Error("expected ErrPermanent")
	}
	if !errors.Is(err, cause) {
		t.Error("cause must be preserved")
	}
}

// --- Topology Tests ---

func TestDefaultTopology_BindingsReferenceDeclarations(t *testing.T) {
	topo := DefaultTopology()

	exchanges := make(map[Exchange]bool)
	for _, ex := range topo.Exchanges {
		exchanges[ex.Name] = true
	}
	queues := make(map[Queue]bool)
	for _, q := range topo.Queues {
		queues[q.Name] = true
	}

	for _, b := range topo.Bindings {
		if !exchanges[b.Exchange] {
			t.Errorf("binding uses undeclared exchange %s", b.Exchange)
		}
		if !queues[b.Queue] {
			t.Errorf("binding uses undeclared queue %s", b.Queue)
		}
	}

	for _, q := range topo.Queues {
		if dlx, ok := q.Args["x-dead-letter-exchange"]; ok && !exchanges[Exchange(dlx.(string))] {
			t.Errorf("queue %s dead-letters to undeclared exchange %v", q.Name, dlx)
		}
	}
}
