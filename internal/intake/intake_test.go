package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/mq"
	"github.com/shaiso/Foreman/internal/scheduler/schedulertest"
)

func newTestIntake(t *testing.T) (*Intake, *schedulertest.Fake) {
	t.Helper()
	fake := schedulertest.New()
	if err := fake.AddWorker(context.Background(), domain.Worker{ID: "w1"}); err != nil {
		t.Fatal(err)
	}
	in := New(Config{
		Scheduler: fake,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return in, fake
}

func delivery(msgType mq.MessageType, payload any) *mq.Delivery {
	return &mq.Delivery{Message: *mq.NewMessage(msgType, payload, time.Unix(0, 0))}
}

// --- KeepAlive Tests ---

func TestHandle_KeepAlive(t *testing.T) {
	in, fake := newTestIntake(t)

	err := in.Handle(context.Background(), delivery(mq.MessageTypeKeepAlive, mq.KeepAlivePayload{WorkerID: "w1", Timestamp: 42}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got := fake.KeepAlives()
	if len(got) != 1 || got[0].WorkerID != "w1" || got[0].Timestamp != 42 {
		t.Errorf("unexpected keep-alives: %+v", got)
	}
}

func TestHandle_KeepAliveUnknownWorker(t *testing.T) {
	in, _ := newTestIntake(t)

	err := in.Handle(context.Background(), delivery(mq.MessageTypeKeepAlive, mq.KeepAlivePayload{WorkerID: "ghost", Timestamp: 1}))
	if !errors.Is(err, mq.ErrPermanent) {
		t.Errorf("unknown worker should be permanent, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cause must be preserved, got %v", err)
	}
}

func TestHandle_KeepAliveMissingWorker(t *testing.T) {
	in, _ := newTestIntake(t)

	err := in.Handle(context.Background(), delivery(mq.MessageTypeKeepAlive, mq.KeepAlivePayload{Timestamp: 1}))
	if !errors.Is(err, mq.ErrPermanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

// --- ActionUpdate Tests ---

func TestHandle_ActionUpdate(t *testing.T) {
	in, fake := newTestIntake(t)
	fake.Assign("w1", "op-1")

	err := in.Handle(context.Background(), delivery(mq.MessageTypeActionUpdate, mq.ActionUpdatePayload{
		WorkerID:    "w1",
		OperationID: "op-1",
		Kind:        domain.UpdateCompleted,
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	updates := fake.Updates()
	if len(updates) != 1 || updates[0].Update.Kind != domain.UpdateCompleted {
		t.Errorf("unexpected updates: %+v", updates)
	}
}

func TestHandle_ActionUpdateOwnershipViolation(t *testing.T) {
	in, fake := newTestIntake(t)

	err := in.Handle(context.Background(), delivery(mq.MessageTypeActionUpdate, mq.ActionUpdatePayload{
		WorkerID:    "w1",
		OperationID: "not-mine",
		Kind:        domain.UpdateCompleted,
	}))
	if !errors.Is(err, mq.ErrPermanent) || !errors.Is(err, domain.ErrOwnershipViolation) {
		t.Errorf("expected permanent ownership violation, got %v", err)
	}
	if len(fake.Updates()) != 0 {
		t.Error("rejected update must not be recorded")
	}
}

func TestHandle_ActionUpdateUnknownKind(t *testing.T) {
	in, _ := newTestIntake(t)

	err := in.Handle(context.Background(), delivery(mq.MessageTypeActionUpdate, mq.ActionUpdatePayload{
		WorkerID:    "w1",
		OperationID: "op-1",
		Kind:        "PAUSED",
	}))
	if !errors.Is(err, mq.ErrPermanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

// --- Retry Tests ---

func TestHandle_CollaboratorFailureIsRetried(t *testing.T) {
	in, fake := newTestIntake(t)
	fake.Err = errors.New("store unavailable")

	err := in.Handle(context.Background(), delivery(mq.MessageTypeKeepAlive, mq.KeepAlivePayload{WorkerID: "w1", Timestamp: 1}))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, mq.ErrPermanent) {
		t.Error("collaborator failure should be retried, not rejected")
	}
}

func TestHandle_UnknownType(t *testing.T) {
	in, _ := newTestIntake(t)

	err := in.Handle(context.Background(), delivery("worker.hello", nil))
	if !errors.Is(err, mq.ErrPermanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestStart_WithoutConnection(t *testing.T) {
	in, _ := newTestIntake(t)
	if err := in.Start(context.Background()); err == nil {
		t.Error("expected error without connection")
	}
}
