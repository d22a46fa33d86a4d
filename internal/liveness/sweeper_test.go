package liveness

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shaiso/Foreman/internal/clock"
	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/scheduler/schedulertest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Sweep Tests ---

func TestSweep_UsesInjectedClock(t *testing.T) {
	ctx := context.Background()
	fake := schedulertest.New()
	if err := fake.AddWorker(ctx, domain.Worker{ID: "old", LastUpdateTimestamp: 10}); err != nil {
		t.Fatal(err)
	}
	if err := fake.AddWorker(ctx, domain.Worker{ID: "new", LastUpdateTimestamp: 50}); err != nil {
		t.Fatal(err)
	}

	c := clock.NewManual(time.Unix(20, 0))
	s, err := New(Config{Evictor: fake, Clock: c, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	removed := fake.Removed()
	if len(removed) != 1 || removed[0] != "old" {
		t.Errorf("expected only old worker removed, got %v", removed)
	}
}

func TestSweep_CanceledContext(t *testing.T) {
	fake := schedulertest.New()
	s, err := New(Config{Evictor: fake, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Sweep(ctx); err == nil {
		t.Error("expected error for canceled context")
	}
}

// --- Schedule Tests ---

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		valid    bool
	}{
		{"@every 1s", true},
		{"@every 500ms", true},
		{"*/5 * * * * *", true},
		{"* * * * *", true},
		{"@hourly", true},
		{"every second", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateSchedule(tt.schedule)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateSchedule(%q) error = %v, valid = %v", tt.schedule, err, tt.valid)
		}
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := New(Config{Evictor: schedulertest.New(), Schedule: "bogus"}); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{Evictor: schedulertest.New(), Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	s.Stop()
	s.Stop()
}
