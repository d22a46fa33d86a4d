package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Logging Tests ---

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("expected default logger for empty context")
	}

	logger := slog.New(slog.DiscardHandler)
	ctx := WithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Error("expected logger stored in context")
	}
}

// --- Metrics Tests ---

func TestNewSchedulerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetrics(reg)

	m.WorkersConnected.Set(2)
	m.WorkersRemoved.WithLabelValues("timeout").Inc()
	m.OperationsCompleted.WithLabelValues("completed_success").Inc()
	m.MatchDuration.Observe(0.01)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"foreman_workers_connected",
		"foreman_workers_removed_total",
		"foreman_operations_completed_total",
		"foreman_match_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestNewSchedulerMetrics_NilRegisterer(t *testing.T) {
	// два вызова не должны конфликтовать при регистрации
	NewSchedulerMetrics(nil)
	NewSchedulerMetrics(nil)
}
