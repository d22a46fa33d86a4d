package domain

import (
	"testing"
	"time"
)

// --- Stage Tests ---

func TestParseActionStage(t *testing.T) {
	tests := []struct {
		in   string
		want ActionStage
	}{
		{"QUEUED", StageQueued},
		{"queued", StageQueued},
		{"Executing", StageExecuting},
		{"cache_check", StageCacheCheck},
		{"COMPLETED_SUCCESS", StageCompletedSuccess},
		{"completed_failure", StageCompletedFailure},
		{"done", StageUnknown},
		{"", StageUnknown},
	}

	for _, tt := range tests {
		if got := ParseActionStage(tt.in); got != tt.want {
			t.Errorf("ParseActionStage(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestActionStage_Flags(t *testing.T) {
	for _, s := range []ActionStage{StageCacheCheck, StageQueued, StageExecuting} {
		if s.IsFinished() {
			t.Errorf("%s should not be finished", s)
		}
	}
	for _, s := range []ActionStage{StageCompletedSuccess, StageCompletedFailure} {
		if !s.IsFinished() {
			t.Errorf("%s should be finished", s)
		}
		if s.HasOwner() {
			t.Errorf("%s should have no owner", s)
		}
	}
	if !StageExecuting.HasOwner() || StageQueued.HasOwner() {
		t.Error("only EXECUTING has an owner")
	}
}

// --- Digest Tests ---

func TestParseDigest(t *testing.T) {
	tests := []struct {
		in      string
		want    Digest
		wantErr bool
	}{
		{"abc-12", Digest{Hash: "abc", Size: 12}, false},
		{"abc/0", Digest{Hash: "abc", Size: 0}, false},
		{"a-b-3", Digest{Hash: "a-b", Size: 3}, false},
		{"abc", Digest{}, true},
		{"-12", Digest{}, true},
		{"abc-", Digest{}, true},
		{"abc-x", Digest{}, true},
		{"abc-99999999999999999999", Digest{}, true},
	}

	for _, tt := range tests {
		got, err := ParseDigest(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDigest(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseDigest(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	d := Digest{Hash: "ff", Size: 7}
	if back, err := ParseDigest(d.String()); err != nil || back != d {
		t.Errorf("String/ParseDigest mismatch: %v, %v", back, err)
	}
}

func TestTimestampFrom(t *testing.T) {
	if got := TimestampFrom(time.Unix(42, 999)); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if got := TimestampFrom(time.Unix(-5, 0)); got != 0 {
		t.Errorf("negative time should clamp to 0, got %d", got)
	}
}

// --- ActionInfo Tests ---

func TestRunsBefore(t *testing.T) {
	t0 := time.Unix(100, 0)
	high := &ActionInfo{Priority: 10, InsertTimestamp: t0.Add(time.Hour)}
	low := &ActionInfo{Priority: 1, InsertTimestamp: t0}
	older := &ActionInfo{Priority: 1, InsertTimestamp: t0.Add(-time.Second)}

	if !high.RunsBefore(low) || low.RunsBefore(high) {
		t.Error("higher priority runs first regardless of insert time")
	}
	if !older.RunsBefore(low) || low.RunsBefore(older) {
		t.Error("equal priority: earlier insert runs first")
	}
	if low.RunsBefore(low) {
		t.Error("RunsBefore must be irreflexive")
	}
}

func TestActionInfo_Clone(t *testing.T) {
	a := &ActionInfo{PlatformProperties: map[string]string{"os": "linux"}}
	c := a.Clone()
	c.PlatformProperties["os"] = "windows"

	if a.PlatformProperties["os"] != "linux" {
		t.Error("clone must not share properties map")
	}
}

func TestActionInfo_Validate(t *testing.T) {
	ok := &ActionInfo{CommandDigest: Digest{Hash: "c"}, InputRootDigest: Digest{Hash: "i"}}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	for name, a := range map[string]*ActionInfo{
		"no command":       {InputRootDigest: Digest{Hash: "i"}},
		"no input root":    {CommandDigest: Digest{Hash: "c"}},
		"negative timeout": {CommandDigest: Digest{Hash: "c"}, InputRootDigest: Digest{Hash: "i"}, Timeout: -time.Second},
	} {
		if err := a.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

// --- Update Tests ---

func TestOperationUpdate(t *testing.T) {
	tests := []struct {
		kind     UpdateKind
		terminal bool
		stage    ActionStage
	}{
		{UpdateExecuting, false, StageExecuting},
		{UpdateCompleted, true, StageCompletedSuccess},
		{UpdateFailed, true, StageCompletedFailure},
	}

	for _, tt := range tests {
		u := OperationUpdate{Kind: tt.kind}
		if err := u.Validate(); err != nil {
			t.Errorf("%s: %v", tt.kind, err)
		}
		if u.IsTerminal() != tt.terminal || u.Stage() != tt.stage {
			t.Errorf("%s: terminal=%v stage=%s", tt.kind, u.IsTerminal(), u.Stage())
		}
	}

	if err := (OperationUpdate{Kind: "PAUSED"}).Validate(); err == nil {
		t.Error("unknown kind should fail validation")
	}
}

// --- ActionState Tests ---

func TestActionState_Lifecycle(t *testing.T) {
	now := time.Unix(1000, 0)
	s := &ActionState{OperationID: "op-1", Stage: StageQueued}

	s.MarkExecuting("w1", now)
	if s.Stage != StageExecuting || s.WorkerID != "w1" || s.StartedAt == nil {
		t.Fatalf("after assign: %+v", s)
	}

	s.Requeue("w1", now.Add(time.Second))
	if s.Stage != StageQueued || s.WorkerID != "" || s.Requeues != 1 || s.LastLostWorker != "w1" || s.StartedAt != nil {
		t.Fatalf("after requeue: %+v", s)
	}

	s.MarkExecuting("w2", now.Add(2*time.Second))
	s.MarkCompleted(OperationUpdate{Kind: UpdateFailed, ExitCode: 2, Error: "boom"}, now.Add(5*time.Second))
	if s.Stage != StageCompletedFailure || s.WorkerID != "" || s.ExitCode != 2 || s.Error != "boom" {
		t.Fatalf("after failure: %+v", s)
	}
	if !s.IsFinished() {
		t.Error("failed operation is finished")
	}
	if s.Duration() != 3*time.Second {
		t.Errorf("duration = %s, want 3s", s.Duration())
	}
}

func TestActionState_CanRequeue(t *testing.T) {
	s := &ActionState{Requeues: 2}
	if !s.CanRequeue(0) {
		t.Error("0 means unlimited")
	}
	if !s.CanRequeue(3) {
		t.Error("2 < 3 should allow requeue")
	}
	if s.CanRequeue(2) {
		t.Error("limit reached")
	}
}
