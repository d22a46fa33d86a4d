package repo

import (
	"context"
	"strings"
	"testing"

	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/opstate"
)

// --- buildFilterQuery Tests ---

func TestBuildFilterQuery_NoFilter(t *testing.T) {
	query, args := buildFilterQuery(opstate.Filter{})

	if strings.Contains(query, "WHERE") {
		t.Errorf("unexpected WHERE in %q", query)
	}
	if strings.Contains(query, "LIMIT") {
		t.Errorf("unexpected LIMIT in %q", query)
	}
	if !strings.HasSuffix(query, "ORDER BY a.seq ASC") {
		t.Errorf("expected insertion order, got %q", query)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestBuildFilterQuery_AnyStageIsUnfiltered(t *testing.T) {
	query, _ := buildFilterQuery(opstate.Filter{Stages: opstate.StageAny})
	if strings.Contains(query, "o.stage") {
		t.Errorf("StageAny must not filter by stage: %q", query)
	}
}

func TestBuildFilterQuery_Dispatch(t *testing.T) {
	query, args := buildFilterQuery(opstate.Filter{
		Stages: opstate.StageQueued,
		Limit:  100,
		Order:  opstate.OrderDispatch,
	})

	if !strings.Contains(query, "WHERE o.stage = ANY($1)") {
		t.Errorf("expected stage condition, got %q", query)
	}
	if !strings.Contains(query, "ORDER BY a.priority DESC, a.insert_ts ASC, a.seq ASC") {
		t.Errorf("expected dispatch order, got %q", query)
	}
	if !strings.HasSuffix(query, "LIMIT $2") {
		t.Errorf("expected LIMIT $2, got %q", query)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
	stages, ok := args[0].([]string)
	if !ok || len(stages) != 1 || stages[0] != "QUEUED" {
		t.Errorf("unexpected stage arg: %v", args[0])
	}
	if args[1] != 100 {
		t.Errorf("unexpected limit arg: %v", args[1])
	}
}

func TestBuildFilterQuery_OffsetBeforeLimit(t *testing.T) {
	query, args := buildFilterQuery(opstate.Filter{
		Stages: opstate.StageQueued,
		Offset: 40,
		Limit:  20,
		Order:  opstate.OrderDispatch,
	})

	if !strings.HasSuffix(query, "OFFSET $2 LIMIT $3") {
		t.Errorf("expected OFFSET $2 LIMIT $3, got %q", query)
	}
	if len(args) != 3 || args[1] != 40 || args[2] != 20 {
		t.Errorf("unexpected args: %v", args)
	}
}

// Строка потока несёт состояние целиком: AsState не должен идти в пул,
// пока курсор держит соединение.
func TestBuildFilterQuery_SelectsStateAndInfo(t *testing.T) {
	query, _ := buildFilterQuery(opstate.Filter{})

	if !strings.HasPrefix(query, "SELECT "+stateColumns+", "+infoColumns+" FROM") {
		t.Errorf("expected state and info columns, got %q", query)
	}
}

func TestRowResult_AsStateReturnsCopy(t *testing.T) {
	res := &rowResult{
		state: &domain.ActionState{OperationID: "op-1", Stage: domain.StageExecuting, WorkerID: "w1"},
		info:  &domain.ActionInfo{Priority: 3},
	}

	state, err := res.AsState(context.Background())
	if err != nil {
		t.Fatalf("AsState: %v", err)
	}
	state.WorkerID = "other"

	again, _ := res.AsState(context.Background())
	if again.WorkerID != "w1" {
		t.Errorf("AsState must not expose internal state, got owner %s", again.WorkerID)
	}
	if res.OperationID() != "op-1" {
		t.Errorf("unexpected operation id %s", res.OperationID())
	}
}

func TestBuildFilterQuery_WorkerAndOperation(t *testing.T) {
	query, args := buildFilterQuery(opstate.Filter{
		Stages:      opstate.StageCompleted,
		OperationID: "op-1",
		WorkerID:    "w1",
	})

	want := "WHERE o.stage = ANY($1) AND o.operation_id = $2 AND o.worker_id = $3"
	if !strings.Contains(query, want) {
		t.Errorf("expected %q in %q", want, query)
	}

	stages := args[0].([]string)
	if len(stages) != 2 {
		t.Errorf("completed should expand to success and failure, got %v", stages)
	}
	if args[1] != "op-1" || args[2] != "w1" {
		t.Errorf("unexpected args: %v", args)
	}
}
