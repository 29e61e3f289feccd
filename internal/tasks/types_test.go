package tasks

import "testing"

func TestNewTaskDefaults(t *testing.T) {
	task := NewTask("coffee shops", "client-1")

	if task.ID == "" {
		t.Fatal("NewTask() ID is empty")
	}
	if task.State != StatePending {
		t.Fatalf("NewTask() state = %q, want %q", task.State, StatePending)
	}
	if task.Keywords != "coffee shops" || task.ClientID != "client-1" {
		t.Fatalf("NewTask() keywords/client = %q/%q", task.Keywords, task.ClientID)
	}
	if task.CreatedAt.IsZero() {
		t.Fatal("NewTask() CreatedAt is zero")
	}
}

func TestUpdateStateStampsEndedAtOnce(t *testing.T) {
	task := NewTask("k", "c")
	task.UpdateState(StateRunning, EventStart, "go")
	if task.EndedAt != nil {
		t.Fatal("EndedAt set before terminal state")
	}

	task.UpdateState(StateFailed, EventFail, "boom")
	if task.EndedAt == nil {
		t.Fatal("EndedAt not set on terminal state")
	}
	first := *task.EndedAt

	task.UpdateState(StateFailed, EventFail, "boom again")
	if !task.EndedAt.Equal(first) {
		t.Fatalf("EndedAt restamped: %v != %v", task.EndedAt, first)
	}

	if len(task.History) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(task.History))
	}
	if task.LastMessage() != "boom again" {
		t.Fatalf("LastMessage() = %q, want %q", task.LastMessage(), "boom again")
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		state TaskState
		want  bool
	}{
		{StatePending, false},
		{StateRunning, false},
		{StateWaitingUserInput, false},
		{StateAnalyzing, false},
		{StatePaused, false},
		{StateCompleted, true},
		{StateFailed, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		task := &Task{State: tt.state}
		if got := task.Terminal(); got != tt.want {
			t.Fatalf("Terminal() for %q = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSnapshotProjection(t *testing.T) {
	task := NewTask("k", "c")
	task.UpdateState(StateRunning, EventStart, "started")
	task.Results = append(task.Results, Result{Keyword: "k"})
	task.InputRequest = &InputRequest{Kind: "batch_confirmation", Prompt: "continue?"}

	snap := task.Snapshot()
	if snap.ID != task.ID || snap.State != StateRunning {
		t.Fatalf("Snapshot() = %+v", snap)
	}
	if snap.ResultsCount != 1 {
		t.Fatalf("Snapshot() ResultsCount = %d, want 1", snap.ResultsCount)
	}
	if !snap.UserInputRequired {
		t.Fatal("Snapshot() UserInputRequired = false, want true")
	}
	if snap.LastMessage != "started" {
		t.Fatalf("Snapshot() LastMessage = %q, want %q", snap.LastMessage, "started")
	}
	if snap.EndTime != nil {
		t.Fatal("Snapshot() EndTime set for running task")
	}
}
