package tasks

import (
	"errors"
	"testing"
)

type recordingNotifier struct {
	events []TaskEvent
}

func (r *recordingNotifier) TaskChanged(_ string, event TaskEvent, _ Snapshot) {
	r.events = append(r.events, event)
}

func TestCreateTaskAndDuplicate(t *testing.T) {
	m := NewManager(nil)

	snap, err := m.CreateTask("  coffee shops ", "client-1", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v, want nil", err)
	}
	if snap.State != StateRunning {
		t.Fatalf("CreateTask() state = %q, want %q", snap.State, StateRunning)
	}
	if snap.Keywords != "coffee shops" {
		t.Fatalf("CreateTask() keywords = %q, want trimmed %q", snap.Keywords, "coffee shops")
	}

	// Starting the same keywords again yields the running task, not a copy.
	dup, err := m.CreateTask("  Coffee   Shops ", "client-1", "")
	if err != nil {
		t.Fatalf("duplicate CreateTask() error = %v, want nil", err)
	}
	if dup.ID != snap.ID {
		t.Fatalf("duplicate CreateTask() id = %q, want %q", dup.ID, snap.ID)
	}

	// Same keywords for a different client are a separate task.
	other, err := m.CreateTask("coffee shops", "client-2", "")
	if err != nil {
		t.Fatalf("CreateTask() other client error = %v, want nil", err)
	}
	if other.ID == snap.ID {
		t.Fatalf("other client CreateTask() id = %q, want a new task", other.ID)
	}

	// After the first task finishes, the keywords map to a fresh task.
	if err := m.Fail(snap.ID, "gone"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	fresh, err := m.CreateTask("coffee shops", "client-1", "")
	if err != nil {
		t.Fatalf("CreateTask() after failure error = %v, want nil", err)
	}
	if fresh.ID == snap.ID {
		t.Fatalf("CreateTask() after failure id = %q, want a new task", fresh.ID)
	}
}

func TestCreatePendingTaskSkipsRunningKeywords(t *testing.T) {
	m := NewManager(nil)

	if _, err := m.CreateTask("coffee shops", "client-1", ""); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := m.CreatePendingTask("coffee shops", "client-1"); !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("CreatePendingTask() error = %v, want ErrDuplicateTask", err)
	}
}

func TestPendingPromotion(t *testing.T) {
	m := NewManager(nil)

	pending, err := m.CreatePendingTask("hiking trails", "client-1")
	if err != nil {
		t.Fatalf("CreatePendingTask() error = %v", err)
	}
	if pending.State != StatePending {
		t.Fatalf("CreatePendingTask() state = %q, want %q", pending.State, StatePending)
	}

	if _, err := m.CreateTask("", "client-2", pending.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("promotion by other client error = %v, want ErrNotOwner", err)
	}

	snap, err := m.CreateTask("", "client-1", pending.ID)
	if err != nil {
		t.Fatalf("promotion error = %v, want nil", err)
	}
	if snap.State != StateRunning {
		t.Fatalf("promoted state = %q, want %q", snap.State, StateRunning)
	}

	if _, err := m.CreateTask("", "client-1", pending.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second promotion error = %v, want ErrNotPending", err)
	}
	if _, err := m.CreateTask("", "client-1", "no-such-task"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("unknown id promotion error = %v, want ErrTaskNotFound", err)
	}
}

func TestUpdateStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    TaskState
		to      TaskState
		allowed bool
	}{
		{name: "running to waiting input", from: StateRunning, to: StateWaitingUserInput, allowed: true},
		{name: "running to analyzing", from: StateRunning, to: StateAnalyzing, allowed: true},
		{name: "analyzing to completed", from: StateAnalyzing, to: StateCompleted, allowed: true},
		{name: "waiting input to running", from: StateWaitingUserInput, to: StateRunning, allowed: true},
		{name: "same state progress", from: StateRunning, to: StateRunning, allowed: true},
		{name: "pending to completed", from: StatePending, to: StateCompleted, allowed: false},
		{name: "completed to running", from: StateCompleted, to: StateRunning, allowed: false},
		{name: "cancelled to failed", from: StateCancelled, to: StateFailed, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transitionAllowed(tt.from, tt.to); got != tt.allowed {
				t.Fatalf("transitionAllowed(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestUserInputRoundTrip(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewManager(notifier)

	snap, err := m.CreateTask("k", "client-1", "")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	req := InputRequest{Kind: "batch_confirmation", Prompt: "continue?", Batch: 1}
	if err := m.RequestUserInput(snap.ID, req); err != nil {
		t.Fatalf("RequestUserInput() error = %v", err)
	}

	got, err := m.Get(snap.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateWaitingUserInput || !got.UserInputRequired {
		t.Fatalf("Get() after request = %+v", got)
	}

	if err := m.ReceiveUserInput(snap.ID, "client-2", UserInput{ContinueSearch: true}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("ReceiveUserInput() other client error = %v, want ErrNotOwner", err)
	}

	if err := m.ReceiveUserInput(snap.ID, "client-1", UserInput{ContinueSearch: true}); err != nil {
		t.Fatalf("ReceiveUserInput() error = %v", err)
	}
	got, _ = m.Get(snap.ID)
	if got.State != StateRunning || got.UserInputRequired {
		t.Fatalf("Get() after input = %+v", got)
	}

	if err := m.ReceiveUserInput(snap.ID, "client-1", UserInput{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ReceiveUserInput() while running error = %v, want ErrInvalidTransition", err)
	}

	want := []TaskEvent{EventStart, EventRequireInput, EventReceiveInput}
	if len(notifier.events) != len(want) {
		t.Fatalf("notifier events = %v, want %v", notifier.events, want)
	}
	for i, e := range want {
		if notifier.events[i] != e {
			t.Fatalf("notifier events[%d] = %q, want %q", i, notifier.events[i], e)
		}
	}
}

func TestCancelSemantics(t *testing.T) {
	m := NewManager(nil)

	// Unknown task: the requested outcome already holds.
	if err := m.Cancel("no-such-task", "client-1"); err != nil {
		t.Fatalf("Cancel() unknown task error = %v, want nil", err)
	}

	snap, _ := m.CreateTask("k", "client-1", "")

	if err := m.Cancel(snap.ID, "client-2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("Cancel() other client error = %v, want ErrNotOwner", err)
	}

	if err := m.Cancel(snap.ID, "client-1"); err != nil {
		t.Fatalf("Cancel() error = %v, want nil", err)
	}
	got, _ := m.Get(snap.ID)
	if got.State != StateCancelled {
		t.Fatalf("state after cancel = %q, want %q", got.State, StateCancelled)
	}

	// Cancelling twice is a no-op.
	if err := m.Cancel(snap.ID, "client-1"); err != nil {
		t.Fatalf("second Cancel() error = %v, want nil", err)
	}
}

func TestMutateAndClientTasks(t *testing.T) {
	m := NewManager(nil)
	snap, _ := m.CreateTask("k", "client-1", "")
	m.CreateTask("other", "client-2", "")

	err := m.Mutate(snap.ID, func(task *Task) error {
		task.Progress.NotesProcessed = 3
		task.Context.BatchCursor = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	got, _ := m.Get(snap.ID)
	if got.Progress.NotesProcessed != 3 {
		t.Fatalf("NotesProcessed = %d, want 3", got.Progress.NotesProcessed)
	}

	wantErr := errors.New("refused")
	if err := m.Mutate(snap.ID, func(*Task) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("Mutate() error = %v, want %v", err, wantErr)
	}

	if list := m.ClientTasks("client-1"); len(list) != 1 {
		t.Fatalf("ClientTasks(client-1) = %d tasks, want 1", len(list))
	}
	if list := m.ClientTasks("nobody"); len(list) != 0 {
		t.Fatalf("ClientTasks(nobody) = %d tasks, want 0", len(list))
	}
}
