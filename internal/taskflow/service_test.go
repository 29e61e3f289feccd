package taskflow

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wenjiegu/notescout/internal/content"
	"github.com/wenjiegu/notescout/internal/executor"
	"github.com/wenjiegu/notescout/internal/llm"
	"github.com/wenjiegu/notescout/internal/tasks"
)

type scriptedBrain struct {
	expand string
}

func (b *scriptedBrain) Generate(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	if strings.Contains(messages[len(messages)-1].Content, "keyword combinations") {
		return b.expand, nil
	}
	return `{"opinions":[]}`, nil
}

func (b *scriptedBrain) GenerateStream(_ context.Context, _ []llm.Message, _ llm.Options, _ llm.DeltaHandler) (string, error) {
	return "", nil
}

// blockingBrain parks the first Generate call until release is closed.
type blockingBrain struct {
	release chan struct{}
}

func (b *blockingBrain) Generate(_ context.Context, _ []llm.Message, _ llm.Options) (string, error) {
	<-b.release
	return "", nil
}

func (b *blockingBrain) GenerateStream(_ context.Context, _ []llm.Message, _ llm.Options, _ llm.DeltaHandler) (string, error) {
	return "", nil
}

func newService(brain llm.Client) (*Service, *tasks.Manager) {
	manager := tasks.NewManager(nil)
	exec := executor.New(manager, brain, content.NewMockService(), nil, nil, executor.Config{MaxKeywordsPerBatch: 2})
	return New(manager, exec, time.Minute), manager
}

func waitForState(t *testing.T, manager *tasks.Manager, taskID string, want tasks.TaskState) tasks.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := manager.Get(taskID)
		if err == nil && snap.State == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap, _ := manager.Get(taskID)
	t.Fatalf("task %s state = %q, want %q", taskID, snap.State, want)
	return tasks.Snapshot{}
}

func TestStartTaskPausesBetweenBatches(t *testing.T) {
	svc, manager := newService(&scriptedBrain{expand: "topic,k2,k3,k4,k5"})

	env := svc.StartTask("topic", "c1", "")
	if env.Status != "success" {
		t.Fatalf("StartTask() = %+v, want success", env)
	}

	snap := waitForState(t, manager, env.TaskID, tasks.StateWaitingUserInput)
	if !snap.UserInputRequired {
		t.Fatalf("snapshot = %+v, want user input required", snap)
	}
}

func TestSubmitUserInputContinueCompletesTask(t *testing.T) {
	svc, manager := newService(&scriptedBrain{expand: "topic,k2,k3,k4,k5"})

	env := svc.StartTask("topic", "c1", "")
	waitForState(t, manager, env.TaskID, tasks.StateWaitingUserInput)

	env = svc.SubmitUserInput(env.TaskID, "c1", true)
	if env.Status != "success" {
		t.Fatalf("SubmitUserInput() = %+v, want success", env)
	}
	waitForState(t, manager, env.TaskID, tasks.StateCompleted)
}

func TestSubmitUserInputDeclineSynthesizesEarly(t *testing.T) {
	svc, manager := newService(&scriptedBrain{expand: "topic,k2,k3,k4,k5"})

	env := svc.StartTask("topic", "c1", "")
	waitForState(t, manager, env.TaskID, tasks.StateWaitingUserInput)

	env = svc.SubmitUserInput(env.TaskID, "c1", false)
	if env.Status != "success" {
		t.Fatalf("SubmitUserInput() = %+v, want success", env)
	}
	snap := waitForState(t, manager, env.TaskID, tasks.StateCompleted)

	// Only the first batch ran.
	if snap.Progress.KeywordsCompleted != 2 {
		t.Fatalf("KeywordsCompleted = %d, want 2", snap.Progress.KeywordsCompleted)
	}

	var analysis *tasks.Analysis
	manager.Inspect(env.TaskID, func(task *tasks.Task) error {
		analysis = task.Context.FinalAnalysis
		return nil
	})
	if analysis == nil {
		t.Fatal("FinalAnalysis not set after decline")
	}
}

func TestCancelUnknownTaskSucceeds(t *testing.T) {
	svc, _ := newService(&scriptedBrain{})

	env := svc.CancelTask("no-such-task", "c1")
	if env.Status != "success" {
		t.Fatalf("CancelTask() = %+v, want success", env)
	}
}

func TestStartTaskReturnsRunningDuplicate(t *testing.T) {
	brain := &blockingBrain{release: make(chan struct{})}
	svc, manager := newService(brain)

	env := svc.StartTask("topic", "c1", "")
	if env.Status != "success" {
		t.Fatalf("StartTask() = %+v, want success", env)
	}

	// The first step is parked inside keyword expansion, so the task is
	// still running when the duplicate request arrives.
	dup := svc.StartTask("topic", "c1", "")
	if dup.Status != "success" {
		t.Fatalf("duplicate StartTask() = %+v, want success", dup)
	}
	if dup.TaskID != env.TaskID {
		t.Fatalf("duplicate StartTask() id = %q, want %q", dup.TaskID, env.TaskID)
	}

	close(brain.release)
	waitForState(t, manager, env.TaskID, tasks.StateCompleted)
}

func TestRunIsSingleFlightPerTask(t *testing.T) {
	svc, _ := newService(&scriptedBrain{})

	var calls atomic.Int32
	release := make(chan struct{})
	blocking := func(context.Context, string) error {
		calls.Add(1)
		<-release
		return nil
	}

	svc.run("t1", blocking)
	svc.run("t1", blocking)
	svc.run("t2", blocking)

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	if got := calls.Load(); got != 2 {
		t.Fatalf("executions = %d, want 2 (one per task)", got)
	}
}
