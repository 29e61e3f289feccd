package tasks

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotOwner          = errors.New("task belongs to another client")
	ErrNotPending        = errors.New("task is not pending")
	ErrDuplicateTask     = errors.New("task with same keywords already active")
)

// Notifier receives task lifecycle updates after every committed
// mutation. Implementations must not call back into the Manager.
type Notifier interface {
	TaskChanged(clientID string, event TaskEvent, snap Snapshot)
}

// transitions lists the legal target states per source state. A
// transition to the current state is always allowed so progress events
// can flow through the same chokepoint.
var transitions = map[TaskState][]TaskState{
	StatePending:          {StateRunning, StateCancelled},
	StateRunning:          {StateWaitingUserInput, StateWaitingBrowser, StateAnalyzing, StatePaused, StateCompleted, StateFailed, StateCancelled},
	StateWaitingUserInput: {StateRunning, StateCancelled, StateFailed},
	StateWaitingBrowser:   {StateRunning, StateFailed, StateCancelled},
	StateAnalyzing:        {StateRunning, StateCompleted, StateFailed, StateCancelled},
	StatePaused:           {StateRunning, StateCancelled, StateFailed},
	StateCompleted:        {},
	StateFailed:           {},
	StateCancelled:        {},
}

func transitionAllowed(from, to TaskState) bool {
	if from == to {
		return true
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Manager owns every task and serializes all mutation behind a lock.
type Manager struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	notifier Notifier
}

func NewManager(notifier Notifier) *Manager {
	return &Manager{
		tasks:    make(map[string]*Task),
		notifier: notifier,
	}
}

// CreateTask registers a new running task for clientID. When taskID
// names an existing pending task owned by the client it is promoted to
// running instead. Starting the same keywords again while the first
// task is still running returns the running task rather than a second
// copy.
func (m *Manager) CreateTask(keywords, clientID, taskID string) (Snapshot, error) {
	keywords = strings.TrimSpace(keywords)

	m.mu.Lock()
	defer m.mu.Unlock()

	if taskID != "" {
		task, ok := m.tasks[taskID]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		if task.ClientID != clientID {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNotOwner, taskID)
		}
		if task.State != StatePending {
			return Snapshot{}, fmt.Errorf("%w: %s is %s", ErrNotPending, taskID, task.State)
		}
		task.UpdateState(StateRunning, EventStart, "task started")
		snap := task.Snapshot()
		m.publishLocked(task, EventStart)
		return snap, nil
	}

	if dup := m.findRunningLocked(clientID, keywords); dup != nil {
		return dup.Snapshot(), nil
	}

	task := NewTask(keywords, clientID)
	task.UpdateState(StateRunning, EventStart, "task started")
	m.tasks[task.ID] = task
	snap := task.Snapshot()
	m.publishLocked(task, EventStart)
	return snap, nil
}

// CreatePendingTask registers a task that waits for client confirmation
// before it starts. No notification is published; the caller announces
// the proposal through its own channel.
func (m *Manager) CreatePendingTask(keywords, clientID string) (Snapshot, error) {
	keywords = strings.TrimSpace(keywords)

	m.mu.Lock()
	defer m.mu.Unlock()

	if dup := m.findRunningLocked(clientID, keywords); dup != nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateTask, dup.ID)
	}

	task := NewTask(keywords, clientID)
	m.tasks[task.ID] = task
	return task.Snapshot(), nil
}

// UpdateState applies one transition through the legality table and
// publishes the result.
func (m *Manager) UpdateState(taskID string, newState TaskState, event TaskEvent, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !transitionAllowed(task.State, newState) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.State, newState)
	}
	task.UpdateState(newState, event, message)
	m.publishLocked(task, event)
	return nil
}

// RequestUserInput moves the task into waiting_user_input and records
// what the client is being asked.
func (m *Manager) RequestUserInput(taskID string, req InputRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !transitionAllowed(task.State, StateWaitingUserInput) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.State, StateWaitingUserInput)
	}
	task.InputRequest = &req
	task.UpdateState(StateWaitingUserInput, EventRequireInput, req.Prompt)
	m.publishLocked(task, EventRequireInput)
	return nil
}

// ReceiveUserInput stores the client's answer, clears the pending
// request, and resumes the task.
func (m *Manager) ReceiveUserInput(taskID, clientID string, input UserInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.ClientID != clientID {
		return fmt.Errorf("%w: %s", ErrNotOwner, taskID)
	}
	if task.State != StateWaitingUserInput {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.State, StateRunning)
	}
	in := input
	task.Context.UserInput = &in
	task.InputRequest = nil
	task.UpdateState(StateRunning, EventReceiveInput, "user input received")
	m.publishLocked(task, EventReceiveInput)
	return nil
}

// Cancel stops a task. Cancelling an unknown or already finished task
// succeeds: the requested outcome already holds.
func (m *Manager) Cancel(taskID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	if task.ClientID != clientID {
		return fmt.Errorf("%w: %s", ErrNotOwner, taskID)
	}
	if task.Terminal() {
		return nil
	}
	task.InputRequest = nil
	task.UpdateState(StateCancelled, EventCancel, "cancelled by client")
	m.publishLocked(task, EventCancel)
	return nil
}

// Fail marks the task failed with the given reason.
func (m *Manager) Fail(taskID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Terminal() {
		return nil
	}
	task.Error = reason
	task.InputRequest = nil
	task.UpdateState(StateFailed, EventFail, reason)
	m.publishLocked(task, EventFail)
	return nil
}

// Get returns the client-facing snapshot of one task.
func (m *Manager) Get(taskID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task.Snapshot(), nil
}

// ClientTasks lists snapshots of every task owned by clientID.
func (m *Manager) ClientTasks(clientID string) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var snaps []Snapshot
	for _, task := range m.tasks {
		if task.ClientID == clientID {
			snaps = append(snaps, task.Snapshot())
		}
	}
	return snaps
}

// Mutate runs fn against the task under the write lock and publishes a
// progress event when fn succeeds. fn must not block or call back into
// the manager.
func (m *Manager) Mutate(taskID string, fn func(*Task) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err := fn(task); err != nil {
		return err
	}
	m.publishLocked(task, EventProgress)
	return nil
}

// Inspect runs fn against the task under the read lock. fn must not
// mutate the task or retain the pointer.
func (m *Manager) Inspect(taskID string, fn func(*Task) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return fn(task)
}

func (m *Manager) findRunningLocked(clientID, keywords string) *Task {
	want := normalizeKeywords(keywords)
	for _, task := range m.tasks {
		if task.ClientID == clientID && task.State == StateRunning && normalizeKeywords(task.Keywords) == want {
			return task
		}
	}
	return nil
}

func (m *Manager) publishLocked(task *Task, event TaskEvent) {
	if m.notifier == nil {
		return
	}
	m.notifier.TaskChanged(task.ClientID, event, task.Snapshot())
}

func normalizeKeywords(keywords string) string {
	return strings.Join(strings.Fields(strings.ToLower(keywords)), " ")
}
