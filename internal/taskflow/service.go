// Package taskflow glues the task manager and the batch executor
// together behind the API surface: it schedules executor steps, keeps a
// single step in flight per task, and resumes tasks after user input.
package taskflow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/wenjiegu/notescout/internal/executor"
	"github.com/wenjiegu/notescout/internal/observability"
	"github.com/wenjiegu/notescout/internal/protocol"
	"github.com/wenjiegu/notescout/internal/tasks"
)

// Envelope is the status/message pair returned to API callers.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TaskID  string `json:"task_id,omitempty"`
}

func successEnvelope(message, taskID string) Envelope {
	return Envelope{Status: "success", Message: message, TaskID: taskID}
}

func errorEnvelope(message, taskID string) Envelope {
	return Envelope{Status: "error", Message: message, TaskID: taskID}
}

// Pusher delivers a server-initiated payload to one client.
type Pusher interface {
	Push(clientID string, payload any)
}

// TaskNotifier forwards committed task mutations to the owning client
// as search_task_update frames.
type TaskNotifier struct {
	pusher  Pusher
	metrics *observability.Metrics
}

func NewTaskNotifier(pusher Pusher, metrics *observability.Metrics) *TaskNotifier {
	return &TaskNotifier{pusher: pusher, metrics: metrics}
}

func (n *TaskNotifier) TaskChanged(clientID string, event tasks.TaskEvent, snap tasks.Snapshot) {
	if n.metrics != nil {
		n.metrics.TaskEvents.WithLabelValues(string(event)).Inc()
	}
	if n.pusher != nil {
		n.pusher.Push(clientID, protocol.SearchUpdate{
			Type:   protocol.TypeSearchUpdate,
			Action: event,
			Task:   snap,
		})
	}
}

// Service exposes the task operations the API surface calls.
type Service struct {
	manager     *tasks.Manager
	exec        *executor.Executor
	stepTimeout time.Duration

	mu             sync.Mutex
	inFlight       map[string]struct{}
	runningCancels map[string]context.CancelFunc
}

func New(manager *tasks.Manager, exec *executor.Executor, stepTimeout time.Duration) *Service {
	if stepTimeout <= 0 {
		stepTimeout = 10 * time.Minute
	}
	return &Service{
		manager:        manager,
		exec:           exec,
		stepTimeout:    stepTimeout,
		inFlight:       make(map[string]struct{}),
		runningCancels: make(map[string]context.CancelFunc),
	}
}

// StartTask creates and launches a task under clientID. taskID, when
// set, names a previously proposed pending task to promote instead.
func (s *Service) StartTask(keywords, clientID, taskID string) Envelope {
	snap, err := s.manager.CreateTask(keywords, clientID, taskID)
	if err != nil {
		return errorEnvelope(err.Error(), taskID)
	}
	s.scheduleStep(snap.ID)
	return successEnvelope("search task started", snap.ID)
}

// CancelTask stops a task. Cancelling a task that is already gone
// reports success.
func (s *Service) CancelTask(taskID, clientID string) Envelope {
	if cancel := s.getRunningCancel(taskID); cancel != nil {
		cancel()
	}
	if err := s.manager.Cancel(taskID, clientID); err != nil {
		return errorEnvelope(err.Error(), taskID)
	}
	return successEnvelope("task cancelled", taskID)
}

// ListTasks returns the snapshots of every task owned by clientID.
func (s *Service) ListTasks(clientID string) []tasks.Snapshot {
	return s.manager.ClientTasks(clientID)
}

// SubmitUserInput answers a pending batch confirmation. Declining stops
// the search and synthesizes what was collected so far.
func (s *Service) SubmitUserInput(taskID, clientID string, continueSearch bool) Envelope {
	if err := s.manager.ReceiveUserInput(taskID, clientID, tasks.UserInput{ContinueSearch: continueSearch}); err != nil {
		return errorEnvelope(err.Error(), taskID)
	}
	if continueSearch {
		s.scheduleStep(taskID)
		return successEnvelope("search resumed", taskID)
	}
	s.scheduleFinalize(taskID)
	return successEnvelope("search stopped, synthesizing results", taskID)
}

// scheduleStep runs one executor step in the background. A task never
// has more than one step in flight.
func (s *Service) scheduleStep(taskID string) {
	s.run(taskID, s.exec.Step)
}

func (s *Service) scheduleFinalize(taskID string) {
	s.run(taskID, s.exec.Finalize)
}

func (s *Service) run(taskID string, fn func(context.Context, string) error) {
	s.mu.Lock()
	if _, busy := s.inFlight[taskID]; busy {
		s.mu.Unlock()
		return
	}
	s.inFlight[taskID] = struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), s.stepTimeout)
	s.runningCancels[taskID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.inFlight, taskID)
			delete(s.runningCancels, taskID)
			s.mu.Unlock()
		}()

		if err := fn(ctx, taskID); err != nil {
			log.Printf("taskflow: task %s step failed: %v", taskID, err)
			s.manager.Fail(taskID, err.Error())
		}
	}()
}

func (s *Service) getRunningCancel(taskID string) context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningCancels[taskID]
}
