// Package tasks holds the lifecycle model for long-running research
// tasks: state, progress, collected results, and the manager that owns
// every mutation.
package tasks

import (
	"time"

	"github.com/google/uuid"

	"github.com/wenjiegu/notescout/internal/content"
)

// TaskState is the lifecycle state of a research task.
type TaskState string

const (
	StatePending          TaskState = "pending"
	StateRunning          TaskState = "running"
	StateWaitingUserInput TaskState = "waiting_user_input"
	StateWaitingBrowser   TaskState = "waiting_browser"
	StateAnalyzing        TaskState = "analyzing"
	StatePaused           TaskState = "paused"
	StateCompleted        TaskState = "completed"
	StateFailed           TaskState = "failed"
	StateCancelled        TaskState = "cancelled"
)

// TaskEvent names the trigger that caused a state change.
type TaskEvent string

const (
	EventStart        TaskEvent = "start"
	EventPause        TaskEvent = "pause"
	EventResume       TaskEvent = "resume"
	EventCancel       TaskEvent = "cancel"
	EventRequireInput TaskEvent = "require_input"
	EventReceiveInput TaskEvent = "receive_input"
	EventComplete     TaskEvent = "complete"
	EventFail         TaskEvent = "fail"
	EventProgress     TaskEvent = "progress"
)

// Progress tracks how far a task has advanced through its keywords,
// notes, and comments.
type Progress struct {
	CurrentKeyword    string  `json:"current_keyword"`
	KeywordsTotal     int     `json:"keywords_total"`
	KeywordsCompleted int     `json:"keywords_completed"`
	NotesTotal        int     `json:"notes_total"`
	NotesProcessed    int     `json:"notes_processed"`
	CommentsTotal     int     `json:"comments_total"`
	CommentsProcessed int     `json:"comments_processed"`
	Percentage        float64 `json:"percentage"`
}

// Opinion is a single viewpoint extracted from a note or its comments.
type Opinion struct {
	Point   string `json:"point"`
	Stance  string `json:"stance"`
	Support int    `json:"support"`
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
}

// AnalysisStats summarizes the raw material behind a final analysis.
type AnalysisStats struct {
	Keywords int `json:"keywords"`
	Notes    int `json:"notes"`
	Comments int `json:"comments"`
	Opinions int `json:"opinions"`
}

// Analysis is the synthesized outcome of a completed task.
type Analysis struct {
	Summary       string        `json:"summary"`
	Trends        []string      `json:"trends"`
	Controversies []string      `json:"controversies"`
	Stats         AnalysisStats `json:"stats"`
}

// UserInput is the client's answer to a pending input request.
type UserInput struct {
	ContinueSearch bool `json:"continue_search"`
}

// InputRequest describes what the task is waiting on from the client.
type InputRequest struct {
	Kind              string   `json:"type"`
	Prompt            string   `json:"message"`
	Batch             int      `json:"batch"`
	CurrentResults    int      `json:"current_results"`
	RemainingKeywords []string `json:"remaining_keywords"`
}

// TaskContext is the execution scratchpad a task carries between steps.
type TaskContext struct {
	ExpandedKeywords  []string   `json:"expanded_keywords"`
	BatchCursor       int        `json:"batch_cursor"`
	CollectedOpinions []Opinion  `json:"collected_opinions"`
	FinalAnalysis     *Analysis  `json:"final_analysis,omitempty"`
	UserInput         *UserInput `json:"user_input,omitempty"`
}

// Result is one fully processed note under one keyword.
type Result struct {
	Keyword  string             `json:"keyword"`
	Note     content.Note       `json:"note"`
	Detail   content.NoteDetail `json:"detail"`
	Comments []content.Comment  `json:"comments"`
	Opinions []Opinion          `json:"opinions"`
}

// StateChange is one entry in a task's transition history.
type StateChange struct {
	Timestamp time.Time `json:"timestamp"`
	From      TaskState `json:"from"`
	To        TaskState `json:"to"`
	Event     TaskEvent `json:"event"`
	Message   string    `json:"message,omitempty"`
}

// Task is a single research task. All mutation goes through the Manager.
type Task struct {
	ID           string        `json:"task_id"`
	Keywords     string        `json:"keywords"`
	ClientID     string        `json:"client_id"`
	State        TaskState     `json:"state"`
	Progress     Progress      `json:"progress"`
	Context      TaskContext   `json:"context"`
	Results      []Result      `json:"results"`
	History      []StateChange `json:"history"`
	InputRequest *InputRequest `json:"input_request,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
}

// NewTask creates a pending task owned by clientID.
func NewTask(keywords, clientID string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Keywords:  keywords,
		ClientID:  clientID,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
}

// UpdateState records the transition in history and applies it. The
// first transition into a terminal state stamps EndedAt.
func (t *Task) UpdateState(newState TaskState, event TaskEvent, message string) {
	t.History = append(t.History, StateChange{
		Timestamp: time.Now().UTC(),
		From:      t.State,
		To:        newState,
		Event:     event,
		Message:   message,
	})
	t.State = newState
	if t.Terminal() && t.EndedAt == nil {
		now := time.Now().UTC()
		t.EndedAt = &now
	}
}

// Terminal reports whether the task can no longer change state.
func (t *Task) Terminal() bool {
	switch t.State {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// LastMessage returns the message of the most recent state change.
func (t *Task) LastMessage() string {
	if len(t.History) == 0 {
		return ""
	}
	return t.History[len(t.History)-1].Message
}

// Snapshot is the client-facing projection of a task.
type Snapshot struct {
	ID                string     `json:"task_id"`
	Keywords          string     `json:"keywords"`
	ClientID          string     `json:"client_id"`
	State             TaskState  `json:"state"`
	Progress          Progress   `json:"progress"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	Error             string     `json:"error,omitempty"`
	ResultsCount      int        `json:"results_count"`
	UserInputRequired bool       `json:"user_input_required"`
	LastMessage       string     `json:"last_message,omitempty"`
}

// Snapshot projects the task into its client-facing form.
func (t *Task) Snapshot() Snapshot {
	snap := Snapshot{
		ID:                t.ID,
		Keywords:          t.Keywords,
		ClientID:          t.ClientID,
		State:             t.State,
		Progress:          t.Progress,
		StartTime:         t.CreatedAt,
		Error:             t.Error,
		ResultsCount:      len(t.Results),
		UserInputRequired: t.InputRequest != nil,
		LastMessage:       t.LastMessage(),
	}
	if t.EndedAt != nil {
		end := *t.EndedAt
		snap.EndTime = &end
	}
	return snap
}
