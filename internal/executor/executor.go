// Package executor runs the batched search and synthesis pipeline that
// powers a research task.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wenjiegu/notescout/internal/content"
	"github.com/wenjiegu/notescout/internal/jsonx"
	"github.com/wenjiegu/notescout/internal/llm"
	"github.com/wenjiegu/notescout/internal/observability"
	"github.com/wenjiegu/notescout/internal/protocol"
	"github.com/wenjiegu/notescout/internal/tasks"
)

const maxExpandedKeywords = 5

// Pusher delivers a server-initiated payload to one client.
type Pusher interface {
	Push(clientID string, payload any)
}

// Config bounds how much work one task may perform.
type Config struct {
	MaxNotesPerBatch    int
	MaxKeywordsPerBatch int
	MaxBatches          int
	Model               string
}

// Executor advances tasks one batch at a time. Between batches the task
// parks in waiting_user_input until the client confirms.
type Executor struct {
	manager *tasks.Manager
	brain   llm.Client
	notes   content.Service
	pusher  Pusher
	metrics *observability.Metrics
	cfg     Config
}

func New(manager *tasks.Manager, brain llm.Client, notes content.Service, pusher Pusher, metrics *observability.Metrics, cfg Config) *Executor {
	if cfg.MaxNotesPerBatch <= 0 {
		cfg.MaxNotesPerBatch = 5
	}
	if cfg.MaxKeywordsPerBatch <= 0 {
		cfg.MaxKeywordsPerBatch = 2
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = 5
	}
	return &Executor{
		manager: manager,
		brain:   brain,
		notes:   notes,
		pusher:  pusher,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Step executes one batch of the task: expand keywords on the first
// call, search the current keyword group, process its notes, then
// either park for confirmation or finalize.
func (e *Executor) Step(ctx context.Context, taskID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task step panic: %v", r)
			e.manager.Fail(taskID, err.Error())
		}
	}()

	var (
		clientID string
		seed     string
		keywords []string
		cursor   int
		state    tasks.TaskState
	)
	readErr := e.manager.Inspect(taskID, func(t *tasks.Task) error {
		clientID = t.ClientID
		seed = t.Keywords
		keywords = append([]string(nil), t.Context.ExpandedKeywords...)
		cursor = t.Context.BatchCursor
		state = t.State
		return nil
	})
	if readErr != nil {
		return readErr
	}
	if state != tasks.StateRunning {
		return nil
	}

	if len(keywords) == 0 {
		e.pushProgress(clientID, fmt.Sprintf("Starting search for %q...", seed))
		keywords = e.expandKeywords(ctx, seed)
		if err := e.manager.Mutate(taskID, func(t *tasks.Task) error {
			t.Context.ExpandedKeywords = keywords
			t.Context.BatchCursor = 0
			t.Progress.KeywordsTotal = len(keywords)
			return nil
		}); err != nil {
			return err
		}
		e.pushProgress(clientID, "Search keywords: "+strings.Join(keywords, ", "))
	}

	batchStart := cursor * e.cfg.MaxKeywordsPerBatch
	if batchStart >= len(keywords) {
		return e.Finalize(ctx, taskID)
	}

	// A lone trailing keyword is folded into this batch rather than
	// becoming a batch of one.
	remaining := len(keywords) - batchStart
	var batch []string
	if remaining <= e.cfg.MaxKeywordsPerBatch+1 {
		batch = keywords[batchStart:]
	} else {
		batch = keywords[batchStart : batchStart+e.cfg.MaxKeywordsPerBatch]
	}

	combined := strings.Join(batch, " ")
	e.pushProgress(clientID, fmt.Sprintf("Searching keyword group: %s", combined))

	if err := e.manager.Mutate(taskID, func(t *tasks.Task) error {
		t.Progress.CurrentKeyword = combined
		t.Progress.KeywordsTotal = len(keywords)
		t.Progress.KeywordsCompleted = batchStart + len(batch)
		t.Progress.Percentage = percentage(t.Progress.KeywordsCompleted, t.Progress.KeywordsTotal)
		return nil
	}); err != nil {
		return err
	}

	batchStarted := time.Now()
	searchRes, searchErr := e.notes.Search(ctx, combined)
	switch {
	case searchErr != nil:
		e.countCollaboratorError("content", "search")
		e.pushProgress(clientID, fmt.Sprintf("Search for %q failed, moving on: %v", combined, searchErr))
	case !searchRes.OK():
		e.countCollaboratorError("content", "search_status")
		e.pushProgress(clientID, fmt.Sprintf("Search for %q returned no usable results.", combined))
	default:
		notes := searchRes.Results
		if len(notes) > e.cfg.MaxNotesPerBatch {
			notes = notes[:e.cfg.MaxNotesPerBatch]
		}
		if err := e.manager.Mutate(taskID, func(t *tasks.Task) error {
			t.Progress.NotesTotal += len(notes)
			return nil
		}); err != nil {
			return err
		}
		e.processNotes(ctx, taskID, clientID, notes, combined)
	}
	if e.metrics != nil {
		e.metrics.ObserveBatchDuration(time.Since(batchStarted))
	}

	var notesProcessed, commentsProcessed, resultsCount int
	e.manager.Inspect(taskID, func(t *tasks.Task) error {
		notesProcessed = t.Progress.NotesProcessed
		commentsProcessed = t.Progress.CommentsProcessed
		resultsCount = len(t.Results)
		state = t.State
		return nil
	})
	if state != tasks.StateRunning {
		return nil
	}

	e.pushProgress(clientID, fmt.Sprintf(
		"Finished batch %d (keywords: %s), %d notes and %d comments processed so far.",
		cursor+1, combined, notesProcessed, commentsProcessed))

	if err := e.manager.Mutate(taskID, func(t *tasks.Task) error {
		t.Context.BatchCursor = cursor + 1
		return nil
	}); err != nil {
		return err
	}

	leftover := keywords[batchStart+len(batch):]
	if len(leftover) > 0 {
		return e.manager.RequestUserInput(taskID, tasks.InputRequest{
			Kind:              "continue_search",
			Prompt:            fmt.Sprintf("Batch %d finished, %d keywords left. Continue searching?", cursor+1, len(leftover)),
			Batch:             cursor + 1,
			CurrentResults:    resultsCount,
			RemainingKeywords: append([]string(nil), leftover...),
		})
	}
	return e.Finalize(ctx, taskID)
}

func (e *Executor) processNotes(ctx context.Context, taskID, clientID string, notes []content.Note, keyword string) {
	for i, note := range notes {
		var state tasks.TaskState
		if err := e.manager.Inspect(taskID, func(t *tasks.Task) error {
			state = t.State
			return nil
		}); err != nil || state != tasks.StateRunning {
			return
		}

		title := note.Title
		if title == "" {
			title = "untitled"
		}
		e.pushProgress(clientID, fmt.Sprintf("Processing note (%d/%d): %s", i+1, len(notes), title))

		detail, err := e.notes.FetchNote(ctx, note.ID, note.XsecToken)
		if err != nil || !detail.OK() {
			// A single broken note never sinks the batch.
			e.countCollaboratorError("content", "fetch_note")
			continue
		}

		opinions := e.extractOpinions(ctx, keyword, note, detail)

		e.manager.Mutate(taskID, func(t *tasks.Task) error {
			t.Progress.NotesProcessed++
			t.Progress.CommentsTotal += len(detail.Comments)
			t.Progress.CommentsProcessed += len(detail.Comments)
			t.Results = append(t.Results, tasks.Result{
				Keyword:  keyword,
				Note:     note,
				Detail:   detail.Note,
				Comments: detail.Comments,
				Opinions: opinions,
			})
			t.Context.CollectedOpinions = append(t.Context.CollectedOpinions, opinions...)
			return nil
		})
	}
}

// Finalize synthesizes the collected opinions into a final analysis and
// completes the task. It recovers its own panics because the decline
// path invokes it directly, outside Step.
func (e *Executor) Finalize(ctx context.Context, taskID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task finalize panic: %v", r)
			e.manager.Fail(taskID, err.Error())
		}
	}()

	var (
		clientID string
		seed     string
		state    tasks.TaskState
	)
	if err := e.manager.Inspect(taskID, func(t *tasks.Task) error {
		clientID = t.ClientID
		seed = t.Keywords
		state = t.State
		return nil
	}); err != nil {
		return err
	}
	if state != tasks.StateRunning {
		return nil
	}

	if err := e.manager.UpdateState(taskID, tasks.StateAnalyzing, tasks.EventProgress, "synthesizing collected results"); err != nil {
		return err
	}

	var (
		opinions []tasks.Opinion
		progress tasks.Progress
		results  []tasks.Result
	)
	e.manager.Inspect(taskID, func(t *tasks.Task) error {
		opinions = append([]tasks.Opinion(nil), t.Context.CollectedOpinions...)
		progress = t.Progress
		results = append([]tasks.Result(nil), t.Results...)
		return nil
	})

	stats := tasks.AnalysisStats{
		Keywords: progress.KeywordsCompleted,
		Notes:    progress.NotesProcessed,
		Comments: progress.CommentsProcessed,
		Opinions: len(opinions),
	}
	analysis := e.synthesize(ctx, seed, opinions, stats)

	if err := e.manager.Mutate(taskID, func(t *tasks.Task) error {
		if t.Context.FinalAnalysis == nil {
			t.Context.FinalAnalysis = &analysis
		}
		return nil
	}); err != nil {
		return err
	}

	if e.pusher != nil {
		resultNotes := make([]protocol.ResultNote, 0, len(results))
		for _, r := range results {
			resultNotes = append(resultNotes, protocol.ResultNote{
				Title:      r.Note.Title,
				Nickname:   r.Note.Nickname,
				LikedCount: r.Note.LikedCount,
				Keyword:    r.Keyword,
			})
		}
		e.pusher.Push(clientID, protocol.SearchResult{
			Type: protocol.TypeSearchResult,
			Content: protocol.SearchResultContent{
				TaskID:   taskID,
				Keywords: seed,
				Analysis: analysis,
				Notes:    resultNotes,
			},
		})
	}

	summary := fmt.Sprintf(
		"Search finished. Processed %d/%d keywords, %d notes, %d comments.",
		progress.KeywordsCompleted, progress.KeywordsTotal,
		progress.NotesProcessed, progress.CommentsProcessed)
	e.push(clientID, protocol.ChatResponse{
		Type:    protocol.TypeChatResponse,
		Content: summary,
	})

	return e.manager.UpdateState(taskID, tasks.StateCompleted, tasks.EventComplete, summary)
}

// expandKeywords asks the model for related keyword combinations. The
// list is capped at what the configured batch count can consume. Any
// failure degrades to searching the seed alone.
func (e *Executor) expandKeywords(ctx context.Context, seed string) []string {
	limit := e.cfg.MaxKeywordsPerBatch * e.cfg.MaxBatches
	if limit <= 0 || limit > maxExpandedKeywords {
		limit = maxExpandedKeywords
	}

	prompt := fmt.Sprintf(`Based on the topic %q, generate 3-5 related search keyword combinations.
Requirements:
1. Keywords must be specific and targeted
2. Consider different search angles
3. Return keywords directly, separated by commas
4. Do not include any explanations or other text`, seed)

	response, err := e.brain.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a search keyword optimization expert. Return only keywords without explanations."},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{Model: e.cfg.Model})
	if err != nil || strings.TrimSpace(response) == "" {
		e.countCollaboratorError("llm", "expand_keywords")
		return []string{seed}
	}

	var keywords []string
	for _, kw := range strings.Split(response, ",") {
		kw = strings.TrimSpace(kw)
		if kw == "" || utf8.RuneCountInString(kw) > 30 {
			continue
		}
		if strings.ContainsAny(kw, "\n\r.") {
			continue
		}
		if len(keywords) >= limit {
			break
		}
		keywords = append(keywords, kw)
	}

	if !contains(keywords, seed) {
		keywords = append([]string{seed}, keywords...)
	}
	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

type extractedOpinions struct {
	Opinions []struct {
		Point   string `json:"point"`
		Stance  string `json:"stance"`
		Support int    `json:"support"`
	} `json:"opinions"`
}

// extractOpinions pulls distinct viewpoints out of one note and its
// comments. Extraction failures skip the note's opinions silently.
func (e *Executor) extractOpinions(ctx context.Context, keyword string, note content.Note, detail content.NoteResult) []tasks.Opinion {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Note title: %s\n", detail.Note.Title)
	fmt.Fprintf(&sb, "Note content: %s\n", detail.Note.Desc)
	for _, c := range detail.Comments {
		fmt.Fprintf(&sb, "Comment (%s likes): %s\n", c.LikeCount, c.Content)
		for _, sc := range c.SubComments {
			fmt.Fprintf(&sb, "Reply (%s likes): %s\n", sc.LikeCount, sc.Content)
		}
	}

	prompt := fmt.Sprintf(`Extract the distinct opinions expressed in the following note and its comments.

%s
Return JSON only:
{"opinions": [{"point": "the opinion", "stance": "positive|negative|neutral", "support": <how many voices agree>}]}`, sb.String())

	response, err := e.brain.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You analyze social content and return structured JSON."},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{Model: e.cfg.Model, JSONObject: true})
	if err != nil {
		e.countCollaboratorError("llm", "extract_opinions")
		return nil
	}

	var parsed extractedOpinions
	if err := jsonx.Extract(response, &parsed); err != nil {
		e.countCollaboratorError("llm", "extract_opinions_parse")
		return nil
	}

	source := detail.Note.Title
	if source == "" {
		source = note.ID
	}
	opinions := make([]tasks.Opinion, 0, len(parsed.Opinions))
	for _, op := range parsed.Opinions {
		if strings.TrimSpace(op.Point) == "" {
			continue
		}
		opinions = append(opinions, tasks.Opinion{
			Point:   op.Point,
			Stance:  op.Stance,
			Support: op.Support,
			Keyword: keyword,
			Source:  source,
		})
	}
	return opinions
}

type synthesisResult struct {
	Summary       string   `json:"summary"`
	Trends        []string `json:"trends"`
	Controversies []string `json:"controversies"`
}

// synthesize condenses all collected opinions into a final analysis.
// With no opinions, or when the model fails, a stats-only analysis is
// produced instead.
func (e *Executor) synthesize(ctx context.Context, seed string, opinions []tasks.Opinion, stats tasks.AnalysisStats) tasks.Analysis {
	fallback := tasks.Analysis{
		Summary: fmt.Sprintf("Collected %d notes and %d comments for %q.", stats.Notes, stats.Comments, seed),
		Stats:   stats,
	}
	if len(opinions) == 0 {
		return fallback
	}

	var sb strings.Builder
	for _, op := range opinions {
		fmt.Fprintf(&sb, "- [%s] %s (support: %d, keyword: %s)\n", op.Stance, op.Point, op.Support, op.Keyword)
	}

	prompt := fmt.Sprintf(`The topic is %q. Below are the opinions collected from social content:

%s
Synthesize them. Return JSON only:
{"summary": "overall takeaway", "trends": ["dominant viewpoints"], "controversies": ["points people disagree on"]}`, seed, sb.String())

	response, err := e.brain.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You synthesize public opinion and return structured JSON."},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{Model: e.cfg.Model, JSONObject: true})
	if err != nil {
		e.countCollaboratorError("llm", "synthesize")
		return fallback
	}

	var parsed synthesisResult
	if err := jsonx.Extract(response, &parsed); err != nil {
		e.countCollaboratorError("llm", "synthesize_parse")
		return fallback
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return fallback
	}
	return tasks.Analysis{
		Summary:       parsed.Summary,
		Trends:        parsed.Trends,
		Controversies: parsed.Controversies,
		Stats:         stats,
	}
}

func (e *Executor) pushProgress(clientID, message string) {
	e.push(clientID, protocol.ChatResponse{
		Type:        protocol.TypeChatResponse,
		Content:     message,
		MessageType: "task_progress",
	})
}

func (e *Executor) push(clientID string, payload any) {
	if e.pusher != nil {
		e.pusher.Push(clientID, payload)
	}
}

func (e *Executor) countCollaboratorError(collaborator, code string) {
	if e.metrics != nil {
		e.metrics.CollaboratorError.WithLabelValues(collaborator, code).Inc()
	}
}

func percentage(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
