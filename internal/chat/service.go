// Package chat runs the conversational loop: streamed replies, sentence
// segmentation, and detection of search intent behind the conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wenjiegu/notescout/internal/history"
	"github.com/wenjiegu/notescout/internal/jsonx"
	"github.com/wenjiegu/notescout/internal/llm"
	"github.com/wenjiegu/notescout/internal/protocol"
	"github.com/wenjiegu/notescout/internal/segment"
	"github.com/wenjiegu/notescout/internal/tasks"
)

const (
	maxMessageLength    = 2000
	intentWindowSize    = 5
	maxIntentKeywords   = 3
	defaultSystemPrompt = "You are a helpful AI assistant. You aim to provide accurate, helpful, and friendly responses to users' questions. If you're unsure about something, please say so rather than making assumptions."
)

// Pusher delivers a server-initiated payload to one client.
type Pusher interface {
	Push(clientID string, payload any)
}

// Config tunes the conversational loop.
type Config struct {
	Model            string
	SegmentMinLength int
	HistoryRetention int
}

// Service streams assistant replies sentence by sentence and proposes
// search tasks when the conversation shows search intent.
type Service struct {
	brain   llm.Client
	manager *tasks.Manager
	pusher  Pusher
	archive history.Store
	cfg     Config

	mu     sync.Mutex
	turns  []llm.Message
	seeded bool

	analyzing atomic.Bool
}

func NewService(brain llm.Client, manager *tasks.Manager, pusher Pusher, archive history.Store, cfg Config) *Service {
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 10
	}
	return &Service{
		brain:   brain,
		manager: manager,
		pusher:  pusher,
		archive: archive,
		cfg:     cfg,
	}
}

// ProcessChat handles one user message end to end: it streams the reply
// to the client sentence by sentence, records the exchange, and then
// checks the recent conversation for search intent. Callers that need a
// fast acknowledgement run it in a goroutine.
func (s *Service) ProcessChat(ctx context.Context, clientID, message string) error {
	message = truncateRunes(strings.TrimSpace(message), maxMessageLength)
	if message == "" {
		return errors.New("empty message")
	}

	s.seedFromArchive(ctx, clientID)

	userMsg := llm.Message{Role: llm.RoleUser, Content: message}
	prompt := append([]llm.Message{{Role: llm.RoleSystem, Content: defaultSystemPrompt}}, s.recentTurns(0)...)
	prompt = append(prompt, userMsg)

	seg := segment.NewSegmenter(s.cfg.SegmentMinLength, true)
	full, err := s.brain.GenerateStream(ctx, prompt, llm.Options{Model: s.cfg.Model}, func(delta string) error {
		for _, sentence := range seg.Feed(delta) {
			s.push(clientID, protocol.ChatResponse{
				Type:    protocol.TypeChatResponse,
				Content: sentence,
			})
		}
		return nil
	})
	if err != nil {
		s.push(clientID, protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "chat_stream",
			Detail: err.Error(),
		})
		return err
	}
	if rest := seg.Flush(); rest != "" {
		s.push(clientID, protocol.ChatResponse{
			Type:    protocol.TypeChatResponse,
			Content: rest,
		})
	}

	assistantMsg := llm.Message{Role: llm.RoleAssistant, Content: full}
	s.remember(userMsg, assistantMsg)
	s.archiveTurn(ctx, clientID, userMsg)
	s.archiveTurn(ctx, clientID, assistantMsg)

	s.analyzeSearchIntent(ctx, clientID)
	return nil
}

type intentResult struct {
	IsSearch bool   `json:"is_search"`
	Keywords string `json:"keywords"`
	Reason   string `json:"reason"`
}

// analyzeSearchIntent inspects the recent conversation and, when search
// intent is found, registers a pending task and proposes it to the
// client. Only one analysis runs at a time; overlapping calls return
// immediately.
func (s *Service) analyzeSearchIntent(ctx context.Context, clientID string) {
	if !s.analyzing.CompareAndSwap(false, true) {
		return
	}
	defer s.analyzing.Store(false)

	recent := s.recentTurns(intentWindowSize)
	if len(recent) == 0 {
		return
	}

	var sb strings.Builder
	for _, msg := range recent {
		speaker := "AI"
		if msg.Role == llm.RoleUser {
			speaker = "User"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, msg.Content)
	}

	prompt := fmt.Sprintf(`Analyze the conversation history below and decide whether the user is looking for information to be searched. If so, extract the 1-3 most important keywords.

Conversation:
%s
Return JSON only:
{"is_search": true/false, "keywords": "up to 3 keywords separated by commas, or null when there is no search intent", "reason": "why these keywords"}`, sb.String())

	response, err := s.brain.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are an assistant that analyzes user intent."},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{Model: s.cfg.Model, JSONObject: true})
	if err != nil {
		log.Printf("chat: intent analysis failed: %v", err)
		return
	}

	var result intentResult
	if err := jsonx.Extract(response, &result); err != nil {
		log.Printf("chat: intent analysis unparseable: %v", err)
		return
	}
	if !result.IsSearch {
		return
	}

	keywords := normalizeKeywords(result.Keywords)
	if len(keywords) == 0 {
		return
	}
	joined := strings.Join(keywords, ",")

	snap, err := s.manager.CreatePendingTask(joined, clientID)
	if err != nil {
		if !errors.Is(err, tasks.ErrDuplicateTask) {
			log.Printf("chat: pending task for %q failed: %v", joined, err)
		}
		return
	}

	s.push(clientID, protocol.SearchIntent{
		Type:     protocol.TypeSearchIntent,
		TaskID:   snap.ID,
		Message:  fmt.Sprintf("It looks like you want to search for %q. Start a research task?", joined),
		Keywords: keywords,
		Reason:   result.Reason,
	})
}

// recentTurns returns up to n of the most recent turns, or all of them
// when n is 0.
func (s *Service) recentTurns(n int) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]llm.Message(nil), turns...)
}

func (s *Service) remember(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, msgs...)
	limit := s.cfg.HistoryRetention * 2
	if len(s.turns) > limit {
		s.turns = append([]llm.Message(nil), s.turns[len(s.turns)-limit:]...)
	}
}

// seedFromArchive restores the conversation ring from the transcript
// archive once, so a restarted process picks the dialogue back up.
func (s *Service) seedFromArchive(ctx context.Context, clientID string) {
	if s.archive == nil {
		return
	}

	s.mu.Lock()
	if s.seeded {
		s.mu.Unlock()
		return
	}
	s.seeded = true
	s.mu.Unlock()

	records, err := s.archive.RecentTurns(ctx, clientID, s.cfg.HistoryRetention*2)
	if err != nil {
		log.Printf("chat: archive restore failed: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}

	restored := make([]llm.Message, 0, len(records))
	for _, r := range records {
		restored = append(restored, llm.Message{Role: llm.Role(r.Role), Content: r.Content})
	}

	s.mu.Lock()
	if len(s.turns) == 0 {
		s.turns = restored
	}
	s.mu.Unlock()
}

func (s *Service) archiveTurn(ctx context.Context, clientID string, msg llm.Message) {
	if s.archive == nil {
		return
	}
	err := s.archive.SaveTurn(ctx, history.TurnRecord{
		ClientID: clientID,
		Role:     string(msg.Role),
		Content:  msg.Content,
	})
	if err != nil {
		log.Printf("chat: archive turn failed: %v", err)
	}
}

func (s *Service) push(clientID string, payload any) {
	if s.pusher != nil {
		s.pusher.Push(clientID, payload)
	}
}

// normalizeKeywords splits, trims, dedupes, and caps the keyword list.
func normalizeKeywords(raw string) []string {
	if strings.EqualFold(strings.TrimSpace(raw), "null") {
		return nil
	}
	seen := make(map[string]struct{})
	var keywords []string
	for _, kw := range strings.Split(raw, ",") {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
		if len(keywords) == maxIntentKeywords {
			break
		}
	}
	return keywords
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
