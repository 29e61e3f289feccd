package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wenjiegu/notescout/internal/tasks"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientChat      MessageType = "client_chat"
	TypeClientUserInput MessageType = "client_user_input"
	TypeChatResponse    MessageType = "chat_response"
	TypeSearchIntent    MessageType = "search_intent"
	TypeSearchUpdate    MessageType = "search_task_update"
	TypeSearchResult    MessageType = "search_result"
	TypeErrorEvent      MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientChat is a chat message sent by the client over the socket.
type ClientChat struct {
	Type     MessageType `json:"type"`
	ClientID string      `json:"client_id"`
	Message  string      `json:"message"`
}

// ClientUserInput answers a pending batch confirmation.
type ClientUserInput struct {
	Type           MessageType `json:"type"`
	ClientID       string      `json:"client_id"`
	TaskID         string      `json:"task_id"`
	ContinueSearch bool        `json:"continue_search"`
}

// ChatResponse carries one sentence of assistant output. MessageType
// distinguishes streamed sentences from progress narration.
type ChatResponse struct {
	Type        MessageType `json:"type"`
	Content     string      `json:"content"`
	MessageType string      `json:"message_type,omitempty"`
}

// SearchIntent proposes a search task detected from the conversation.
// The client confirms by starting the named pending task.
type SearchIntent struct {
	Type     MessageType `json:"type"`
	TaskID   string      `json:"task_id"`
	Message  string      `json:"message"`
	Keywords []string    `json:"keywords"`
	Reason   string      `json:"reason,omitempty"`
}

// SearchUpdate reports a task lifecycle change.
type SearchUpdate struct {
	Type   MessageType     `json:"type"`
	Action tasks.TaskEvent `json:"action"`
	Task   tasks.Snapshot  `json:"task"`
}

// ResultNote is one note in a final search_result visualization.
type ResultNote struct {
	Title      string `json:"title"`
	Nickname   string `json:"nickname"`
	LikedCount string `json:"liked_count"`
	Keyword    string `json:"keyword"`
}

// SearchResultContent is the visualization payload of a search_result.
type SearchResultContent struct {
	TaskID   string         `json:"task_id"`
	Keywords string         `json:"keywords"`
	Analysis tasks.Analysis `json:"analysis"`
	Notes    []ResultNote   `json:"notes"`
}

// SearchResult delivers the final analysis and its supporting notes.
type SearchResult struct {
	Type    MessageType         `json:"type"`
	Content SearchResultContent `json:"content"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

// ParseClientMessage decodes and validates one inbound client frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientChat:
		var msg ClientChat
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ClientID == "" || msg.Message == "" {
			return nil, errors.New("invalid client_chat")
		}
		return msg, nil
	case TypeClientUserInput:
		var msg ClientUserInput
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ClientID == "" || msg.TaskID == "" {
			return nil, errors.New("invalid client_user_input")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
