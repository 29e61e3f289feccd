package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wenjiegu/notescout/internal/tasks"
)

func TestChatResponseWireShape(t *testing.T) {
	raw, err := json.Marshal(ChatResponse{Type: TypeChatResponse, Content: "hi"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["content"] != "hi" {
		t.Fatalf("chat_response frame = %s, want the text under %q", raw, "content")
	}
	if _, ok := decoded["message"]; ok {
		t.Fatalf("chat_response frame = %s, stray %q key", raw, "message")
	}
}

func TestSearchResultWireShape(t *testing.T) {
	raw, err := json.Marshal(SearchResult{
		Type: TypeSearchResult,
		Content: SearchResultContent{
			TaskID:   "t1",
			Keywords: "coffee",
			Analysis: tasks.Analysis{Summary: "ok"},
		},
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded struct {
		Type    string `json:"type"`
		Content struct {
			TaskID   string `json:"task_id"`
			Keywords string `json:"keywords"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Content.TaskID != "t1" || decoded.Content.Keywords != "coffee" {
		t.Fatalf("search_result frame = %s, want payload nested under %q", raw, "content")
	}
}

func TestParseClientMessageChat(t *testing.T) {
	raw := []byte(`{"type":"client_chat","client_id":"c1","message":"hi there"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	chat, ok := msg.(ClientChat)
	if !ok {
		t.Fatalf("message type = %T, want ClientChat", msg)
	}
	if chat.ClientID != "c1" || chat.Message != "hi there" {
		t.Fatalf("unexpected client chat: %+v", chat)
	}
}

func TestParseClientMessageUserInput(t *testing.T) {
	raw := []byte(`{"type":"client_user_input","client_id":"c1","task_id":"t1","continue_search":true}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	input, ok := msg.(ClientUserInput)
	if !ok {
		t.Fatalf("message type = %T, want ClientUserInput", msg)
	}
	if input.TaskID != "t1" || !input.ContinueSearch {
		t.Fatalf("unexpected user input: %+v", input)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidChat(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_chat","client_id":"","message":""}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestParseClientMessageRejectsInvalidUserInput(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_user_input","client_id":"c1","task_id":""}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
}
