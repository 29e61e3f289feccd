package jsonx

import (
	"errors"
	"testing"
)

func TestExtractDirect(t *testing.T) {
	var out struct {
		IsSearch bool   `json:"is_search"`
		Keywords string `json:"keywords"`
	}
	err := Extract(`{"is_search": true, "keywords": "a,b"}`, &out)
	if err != nil {
		t.Fatalf("Extract() error = %v, want nil", err)
	}
	if !out.IsSearch || out.Keywords != "a,b" {
		t.Fatalf("Extract() = %+v, want is_search=true keywords=a,b", out)
	}
}

func TestExtractEmbedded(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "object surrounded by prose",
			text: `Here is my take on the question: {"stance": "positive"} hope that helps.`,
			want: "positive",
		},
		{
			name: "object inside code fence",
			text: "```json\n{\"stance\": \"negative\"}\n```",
			want: "negative",
		},
		{
			name: "brace inside string value",
			text: `result: {"stance": "neutral", "note": "the { here is literal"}`,
			want: "neutral",
		},
		{
			name: "escaped quote inside string",
			text: `{"stance": "mixed", "quote": "she said \"maybe\" twice"}`,
			want: "mixed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Stance string `json:"stance"`
			}
			if err := Extract(tt.text, &out); err != nil {
				t.Fatalf("Extract(%q) error = %v, want nil", tt.text, err)
			}
			if out.Stance != tt.want {
				t.Fatalf("Extract(%q) stance = %q, want %q", tt.text, out.Stance, tt.want)
			}
		})
	}
}

func TestExtractFailure(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "blank text", text: "   "},
		{name: "no braces at all", text: "I could not decide either way."},
		{name: "unbalanced object", text: `{"broken": `},
		{name: "braces without json", text: "see {not valid json}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := Extract(tt.text, &out)
			if err == nil {
				t.Fatalf("Extract(%q) error = nil, want ParseError", tt.text)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Extract(%q) error = %v, want *ParseError", tt.text, err)
			}
		})
	}
}
