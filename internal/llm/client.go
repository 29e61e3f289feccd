package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tune a single generation call. JSONObject asks the backend for a
// structured (JSON mode) completion; permissive extraction on the caller side
// still applies because not every backend honors it.
type Options struct {
	Model      string
	JSONObject bool
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Client is the narrow generation surface consumed by the chat orchestrator
// and the batch executor. Generate is single request/response and may fail;
// GenerateStream never surfaces a mid-stream error to the caller — it emits
// one final error-marker delta instead, so downstream segmentation always
// sees a finite, well-terminated sequence.
type Client interface {
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
	GenerateStream(ctx context.Context, messages []Message, opts Options, onDelta DeltaHandler) (string, error)
}
