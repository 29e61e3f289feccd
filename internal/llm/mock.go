package llm

import (
	"context"
	"fmt"
)

// MockClient is a stand-in for local development and tests.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Generate(ctx context.Context, messages []Message, _ Options) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return buildMockReply(messages), nil
}

func (m *MockClient) GenerateStream(ctx context.Context, messages []Message, _ Options, onDelta DeltaHandler) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	reply := buildMockReply(messages)
	if onDelta != nil {
		if err := onDelta(reply); err != nil {
			return "", err
		}
	}
	return reply, nil
}

func buildMockReply(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser && messages[i].Content != "" {
			return fmt.Sprintf("I heard you: %s", messages[i].Content)
		}
	}
	return "I am listening."
}
