package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

func NewHTTPClient(baseURL, apiKey, defaultModel string) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:       strings.TrimSpace(apiKey),
		defaultModel: strings.TrimSpace(defaultModel),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *HTTPClient) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	req := chatRequest{
		Model:    c.model(opts),
		Messages: messages,
	}
	if opts.JSONObject {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	res, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *HTTPClient) GenerateStream(ctx context.Context, messages []Message, opts Options, onDelta DeltaHandler) (string, error) {
	req := chatRequest{
		Model:    c.model(opts),
		Messages: messages,
		Stream:   true,
	}

	res, err := c.send(ctx, req)
	if err != nil {
		// The mid-stream contract starts at the first byte; connection
		// failures degrade to a single error-marker delta, never an error.
		return emitErrorMarker(err, onDelta)
	}
	defer res.Body.Close()

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		var parsed chatResponse
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if len(parsed.Choices) == 0 {
			continue
		}
		delta := parsed.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return out.String(), err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		marker, _ := emitErrorMarker(err, onDelta)
		out.WriteString(marker)
	}

	return out.String(), nil
}

func (c *HTTPClient) send(ctx context.Context, req chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		return nil, fmt.Errorf("llm http status %d: %s", res.StatusCode, string(snippet))
	}
	return res, nil
}

func (c *HTTPClient) model(opts Options) string {
	if strings.TrimSpace(opts.Model) != "" {
		return opts.Model
	}
	return c.defaultModel
}

func emitErrorMarker(cause error, onDelta DeltaHandler) (string, error) {
	marker := fmt.Sprintf("Error: %v", cause)
	if onDelta != nil {
		if err := onDelta(marker); err != nil {
			return "", err
		}
	}
	return marker, nil
}
