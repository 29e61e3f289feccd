package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPBridge talks to the browser automation sidecar over plain HTTP. The
// sidecar owns the page session; this process only sees captured API payloads.
type HTTPBridge struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBridge(baseURL string) *HTTPBridge {
	return &HTTPBridge{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

func (b *HTTPBridge) Search(ctx context.Context, query string) (SearchResult, error) {
	var out SearchResult
	err := b.post(ctx, "/search", map[string]string{"keyword": query}, &out)
	if err != nil {
		return SearchResult{}, err
	}
	return out, nil
}

func (b *HTTPBridge) FetchNote(ctx context.Context, noteID, xsecToken string) (NoteResult, error) {
	var out NoteResult
	err := b.post(ctx, "/note", map[string]string{
		"note_id":    noteID,
		"xsec_token": xsecToken,
	}, &out)
	if err != nil {
		return NoteResult{}, err
	}
	return out, nil
}

func (b *HTTPBridge) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("content bridge status %d: %s", res.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
