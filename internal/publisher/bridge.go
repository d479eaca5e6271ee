package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Bridge posts text as JSON to a sidecar endpoint that owns the platform
// credentials and replies with the created post id.
type Bridge struct {
	url    string
	client *http.Client
}

func NewBridge(url string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bridge{url: url, client: &http.Client{Timeout: timeout}}
}

type bridgeRequest struct {
	Text string `json:"text"`
}

type bridgeResponse struct {
	PostID  string `json:"post_id"`
	Message string `json:"message"`
}

func (b *Bridge) Publish(ctx context.Context, text, idempotencyKey string) (string, error) {
	buf, err := json.Marshal(bridgeRequest{Text: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("publish HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed bridgeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("publish response decode: %w", err)
	}
	if parsed.PostID == "" {
		if parsed.Message != "" {
			return "", fmt.Errorf("publish rejected: %s", parsed.Message)
		}
		return "", fmt.Errorf("publish response missing post id")
	}
	return parsed.PostID, nil
}
