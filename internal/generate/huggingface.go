package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultHFModel = "mistralai/Mistral-7B-Instruct-v0.3"

// HuggingFace is the secondary backend. It owns a KeyRing and rotates to the
// next key whenever the active one reports exhausted credits; once every key
// has been tried the call fails with ErrQuotaExhausted.
type HuggingFace struct {
	ring    *KeyRing
	model   string
	baseURL string
	client  *http.Client
}

func NewHuggingFace(ring *KeyRing, model string) *HuggingFace {
	if model == "" {
		model = defaultHFModel
	}
	return &HuggingFace{
		ring:    ring,
		model:   model,
		baseURL: "https://api-inference.huggingface.co/models",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *HuggingFace) Name() string { return "huggingface" }

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens"`
		Temperature    float64 `json:"temperature"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
}

type hfResult struct {
	GeneratedText string `json:"generated_text"`
}

func (h *HuggingFace) Generate(ctx context.Context, _ Request, prompt string) (string, error) {
	if h.ring.Len() == 0 {
		return "", fmt.Errorf("no huggingface keys configured: %w", ErrQuotaExhausted)
	}
	var lastErr error
	for attempt := 0; attempt < h.ring.Len(); attempt++ {
		text, err := h.call(ctx, h.ring.Current(), prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, errCreditsExceeded) {
			return "", err
		}
		log.Warn().Str("backend", h.Name()).Msg("key credits exceeded, rotating")
		h.ring.Rotate()
	}
	return "", fmt.Errorf("all keys exhausted: %w (last: %v)", ErrQuotaExhausted, lastErr)
}

func (h *HuggingFace) call(ctx context.Context, key, prompt string) (string, error) {
	body := hfRequest{Inputs: prompt}
	body.Parameters.MaxNewTokens = 120
	body.Parameters.Temperature = 0.7
	body.Parameters.ReturnFullText = false

	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+h.model, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("huggingface request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("huggingface HTTP %d: %s: %w", resp.StatusCode, string(respBody), errCreditsExceeded)
	}
	if resp.StatusCode >= 400 {
		if looksLikeCreditsError(string(respBody)) {
			return "", fmt.Errorf("huggingface HTTP %d: %s: %w", resp.StatusCode, string(respBody), errCreditsExceeded)
		}
		return "", fmt.Errorf("huggingface HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var results []hfResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		// Some models answer with a single object instead of a list.
		var single hfResult
		if err2 := json.Unmarshal(respBody, &single); err2 != nil {
			return "", fmt.Errorf("huggingface response decode: %w", err)
		}
		results = []hfResult{single}
	}
	if len(results) == 0 || strings.TrimSpace(results[0].GeneratedText) == "" {
		return "", ErrEmptyResult
	}
	return results[0].GeneratedText, nil
}

var errCreditsExceeded = errors.New("credits exceeded")

var creditsPatterns = []string{
	"exceeded your monthly included credits",
	"reached the free monthly usage limit",
	"monthly usage limit",
	"usage limit",
	"payment required",
}

func looksLikeCreditsError(body string) bool {
	lower := strings.ToLower(body)
	for _, p := range creditsPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
