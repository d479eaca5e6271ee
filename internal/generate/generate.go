// Package generate produces post text through an ordered fallback of
// generation backends with a bounded anti-repetition retry.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrQuotaExhausted signals that a backend's credits or credentials are spent,
// as opposed to a generic failure. The chain advances either way; backends use
// it to drive key rotation.
var ErrQuotaExhausted = errors.New("generation quota exhausted")

// ErrEmptyResult signals a backend returned no usable text.
var ErrEmptyResult = errors.New("backend returned empty result")

// Request carries everything a backend needs for one generation attempt.
type Request struct {
	Topic        string
	Tone         string
	Instructions string
	MaxHashtags  int
	NoLinks      bool

	// RecentTexts is the newest-first window used for the similarity check.
	RecentTexts []string
}

// Backend is a single content source.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request, prompt string) (string, error)
}

// BuildPrompt renders the generation prompt for a request.
func BuildPrompt(req Request) string {
	constraints := []string{
		"MANDATORY: Your response MUST be under 230 characters total. Count characters carefully. Be concise and dont sound like a robot.",
		fmt.Sprintf("Use at most %d relevant hashtag(s).", req.MaxHashtags),
	}
	if req.NoLinks {
		constraints = append(constraints, "Do not include any links.")
	} else {
		constraints = append(constraints, "Avoid links unless essential.")
	}
	constraints = append(constraints, "Write a single complete, engaging post that fits in exactly one post. No cutting off.")

	var style string
	switch req.Tone {
	case "humor":
		style = "Make it witty and light."
	case "insight":
		style = "Make it concise and insightful."
	default:
		style = "Balance wit and insight."
	}

	prompt := fmt.Sprintf("Write a short social post about: %s. %s %s", req.Topic, style, strings.Join(constraints, " "))
	if extra := strings.TrimSpace(req.Instructions); extra != "" {
		prompt += " Follow these additional instructions: " + extra
	}
	return prompt
}

// retryPrompt amends the base prompt with an excerpt of the most similar
// prior text and asks for a different angle.
func retryPrompt(prompt, similar string) string {
	return fmt.Sprintf("%s Take a completely different angle than this:\n%s", prompt, excerpt(similar, 100))
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
