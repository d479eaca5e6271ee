package generate

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"autopost/internal/textutil"
)

// similarityThreshold is the max Jaccard similarity against recent texts
// before a rewrite is requested.
const similarityThreshold = 0.75

// Chain tries backends in priority order and never fails outward as long as
// its terminal backend is deterministic. A shared limiter paces all outbound
// backend calls within a cycle.
type Chain struct {
	backends []Backend
	limiter  *rate.Limiter
}

func NewChain(limiter *rate.Limiter, backends ...Backend) *Chain {
	return &Chain{backends: backends, limiter: limiter}
}

// Generate returns non-empty post text. Backend errors and empty results are
// logged and the chain advances; a high-similarity result triggers exactly
// one retry against the same backend, whose output is accepted regardless.
func (c *Chain) Generate(ctx context.Context, req Request) (string, error) {
	if len(c.backends) == 0 {
		return "", errors.New("no generation backends configured")
	}
	prompt := BuildPrompt(req)

	var lastErr error
	for _, b := range c.backends {
		text, err := c.call(ctx, b, req, prompt)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrQuotaExhausted) {
				log.Warn().Str("backend", b.Name()).Msg("backend quota exhausted, advancing chain")
			} else {
				log.Warn().Err(err).Str("backend", b.Name()).Msg("backend failed, advancing chain")
			}
			continue
		}

		sim, similar := maxSimilarity(text, req.RecentTexts)
		if sim < similarityThreshold {
			return text, nil
		}

		// One rewrite against the same backend; accept whatever comes back.
		log.Info().Str("backend", b.Name()).Float64("similarity", sim).Msg("content too similar, retrying once")
		retry, err := c.call(ctx, b, req, retryPrompt(prompt, similar))
		if err != nil {
			log.Warn().Err(err).Str("backend", b.Name()).Msg("similarity retry failed, keeping original")
			return text, nil
		}
		return retry, nil
	}
	return "", lastErr
}

func (c *Chain) call(ctx context.Context, b Backend, req Request, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	text, err := b.Generate(ctx, req, prompt)
	if err != nil {
		return "", err
	}
	text = textutil.CleanGenerated(text)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

// maxSimilarity returns the highest Jaccard similarity between text and the
// recent window, plus the most similar prior text.
func maxSimilarity(text string, recent []string) (float64, string) {
	best, similar := 0.0, ""
	for _, prior := range recent {
		if s := textutil.Jaccard(text, prior); s > best || similar == "" {
			best, similar = s, prior
		}
	}
	return best, similar
}
