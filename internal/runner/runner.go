// Package runner executes due schedules: topic selection, generation, length
// governance, dedup, publish, then the schedule/run-log update. Failures are
// isolated per schedule.
package runner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"autopost/internal/dedup"
	"autopost/internal/domain"
	"autopost/internal/generate"
	"autopost/internal/publisher"
	"autopost/internal/recurrence"
	"autopost/internal/store"
	"autopost/internal/textutil"
	"autopost/internal/topic"
)

const (
	// recentWindow is how many recent successful texts feed the topic and
	// similarity checks.
	recentWindow = 10

	// defaultTopic substitutes for an empty candidate list.
	defaultTopic = "tech"

	defaultCallTimeout = 60 * time.Second
)

type Runner struct {
	store       store.Store
	chain       *generate.Chain
	pub         publisher.Publisher
	callTimeout time.Duration
	now         func() time.Time
	newRand     func() *rand.Rand
}

type Option func(*Runner)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithCallTimeout bounds each outbound generation and publish call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithRand overrides the tie-break randomness source, for tests.
func WithRand(newRand func() *rand.Rand) Option {
	return func(r *Runner) { r.newRand = newRand }
}

func New(st store.Store, chain *generate.Chain, pub publisher.Publisher, opts ...Option) *Runner {
	r := &Runner{
		store:       st,
		chain:       chain,
		pub:         pub,
		callTimeout: defaultCallTimeout,
		now:         time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BatchResult aggregates one cycle's outcomes.
type BatchResult struct {
	Count   int              `json:"count"`
	Results []domain.Outcome `json:"results"`
}

// RunDue processes every enabled schedule whose next run has passed,
// sequentially, isolating per-schedule failures. The returned error covers
// only the due-schedule query; item failures land in the outcomes.
func (r *Runner) RunDue(ctx context.Context) (BatchResult, error) {
	now := r.now()
	due, err := r.store.DueSchedules(ctx, now)
	if err != nil {
		return BatchResult{}, fmt.Errorf("query due schedules: %w", err)
	}
	log.Info().Int("due", len(due)).Time("now", now).Msg("processing due schedules")

	results := make([]domain.Outcome, 0, len(due))
	for _, s := range due {
		results = append(results, r.Execute(ctx, s))
	}
	return BatchResult{Count: len(due), Results: results}, nil
}

// RunNow executes one schedule immediately, bypassing the due check.
func (r *Runner) RunNow(ctx context.Context, id string) (domain.Outcome, error) {
	s, err := r.store.GetSchedule(ctx, id)
	if err != nil {
		return domain.Outcome{}, err
	}
	return r.Execute(ctx, s), nil
}

// Execute runs one schedule's pipeline and converts any failure into a
// structured outcome rather than re-raising it.
func (r *Runner) Execute(ctx context.Context, s domain.Schedule) domain.Outcome {
	postID, err := r.runOne(ctx, s)
	if err != nil {
		log.Error().Err(err).Str("schedule_id", s.ID).Msg("schedule run failed")
		r.recordFailure(ctx, s, err)
		return domain.Outcome{ScheduleID: s.ID, OK: false, Error: err.Error()}
	}
	log.Info().Str("schedule_id", s.ID).Str("post_id", postID).Msg("posted")
	return domain.Outcome{ScheduleID: s.ID, OK: true, PostID: postID}
}

func (r *Runner) runOne(ctx context.Context, s domain.Schedule) (string, error) {
	recent, err := r.store.RecentRunTexts(ctx, s.ID, recentWindow)
	if err != nil {
		log.Warn().Err(err).Str("schedule_id", s.ID).Msg("could not fetch recent runs, continuing without window")
		recent = nil
	}

	chosen := topic.Pick(topic.Parse(s.Topic), recent, r.newRand())
	if chosen == "" {
		chosen = defaultTopic
	}
	req := generate.Request{
		Topic:        chosen,
		Tone:         s.Style.Tone,
		Instructions: s.Instructions,
		MaxHashtags:  s.Style.MaxHashtags,
		NoLinks:      s.Style.NoLinks,
		RecentTexts:  recent,
	}

	text, err := r.generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	text, hash, err := dedup.Ensure(ctx, s.DedupeHashes, text, func(ctx context.Context) (string, error) {
		return r.generate(ctx, req)
	})
	if err != nil {
		return "", err
	}

	pctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	postID, err := r.pub.Publish(pctx, text, s.ID+":"+hash)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	// nextRunAt advances from the current execution time, not the prior
	// nextRunAt: drift accumulates against the wall clock by design.
	now := r.now()
	next := recurrence.NextRun(s, now)

	rec := domain.RunRecord{
		ScheduleID: s.ID,
		OwnerID:    s.OwnerID,
		CampaignID: s.CampaignID,
		Timestamp:  now,
		Text:       text,
		PostID:     postID,
		Success:    true,
	}
	if _, err := r.store.AppendRun(ctx, rec); err != nil {
		return postID, fmt.Errorf("post %s published but run record write failed: %w", postID, err)
	}
	if err := r.store.ApplyRunUpdate(ctx, s.ID, now, next, dedup.Push(s.DedupeHashes, hash)); err != nil {
		return postID, fmt.Errorf("post %s published but schedule update failed: %w", postID, err)
	}
	return postID, nil
}

// generate runs one bounded chain pass with length governance applied.
func (r *Runner) generate(ctx context.Context, req generate.Request) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	text, err := r.chain.Generate(gctx, req)
	if err != nil {
		return "", err
	}
	return textutil.EnforceLength(text), nil
}

// recordFailure appends an audit record for a failed attempt. Best effort:
// the run already failed, a log entry is all a second failure gets.
func (r *Runner) recordFailure(ctx context.Context, s domain.Schedule, runErr error) {
	rec := domain.RunRecord{
		ScheduleID: s.ID,
		OwnerID:    s.OwnerID,
		CampaignID: s.CampaignID,
		Timestamp:  r.now(),
		Success:    false,
		Error:      runErr.Error(),
	}
	if _, err := r.store.AppendRun(ctx, rec); err != nil {
		log.Warn().Err(err).Str("schedule_id", s.ID).Msg("could not persist failure record")
	}
}
