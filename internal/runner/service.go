package runner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Service drives the batch on a fixed interval. Cycles run on a single
// goroutine, so two invocations can never overlap within one process.
type Service struct {
	runner   *Runner
	interval time.Duration
	stop     chan struct{}
}

func NewService(runner *Runner, interval time.Duration) *Service {
	return &Service{runner: runner, interval: interval, stop: make(chan struct{})}
}

func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("autopost cycle service started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			res, err := s.runner.RunDue(ctx)
			if err != nil {
				log.Error().Err(err).Msg("cycle failed")
				continue
			}
			failed := 0
			for _, o := range res.Results {
				if !o.OK {
					failed++
				}
			}
			if res.Count > 0 {
				log.Info().Int("count", res.Count).Int("failed", failed).Msg("cycle complete")
			}
		}
	}
}

func (s *Service) Stop() {
	close(s.stop)
}
