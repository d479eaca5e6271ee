// Package store persists schedules and the append-only run log.
package store

import (
	"context"
	"errors"
	"time"

	"autopost/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store is implemented by the SQLite and Postgres backends. Schedules are
// mutated only through CreateSchedule and ApplyRunUpdate; runs are
// append-only.
type Store interface {
	CreateSchedule(ctx context.Context, s domain.Schedule) (string, error)
	GetSchedule(ctx context.Context, id string) (domain.Schedule, error)
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
	// DueSchedules returns enabled schedules with next_run_at <= now,
	// soonest first.
	DueSchedules(ctx context.Context, now time.Time) ([]domain.Schedule, error)
	// ApplyRunUpdate commits the post-run schedule mutation: lastRunAt,
	// nextRunAt, the refreshed dedupe history and updatedAt.
	ApplyRunUpdate(ctx context.Context, id string, lastRun, nextRun time.Time, dedupeHashes []string) error

	AppendRun(ctx context.Context, rec domain.RunRecord) (string, error)
	// RecentRunTexts returns the texts of the newest successful runs for a
	// schedule, newest first, bounded by limit.
	RecentRunTexts(ctx context.Context, scheduleID string, limit int) ([]string, error)
	LatestRun(ctx context.Context, scheduleID string) (*domain.RunRecord, error)
	ListRuns(ctx context.Context, scheduleID string, limit int) ([]domain.RunRecord, error)
}
