package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"autopost/internal/domain"
)

// EnsurePostgresSchema creates tables if they don't exist.
func EnsurePostgresSchema(db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS schedules (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  campaign_id TEXT,
  topic TEXT NOT NULL DEFAULT '',
  instructions TEXT NOT NULL DEFAULT '',
  recurrence_type TEXT NOT NULL DEFAULT 'daily',
  hour INTEGER NOT NULL DEFAULT 9,
  minute INTEGER NOT NULL DEFAULT 0,
  timezone TEXT NOT NULL DEFAULT 'UTC',
  days_of_week JSONB NOT NULL DEFAULT '[]',
  cron_expr TEXT NOT NULL DEFAULT '',
  style JSONB NOT NULL DEFAULT '{}',
  enabled BOOLEAN NOT NULL DEFAULT TRUE,
  last_run_at TIMESTAMPTZ,
  next_run_at TIMESTAMPTZ NOT NULL,
  dedupe_hashes JSONB NOT NULL DEFAULT '[]',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(enabled, next_run_at);
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  schedule_id TEXT NOT NULL REFERENCES schedules(id),
  owner_id TEXT NOT NULL DEFAULT '',
  campaign_id TEXT,
  ts TIMESTAMPTZ NOT NULL,
  text TEXT NOT NULL,
  post_id TEXT NOT NULL DEFAULT '',
  success BOOLEAN NOT NULL DEFAULT FALSE,
  error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_schedule_ts ON runs(schedule_id, ts DESC);
`
	_, err := db.Exec(schema)
	return err
}

type pgStore struct{ db *sqlx.DB }

func NewPostgres(db *sqlx.DB) Store { return &pgStore{db: db} }

type pgScheduleRow struct {
	ID             string          `db:"id"`
	OwnerID        string          `db:"owner_id"`
	CampaignID     sql.NullString  `db:"campaign_id"`
	Topic          string          `db:"topic"`
	Instructions   string          `db:"instructions"`
	RecurrenceType string          `db:"recurrence_type"`
	Hour           int             `db:"hour"`
	Minute         int             `db:"minute"`
	Timezone       string          `db:"timezone"`
	DaysOfWeek     json.RawMessage `db:"days_of_week"`
	CronExpr       string          `db:"cron_expr"`
	Style          json.RawMessage `db:"style"`
	Enabled        bool            `db:"enabled"`
	LastRunAt      sql.NullTime    `db:"last_run_at"`
	NextRunAt      time.Time       `db:"next_run_at"`
	DedupeHashes   json.RawMessage `db:"dedupe_hashes"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r pgScheduleRow) toDomain() (domain.Schedule, error) {
	s := domain.Schedule{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Topic:          r.Topic,
		Instructions:   r.Instructions,
		RecurrenceType: r.RecurrenceType,
		Hour:           r.Hour,
		Minute:         r.Minute,
		Timezone:       r.Timezone,
		CronExpr:       r.CronExpr,
		Enabled:        r.Enabled,
		NextRunAt:      r.NextRunAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.CampaignID.Valid {
		c := r.CampaignID.String
		s.CampaignID = &c
	}
	if r.LastRunAt.Valid {
		t := r.LastRunAt.Time
		s.LastRunAt = &t
	}
	if err := json.Unmarshal(r.DaysOfWeek, &s.DaysOfWeek); err != nil {
		return domain.Schedule{}, err
	}
	if err := json.Unmarshal(r.Style, &s.Style); err != nil {
		return domain.Schedule{}, err
	}
	if err := json.Unmarshal(r.DedupeHashes, &s.DedupeHashes); err != nil {
		return domain.Schedule{}, err
	}
	return s, nil
}

const pgScheduleCols = `id,owner_id,campaign_id,topic,instructions,recurrence_type,hour,minute,timezone,days_of_week,cron_expr,style,enabled,last_run_at,next_run_at,dedupe_hashes,created_at,updated_at`

func (r *pgStore) CreateSchedule(ctx context.Context, s domain.Schedule) (string, error) {
	id := s.ID
	if id == "" {
		id = "sch_" + uuid.NewString()
	}
	days, err := json.Marshal(orEmpty(s.DaysOfWeek))
	if err != nil {
		return "", err
	}
	style, err := json.Marshal(s.Style)
	if err != nil {
		return "", err
	}
	hashes, err := json.Marshal(orEmpty(s.DedupeHashes))
	if err != nil {
		return "", err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO schedules (`+pgScheduleCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())`,
		id, s.OwnerID, s.CampaignID, s.Topic, s.Instructions, s.RecurrenceType,
		s.Hour, s.Minute, s.Timezone, days, s.CronExpr, style,
		s.Enabled, s.LastRunAt, s.NextRunAt, hashes)
	return id, err
}

func (r *pgStore) GetSchedule(ctx context.Context, id string) (domain.Schedule, error) {
	var row pgScheduleRow
	err := r.db.GetContext(ctx, &row, `SELECT `+pgScheduleCols+` FROM schedules WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Schedule{}, ErrNotFound
	}
	if err != nil {
		return domain.Schedule{}, err
	}
	return row.toDomain()
}

func (r *pgStore) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	var rows []pgScheduleRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+pgScheduleCols+` FROM schedules ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return pgToDomain(rows)
}

func (r *pgStore) DueSchedules(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
	var rows []pgScheduleRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT `+pgScheduleCols+` FROM schedules
WHERE enabled AND next_run_at <= $1 ORDER BY next_run_at`, now)
	if err != nil {
		return nil, err
	}
	return pgToDomain(rows)
}

func (r *pgStore) ApplyRunUpdate(ctx context.Context, id string, lastRun, nextRun time.Time, dedupeHashes []string) error {
	hashes, err := json.Marshal(orEmpty(dedupeHashes))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE schedules SET last_run_at=$1, next_run_at=$2, dedupe_hashes=$3, updated_at=NOW() WHERE id=$4`,
		lastRun, nextRun, hashes, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type pgRunRow struct {
	ID         string         `db:"id"`
	ScheduleID string         `db:"schedule_id"`
	OwnerID    string         `db:"owner_id"`
	CampaignID sql.NullString `db:"campaign_id"`
	Timestamp  time.Time      `db:"ts"`
	Text       string         `db:"text"`
	PostID     string         `db:"post_id"`
	Success    bool           `db:"success"`
	Error      string         `db:"error"`
}

func (r pgRunRow) toDomain() domain.RunRecord {
	rec := domain.RunRecord{
		ID:         r.ID,
		ScheduleID: r.ScheduleID,
		OwnerID:    r.OwnerID,
		Timestamp:  r.Timestamp,
		Text:       r.Text,
		PostID:     r.PostID,
		Success:    r.Success,
		Error:      r.Error,
	}
	if r.CampaignID.Valid {
		c := r.CampaignID.String
		rec.CampaignID = &c
	}
	return rec
}

const pgRunCols = `id,schedule_id,owner_id,campaign_id,ts,text,post_id,success,error`

func (r *pgStore) AppendRun(ctx context.Context, rec domain.RunRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = "run_" + uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO runs (`+pgRunCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		id, rec.ScheduleID, rec.OwnerID, rec.CampaignID, rec.Timestamp, rec.Text, rec.PostID, rec.Success, rec.Error)
	return id, err
}

func (r *pgStore) RecentRunTexts(ctx context.Context, scheduleID string, limit int) ([]string, error) {
	var texts []string
	err := r.db.SelectContext(ctx, &texts, `
SELECT text FROM runs WHERE schedule_id=$1 AND success ORDER BY ts DESC LIMIT $2`, scheduleID, limit)
	return texts, err
}

func (r *pgStore) LatestRun(ctx context.Context, scheduleID string) (*domain.RunRecord, error) {
	var row pgRunRow
	err := r.db.GetContext(ctx, &row, `
SELECT `+pgRunCols+` FROM runs WHERE schedule_id=$1 ORDER BY ts DESC LIMIT 1`, scheduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := row.toDomain()
	return &rec, nil
}

func (r *pgStore) ListRuns(ctx context.Context, scheduleID string, limit int) ([]domain.RunRecord, error) {
	var rows []pgRunRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT `+pgRunCols+` FROM runs WHERE schedule_id=$1 ORDER BY ts DESC LIMIT $2`, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	recs := make([]domain.RunRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.toDomain())
	}
	return recs, nil
}

func pgToDomain(rows []pgScheduleRow) ([]domain.Schedule, error) {
	schedules := make([]domain.Schedule, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}
