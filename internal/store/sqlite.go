package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"autopost/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS schedules (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  campaign_id TEXT,
  topic TEXT NOT NULL DEFAULT '',
  instructions TEXT NOT NULL DEFAULT '',
  recurrence_type TEXT NOT NULL CHECK(recurrence_type IN ('daily','weekly','custom')) DEFAULT 'daily',
  hour INTEGER NOT NULL DEFAULT 9,
  minute INTEGER NOT NULL DEFAULT 0,
  timezone TEXT NOT NULL DEFAULT 'UTC',
  days_of_week TEXT NOT NULL DEFAULT '[]',
  cron_expr TEXT NOT NULL DEFAULT '',
  style TEXT NOT NULL DEFAULT '{}',
  enabled INTEGER NOT NULL DEFAULT 1,
  last_run_at DATETIME,
  next_run_at DATETIME NOT NULL,
  dedupe_hashes TEXT NOT NULL DEFAULT '[]',
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(enabled, next_run_at);
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  schedule_id TEXT NOT NULL,
  owner_id TEXT NOT NULL DEFAULT '',
  campaign_id TEXT,
  timestamp DATETIME NOT NULL,
  text TEXT NOT NULL,
  post_id TEXT NOT NULL DEFAULT '',
  success INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT '',
  FOREIGN KEY(schedule_id) REFERENCES schedules(id)
);
CREATE INDEX IF NOT EXISTS idx_runs_schedule_ts ON runs(schedule_id, timestamp DESC);
`
	_, err := db.Exec(schema)
	return err
}

// sqliteStore binds every time value in UTC: DATETIME columns are stored as
// text, so comparisons and ordering only hold within a single offset.
type sqliteStore struct{ db *sql.DB }

func NewSQLite(db *sql.DB) Store { return &sqliteStore{db: db} }

const scheduleCols = `id,owner_id,campaign_id,topic,instructions,recurrence_type,hour,minute,timezone,days_of_week,cron_expr,style,enabled,last_run_at,next_run_at,dedupe_hashes,created_at,updated_at`

func (r *sqliteStore) CreateSchedule(ctx context.Context, s domain.Schedule) (string, error) {
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
INSERT INTO schedules (`+scheduleCols+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, id, s.OwnerID, s.CampaignID, s.Topic, s.Instructions, s.RecurrenceType,
		s.Hour, s.Minute, s.Timezone, string(days), s.CronExpr, string(style),
		s.Enabled, utcOrNil(s.LastRunAt), s.NextRunAt.UTC(), string(hashes))
	return id, err
}

func (r *sqliteStore) GetSchedule(ctx context.Context, id string) (domain.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id=?`, id)
	s, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return domain.Schedule{}, ErrNotFound
	}
	return s, err
}

func (r *sqliteStore) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleCols+` FROM schedules ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *sqliteStore) DueSchedules(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+scheduleCols+` FROM schedules
WHERE enabled=1 AND next_run_at <= ? ORDER BY next_run_at`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *sqliteStore) ApplyRunUpdate(ctx context.Context, id string, lastRun, nextRun time.Time, dedupeHashes []string) error {
	hashes, err := json.Marshal(orEmpty(dedupeHashes))
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE schedules SET last_run_at=?, next_run_at=?, dedupe_hashes=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		lastRun.UTC(), nextRun.UTC(), string(hashes), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteStore) AppendRun(ctx context.Context, rec domain.RunRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = "run_" + uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO runs (id,schedule_id,owner_id,campaign_id,timestamp,text,post_id,success,error)
VALUES (?,?,?,?,?,?,?,?,?)`,
		id, rec.ScheduleID, rec.OwnerID, rec.CampaignID, rec.Timestamp.UTC(), rec.Text, rec.PostID, rec.Success, rec.Error)
	return id, err
}

func (r *sqliteStore) RecentRunTexts(ctx context.Context, scheduleID string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT text FROM runs WHERE schedule_id=? AND success=1 ORDER BY timestamp DESC LIMIT ?`, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

const runCols = `id,schedule_id,owner_id,campaign_id,timestamp,text,post_id,success,error`

func (r *sqliteStore) LatestRun(ctx context.Context, scheduleID string) (*domain.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+runCols+` FROM runs WHERE schedule_id=? ORDER BY timestamp DESC LIMIT 1`, scheduleID)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *sqliteStore) ListRuns(ctx context.Context, scheduleID string, limit int) ([]domain.RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+runCols+` FROM runs WHERE schedule_id=? ORDER BY timestamp DESC LIMIT ?`, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var (
		s        domain.Schedule
		campaign sql.NullString
		days     string
		style    string
		hashes   string
		lastRun  sql.NullTime
	)
	err := row.Scan(&s.ID, &s.OwnerID, &campaign, &s.Topic, &s.Instructions, &s.RecurrenceType,
		&s.Hour, &s.Minute, &s.Timezone, &days, &s.CronExpr, &style,
		&s.Enabled, &lastRun, &s.NextRunAt, &hashes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Schedule{}, err
	}
	if campaign.Valid {
		c := campaign.String
		s.CampaignID = &c
	}
	if lastRun.Valid {
		t := lastRun.Time
		s.LastRunAt = &t
	}
	if err := json.Unmarshal([]byte(days), &s.DaysOfWeek); err != nil {
		return domain.Schedule{}, err
	}
	if err := json.Unmarshal([]byte(style), &s.Style); err != nil {
		return domain.Schedule{}, err
	}
	if err := json.Unmarshal([]byte(hashes), &s.DedupeHashes); err != nil {
		return domain.Schedule{}, err
	}
	return s, nil
}

func scanRun(row rowScanner) (domain.RunRecord, error) {
	var (
		rec      domain.RunRecord
		campaign sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.ScheduleID, &rec.OwnerID, &campaign, &rec.Timestamp,
		&rec.Text, &rec.PostID, &rec.Success, &rec.Error)
	if err != nil {
		return domain.RunRecord{}, err
	}
	if campaign.Valid {
		c := campaign.String
		rec.CampaignID = &c
	}
	return rec, nil
}

func collectSchedules(rows *sql.Rows) ([]domain.Schedule, error) {
	var schedules []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// orEmpty keeps JSON columns as [] instead of null.
func orEmpty(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
