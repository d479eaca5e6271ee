package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"autopost/internal/domain"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(db))
	return NewSQLite(db)
}

func sampleSchedule(next time.Time) domain.Schedule {
	campaign := "camp_1"
	return domain.Schedule{
		OwnerID:        "u1",
		CampaignID:     &campaign,
		Topic:          "go, rust",
		Instructions:   "keep it light",
		RecurrenceType: domain.RecurrenceWeekly,
		Hour:           14,
		Minute:         30,
		Timezone:       "UTC",
		DaysOfWeek:     []string{"mon", "thu"},
		CronExpr:       "",
		Style:          domain.Style{Tone: "humor", MaxHashtags: 2, NoLinks: true},
		Enabled:        true,
		NextRunAt:      next,
		DedupeHashes:   []string{"h1", "h2"},
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	next := time.Date(2026, 3, 12, 14, 30, 0, 0, time.UTC)

	id, err := st.CreateSchedule(ctx, sampleSchedule(next))
	require.NoError(t, err)
	assert.Contains(t, id, "sch_")

	got, err := st.GetSchedule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)
	require.NotNil(t, got.CampaignID)
	assert.Equal(t, "camp_1", *got.CampaignID)
	assert.Equal(t, "go, rust", got.Topic)
	assert.Equal(t, domain.RecurrenceWeekly, got.RecurrenceType)
	assert.Equal(t, 14, got.Hour)
	assert.Equal(t, 30, got.Minute)
	assert.Equal(t, []string{"mon", "thu"}, got.DaysOfWeek)
	assert.Equal(t, domain.Style{Tone: "humor", MaxHashtags: 2, NoLinks: true}, got.Style)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunAt)
	assert.True(t, got.NextRunAt.Equal(next))
	assert.Equal(t, []string{"h1", "h2"}, got.DedupeHashes)
}

func TestGetScheduleNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetSchedule(context.Background(), "sch_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDueSchedulesFiltersAndOrders(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)

	later := sampleSchedule(now.Add(-2 * time.Hour))
	earlier := sampleSchedule(now.Add(-4 * time.Hour))
	future := sampleSchedule(now.Add(time.Hour))
	disabled := sampleSchedule(now.Add(-time.Hour))
	disabled.Enabled = false

	laterID, err := st.CreateSchedule(ctx, later)
	require.NoError(t, err)
	earlierID, err := st.CreateSchedule(ctx, earlier)
	require.NoError(t, err)
	_, err = st.CreateSchedule(ctx, future)
	require.NoError(t, err)
	_, err = st.CreateSchedule(ctx, disabled)
	require.NoError(t, err)

	due, err := st.DueSchedules(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	// Soonest first.
	assert.Equal(t, earlierID, due[0].ID)
	assert.Equal(t, laterID, due[1].ID)
}

func TestDueSchedulesNormalizesZones(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	st := openTestStore(t)
	ctx := context.Background()

	// 09:00 in New York is 13:00Z; stored with its offset intact this would
	// compare lexicographically before a 12:00Z query time.
	s := sampleSchedule(time.Date(2026, 6, 1, 9, 0, 0, 0, loc))
	id, err := st.CreateSchedule(ctx, s)
	require.NoError(t, err)

	due, err := st.DueSchedules(ctx, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = st.DueSchedules(ctx, time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)

	got, err := st.GetSchedule(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.NextRunAt.Equal(s.NextRunAt))
}

func TestApplyRunUpdateNormalizesZones(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.CreateSchedule(ctx, sampleSchedule(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	// 09:00 in Tokyo is 00:00Z; a positive offset stored as text would sort
	// after a same-instant UTC query and the schedule would fire late.
	next := time.Date(2026, 6, 2, 9, 0, 0, 0, loc)
	require.NoError(t, st.ApplyRunUpdate(ctx, id, next.Add(-24*time.Hour), next, nil))

	due, err := st.DueSchedules(ctx, time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.True(t, due[0].NextRunAt.Equal(next))
}

func TestApplyRunUpdate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	next := time.Date(2026, 3, 12, 14, 30, 0, 0, time.UTC)

	id, err := st.CreateSchedule(ctx, sampleSchedule(next))
	require.NoError(t, err)

	lastRun := next.Add(time.Minute)
	newNext := next.Add(24 * time.Hour)
	hashes := []string{"h3", "h1", "h2"}
	require.NoError(t, st.ApplyRunUpdate(ctx, id, lastRun, newNext, hashes))

	got, err := st.GetSchedule(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(lastRun))
	assert.True(t, got.NextRunAt.Equal(newNext))
	assert.Equal(t, hashes, got.DedupeHashes)

	assert.ErrorIs(t, st.ApplyRunUpdate(ctx, "sch_missing", lastRun, newNext, nil), ErrNotFound)
}

func TestRunLogQueries(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

	id, err := st.CreateSchedule(ctx, sampleSchedule(base))
	require.NoError(t, err)

	latest, err := st.LatestRun(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, latest)

	records := []domain.RunRecord{
		{ScheduleID: id, OwnerID: "u1", Timestamp: base, Text: "first post.", PostID: "p1", Success: true},
		{ScheduleID: id, OwnerID: "u1", Timestamp: base.Add(time.Hour), Text: "generate: all backends failed", Success: false, Error: "generate: boom"},
		{ScheduleID: id, OwnerID: "u1", Timestamp: base.Add(2 * time.Hour), Text: "third post.", PostID: "p3", Success: true},
	}
	for _, rec := range records {
		_, err := st.AppendRun(ctx, rec)
		require.NoError(t, err)
	}

	// Successful texts only, newest first.
	texts, err := st.RecentRunTexts(ctx, id, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"third post.", "first post."}, texts)

	texts, err = st.RecentRunTexts(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"third post."}, texts)

	latest, err = st.LatestRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "p3", latest.PostID)
	assert.True(t, latest.Success)

	runs, err := st.ListRuns(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third post.", runs[0].Text)
	assert.False(t, runs[1].Success)
	assert.Equal(t, "generate: boom", runs[1].Error)
}

func TestListSchedules(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.CreateSchedule(ctx, sampleSchedule(time.Now()))
	require.NoError(t, err)
	_, err = st.CreateSchedule(ctx, sampleSchedule(time.Now()))
	require.NoError(t, err)

	all, err := st.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
