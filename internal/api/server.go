// Package api exposes the automation surface: the secured batch trigger, the
// manual per-schedule trigger, schedule creation and status/history reads.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"autopost/internal/domain"
	"autopost/internal/recurrence"
	"autopost/internal/runner"
	"autopost/internal/store"
)

// runnerTokenHeader carries the shared secret for the batch trigger.
const runnerTokenHeader = "X-Runner-Token"

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 100
)

type Server struct {
	r      *chi.Mux
	store  store.Store
	runner *runner.Runner
	token  string
	now    func() time.Time
}

func NewServer(st store.Store, run *runner.Runner, runnerToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, store: st, runner: run, token: runnerToken, now: time.Now}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Post("/api/run-due", s.runDue)
	r.Post("/api/schedules", s.createSchedule)
	r.Get("/api/schedules", s.listSchedules)
	r.Post("/api/schedules/{id}/run", s.runNow)
	r.Get("/api/schedules/{id}/status", s.status)
	r.Get("/api/schedules/{id}/history", s.history)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("autopost_up 1\n"))
}

func (s *Server) runDue(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(runnerTokenHeader)
	if s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	res, err := s.runner.RunDue(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createScheduleReq struct {
	OwnerID        string        `json:"owner_id"`
	CampaignID     *string       `json:"campaign_id"`
	Topic          string        `json:"topic"`
	Instructions   string        `json:"instructions"`
	RecurrenceType string        `json:"recurrence_type"`
	Hour           *int          `json:"hour"`
	Minute         *int          `json:"minute"`
	Timezone       string        `json:"timezone"`
	DaysOfWeek     []string      `json:"days_of_week"`
	CronExpr       string        `json:"cron_expr"`
	Style          *domain.Style `json:"style"`
	Enabled        bool          `json:"enabled"`
}

type createScheduleResp struct {
	ID        string    `json:"id"`
	NextRunAt time.Time `json:"next_run_at"`
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "owner_id is required", 400)
		return
	}
	if req.Topic == "" {
		http.Error(w, "topic is required", 400)
		return
	}
	if req.RecurrenceType == "" {
		req.RecurrenceType = domain.RecurrenceDaily
	}
	switch req.RecurrenceType {
	case domain.RecurrenceDaily, domain.RecurrenceWeekly, domain.RecurrenceCustom:
	default:
		http.Error(w, "recurrence_type must be daily, weekly or custom", 400)
		return
	}

	sched := domain.Schedule{
		OwnerID:        req.OwnerID,
		CampaignID:     req.CampaignID,
		Topic:          req.Topic,
		Instructions:   req.Instructions,
		RecurrenceType: req.RecurrenceType,
		Hour:           9,
		Minute:         0,
		Timezone:       req.Timezone,
		DaysOfWeek:     req.DaysOfWeek,
		CronExpr:       req.CronExpr,
		Style:          domain.Style{Tone: "mixed", MaxHashtags: 1, NoLinks: true},
		Enabled:        req.Enabled,
		DedupeHashes:   []string{},
	}
	if req.Hour != nil {
		sched.Hour = *req.Hour
	}
	if req.Minute != nil {
		sched.Minute = *req.Minute
	}
	if sched.Timezone == "" {
		sched.Timezone = "UTC"
	}
	if req.Style != nil {
		sched.Style = *req.Style
	}
	sched.NextRunAt = recurrence.NextRun(sched, s.now())

	id, err := s.store.CreateSchedule(r.Context(), sched)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, createScheduleResp{ID: id, NextRunAt: sched.NextRunAt})
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, schedulePublic(sc))
	}
	writeJSON(w, 200, out)
}

func (s *Server) runNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, err := s.runner.RunNow(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", 404)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, 200, outcome)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sched, err := s.store.GetSchedule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", 404)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	last, err := s.store.LatestRun(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	resp := map[string]any{"schedule": schedulePublic(sched)}
	if last != nil {
		resp["last"] = runPublic(*last)
	} else {
		resp["last"] = nil
	}
	writeJSON(w, 200, resp)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", 400)
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	recs, err := s.store.ListRuns(r.Context(), id, limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	items := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, runPublic(rec))
	}
	writeJSON(w, 200, map[string]any{"items": items})
}

func schedulePublic(s domain.Schedule) map[string]any {
	var lastRun any
	if s.LastRunAt != nil {
		lastRun = s.LastRunAt.Format(time.RFC3339)
	}
	return map[string]any{
		"id":              s.ID,
		"enabled":         s.Enabled,
		"next_run_at":     s.NextRunAt.Format(time.RFC3339),
		"last_run_at":     lastRun,
		"topic":           s.Topic,
		"recurrence_type": s.RecurrenceType,
		"timezone":        s.Timezone,
	}
}

func runPublic(rec domain.RunRecord) map[string]any {
	out := map[string]any{
		"id":          rec.ID,
		"schedule_id": rec.ScheduleID,
		"timestamp":   rec.Timestamp.Format(time.RFC3339),
		"text":        rec.Text,
		"post_id":     rec.PostID,
		"success":     rec.Success,
	}
	if rec.Error != "" {
		out["error"] = rec.Error
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
