package domain

import "time"

// Recurrence types accepted on a Schedule.
const (
	RecurrenceDaily  = "daily"
	RecurrenceWeekly = "weekly"
	RecurrenceCustom = "custom"
)

// DedupeHistorySize bounds Schedule.DedupeHashes.
const DedupeHistorySize = 50

// Style controls the voice of generated posts.
type Style struct {
	Tone        string `json:"tone"`
	MaxHashtags int    `json:"max_hashtags"`
	NoLinks     bool   `json:"no_links"`
}

// Schedule describes what to auto-publish and when. Topic holds a
// comma-separated candidate list; DedupeHashes is newest-first and capped
// at DedupeHistorySize.
type Schedule struct {
	ID             string
	OwnerID        string
	CampaignID     *string
	Topic          string
	Instructions   string
	RecurrenceType string
	Hour           int
	Minute         int
	Timezone       string
	DaysOfWeek     []string
	CronExpr       string
	Style          Style
	Enabled        bool
	LastRunAt      *time.Time
	NextRunAt      time.Time
	DedupeHashes   []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RunRecord is the durable log entry for one execution attempt.
type RunRecord struct {
	ID         string
	ScheduleID string
	OwnerID    string
	CampaignID *string
	Timestamp  time.Time
	Text       string
	PostID     string
	Success    bool
	Error      string
}

// Outcome is the per-schedule result reported by batch and manual triggers.
type Outcome struct {
	ScheduleID string `json:"scheduleId"`
	OK         bool   `json:"ok"`
	PostID     string `json:"postId,omitempty"`
	Error      string `json:"error,omitempty"`
}
