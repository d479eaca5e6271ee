// Package recurrence computes the next execution instant for a schedule.
package recurrence

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"autopost/internal/domain"
)

const (
	defaultHour   = 9
	defaultMinute = 0

	// weeklyScanDays bounds the forward scan for weekly schedules.
	weeklyScanDays = 14
)

var weekdayIndex = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// NextRun maps (schedule, now) to the next run instant. It is total: any
// internal fault yields now+24h instead of an error. Wall-clock fields are
// interpreted in the schedule's declared timezone; an invalid or empty zone
// falls back to now's location.
func NextRun(s domain.Schedule, now time.Time) time.Time {
	loc := location(s.Timezone, now)
	local := now.In(loc)
	hour, minute := clampClock(s.Hour, s.Minute)

	switch s.RecurrenceType {
	case domain.RecurrenceDaily:
		return nextDaily(local, hour, minute)
	case domain.RecurrenceWeekly:
		return nextWeekly(local, s.DaysOfWeek, hour, minute)
	case domain.RecurrenceCustom:
		if next, ok := nextCron(s.CronExpr, local); ok {
			return next
		}
		return nextDay(local, hour, minute)
	default:
		return nextDaily(local, defaultHour, defaultMinute)
	}
}

func location(name string, now time.Time) *time.Location {
	if name == "" {
		return now.Location()
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return now.Location()
	}
	return loc
}

func clampClock(hour, minute int) (int, int) {
	if hour < 0 || hour > 23 {
		hour = defaultHour
	}
	if minute < 0 || minute > 59 {
		minute = defaultMinute
	}
	return hour, minute
}

// nextDaily is the earliest hour:minute instant strictly after now.
func nextDaily(now time.Time, hour, minute int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// nextDay is tomorrow at hour:minute regardless of today's instant.
func nextDay(now time.Time, hour, minute int) time.Time {
	t := now.AddDate(0, 0, 1)
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, now.Location())
}

func nextWeekly(now time.Time, days []string, hour, minute int) time.Time {
	target := parseDays(days)
	if len(target) == 0 {
		return nextDaily(now, hour, minute)
	}
	for add := 0; add < weeklyScanDays; add++ {
		d := now.AddDate(0, 0, add)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, now.Location())
		if _, ok := target[candidate.Weekday()]; ok && candidate.After(now) {
			return candidate
		}
	}
	return nextDay(now, hour, minute)
}

func parseDays(days []string) map[time.Weekday]struct{} {
	set := make(map[time.Weekday]struct{})
	for _, d := range days {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(key) > 3 {
			key = key[:3]
		}
		if wd, ok := weekdayIndex[key]; ok {
			set[wd] = struct{}{}
		}
	}
	return set
}

func nextCron(expr string, now time.Time) (time.Time, bool) {
	if strings.TrimSpace(expr) == "" {
		return time.Time{}, false
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, false
	}
	next := sched.Next(now)
	if next.IsZero() || !next.After(now) {
		return time.Time{}, false
	}
	return next, true
}
