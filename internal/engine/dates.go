package engine

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chen893/habit-coach-server/internal/models"
)

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the whole calendar days from a to b (positive when b is
// earlier), ignoring the time-of-day component of both.
func DaysBetween(a, b time.Time) int {
	da := StartOfDay(a)
	db := StartOfDay(b)
	return int(da.Sub(db).Hours() / 24)
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// DedupeByDay keeps the last log seen for each calendar day. The store's
// unique key makes duplicates unlikely, but callers may pass raw slices.
func DedupeByDay(logs []models.HabitLog) []models.HabitLog {
	byDay := make(map[string]models.HabitLog, len(logs))
	for _, l := range logs {
		byDay[l.LoggedAt.Format("2006-01-02")] = l
	}
	out := make([]models.HabitLog, 0, len(byDay))
	for _, l := range byDay {
		out = append(out, l)
	}
	sortLogsAscending(out)
	return out
}

func sortLogsAscending(logs []models.HabitLog) {
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].LoggedAt.Before(logs[j].LoggedAt)
	})
}

func sortLogsDescending(logs []models.HabitLog) {
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].LoggedAt.After(logs[j].LoggedAt)
	})
}

// logsWithinDays returns logs whose date falls within the last n calendar
// days of ref, inclusive of ref's own day.
func logsWithinDays(logs []models.HabitLog, ref time.Time, n int) []models.HabitLog {
	var out []models.HabitLog
	for _, l := range logs {
		d := DaysBetween(ref, l.LoggedAt)
		if d >= 0 && d < n {
			out = append(out, l)
		}
	}
	return out
}

// ParseDurationHint extracts a day count from a phase duration hint such as
// "7天", "2周", "1个月", "14 days" or "3 weeks". Unparsable hints fall back
// to 7 days so readiness scoring never divides by zero.
func ParseDurationHint(hint string) int {
	const fallback = 7

	s := strings.TrimSpace(strings.ToLower(hint))
	if s == "" {
		return fallback
	}

	// Leading number.
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return fallback
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n <= 0 {
		return fallback
	}

	unit := strings.TrimSpace(s[i:])
	switch {
	case unit == "" || strings.HasPrefix(unit, "天") || strings.HasPrefix(unit, "日") || strings.HasPrefix(unit, "d"):
		return n
	case strings.HasPrefix(unit, "周") || strings.HasPrefix(unit, "星期") || strings.HasPrefix(unit, "w"):
		return n * 7
	case strings.HasPrefix(unit, "个月") || strings.HasPrefix(unit, "月") || strings.HasPrefix(unit, "m"):
		return n * 30
	default:
		return fallback
	}
}
