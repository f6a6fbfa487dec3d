package engine

import (
	"math"
	"time"

	"github.com/chen893/habit-coach-server/internal/models"
)

// recentWindowDays is the rolling window used for "recent" rates everywhere
// in the engine, independent of any phase duration.
const recentWindowDays = 7

// ComputeStats derives the full statistics snapshot for one habit's logs.
// Input order is not assumed; ref anchors all "today" arithmetic so results
// are reproducible. Empty input yields an all-zero snapshot.
func ComputeStats(logs []models.HabitLog, ref time.Time) models.Stats {
	if len(logs) == 0 {
		return models.Stats{}
	}

	completed := 0
	for _, l := range logs {
		if l.Completed {
			completed++
		}
	}

	recent := logsWithinDays(logs, ref, recentWindowDays)
	recentCompleted := 0
	for _, l := range recent {
		if l.Completed {
			recentCompleted++
		}
	}

	return models.Stats{
		TotalDays:         len(logs),
		CompletedDays:     completed,
		CompletionRate:    percent(completed, len(logs)),
		CurrentStreak:     currentStreak(logs, ref),
		LongestStreak:     longestStreak(logs),
		RecentRate:        percent(recentCompleted, len(recent)),
		AverageDifficulty: averageDifficulty(logs),
	}
}

// currentStreak walks logs newest first, expecting each completed log to sit
// exactly one day behind the previous. A gap or an uncompleted day ends the
// streak. Same-day duplicates are skipped rather than counted twice.
func currentStreak(logs []models.HabitLog, ref time.Time) int {
	ordered := make([]models.HabitLog, len(logs))
	copy(ordered, logs)
	sortLogsDescending(ordered)

	streak := 0
	expected := 0
	for _, l := range ordered {
		diff := DaysBetween(ref, l.LoggedAt)
		if diff < expected {
			continue // duplicate day, or future-dated entry
		}
		if diff > expected {
			break
		}
		if !l.Completed {
			break
		}
		streak++
		expected++
	}
	return streak
}

// longestStreak walks completed logs oldest first, counting runs of dates
// that differ by exactly one day.
func longestStreak(logs []models.HabitLog) int {
	var completedLogs []models.HabitLog
	for _, l := range logs {
		if l.Completed {
			completedLogs = append(completedLogs, l)
		}
	}
	if len(completedLogs) == 0 {
		return 0
	}
	sortLogsAscending(completedLogs)

	longest := 1
	run := 1
	for i := 1; i < len(completedLogs); i++ {
		gap := DaysBetween(completedLogs[i].LoggedAt, completedLogs[i-1].LoggedAt)
		switch {
		case gap == 0:
			continue // duplicate day
		case gap == 1:
			run++
		default:
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// averageDifficulty averages the 1..5 ratings over logs that carry one,
// returning 0 when none do. Consumers that need a neutral default substitute
// 3 themselves.
func averageDifficulty(logs []models.HabitLog) float64 {
	sum, n := 0, 0
	for _, l := range logs {
		if l.DifficultyRating != nil {
			sum += *l.DifficultyRating
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// percent computes a rounded integer percentage, defined as 0 for an empty
// denominator.
func percent(num, den int) int {
	if den == 0 {
		return 0
	}
	return int(math.Round(float64(num) / float64(den) * 100))
}

// ratio is percent's float sibling, 0 for an empty denominator.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
