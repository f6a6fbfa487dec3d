package engine

import (
	"math"
	"time"

	"github.com/chen893/habit-coach-server/internal/models"
)

// milestoneLabels maps exact days-since-start to behavioral milestones worth
// calling out. Absent days carry no label.
var milestoneLabels = map[int]string{
	3:   "three-day hump",
	7:   "first-week milestone",
	14:  "two-week consolidation point",
	21:  "21-day formation checkpoint",
	30:  "one-month mark",
	66:  "66-day automaticity point",
	100: "100-day anniversary",
}

// suggested actions per motivation state. Narrative polish happens upstream;
// these are the deterministic baseline.
var stateActions = map[models.MotivationState]string{
	models.MotivationStrong:    "Momentum is on your side. Consider raising the bar slightly.",
	models.MotivationNormal:    "Steady as it goes. Protect the time slot you already use.",
	models.MotivationDeclining: "Shrink the habit to its minimum version for a few days.",
	models.MotivationCritical:  "Pause and restart with the smallest possible step today.",
}

// ScoreMotivation computes the 1..10 composite motivation score and its
// 4-state classification from the last 7 days of logs.
//
// Defaults: a habit younger than 8 days with no logs is in its grace period
// and scores 7; an older habit with no recent logs scores 3. avgDifficulty
// substitutes 3 (neutral) when no ratings are present; avgMoodDelta
// substitutes 0 when no paired moods are present.
func ScoreMotivation(logs []models.HabitLog, daysSinceStart int, ref time.Time) models.MotivationAnalysis {
	if len(logs) == 0 {
		if daysSinceStart <= 7 {
			return analysisFor(7, models.MotivationNormal, models.TrendStable, daysSinceStart)
		}
		return analysisFor(3, models.MotivationCritical, models.TrendStable, daysSinceStart)
	}

	recent := logsWithinDays(logs, ref, recentWindowDays)
	if len(recent) == 0 {
		return analysisFor(3, models.MotivationCritical, trendOf(logs, ref), daysSinceStart)
	}

	completed := 0
	for _, l := range recent {
		if l.Completed {
			completed++
		}
	}
	completionRate := ratio(completed, len(recent))

	avgDifficulty := averageDifficulty(recent)
	if avgDifficulty == 0 {
		avgDifficulty = 3 // neutral when unrated
	}
	moodDelta := averageMoodDelta(recent)

	completionScore := completionRate * 4
	moodScore := clampFloat(moodDelta+1.5, 0, 3)
	difficultyScore := math.Max(0, 3-(avgDifficulty-2)*0.75)

	score := int(math.Round(clampFloat(completionScore+moodScore+difficultyScore, 1, 10)))

	return analysisFor(score, classifyState(completionRate, avgDifficulty, moodDelta), trendOf(logs, ref), daysSinceStart)
}

// classifyState is an ordered rule cascade; the order is a behavioral
// contract (a 40% completion rate must land on declining, not critical).
func classifyState(completionRate, avgDifficulty, moodDelta float64) models.MotivationState {
	switch {
	case completionRate >= 0.8 && avgDifficulty <= 3 && moodDelta >= 0:
		return models.MotivationStrong
	case completionRate >= 0.5 && avgDifficulty <= 4:
		return models.MotivationNormal
	case completionRate >= 0.3 || avgDifficulty <= 4:
		return models.MotivationDeclining
	default:
		return models.MotivationCritical
	}
}

// trendOf compares completion over the last 3 days against days 4-6 back.
func trendOf(logs []models.HabitLog, ref time.Time) models.Trend {
	var lastDone, lastTotal, priorDone, priorTotal int
	for _, l := range logs {
		d := DaysBetween(ref, l.LoggedAt)
		switch {
		case d >= 0 && d < 3:
			lastTotal++
			if l.Completed {
				lastDone++
			}
		case d >= 3 && d < 6:
			priorTotal++
			if l.Completed {
				priorDone++
			}
		}
	}

	delta := ratio(lastDone, lastTotal) - ratio(priorDone, priorTotal)
	switch {
	case delta > 0.2:
		return models.TrendUp
	case delta < -0.2:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

func analysisFor(score int, state models.MotivationState, trend models.Trend, daysSinceStart int) models.MotivationAnalysis {
	timing := milestoneLabels[daysSinceStart]
	needed := state == models.MotivationCritical || state == models.MotivationDeclining || timing != ""

	return models.MotivationAnalysis{
		CurrentScore:       score,
		State:              state,
		Trend:              trend,
		InterventionNeeded: needed,
		InterventionTiming: timing,
		SuggestedAction:    stateActions[state],
	}
}

// averageMoodDelta averages moodAfter-moodBefore over logs carrying both,
// 0 when none do.
func averageMoodDelta(logs []models.HabitLog) float64 {
	sum, n := 0, 0
	for _, l := range logs {
		if l.MoodBefore != nil && l.MoodAfter != nil {
			sum += *l.MoodAfter - *l.MoodBefore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
