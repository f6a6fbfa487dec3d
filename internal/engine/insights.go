package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/chen893/habit-coach-server/internal/models"
)

// HabitBundle is the read-only snapshot the aggregator consumes for one
// habit: the habit row plus everything logged against it.
type HabitBundle struct {
	Habit    models.Habit
	Logs     []models.HabitLog
	Triggers []models.TriggerRecord
}

// maxRiskEntries caps the dashboard risk list.
const maxRiskEntries = 5

// BuildDashboard composes the full dashboard payload from habit snapshots.
// Purely numeric: narrative text is attached downstream so the dashboard is
// never blocked on generation.
func BuildDashboard(bundles []HabitBundle, ref time.Time) models.DashboardInsights {
	out := models.DashboardInsights{
		HeatmapData: buildHeatmap(bundles),
	}

	totalLogs, totalCompleted := 0, 0
	for _, b := range bundles {
		logs := DedupeByDay(b.Logs)
		stats := ComputeStats(logs, ref)
		daysSinceStart := DaysBetween(ref, b.Habit.CreatedAt)
		motivation := ScoreMotivation(logs, daysSinceStart, ref)

		insight := models.HabitInsight{
			Habit:      b.Habit,
			Stats:      stats,
			Motivation: motivation,
		}

		if len(b.Habit.Phases) > 0 {
			daysInPhase := DaysBetween(ref, b.Habit.PhaseStarted)
			phaseLogs := LogsSince(logs, b.Habit.PhaseStarted)
			readiness := EvaluateReadiness(b.Habit.CurrentPhase, b.Habit.Phases, phaseLogs, daysInPhase, ref)
			retreat := EvaluateRetreat(b.Habit.CurrentPhase, b.Habit.Phases, phaseLogs, ref)
			insight.Readiness = &readiness
			insight.Retreat = &retreat
		}

		if b.Habit.Type == models.HabitBreak {
			relapse := AnalyzeRelapse(b.Triggers, DefaultTargetDaysClean, ref)
			insight.Relapse = &relapse
		}

		out.PerHabit = append(out.PerHabit, insight)
		totalLogs += stats.TotalDays
		totalCompleted += stats.CompletedDays

		if risk, ok := assessRisk(b.Habit, stats, motivation, insight.Relapse); ok {
			out.RiskAssessments = append(out.RiskAssessments, risk)
		}
	}

	sort.SliceStable(out.RiskAssessments, func(i, j int) bool {
		return out.RiskAssessments[i].RiskScore > out.RiskAssessments[j].RiskScore
	})
	if len(out.RiskAssessments) > maxRiskEntries {
		out.RiskAssessments = out.RiskAssessments[:maxRiskEntries]
	}

	out.OverallRate = percent(totalCompleted, totalLogs)
	out.QuickInsights = quickInsights(out.PerHabit)
	out.Summary = summarize(len(bundles), out.OverallRate, len(out.RiskAssessments))

	return out
}

// buildHeatmap aggregates check-in activity into day-of-week × hour cells.
// Only non-empty cells are emitted.
func buildHeatmap(bundles []HabitBundle) []models.HeatmapCell {
	type cell struct{ count, completed int }
	grid := make(map[[2]int]*cell)
	for _, b := range bundles {
		for _, l := range b.Logs {
			key := [2]int{int(l.LoggedAt.Weekday()), l.LoggedAt.Hour()}
			c := grid[key]
			if c == nil {
				c = &cell{}
				grid[key] = c
			}
			c.count++
			if l.Completed {
				c.completed++
			}
		}
	}

	var cells []models.HeatmapCell
	for key, c := range grid {
		cells = append(cells, models.HeatmapCell{
			Weekday:        key[0],
			Hour:           key[1],
			Count:          c.count,
			CompletionRate: percent(c.completed, c.count),
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Weekday != cells[j].Weekday {
			return cells[i].Weekday < cells[j].Weekday
		}
		return cells[i].Hour < cells[j].Hour
	})
	return cells
}

// assessRisk flags habits trending toward failure. The score is a weighted
// blend: motivation state dominates, relapse evidence and a falling trend
// add on top.
func assessRisk(habit models.Habit, stats models.Stats, motivation models.MotivationAnalysis, relapse *models.RelapseAnalysis) (models.RiskAssessment, bool) {
	score := 0
	var factors []string

	switch motivation.State {
	case models.MotivationCritical:
		score += 50
		factors = append(factors, "motivation critical")
	case models.MotivationDeclining:
		score += 30
		factors = append(factors, "motivation declining")
	}

	if motivation.Trend == models.TrendDown {
		score += 20
		factors = append(factors, "completion trending down")
	}

	if stats.CurrentStreak == 0 && stats.TotalDays > 0 {
		score += 10
		factors = append(factors, "streak broken")
	}

	if relapse != nil && relapse.IsRelapse {
		score += 30
		factors = append(factors, "recent relapse")
	}

	if score > 100 {
		score = 100
	}
	if score < 30 {
		return models.RiskAssessment{}, false
	}

	return models.RiskAssessment{
		HabitID:   habit.ID,
		HabitName: habit.Name,
		RiskScore: score,
		Factors:   factors,
	}, true
}

// quickInsights surfaces a handful of headline observations.
func quickInsights(habits []models.HabitInsight) []string {
	var insights []string

	var bestStreak models.HabitInsight
	for _, h := range habits {
		if h.Stats.CurrentStreak > bestStreak.Stats.CurrentStreak {
			bestStreak = h
		}
	}
	if bestStreak.Stats.CurrentStreak >= 3 {
		insights = append(insights, fmt.Sprintf("%s is on a %d-day streak.", bestStreak.Habit.Name, bestStreak.Stats.CurrentStreak))
	}

	for _, h := range habits {
		if h.Readiness != nil && h.Readiness.ShouldUpgrade {
			insights = append(insights, fmt.Sprintf("%s is ready for its next phase.", h.Habit.Name))
		}
		if h.Motivation.InterventionTiming != "" {
			insights = append(insights, fmt.Sprintf("%s hit the %s today.", h.Habit.Name, h.Motivation.InterventionTiming))
		}
	}

	if len(insights) > 5 {
		insights = insights[:5]
	}
	return insights
}

func summarize(habitCount, overallRate, riskCount int) string {
	switch {
	case habitCount == 0:
		return "No habits tracked yet."
	case riskCount > 0:
		return fmt.Sprintf("Tracking %d habits at %d%% overall completion; %d need attention.", habitCount, overallRate, riskCount)
	default:
		return fmt.Sprintf("Tracking %d habits at %d%% overall completion. All stable.", habitCount, overallRate)
	}
}

// LogsSince filters logs at or after a boundary day. Phase evaluators score
// only logs accumulated during the current phase, so every call site scopes
// with this before evaluating.
func LogsSince(logs []models.HabitLog, since time.Time) []models.HabitLog {
	boundary := StartOfDay(since)
	var out []models.HabitLog
	for _, l := range logs {
		if !l.LoggedAt.Before(boundary) {
			out = append(out, l)
		}
	}
	return out
}
