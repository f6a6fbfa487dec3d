package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/chen893/habit-coach-server/internal/db"
	"github.com/chen893/habit-coach-server/internal/engine"
	"github.com/chen893/habit-coach-server/internal/models"
	"github.com/chen893/habit-coach-server/internal/narrative"
	"github.com/chen893/habit-coach-server/internal/report"
)

// ReportGenerator builds daily and weekly coaching reports. Numbers come from
// the engine first; the narrative layer only phrases them, with its
// deterministic fallback when generation is unavailable.
type ReportGenerator struct {
	database *db.DB
	writer   *report.Writer
	gen      *narrative.Resilient
	timezone *time.Location
}

func NewReportGenerator(database *db.DB, writer *report.Writer, gen *narrative.Resilient, tz *time.Location) *ReportGenerator {
	return &ReportGenerator{
		database: database,
		writer:   writer,
		gen:      gen,
		timezone: tz,
	}
}

// GenerateDailyReports writes one daily letter per habit for the given day,
// skipping habits already covered (idempotent across reruns).
func (g *ReportGenerator) GenerateDailyReports(ctx context.Context, now time.Time) error {
	habits, err := g.database.ListHabits()
	if err != nil {
		return fmt.Errorf("listing habits: %w", err)
	}

	forDate := now.Format("2006-01-02")
	for _, h := range habits {
		exists, err := g.database.HasReport(h.ID, "daily", forDate)
		if err != nil {
			log.Printf("report: checking existing daily for %s: %v", h.ID, err)
			continue
		}
		if exists {
			continue
		}
		if err := g.generateOne(ctx, h, "daily", forDate, now); err != nil {
			log.Printf("report: daily for %s: %v", h.Name, err)
		}
	}
	return nil
}

// GenerateWeeklyReports writes one weekly review per habit, dated by ISO week.
func (g *ReportGenerator) GenerateWeeklyReports(ctx context.Context, now time.Time) error {
	habits, err := g.database.ListHabits()
	if err != nil {
		return fmt.Errorf("listing habits: %w", err)
	}

	year, week := now.ISOWeek()
	forDate := fmt.Sprintf("%d-W%02d", year, week)
	for _, h := range habits {
		exists, err := g.database.HasReport(h.ID, "weekly", forDate)
		if err != nil {
			log.Printf("report: checking existing weekly for %s: %v", h.ID, err)
			continue
		}
		if exists {
			continue
		}
		if err := g.generateOne(ctx, h, "weekly", forDate, now); err != nil {
			log.Printf("report: weekly for %s: %v", h.Name, err)
		}
	}
	return nil
}

// GenerateNow produces a report for a single habit on demand.
func (g *ReportGenerator) GenerateNow(ctx context.Context, habitID, reportType string, now time.Time) error {
	habit, err := g.database.GetHabit(habitID)
	if err != nil {
		return fmt.Errorf("loading habit: %w", err)
	}
	if habit == nil {
		return fmt.Errorf("habit %s not found", habitID)
	}

	forDate := now.Format("2006-01-02")
	if reportType == "weekly" {
		year, week := now.ISOWeek()
		forDate = fmt.Sprintf("%d-W%02d", year, week)
	}
	return g.generateOne(ctx, *habit, reportType, forDate, now)
}

func (g *ReportGenerator) generateOne(ctx context.Context, habit models.Habit, reportType, forDate string, now time.Time) error {
	logs, err := g.database.GetLogs(habit.ID)
	if err != nil {
		return fmt.Errorf("loading logs: %w", err)
	}
	triggers, err := g.database.GetTriggers(habit.ID)
	if err != nil {
		return fmt.Errorf("loading triggers: %w", err)
	}

	nc := buildContext(habit, logs, triggers, now)
	message := g.gen.CoachMessage(ctx, nc)

	r := report.Report{
		ID:      uuid.NewString(),
		HabitID: habit.ID,
		Type:    reportType,
		ForDate: forDate,
		Content: formatReport(habit, nc, message),
	}
	relPath, err := g.writer.Write(r)
	if err != nil {
		return err
	}

	if err := g.database.SaveReport(r.ID, habit.ID, reportType, forDate, relPath); err != nil {
		return fmt.Errorf("indexing report: %w", err)
	}
	return nil
}

// buildContext runs the full numeric pipeline for one habit. Everything the
// narrative layer sees is decided here.
func buildContext(habit models.Habit, logs []models.HabitLog, triggers []models.TriggerRecord, now time.Time) narrative.NumericContext {
	deduped := engine.DedupeByDay(logs)
	stats := engine.ComputeStats(deduped, now)
	motivation := engine.ScoreMotivation(deduped, engine.DaysBetween(now, habit.CreatedAt), now)

	nc := narrative.NumericContext{
		HabitName:  habit.Name,
		HabitType:  habit.Type,
		Stats:      stats,
		Motivation: motivation,
	}

	if len(habit.Phases) > 0 {
		daysInPhase := engine.DaysBetween(now, habit.PhaseStarted)
		phaseLogs := engine.LogsSince(deduped, habit.PhaseStarted)
		readiness := engine.EvaluateReadiness(habit.CurrentPhase, habit.Phases, phaseLogs, daysInPhase, now)
		retreat := engine.EvaluateRetreat(habit.CurrentPhase, habit.Phases, phaseLogs, now)
		nc.Readiness = &readiness
		nc.Retreat = &retreat
	}

	if habit.Type == models.HabitBreak {
		relapse := engine.AnalyzeRelapse(triggers, engine.DefaultTargetDaysClean, now)
		nc.Relapse = &relapse
	}

	return nc
}

func formatReport(habit models.Habit, nc narrative.NumericContext, message string) string {
	body := fmt.Sprintf("# %s\n\n%s\n\n## Numbers\n\n- Streak: %d (longest %d)\n- Completion: %d%% overall, %d%% this week\n- Motivation: %d/10 (%s, trend %s)\n",
		habit.Name, message,
		nc.Stats.CurrentStreak, nc.Stats.LongestStreak,
		nc.Stats.CompletionRate, nc.Stats.RecentRate,
		nc.Motivation.CurrentScore, nc.Motivation.State, nc.Motivation.Trend)

	if nc.Readiness != nil {
		body += fmt.Sprintf("- Phase %d readiness: %d/100\n", habit.CurrentPhase, nc.Readiness.ReadinessScore)
	}
	if nc.Relapse != nil && nc.Relapse.RelapseCount > 0 {
		body += fmt.Sprintf("- Slips: %d, last one %d days ago\n", nc.Relapse.RelapseCount, nc.Relapse.DaysSinceLastRelapse)
	}
	return body
}
