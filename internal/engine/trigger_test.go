package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/chen893/habit-coach-server/internal/models"
)

// triggerAt builds a trigger record `back` days before the reference date at
// the given hour.
func triggerAt(back, hour int, triggerType models.TriggerType, resisted bool) models.TriggerRecord {
	ts := testRef.AddDate(0, 0, -back)
	return models.TriggerRecord{
		Timestamp: time.Date(ts.Year(), ts.Month(), ts.Day(), hour, 0, 0, 0, time.UTC),
		Type:      triggerType,
		Intensity: 5,
		Resisted:  resisted,
	}
}

func TestAnalyzeTriggerPatternsNeedsData(t *testing.T) {
	records := []models.TriggerRecord{
		triggerAt(0, 21, models.TriggerEmotional, true),
		triggerAt(1, 21, models.TriggerEmotional, true),
	}
	if buckets := AnalyzeTriggerPatterns(records); buckets != nil {
		t.Errorf("expected nil below the evidence floor, got %d buckets", len(buckets))
	}
}

func TestAnalyzeTriggerPatterns(t *testing.T) {
	records := []models.TriggerRecord{
		triggerAt(0, 21, models.TriggerEmotional, true),
		triggerAt(1, 21, models.TriggerEmotional, false),
		triggerAt(2, 22, models.TriggerEmotional, true),
		triggerAt(3, 9, models.TriggerTemporal, false),
	}
	records[0].Context = "argument at home"
	records[0].Intensity = 8
	records[1].Intensity = 6
	records[2].Intensity = 4

	buckets := AnalyzeTriggerPatterns(records)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 non-empty buckets, got %d", len(buckets))
	}

	top := buckets[0]
	if top.Type != models.TriggerEmotional {
		t.Errorf("expected emotional bucket first, got %s", top.Type)
	}
	if top.Count != 3 || top.Percentage != 75 {
		t.Errorf("expected count 3 at 75%%, got %d at %d%%", top.Count, top.Percentage)
	}
	if top.AvgIntensity != 6.0 {
		t.Errorf("expected avg intensity 6.0, got %v", top.AvgIntensity)
	}
	if top.ResistanceRate != 67 {
		t.Errorf("expected resistance rate 67, got %d", top.ResistanceRate)
	}
	if len(top.ExampleContexts) != 1 || top.ExampleContexts[0] != "argument at home" {
		t.Errorf("expected the one non-empty context as example, got %v", top.ExampleContexts)
	}
}

func TestAnalyzeTemporalPatternsPeakHour(t *testing.T) {
	// 6 of 8 records land at 21:00 — far above the uniform average.
	var records []models.TriggerRecord
	for i := 0; i < 6; i++ {
		records = append(records, triggerAt(i, 21, models.TriggerTemporal, true))
	}
	records = append(records, triggerAt(6, 9, models.TriggerTemporal, true))
	records = append(records, triggerAt(7, 14, models.TriggerTemporal, true))

	patterns := AnalyzeTemporalPatterns(records)

	found := false
	for _, h := range patterns.PeakHours {
		if h == 21 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 21:00 flagged as peak, got %v", patterns.PeakHours)
	}
}

func TestAnalyzeTemporalPatternsWeekdayWeekend(t *testing.T) {
	// 2024-03-11 is a Monday.
	weekday := func(n int) models.TriggerRecord {
		ts := time.Date(2024, 3, 11+n, 12, 0, 0, 0, time.UTC)
		return models.TriggerRecord{Timestamp: ts, Type: models.TriggerContextual, Intensity: 5, Resisted: true}
	}

	// 5 weekday triggers, 1 weekend trigger: weekday > 2x weekend.
	records := []models.TriggerRecord{
		weekday(0), weekday(1), weekday(2), weekday(3), weekday(4), // Mon-Fri
		{Timestamp: time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC), Type: models.TriggerContextual, Intensity: 5, Resisted: true}, // Saturday
	}

	patterns := AnalyzeTemporalPatterns(records)
	joined := strings.Join(patterns.Insights, " ")
	if !strings.Contains(joined, "work") {
		t.Errorf("expected work-stress insight, got %v", patterns.Insights)
	}
}

func TestAnalyzeRelapseClean(t *testing.T) {
	records := []models.TriggerRecord{
		triggerAt(0, 21, models.TriggerEmotional, true),
		triggerAt(1, 21, models.TriggerEmotional, true),
	}

	analysis := AnalyzeRelapse(records, 0, testRef)
	if analysis.IsRelapse || analysis.RelapseCount != 0 {
		t.Errorf("expected clean record, got %+v", analysis)
	}
	if analysis.DaysSinceLastRelapse != -1 {
		t.Errorf("expected -1 days since relapse, got %d", analysis.DaysSinceLastRelapse)
	}
}

func TestAnalyzeRelapseWindow(t *testing.T) {
	// Failures 3 days apart with a 7-day target: relapse.
	close := []models.TriggerRecord{
		triggerAt(3, 21, models.TriggerEmotional, false),
		triggerAt(0, 21, models.TriggerEmotional, false),
	}
	analysis := AnalyzeRelapse(close, 7, testRef)
	if !analysis.IsRelapse {
		t.Error("expected relapse for failures 3 days apart")
	}
	if analysis.RelapseCount != 2 {
		t.Errorf("expected 2 failures, got %d", analysis.RelapseCount)
	}
	if analysis.DaysSinceLastRelapse != 0 {
		t.Errorf("expected last failure today, got %d days", analysis.DaysSinceLastRelapse)
	}

	// Failures 10 days apart: an isolated slip, not a relapse.
	spread := []models.TriggerRecord{
		triggerAt(10, 21, models.TriggerEmotional, false),
		triggerAt(0, 21, models.TriggerEmotional, false),
	}
	analysis = AnalyzeRelapse(spread, 7, testRef)
	if analysis.IsRelapse {
		t.Error("expected no relapse for failures 10 days apart")
	}
}

func TestRelapsePatternTypeMajority(t *testing.T) {
	records := []models.TriggerRecord{
		triggerAt(0, 21, models.TriggerEmotional, false),
		triggerAt(2, 21, models.TriggerEmotional, false),
		triggerAt(4, 9, models.TriggerTemporal, false),
	}

	analysis := AnalyzeRelapse(records, 7, testRef)
	if !strings.Contains(analysis.RelapsePattern, "emotional") {
		t.Errorf("expected emotional majority pattern, got %q", analysis.RelapsePattern)
	}
	if !strings.Contains(analysis.RelapsePattern, "2 of 3") {
		t.Errorf("expected evidence count in pattern, got %q", analysis.RelapsePattern)
	}
}

func TestRelapsePatternRecurringTerms(t *testing.T) {
	// No type majority (2/2/1 split impossible with 4 — use an even split),
	// but "overtime" recurs in the contexts.
	records := []models.TriggerRecord{
		triggerAt(0, 21, models.TriggerEmotional, false),
		triggerAt(2, 21, models.TriggerTemporal, false),
		triggerAt(4, 9, models.TriggerContextual, false),
		triggerAt(6, 9, models.TriggerBehavioral, false),
	}
	records[0].Context = "stressed after overtime"
	records[1].Context = "overtime again, exhausted"
	records[2].Context = "walking past the bar"
	records[3].Context = "scrolling overtime posts"

	analysis := AnalyzeRelapse(records, 7, testRef)
	if !strings.Contains(analysis.RelapsePattern, "overtime") {
		t.Errorf("expected recurring term in pattern, got %q", analysis.RelapsePattern)
	}
}

func TestRecoveryAdviceAlwaysPresent(t *testing.T) {
	for _, records := range [][]models.TriggerRecord{
		nil,
		{triggerAt(0, 21, models.TriggerEmotional, false)},
		{triggerAt(0, 21, models.TriggerEmotional, false), triggerAt(1, 21, models.TriggerEmotional, false)},
	} {
		analysis := AnalyzeRelapse(records, 7, testRef)
		if len(analysis.RecoveryAdvice) == 0 {
			t.Errorf("expected recovery advice for %d records", len(records))
		}
	}
}
