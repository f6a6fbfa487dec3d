package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chen893/habit-coach-server/internal/models"
)

// minTriggerRecords is the evidence floor below which the analyzer returns a
// conservative "needs more data" result instead of a misleading pattern.
const minTriggerRecords = 3

// DefaultTargetDaysClean is the relapse window: a failure this close to the
// previous one counts as a relapse rather than an isolated slip.
const DefaultTargetDaysClean = 7

// AnalyzeTriggerPatterns buckets trigger records by category and aggregates
// each non-empty bucket, sorted by count descending. Fewer than 3 records
// yields an empty result.
func AnalyzeTriggerPatterns(records []models.TriggerRecord) []models.TriggerBucket {
	if len(records) < minTriggerRecords {
		return nil
	}

	type acc struct {
		count     int
		intensity int
		resisted  int
		contexts  []string
	}
	byType := make(map[models.TriggerType]*acc, len(models.TriggerTypes))
	for _, t := range models.TriggerTypes {
		byType[t] = &acc{}
	}

	total := 0
	for _, r := range records {
		a, ok := byType[r.Type]
		if !ok {
			continue // unknown type from an old client; excluded from totals
		}
		total++
		a.count++
		a.intensity += r.Intensity
		if r.Resisted {
			a.resisted++
		}
		if len(a.contexts) < 3 && strings.TrimSpace(r.Context) != "" {
			a.contexts = append(a.contexts, r.Context)
		}
	}

	var buckets []models.TriggerBucket
	for _, t := range models.TriggerTypes {
		a := byType[t]
		if a.count == 0 {
			continue
		}
		buckets = append(buckets, models.TriggerBucket{
			Type:            t,
			Count:           a.count,
			Percentage:      percent(a.count, total),
			AvgIntensity:    float64(a.intensity) / float64(a.count),
			ResistanceRate:  percent(a.resisted, a.count),
			ExampleContexts: a.contexts,
		})
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Count > buckets[j].Count
	})
	return buckets
}

// AnalyzeTemporalPatterns buckets records by hour-of-day and day-of-week and
// flags buckets whose count exceeds 1.5x the uniform average for that axis.
// It also compares weekday against weekend volume for lifestyle-linked
// insights.
func AnalyzeTemporalPatterns(records []models.TriggerRecord) models.TemporalPatterns {
	var out models.TemporalPatterns
	if len(records) < minTriggerRecords {
		out.Insights = append(out.Insights, "Not enough trigger data yet for time patterns.")
		return out
	}

	var hours [24]int
	var weekdays [7]int
	weekdayVolume, weekendVolume := 0, 0
	for _, r := range records {
		hours[r.Timestamp.Hour()]++
		wd := int(r.Timestamp.Weekday())
		weekdays[wd]++
		if wd == 0 || wd == 6 {
			weekendVolume++
		} else {
			weekdayVolume++
		}
	}

	hourThreshold := 1.5 * float64(len(records)) / 24
	for h, n := range hours {
		if float64(n) > hourThreshold {
			out.PeakHours = append(out.PeakHours, h)
		}
	}

	dayThreshold := 1.5 * float64(len(records)) / 7
	for d, n := range weekdays {
		if float64(n) > dayThreshold {
			out.PeakWeekdays = append(out.PeakWeekdays, d)
		}
	}

	for _, h := range out.PeakHours {
		out.Insights = append(out.Insights, fmt.Sprintf("Triggers cluster around %02d:00.", h))
	}
	for _, d := range out.PeakWeekdays {
		out.Insights = append(out.Insights, fmt.Sprintf("%ss are a high-trigger day.", time.Weekday(d)))
	}

	if weekdayVolume > 2*weekendVolume {
		out.Insights = append(out.Insights, "Triggers concentrate on workdays; likely work-stress linked.")
	} else if float64(weekendVolume) > 0.8*float64(weekdayVolume) {
		out.Insights = append(out.Insights, "Triggers stay high on weekends; likely leisure-time linked.")
	}

	return out
}

// AnalyzeRelapse classifies failed-resistance events. A relapse is a failure
// occurring within targetDaysClean days of the previous failure (pass 0 for
// the default of 7). ref anchors the days-since computation.
func AnalyzeRelapse(records []models.TriggerRecord, targetDaysClean int, ref time.Time) models.RelapseAnalysis {
	if targetDaysClean <= 0 {
		targetDaysClean = DefaultTargetDaysClean
	}

	var failures []models.TriggerRecord
	for _, r := range records {
		if !r.Resisted {
			failures = append(failures, r)
		}
	}

	if len(failures) == 0 {
		return models.RelapseAnalysis{
			DaysSinceLastRelapse: -1,
			RecoveryAdvice:       []string{"Clean record so far. Keep the streak visible where you can see it."},
		}
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Timestamp.Before(failures[j].Timestamp)
	})

	last := failures[len(failures)-1]
	isRelapse := false
	if len(failures) >= 2 {
		prev := failures[len(failures)-2]
		isRelapse = DaysBetween(last.Timestamp, prev.Timestamp) <= targetDaysClean
	}

	return models.RelapseAnalysis{
		IsRelapse:            isRelapse,
		DaysSinceLastRelapse: DaysBetween(ref, last.Timestamp),
		RelapseCount:         len(failures),
		RelapsePattern:       namePattern(failures),
		RecoveryAdvice:       recoveryAdvice(isRelapse, failures),
	}
}

// namePattern tries to put a name on what failures have in common: first a
// trigger-type majority (>50%), then keywords recurring in at least half the
// failure contexts. Returns "" when nothing stands out.
func namePattern(failures []models.TriggerRecord) string {
	counts := make(map[models.TriggerType]int)
	for _, f := range failures {
		counts[f.Type]++
	}
	for _, t := range models.TriggerTypes {
		if counts[t]*2 > len(failures) {
			return fmt.Sprintf("%d of %d failures share a %s trigger", counts[t], len(failures), t)
		}
	}

	terms := recurringTerms(failures)
	if len(terms) > 0 {
		return fmt.Sprintf("recurring context: %s", strings.Join(terms, ", "))
	}
	return ""
}

// recurringTerms runs a naive term frequency over failure contexts, keeping
// terms present in at least half of them, capped at 5. Heuristic on purpose:
// the output has to be citable as evidence in coaching copy.
func recurringTerms(failures []models.TriggerRecord) []string {
	termDocs := make(map[string]int)
	for _, f := range failures {
		seen := make(map[string]bool)
		for _, tok := range tokenize(f.Context) {
			if !seen[tok] {
				seen[tok] = true
				termDocs[tok]++
			}
		}
	}

	var terms []string
	for term, docs := range termDocs {
		if docs*2 >= len(failures) && docs >= 2 {
			terms = append(terms, term)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if termDocs[terms[i]] != termDocs[terms[j]] {
			return termDocs[terms[i]] > termDocs[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > 5 {
		terms = terms[:5]
	}
	return terms
}

// tokenize splits on whitespace and punctuation, lowercases, and drops
// single-character tokens.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '.' ||
			r == ';' || r == ':' || r == '!' || r == '?' || r == '(' || r == ')' ||
			r == '，' || r == '。' || r == '！' || r == '？' || r == '、'
	})
	var out []string
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func recoveryAdvice(isRelapse bool, failures []models.TriggerRecord) []string {
	advice := []string{
		"A slip is data, not a verdict. Note what preceded it.",
	}
	if isRelapse {
		advice = append(advice,
			"Two slips close together: remove the easiest trigger you can reach.",
			"Shorten the clean-day target temporarily so the next win comes fast.")
	} else {
		advice = append(advice, "The gap between slips is holding. Keep the same defenses in place.")
	}

	// Cite the strongest coping strategy seen on resisted-adjacent context.
	for i := len(failures) - 1; i >= 0; i-- {
		if failures[i].CopingStrategy != "" {
			advice = append(advice, fmt.Sprintf("Last time, %q helped partway. Reach for it earlier.", failures[i].CopingStrategy))
			break
		}
	}
	return advice
}
