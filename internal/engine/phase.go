package engine

import (
	"fmt"
	"time"

	"github.com/chen893/habit-coach-server/internal/models"
)

// Advance gate: a phase must hold both a 70-point readiness score and at
// least 7 days of residency. The day floor stands on its own so a perfect
// first weekend cannot trigger an advance.
const (
	advanceScoreFloor = 70
	advanceDayFloor   = 7
)

// EvaluateReadiness scores whether a habit is ready to advance from
// currentPhase to the next phase of its configured path. recentLogs should be
// the logs accumulated during the current phase; daysInPhase is residency in
// calendar days. The evaluator never mutates currentPhase — transitions are
// applied by the caller so they stay auditable.
func EvaluateReadiness(currentPhase int, phases []models.PhaseConfig, recentLogs []models.HabitLog, daysInPhase int, ref time.Time) models.PhaseEvaluationResult {
	cfg := findPhase(phases, currentPhase)
	if cfg == nil {
		return models.PhaseEvaluationResult{
			ShouldUpgrade:  false,
			ReadinessScore: 0,
			Reasons:        []string{fmt.Sprintf("no configuration found for phase %d", currentPhase)},
			Recommendation: "Phase configuration is missing. Redesign the habit path before evaluating.",
		}
	}

	var reasons []string
	score := 0

	// Completion rate, worth up to 40.
	completed := 0
	for _, l := range recentLogs {
		if l.Completed {
			completed++
		}
	}
	rate := ratio(completed, len(recentLogs))
	switch {
	case rate >= 0.9:
		score += 40
	case rate >= 0.8:
		score += 30
	case rate >= 0.7:
		score += 20
	}
	reasons = append(reasons, fmt.Sprintf("completion rate %d%% over %d logged days", percent(completed, len(recentLogs)), len(recentLogs)))

	// Difficulty adaptation, worth up to 30, over rated logs only.
	// No ratings at all counts as neutral (avg 3).
	avgDifficulty := averageDifficulty(recentLogs)
	if avgDifficulty == 0 {
		avgDifficulty = 3
	}
	switch {
	case avgDifficulty <= 2:
		score += 30
	case avgDifficulty <= 3:
		score += 20
	case avgDifficulty <= 4:
		score += 10
	}
	reasons = append(reasons, fmt.Sprintf("average difficulty %.1f/5", avgDifficulty))

	// Duration adequacy, worth up to 30.
	suggested := ParseDurationHint(cfg.DurationHint)
	switch {
	case float64(daysInPhase) >= 1.5*float64(suggested):
		score += 30
		reasons = append(reasons, fmt.Sprintf("%d days in phase, well past the suggested %d", daysInPhase, suggested))
	case daysInPhase >= suggested:
		score += 20
		reasons = append(reasons, fmt.Sprintf("%d days in phase, suggested duration %d reached", daysInPhase, suggested))
	default:
		reasons = append(reasons, fmt.Sprintf("%d more days until the suggested %d-day duration", suggested-daysInPhase, suggested))
	}

	shouldUpgrade := score >= advanceScoreFloor && daysInPhase >= advanceDayFloor

	return models.PhaseEvaluationResult{
		ShouldUpgrade:  shouldUpgrade,
		ReadinessScore: score,
		Reasons:        reasons,
		Recommendation: advanceRecommendation(shouldUpgrade, score, currentPhase, phases),
	}
}

func advanceRecommendation(shouldUpgrade bool, score, currentPhase int, phases []models.PhaseConfig) string {
	if shouldUpgrade {
		if next := findPhase(phases, currentPhase+1); next != nil {
			return fmt.Sprintf("Ready to advance to phase %d: %s", next.Phase, next.Name)
		}
		return "All phases complete. Hold this level and enjoy the habit."
	}
	if score >= 50 {
		return "Close. Keep the current pace for a few more days."
	}
	return "Consolidate the current phase first. No need to rush."
}

// Retreat-side tiers mirror the advance point structure, inverted:
// completion collapse up to 40, difficulty overload up to 30, mood distress
// up to 30.
const (
	retreatScoreFloor = 70
	urgencyLowFloor   = 30
	urgencyMedFloor   = 50
)

// EvaluateRetreat scores whether the current phase is overwhelming the user
// and a step back is warranted. Phase 1 never retreats.
func EvaluateRetreat(currentPhase int, phases []models.PhaseConfig, recentLogs []models.HabitLog, ref time.Time) models.RetreatEvaluationResult {
	recent := logsWithinDays(recentLogs, ref, recentWindowDays)

	var reasons []string
	score := 0

	if len(recent) == 0 {
		// Nothing logged in a week is itself a distress signal, but without
		// data the evaluator stays conservative.
		return models.RetreatEvaluationResult{
			ShouldRetreat:  false,
			DistressScore:  0,
			Urgency:        models.UrgencyNone,
			Reasons:        []string{"no logs in the last 7 days; not enough data to assess"},
			Recommendation: "Log a few days before deciding anything about the phase.",
		}
	}

	completed := 0
	for _, l := range recent {
		if l.Completed {
			completed++
		}
	}
	rate := ratio(completed, len(recent))
	switch {
	case rate <= 0.2:
		score += 40
	case rate <= 0.3:
		score += 30
	case rate <= 0.4:
		score += 20
	}
	reasons = append(reasons, fmt.Sprintf("recent completion rate %d%%", percent(completed, len(recent))))

	avgDifficulty := averageDifficulty(recent)
	if avgDifficulty == 0 {
		avgDifficulty = 3
	}
	switch {
	case avgDifficulty >= 4.5:
		score += 30
	case avgDifficulty >= 4:
		score += 20
	case avgDifficulty >= 3.5:
		score += 10
	}
	reasons = append(reasons, fmt.Sprintf("average difficulty %.1f/5", avgDifficulty))

	moodDelta := averageMoodDelta(recent)
	switch {
	case moodDelta <= -1:
		score += 30
	case moodDelta < 0:
		score += 15
	}
	reasons = append(reasons, fmt.Sprintf("average mood delta %+.1f", moodDelta))

	urgency := models.UrgencyNone
	switch {
	case score >= retreatScoreFloor:
		urgency = models.UrgencyHigh
	case score >= urgencyMedFloor:
		urgency = models.UrgencyMedium
	case score >= urgencyLowFloor:
		urgency = models.UrgencyLow
	}

	shouldRetreat := score >= retreatScoreFloor && currentPhase > 1

	return models.RetreatEvaluationResult{
		ShouldRetreat:  shouldRetreat,
		DistressScore:  score,
		Urgency:        urgency,
		Reasons:        reasons,
		Recommendation: retreatRecommendation(shouldRetreat, urgency, currentPhase, phases),
	}
}

func retreatRecommendation(shouldRetreat bool, urgency models.RetreatUrgency, currentPhase int, phases []models.PhaseConfig) string {
	if shouldRetreat {
		if prev := findPhase(phases, currentPhase-1); prev != nil {
			return fmt.Sprintf("Step back to phase %d (%s) and rebuild confidence.", prev.Phase, prev.Name)
		}
		return "Step back to an easier version of this phase."
	}
	switch urgency {
	case models.UrgencyMedium:
		return "The phase is straining. Drop to the minimum version for a few days before deciding."
	case models.UrgencyLow:
		return "Some friction showing. Watch the next few days."
	default:
		if currentPhase == 1 {
			return "Phase 1 is the floor. Shrink the micro-habit instead of retreating."
		}
		return "The current phase looks sustainable."
	}
}

// NextPhase validates an advance transition against the configured path,
// returning the target phase or an error when already at the last phase.
func NextPhase(currentPhase int, phases []models.PhaseConfig) (int, error) {
	if findPhase(phases, currentPhase+1) == nil {
		return 0, fmt.Errorf("phase %d is the final phase", currentPhase)
	}
	return currentPhase + 1, nil
}

// PrevPhase validates a retreat transition; phase 1 has no retreat.
func PrevPhase(currentPhase int, phases []models.PhaseConfig) (int, error) {
	if currentPhase <= 1 {
		return 0, fmt.Errorf("phase 1 has no retreat")
	}
	if findPhase(phases, currentPhase-1) == nil {
		return 0, fmt.Errorf("no configuration for phase %d", currentPhase-1)
	}
	return currentPhase - 1, nil
}

func findPhase(phases []models.PhaseConfig, n int) *models.PhaseConfig {
	for i := range phases {
		if phases[i].Phase == n {
			return &phases[i]
		}
	}
	return nil
}
