package narrative

import (
	"fmt"
	"strings"

	"github.com/chen893/habit-coach-server/internal/models"
)

// FallbackMessage builds a deterministic coaching message directly from the
// numeric results. Same inputs, same bytes out — it carries the dashboard
// whenever generation fails, times out, or is disabled.
func FallbackMessage(nc NumericContext) string {
	var parts []string

	switch {
	case nc.Stats.CurrentStreak >= 21:
		parts = append(parts, fmt.Sprintf("%d days straight. This habit is taking hold.", nc.Stats.CurrentStreak))
	case nc.Stats.CurrentStreak >= 7:
		parts = append(parts, fmt.Sprintf("A full week and counting: %d-day streak.", nc.Stats.CurrentStreak))
	case nc.Stats.CurrentStreak >= 3:
		parts = append(parts, fmt.Sprintf("%d days in a row. The chain is forming.", nc.Stats.CurrentStreak))
	case nc.Stats.TotalDays == 0:
		parts = append(parts, "No check-ins yet. The first one is the hardest.")
	default:
		parts = append(parts, fmt.Sprintf("Completion rate sits at %d%%.", nc.Stats.CompletionRate))
	}

	switch nc.Motivation.State {
	case models.MotivationStrong:
		parts = append(parts, fmt.Sprintf("Motivation reads %d/10, the strong band.", nc.Motivation.CurrentScore))
	case models.MotivationDeclining:
		parts = append(parts, "Motivation is slipping; make the next rep smaller, not bigger.")
	case models.MotivationCritical:
		parts = append(parts, "Motivation is at its lowest band. One tiny rep today restarts the engine.")
	}

	if nc.Readiness != nil && nc.Readiness.ShouldUpgrade {
		parts = append(parts, nc.Readiness.Recommendation)
	} else if nc.Retreat != nil && nc.Retreat.ShouldRetreat {
		parts = append(parts, nc.Retreat.Recommendation)
	}

	if nc.Relapse != nil && nc.Relapse.IsRelapse {
		parts = append(parts, "Two slips close together; tighten the environment around the top trigger.")
	} else if nc.Relapse != nil && nc.Relapse.DaysSinceLastRelapse >= 0 {
		parts = append(parts, fmt.Sprintf("%d days since the last slip.", nc.Relapse.DaysSinceLastRelapse))
	}

	return strings.Join(parts, " ")
}
