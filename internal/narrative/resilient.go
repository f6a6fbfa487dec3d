package narrative

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chen893/habit-coach-server/internal/models"
)

// DefaultTimeout bounds a single narrative generation call.
const DefaultTimeout = 15 * time.Second

// Resilient wraps a Generator with a per-call timeout and the deterministic
// fallback. It never returns an error: degraded copy beats a failed request.
type Resilient struct {
	inner   Generator
	timeout time.Duration
}

// NewResilient wraps gen; pass 0 for the default timeout. A nil gen means
// fallback-only operation (generation disabled).
func NewResilient(gen Generator, timeout time.Duration) *Resilient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resilient{inner: gen, timeout: timeout}
}

// CoachMessage returns generated copy when the backend delivers in time,
// otherwise the fallback template.
func (r *Resilient) CoachMessage(ctx context.Context, nc NumericContext) string {
	if r.inner == nil {
		return FallbackMessage(nc)
	}

	genCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.inner.CoachMessage(genCtx, nc)
	if err != nil {
		log.Printf("narrative: falling back to template for %q: %v", nc.HabitName, err)
		return FallbackMessage(nc)
	}
	return msg
}

// Annotate fills the Narrative field of every per-habit insight, generating
// across habits in parallel. The numeric payload is complete before this is
// called and is never modified beyond the Narrative field, so cancellation
// mid-flight leaves valid results behind.
func (r *Resilient) Annotate(ctx context.Context, dashboard *models.DashboardInsights) {
	var wg sync.WaitGroup
	for i := range dashboard.PerHabit {
		wg.Add(1)
		go func(h *models.HabitInsight) {
			defer wg.Done()
			h.Narrative = r.CoachMessage(ctx, NumericContext{
				HabitName:  h.Habit.Name,
				HabitType:  h.Habit.Type,
				Stats:      h.Stats,
				Motivation: h.Motivation,
				Readiness:  h.Readiness,
				Retreat:    h.Retreat,
				Relapse:    h.Relapse,
			})
		}(&dashboard.PerHabit[i])
	}
	wg.Wait()
}
