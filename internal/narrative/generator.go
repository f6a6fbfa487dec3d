package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chen893/habit-coach-server/internal/llm"
	"github.com/chen893/habit-coach-server/internal/models"
)

// NumericContext is the structured summary handed to a generator. Every
// decision in it is already final; the generator only phrases it.
type NumericContext struct {
	HabitName  string                          `json:"habit_name"`
	HabitType  models.HabitType                `json:"habit_type"`
	Stats      models.Stats                    `json:"stats"`
	Motivation models.MotivationAnalysis       `json:"motivation"`
	Readiness  *models.PhaseEvaluationResult   `json:"readiness,omitempty"`
	Retreat    *models.RetreatEvaluationResult `json:"retreat,omitempty"`
	Relapse    *models.RelapseAnalysis         `json:"relapse,omitempty"`
}

// Generator turns a numeric context into one short coaching message.
// Implementations may fail or time out; callers wrap with Resilient so the
// dashboard never depends on generation succeeding.
type Generator interface {
	CoachMessage(ctx context.Context, nc NumericContext) (string, error)
}

const coachPrompt = `You are a habit coach writing one short message for a user's dashboard.

Their numbers (already computed, do not recompute or contradict them):
%s

CONSTRAINTS:
- 2-3 sentences, plain and concrete
- Cite at least one number from the data (streak, rate, or score)
- No greeting, no signoff, no emoji
- NEVER use: "journey", "growth mindset", "self-care", "embrace"

Respond in JSON:
{
  "message": "the coaching message"
}`

// coachReply is the schema the model must return. Anything else is treated
// as a parse failure and the caller falls back to templates.
type coachReply struct {
	Message string `json:"message"`
}

// OllamaGenerator generates coaching copy through the Ollama client.
type OllamaGenerator struct {
	client *llm.Client
}

func NewOllamaGenerator(client *llm.Client) *OllamaGenerator {
	return &OllamaGenerator{client: client}
}

// CoachMessage implements Generator.
func (g *OllamaGenerator) CoachMessage(ctx context.Context, nc NumericContext) (string, error) {
	data, err := json.MarshalIndent(nc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling context: %w", err)
	}

	response, err := g.client.GenerateJSON(ctx, fmt.Sprintf(coachPrompt, string(data)), false)
	if err != nil {
		return "", fmt.Errorf("generating coach message: %w", err)
	}

	var reply coachReply
	if err := json.Unmarshal([]byte(response), &reply); err != nil {
		return "", fmt.Errorf("parsing coach reply: %w (response: %s)", err, truncate(response, 120))
	}
	if strings.TrimSpace(reply.Message) == "" {
		return "", fmt.Errorf("coach reply missing message field")
	}

	return strings.TrimSpace(reply.Message), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
