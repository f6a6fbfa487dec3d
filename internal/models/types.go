package models

import "time"

// HabitType distinguishes habits being built from habits being broken.
type HabitType string

const (
	HabitBuild HabitType = "build"
	HabitBreak HabitType = "break"
)

// CompletionLevel grades how thoroughly a day's habit was executed.
type CompletionLevel string

const (
	LevelMinimum  CompletionLevel = "minimum"
	LevelStandard CompletionLevel = "standard"
	LevelExceeded CompletionLevel = "exceeded"
)

// TriggerType classifies what set off an urge for a break-habit.
type TriggerType string

const (
	TriggerTemporal   TriggerType = "temporal"
	TriggerContextual TriggerType = "contextual"
	TriggerEmotional  TriggerType = "emotional"
	TriggerBehavioral TriggerType = "behavioral"
)

// TriggerTypes lists every category in display order. Bucketing code ranges
// over this slice so an unhandled category cannot appear at runtime.
var TriggerTypes = []TriggerType{
	TriggerTemporal,
	TriggerContextual,
	TriggerEmotional,
	TriggerBehavioral,
}

// MotivationState is the 4-level classification of recent motivation.
type MotivationState string

const (
	MotivationStrong    MotivationState = "strong"
	MotivationNormal    MotivationState = "normal"
	MotivationDeclining MotivationState = "declining"
	MotivationCritical  MotivationState = "critical"
)

// Trend describes short-term completion direction.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// RetreatUrgency tiers how urgently a phase retreat is recommended.
type RetreatUrgency string

const (
	UrgencyNone   RetreatUrgency = "none"
	UrgencyLow    RetreatUrgency = "low"
	UrgencyMedium RetreatUrgency = "medium"
	UrgencyHigh   RetreatUrgency = "high"
)

// Habit is a read-only snapshot of a habit as stored. CurrentPhase is mutated
// only through the transition endpoint so the phase machine stays auditable.
type Habit struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Type         HabitType     `json:"type"`
	CurrentPhase int           `json:"current_phase"`
	Phases       []PhaseConfig `json:"phases,omitempty"`
	PhaseStarted time.Time     `json:"phase_started"`
	CreatedAt    time.Time     `json:"created_at"`
}

// PhaseConfig describes one step of a habit's progression path.
type PhaseConfig struct {
	Phase           int    `json:"phase"`
	Name            string `json:"name"`
	DurationHint    string `json:"duration_hint"` // e.g. "7天", "2周", "14 days"
	MicroHabit      string `json:"micro_habit"`
	SuccessCriteria string `json:"success_criteria"`
	DifficultyScore int    `json:"difficulty_score"` // 1..10
}

// HabitLog is one day's check-in. Optional fields are pointers; every
// aggregation documents its substitution policy where the value is consumed.
type HabitLog struct {
	ID               string           `json:"id"`
	HabitID          string           `json:"habit_id"`
	LoggedAt         time.Time        `json:"logged_at"` // day-granular; wall time kept for heatmaps
	Completed        bool             `json:"completed"`
	CompletionLevel  CompletionLevel  `json:"completion_level"`
	DifficultyRating *int             `json:"difficulty_rating,omitempty"` // 1..5
	MoodBefore       *int             `json:"mood_before,omitempty"`       // 1..5
	MoodAfter        *int             `json:"mood_after,omitempty"`        // 1..5
	Trigger          *TriggerRecord   `json:"trigger,omitempty"`
}

// TriggerRecord is one urge event for a break-habit. Immutable once created,
// consumed only in aggregate.
type TriggerRecord struct {
	ID             string      `json:"id"`
	HabitID        string      `json:"habit_id"`
	Timestamp      time.Time   `json:"timestamp"`
	Type           TriggerType `json:"type"`
	Context        string      `json:"context"`
	Intensity      int         `json:"intensity"` // 1..10
	Resisted       bool        `json:"resisted"`
	CopingStrategy string      `json:"coping_strategy,omitempty"`
}

// Stats is the derived per-habit statistics snapshot. Never persisted.
type Stats struct {
	TotalDays         int     `json:"total_days"`
	CompletedDays     int     `json:"completed_days"`
	CompletionRate    int     `json:"completion_rate"` // percent 0..100
	CurrentStreak     int     `json:"current_streak"`
	LongestStreak     int     `json:"longest_streak"`
	RecentRate        int     `json:"recent_rate"` // last 7 days, percent
	AverageDifficulty float64 `json:"average_difficulty"`
}

// MotivationAnalysis is the composite motivation read-out.
type MotivationAnalysis struct {
	CurrentScore       int             `json:"current_score"` // 1..10
	State              MotivationState `json:"state"`
	Trend              Trend           `json:"trend"`
	InterventionNeeded bool            `json:"intervention_needed"`
	InterventionTiming string          `json:"intervention_timing,omitempty"`
	SuggestedAction    string          `json:"suggested_action"`
}

// PhaseEvaluationResult is the advance-side readiness verdict.
type PhaseEvaluationResult struct {
	ShouldUpgrade  bool     `json:"should_upgrade"`
	ReadinessScore int      `json:"readiness_score"` // 0..100
	Reasons        []string `json:"reasons"`
	Recommendation string   `json:"recommendation"`
}

// RetreatEvaluationResult mirrors PhaseEvaluationResult for the retreat side.
type RetreatEvaluationResult struct {
	ShouldRetreat  bool           `json:"should_retreat"`
	DistressScore  int            `json:"distress_score"` // 0..100
	Urgency        RetreatUrgency `json:"urgency"`
	Reasons        []string       `json:"reasons"`
	Recommendation string         `json:"recommendation"`
}

// TriggerBucket is the aggregate for one trigger category.
type TriggerBucket struct {
	Type            TriggerType `json:"type"`
	Count           int         `json:"count"`
	Percentage      int         `json:"percentage"` // of total records
	AvgIntensity    float64     `json:"avg_intensity"`
	ResistanceRate  int         `json:"resistance_rate"` // percent resisted
	ExampleContexts []string    `json:"example_contexts"` // up to 3
}

// TemporalPatterns holds hour/weekday clustering results.
type TemporalPatterns struct {
	PeakHours    []int    `json:"peak_hours"`    // 0..23
	PeakWeekdays []int    `json:"peak_weekdays"` // 0=Sunday..6
	Insights     []string `json:"insights"`
}

// RelapseAnalysis is the relapse read-out for a break-habit.
type RelapseAnalysis struct {
	IsRelapse            bool     `json:"is_relapse"`
	DaysSinceLastRelapse int      `json:"days_since_last_relapse"` // -1 when no failures
	RelapseCount         int      `json:"relapse_count"`
	RelapsePattern       string   `json:"relapse_pattern,omitempty"`
	RecoveryAdvice       []string `json:"recovery_advice"`
}

// HeatmapCell is one day-of-week × hour bucket of check-in activity.
type HeatmapCell struct {
	Weekday        int `json:"weekday"` // 0=Sunday..6
	Hour           int `json:"hour"`    // 0..23
	Count          int `json:"count"`
	CompletionRate int `json:"completion_rate"` // percent
}

// RiskAssessment flags a habit needing attention, highest risk first.
type RiskAssessment struct {
	HabitID   string   `json:"habit_id"`
	HabitName string   `json:"habit_name"`
	RiskScore int      `json:"risk_score"` // 0..100
	Factors   []string `json:"factors"`
}

// HabitInsight is the per-habit slice of the dashboard payload.
type HabitInsight struct {
	Habit      Habit                    `json:"habit"`
	Stats      Stats                    `json:"stats"`
	Motivation MotivationAnalysis       `json:"motivation"`
	Readiness  *PhaseEvaluationResult   `json:"readiness,omitempty"`
	Retreat    *RetreatEvaluationResult `json:"retreat,omitempty"`
	Relapse    *RelapseAnalysis         `json:"relapse,omitempty"`
	Narrative  string                   `json:"narrative,omitempty"`
}

// DashboardInsights is the full dashboard payload.
type DashboardInsights struct {
	Summary         string           `json:"summary"`
	OverallRate     int              `json:"overall_rate"` // percent across habits
	HeatmapData     []HeatmapCell    `json:"heatmap_data"`
	RiskAssessments []RiskAssessment `json:"risk_assessments"`
	PerHabit        []HabitInsight   `json:"per_habit"`
	QuickInsights   []string         `json:"quick_insights"`
}

// PhaseTransition is one audited currentPhase mutation.
type PhaseTransition struct {
	ID             string    `json:"id"`
	HabitID        string    `json:"habit_id"`
	FromPhase      int       `json:"from_phase"`
	ToPhase        int       `json:"to_phase"`
	Kind           string    `json:"kind"` // "advance", "retreat", "override"
	ReadinessScore int       `json:"readiness_score"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// Transition kinds.
const (
	TransitionAdvance  = "advance"
	TransitionRetreat  = "retreat"
	TransitionOverride = "override"
)

// Report is a generated coaching letter, indexed in sqlite, body on disk.
type Report struct {
	ReportID  string `json:"report_id"`
	HabitID   string `json:"habit_id"`
	Type      string `json:"type"` // "daily", "weekly"
	ForDate   string `json:"for_date"`
	Text      string `json:"text,omitempty"`
	CreatedTS string `json:"created_ts"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Ollama  string `json:"ollama"`
	Store   string `json:"store"`
	Version string `json:"version"`
}
