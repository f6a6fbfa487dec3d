package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chen893/habit-coach-server/internal/config"
	"github.com/chen893/habit-coach-server/internal/db"
	"github.com/chen893/habit-coach-server/internal/engine"
	"github.com/chen893/habit-coach-server/internal/llm"
	"github.com/chen893/habit-coach-server/internal/models"
	"github.com/chen893/habit-coach-server/internal/narrative"
	"github.com/chen893/habit-coach-server/internal/report"
	"github.com/chen893/habit-coach-server/internal/scheduler"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type Handlers struct {
	cfg       *config.Config
	db        *db.DB
	writer    *report.Writer
	llm       *llm.Client
	gen       *narrative.Resilient
	reportGen *scheduler.ReportGenerator
	timezone  *time.Location
}

func NewHandlers(cfg *config.Config, database *db.DB, writer *report.Writer, llmClient *llm.Client, gen *narrative.Resilient, reportGen *scheduler.ReportGenerator) *Handlers {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}
	return &Handlers{
		cfg:       cfg,
		db:        database,
		writer:    writer,
		llm:       llmClient,
		gen:       gen,
		reportGen: reportGen,
		timezone:  tz,
	}
}

// refDate resolves the reference date for all streak/recency math: the
// optional ?date=YYYY-MM-DD query parameter, else now in the configured zone.
func (h *Handlers) refDate(r *http.Request) time.Time {
	if d := r.URL.Query().Get("date"); d != "" {
		if t, err := time.ParseInLocation("2006-01-02", d, h.timezone); err == nil {
			return t
		}
	}
	return time.Now().In(h.timezone)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:  "ok",
		Ollama:  h.checkOllama(),
		Store:   h.checkStore(),
		Version: "1.0.0",
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkOllama() string {
	if h.llm == nil {
		return "not configured"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.llm.HealthCheck(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func (h *Handlers) checkStore() string {
	if err := h.db.Ping(); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

// CreateHabitRequest is the body for POST /habits.
type CreateHabitRequest struct {
	Name   string               `json:"name"`
	Type   models.HabitType     `json:"type"`
	Phases []models.PhaseConfig `json:"phases,omitempty"`
}

// CreateHabit handles POST /habits.
func (h *Handlers) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", "MISSING_NAME")
		return
	}
	if req.Type != models.HabitBuild && req.Type != models.HabitBreak {
		writeError(w, http.StatusBadRequest, "type must be build or break", "INVALID_TYPE")
		return
	}
	if err := validatePhases(req.Phases); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PHASES")
		return
	}

	habit, err := h.db.CreateHabit(req.Name, req.Type, req.Phases)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "creating habit: "+err.Error(), "STORE_ERROR")
		return
	}

	writeJSON(w, http.StatusCreated, habit)
}

// validatePhases checks the phase path is contiguous starting at 1.
func validatePhases(phases []models.PhaseConfig) error {
	for i, p := range phases {
		if p.Phase != i+1 {
			return fmt.Errorf("phases must be numbered contiguously from 1 (got %d at position %d)", p.Phase, i+1)
		}
		if p.DifficultyScore < 1 || p.DifficultyScore > 10 {
			return fmt.Errorf("phase %d difficulty score must be 1-10", p.Phase)
		}
	}
	return nil
}

// ListHabits handles GET /habits.
func (h *Handlers) ListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := h.db.ListHabits()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing habits: "+err.Error(), "STORE_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"habits": habits})
}

// loadHabit fetches the habit from the path parameter, writing the error
// response itself when missing.
func (h *Handlers) loadHabit(w http.ResponseWriter, r *http.Request) *models.Habit {
	habitID := chi.URLParam(r, "habitID")
	habit, err := h.db.GetHabit(habitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading habit: "+err.Error(), "STORE_ERROR")
		return nil
	}
	if habit == nil {
		writeError(w, http.StatusNotFound, "habit not found", "NOT_FOUND")
		return nil
	}
	return habit
}

// GetHabit handles GET /habits/{habitID}.
func (h *Handlers) GetHabit(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// ReplacePhases handles PUT /habits/{habitID}/phases — the redesign-path
// operation. The path is swapped wholesale and the habit restarts at phase 1.
func (h *Handlers) ReplacePhases(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}

	var phases []models.PhaseConfig
	if err := json.NewDecoder(r.Body).Decode(&phases); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if len(phases) == 0 {
		writeError(w, http.StatusBadRequest, "at least one phase is required", "INVALID_PHASES")
		return
	}
	if err := validatePhases(phases); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PHASES")
		return
	}

	if err := h.db.ReplacePhases(habit.ID, phases); err != nil {
		writeError(w, http.StatusInternalServerError, "replacing phases: "+err.Error(), "STORE_ERROR")
		return
	}

	updated, err := h.db.GetHabit(habit.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reloading habit: "+err.Error(), "STORE_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// CheckinRequest is the body for POST /habits/{habitID}/checkin. LoggedAt
// defaults to now; posting twice for the same day edits in place.
type CheckinRequest struct {
	LoggedAt         string                 `json:"logged_at,omitempty"` // RFC3339 or YYYY-MM-DD
	Completed        bool                   `json:"completed"`
	CompletionLevel  models.CompletionLevel `json:"completion_level,omitempty"`
	DifficultyRating *int                   `json:"difficulty_rating,omitempty"`
	MoodBefore       *int                   `json:"mood_before,omitempty"`
	MoodAfter        *int                   `json:"mood_after,omitempty"`
}

// Checkin handles POST /habits/{habitID}/checkin.
func (h *Handlers) Checkin(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}

	var req CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}

	loggedAt := time.Now().In(h.timezone)
	if req.LoggedAt != "" {
		t, err := parseFlexibleTime(req.LoggedAt, h.timezone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid logged_at: "+err.Error(), "INVALID_TIME")
			return
		}
		loggedAt = t
	}

	level := req.CompletionLevel
	if level == "" {
		level = models.LevelStandard
	}
	switch level {
	case models.LevelMinimum, models.LevelStandard, models.LevelExceeded:
	default:
		writeError(w, http.StatusBadRequest, "completion_level must be minimum, standard or exceeded", "INVALID_LEVEL")
		return
	}

	if err := validateRange(req.DifficultyRating, 1, 5, "difficulty_rating"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_RATING")
		return
	}
	if err := validateRange(req.MoodBefore, 1, 5, "mood_before"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_RATING")
		return
	}
	if err := validateRange(req.MoodAfter, 1, 5, "mood_after"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_RATING")
		return
	}

	logID, err := h.db.UpsertLog(models.HabitLog{
		HabitID:          habit.ID,
		LoggedAt:         loggedAt,
		Completed:        req.Completed,
		CompletionLevel:  level,
		DifficultyRating: req.DifficultyRating,
		MoodBefore:       req.MoodBefore,
		MoodAfter:        req.MoodAfter,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "saving log: "+err.Error(), "STORE_ERROR")
		return
	}

	// Return fresh stats so the client can update streaks immediately.
	logs, err := h.db.GetLogs(habit.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading logs: "+err.Error(), "STORE_ERROR")
		return
	}
	stats := engine.ComputeStats(engine.DedupeByDay(logs), h.refDate(r))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"log_id": logID,
		"stats":  stats,
	})
}

func validateRange(p *int, lo, hi int, field string) error {
	if p == nil {
		return nil
	}
	if *p < lo || *p > hi {
		return fmt.Errorf("%s must be %d-%d", field, lo, hi)
	}
	return nil
}

func parseFlexibleTime(s string, tz *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(tz), nil
	}
	return time.ParseInLocation("2006-01-02", s, tz)
}

// TriggerRequest is the body for POST /habits/{habitID}/triggers.
type TriggerRequest struct {
	Timestamp      string             `json:"timestamp,omitempty"`
	Type           models.TriggerType `json:"type"`
	Context        string             `json:"context,omitempty"`
	Intensity      int                `json:"intensity"`
	Resisted       bool               `json:"resisted"`
	CopingStrategy string             `json:"coping_strategy,omitempty"`
}

// AddTrigger handles POST /habits/{habitID}/triggers, break-habits only.
func (h *Handlers) AddTrigger(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}
	if habit.Type != models.HabitBreak {
		writeError(w, http.StatusBadRequest, "triggers apply to break habits only", "WRONG_HABIT_TYPE")
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}

	valid := false
	for _, t := range models.TriggerTypes {
		if req.Type == t {
			valid = true
			break
		}
	}
	if !valid {
		writeError(w, http.StatusBadRequest, "type must be temporal, contextual, emotional or behavioral", "INVALID_TYPE")
		return
	}
	if req.Intensity < 1 || req.Intensity > 10 {
		writeError(w, http.StatusBadRequest, "intensity must be 1-10", "INVALID_INTENSITY")
		return
	}

	ts := time.Now().In(h.timezone)
	if req.Timestamp != "" {
		t, err := parseFlexibleTime(req.Timestamp, h.timezone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timestamp: "+err.Error(), "INVALID_TIME")
			return
		}
		ts = t
	}

	triggerID, err := h.db.AddTrigger(models.TriggerRecord{
		HabitID:        habit.ID,
		Timestamp:      ts,
		Type:           req.Type,
		Context:        req.Context,
		Intensity:      req.Intensity,
		Resisted:       req.Resisted,
		CopingStrategy: req.CopingStrategy,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "saving trigger: "+err.Error(), "STORE_ERROR")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"trigger_id": triggerID})
}

// Stats handles GET /habits/{habitID}/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}

	logs, err := h.db.GetLogs(habit.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading logs: "+err.Error(), "STORE_ERROR")
		return
	}

	stats := engine.ComputeStats(engine.DedupeByDay(logs), h.refDate(r))
	writeJSON(w, http.StatusOK, stats)
}

// Motivation handles GET /habits/{habitID}/motivation.
func (h *Handlers) Motivation(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}

	logs, err := h.db.GetLogs(habit.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading logs: "+err.Error(), "STORE_ERROR")
		return
	}

	ref := h.refDate(r)
	analysis := engine.ScoreMotivation(engine.DedupeByDay(logs), engine.DaysBetween(ref, habit.CreatedAt), ref)
	writeJSON(w, http.StatusOK, analysis)
}

// ReadinessResponse pairs the advance and retreat evaluations.
type ReadinessResponse struct {
	Advance models.PhaseEvaluationResult   `json:"advance"`
	Retreat models.RetreatEvaluationResult `json:"retreat"`
}

// Readiness handles GET /habits/{habitID}/readiness.
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}
	if len(habit.Phases) == 0 {
		writeError(w, http.StatusBadRequest, "habit has no phase path configured", "NO_PHASES")
		return
	}

	logs, err := h.db.GetLogs(habit.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading logs: "+err.Error(), "STORE_ERROR")
		return
	}

	ref := h.refDate(r)
	phaseLogs := engine.LogsSince(engine.DedupeByDay(logs), habit.PhaseStarted)
	daysInPhase := engine.DaysBetween(ref, habit.PhaseStarted)

	writeJSON(w, http.StatusOK, ReadinessResponse{
		Advance: engine.EvaluateReadiness(habit.CurrentPhase, habit.Phases, phaseLogs, daysInPhase, ref),
		Retreat: engine.EvaluateRetreat(habit.CurrentPhase, habit.Phases, phaseLogs, ref),
	})
}

// RelapseResponse bundles the break-habit analyses.
type RelapseResponse struct {
	Relapse  models.RelapseAnalysis  `json:"relapse"`
	Patterns []models.TriggerBucket  `json:"patterns"`
	Temporal models.TemporalPatterns `json:"temporal"`
}

// Relapse handles GET /habits/{habitID}/relapse.
func (h *Handlers) Relapse(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}
	if habit.Type != models.HabitBreak {
		writeError(w, http.StatusBadRequest, "relapse analysis applies to break habits only", "WRONG_HABIT_TYPE")
		return
	}

	triggers, err := h.db.GetTriggers(habit.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading triggers: "+err.Error(), "STORE_ERROR")
		return
	}

	targetDaysClean := engine.DefaultTargetDaysClean
	if v := r.URL.Query().Get("target_days_clean"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			targetDaysClean = n
		}
	}

	writeJSON(w, http.StatusOK, RelapseResponse{
		Relapse:  engine.AnalyzeRelapse(triggers, targetDaysClean, h.refDate(r)),
		Patterns: engine.AnalyzeTriggerPatterns(triggers),
		Temporal: engine.AnalyzeTemporalPatterns(triggers),
	})
}

// TransitionRequest is the body for POST /habits/{habitID}/transition.
// Kind "advance" and "retreat" are gated by the evaluators; "override" moves
// to an explicit phase at the user's request.
type TransitionRequest struct {
	Kind    string `json:"kind"`
	ToPhase int    `json:"to_phase,omitempty"` // override only
	Reason  string `json:"reason,omitempty"`
}

// Transition handles POST /habits/{habitID}/transition — the single write
// path for currentPhase.
func (h *Handlers) Transition(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}
	if len(habit.Phases) == 0 {
		writeError(w, http.StatusBadRequest, "habit has no phase path configured", "NO_PHASES")
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}

	logs, err := h.db.GetLogs(habit.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading logs: "+err.Error(), "STORE_ERROR")
		return
	}
	ref := h.refDate(r)
	phaseLogs := engine.LogsSince(engine.DedupeByDay(logs), habit.PhaseStarted)
	daysInPhase := engine.DaysBetween(ref, habit.PhaseStarted)

	var toPhase, score int
	var reason string

	switch req.Kind {
	case models.TransitionAdvance:
		eval := engine.EvaluateReadiness(habit.CurrentPhase, habit.Phases, phaseLogs, daysInPhase, ref)
		if !eval.ShouldUpgrade {
			writeError(w, http.StatusConflict, "habit is not ready to advance: "+eval.Recommendation, "NOT_READY")
			return
		}
		toPhase, err = engine.NextPhase(habit.CurrentPhase, habit.Phases)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error(), "NO_NEXT_PHASE")
			return
		}
		score = eval.ReadinessScore
		reason = eval.Recommendation
	case models.TransitionRetreat:
		eval := engine.EvaluateRetreat(habit.CurrentPhase, habit.Phases, phaseLogs, ref)
		if eval.Urgency == models.UrgencyNone {
			writeError(w, http.StatusConflict, "no retreat signal: "+eval.Recommendation, "NO_RETREAT_SIGNAL")
			return
		}
		toPhase, err = engine.PrevPhase(habit.CurrentPhase, habit.Phases)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error(), "NO_PREV_PHASE")
			return
		}
		score = eval.DistressScore
		reason = eval.Recommendation
	case models.TransitionOverride:
		if req.ToPhase < 1 || req.ToPhase > len(habit.Phases) {
			writeError(w, http.StatusBadRequest, "to_phase outside the configured path", "INVALID_PHASE")
			return
		}
		toPhase = req.ToPhase
		reason = req.Reason
		if reason == "" {
			reason = "manual override"
		}
	default:
		writeError(w, http.StatusBadRequest, "kind must be advance, retreat or override", "INVALID_KIND")
		return
	}

	transition, err := h.db.ApplyTransition(habit.ID, habit.CurrentPhase, toPhase, req.Kind, score, reason)
	if err != nil {
		writeError(w, http.StatusConflict, "applying transition: "+err.Error(), "TRANSITION_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, transition)
}

// Transitions handles GET /habits/{habitID}/transitions.
func (h *Handlers) Transitions(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}

	transitions, err := h.db.GetTransitions(habit.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading transitions: "+err.Error(), "STORE_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transitions": transitions})
}

// Dashboard handles GET /dashboard. Numeric payload is always complete;
// narrative annotation is skipped with ?narrative=false.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	habits, err := h.db.ListHabits()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing habits: "+err.Error(), "STORE_ERROR")
		return
	}

	var bundles []engine.HabitBundle
	for _, habit := range habits {
		logs, err := h.db.GetLogs(habit.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "loading logs: "+err.Error(), "STORE_ERROR")
			return
		}
		triggers, err := h.db.GetTriggers(habit.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "loading triggers: "+err.Error(), "STORE_ERROR")
			return
		}
		bundles = append(bundles, engine.HabitBundle{Habit: habit, Logs: logs, Triggers: triggers})
	}

	dashboard := engine.BuildDashboard(bundles, h.refDate(r))

	if r.URL.Query().Get("narrative") != "false" {
		h.gen.Annotate(r.Context(), &dashboard)
	}

	writeJSON(w, http.StatusOK, dashboard)
}

// Reports handles GET /reports.
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	records, err := h.db.GetReports(r.URL.Query().Get("habit_id"), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading reports: "+err.Error(), "STORE_ERROR")
		return
	}

	reports := make([]models.Report, 0, len(records))
	for _, rec := range records {
		rep := models.Report{
			ReportID:  rec.ReportID,
			HabitID:   rec.HabitID,
			Type:      rec.Type,
			ForDate:   rec.ForDate,
			CreatedTS: rec.CreatedAt,
		}
		if text, err := h.writer.Read(rec.FilePath); err == nil {
			rep.Text = text
		}
		reports = append(reports, rep)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

// GenerateReportRequest is the body for POST /habits/{habitID}/reports.
type GenerateReportRequest struct {
	Type string `json:"type"` // "daily" or "weekly"
}

// GenerateReport handles POST /habits/{habitID}/reports, generating a report
// on demand instead of waiting for the scheduler.
func (h *Handlers) GenerateReport(w http.ResponseWriter, r *http.Request) {
	habit := h.loadHabit(w, r)
	if habit == nil {
		return
	}

	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if req.Type != "daily" && req.Type != "weekly" {
		writeError(w, http.StatusBadRequest, "type must be daily or weekly", "INVALID_TYPE")
		return
	}

	if err := h.reportGen.GenerateNow(r.Context(), habit.ID, req.Type, h.refDate(r)); err != nil {
		writeError(w, http.StatusInternalServerError, "generating report: "+err.Error(), "REPORT_ERROR")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "generated"})
}
