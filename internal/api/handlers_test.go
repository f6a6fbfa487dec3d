package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/chen893/habit-coach-server/internal/config"
	"github.com/chen893/habit-coach-server/internal/db"
	"github.com/chen893/habit-coach-server/internal/models"
	"github.com/chen893/habit-coach-server/internal/narrative"
	"github.com/chen893/habit-coach-server/internal/report"
	"github.com/chen893/habit-coach-server/internal/scheduler"
)

const testToken = "test-token"

func setupTestServer(t *testing.T) (*httptest.Server, *db.DB) {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := &config.Config{
		Port:        "0",
		DBPath:      filepath.Join(dir, "test.db"),
		ReportsPath: filepath.Join(dir, "reports"),
		Token:       testToken,
		Timezone:    "UTC",
	}

	writer := report.NewWriter(cfg.ReportsPath)
	gen := narrative.NewResilient(nil, 0)
	reportGen := scheduler.NewReportGenerator(database, writer, gen, time.UTC)

	srv := httptest.NewServer(NewRouter(cfg, database, writer, nil, gen, reportGen))
	t.Cleanup(srv.Close)
	return srv, database
}

func doRequest(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func createTestHabit(t *testing.T, srv *httptest.Server, name string, habitType models.HabitType, phases []models.PhaseConfig) models.Habit {
	t.Helper()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits", CreateHabitRequest{
		Name:   name,
		Type:   habitType,
		Phases: phases,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("creating habit: status %d", resp.StatusCode)
	}
	var habit models.Habit
	decodeBody(t, resp, &habit)
	return habit
}

func TestHealthIsPublic(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health models.HealthResponse
	decodeBody(t, resp, &health)
	if health.Status != "ok" {
		t.Errorf("unexpected status: %s", health.Status)
	}
	if health.Store != "connected" {
		t.Errorf("unexpected store state: %s", health.Store)
	}
	if health.Ollama != "not configured" {
		t.Errorf("expected unconfigured ollama, got %s", health.Ollama)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := setupTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong token", "Bearer wrong"},
		{"not bearer", testToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/habits", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCreateHabitValidation(t *testing.T) {
	srv, _ := setupTestServer(t)

	tests := []struct {
		name string
		req  CreateHabitRequest
	}{
		{"missing name", CreateHabitRequest{Type: models.HabitBuild}},
		{"bad type", CreateHabitRequest{Name: "x", Type: "maintain"}},
		{"non-contiguous phases", CreateHabitRequest{
			Name: "x", Type: models.HabitBuild,
			Phases: []models.PhaseConfig{{Phase: 2, Name: "y", DifficultyScore: 3}},
		}},
		{"difficulty out of range", CreateHabitRequest{
			Name: "x", Type: models.HabitBuild,
			Phases: []models.PhaseConfig{{Phase: 1, Name: "y", DifficultyScore: 11}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits", tt.req)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCheckinFlow(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, nil)

	// Three consecutive days ending on the reference date.
	for _, day := range []string{"2024-03-13", "2024-03-14", "2024-03-15"} {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/checkin", CheckinRequest{
			LoggedAt:  day,
			Completed: true,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("checkin for %s: status %d", day, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/habits/"+habit.ID+"/stats?date=2024-03-15", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: status %d", resp.StatusCode)
	}
	var stats models.Stats
	decodeBody(t, resp, &stats)

	if stats.CurrentStreak != 3 {
		t.Errorf("expected streak 3, got %d", stats.CurrentStreak)
	}
	if stats.CompletionRate != 100 {
		t.Errorf("expected 100%% completion, got %d", stats.CompletionRate)
	}
}

func TestCheckinSameDayEdits(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "meditation", models.HabitBuild, nil)

	type checkinResponse struct {
		LogID string       `json:"log_id"`
		Stats models.Stats `json:"stats"`
	}

	url := srv.URL + "/api/v1/habits/" + habit.ID + "/checkin"
	resp := doRequest(t, http.MethodPost, url, CheckinRequest{LoggedAt: "2024-03-15", Completed: false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first checkin: status %d", resp.StatusCode)
	}
	var first checkinResponse
	decodeBody(t, resp, &first)

	resp = doRequest(t, http.MethodPost, url, CheckinRequest{LoggedAt: "2024-03-15", Completed: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second checkin: status %d", resp.StatusCode)
	}
	var second checkinResponse
	decodeBody(t, resp, &second)

	// An edit targets the same stored row; the id the client holds must not
	// change out from under it.
	if second.LogID != first.LogID {
		t.Errorf("same-day edit changed log_id: %s then %s", first.LogID, second.LogID)
	}
	if second.Stats.TotalDays != 1 {
		t.Errorf("expected 1 day after same-day edit, got %d", second.Stats.TotalDays)
	}
	if second.Stats.CompletedDays != 1 {
		t.Errorf("edit did not overwrite completion, got %d completed", second.Stats.CompletedDays)
	}
}

func TestCheckinValidation(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "reading", models.HabitBuild, nil)

	bad := 9
	tests := []struct {
		name string
		req  CheckinRequest
	}{
		{"bad level", CheckinRequest{Completed: true, CompletionLevel: "heroic"}},
		{"bad difficulty", CheckinRequest{Completed: true, DifficultyRating: &bad}},
		{"bad time", CheckinRequest{Completed: true, LoggedAt: "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/checkin", tt.req)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestHabitNotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/habits/nope/stats", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestTriggersRejectBuildHabit(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, nil)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/triggers", TriggerRequest{
		Type:      models.TriggerEmotional,
		Intensity: 5,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for build habit, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Code != "WRONG_HABIT_TYPE" {
		t.Errorf("unexpected error code: %s", errResp.Code)
	}
}

func TestRelapseFlow(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "quit snacking", models.HabitBreak, nil)

	url := srv.URL + "/api/v1/habits/" + habit.ID + "/triggers"
	for _, ts := range []string{"2024-03-13T21:00:00Z", "2024-03-15T21:00:00Z"} {
		resp := doRequest(t, http.MethodPost, url, TriggerRequest{
			Timestamp: ts,
			Type:      models.TriggerEmotional,
			Intensity: 7,
			Resisted:  false,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("adding trigger: status %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/habits/"+habit.ID+"/relapse?date=2024-03-15", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("relapse: status %d", resp.StatusCode)
	}
	var result RelapseResponse
	decodeBody(t, resp, &result)

	if !result.Relapse.IsRelapse {
		t.Error("expected relapse for two failures 2 days apart")
	}
	if result.Relapse.RelapseCount != 2 {
		t.Errorf("expected 2 failures, got %d", result.Relapse.RelapseCount)
	}
}

func TestTransitionNotReady(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, []models.PhaseConfig{
		{Phase: 1, Name: "起步", DurationHint: "7天", DifficultyScore: 2},
		{Phase: 2, Name: "进阶", DurationHint: "2周", DifficultyScore: 4},
	})

	// Fresh habit, no logs: the advance gate must hold.
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/transition", TransitionRequest{
		Kind: models.TransitionAdvance,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Code != "NOT_READY" {
		t.Errorf("unexpected error code: %s", errResp.Code)
	}
}

func TestTransitionOverride(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, []models.PhaseConfig{
		{Phase: 1, Name: "起步", DurationHint: "7天", DifficultyScore: 2},
		{Phase: 2, Name: "进阶", DurationHint: "2周", DifficultyScore: 4},
	})

	url := srv.URL + "/api/v1/habits/" + habit.ID + "/transition"

	resp := doRequest(t, http.MethodPost, url, TransitionRequest{Kind: models.TransitionOverride, ToPhase: 5})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-path phase, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, url, TransitionRequest{Kind: models.TransitionOverride, ToPhase: 2, Reason: "coach says go"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("override: status %d", resp.StatusCode)
	}
	var transition models.PhaseTransition
	decodeBody(t, resp, &transition)
	if transition.FromPhase != 1 || transition.ToPhase != 2 {
		t.Errorf("transition mismatch: %+v", transition)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/habits/"+habit.ID+"/transitions", nil)
	var history struct {
		Transitions []models.PhaseTransition `json:"transitions"`
	}
	decodeBody(t, resp, &history)
	if len(history.Transitions) != 1 {
		t.Errorf("expected 1 audit row, got %d", len(history.Transitions))
	}
}

func TestReplacePhasesResets(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, []models.PhaseConfig{
		{Phase: 1, Name: "起步", DurationHint: "7天", DifficultyScore: 2},
		{Phase: 2, Name: "进阶", DurationHint: "2周", DifficultyScore: 4},
	})

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/transition", TransitionRequest{
		Kind: models.TransitionOverride, ToPhase: 2,
	})
	resp.Body.Close()

	resp = doRequest(t, http.MethodPut, srv.URL+"/api/v1/habits/"+habit.ID+"/phases", []models.PhaseConfig{
		{Phase: 1, Name: "重新开始", DurationHint: "3天", DifficultyScore: 1},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replacing phases: status %d", resp.StatusCode)
	}
	var updated models.Habit
	decodeBody(t, resp, &updated)

	if updated.CurrentPhase != 1 {
		t.Errorf("redesign must reset to phase 1, got %d", updated.CurrentPhase)
	}
	if len(updated.Phases) != 1 {
		t.Errorf("expected 1 phase after redesign, got %d", len(updated.Phases))
	}
}

func TestReadinessRequiresPhases(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "unphased", models.HabitBuild, nil)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/habits/"+habit.ID+"/readiness", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without phases, got %d", resp.StatusCode)
	}
}

func TestReadinessScopedToCurrentPhase(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, []models.PhaseConfig{
		{Phase: 1, Name: "起步", DurationHint: "7天", DifficultyScore: 2},
		{Phase: 2, Name: "进阶", DurationHint: "2周", DifficultyScore: 4},
	})

	// A perfect stretch logged long before the current phase started. It must
	// not count toward phase readiness.
	easy := 2
	for day := 1; day <= 10; day++ {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/checkin", CheckinRequest{
			LoggedAt:         fmt.Sprintf("2024-03-%02d", day),
			Completed:        true,
			DifficultyRating: &easy,
		})
		resp.Body.Close()
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/habits/"+habit.ID+"/readiness", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readiness: status %d", resp.StatusCode)
	}
	var readiness ReadinessResponse
	decodeBody(t, resp, &readiness)

	// Nothing logged inside the phase: 20 points from the neutral difficulty
	// default, no completion or duration points.
	if readiness.Advance.ReadinessScore != 20 {
		t.Errorf("pre-phase logs leaked into readiness: score %d, want 20", readiness.Advance.ReadinessScore)
	}
	if readiness.Advance.ShouldUpgrade {
		t.Error("no upgrade without in-phase evidence")
	}

	// The dashboard scopes the same way; both views must agree.
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/dashboard?narrative=false", nil)
	var dashboard models.DashboardInsights
	decodeBody(t, resp, &dashboard)

	if dashboard.PerHabit[0].Readiness == nil {
		t.Fatal("expected readiness on the dashboard")
	}
	if got := dashboard.PerHabit[0].Readiness.ReadinessScore; got != readiness.Advance.ReadinessScore {
		t.Errorf("dashboard readiness %d disagrees with endpoint %d", got, readiness.Advance.ReadinessScore)
	}
	if got := dashboard.PerHabit[0].Retreat.DistressScore; got != readiness.Retreat.DistressScore {
		t.Errorf("dashboard distress %d disagrees with endpoint %d", got, readiness.Retreat.DistressScore)
	}
}

func TestTransitionGateScopedToCurrentPhase(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, []models.PhaseConfig{
		{Phase: 1, Name: "起步", DurationHint: "7天", DifficultyScore: 2},
		{Phase: 2, Name: "进阶", DurationHint: "2周", DifficultyScore: 4},
	})

	// Ten perfect days from long before this phase must not satisfy the gate.
	easy := 2
	for day := 1; day <= 10; day++ {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/checkin", CheckinRequest{
			LoggedAt:         fmt.Sprintf("2024-03-%02d", day),
			Completed:        true,
			DifficultyRating: &easy,
		})
		resp.Body.Close()
	}

	// Evaluate 10 days into the phase so residency alone is satisfied; only
	// the missing in-phase completion evidence can hold the gate.
	ref := time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/transition?date="+ref, TransitionRequest{
		Kind: models.TransitionAdvance,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 with only pre-phase logs, got %d", resp.StatusCode)
	}
}

func TestDashboard(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, nil)

	for _, day := range []string{"2024-03-14", "2024-03-15"} {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/checkin", CheckinRequest{
			LoggedAt: day, Completed: true,
		})
		resp.Body.Close()
	}

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/dashboard?date=2024-03-15", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: status %d", resp.StatusCode)
	}
	var dashboard models.DashboardInsights
	decodeBody(t, resp, &dashboard)

	if len(dashboard.PerHabit) != 1 {
		t.Fatalf("expected 1 habit on dashboard, got %d", len(dashboard.PerHabit))
	}
	if dashboard.PerHabit[0].Narrative == "" {
		t.Error("expected fallback narrative on annotated dashboard")
	}

	// Numbers only.
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/dashboard?date=2024-03-15&narrative=false", nil)
	dashboard = models.DashboardInsights{}
	decodeBody(t, resp, &dashboard)
	if dashboard.PerHabit[0].Narrative != "" {
		t.Error("expected no narrative with narrative=false")
	}
}

func TestGenerateAndListReports(t *testing.T) {
	srv, _ := setupTestServer(t)
	habit := createTestHabit(t, srv, "morning run", models.HabitBuild, nil)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/habits/"+habit.ID+"/reports", GenerateReportRequest{Type: "daily"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("generating report: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, fmt.Sprintf("%s/api/v1/reports?habit_id=%s&type=daily", srv.URL, habit.ID), nil)
	var result struct {
		Reports []models.Report `json:"reports"`
	}
	decodeBody(t, resp, &result)

	if len(result.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(result.Reports))
	}
	if result.Reports[0].Text == "" {
		t.Error("expected report text joined from disk")
	}
}
