package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chen893/habit-coach-server/internal/models"
)

const schema = `
-- Habits with their phase path stored as JSON
CREATE TABLE IF NOT EXISTS habits (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    current_phase INTEGER NOT NULL DEFAULT 1,
    phases TEXT,
    phase_started TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- One log per habit per calendar day; check-in edits overwrite in place
CREATE TABLE IF NOT EXISTS habit_logs (
    id TEXT PRIMARY KEY,
    habit_id TEXT NOT NULL,
    log_date TEXT NOT NULL,
    logged_at TEXT NOT NULL,
    completed INTEGER NOT NULL,
    completion_level TEXT NOT NULL,
    difficulty_rating INTEGER,
    mood_before INTEGER,
    mood_after INTEGER,
    UNIQUE(habit_id, log_date)
);

-- Trigger events for break-habits; immutable once created
CREATE TABLE IF NOT EXISTS trigger_records (
    id TEXT PRIMARY KEY,
    habit_id TEXT NOT NULL,
    ts TEXT NOT NULL,
    trigger_type TEXT NOT NULL,
    context TEXT,
    intensity INTEGER NOT NULL,
    resisted INTEGER NOT NULL,
    coping_strategy TEXT
);

-- Audit trail: every accepted currentPhase mutation
CREATE TABLE IF NOT EXISTS phase_transitions (
    id TEXT PRIMARY KEY,
    habit_id TEXT NOT NULL,
    from_phase INTEGER NOT NULL,
    to_phase INTEGER NOT NULL,
    kind TEXT NOT NULL,
    readiness_score INTEGER,
    reason TEXT,
    created_at TEXT NOT NULL
);

-- Generated coaching report index (body lives on disk)
CREATE TABLE IF NOT EXISTS reports (
    report_id TEXT PRIMARY KEY,
    habit_id TEXT NOT NULL,
    type TEXT NOT NULL,
    for_date TEXT NOT NULL,
    created_at TEXT NOT NULL,
    file_path TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_habit_date ON habit_logs(habit_id, log_date DESC);
CREATE INDEX IF NOT EXISTS idx_triggers_habit_ts ON trigger_records(habit_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_transitions_habit ON phase_transitions(habit_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_habit ON reports(habit_id, for_date DESC);
`

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection is still alive, for health checks.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// CreateHabit inserts a habit and returns it with generated fields set.
func (db *DB) CreateHabit(name string, habitType models.HabitType, phases []models.PhaseConfig) (*models.Habit, error) {
	now := time.Now().UTC()
	h := &models.Habit{
		ID:           uuid.NewString(),
		Name:         name,
		Type:         habitType,
		CurrentPhase: 1,
		Phases:       phases,
		PhaseStarted: now,
		CreatedAt:    now,
	}

	phasesJSON, err := marshalPhases(phases)
	if err != nil {
		return nil, err
	}

	_, err = db.conn.Exec(`
		INSERT INTO habits (id, name, type, current_phase, phases, phase_started, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.Name, string(h.Type), h.CurrentPhase, phasesJSON, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting habit: %w", err)
	}
	return h, nil
}

// GetHabit returns a habit by id, or nil when not found.
func (db *DB) GetHabit(id string) (*models.Habit, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, type, current_phase, phases, phase_started, created_at
		FROM habits WHERE id = ?
	`, id)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

// ListHabits returns all habits, oldest first.
func (db *DB) ListHabits() ([]models.Habit, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, type, current_phase, phases, phase_started, created_at
		FROM habits ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

// ReplacePhases swaps a habit's phase path wholesale (the "redesign path"
// operation) and resets it to phase 1.
func (db *DB) ReplacePhases(habitID string, phases []models.PhaseConfig) error {
	phasesJSON, err := marshalPhases(phases)
	if err != nil {
		return err
	}
	result, err := db.conn.Exec(`
		UPDATE habits SET phases = ?, current_phase = 1, phase_started = ?
		WHERE id = ?
	`, phasesJSON, time.Now().UTC().Format(time.RFC3339), habitID)
	if err != nil {
		return fmt.Errorf("replacing phases: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("habit %s not found", habitID)
	}
	return nil
}

// UpsertLog inserts or overwrites the log for (habit, calendar day). The
// unique key enforces the one-log-per-day invariant; edits land here too.
// The returned id is the stored row's id, which survives edits.
func (db *DB) UpsertLog(l models.HabitLog) (string, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	logDate := l.LoggedAt.Format("2006-01-02")

	// An edit keeps the original row id, so read it back rather than
	// trusting the candidate id.
	var id string
	err := db.conn.QueryRow(`
		INSERT INTO habit_logs (id, habit_id, log_date, logged_at, completed, completion_level, difficulty_rating, mood_before, mood_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(habit_id, log_date) DO UPDATE SET
			logged_at = excluded.logged_at,
			completed = excluded.completed,
			completion_level = excluded.completion_level,
			difficulty_rating = excluded.difficulty_rating,
			mood_before = excluded.mood_before,
			mood_after = excluded.mood_after
		RETURNING id
	`, l.ID, l.HabitID, logDate, l.LoggedAt.Format(time.RFC3339), boolToInt(l.Completed),
		string(l.CompletionLevel), intPtr(l.DifficultyRating), intPtr(l.MoodBefore), intPtr(l.MoodAfter)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upserting log: %w", err)
	}
	return id, nil
}

// GetLogs returns all logs for a habit, newest first.
func (db *DB) GetLogs(habitID string) ([]models.HabitLog, error) {
	rows, err := db.conn.Query(`
		SELECT id, habit_id, logged_at, completed, completion_level, difficulty_rating, mood_before, mood_after
		FROM habit_logs
		WHERE habit_id = ?
		ORDER BY log_date DESC
	`, habitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.HabitLog
	for rows.Next() {
		var l models.HabitLog
		var loggedAt string
		var completed int
		var level string
		var difficulty, moodBefore, moodAfter sql.NullInt64
		if err := rows.Scan(&l.ID, &l.HabitID, &loggedAt, &completed, &level, &difficulty, &moodBefore, &moodAfter); err != nil {
			return nil, err
		}
		l.LoggedAt, _ = time.Parse(time.RFC3339, loggedAt)
		l.Completed = completed != 0
		l.CompletionLevel = models.CompletionLevel(level)
		l.DifficultyRating = nullableInt(difficulty)
		l.MoodBefore = nullableInt(moodBefore)
		l.MoodAfter = nullableInt(moodAfter)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// AddTrigger records one trigger event.
func (db *DB) AddTrigger(t models.TriggerRecord) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := db.conn.Exec(`
		INSERT INTO trigger_records (id, habit_id, ts, trigger_type, context, intensity, resisted, coping_strategy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.HabitID, t.Timestamp.Format(time.RFC3339), string(t.Type), t.Context,
		t.Intensity, boolToInt(t.Resisted), t.CopingStrategy)
	if err != nil {
		return "", fmt.Errorf("inserting trigger: %w", err)
	}
	return t.ID, nil
}

// GetTriggers returns all trigger records for a habit, oldest first.
func (db *DB) GetTriggers(habitID string) ([]models.TriggerRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, habit_id, ts, trigger_type, context, intensity, resisted, coping_strategy
		FROM trigger_records
		WHERE habit_id = ?
		ORDER BY ts ASC
	`, habitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []models.TriggerRecord
	for rows.Next() {
		var t models.TriggerRecord
		var ts, triggerType string
		var resisted int
		var coping sql.NullString
		if err := rows.Scan(&t.ID, &t.HabitID, &ts, &triggerType, &t.Context, &t.Intensity, &resisted, &coping); err != nil {
			return nil, err
		}
		t.Timestamp, _ = time.Parse(time.RFC3339, ts)
		t.Type = models.TriggerType(triggerType)
		t.Resisted = resisted != 0
		if coping.Valid {
			t.CopingStrategy = coping.String
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// ApplyTransition atomically moves a habit to a new phase and appends the
// audit row. This is the only write path for current_phase.
func (db *DB) ApplyTransition(habitID string, fromPhase, toPhase int, kind string, readinessScore int, reason string) (*models.PhaseTransition, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(`
		UPDATE habits SET current_phase = ?, phase_started = ?
		WHERE id = ? AND current_phase = ?
	`, toPhase, now.Format(time.RFC3339), habitID, fromPhase)
	if err != nil {
		return nil, fmt.Errorf("updating phase: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("habit %s is not in phase %d", habitID, fromPhase)
	}

	t := &models.PhaseTransition{
		ID:             uuid.NewString(),
		HabitID:        habitID,
		FromPhase:      fromPhase,
		ToPhase:        toPhase,
		Kind:           kind,
		ReadinessScore: readinessScore,
		Reason:         reason,
		CreatedAt:      now,
	}
	_, err = tx.Exec(`
		INSERT INTO phase_transitions (id, habit_id, from_phase, to_phase, kind, readiness_score, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.HabitID, t.FromPhase, t.ToPhase, t.Kind, t.ReadinessScore, t.Reason, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}
	return t, nil
}

// GetTransitions returns a habit's transition history, newest first.
func (db *DB) GetTransitions(habitID string) ([]models.PhaseTransition, error) {
	rows, err := db.conn.Query(`
		SELECT id, habit_id, from_phase, to_phase, kind, readiness_score, reason, created_at
		FROM phase_transitions
		WHERE habit_id = ?
		ORDER BY created_at DESC
	`, habitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []models.PhaseTransition
	for rows.Next() {
		var t models.PhaseTransition
		var createdAt string
		if err := rows.Scan(&t.ID, &t.HabitID, &t.FromPhase, &t.ToPhase, &t.Kind, &t.ReadinessScore, &t.Reason, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

// SaveReport records a generated report's index entry.
func (db *DB) SaveReport(reportID, habitID, reportType, forDate, filePath string) error {
	_, err := db.conn.Exec(`
		INSERT INTO reports (report_id, habit_id, type, for_date, created_at, file_path)
		VALUES (?, ?, ?, ?, ?, ?)
	`, reportID, habitID, reportType, forDate, time.Now().UTC().Format(time.RFC3339), filePath)
	return err
}

// ReportRecord is one row from the report index.
type ReportRecord struct {
	ReportID  string
	HabitID   string
	Type      string
	ForDate   string
	CreatedAt string
	FilePath  string
}

// GetReports returns report index entries, optionally filtered by habit and
// type, newest first.
func (db *DB) GetReports(habitID, reportType string) ([]ReportRecord, error) {
	query := `SELECT report_id, habit_id, type, for_date, created_at, file_path FROM reports WHERE 1=1`
	var args []interface{}

	if habitID != "" {
		query += ` AND habit_id = ?`
		args = append(args, habitID)
	}
	if reportType != "" && reportType != "all" {
		query += ` AND type = ?`
		args = append(args, reportType)
	}
	query += ` ORDER BY created_at DESC LIMIT 50`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []ReportRecord
	for rows.Next() {
		var r ReportRecord
		if err := rows.Scan(&r.ReportID, &r.HabitID, &r.Type, &r.ForDate, &r.CreatedAt, &r.FilePath); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// HasReport reports whether a report of the given type already exists for a
// habit and date, so scheduler reruns stay idempotent.
func (db *DB) HasReport(habitID, reportType, forDate string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(1) FROM reports WHERE habit_id = ? AND type = ? AND for_date = ?
	`, habitID, reportType, forDate).Scan(&n)
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHabit(row rowScanner) (*models.Habit, error) {
	var h models.Habit
	var habitType, phaseStarted, createdAt string
	var phasesJSON sql.NullString
	if err := row.Scan(&h.ID, &h.Name, &habitType, &h.CurrentPhase, &phasesJSON, &phaseStarted, &createdAt); err != nil {
		return nil, err
	}
	h.Type = models.HabitType(habitType)
	h.PhaseStarted, _ = time.Parse(time.RFC3339, phaseStarted)
	h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if phasesJSON.Valid && phasesJSON.String != "" {
		if err := json.Unmarshal([]byte(phasesJSON.String), &h.Phases); err != nil {
			return nil, fmt.Errorf("parsing phases for habit %s: %w", h.ID, err)
		}
	}
	return &h, nil
}

func marshalPhases(phases []models.PhaseConfig) (string, error) {
	if len(phases) == 0 {
		return "", nil
	}
	b, err := json.Marshal(phases)
	if err != nil {
		return "", fmt.Errorf("marshaling phases: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intPtr(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
