package config

import "testing"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("HABIT_DB_PATH", "/tmp/habits.db")
	t.Setenv("HABIT_REPORTS_PATH", "/tmp/reports")
	t.Setenv("HABIT_TOKEN", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Errorf("unexpected default ollama url: %s", cfg.OllamaURL)
	}
	if cfg.Timezone != "Asia/Shanghai" {
		t.Errorf("unexpected default timezone: %s", cfg.Timezone)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HABIT_PORT", "9090")
	t.Setenv("HABIT_OLLAMA_MODEL", "llama3:8b")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Port)
	}
	if cfg.OllamaModel != "llama3:8b" {
		t.Errorf("expected model override, got %s", cfg.OllamaModel)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"no db path", "HABIT_DB_PATH"},
		{"no reports path", "HABIT_REPORTS_PATH"},
		{"no token", "HABIT_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")
			if _, err := Load(); err == nil {
				t.Errorf("expected error with %s unset", tt.unset)
			}
		})
	}
}

func TestValidToken(t *testing.T) {
	cfg := &Config{Token: "secret"}

	if !cfg.ValidToken("secret") {
		t.Error("matching token rejected")
	}
	if cfg.ValidToken("wrong") {
		t.Error("wrong token accepted")
	}
	if (&Config{}).ValidToken("") {
		t.Error("empty configured token must never validate")
	}
}
