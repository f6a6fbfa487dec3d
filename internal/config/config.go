package config

import (
	"fmt"
	"os"
)

type Config struct {
	Port             string
	DBPath           string
	ReportsPath      string
	OllamaURL        string
	OllamaModel      string
	OllamaModelHeavy string
	Token            string
	Timezone         string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("HABIT_PORT", "8080"),
		DBPath:           getEnv("HABIT_DB_PATH", ""),
		ReportsPath:      getEnv("HABIT_REPORTS_PATH", ""),
		OllamaURL:        getEnv("HABIT_OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:      getEnv("HABIT_OLLAMA_MODEL", "qwen2.5:7b"),
		OllamaModelHeavy: getEnv("HABIT_OLLAMA_MODEL_HEAVY", "qwen2.5:14b"),
		Token:            getEnv("HABIT_TOKEN", ""),
		Timezone:         getEnv("HABIT_TIMEZONE", "Asia/Shanghai"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("HABIT_DB_PATH is required")
	}
	if c.ReportsPath == "" {
		return fmt.Errorf("HABIT_REPORTS_PATH is required")
	}
	if c.Token == "" {
		return fmt.Errorf("HABIT_TOKEN is required")
	}
	return nil
}

// ValidToken reports whether a presented bearer token matches the configured one.
func (c *Config) ValidToken(token string) bool {
	return c.Token != "" && token == c.Token
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
