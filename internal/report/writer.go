package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Writer persists generated coaching reports as markdown files under a base
// directory: {base}/{Daily|Weekly}/{habit-id}/{date}.md.
type Writer struct {
	basePath string
}

func NewWriter(basePath string) *Writer {
	return &Writer{basePath: basePath}
}

// Report is one coaching letter to be written to disk.
type Report struct {
	ID      string
	HabitID string
	Type    string // "daily" or "weekly"
	ForDate string // "2024-01-15" or "2024-W03"
	Content string
}

// Write stores the report, returning the path relative to the base directory.
func (w *Writer) Write(r Report) (string, error) {
	var subdir string
	switch r.Type {
	case "daily":
		subdir = "Daily"
	case "weekly":
		subdir = "Weekly"
	default:
		return "", fmt.Errorf("unknown report type: %s", r.Type)
	}

	relPath := filepath.Join(subdir, r.HabitID, r.ForDate+".md")
	fullPath := filepath.Join(w.basePath, relPath)

	content := fmt.Sprintf("---\nid: %s\nhabit: %s\ntype: %s\nfor_date: %s\ncreated: %s\n---\n\n%s\n",
		r.ID, r.HabitID, r.Type, r.ForDate, time.Now().UTC().Format(time.RFC3339), r.Content)

	if err := writeFileAtomic(fullPath, []byte(content)); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	return relPath, nil
}

// Read returns a stored report's raw markdown by relative path.
func (w *Writer) Read(relPath string) (string, error) {
	content, err := os.ReadFile(filepath.Join(w.basePath, relPath))
	if err != nil {
		return "", fmt.Errorf("reading report: %w", err)
	}
	return string(content), nil
}

// writeFileAtomic writes to a temp file in the target directory then renames,
// so a crash never leaves a partial report. Retries up to 3 attempts with
// backoff.
func writeFileAtomic(path string, content []byte) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(100*(1<<uint(attempt-1))) * time.Millisecond)
		}
		if err := writeFileAtomicOnce(path, content); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("after 3 attempts: %w", lastErr)
}

func writeFileAtomicOnce(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}
