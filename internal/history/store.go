// Package history persists executed commands to an append-only JSONL file so
// past runs survive restarts and feed the interactive history view.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"termpilot/internal/logging"
	"termpilot/internal/task"
)

// Entry is one executed command as recorded on disk.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Command    string    `json:"command"`
	ExitCode   *int      `json:"exit_code"`
	DurationMs int64     `json:"duration_ms"`
	TimedOut   bool      `json:"timed_out,omitempty"`
}

// Store appends entries to a JSONL file, one object per line. Writes are
// serialized; a corrupt line in the file skips that line, not the file.
type Store struct {
	mu     sync.Mutex
	path   string
	max    int
	logger *logging.Logger
}

// NewStore opens (creating if needed) the history file at path. max bounds
// how many entries List returns; zero or negative means unbounded.
func NewStore(path string, max int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &Store{
		path:   path,
		max:    max,
		logger: logging.NewComponentLogger("History"),
	}, nil
}

// Record appends the attempt to the history file.
func (s *Store) Record(attempt task.Attempt) error {
	entry := Entry{
		Timestamp:  attempt.StartedAt,
		Command:    attempt.Command,
		ExitCode:   attempt.ExitCode,
		DurationMs: attempt.Duration().Milliseconds(),
		TimedOut:   attempt.TimedOut,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("closing history file: %v", cerr)
		}
	}()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// List returns the most recent entries, oldest first, capped at the store's
// configured maximum.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("closing history file: %v", cerr)
		}
	}()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			s.logger.Warn("skipping corrupt history line: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	if s.max > 0 && len(entries) > s.max {
		entries = entries[len(entries)-s.max:]
	}
	return entries, nil
}
