package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"termpilot/internal/token"
)

// ErrInvalidPath is returned when a working-directory change targets a path
// that does not exist or is not a directory.
var ErrInvalidPath = errors.New("invalid path")

// Turn is one conversational exchange entry in the context history.
type Turn struct {
	Role    string    `json:"role"` // "user", "assistant", "system"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Platform describes the host the agent generates commands for.
type Platform struct {
	OS        string `json:"os"`
	ShellKind string `json:"shell_kind"` // "sh" or "cmd"
}

// DetectPlatform inspects the current process environment.
func DetectPlatform() Platform {
	shell := "sh"
	if runtime.GOOS == "windows" {
		shell = "cmd"
	}
	return Platform{OS: runtime.GOOS, ShellKind: shell}
}

// Snapshot is a read-only copy of the context state at one point in time.
type Snapshot struct {
	WorkingDirectory string
	Platform         Platform
	Turns            []Turn
}

// Store is the process-wide conversational and environmental state shared
// across tasks. It accepts mutations from only one caller at a time; every
// read returns a consistent copy.
type Store struct {
	mu         sync.RWMutex
	workingDir string
	platform   Platform
	turns      []Turn
	maxTurns   int
	active     *Task
}

// NewStore creates a context store rooted at the process working directory.
// maxTurns caps the turn history; the oldest entries are evicted first.
func NewStore(maxTurns int) *Store {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &Store{
		workingDir: wd,
		platform:   DetectPlatform(),
		maxTurns:   maxTurns,
	}
}

// CurrentContext returns a read-only snapshot of the current state.
func (s *Store) CurrentContext() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return Snapshot{
		WorkingDirectory: s.workingDir,
		Platform:         s.platform,
		Turns:            turns,
	}
}

// RecordTurn appends a turn, evicting the oldest entry once the cap is hit.
func (s *Store) RecordTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content, At: time.Now()})
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

// WorkingDirectory returns the current working directory.
func (s *Store) WorkingDirectory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workingDir
}

// SetWorkingDirectory validates and changes the working directory. Relative
// paths resolve against the current working directory; "~" expands to home.
func (s *Store) SetWorkingDirectory(path string) error {
	if path == "" || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("%w: cannot resolve home directory", ErrInvalidPath)
		}
		path = home
	} else if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("%w: cannot resolve home directory", ErrInvalidPath)
		}
		path = filepath.Join(home, path[2:])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.workingDir, path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: not a directory: %s", ErrInvalidPath, path)
	}
	s.workingDir = path
	return nil
}

// SetActiveTask points the store at the task currently being driven.
func (s *Store) SetActiveTask(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = t
}

// ActiveTask returns the task currently being driven, if any.
func (s *Store) ActiveTask() *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// snapshotTokenBudget bounds the rendered prompt context. Oldest turns drop
// first when the budget is exceeded.
const snapshotTokenBudget = 2000

// SnapshotForPrompt renders a bounded textual view of the context for oracle
// calls: working directory, platform, and the most recent turns that fit the
// token budget. Never the full unbounded history.
func (s *Store) SnapshotForPrompt() string {
	snap := s.CurrentContext()

	var b strings.Builder
	fmt.Fprintf(&b, "Current Directory: %s\n", snap.WorkingDirectory)
	fmt.Fprintf(&b, "Operating System: %s (%s shell)\n", snap.Platform.OS, snap.Platform.ShellKind)

	if len(snap.Turns) == 0 {
		return b.String()
	}

	b.WriteString("Recent conversation:\n")
	budget := snapshotTokenBudget - token.Count(b.String())
	// Walk newest-first so the most recent turns survive, then restore order.
	var kept []Turn
	for i := len(snap.Turns) - 1; i >= 0; i-- {
		cost := token.Count(snap.Turns[i].Content) + 4
		if cost > budget {
			break
		}
		budget -= cost
		kept = append(kept, snap.Turns[i])
	}
	for i := len(kept) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "- [%s] %s\n", kept[i].Role, token.Truncate(kept[i].Content, 200))
	}
	return b.String()
}
