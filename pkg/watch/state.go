package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	stateFileName = "watch_state.json"
	maxHistory    = 50 // Runs kept per batch
)

// RunRecord describes one finished pipeline run
type RunRecord struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Empty      bool      `json:"empty,omitempty"` // Search had no results
	Endpoints  int       `json:"endpoints"`
	Profiles   int       `json:"profiles"` // Records written (duplicates excluded)
	Error      string    `json:"error,omitempty"`
}

// WatchState is the persistent run history, newest run last per batch
type WatchState struct {
	Batches   map[string][]RunRecord `json:"batches"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a state manager for {stateDir}/watch_state.json
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state:     WatchState{Batches: make(map[string][]RunRecord)},
	}
}

// Load loads the state from disk; a missing file is an empty history
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{Batches: make(map[string][]RunRecord)}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	if m.state.Batches == nil {
		m.state.Batches = make(map[string][]RunRecord)
	}
	return nil
}

// Save writes the state to disk through a temp file and rename
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Record appends a run to batch's history, dropping the oldest beyond maxHistory
func (m *StateManager) Record(batch string, run RunRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := append(m.state.Batches[batch], run)
	if len(runs) > maxHistory {
		runs = runs[len(runs)-maxHistory:]
	}
	m.state.Batches[batch] = runs
}

// LastRun returns the newest run of batch
func (m *StateManager) LastRun(batch string) (RunRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.state.Batches[batch]
	if len(runs) == 0 {
		return RunRecord{}, false
	}
	return runs[len(runs)-1], true
}

// History returns a copy of batch's runs, oldest first
func (m *StateManager) History(batch string) []RunRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RunRecord(nil), m.state.Batches[batch]...)
}

// ShouldRun reports whether batch is due: never run, or the schedule fired since its last run
func (m *StateManager) ShouldRun(batch string, schedule cron.Schedule, now time.Time) bool {
	last, ok := m.LastRun(batch)
	if !ok {
		return true
	}
	return !schedule.Next(last.StartedAt).After(now)
}

// GetNextRunTime returns when batch should next run; now when it never ran
func (m *StateManager) GetNextRunTime(batch string, schedule cron.Schedule, now time.Time) time.Time {
	last, ok := m.LastRun(batch)
	if !ok {
		return now
	}
	return schedule.Next(last.StartedAt)
}
