// Package runlog provides per-run structured logging for annealing searches.
//
// Each run gets one JSONL file in a configurable directory. Events capture the
// start key and schedule, every completed temperature step, every new best key
// and the final outcome, enough to replay how a run converged.
//
// Design constraints:
//   - All RunLog methods are nil-safe (no-op on nil receiver) so the recorder
//     never needs nil checks before a log call.
//   - Registry is the sole owner of JSONL persistence.
//   - Follow drives the registry from bus messages; the engine never touches files.
package runlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haricheung/playcrack/internal/types"
)

// EventKind labels a single structured event in the run log.
type EventKind string

const (
	KindRunBegin        EventKind = "run_begin"
	KindTemperatureStep EventKind = "temperature_step"
	KindNewBest         EventKind = "new_best"
	KindRunEnd          EventKind = "run_end"
)

// Run statuses written on run_end.
const (
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
)

// Event is one JSONL line in the run log.
// Fields are omitempty so each event only serialises relevant data.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"ts"`
	RunID     string    `json:"run_id,omitempty"`

	// run_begin
	Seed       uint64  `json:"seed,omitempty"`
	StartKey   string  `json:"start_key,omitempty"`
	Seeded     bool    `json:"seeded,omitempty"`
	CipherLen  int     `json:"cipher_len,omitempty"`
	TempStart  float64 `json:"temp_start,omitempty"`
	TempStep   float64 `json:"temp_step,omitempty"`
	Iterations int     `json:"iterations,omitempty"` // per temperature on run_begin, total on run_end

	// temperature_step
	Temperature    *float64 `json:"temperature,omitempty"` // pointer: 0 must be serialised
	Step           int      `json:"step,omitempty"`
	CurrentFitness float64  `json:"current_fitness,omitempty"`
	Accepted       int      `json:"accepted,omitempty"`

	// new_best / run_end
	Key       string   `json:"key,omitempty"`
	Fitness   *float64 `json:"fitness,omitempty"`
	Plaintext string   `json:"plaintext,omitempty"`
	Iteration int      `json:"iteration,omitempty"`

	// run_end
	Status       string `json:"status,omitempty"` // "completed" | "stopped"
	Improvements int    `json:"improvements,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	NewBests     int    `json:"new_bests,omitempty"` // new_best events logged for this run
}

// RunLog is a handle for writing structured events for one run.
//
// Expectations:
//   - All methods are nil-safe (no-op when called on nil *RunLog)
//   - Concurrent writes are safe (mutex-protected)
//   - NewBests counts the new_best events written so far
type RunLog struct {
	runID    string
	mu       sync.Mutex
	f        *os.File
	newBests int
	steps    int
}

// Registry maps run IDs to open RunLogs.
//
// Expectations:
//   - Open creates the log directory if absent
//   - Open writes a run_begin event as the first JSONL line
//   - Open returns the existing log when called twice for the same run ID
//   - Get returns nil for unknown run IDs
//   - Close writes run_end, closes the file and forgets the run ID
//   - Close no-ops gracefully when the run ID is not registered
type Registry struct {
	dir  string
	mu   sync.Mutex
	logs map[string]*RunLog
}

// NewRegistry creates a Registry that writes one JSONL file per run under dir.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:  dir,
		logs: make(map[string]*RunLog),
	}
}

// Dir returns the directory run logs are written to.
func (r *Registry) Dir() string { return r.dir }

// Path returns the JSONL path for runID.
func (r *Registry) Path(runID string) string {
	return filepath.Join(r.dir, runID+".jsonl")
}

// Open creates a RunLog for b.RunID, writes run_begin and registers it.
func (r *Registry) Open(b types.RunBegin) *RunLog {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rl, ok := r.logs[b.RunID]; ok {
		return rl
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		slog.Error("[RUNLOG] could not create dir", "dir", r.dir, "error", err)
		return nil
	}
	path := r.Path(b.RunID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("[RUNLOG] could not open log file", "path", path, "error", err)
		return nil
	}

	rl := &RunLog{runID: b.RunID, f: f}
	r.logs[b.RunID] = rl
	fit := b.InitialFitness
	rl.write(Event{
		Kind:       KindRunBegin,
		RunID:      b.RunID,
		Seed:       b.Seed,
		StartKey:   b.StartKey,
		Seeded:     b.Seeded,
		Fitness:    &fit,
		CipherLen:  b.CipherLen,
		TempStart:  b.TempStart,
		TempStep:   b.TempStep,
		Iterations: b.Iterations,
	})
	return rl
}

// Get returns the RunLog for runID, or nil if not found.
// Nil is safe to pass to all RunLog methods.
func (r *Registry) Get(runID string) *RunLog {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[runID]
}

// Close writes run_end, closes the file and removes the entry from the
// registry. Safe to call on a nil *Registry or an unknown run ID.
func (r *Registry) Close(e types.RunEnd) {
	if r == nil {
		return
	}
	r.mu.Lock()
	rl, ok := r.logs[e.RunID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.logs, e.RunID)
	r.mu.Unlock()

	status := StatusCompleted
	if e.Stopped {
		status = StatusStopped
	}
	fit := e.BestFitness
	rl.write(Event{
		Kind:         KindRunEnd,
		RunID:        e.RunID,
		Status:       status,
		Key:          e.BestKey,
		Fitness:      &fit,
		Iterations:   e.Iterations,
		Accepted:     e.Accepted,
		Improvements: e.Improvements,
		ElapsedMs:    e.ElapsedMs,
		NewBests:     rl.NewBests(),
	})

	rl.mu.Lock()
	if rl.f != nil {
		_ = rl.f.Close()
		rl.f = nil
	}
	rl.mu.Unlock()
}

// TemperatureStep writes a temperature_step event.
func (rl *RunLog) TemperatureStep(s types.TemperatureStep) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.steps++
	rl.mu.Unlock()
	t := s.Temperature
	best := s.BestFitness
	rl.write(Event{
		Kind:           KindTemperatureStep,
		Temperature:    &t,
		Step:           s.Step,
		CurrentFitness: s.CurrentFitness,
		Fitness:        &best,
		Accepted:       s.Accepted,
	})
}

// NewBest writes a new_best event with the key and its decryption.
func (rl *RunLog) NewBest(b types.NewBest) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	rl.newBests++
	rl.mu.Unlock()
	f := b.Fitness
	rl.write(Event{
		Kind:      KindNewBest,
		Key:       b.Key,
		Fitness:   &f,
		Plaintext: b.Plaintext,
		Iteration: b.Iteration,
	})
}

// NewBests returns the number of new_best events written. Returns 0 on nil.
func (rl *RunLog) NewBests() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.newBests
}

// Steps returns the number of temperature_step events written. Returns 0 on nil.
func (rl *RunLog) Steps() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.steps
}

// Follow records run events from ch until ch is closed. Subscribe ch to
// MsgRunBegin, MsgTemperatureStep, MsgNewBest and MsgRunEnd.
func (r *Registry) Follow(ch <-chan types.Message) {
	for msg := range ch {
		switch p := msg.Payload.(type) {
		case types.RunBegin:
			r.Open(p)
		case types.TemperatureStep:
			r.Get(p.RunID).TemperatureStep(p)
		case types.NewBest:
			r.Get(p.RunID).NewBest(p)
		case types.RunEnd:
			r.Close(p)
		default:
			slog.Debug("[RUNLOG] ignoring message", "type", msg.Type)
		}
	}
}

// write appends one JSON line to the run log file. Adds timestamp, mutex-protected.
func (rl *RunLog) write(e Event) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	if e.RunID == "" {
		e.RunID = rl.runID
	}
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("[RUNLOG] marshal event", "error", err)
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.f == nil {
		return
	}
	if _, err = fmt.Fprintf(rl.f, "%s\n", data); err != nil {
		slog.Error("[RUNLOG] write event", "error", err)
	}
}
