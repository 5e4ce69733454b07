package types

import "time"

// Role identifies the component that published a message.
type Role string

const (
	RoleSearch   Role = "search"   // one annealing run
	RoleRestarts Role = "restarts" // merges independent runs
)

// MessageType identifies the payload type of a bus message
type MessageType string

const (
	MsgRunBegin        MessageType = "RunBegin"
	MsgTemperatureStep MessageType = "TemperatureStep"
	MsgProgress        MessageType = "Progress"
	MsgNewBest         MessageType = "NewBest"
	MsgRunEnd          MessageType = "RunEnd"
	MsgFinalResult     MessageType = "FinalResult"
)

// Message is the envelope for every progress event on the bus
type Message struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	From      Role        `json:"from"`
	RunID     string      `json:"run_id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
}

// RunBegin is published once when a search run has its initial key scored.
type RunBegin struct {
	RunID          string  `json:"run_id"`
	Seed           uint64  `json:"seed"`
	StartKey       string  `json:"start_key"`
	Seeded         bool    `json:"seeded"` // true when StartKey was supplied by the caller
	InitialFitness float64 `json:"initial_fitness"`
	CipherLen      int     `json:"cipher_len"`
	TempStart      float64 `json:"temp_start"`
	TempStep       float64 `json:"temp_step"`
	Iterations     int     `json:"iterations"` // inner iterations per temperature
}

// TemperatureStep is published after every full inner-iteration batch.
type TemperatureStep struct {
	RunID          string  `json:"run_id"`
	Temperature    float64 `json:"temperature"`
	Step           int     `json:"step"` // 0-indexed temperature step
	Steps          int     `json:"steps"`
	CurrentFitness float64 `json:"current_fitness"`
	BestFitness    float64 `json:"best_fitness"`
	Accepted       int     `json:"accepted"` // moves accepted during this batch
}

// Progress is a periodic diagnostic sample inside a batch.
type Progress struct {
	RunID          string  `json:"run_id"`
	Temperature    float64 `json:"temperature"`
	Iteration      int     `json:"iteration"`   // index inside the current batch
	Probability    float64 `json:"probability"` // last Metropolis probability computed
	CurrentFitness float64 `json:"current_fitness"`
}

// NewBest is published whenever the run's high-water mark rises.
type NewBest struct {
	RunID     string  `json:"run_id"`
	Key       string  `json:"key"`
	Fitness   float64 `json:"fitness"`
	Plaintext string  `json:"plaintext"`
	Iteration int     `json:"iteration"` // total iterations so far
}

// RunEnd is published once when a run finishes or is stopped.
type RunEnd struct {
	RunID        string  `json:"run_id"`
	BestKey      string  `json:"best_key"`
	BestFitness  float64 `json:"best_fitness"`
	Iterations   int     `json:"iterations"`
	Accepted     int     `json:"accepted"`
	Improvements int     `json:"improvements"`
	Stopped      bool    `json:"stopped"` // true when a budget or cancellation cut the schedule short
	ElapsedMs    int64   `json:"elapsed_ms"`
}

// FinalResult is the merged outcome delivered to the user.
type FinalResult struct {
	RunID        string  `json:"run_id"` // run that produced the best key
	Runs         int     `json:"runs"`
	BestKey      string  `json:"best_key"`
	BestFitness  float64 `json:"best_fitness"`
	Plaintext    string  `json:"plaintext"`     // filler-stripped scoring text
	RawPlaintext string  `json:"raw_plaintext"` // faithful decryption, fillers kept
	Stopped      bool    `json:"stopped"`
}
