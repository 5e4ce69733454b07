// Package anneal recovers a Playfair key by simulated annealing over key
// transpositions, using a fitness.Scorer as the objective.
//
// Each Engine owns its key, search state and random source outright, so any
// number of engines may run concurrently over a shared ciphertext and scorer.
package anneal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/haricheung/playcrack/internal/fitness"
	"github.com/haricheung/playcrack/internal/playfair"
	"github.com/haricheung/playcrack/internal/types"
)

// ErrInvalidSchedule is returned for a temperature schedule that cannot terminate.
var ErrInvalidSchedule = errors.New("invalid temperature schedule")

// Schedule is a linear cooling schedule: Iterations inner iterations at each
// temperature Start, Start-Step, Start-2·Step, ... down to the last value >= 0.
type Schedule struct {
	Start      float64
	Step       float64
	Iterations int
}

// DefaultSchedule runs 91 temperatures from 18.0 to 0.0 at 10,000 iterations each.
var DefaultSchedule = Schedule{Start: 18.0, Step: 0.2, Iterations: 10000}

// MaxSteps bounds the number of temperatures a valid schedule may visit.
const MaxSteps = 1_000_000

// Validate rejects schedules that would never terminate or never iterate.
func (s Schedule) Validate() error {
	switch {
	case math.IsNaN(s.Start) || math.IsInf(s.Start, 0) || s.Start < 0:
		return fmt.Errorf("%w: start temperature %v", ErrInvalidSchedule, s.Start)
	case math.IsNaN(s.Step) || math.IsInf(s.Step, 0) || s.Step <= 0:
		return fmt.Errorf("%w: step %v", ErrInvalidSchedule, s.Step)
	case s.Start/s.Step >= MaxSteps:
		return fmt.Errorf("%w: step %v too small for start temperature %v (over %d steps)", ErrInvalidSchedule, s.Step, s.Start, MaxSteps)
	case s.Iterations <= 0:
		return fmt.Errorf("%w: %d iterations per temperature", ErrInvalidSchedule, s.Iterations)
	}
	return nil
}

// Temperature returns the temperature of step i. Computed from the step index
// rather than by repeated subtraction so rounding error does not accumulate.
// The explicit conversion rounds the product and keeps the compiler from
// fusing it into the subtraction, which would move the last step below zero.
func (s Schedule) Temperature(i int) float64 {
	return s.Start - float64(float64(i)*s.Step)
}

// Steps returns the number of temperatures the schedule visits.
//
// Expectations:
//   - DefaultSchedule visits 91 temperatures (18.0 down to 0.0 inclusive)
//   - A schedule whose Start is 0 visits exactly one temperature
//   - Never exceeds MaxSteps, even for a schedule that fails Validate
func (s Schedule) Steps() int {
	n := 0
	for n < MaxSteps && s.Temperature(n) >= 0 {
		n++
	}
	return n
}

// Publisher receives progress messages. *bus.Bus satisfies it.
type Publisher interface {
	Publish(types.Message)
}

// Options configures one search run.
type Options struct {
	Schedule Schedule

	// Seed fixes the random source; identical seeds and schedules reproduce
	// identical runs.
	Seed uint64

	// StartKey seeds the search; nil draws a uniformly random key.
	StartKey *playfair.Key

	// MaxIterations caps the total inner iterations; 0 means the schedule decides.
	MaxIterations int

	// Publisher receives progress messages; nil disables reporting.
	Publisher Publisher

	// ReportEvery publishes a Progress sample every n inner iterations; 0 disables.
	ReportEvery int

	// RunID labels messages and results; empty assigns a fresh UUID.
	RunID string
}

// State is one run's search state. Best/BestFitness never decrease.
type State struct {
	Current        playfair.Key
	CurrentFitness float64
	Best           playfair.Key
	BestFitness    float64
	Temperature    float64
}

// Result reports the outcome of a run.
type Result struct {
	RunID        string
	Seed         uint64
	BestKey      playfair.Key
	BestFitness  float64
	Plaintext    string // filler-stripped text the score was computed on
	RawPlaintext string // faithful decryption with fillers kept
	Iterations   int
	Accepted     int
	Improvements int
	Stopped      bool // a budget or cancellation ended the run before the schedule did
	Elapsed      time.Duration
}

// Engine runs simulated annealing for one ciphertext.
type Engine struct {
	ciphertext []byte
	scorer     *fitness.Scorer
	opts       Options
	rng        *rand.Rand
	state      State

	iterations   int
	accepted     int
	improvements int
	lastProb     float64
}

// New validates opts, picks the start key and scores it.
//
// Expectations:
//   - Returns ErrInvalidSchedule for a schedule that fails Validate
//   - Returns playfair.ErrInvalidKey when StartKey is not a permutation
//   - Returns playfair.ErrInvalidCiphertext for empty or odd-length ciphertext
//   - Initial Best equals Current and BestFitness equals CurrentFitness
func New(ciphertext []byte, scorer *fitness.Scorer, opts Options) (*Engine, error) {
	if err := opts.Schedule.Validate(); err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%2 != 0 {
		return nil, fmt.Errorf("%w: length %d", playfair.ErrInvalidCiphertext, len(ciphertext))
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}

	e := &Engine{
		ciphertext: ciphertext,
		scorer:     scorer,
		opts:       opts,
		rng:        rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}

	var start playfair.Key
	if opts.StartKey != nil {
		if err := opts.StartKey.Validate(); err != nil {
			return nil, err
		}
		start = *opts.StartKey
	} else {
		start = playfair.RandomKey(e.rng)
	}

	f := e.score(start)
	e.state = State{
		Current:        start,
		CurrentFitness: f,
		Best:           start,
		BestFitness:    f,
		Temperature:    opts.Schedule.Start,
	}
	return e, nil
}

// State returns a snapshot of the search state.
func (e *Engine) State() State { return e.state }

// RunID returns the identifier used for this run's messages.
func (e *Engine) RunID() string { return e.opts.RunID }

// Run anneals until the schedule completes, MaxIterations is reached or ctx is
// cancelled. The budget and ctx are checked once per inner iteration. On
// cancellation the best result so far is returned along with ctx.Err().
func (e *Engine) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	sched := e.opts.Schedule
	steps := sched.Steps()

	slog.Debug("[ANNEAL] run begin", "run", e.opts.RunID, "seed", e.opts.Seed, "steps", steps, "iterations", sched.Iterations)
	e.publish(types.MsgRunBegin, types.RunBegin{
		RunID:          e.opts.RunID,
		Seed:           e.opts.Seed,
		StartKey:       e.state.Current.String(),
		Seeded:         e.opts.StartKey != nil,
		InitialFitness: e.state.CurrentFitness,
		CipherLen:      len(e.ciphertext),
		TempStart:      sched.Start,
		TempStep:       sched.Step,
		Iterations:     sched.Iterations,
	})

	var err error
	stopped := false
loop:
	for step := 0; step < steps; step++ {
		t := sched.Temperature(step)
		e.state.Temperature = t
		acceptedBefore := e.accepted
		for n := 0; n < sched.Iterations; n++ {
			if err = ctx.Err(); err != nil {
				stopped = true
				break loop
			}
			if e.opts.MaxIterations > 0 && e.iterations >= e.opts.MaxIterations {
				stopped = true
				break loop
			}
			e.Step(t)
			if e.opts.ReportEvery > 0 && n%e.opts.ReportEvery == 0 {
				e.publish(types.MsgProgress, types.Progress{
					RunID:          e.opts.RunID,
					Temperature:    t,
					Iteration:      n,
					Probability:    e.lastProb,
					CurrentFitness: e.state.CurrentFitness,
				})
			}
		}
		e.publish(types.MsgTemperatureStep, types.TemperatureStep{
			RunID:          e.opts.RunID,
			Temperature:    t,
			Step:           step,
			Steps:          steps,
			CurrentFitness: e.state.CurrentFitness,
			BestFitness:    e.state.BestFitness,
			Accepted:       e.accepted - acceptedBefore,
		})
	}

	res := e.result(time.Since(started), stopped)
	e.publish(types.MsgRunEnd, types.RunEnd{
		RunID:        res.RunID,
		BestKey:      res.BestKey.String(),
		BestFitness:  res.BestFitness,
		Iterations:   res.Iterations,
		Accepted:     res.Accepted,
		Improvements: res.Improvements,
		Stopped:      res.Stopped,
		ElapsedMs:    res.Elapsed.Milliseconds(),
	})
	slog.Debug("[ANNEAL] run end", "run", res.RunID, "best", res.BestFitness, "iterations", res.Iterations, "stopped", stopped)
	return res, err
}

// Step performs one inner iteration at temperature t and reports whether the
// candidate was accepted. A rejected candidate leaves Current untouched.
func (e *Engine) Step(t float64) bool {
	i := e.rng.IntN(playfair.KeyLen)
	j := e.rng.IntN(playfair.KeyLen)
	for j == i {
		j = e.rng.IntN(playfair.KeyLen)
	}

	candidate := e.state.Current.WithSwap(i, j)
	plain := playfair.Decrypt(candidate, e.ciphertext)
	f := e.scorer.Score(plain)
	delta := f - e.state.CurrentFitness
	e.iterations++

	accept := delta >= 0
	if accept {
		e.lastProb = 1
	} else {
		// t == 0 gives exp(-Inf) = 0: pure hill climbing at the end of the schedule.
		e.lastProb = math.Exp(delta / t)
		accept = e.rng.Float64() < e.lastProb
	}
	if accept {
		e.state.Current = candidate
		e.state.CurrentFitness = f
		e.accepted++
	}

	if e.state.CurrentFitness > e.state.BestFitness {
		e.state.Best = e.state.Current
		e.state.BestFitness = e.state.CurrentFitness
		e.improvements++
		e.publish(types.MsgNewBest, types.NewBest{
			RunID:     e.opts.RunID,
			Key:       e.state.Best.String(),
			Fitness:   e.state.BestFitness,
			Plaintext: string(plain),
			Iteration: e.iterations,
		})
	}
	return accept
}

func (e *Engine) score(k playfair.Key) float64 {
	return e.scorer.Score(playfair.Decrypt(k, e.ciphertext))
}

func (e *Engine) result(elapsed time.Duration, stopped bool) Result {
	best := e.state.Best
	return Result{
		RunID:        e.opts.RunID,
		Seed:         e.opts.Seed,
		BestKey:      best,
		BestFitness:  e.state.BestFitness,
		Plaintext:    string(playfair.Decrypt(best, e.ciphertext)),
		RawPlaintext: string(playfair.DecryptRaw(best, e.ciphertext)),
		Iterations:   e.iterations,
		Accepted:     e.accepted,
		Improvements: e.improvements,
		Stopped:      stopped,
		Elapsed:      elapsed,
	}
}

func (e *Engine) publish(t types.MessageType, payload any) {
	if e.opts.Publisher == nil {
		return
	}
	e.opts.Publisher.Publish(types.Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		From:      types.RoleSearch,
		RunID:     e.opts.RunID,
		Type:      t,
		Payload:   payload,
	})
}
