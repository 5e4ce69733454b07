// Package fitness scores candidate plaintext against one or more n-gram
// models. Higher scores read more like the language the models were built
// from.
package fitness

import (
	"errors"
	"fmt"
	"math"

	"github.com/haricheung/playcrack/internal/ngram"
)

// DefaultScale compresses combined multi-order scores into a range where the
// annealing acceptance probability stays useful across an 18→0 schedule.
const DefaultScale = 0.08

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("invalid scoring configuration")

// Config is the full set of scoring tuning parameters.
// An empty Weights slice means weight 1 for every model.
type Config struct {
	Models  []*ngram.Model
	Weights []float64
	Scale   float64
}

// Scorer combines the per-model scores of a Config. It is immutable and safe
// for concurrent use.
type Scorer struct {
	models  []*ngram.Model
	weights []float64
	scale   float64
}

// New validates cfg and returns a Scorer.
//
// Expectations:
//   - Returns ErrInvalidConfig when cfg has no models or a nil model
//   - Returns ErrInvalidConfig when len(Weights) is neither 0 nor len(Models)
//   - Returns ErrInvalidConfig for a NaN or infinite Scale or weight
//   - Copies Models and Weights so later edits to cfg have no effect
func New(cfg Config) (*Scorer, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("%w: no models", ErrInvalidConfig)
	}
	for i, m := range cfg.Models {
		if m == nil {
			return nil, fmt.Errorf("%w: model %d is nil", ErrInvalidConfig, i)
		}
	}
	if len(cfg.Weights) != 0 && len(cfg.Weights) != len(cfg.Models) {
		return nil, fmt.Errorf("%w: %d weights for %d models", ErrInvalidConfig, len(cfg.Weights), len(cfg.Models))
	}
	if !finite(cfg.Scale) {
		return nil, fmt.Errorf("%w: scale %v", ErrInvalidConfig, cfg.Scale)
	}

	weights := make([]float64, len(cfg.Models))
	for i := range weights {
		weights[i] = 1
		if len(cfg.Weights) > 0 {
			if !finite(cfg.Weights[i]) {
				return nil, fmt.Errorf("%w: weight %d is %v", ErrInvalidConfig, i, cfg.Weights[i])
			}
			weights[i] = cfg.Weights[i]
		}
	}

	return &Scorer{
		models:  append([]*ngram.Model(nil), cfg.Models...),
		weights: weights,
		scale:   cfg.Scale,
	}, nil
}

// Score returns the scaled, weighted mean of the per-model scores of
// plaintext. Each model of order k sums Lookup over the windows starting at
// 0..len(plaintext)-k-1; the final full window is not scored.
//
// Expectations:
//   - Case-insensitive: "the" and "THE" score identically
//   - Deterministic: identical input yields bit-identical output
//   - Text shorter than or equal to k contributes 0 for that model
func (s *Scorer) Score(plaintext []byte) float64 {
	text := upper(plaintext)
	sum := 0.0
	for i, m := range s.models {
		sum += s.weights[i] * modelScore(m, text)
	}
	return sum / float64(len(s.models)) * s.scale
}

// Models returns the number of models the scorer combines.
func (s *Scorer) Models() int { return len(s.models) }

// Scale returns the scaling constant.
func (s *Scorer) Scale() float64 { return s.scale }

func modelScore(m *ngram.Model, text string) float64 {
	k := m.Order()
	total := 0.0
	for i := 0; i < len(text)-k; i++ {
		total += m.Lookup(text[i : i+k])
	}
	return total
}

func upper(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
