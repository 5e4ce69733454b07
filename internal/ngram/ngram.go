// Package ngram holds letter n-gram language models built from relative
// frequency counts.
//
// A Model is built once from a frequency source and is read-only afterwards,
// so a single *Model may be shared by any number of scorers and search runs.
package ngram

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedInput is returned when a frequency source cannot produce a model:
// inconsistent n-gram lengths, negative counts, an unsupported order or a zero
// total count.
var ErrMalformedInput = errors.New("malformed n-gram input")

// MinOrder and MaxOrder bound the supported n-gram orders.
const (
	MinOrder = 3
	MaxOrder = 5
)

// unseenCount is the fictitious occurrence count assigned to n-grams that are
// absent from the table.
const unseenCount = 0.1

// Model is a log10-probability table for n-grams of a single order.
//
// Expectations:
//   - Every table value is finite and <= 0
//   - Floor is finite and strictly smaller than every table value
//   - Lookup never fails
type Model struct {
	order int
	table map[string]float64
	floor float64
	total int64
}

// Build computes a Model of the given order from n-gram occurrence counts.
// Keys are upper-cased so lookups are case-insensitive once callers
// normalise their text.
//
// Expectations:
//   - table[g] = log10(count/N) where N is the sum of all counts
//   - Floor = log10(0.1/N)
//   - Returns ErrMalformedInput when order is outside [MinOrder, MaxOrder]
//   - Returns ErrMalformedInput when any key length != order
//   - Returns ErrMalformedInput when any count is negative or N == 0
//   - Keys differing only in case are merged and their counts summed
func Build(order int, counts map[string]int64) (*Model, error) {
	if order < MinOrder || order > MaxOrder {
		return nil, fmt.Errorf("%w: order %d outside [%d,%d]", ErrMalformedInput, order, MinOrder, MaxOrder)
	}

	var total int64
	merged := make(map[string]int64, len(counts))
	for gram, c := range counts {
		if len(gram) != order {
			return nil, fmt.Errorf("%w: n-gram %q has length %d, want %d", ErrMalformedInput, gram, len(gram), order)
		}
		if c < 0 {
			return nil, fmt.Errorf("%w: n-gram %q has negative count %d", ErrMalformedInput, gram, c)
		}
		total += c
		merged[strings.ToUpper(gram)] += c
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: total count is zero", ErrMalformedInput)
	}

	n := float64(total)
	table := make(map[string]float64, len(merged))
	for gram, c := range merged {
		if c == 0 {
			// log10(0) would be -Inf; leave it to the floor.
			continue
		}
		table[gram] = math.Log10(float64(c) / n)
	}

	return &Model{
		order: order,
		table: table,
		floor: math.Log10(unseenCount / n),
		total: total,
	}, nil
}

// Lookup returns the log-probability of gram, or Floor when gram is unknown.
func (m *Model) Lookup(gram string) float64 {
	if v, ok := m.table[gram]; ok {
		return v
	}
	return m.floor
}

// Order returns the n-gram length the model was built for.
func (m *Model) Order() int { return m.order }

// Floor returns the penalty applied to unseen n-grams.
func (m *Model) Floor() float64 { return m.floor }

// Len returns the number of distinct n-grams in the table.
func (m *Model) Len() int { return len(m.table) }

// Total returns the sum of all counts the model was built from.
func (m *Model) Total() int64 { return m.total }
