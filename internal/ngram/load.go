package ngram

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCounts parses a frequency source with one "NGRAM COUNT" pair per line,
// for example "EION 4683602". Blank lines are skipped. The order is taken from
// the first entry; every later entry must have the same length.
//
// Expectations:
//   - Returns the counts keyed by upper-cased n-gram and the inferred order
//   - Sums counts of duplicate n-grams
//   - Returns ErrMalformedInput (with the 1-indexed line number) for lines
//     without exactly two fields, non-integer counts or mismatched lengths
//   - Returns ErrMalformedInput for a source with no entries
func ReadCounts(r io.Reader) (map[string]int64, int, error) {
	counts := make(map[string]int64)
	order := 0
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, 0, fmt.Errorf("%w: line %d: want \"NGRAM COUNT\", got %q", ErrMalformedInput, line, text)
		}
		gram := strings.ToUpper(fields[0])
		c, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: bad count %q", ErrMalformedInput, line, fields[1])
		}
		if order == 0 {
			order = len(gram)
		} else if len(gram) != order {
			return nil, 0, fmt.Errorf("%w: line %d: n-gram %q has length %d, want %d", ErrMalformedInput, line, gram, len(gram), order)
		}
		counts[gram] += c
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read frequency source: %w", err)
	}
	if order == 0 {
		return nil, 0, fmt.Errorf("%w: no entries", ErrMalformedInput)
	}
	return counts, order, nil
}

// LoadFile reads a frequency file and builds its Model.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frequency file: %w", err)
	}
	defer f.Close()

	counts, order, err := ReadCounts(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m, err := Build(order, counts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
