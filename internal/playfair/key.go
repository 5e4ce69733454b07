// Package playfair implements the 5×5 Playfair key square and the digraph
// decryption transform used to score candidate keys.
package playfair

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// Alphabet is the 25-symbol Playfair alphabet; J is merged into I.
const Alphabet = "ABCDEFGHIKLMNOPQRSTUVWXYZ"

// Size is the side length of the key square.
const Size = 5

// KeyLen is the number of symbols in a key.
const KeyLen = Size * Size

// ErrInvalidKey is returned when a key is not a permutation of Alphabet.
var ErrInvalidKey = errors.New("invalid playfair key")

// Key is a permutation of Alphabet laid out row-major as a 5×5 grid:
// grid[r][c] = key[r*5+c].
//
// Key is a value type. Swapping returns a new Key, so a caller holding a Key
// never observes a half-applied move.
type Key [KeyLen]byte

// ParseKey validates s as a permutation of Alphabet. Matching is
// case-insensitive and J is read as I.
//
// Expectations:
//   - Accepts any ordering of the 25 alphabet symbols, upper or lower case
//   - Maps J to I before validation
//   - Returns ErrInvalidKey for the wrong length, symbols outside the
//     alphabet or a repeated symbol
func ParseKey(s string) (Key, error) {
	var k Key
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != KeyLen {
		return k, fmt.Errorf("%w: length %d, want %d", ErrInvalidKey, len(s), KeyLen)
	}
	for i := 0; i < KeyLen; i++ {
		c := s[i]
		if c == 'J' {
			c = 'I'
		}
		k[i] = c
	}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// MustParseKey is like ParseKey but panics on error. For constants and tests.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Validate reports whether k is a permutation of Alphabet.
func (k Key) Validate() error {
	var seen [256]bool
	for i, c := range k {
		if strings.IndexByte(Alphabet, c) < 0 {
			return fmt.Errorf("%w: symbol %q at position %d not in alphabet", ErrInvalidKey, c, i)
		}
		if seen[c] {
			return fmt.Errorf("%w: symbol %q repeated", ErrInvalidKey, c)
		}
		seen[c] = true
	}
	return nil
}

// RandomKey draws a uniformly random permutation of Alphabet from r.
func RandomKey(r *rand.Rand) Key {
	var k Key
	copy(k[:], Alphabet)
	r.Shuffle(KeyLen, func(i, j int) { k[i], k[j] = k[j], k[i] })
	return k
}

// WithSwap returns a copy of k with positions i and j exchanged.
func (k Key) WithSwap(i, j int) Key {
	k[i], k[j] = k[j], k[i]
	return k
}

// At returns the symbol at grid row r, column c.
func (k Key) At(r, c int) byte {
	return k[r*Size+c]
}

// Position returns the grid row and column of sym, or (-1, -1) when sym is
// not in the key.
func (k Key) Position(sym byte) (row, col int) {
	for i, c := range k {
		if c == sym {
			return i / Size, i % Size
		}
	}
	return -1, -1
}

// String returns the key as its 25 symbols in row-major order.
func (k Key) String() string {
	return string(k[:])
}

// Grid renders the key square as five space-separated rows.
func (k Key) Grid() string {
	var sb strings.Builder
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if c > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte(k.At(r, c))
		}
		if r < Size-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
