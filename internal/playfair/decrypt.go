package playfair

import (
	"errors"
	"fmt"
	"strings"
)

// Filler is the padding symbol Playfair encryption inserts between doubled
// letters and at the end of odd-length plaintext.
const Filler = 'X'

// ErrInvalidCiphertext is returned by Normalize for input that cannot be
// split into digraphs.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// square is the two-way index of a key: symbol by position is the key itself,
// position by symbol is derived from it once per call.
type square struct {
	key Key
	pos [256]int8 // -1 when the symbol is absent
}

func newSquare(k Key) *square {
	sq := &square{key: k}
	for i := range sq.pos {
		sq.pos[i] = -1
	}
	for i, c := range k {
		sq.pos[c] = int8(i)
	}
	return sq
}

func (sq *square) locate(c byte) (int, int) {
	p := sq.pos[c]
	if p < 0 {
		panic(fmt.Sprintf("playfair: symbol %q not in key", c))
	}
	return int(p) / Size, int(p) % Size
}

// pair decrypts one digraph. A doubled symbol satisfies both the row and the
// column rule; the column rule wins.
func (sq *square) pair(a, b byte) (byte, byte) {
	ra, ca := sq.locate(a)
	rb, cb := sq.locate(b)
	switch {
	case ca == cb:
		return sq.key.At(mod5(ra-1), ca), sq.key.At(mod5(rb-1), cb)
	case ra == rb:
		return sq.key.At(ra, mod5(ca-1)), sq.key.At(rb, mod5(cb-1))
	default:
		return sq.key.At(ra, cb), sq.key.At(rb, ca)
	}
}

func mod5(n int) int {
	return ((n % Size) + Size) % Size
}

// Decrypt inverts the Playfair digraph rules with key and strips filler
// symbols from the second position of each pair. The result is meant for
// scoring: a genuine X in the second slot of a digraph is dropped as well.
//
// ciphertext must have even length and contain only symbols of key (see
// Normalize); violating that is a programming error and panics.
func Decrypt(key Key, ciphertext []byte) []byte {
	return decrypt(key, ciphertext, true)
}

// DecryptRaw inverts the Playfair digraph rules with key and keeps every
// symbol, fillers included.
func DecryptRaw(key Key, ciphertext []byte) []byte {
	return decrypt(key, ciphertext, false)
}

func decrypt(key Key, ciphertext []byte, stripFiller bool) []byte {
	if len(ciphertext)%2 != 0 {
		panic(fmt.Sprintf("playfair: odd-length ciphertext (%d symbols)", len(ciphertext)))
	}
	sq := newSquare(key)
	out := make([]byte, 0, len(ciphertext))
	for i := 0; i < len(ciphertext); i += 2 {
		p, q := sq.pair(ciphertext[i], ciphertext[i+1])
		out = append(out, p)
		if stripFiller && q == Filler {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Normalize prepares raw ciphertext for Decrypt: letters are upper-cased,
// J becomes I, and everything that is not a letter is dropped.
//
// Expectations:
//   - "ab cd-ej" normalises to "ABCDEI"
//   - Returns ErrInvalidCiphertext when no letters remain
//   - Returns ErrInvalidCiphertext when the letter count is odd
func Normalize(text string) ([]byte, error) {
	out := make([]byte, 0, len(text))
	for _, r := range strings.ToUpper(text) {
		if r < 'A' || r > 'Z' {
			continue
		}
		if r == 'J' {
			r = 'I'
		}
		out = append(out, byte(r))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no letters", ErrInvalidCiphertext)
	}
	if len(out)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrInvalidCiphertext, len(out))
	}
	return out, nil
}
