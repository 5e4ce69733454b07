// Package keystore persists the best Playfair key found for each ciphertext,
// plus a history of every finished search, in LevelDB. A later search on the
// same ciphertext can resume from the stored key instead of a random one.
package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB key prefix scheme, "|" separated.
//
//	b|<digest>                      → Record JSON (best key for the ciphertext)
//	h|<digest>|<unix-nanos>|<runid> → Record JSON (one entry per finished search)
const (
	prefixBest    = "b|"
	prefixHistory = "h|"
)

// Record is one stored search outcome.
type Record struct {
	RunID     string  `json:"run_id"`
	Key       string  `json:"key"`
	Fitness   float64 `json:"fitness"`
	Seed      uint64  `json:"seed"`
	Plaintext string  `json:"plaintext,omitempty"`
	Stopped   bool    `json:"stopped,omitempty"`
	CreatedAt string  `json:"created_at"` // RFC3339Nano
}

// Store is the LevelDB-backed key store. Safe for concurrent use.
type Store struct {
	db *leveldb.DB
	mu sync.Mutex // serializes Put's read-compare-write
}

// Open opens (or creates) a LevelDB database at path.
// LevelDB is single-writer: a second process on the same path fails here.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open keystore %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. Safe on a nil *Store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Digest identifies a ciphertext: hex SHA-256 of its normalized letters.
func Digest(ciphertext []byte) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(string(ciphertext))))
	return hex.EncodeToString(sum[:])
}

// Best returns the best stored record for ciphertext.
//
// Expectations:
//   - Returns ok=false and a nil error when nothing is stored
//   - Returns ok=false and nil on a nil *Store
//   - Returns an error only on a LevelDB or decode failure
func (s *Store) Best(ciphertext []byte) (Record, bool, error) {
	if s == nil {
		return Record{}, false, nil
	}
	data, err := s.db.Get([]byte(prefixBest+Digest(ciphertext)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, false, fmt.Errorf("decode best record: %w", err)
	}
	return r, true, nil
}

// Put appends r to the ciphertext's history and replaces the best record
// when r scores strictly higher. Both writes go in one batch.
//
// Expectations:
//   - Assigns RunID and CreatedAt if missing
//   - Always appends a history entry
//   - Returns improved=true only when the best record changed
//   - A nil *Store is a no-op
func (s *Store) Put(ciphertext []byte, r Record) (improved bool, err error) {
	if s == nil {
		return false, nil
	}
	now := time.Now().UTC()
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = now.Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	digest := Digest(ciphertext)
	cur, ok, err := s.Best(ciphertext)
	if err != nil {
		return false, err
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(historyKey(digest, now, r.RunID)), data)
	if !ok || r.Fitness > cur.Fitness {
		batch.Put([]byte(prefixBest+digest), data)
		improved = true
	}
	if err := s.db.Write(batch, nil); err != nil {
		return false, err
	}
	if improved {
		slog.Info("[KEYSTORE] new best stored", "digest", digest[:12], "key", r.Key, "fitness", r.Fitness)
	}
	return improved, nil
}

// History returns every stored outcome for ciphertext, oldest first.
//
// Expectations:
//   - Returns an empty slice (not error) when nothing is stored
//   - Skips entries that fail to decode
//   - Returns error only on LevelDB iteration failure
func (s *Store) History(ciphertext []byte) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	prefix := prefixHistory + Digest(ciphertext) + "|"
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var out []Record
	for iter.Next() {
		var r Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			slog.Warn("[KEYSTORE] skipping undecodable history entry", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

// historyKey zero-pads the timestamp so lexical order is chronological.
func historyKey(digest string, t time.Time, runID string) string {
	return fmt.Sprintf("%s%s|%020d|%s", prefixHistory, digest, t.UnixNano(), runID)
}
