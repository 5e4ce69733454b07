package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/haricheung/playcrack/internal/config"
	"github.com/haricheung/playcrack/internal/keystore"
	"github.com/haricheung/playcrack/internal/runlog"
)

const trainingText = `IT WAS THE BEST OF TIMES IT WAS THE WORST OF TIMES IT WAS THE AGE OF
WISDOM IT WAS THE AGE OF FOOLISHNESS IT WAS THE EPOCH OF BELIEF IT WAS THE EPOCH
OF INCREDULITY IT WAS THE SEASON OF LIGHT IT WAS THE SEASON OF DARKNESS`

// "hide the gold in the tree stump" under key PLAYFIREXMBCDGHKNOQSTUVWZ.
var testInput = strings.Repeat("bmodz bxdna bekud muixm mouvi f ", 2)

// writeTrigrams counts trigrams of trainingText into a file and returns its path.
func writeTrigrams(t *testing.T, dir string) string {
	t.Helper()
	letters := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r
		}
		return -1
	}, trainingText)
	counts := make(map[string]int)
	for i := 0; i+3 <= len(letters); i++ {
		counts[letters[i:i+3]]++
	}
	grams := make([]string, 0, len(counts))
	for g := range counts {
		grams = append(grams, g)
	}
	sort.Strings(grams)
	var sb strings.Builder
	for _, g := range grams {
		fmt.Fprintf(&sb, "%s %d\n", g, counts[g])
	}
	path := filepath.Join(dir, "trigrams.txt")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// newTestSession builds a session with a small schedule, a real key store and run logs under a temp dir.
func newTestSession(t *testing.T, opts cliOptions) *session {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Models: config.ModelConfig{Trigrams: writeTrigrams(t, dir), Scale: 0.08},
		Search: config.SearchConfig{TempStart: 1.0, TempStep: 0.5, Iterations: 200, Restarts: 2, Seed: 42, ReportEvery: 50},
		App:    config.AppConfig{CacheDir: dir, LogLevel: "error"},
	}
	scorer, err := loadScorer(cfg)
	if err != nil {
		t.Fatalf("loadScorer: %v", err)
	}
	store, err := keystore.Open(cfg.KeyStoreDir())
	if err != nil {
		t.Fatalf("keystore.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return &session{
		cfg:    cfg,
		opts:   opts,
		scorer: scorer,
		store:  store,
		runs:   runlog.NewRegistry(cfg.RunLogDir()),
		out:    io.Discard,
		width:  80,
	}
}

// --- parseFlags ---

func TestParseFlags_OverridesConfig(t *testing.T) {
	// Flags replace environment values; unset flags keep them
	cfg := &config.Config{
		Search: config.SearchConfig{TempStart: 18, Iterations: 10000, Restarts: 1},
		App:    config.AppConfig{LogLevel: "info"},
	}
	opts, rest, err := parseFlags(cfg, []string{"-restarts", "4", "-timeout", "2m", "-fresh", "-key", "playfirexmbcdghknoqstuvwz", "ABCD", "EF"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Search.Restarts != 4 || cfg.Search.Timeout != 2*time.Minute {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Search.TempStart != 18 || cfg.Search.Iterations != 10000 || cfg.App.LogLevel != "info" {
		t.Errorf("unset flags changed config: %+v %+v", cfg.Search, cfg.App)
	}
	if !opts.fresh || opts.key != "playfirexmbcdghknoqstuvwz" {
		t.Errorf("opts = %+v", opts)
	}
	if len(rest) != 2 || rest[0] != "ABCD" {
		t.Errorf("rest = %v", rest)
	}
}

func TestParseFlags_UnknownFlagFails(t *testing.T) {
	var stderr bytes.Buffer
	if _, _, err := parseFlags(&config.Config{}, []string{"-nope"}, &stderr); err == nil {
		t.Error("expected error for unknown flag")
	}
	if !strings.Contains(stderr.String(), "usage: playcrack") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}

// --- oneShotInput ---

func TestOneShotInput(t *testing.T) {
	// -file wins over positional arguments; no input at all means REPL
	path := filepath.Join(t.TempDir(), "ct.txt")
	if err := os.WriteFile(path, []byte("GWGW\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := oneShotInput(cliOptions{file: path}, []string{"ABCD"}); err != nil || got != "GWGW\n" {
		t.Errorf("file input = (%q, %v)", got, err)
	}
	if got, _ := oneShotInput(cliOptions{}, []string{"AB", "CD"}); got != "AB CD" {
		t.Errorf("args input = %q", got)
	}
	if got, _ := oneShotInput(cliOptions{}, nil); got != "" {
		t.Errorf("no input = %q, want empty", got)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	_ = os.WriteFile(empty, []byte("  \n"), 0o644)
	if _, err := oneShotInput(cliOptions{file: empty}, nil); err == nil {
		t.Error("expected error for empty file")
	}
}

// --- loadScorer ---

func TestLoadScorer_OrderMismatch(t *testing.T) {
	// A trigram file configured as quadgrams is rejected
	dir := t.TempDir()
	cfg := &config.Config{Models: config.ModelConfig{Quadgrams: writeTrigrams(t, dir), Scale: 0.08}}
	if _, err := loadScorer(cfg); err == nil {
		t.Error("expected order mismatch error")
	}
}

// --- crack ---

func TestCrack_StoresResultAndWritesRunLogs(t *testing.T) {
	// A search merges both restarts, stores its best key and leaves one JSONL log per run
	s := newTestSession(t, cliOptions{})
	result, err := s.crack(context.Background(), testInput)
	if err != nil {
		t.Fatalf("crack: %v", err)
	}
	if result.Runs != 2 {
		t.Errorf("Runs = %d, want 2", result.Runs)
	}
	if len(result.BestKey) != 25 || result.Plaintext == "" || result.RawPlaintext == "" {
		t.Errorf("incomplete result: %+v", result)
	}

	rec, ok, err := s.store.Best([]byte(strings.ToUpper(strings.ReplaceAll(testInput, " ", ""))))
	if err != nil || !ok {
		t.Fatalf("stored best = (%v, %v)", ok, err)
	}
	if rec.Key != result.BestKey || rec.Fitness != result.BestFitness {
		t.Errorf("stored %+v, result %+v", rec, result)
	}

	entries, err := os.ReadDir(s.cfg.RunLogDir())
	if err != nil {
		t.Fatalf("run log dir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("run logs = %d, want 2", len(entries))
	}
}

func TestCrack_RejectsBadInput(t *testing.T) {
	s := newTestSession(t, cliOptions{})
	if _, err := s.crack(context.Background(), "ABC"); err == nil {
		t.Error("expected error for odd-length ciphertext")
	}
	if _, err := s.crack(context.Background(), "123 !"); err == nil {
		t.Error("expected error for input without letters")
	}
}

func TestCrack_CancelledReturnsBestSoFar(t *testing.T) {
	// A cancelled search still yields a result and records it as stopped
	s := newTestSession(t, cliOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := s.crack(ctx, testInput)
	if err == nil {
		t.Fatal("expected context error")
	}
	if !result.Stopped || result.BestKey == "" {
		t.Errorf("result = %+v, want stopped with a key", result)
	}
}

// --- startKey ---

func TestStartKey_Precedence(t *testing.T) {
	// -key beats the stored best; -fresh ignores the stored best; otherwise the store seeds
	s := newTestSession(t, cliOptions{})
	ct := []byte("BMODZBXDNABEKUDMUIXMMOUVIF")
	if k, err := s.startKey(ct); err != nil || k != nil {
		t.Errorf("empty store start = (%v, %v), want random", k, err)
	}

	if _, err := s.store.Put(ct, keystore.Record{Key: "ZWVUTSQONKHGDCBMXERIFYALP", Fitness: -1}); err != nil {
		t.Fatal(err)
	}
	k, err := s.startKey(ct)
	if err != nil || k == nil || k.String() != "ZWVUTSQONKHGDCBMXERIFYALP" {
		t.Errorf("stored start = (%v, %v)", k, err)
	}

	s.opts.fresh = true
	if k, _ := s.startKey(ct); k != nil {
		t.Errorf("fresh start = %v, want nil", k)
	}

	s.opts.key = "PLAYFIREXMBCDGHKNOQSTUVWZ"
	if k, _ := s.startKey(ct); k == nil || k.String() != "PLAYFIREXMBCDGHKNOQSTUVWZ" {
		t.Errorf("explicit start = %v", k)
	}

	s.opts.key = "TOOSHORT"
	if _, err := s.startKey(ct); err == nil {
		t.Error("expected error for invalid -key")
	}
}

// --- history ---

func TestHistory_ListsStoredRuns(t *testing.T) {
	s := newTestSession(t, cliOptions{})
	if h, _ := s.history(testInput); !strings.Contains(h, "no stored runs") {
		t.Errorf("history before any run = %q", h)
	}
	if _, err := s.crack(context.Background(), testInput); err != nil {
		t.Fatalf("crack: %v", err)
	}
	h, err := s.history(testInput)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.HasPrefix(h, "[1] ") {
		t.Errorf("history = %q", h)
	}
}
