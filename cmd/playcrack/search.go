package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haricheung/playcrack/internal/anneal"
	"github.com/haricheung/playcrack/internal/bus"
	"github.com/haricheung/playcrack/internal/config"
	"github.com/haricheung/playcrack/internal/fitness"
	"github.com/haricheung/playcrack/internal/keystore"
	"github.com/haricheung/playcrack/internal/ngram"
	"github.com/haricheung/playcrack/internal/playfair"
	"github.com/haricheung/playcrack/internal/runlog"
	"github.com/haricheung/playcrack/internal/types"
	"github.com/haricheung/playcrack/internal/ui"
)

// session holds what every search in one process shares.
type session struct {
	cfg    *config.Config
	opts   cliOptions
	scorer *fitness.Scorer
	store  *keystore.Store // nil disables seeding and persistence
	runs   *runlog.Registry
	out    io.Writer
	width  int
}

// loadScorer reads every configured n-gram file and combines them with equal weights.
func loadScorer(cfg *config.Config) (*fitness.Scorer, error) {
	var models []*ngram.Model
	for _, mp := range cfg.ModelPaths() {
		m, err := ngram.LoadFile(mp.Path)
		if err != nil {
			return nil, err
		}
		if m.Order() != mp.Order {
			return nil, fmt.Errorf("%s: expected %d-grams, file holds %d-grams", mp.Path, mp.Order, m.Order())
		}
		slog.Info("[MAIN] loaded n-gram model", "order", m.Order(), "entries", m.Len(), "total", m.Total(), "path", mp.Path)
		models = append(models, m)
	}
	return fitness.New(fitness.Config{Models: models, Scale: cfg.Models.Scale})
}

// startKey picks the key a search begins from: -key, then the stored best
// unless -fresh, else nil for a random key.
func (s *session) startKey(ciphertext []byte) (*playfair.Key, error) {
	if s.opts.key != "" {
		k, err := playfair.ParseKey(s.opts.key)
		if err != nil {
			return nil, err
		}
		return &k, nil
	}
	if s.opts.fresh {
		return nil, nil
	}
	rec, ok, err := s.store.Best(ciphertext)
	if err != nil {
		slog.Warn("[MAIN] key store lookup failed; starting from a random key", "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	k, err := playfair.ParseKey(rec.Key)
	if err != nil {
		slog.Warn("[MAIN] stored key is invalid; starting from a random key", "key", rec.Key, "error", err)
		return nil, nil
	}
	slog.Info("[MAIN] seeding from stored best", "key", rec.Key, "fitness", rec.Fitness)
	return &k, nil
}

// crack runs one full search over text. On cancellation or timeout the best
// result found so far is still returned, together with the context error.
func (s *session) crack(ctx context.Context, text string) (types.FinalResult, error) {
	ciphertext, err := playfair.Normalize(text)
	if err != nil {
		return types.FinalResult{}, err
	}
	start, err := s.startKey(ciphertext)
	if err != nil {
		return types.FinalResult{}, err
	}

	if s.cfg.Search.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Search.Timeout)
		defer cancel()
	}

	seed := s.cfg.Search.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	b := bus.New()
	logCh := b.Subscribe(types.MsgRunBegin, types.MsgTemperatureStep, types.MsgNewBest, types.MsgRunEnd)
	display := ui.New(b.Tap(), s.out, s.width)
	display.SetQuiet(s.opts.quiet)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runs.Follow(logCh)
	}()
	go func() {
		defer wg.Done()
		display.Run(context.Background())
	}()

	opts := anneal.Options{
		Schedule: anneal.Schedule{
			Start:      s.cfg.Search.TempStart,
			Step:       s.cfg.Search.TempStep,
			Iterations: s.cfg.Search.Iterations,
		},
		Seed:          seed,
		StartKey:      start,
		MaxIterations: s.cfg.Search.MaxIterations,
		Publisher:     b,
		ReportEvery:   s.cfg.Search.ReportEvery,
	}
	best, all, runErr := anneal.RunRestarts(ctx, ciphertext, s.scorer, opts, s.cfg.Search.Restarts)
	if all == nil {
		// Validation failed before any run started.
		b.Close()
		wg.Wait()
		return types.FinalResult{}, runErr
	}

	final := types.FinalResult{
		RunID:        best.RunID,
		Runs:         len(all),
		BestKey:      best.BestKey.String(),
		BestFitness:  best.BestFitness,
		Plaintext:    best.Plaintext,
		RawPlaintext: best.RawPlaintext,
		Stopped:      best.Stopped,
	}
	b.Publish(types.Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		From:      types.RoleRestarts,
		RunID:     best.RunID,
		Type:      types.MsgFinalResult,
		Payload:   final,
	})
	b.Close()
	wg.Wait()
	if n := b.Dropped(); n > 0 {
		slog.Debug("[MAIN] progress messages dropped", "count", n)
	}

	if _, err := s.store.Put(ciphertext, keystore.Record{
		RunID:     best.RunID,
		Key:       final.BestKey,
		Fitness:   best.BestFitness,
		Seed:      best.Seed,
		Plaintext: best.Plaintext,
		Stopped:   best.Stopped,
	}); err != nil {
		slog.Error("[MAIN] could not store result", "error", err)
	}

	return final, runErr
}

// history renders the stored outcomes for text, oldest first.
func (s *session) history(text string) (string, error) {
	ciphertext, err := playfair.Normalize(text)
	if err != nil {
		return "", err
	}
	recs, err := s.store.History(ciphertext)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "no stored runs for this ciphertext\n", nil
	}
	var sb strings.Builder
	for i, r := range recs {
		mark := ""
		if r.Stopped {
			mark = " (stopped)"
		}
		fmt.Fprintf(&sb, "[%d] %s  %s  fitness %.4f  seed %d%s\n", i+1, r.CreatedAt, r.Key, r.Fitness, r.Seed, mark)
	}
	return sb.String(), nil
}
