package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/haricheung/playcrack/internal/config"
	"github.com/haricheung/playcrack/internal/keystore"
	"github.com/haricheung/playcrack/internal/runlog"
	"github.com/haricheung/playcrack/internal/types"
	"github.com/haricheung/playcrack/internal/ui"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	opts, rest, err := parseFlags(cfg, args, os.Stderr)
	if err != nil {
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if opts.cpuprofile != "" {
		f, err := os.Create(opts.cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cpuprofile: %v\n", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "cpuprofile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	scorer, err := loadScorer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.App.CacheDir, 0o755); err != nil {
		slog.Warn("[MAIN] could not create cache dir", "dir", cfg.App.CacheDir, "error", err)
	}
	// LevelDB is single-writer; a second playcrack on the same cache dir
	// runs without seeding or persistence rather than failing.
	store, err := keystore.Open(cfg.KeyStoreDir())
	if err != nil {
		slog.Warn("[MAIN] key store unavailable; results will not be kept", "error", err)
	}
	defer store.Close()

	s := &session{
		cfg:    cfg,
		opts:   opts,
		scorer: scorer,
		store:  store,
		runs:   runlog.NewRegistry(cfg.RunLogDir()),
		out:    os.Stdout,
		width:  readline.GetScreenWidth(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	input, err := oneShotInput(opts, rest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if input != "" {
		return runOnce(ctx, s, input)
	}
	if err := runREPL(ctx, s); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// oneShotInput returns the ciphertext from -file or the positional
// arguments, or "" to start the REPL.
func oneShotInput(opts cliOptions, rest []string) (string, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("%s: empty ciphertext", opts.file)
		}
		return string(data), nil
	}
	return strings.Join(rest, " "), nil
}

func runOnce(ctx context.Context, s *session, input string) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	result, err := s.crack(ctx, input)
	if result.BestKey != "" {
		printResult(s.out, result, s.width)
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(os.Stderr, "search stopped early: %v\n", err)
		return 130
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
}

func runREPL(ctx context.Context, s *session) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "playcrack> ",
		HistoryFile:     s.cfg.HistoryFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		// Unblocks Readline on SIGTERM.
		select {
		case <-ctx.Done():
			rl.Close()
		case <-done:
		}
	}()

	fmt.Fprintln(s.out, "playcrack: paste a Playfair ciphertext to recover its key ('history' lists stored runs for the last one, 'exit' quits)")

	var last string
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			return nil
		case input == "history":
			if last == "" {
				fmt.Fprintln(s.out, "no ciphertext yet")
				continue
			}
			h, err := s.history(last)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Fprint(s.out, h)
			continue
		}

		// Ctrl-C during a search stops that search only.
		sctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		result, err := s.crack(sctx, input)
		stop()
		if result.BestKey != "" {
			printResult(s.out, result, s.width)
			last = input
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func printResult(w io.Writer, result types.FinalResult, width int) {
	fmt.Fprintln(w, "\n--- Result ---")
	if result.Stopped {
		fmt.Fprintln(w, "(search stopped before the schedule completed; best so far)")
	}
	fmt.Fprint(w, ui.FormatResult(result, width))
}
