package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/haricheung/playcrack/internal/config"
)

// cliOptions holds the flags that are not part of config.Config.
type cliOptions struct {
	key        string // explicit start key
	fresh      bool   // ignore the stored best key
	file       string // read ciphertext from file
	cpuprofile string
	quiet      bool
}

// parseFlags overrides cfg with command-line flags and returns the remaining
// arguments. Flag defaults are the values already loaded from the environment,
// so an unset flag leaves cfg untouched.
func parseFlags(cfg *config.Config, args []string, stderr io.Writer) (cliOptions, []string, error) {
	var o cliOptions
	fs := flag.NewFlagSet("playcrack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: playcrack [flags] [ciphertext...]\n\nWith no ciphertext and no -file, starts an interactive prompt.\n\n")
		fs.PrintDefaults()
	}

	m, s, a := &cfg.Models, &cfg.Search, &cfg.App
	fs.StringVar(&m.Trigrams, "trigrams", m.Trigrams, "trigram counts file")
	fs.StringVar(&m.Quadgrams, "quadgrams", m.Quadgrams, "quadgram counts file")
	fs.StringVar(&m.Quintgrams, "quintgrams", m.Quintgrams, "quintgram counts file")
	fs.Float64Var(&m.Scale, "scale", m.Scale, "fitness scale factor")
	fs.Float64Var(&s.TempStart, "temp-start", s.TempStart, "starting temperature")
	fs.Float64Var(&s.TempStep, "temp-step", s.TempStep, "temperature decrement per step")
	fs.IntVar(&s.Iterations, "iterations", s.Iterations, "inner iterations per temperature")
	fs.IntVar(&s.Restarts, "restarts", s.Restarts, "independent runs executed in parallel")
	fs.Uint64Var(&s.Seed, "seed", s.Seed, "random seed (0 = time-based)")
	fs.IntVar(&s.MaxIterations, "max-iterations", s.MaxIterations, "total iteration budget per run (0 = unlimited)")
	fs.DurationVar(&s.Timeout, "timeout", s.Timeout, "wall-clock limit per search (0 = none)")
	fs.IntVar(&s.ReportEvery, "report-every", s.ReportEvery, "progress sample interval in iterations (0 = off)")
	fs.StringVar(&a.CacheDir, "cache-dir", a.CacheDir, "directory for run logs, key store and history")
	fs.StringVar(&a.LogLevel, "log-level", a.LogLevel, "debug, info, warn or error")

	fs.StringVar(&o.key, "key", "", "start from this 25-letter key")
	fs.BoolVar(&o.fresh, "fresh", false, "do not seed from the stored best key")
	fs.StringVar(&o.file, "file", "", "read ciphertext from file")
	fs.StringVar(&o.cpuprofile, "cpuprofile", "", "write cpu profile to file")
	fs.BoolVar(&o.quiet, "quiet", false, "hide new-best lines")

	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	m.Trigrams = config.ExpandHome(m.Trigrams)
	m.Quadgrams = config.ExpandHome(m.Quadgrams)
	m.Quintgrams = config.ExpandHome(m.Quintgrams)
	a.CacheDir = config.ExpandHome(a.CacheDir)
	o.file = config.ExpandHome(o.file)
	return o, fs.Args(), nil
}
