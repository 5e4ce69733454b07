package anneal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haricheung/playcrack/internal/fitness"
)

// RunRestarts runs n independent searches concurrently and returns the best
// result together with every run's result in index order. Run i uses seed
// opts.Seed+i and a fresh run ID; all runs share only the read-only
// ciphertext and scorer. Results are merged after every run has returned.
//
// Expectations:
//   - n < 1 is treated as 1
//   - The best result has the highest BestFitness; ties go to the lowest index
//   - A validation error from any engine is returned before any run starts
//   - On cancellation every run returns its best so far and ctx.Err() is returned
func RunRestarts(ctx context.Context, ciphertext []byte, scorer *fitness.Scorer, opts Options, n int) (Result, []Result, error) {
	if n < 1 {
		n = 1
	}

	engines := make([]*Engine, n)
	for i := range engines {
		o := opts
		o.Seed = opts.Seed + uint64(i)
		o.RunID = ""
		if opts.StartKey != nil {
			k := *opts.StartKey
			o.StartKey = &k
		}
		e, err := New(ciphertext, scorer, o)
		if err != nil {
			return Result{}, nil, err
		}
		engines[i] = e
	}

	results := make([]Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, e := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.Run(ctx)
		}()
	}
	wg.Wait()

	best := 0
	for i := 1; i < n; i++ {
		if results[i].BestFitness > results[best].BestFitness {
			best = i
		}
	}
	slog.Info("[RESTARTS] merged", "runs", n, "best_run", results[best].RunID, "best_fitness", results[best].BestFitness)

	for _, err := range errs {
		if err != nil {
			return results[best], results, err
		}
	}
	return results[best], results, nil
}
