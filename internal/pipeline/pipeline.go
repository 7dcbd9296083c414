// Package pipeline runs the batch stages: wallet discovery, transfer
// extraction and scoring. Stages process independent units in parallel and
// never let one bad wallet sink the batch.
package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"

	"walletintel/internal/provider"
)

// Summary reports one stage run. A unit is one wallet (or one seed address);
// failed units keep their previously persisted state.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Transient int
}

// Ok reports whether every unit succeeded.
func (s Summary) Ok() bool { return s.Failed == 0 }

// runParallel fans units out over a bounded worker pool. fn errors are
// counted, logged and swallowed; ctx cancellation stops scheduling and is
// returned.
func runParallel[T any](ctx context.Context, stage string, units []T, workers int, fn func(context.Context, T) error) (Summary, error) {
	sum := Summary{Total: len(units)}
	if len(units) == 0 {
		return sum, nil
	}
	if workers <= 0 {
		workers = 1
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, workers)
	)

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(unit T) {
			defer wg.Done()
			defer func() { <-sem }()

			err := fn(ctx, unit)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				sum.Succeeded++
				return
			}
			sum.Failed++
			var ie *provider.IngestError
			if errors.As(err, &ie) && ie.Transient {
				sum.Transient++
			}
			log.Printf("[%s] unit failed: %v", stage, err)
		}(u)
	}
	wg.Wait()

	// Units never scheduled because of cancellation still count as failed:
	// the stage did not finish its work.
	if err := ctx.Err(); err != nil {
		mu.Lock()
		sum.Failed += sum.Total - sum.Succeeded - sum.Failed
		mu.Unlock()
		return sum, err
	}
	return sum, nil
}
