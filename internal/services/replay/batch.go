package replay

import (
	"context"
	"sync"

	"SMCScan/internal/domain/models"
)

// Job pairs a setup with the bars that followed it.
type Job struct {
	Setup  models.Setup
	Future []models.Bar
}

// RunBatch replays jobs on a pool of workers. Results come back in input
// order. Cancellation is honored between setups only; when ctx is cancelled
// the results of the setups that completed are returned with ctx.Err().
func (e *Engine) RunBatch(ctx context.Context, jobs []Job, workers int) ([]models.ReplayResult, error) {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	results := make([]models.ReplayResult, len(jobs))
	done := make([]bool, len(jobs))
	idx := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				if ctx.Err() != nil {
					continue
				}
				results[i] = e.Replay(jobs[i].Setup, jobs[i].Future)
				done[i] = true
			}
		}()
	}

feed:
	for i := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case idx <- i:
		}
	}
	close(idx)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		completed := make([]models.ReplayResult, 0, len(jobs))
		for i, ok := range done {
			if ok {
				completed = append(completed, results[i])
			}
		}
		return completed, err
	}
	return results, nil
}
