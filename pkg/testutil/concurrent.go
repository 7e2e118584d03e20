package testutil

import (
	"errors"
	"sync"

	"certledger/internal/sentinel"
)

// ConcurrentResult counts outcomes of a concurrent run by sentinel category.
type ConcurrentResult struct {
	Successes     int32
	Conflicts     int32
	NotFounds     int32
	InvalidStates int32
	Errors        int32
}

// Total returns the number of calls made.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.NotFounds + r.InvalidStates + r.Errors
}

// RunConcurrent calls fn from n goroutines at once and tallies the results.
// The goroutines are released together so the calls genuinely race.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		mu     sync.Mutex
		result ConcurrentResult
		wg     sync.WaitGroup
	)
	start := make(chan struct{})
	for i := range n {
		wg.Go(func() {
			<-start
			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Successes++
			case errors.Is(err, sentinel.ErrConflict):
				result.Conflicts++
			case errors.Is(err, sentinel.ErrNotFound):
				result.NotFounds++
			case errors.Is(err, sentinel.ErrInvalidState):
				result.InvalidStates++
			default:
				result.Errors++
			}
		})
	}
	close(start)
	wg.Wait()
	return &result
}
