package features

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/maastricht-university/sleepsense/signal"
)

// ExtractAll computes vectors for ws on up to workers goroutines and returns
// them in window order. On failure it returns the error of the earliest
// failing window.
func (e *Extractor) ExtractAll(ws []signal.Window, workers int) ([]Vector, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(ws) {
		workers = len(ws)
	}
	out := make([]Vector, len(ws))
	failures := make([]error, len(ws))
	if len(ws) == 0 {
		return out, nil
	}

	var failed atomic.Bool
	jobs := make(chan int, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				v, err := e.Extract(ws[i])
				if err != nil {
					failures[i] = err
					failed.Store(true)
					continue
				}
				out[i] = v
			}
		}()
	}

	// Every window before a failing one has been dispatched, so the first
	// recorded failure below is the earliest one.
	for i := range ws {
		if failed.Load() {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range failures {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
