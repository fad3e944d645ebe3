package gc

import "sync"

// runWorkers fans a task out across n goroutines and waits for all of
// them. Stand-in for a shared worker pool: the engine's tasks are
// self-balancing through claim-next iterators, so plain fan-out suffices.
func runWorkers(n int, task func(worker int)) {
	if n <= 1 {
		task(0)
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(worker int) {
			defer wg.Done()
			task(worker)
		}(i)
	}
	wg.Wait()
}
