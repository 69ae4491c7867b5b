// Package parallel splits row-wise work across CPU cores.
package parallel

import (
	"runtime"
	"sync"
)

// DefaultThreshold is the row count below which ParallelizeWithThreshold
// stays sequential. Scaling a few hundred 30-wide rows is faster on one core.
const DefaultThreshold = 1000

// Parallelize divides items into contiguous [start, end) ranges, one per CPU
// core, and runs fn on each range concurrently. It returns when all ranges
// are done. fn must only touch rows inside its own range.
func Parallelize(items int, fn func(start, end int)) {
	parallelize(items, runtime.NumCPU(), fn)
}

// ParallelizeWithThreshold runs fn(0, items) on the calling goroutine when
// items <= threshold and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	Parallelize(items, fn)
}

func parallelize(items, numWorkers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
