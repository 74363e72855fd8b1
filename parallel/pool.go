// Package parallel runs data-parallel lanes over a persistent worker pool.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/multierr"
)

// DefaultThreshold is the minimum lane count dispatched to workers.
// Below this, running inline is faster than the channel round trips.
const DefaultThreshold = 64

// ChunkFunc processes lanes [start, end) on behalf of worker.
type ChunkFunc func(worker, start, end int) error

// workChunk represents a range of lanes for a worker to process.
type workChunk struct {
	ctx        context.Context
	start, end int
	fn         ChunkFunc
}

// Pool holds persistent worker goroutines.
//
// Run is the only synchronisation point between phases: it returns after
// every dispatched chunk has completed, so writes made by one Run are visible
// to the next.
type Pool struct {
	numWorkers int
	threshold  int

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan error     // workers report chunk completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
	runMu    sync.Mutex     // one Run at a time
}

// NewPool creates a pool. workers <= 0 uses GOMAXPROCS; threshold <= 0 uses
// DefaultThreshold. Workers start lazily on the first parallel Run.
func NewPool(workers, threshold int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Pool{
		numWorkers: workers,
		threshold:  threshold,
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.numWorkers
}

// startWorkers launches persistent worker goroutines.
func (p *Pool) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan error, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			if err := chunk.ctx.Err(); err != nil {
				p.doneChan <- err
				continue
			}
			p.doneChan <- chunk.fn(workerID, chunk.start, chunk.end)
		}
	}
}

// Run splits lanes [0, n) into one contiguous chunk per worker and blocks
// until all chunks are done. Errors from all chunks are combined.
func (p *Pool) Run(ctx context.Context, n int, fn ChunkFunc) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	if n < p.threshold || p.numWorkers == 1 {
		return fn(0, 0, n)
	}

	// Ensure workers are running
	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	// Dispatch chunks to workers
	chunksDispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}

		p.workChan <- workChunk{ctx: ctx, start: start, end: end, fn: fn}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	var errs error
	for i := 0; i < chunksDispatched; i++ {
		errs = multierr.Append(errs, <-p.doneChan)
	}
	return errs
}

// Close signals all workers to exit and waits for them.
func (p *Pool) Close() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}
