// postprocess/postprocess.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package postprocess implements the chunk post-processor: it seals
// each packed chunk with its place in the job's chunk stream
// and stamps the job identifier into its header, using a worker pool to
// do the (CPU-bound) header/entry-table serialization while still
// handing chunks to the writer strictly in increasing chunk-index
// order.
package postprocess

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mmp/tapebak/chunk"
)

// DefaultWorkers is the default worker-pool size, mirroring the
// original post-processor's fixed thread pool.
const DefaultWorkers = 4

// Record is a sealed, encoded chunk ready for the writer.
type Record struct {
	Index uint64
	Bytes []byte
}

// Processor assigns monotonically increasing chunk indices and job
// identifiers to chunks produced by the packer.
type Processor struct {
	JobUUID uuid.UUID
	Workers int

	counter uint64
}

// New returns a Processor for the given job, with the default worker
// count when workers <= 0.
func New(jobUUID uuid.UUID, workers int) *Processor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Processor{JobUUID: jobUUID, Workers: workers}
}

// Run drains in, seals and encodes each chunk concurrently across the
// worker pool, and emits Records on out strictly in increasing Index
// order — the same out-of-order-arrival, in-order-emission pattern used
// elsewhere in this codebase for parallel reads. Run returns once in is
// closed, all workers have finished, and every record has been emitted
// (or ctx is done, whichever comes first).
func (p *Processor) Run(ctx context.Context, in <-chan *chunk.Chunk, out chan<- Record) error {
	type result struct {
		idx  uint64
		rec  Record
		err  error
	}
	done := make(chan result, p.Workers)

	// Indices are assigned by this single dispatcher in the order chunks
	// arrive on in, so chunk order on the medium matches packer order.
	type task struct {
		idx uint64
		c   *chunk.Chunk
	}
	tasks := make(chan task)
	go func() {
		defer close(tasks)
		for c := range in {
			idx := atomic.AddUint64(&p.counter, 1) - 1
			select {
			case tasks <- task{idx: idx, c: c}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-tasks:
					if !ok {
						return
					}
					c, idx := t.c, t.idx
					if err := c.Seal(p.JobUUID, idx); err != nil {
						errOnce.Do(func() { firstErr = err })
						done <- result{idx: idx, err: err}
						continue
					}
					buf, err := c.Encode()
					if err != nil {
						errOnce.Do(func() { firstErr = err })
						done <- result{idx: idx, err: err}
						continue
					}
					done <- result{idx: idx, rec: Record{Index: idx, Bytes: buf}}
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	pending := make(map[uint64]Record)
	next := uint64(0)
	for r := range done {
		if r.err != nil {
			continue
		}
		pending[r.idx] = r.rec
		for {
			rec, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			select {
			case out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
			next++
		}
	}

	return firstErr
}
