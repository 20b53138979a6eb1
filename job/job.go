// job/job.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package job wires the scan, pack, postprocess, and writer stages into
// a single cancelable backup run and tracks its progress for the HTTP
// control surface. Grounded on the teacher's BackupReader.Restore, which
// similarly drives a multi-stage, channel-connected walk of a directory
// tree to completion.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmp/tapebak/chunk"
	"github.com/mmp/tapebak/device"
	"github.com/mmp/tapebak/filesource"
	"github.com/mmp/tapebak/pack"
	"github.com/mmp/tapebak/postprocess"
	"github.com/mmp/tapebak/scan"
	"github.com/mmp/tapebak/tlog"
	"github.com/mmp/tapebak/writer"
)

// State is a job's coarse lifecycle stage.
type State int

const (
	Pending State = iota
	Scanning
	Packing
	Writing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Scanning:
		return "Scanning"
	case Packing:
		return "Packing"
	case Writing:
		return "Writing"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Status is a point-in-time snapshot of a job's progress, safe to copy
// and serialize.
type Status struct {
	UUID          uuid.UUID
	State         State
	StartTime     time.Time
	LastActivity  time.Time
	ChunksWritten uint64
	BytesWritten  uint64
	MediumSwaps   int
	LastError     string
}

// ChunkQueueDepth and RecordQueueDepth bound how many in-flight chunks
// may sit between stages, so a slow writer applies backpressure to
// packing rather than letting memory use grow unbounded.
const (
	ChunkQueueDepth  = 4
	RecordQueueDepth = writer.DefaultQueueDepth
)

// Job is one backup run: a root directory packed into chunks and
// written out to a sequential device.
type Job struct {
	UUID    uuid.UUID
	Root    string
	Device  device.Device
	Swapper writer.MediumSwapper
	Packer  *pack.Packer
	Scanner *scan.Scanner
	Workers int // postprocess worker count; DefaultWorkers if <= 0
	Log     *tlog.Logger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Job ready to run against dev. swapper may be
// writer.NoSwap{} for a single-medium run.
func New(root string, dev device.Device, swapper writer.MediumSwapper, log *tlog.Logger) *Job {
	id := uuid.New()
	return &Job{
		UUID:    id,
		Root:    root,
		Device:  dev,
		Swapper: swapper,
		Packer:  pack.New(),
		Scanner: scan.New(nil, 0, log),
		Log:     log,
		status:  Status{UUID: id, State: Pending},
	}
}

// Status returns a snapshot of the job's current progress.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Start launches Run in a new goroutine against a context derived from
// parent, so the HTTP control surface can kick off a job and poll its
// Status rather than blocking on it. Cancel and Wait operate on the
// derived context.
func (j *Job) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	j.mu.Lock()
	j.cancel = cancel
	j.done = make(chan struct{})
	done := j.done
	j.mu.Unlock()

	go func() {
		defer close(done)
		j.Run(ctx)
	}()
}

// Cancel requests that a job started with Start stop as soon as
// possible. It is a no-op if the job was not started with Start.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until a job started with Start has finished.
func (j *Job) Wait() {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.status.State = s
	j.status.LastActivity = time.Now()
	j.mu.Unlock()
}

func (j *Job) fail(err error) error {
	j.mu.Lock()
	j.status.State = Failed
	j.status.LastError = err.Error()
	j.status.LastActivity = time.Now()
	j.mu.Unlock()
	return err
}

// Run scans Root, packs it into chunks, and writes those chunks to
// Device, returning once the job completes, fails, or ctx is canceled.
func (j *Job) Run(ctx context.Context) error {
	j.mu.Lock()
	j.status.StartTime = time.Now()
	j.status.LastActivity = j.status.StartTime
	j.mu.Unlock()

	j.setState(Scanning)
	files, err := j.Scanner.Scan(j.Root)
	if err != nil {
		return j.fail(fmt.Errorf("job: scan: %w", err))
	}

	chunkCh := make(chan *chunk.Chunk, ChunkQueueDepth)
	recCh := make(chan postprocess.Record, RecordQueueDepth)

	// runCtx is canceled as soon as any stage fails, so the other two
	// stop blocking on their channel sends/receives and drain instead of
	// hanging forever waiting for a stage that has already exited.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var packErr, postErr, writeErr error
	var wg sync.WaitGroup

	j.setState(Packing)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(chunkCh)
		packErr = j.pack(runCtx, files, chunkCh)
		if packErr != nil {
			cancelRun()
		}
	}()

	proc := postprocess.New(j.UUID, j.Workers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(recCh)
		postErr = proc.Run(runCtx, chunkCh, recCh)
		if postErr != nil {
			cancelRun()
		}
	}()

	j.setState(Writing)
	w := writer.New(j.Device, j.Swapper, j.Log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeErr = w.Run(runCtx, recCh)
		if writeErr != nil {
			cancelRun()
		}
	}()

	wg.Wait()

	j.mu.Lock()
	st := w.Status()
	j.status.ChunksWritten = st.ChunksWritten
	j.status.BytesWritten = st.BytesWritten
	j.status.MediumSwaps = st.MediumSwaps
	j.mu.Unlock()

	for _, err := range []error{packErr, postErr, writeErr} {
		if err != nil {
			return j.fail(err)
		}
	}

	j.setState(Done)
	return nil
}

// pack drives the single-threaded chunk-packing loop: for each scanned
// file, place as much of it as fits into the current chunk, emitting the
// chunk (unsealed; the post-processor seals it) whenever the packer
// reports it has no more room.
func (j *Job) pack(ctx context.Context, files []*filesource.File, chunkCh chan<- *chunk.Chunk) error {
	c := j.Packer.NewChunk()

	emit := func() error {
		if c.NumEntries() == 0 {
			return nil
		}
		select {
		case chunkCh <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
		c = j.Packer.NewChunk()
		return nil
	}

nextFile:
	for _, f := range files {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			status, err := j.Packer.AddFile(c, f)
			if err != nil {
				return fmt.Errorf("job: pack %s: %w", f.Path, err)
			}
			switch status {
			case pack.Success:
				continue nextFile
			case pack.Partial, pack.NoSpace:
				if err := emit(); err != nil {
					return err
				}
				continue
			default:
				return fmt.Errorf("job: pack %s: unexpected status %s", f.Path, status)
			}
		}
	}

	return emit()
}
