// writer/writer.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package writer implements the final pipeline stage: it drains
// postprocess.Record values in order and writes each one as a single
// tape record plus file mark to a device.Device, handling end-of-medium
// by asking a changer to mount a fresh volume and retrying the record
// that failed.
package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmp/tapebak/changer"
	"github.com/mmp/tapebak/device"
	"github.com/mmp/tapebak/postprocess"
	"github.com/mmp/tapebak/tlog"
)

// DefaultQueueDepth is the writer input channel's buffer size.
const DefaultQueueDepth = 2

// MediumSwapper mounts a fresh medium into drive 0 after the current
// one fills, e.g. by moving a full slot into the drive via a changer.
// Grounded on changer.Changer's Move/FirstFullSlot, kept as an interface
// so tests and non-changer setups (a single pre-loaded device) can
// supply a no-op implementation.
type MediumSwapper interface {
	SwapMedium() error
}

// ChangerSwapper adapts a changer.Changer into a MediumSwapper for a
// single-drive configuration.
type ChangerSwapper struct {
	Changer *changer.Changer
}

func (c *ChangerSwapper) SwapMedium() error {
	addr, err := c.Changer.FirstFullSlot()
	if err != nil {
		return fmt.Errorf("writer: no replacement medium available: %w", err)
	}
	return c.Changer.Move(changer.Slot, addr, changer.Drive, 0)
}

// NoSwap is a MediumSwapper that always reports failure; appropriate
// when a job is run against a single medium with no changer.
type NoSwap struct{}

func (NoSwap) SwapMedium() error {
	return errors.New("writer: end of medium reached and no changer is configured")
}

// ErrAborted is returned by Run when ctx was canceled mid-job.
var ErrAborted = errors.New("writer: job aborted")

// Status reports cumulative writer progress, for a job's observability
// surface.
type Status struct {
	ChunksWritten uint64
	BytesWritten  uint64
	MediumSwaps   int
}

// Writer drains chunk records onto a sequential device.
type Writer struct {
	Device  device.Device
	Swapper MediumSwapper
	Log     *tlog.Logger

	status Status
}

// New returns a Writer targeting dev, swapping media via swapper when
// an end-of-medium condition is hit. swapper may be NoSwap{}.
func New(dev device.Device, swapper MediumSwapper, log *tlog.Logger) *Writer {
	return &Writer{Device: dev, Swapper: swapper, Log: log}
}

// Status returns a snapshot of progress so far.
func (w *Writer) Status() Status {
	return w.status
}

// Run writes every Record received on in, in the order received,
// until in is closed or ctx is canceled. A postprocess.Processor
// guarantees in delivers records in strictly increasing chunk-index
// order, which Run depends on: the medium's record sequence must match
// the chunk sequence for restore to work.
func (w *Writer) Run(ctx context.Context, in <-chan postprocess.Record) error {
	for {
		select {
		case <-ctx.Done():
			return ErrAborted
		case rec, ok := <-in:
			if !ok {
				return nil
			}
			if err := w.writeRecord(rec); err != nil {
				return err
			}
		}
	}
}

func (w *Writer) writeRecord(rec postprocess.Record) error {
	for {
		_, err := w.Device.Write(rec.Bytes, true)
		if err == nil {
			w.status.ChunksWritten++
			w.status.BytesWritten += uint64(len(rec.Bytes))
			return nil
		}
		if !errors.Is(err, device.ErrEndOfMedium) {
			return fmt.Errorf("writer: chunk %d: %w", rec.Index, err)
		}

		w.Log.Warning("end of medium writing chunk %d, swapping media", rec.Index)
		if err := w.swapAndRewind(); err != nil {
			return fmt.Errorf("writer: chunk %d: %w", rec.Index, err)
		}
		// Loop around and retry the same record on the freshly mounted
		// medium.
	}
}

func (w *Writer) swapAndRewind() error {
	if err := w.Device.Eject(); err != nil {
		return err
	}
	if err := w.Swapper.SwapMedium(); err != nil {
		return err
	}
	if err := w.Device.Rewind(); err != nil {
		return err
	}
	w.status.MediumSwaps++
	return nil
}
