// writer/writer_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package writer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mmp/tapebak/device/filedev"
	"github.com/mmp/tapebak/postprocess"
)

func TestRunWritesRecordsInOrder(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tape.bin")
	dev, err := filedev.Open(p, 0)
	if err != nil {
		t.Fatalf("Open: %+v", err)
	}

	w := New(dev, NoSwap{}, nil)

	in := make(chan postprocess.Record, DefaultQueueDepth)
	go func() {
		in <- postprocess.Record{Index: 0, Bytes: []byte("first")}
		in <- postprocess.Record{Index: 1, Bytes: []byte("second")}
		close(in)
	}()

	if err := w.Run(context.Background(), in); err != nil {
		t.Fatalf("Run: %+v", err)
	}

	st := w.Status()
	if st.ChunksWritten != 2 {
		t.Errorf("got %d chunks written, want 2", st.ChunksWritten)
	}
	if st.BytesWritten != uint64(len("first")+len("second")) {
		t.Errorf("got %d bytes written, want %d", st.BytesWritten, len("first")+len("second"))
	}

	dev.Rewind()
	buf := make([]byte, 32)
	n, err := dev.Read(buf)
	if err != nil {
		t.Fatalf("Read: %+v", err)
	}
	if string(buf[:n]) != "first" {
		t.Errorf("got %q, want %q", buf[:n], "first")
	}
}

func TestRunAbortsOnCanceledContext(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tape.bin")
	dev, err := filedev.Open(p, 0)
	if err != nil {
		t.Fatalf("Open: %+v", err)
	}
	w := New(dev, NoSwap{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan postprocess.Record)
	if err := w.Run(ctx, in); err != ErrAborted {
		t.Errorf("got %v, want ErrAborted", err)
	}
}

func TestEndOfMediumWithNoSwapperFails(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tape.bin")
	dev, err := filedev.Open(p, 8)
	if err != nil {
		t.Fatalf("Open: %+v", err)
	}
	w := New(dev, NoSwap{}, nil)

	in := make(chan postprocess.Record, 1)
	in <- postprocess.Record{Index: 0, Bytes: make([]byte, 64)}
	close(in)

	if err := w.Run(context.Background(), in); err == nil {
		t.Fatalf("expected an error when the medium fills with no swapper configured")
	}
}
