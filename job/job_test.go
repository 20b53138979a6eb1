// job/job_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmp/tapebak/device"
	"github.com/mmp/tapebak/device/filedev"
	"github.com/mmp/tapebak/writer"
)

// failingDevice wraps a filedev.Device but fails every Write with a
// plain (non-end-of-medium) error, to exercise the write-stage-fails
// path without ever reaching an end-of-medium/swap condition.
type failingDevice struct {
	*filedev.Device
}

var errSimulatedWriteFailure = errors.New("simulated device write failure")

func (failingDevice) Write(data []byte, appendFilemark bool) (int, error) {
	return 0, errSimulatedWriteFailure
}

func TestRunBacksUpSmallTree(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("more data"), 0644); err != nil {
		t.Fatal(err)
	}

	dev, err := filedev.Open(filepath.Join(t.TempDir(), "tape.bin"), 0)
	if err != nil {
		t.Fatalf("Open: %+v", err)
	}

	j := New(root, dev, writer.NoSwap{}, nil)
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %+v", err)
	}

	st := j.Status()
	if st.State != Done {
		t.Errorf("got state %s, want Done", st.State)
	}
	if st.ChunksWritten == 0 {
		t.Errorf("expected at least one chunk written")
	}
	if st.BytesWritten == 0 {
		t.Errorf("expected nonzero bytes written")
	}
}

func TestRunFailsOnMissingRoot(t *testing.T) {
	dev, err := filedev.Open(filepath.Join(t.TempDir(), "tape.bin"), 0)
	if err != nil {
		t.Fatalf("Open: %+v", err)
	}
	j := New(filepath.Join(t.TempDir(), "nope"), dev, writer.NoSwap{}, nil)
	if err := j.Run(context.Background()); err == nil {
		t.Fatalf("expected an error for a missing root")
	}
	if j.Status().State != Failed {
		t.Errorf("got state %s, want Failed", j.Status().State)
	}
}

func TestRunAbortsOnWriteErrorWithoutHanging(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		if err := os.WriteFile(filepath.Join(root, string(rune('a'+i))+".txt"), make([]byte, 4096), 0644); err != nil {
			t.Fatal(err)
		}
	}

	dev, err := filedev.Open(filepath.Join(t.TempDir(), "tape.bin"), 0)
	if err != nil {
		t.Fatalf("Open: %+v", err)
	}
	var failing device.Device = failingDevice{dev}

	j := New(root, failing, writer.NoSwap{}, nil)

	done := make(chan error, 1)
	go func() { done <- j.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected an error from a failing device")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after the writer failed; pack/postprocess stages deadlocked")
	}

	if j.Status().State != Failed {
		t.Errorf("got state %s, want Failed", j.Status().State)
	}
}

func TestRunCancelation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		if err := os.WriteFile(filepath.Join(root, string(rune('a'+i))+".txt"), make([]byte, 1024), 0644); err != nil {
			t.Fatal(err)
		}
	}

	dev, err := filedev.Open(filepath.Join(t.TempDir(), "tape.bin"), 0)
	if err != nil {
		t.Fatalf("Open: %+v", err)
	}
	j := New(root, dev, writer.NoSwap{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatalf("expected an error from a pre-canceled context")
	}
}
