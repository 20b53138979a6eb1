// device/nativedev/nativedev_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package nativedev

import (
	"errors"
	"os"
	"path/filepath"
	"plugin"
	"testing"

	"github.com/mmp/tapebak/device"
)

// fakeLooker stands in for a loaded .so, since plugin.Symbol is just
// interface{} and needs no real plugin machinery to populate.
type fakeLooker struct {
	syms map[string]plugin.Symbol
}

func (f *fakeLooker) Lookup(name string) (plugin.Symbol, error) {
	sym, ok := f.syms[name]
	if !ok {
		return nil, errors.New("symbol not found")
	}
	return sym, nil
}

type fakeDevice struct{ closed bool }

func (fakeDevice) GetStatus() (device.State, error) { return device.Idle, nil }
func (fakeDevice) GetPosition() (int64, error)       { return 0, nil }
func (fakeDevice) SeekTo(int64) error                { return nil }
func (fakeDevice) Rewind() error                     { return nil }
func (fakeDevice) Eject() error                      { return nil }
func (fakeDevice) LockMedium(bool) error             { return nil }
func (fakeDevice) Write([]byte, bool) (int, error)    { return 0, nil }
func (fakeDevice) WriteFileMark() error              { return nil }
func (fakeDevice) Read([]byte) (int, error)          { return 0, nil }
func (fakeDevice) IsAtEndOfMedium() bool             { return false }
func (fakeDevice) SkipFileMark() error               { return nil }

func fakeWorkingLoader(initCalled, exitCalled *bool) pluginLoader {
	return func(path string) (Looker, error) {
		return &fakeLooker{syms: map[string]plugin.Symbol{
			"Init": func() error { *initCalled = true; return nil },
			"Exit": func() { *exitCalled = true },
			"EnumerateDevices": func() ([]string, error) {
				return []string{"drive0", "drive1"}, nil
			},
			"OpenSession": func(name string) (device.Device, error) {
				return fakeDevice{}, nil
			},
			"CloseSession": func(device.Device) error {
				return nil
			},
		}}, nil
	}
}

func TestLoadEnumerateOpenCloseSession(t *testing.T) {
	var initCalled, exitCalled bool
	lib, err := Load("iolib.so", fakeWorkingLoader(&initCalled, &exitCalled))
	if err != nil {
		t.Fatalf("Load: %+v", err)
	}
	if !initCalled {
		t.Errorf("expected Init to have been called")
	}

	names, err := lib.EnumerateDevices()
	if err != nil || len(names) != 2 {
		t.Fatalf("EnumerateDevices: %v, %+v", names, err)
	}

	d, err := lib.OpenSession("drive0")
	if err != nil {
		t.Fatalf("OpenSession: %+v", err)
	}
	if d == nil {
		t.Fatalf("expected a non-nil device")
	}

	if err := lib.CloseSession(); err != nil {
		t.Fatalf("CloseSession: %+v", err)
	}
	if err := lib.CloseSession(); err != ErrNoSession {
		t.Errorf("got %v, want ErrNoSession", err)
	}

	lib.Close()
	if !exitCalled {
		t.Errorf("expected Exit to have been called")
	}
}

func TestLoadMissingSymbolFails(t *testing.T) {
	loader := func(path string) (Looker, error) {
		return &fakeLooker{syms: map[string]plugin.Symbol{}}, nil
	}
	if _, err := Load("iolib.so", loader); err == nil {
		t.Fatalf("expected an error when required symbols are missing")
	}
}

func TestLocateFallsBackToEnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TAPEBAK_DEVICE_PATH", dir)

	if _, err := Locate(); err == nil {
		t.Fatalf("expected Locate to fail when iolib.so is nowhere to be found")
	}

	want := filepath.Join(dir, libraryName)
	if err := os.WriteFile(want, nil, 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Locate()
	if err != nil || got != want {
		t.Errorf("got (%q, %v), want (%q, nil)", got, err, want)
	}
}
