// device/nativedev/nativedev.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package nativedev loads a real device backend at process start from a
// dynamically loaded Go plugin, named iolib.so, looked up in the
// working directory and then $TAPEBAK_DEVICE_PATH. The plugin exports
// Init, Exit, EnumerateDevices, OpenSession, and CloseSession as Go
// function values; plugin.Open plus symbol lookup is this module's
// idiomatic equivalent of loading a C-ABI function-pointer table at
// runtime.
package nativedev

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"github.com/mmp/tapebak/device"
)

const libraryName = "iolib.so"

// ErrNoSession is returned by device operations invoked before
// OpenSession has succeeded.
var ErrNoSession = errors.New("nativedev: no open session")

// symbols is the set of exported plugin entry points, looked up once at
// load time and cached for every subsequent call.
type symbols struct {
	Init            func() error
	Exit            func()
	EnumerateDevices func() ([]string, error)
	OpenSession      func(name string) (device.Device, error)
	CloseSession     func(device.Device) error
}

// Looker is the subset of *plugin.Plugin's method set nativedev
// depends on. Abstracting it lets tests supply a fake backend without a
// real .so file on disk, since plugin.Symbol is just interface{}.
type Looker interface {
	Lookup(symName string) (plugin.Symbol, error)
}

// pluginLoader abstracts plugin.Open so tests can exercise Load against
// a fake Looker.
type pluginLoader func(path string) (Looker, error)

func defaultLoader(path string) (Looker, error) {
	return plugin.Open(path)
}

// Library wraps a loaded backend plugin and the one session currently
// open against it, if any.
type Library struct {
	syms    symbols
	session device.Device
}

// Locate finds iolib.so, preferring the working directory and falling
// back to $TAPEBAK_DEVICE_PATH.
func Locate() (string, error) {
	if _, err := os.Stat(libraryName); err == nil {
		return filepath.Abs(libraryName)
	}
	if dir := os.Getenv("TAPEBAK_DEVICE_PATH"); dir != "" {
		p := filepath.Join(dir, libraryName)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("nativedev: %s not found in working directory or TAPEBAK_DEVICE_PATH", libraryName)
}

// Load opens the plugin at path (as found by Locate) using loader, runs
// its Init, and returns a Library ready for OpenSession.
func Load(path string, loader pluginLoader) (*Library, error) {
	if loader == nil {
		loader = defaultLoader
	}
	p, err := loader(path)
	if err != nil {
		return nil, fmt.Errorf("nativedev: opening %s: %w", path, err)
	}

	syms, err := lookupSymbols(p)
	if err != nil {
		return nil, err
	}
	if err := syms.Init(); err != nil {
		return nil, fmt.Errorf("nativedev: Init: %w", err)
	}
	return &Library{syms: syms}, nil
}

func lookupSymbols(p Looker) (symbols, error) {
	var syms symbols
	for name, dst := range map[string]interface{}{
		"Init":             &syms.Init,
		"Exit":             &syms.Exit,
		"EnumerateDevices": &syms.EnumerateDevices,
		"OpenSession":      &syms.OpenSession,
		"CloseSession":     &syms.CloseSession,
	} {
		sym, err := p.Lookup(name)
		if err != nil {
			return symbols{}, fmt.Errorf("nativedev: plugin missing symbol %s: %w", name, err)
		}
		if err := assign(dst, sym); err != nil {
			return symbols{}, fmt.Errorf("nativedev: symbol %s: %w", name, err)
		}
	}
	return syms, nil
}

func assign(dst interface{}, sym plugin.Symbol) error {
	switch d := dst.(type) {
	case *func() error:
		f, ok := sym.(func() error)
		if !ok {
			return fmt.Errorf("unexpected type %T", sym)
		}
		*d = f
	case *func():
		f, ok := sym.(func())
		if !ok {
			return fmt.Errorf("unexpected type %T", sym)
		}
		*d = f
	case *func() ([]string, error):
		f, ok := sym.(func() ([]string, error))
		if !ok {
			return fmt.Errorf("unexpected type %T", sym)
		}
		*d = f
	case *func(string) (device.Device, error):
		f, ok := sym.(func(string) (device.Device, error))
		if !ok {
			return fmt.Errorf("unexpected type %T", sym)
		}
		*d = f
	case *func(device.Device) error:
		f, ok := sym.(func(device.Device) error)
		if !ok {
			return fmt.Errorf("unexpected type %T", sym)
		}
		*d = f
	default:
		return fmt.Errorf("unhandled destination type %T", dst)
	}
	return nil
}

// EnumerateDevices lists the device names the backend can open.
func (l *Library) EnumerateDevices() ([]string, error) {
	return l.syms.EnumerateDevices()
}

// OpenSession opens the named device, becoming this Library's active
// session. Only one session may be open at a time.
func (l *Library) OpenSession(name string) (device.Device, error) {
	d, err := l.syms.OpenSession(name)
	if err != nil {
		return nil, err
	}
	l.session = d
	return d, nil
}

// CloseSession closes the active session opened via OpenSession.
func (l *Library) CloseSession() error {
	if l.session == nil {
		return ErrNoSession
	}
	err := l.syms.CloseSession(l.session)
	l.session = nil
	return err
}

// Close runs the plugin's Exit entry point, releasing any backend-held
// resources. The library must not be used afterward.
func (l *Library) Close() {
	l.syms.Exit()
}
