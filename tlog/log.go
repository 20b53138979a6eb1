// tlog/log.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package tlog provides the leveled logging system used throughout the
// backup engine. It is deliberately small: a handful of levels, a
// mutex-protected writer per level, and a caller-line prefix on every
// line, rather than a structured-fields logging framework.
package tlog

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
)

// Logger provides leveled logging with independently-suppressible debug
// and verbose streams. A nil *Logger is valid and logs to stderr, so
// packages may be used before a Logger has been constructed (e.g. during
// flag parsing).
type Logger struct {
	NErrors int
	mu      sync.Mutex
	debug   io.Writer
	verbose io.Writer
	warning io.Writer
	err     io.Writer
}

// New returns a Logger with warning and error output always enabled;
// debug and verbose output are enabled per the given flags.
func New(verbose, debug bool) *Logger {
	l := &Logger{}
	if verbose {
		l.verbose = os.Stderr
	}
	if debug {
		l.debug = os.Stderr
	}
	l.warning = os.Stderr
	l.err = os.Stderr
	return l
}

func (l *Logger) Print(f string, args ...interface{}) {
	fmt.Printf("%s", format(f, args...))
}

func (l *Logger) Debug(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		return
	}
	if l.debug == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.debug, format(f, args...))
}

func (l *Logger) Verbose(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		return
	}
	if l.verbose == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.verbose, format(f, args...))
}

func (l *Logger) Warning(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.warning, format(f, args...))
}

func (l *Logger) Error(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.NErrors++
	fmt.Fprint(l.err, format(f, args...))
}

// Fatal logs the message and terminates the process. It is used for the
// conditions the backup engine treats as unrecoverable: allocation
// failure, corrupted pipeline invariants, and similar.
func (l *Logger) Fatal(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		os.Exit(1)
	}
	l.mu.Lock()
	l.NErrors++
	fmt.Fprint(l.err, format(f, args...))
	l.mu.Unlock()
	os.Exit(1)
}

// Check prints a fatal error and exits if v is false. An optional
// printf-style message may be provided.
func (l *Logger) Check(v bool, msg ...interface{}) {
	if v {
		return
	}
	if l != nil {
		l.mu.Lock()
		l.NErrors++
		l.mu.Unlock()
	}
	if len(msg) == 0 {
		fmt.Fprint(os.Stderr, format("check failed\n"))
	} else {
		f := msg[0].(string)
		fmt.Fprint(os.Stderr, format(f, msg[1:]...))
	}
	os.Exit(1)
}

// CheckError is like Check but triggers on a non-nil error.
func (l *Logger) CheckError(err error, msg ...interface{}) {
	if err == nil {
		return
	}
	if l != nil {
		l.mu.Lock()
		l.NErrors++
		l.mu.Unlock()
	}
	if len(msg) == 0 {
		fmt.Fprint(os.Stderr, format("error: %+v\n", err))
	} else {
		f := msg[0].(string)
		fmt.Fprint(os.Stderr, format(f, msg[1:]...))
	}
	os.Exit(1)
}

func format(f string, args ...interface{}) string {
	_, fn, line, _ := runtime.Caller(2)
	fnline := path.Base(path.Dir(fn)) + "/" + path.Base(fn) + fmt.Sprintf(":%d", line)
	s := fmt.Sprintf("%-28s: ", fnline)
	s += fmt.Sprintf(f, args...)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
