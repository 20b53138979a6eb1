// scan/scan.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package scan recursively enumerates a backup root into an ordered
// sequence of filesource.File values, using a bounded worker pool to
// parallelize directory traversal the way the rest of this codebase
// rate-limits concurrent filesystem work: a semaphore channel plus a
// WaitGroup, not a dedicated pool type.
package scan

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mmp/tapebak/filesource"
	"github.com/mmp/tapebak/tlog"
)

// DefaultWorkers is the default size of the scanner's worker pool.
const DefaultWorkers = 4

// Scanner walks a directory tree and produces file sources.
type Scanner struct {
	Workers  int
	Excludes []string
	Log      *tlog.Logger

	mu      sync.Mutex
	results []*filesource.File
	wg      sync.WaitGroup
	sem     chan bool
}

// New returns a Scanner with the given exclusion substrings; any
// discovered path containing one of them is skipped. Workers defaults
// to DefaultWorkers when workers <= 0.
func New(excludes []string, workers int, log *tlog.Logger) *Scanner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Scanner{Workers: workers, Excludes: excludes, Log: log}
}

func (s *Scanner) excluded(path string) bool {
	for _, e := range s.Excludes {
		if strings.Contains(path, e) {
			return true
		}
	}
	return false
}

// Scan walks root and returns the file sources discovered, in an order
// that is stable within a run but otherwise unspecified across
// directories. The root itself is the first returned entry.
func (s *Scanner) Scan(root string) ([]*filesource.File, error) {
	s.sem = make(chan bool, s.Workers)
	s.results = nil

	rootSource := filesource.New(root, nil)
	if err := rootSource.FetchMetadata(); err != nil {
		return nil, err
	}
	s.append(rootSource)

	if rootSource.IsDir {
		s.wg.Add(1)
		s.walkDir(rootSource)
		s.wg.Wait()
	}

	return s.results, nil
}

func (s *Scanner) append(f *filesource.File) {
	s.mu.Lock()
	s.results = append(s.results, f)
	s.mu.Unlock()
}

func (s *Scanner) walkDir(dir *filesource.File) {
	s.sem <- true
	defer func() { <-s.sem; s.wg.Done() }()

	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		s.Log.Warning("%s: %s", dir.Path, err)
		return
	}

	for _, de := range entries {
		name := de.Name()
		if name == "." || name == ".." {
			continue
		}
		childPath := filepath.Join(dir.Path, name)
		if s.excluded(childPath) {
			s.Log.Verbose("%s: excluded by filter", childPath)
			continue
		}

		child := filesource.New(childPath, dir)
		if err := child.FetchMetadata(); err != nil {
			s.Log.Warning("%s: %s", childPath, err)
			continue
		}
		s.append(child)

		if child.IsDir {
			s.wg.Add(1)
			go s.walkDir(child)
		}
	}
}
