// filesource/mmap_linux.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

//go:build linux

package filesource

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryHugeMap attempts a huge-page-backed mapping. Most filesystem-backed
// files can't actually be huge-page mapped (that requires hugetlbfs or
// MAP_ANONYMOUS), so in practice this fails immediately and the caller
// falls back to a regular mapping; the attempt and fallback bookkeeping
// is kept anyway to mirror the original allocator's behavior and flag.
func tryHugeMap(fh *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(fh.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED|unix.MAP_HUGETLB)
}
