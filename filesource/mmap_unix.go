// filesource/mmap_unix.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

//go:build linux || darwin

package filesource

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps the first size bytes of fh read-only and shared. It
// tries a huge-page-backed mapping first (mirroring the original
// packer's superpage-preferred allocation) and falls back to a regular
// mapping once huge pages have failed once for the process.
func mapFile(fh *os.File, size int64) ([]byte, error) {
	if !superpagesExhausted() {
		if data, err := tryHugeMap(fh, size); err == nil {
			return data, nil
		}
		markSuperpagesExhausted()
	}
	return unix.Mmap(int(fh.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
}

func unmapFile(data []byte) error {
	return unix.Munmap(data)
}

func platformOwnerGroup(info os.FileInfo) (uint32, uint32) {
	if st, ok := info.Sys().(*unix.Stat_t); ok {
		return st.Uid, st.Gid
	}
	return 0, 0
}
