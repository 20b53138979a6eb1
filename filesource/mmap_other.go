// filesource/mmap_other.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

//go:build !linux && !darwin

package filesource

import (
	"errors"
	"os"
)

// mapFile is unimplemented on platforms without a mirrored unix mmap;
// BeginReading's ordinary-read fallback path is used instead.
func mapFile(fh *os.File, size int64) ([]byte, error) {
	return nil, errors.New("filesource: mmap unsupported on this platform")
}

func unmapFile(data []byte) error {
	return nil
}

func platformOwnerGroup(info os.FileInfo) (uint32, uint32) {
	return 0, 0
}
