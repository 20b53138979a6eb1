// filesource/mmap_darwin.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

//go:build darwin

package filesource

import (
	"errors"
	"os"
)

// tryHugeMap is not available on Darwin; mapFile falls back to a
// regular mapping immediately.
func tryHugeMap(fh *os.File, size int64) ([]byte, error) {
	return nil, errors.New("filesource: huge pages unsupported on darwin")
}
