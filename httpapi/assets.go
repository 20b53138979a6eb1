// httpapi/assets.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package httpapi

import (
	"mime"
	"os"
	"path/filepath"
)

// DirAssets serves static files from a directory on disk, for the
// daemon's bundled browser UI.
type DirAssets struct {
	Root string
}

func (d DirAssets) Asset(name string) ([]byte, string, bool) {
	p := filepath.Join(d.Root, filepath.Clean("/"+name))
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", false
	}
	ct := mime.TypeByExtension(filepath.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return data, ct, true
}
