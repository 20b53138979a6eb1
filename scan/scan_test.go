// scan/scan_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanFindsFilesAndDirs(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644)
	os.Mkdir(filepath.Join(root, "sub"), 0755)
	os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bb"), 0644)

	s := New(nil, 2, nil)
	results, err := s.Scan(root)
	if err != nil {
		t.Fatalf("Scan: %+v", err)
	}

	if results[0].Path != root {
		t.Errorf("first entry should be the root, got %s", results[0].Path)
	}

	var names []string
	for _, r := range results {
		names = append(names, filepath.Base(r.Path))
	}
	want := map[string]bool{filepath.Base(root): true, "a.txt": true, "sub": true, "b.txt": true}
	if len(names) != len(want) {
		t.Fatalf("got %d entries %v, want %d", len(names), names, len(want))
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected entry %s", n)
		}
	}
}

func TestScanExcludes(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "keep.txt"), []byte("x"), 0644)
	os.Mkdir(filepath.Join(root, "node_modules"), 0755)
	os.WriteFile(filepath.Join(root, "node_modules", "pkg.json"), []byte("{}"), 0644)

	s := New([]string{"node_modules"}, 2, nil)
	results, err := s.Scan(root)
	if err != nil {
		t.Fatalf("Scan: %+v", err)
	}

	for _, r := range results {
		if filepath.Base(r.Path) == "node_modules" || filepath.Base(r.Path) == "pkg.json" {
			t.Errorf("excluded path %s was still scanned", r.Path)
		}
	}
}
