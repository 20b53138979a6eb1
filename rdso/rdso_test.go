// rdso/rdso_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package rdso

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmp/tapebak/tlog"
)

func TestEncodeCheckFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "data.bin")
	rsfn := filepath.Join(dir, "data.rs")

	buf := make([]byte, 64*1024+17)
	rand.Read(buf)
	if err := os.WriteFile(fn, buf, 0644); err != nil {
		t.Fatal(err)
	}

	if err := EncodeFile(fn, rsfn, 4, 2, 4096); err != nil {
		t.Fatalf("EncodeFile: %+v", err)
	}

	if err := CheckFile(fn, rsfn, nil); err != nil {
		t.Fatalf("CheckFile on uncorrupted data: %+v", err)
	}
}

func TestCheckFileDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "data.bin")
	rsfn := filepath.Join(dir, "data.rs")

	buf := make([]byte, 32*1024)
	rand.Read(buf)
	if err := os.WriteFile(fn, buf, 0644); err != nil {
		t.Fatal(err)
	}
	if err := EncodeFile(fn, rsfn, 4, 2, 4096); err != nil {
		t.Fatalf("EncodeFile: %+v", err)
	}

	buf[0] ^= 0xff
	if err := os.WriteFile(fn, buf, 0644); err != nil {
		t.Fatal(err)
	}

	log := tlog.New(false, false)
	if err := CheckFile(fn, rsfn, log); err != nil {
		t.Fatalf("CheckFile logs (doesn't error) on mismatch: %+v", err)
	}
	if log.NErrors == 0 {
		t.Errorf("expected CheckFile to log the shard hash mismatch")
	}
}

func TestEncodeBytesCheckBytesRoundTrip(t *testing.T) {
	data := make([]byte, 70000)
	rand.Read(data)

	var rs bytes.Buffer
	if err := EncodeBytes(data, &rs, 4, 2, 4096); err != nil {
		t.Fatalf("EncodeBytes: %+v", err)
	}

	if err := CheckBytes(data, rs.Bytes()); err != nil {
		t.Fatalf("CheckBytes on uncorrupted data: %+v", err)
	}

	corrupted := append([]byte(nil), data...)
	corrupted[100] ^= 0xff
	if err := CheckBytes(corrupted, rs.Bytes()); err != ErrMismatch {
		t.Errorf("got %v, want ErrMismatch", err)
	}
}
