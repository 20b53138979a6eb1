// cmd/tapebak-reader/main_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/mmp/tapebak/chunk"
)

func buildTestChunkBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	c := chunk.NewChunk(1 << 20)
	if err := c.AddFileEntry(chunk.Entry{
		FileUUID: uuid.New(),
		Size:     uint64(len(data)),
		Mode:     0644,
		Name:     "hello.txt",
	}, data); err != nil {
		t.Fatalf("AddFileEntry: %+v", err)
	}
	if err := c.Seal(uuid.New(), 0); err != nil {
		t.Fatalf("Seal: %+v", err)
	}
	buf, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode: %+v", err)
	}
	return buf
}

func buildTestChunk(t *testing.T, data []byte) *chunk.Parsed {
	t.Helper()
	p, err := chunk.Parse(buildTestChunkBytes(t, data))
	if err != nil {
		t.Fatalf("Parse: %+v", err)
	}
	return p
}

func TestExtractEntryWritesBlobContents(t *testing.T) {
	data := []byte("the contents of the extracted file")
	p := buildTestChunk(t, data)

	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	if err := extractEntry(p, 0); err != nil {
		t.Fatalf("extractEntry: %+v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %+v", err)
	}
	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestExtractEntryStillWritesOnChecksumMismatch(t *testing.T) {
	data := []byte("contents that will be corrupted before extraction")
	raw := buildTestChunkBytes(t, data)

	probe, err := chunk.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %+v", err)
	}
	// Corrupt a byte within the blob area, as codec_test.go does, so
	// VerifyEntry reports a mismatch.
	raw[probe.Entries[0].BlobStartOff] ^= 0xff

	corrupted, err := chunk.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %+v", err)
	}
	if corrupted.VerifyEntry(0) {
		t.Fatalf("expected checksum mismatch after corruption")
	}

	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	if err := extractEntry(corrupted, 0); err != nil {
		t.Fatalf("extractEntry should still write the file on a checksum mismatch: %+v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hello.txt")); err != nil {
		t.Errorf("expected the corrupted entry to be written anyway: %+v", err)
	}
}

func TestExtractEntryOutOfRangeIsError(t *testing.T) {
	p := buildTestChunk(t, []byte("x"))
	if err := extractEntry(p, 5); err == nil {
		t.Fatalf("expected an error for an out-of-range index")
	}
}

func TestResolveUserAndGroupFallBackToNumeric(t *testing.T) {
	const noSuchID = 0xFFFFFFF0
	if got := resolveUser(noSuchID); got == "" {
		t.Errorf("expected a non-empty fallback for an unknown uid")
	}
	if got := resolveGroup(noSuchID); got == "" {
		t.Errorf("expected a non-empty fallback for an unknown gid")
	}
}
