// filesource/filesource.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package filesource represents a single candidate backup item: its
// path, its metadata, a read-only mapping of its bytes, and the
// bookkeeping the packer needs to place (possibly split) ranges of it
// into chunks.
package filesource

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrPathMissing is returned by FetchMetadata when the underlying path
// no longer exists.
var ErrPathMissing = errors.New("filesource: path missing")

// useSuperpagesFallback is a process-wide, monotonic flag: once a
// huge-page-backed mapping attempt fails, every subsequent source falls
// back to regular pages rather than retrying the more expensive path.
// Grounded on the original packer's use_superpages global.
var useSuperpagesFallback int32

func superpagesExhausted() bool {
	return atomic.LoadInt32(&useSuperpagesFallback) != 0
}

func markSuperpagesExhausted() {
	atomic.StoreInt32(&useSuperpagesFallback, 1)
}

// File is one discovered filesystem entry awaiting (or undergoing)
// packing.
type File struct {
	UUID   uuid.UUID
	Path   string
	Parent *File

	metaFetched  bool
	IsDir        bool
	Size         int64
	ModTime      time.Time
	Mode         uint32
	Owner, Group uint32

	mapped bool
	data   []byte
	fh     *os.File

	// Packing state (§3 Data Model): how much of this file has been
	// placed into the current chunk, and how far into the file that
	// range started.
	offsetInFile         int64
	lengthInCurrentChunk int64
	fullyWritten         bool
}

// New returns a file source for path, wired to parent (nil for the
// backup root).
func New(path string, parent *File) *File {
	return &File{UUID: uuid.New(), Path: path, Parent: parent}
}

// FetchMetadata populates size/mode/owner/group/mtime/isDirectory. It is
// idempotent: subsequent calls are no-ops.
func (f *File) FetchMetadata() error {
	if f.metaFetched {
		return nil
	}
	info, err := os.Lstat(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrPathMissing
	}
	if err != nil {
		return err
	}

	f.IsDir = info.IsDir()
	f.Size = info.Size()
	f.ModTime = info.ModTime()
	f.Mode = uint32(info.Mode().Perm())
	f.Owner, f.Group = platformOwnerGroup(info)
	f.metaFetched = true
	if f.IsDir {
		f.fullyWritten = true
	}
	return nil
}

// BytesRemaining is how much of the file has not yet been assigned to
// any chunk.
func (f *File) BytesRemaining() int64 {
	return f.Size - (f.offsetInFile + f.lengthInCurrentChunk)
}

// FullyWritten reports whether every byte of the file has been placed
// into some chunk.
func (f *File) FullyWritten() bool {
	return f.fullyWritten
}

// NextOffset is the file offset at which the next placed range begins:
// the byte just past everything placed into chunks so far.
func (f *File) NextOffset() int64 {
	return f.offsetInFile + f.lengthInCurrentChunk
}

// PlaceRange records that a range of length bytes starting at
// NextOffset() has just been handed to a chunk.
func (f *File) PlaceRange(length int64) {
	f.offsetInFile = f.NextOffset()
	f.lengthInCurrentChunk = length
	if f.offsetInFile+length >= f.Size {
		f.fullyWritten = true
	}
}

// MarkFullyWritten is called once a directory has been recorded, and
// after the final (or only) range of a file has been placed.
func (f *File) MarkFullyWritten() {
	f.fullyWritten = true
}

// BeginReading maps the file's full contents read-only. It is a no-op
// for directories.
func (f *File) BeginReading() error {
	if f.IsDir || f.mapped {
		return nil
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	if f.Size == 0 {
		f.fh = fh
		f.mapped = true
		return nil
	}
	data, err := mapFile(fh, f.Size)
	if err != nil {
		// Fall back to an ordinary read; mmap can fail for reasons
		// (e.g. a zero-length race, an unusual filesystem) that
		// shouldn't abort the whole file.
		fh.Close()
		fh, err2 := os.Open(f.Path)
		if err2 != nil {
			return err2
		}
		buf := make([]byte, f.Size)
		if _, err3 := readFull(fh, buf); err3 != nil {
			fh.Close()
			return err3
		}
		f.fh = fh
		f.data = buf
		f.mapped = true
		return nil
	}
	f.fh = fh
	f.data = data
	f.mapped = true
	return nil
}

func readFull(fh *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := fh.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// FinishedReading releases the file's mapping. Idempotent.
func (f *File) FinishedReading() error {
	if !f.mapped {
		return nil
	}
	var err error
	if f.data != nil {
		err = unmapFile(f.data)
		f.data = nil
	}
	if f.fh != nil {
		if cerr := f.fh.Close(); err == nil {
			err = cerr
		}
		f.fh = nil
	}
	f.mapped = false
	return err
}

// CopyRange copies length bytes starting at fileOffset from the mapping
// into dest, mapping the file first if needed. It does not change the
// source's packing state; PlaceRange records what was placed.
func (f *File) CopyRange(length, fileOffset int64, dest []byte) (int, error) {
	if !f.mapped {
		if err := f.BeginReading(); err != nil {
			return 0, err
		}
	}
	if fileOffset+length > int64(len(f.data)) {
		length = int64(len(f.data)) - fileOffset
	}
	if length < 0 {
		length = 0
	}
	n := copy(dest, f.data[fileOffset:fileOffset+length])
	return n, nil
}
