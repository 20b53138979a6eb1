// chunk/format.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package chunk implements the on-media chunk binary format: a fixed
// header, a table of per-file entries, and a page-aligned blob area
// holding the raw bytes those entries describe.
package chunk

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// FormatVersion identifies the header layout implemented by this package.
const FormatVersion uint32 = 0x00010000

// PageSize is the alignment granularity for the blob area and for each
// blob within it.
const PageSize = 4096

const (
	headerReservedSize  = 16384
	encryptionMethodSize = 8
	encryptionIVSize     = 32
)

// EncryptionMethodNone is the tag stored in a chunk header's encryption
// method field when the chunk's blob area is stored in the clear. No
// other method is currently implemented; see the design notes on
// on-media encryption.
const EncryptionMethodNone = "NONE    "

// EntryType distinguishes a directory entry (no blob bytes) from a
// regular file entry.
type EntryType uint16

const (
	EntryTypeFile EntryType = 0x0001
	EntryTypeDir  EntryType = 0x1000
)

// Header is the fixed-size prefix of a chunk's on-media image.
type Header struct {
	Version           uint32
	JobUUID           uuid.UUID
	ChunkIndex        uint64
	ChunkLenBytes     uint64
	EncryptionMethod  [encryptionMethodSize]byte
	EncryptionIV      [encryptionIVSize]byte
	NumFileEntries    uint32
}

// headerFixedSize is the byte length of Header as serialized, including
// the reserved expansion area and the 4-byte NumFileEntries, which is
// written last (after the reserved bytes) to mirror the wire layout.
const headerFixedSize = 4 + 16 + 8 + 8 + encryptionMethodSize + encryptionIVSize + headerReservedSize + 4

// Entry describes one (possibly partial) file's contribution to a chunk.
type Entry struct {
	FileUUID       uuid.UUID
	Type           EntryType
	TimeModified   int64
	Size           uint64
	Owner          uint32
	Group          uint32
	Mode           uint32
	Checksum       uint32
	BlobStartOff   uint64
	BlobLenBytes   uint64
	BlobFileOffset uint64
	Name           string
}

// entryFixedSize is the size of an Entry's fixed fields, not including
// the variable-length, NUL-terminated Name.
const entryFixedSize = 16 + 2 + 8 + 8 + 4 + 4 + 4 + 4 + 8 + 8 + 8 + 4

// encodedSize returns the number of bytes Entry occupies in the entry
// table, including its NUL-terminated name.
func (e Entry) encodedSize() int {
	return entryFixedSize + len(e.Name) + 1
}

// IsPartial reports whether this entry covers less than the full file.
func (e Entry) IsPartial() bool {
	return e.BlobLenBytes < e.Size
}

func alignUp(n, align int64) int64 {
	if align <= 0 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

func putUUID(b []byte, id uuid.UUID) {
	copy(b, id[:])
}

func getUUID(b []byte) uuid.UUID {
	var id uuid.UUID
	copy(id[:], b)
	return id
}

var byteOrder = binary.LittleEndian
