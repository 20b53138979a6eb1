// chunk/chunk.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package chunk

import (
	"errors"

	"github.com/google/uuid"
)

// ErrSealed is returned by AddFileEntry/AddDirEntry once the chunk has
// been sealed by Seal.
var ErrSealed = errors.New("chunk: already sealed")

// ErrNotSealed is returned by Encode before Seal has been called.
var ErrNotSealed = errors.New("chunk: not sealed")

// Chunk is the in-memory representation of a chunk while it is being
// assembled by the packer: a running list of file/directory entries and
// the raw blob bytes each contributed, plus the bookkeeping the packer
// needs to decide whether another file fits.
type Chunk struct {
	MaxSize int64

	jobUUID    uuid.UUID
	chunkIndex uint64
	sealed     bool

	entries []Entry
	blobs   [][]byte

	// usedBytes is the running total of the fixed header (including its
	// reserved area), the entry table so far, and blob bytes contributed,
	// each blob rounded up to a page. It is what the packer's fit policy
	// consults. It does not count the padding Encode adds after the entry
	// table to reach a page boundary, so the encoded image can be up to
	// one page longer than usedBytes.
	usedBytes int64
}

// NewChunk returns an empty chunk with the given maximum on-media size.
func NewChunk(maxSize int64) *Chunk {
	return &Chunk{
		MaxSize:   maxSize,
		usedBytes: headerFixedSize,
	}
}

// UsedBytes reports the estimated number of bytes this chunk currently
// occupies, including the fixed header.
func (c *Chunk) UsedBytes() int64 {
	return c.usedBytes
}

// FreeBytes reports MaxSize - UsedBytes, i.e. the room remaining for
// additional entries and blob bytes.
func (c *Chunk) FreeBytes() int64 {
	f := c.MaxSize - c.usedBytes
	if f < 0 {
		return 0
	}
	return f
}

// NumEntries returns the number of entries added so far.
func (c *Chunk) NumEntries() int {
	return len(c.entries)
}

// Entries returns the entries added so far, in insertion order. The
// returned slice must not be mutated.
func (c *Chunk) Entries() []Entry {
	return c.entries
}

// AddFileEntry appends a file entry and its blob bytes to the chunk. The
// caller (the packer) is responsible for having already decided that the
// entry fits per the fit policy; AddFileEntry only performs bookkeeping.
func (c *Chunk) AddFileEntry(e Entry, data []byte) error {
	if c.sealed {
		return ErrSealed
	}
	e.Type = EntryTypeFile
	e.BlobLenBytes = uint64(len(data))
	c.entries = append(c.entries, e)
	c.blobs = append(c.blobs, data)
	c.usedBytes += int64(e.encodedSize())
	c.usedBytes += alignUp(int64(len(data)), PageSize)
	return nil
}

// AddDirEntry appends a directory entry, which contributes no blob
// bytes.
func (c *Chunk) AddDirEntry(e Entry) error {
	if c.sealed {
		return ErrSealed
	}
	e.Type = EntryTypeDir
	e.BlobLenBytes = 0
	e.BlobStartOff = 0
	c.entries = append(c.entries, e)
	c.blobs = append(c.blobs, nil)
	c.usedBytes += int64(e.encodedSize())
	return nil
}

// Seal stamps the job identifier and chunk index assigned by the
// post-processor and marks the chunk as no longer acceptable for
// further additions. It is an error to call Seal more than once.
func (c *Chunk) Seal(jobUUID uuid.UUID, chunkIndex uint64) error {
	if c.sealed {
		return ErrSealed
	}
	c.jobUUID = jobUUID
	c.chunkIndex = chunkIndex
	c.sealed = true
	return nil
}

// IsSealed reports whether Seal has been called.
func (c *Chunk) IsSealed() bool {
	return c.sealed
}

// ChunkIndex returns the index assigned by Seal, or 0 before sealing.
func (c *Chunk) ChunkIndex() uint64 {
	return c.chunkIndex
}

// JobUUID returns the job identifier assigned by Seal.
func (c *Chunk) JobUUID() uuid.UUID {
	return c.jobUUID
}
