// pack/pack.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package pack implements the chunk packer: given a stream of file
// sources, it decides whether each one fits whole, fits partially, or
// forces a fresh chunk, and assembles each chunk's in-memory image.
package pack

import (
	"github.com/google/uuid"

	"github.com/mmp/tapebak/chunk"
	"github.com/mmp/tapebak/filesource"
)

// AddFileStatus is the outcome of a single addFile attempt.
type AddFileStatus int

const (
	Success AddFileStatus = iota
	Partial
	NoSpace
	Error
)

func (s AddFileStatus) String() string {
	switch s {
	case Success:
		return "Success"
	case Partial:
		return "Partial"
	case NoSpace:
		return "NoSpace"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Default tunables (§4.4).
const (
	DefaultMaxChunkSize  = 2 << 30 // 2 GiB
	HeaderReservedSpace  = 512 * 1024
	MinFreeSpace         = 1 << 20
)

// Packer holds the tunables governing how files are placed into chunks.
type Packer struct {
	MaxChunkSize int64
	HeaderReserved int64
	MinFreeSpace   int64
}

// New returns a Packer configured with the default tunables.
func New() *Packer {
	return &Packer{
		MaxChunkSize:   DefaultMaxChunkSize,
		HeaderReserved: HeaderReservedSpace,
		MinFreeSpace:   MinFreeSpace,
	}
}

// NewChunk returns a fresh chunk sized per the packer's MaxChunkSize.
func (p *Packer) NewChunk() *chunk.Chunk {
	return chunk.NewChunk(p.MaxChunkSize)
}

// AddFile attempts to place (all or part of) f into c. Errors fetching
// metadata are reported as Error; the caller aborts the job in that
// case (§7).
func (p *Packer) AddFile(c *chunk.Chunk, f *filesource.File) (AddFileStatus, error) {
	if p.MaxChunkSize-c.UsedBytes() <= p.MinFreeSpace {
		return NoSpace, nil
	}

	if err := f.FetchMetadata(); err != nil {
		return Error, err
	}

	bytesFree := p.MaxChunkSize - c.UsedBytes() - p.HeaderReserved

	if f.IsDir {
		if err := c.AddDirEntry(dirEntry(f)); err != nil {
			return Error, err
		}
		f.MarkFullyWritten()
		return Success, nil
	}

	size := f.Size
	smallFileThreshold := p.MaxChunkSize - p.HeaderReserved

	if size < smallFileThreshold {
		// Small-file regime: only start a file in this chunk if at
		// least half of it would fit, so a small file doesn't get
		// needlessly split across a chunk boundary.
		if size/2 > bytesFree {
			return NoSpace, nil
		}
	} else {
		// Large-file regime: only start (or continue) a large file here
		// if at least half a chunk's worth of room remains, so large
		// files aren't split into many tiny fragments.
		if bytesFree < p.MaxChunkSize/2 {
			return NoSpace, nil
		}
	}

	remaining := f.BytesRemaining()
	if remaining <= bytesFree {
		return p.place(c, f, remaining, bytesFree, true)
	}
	return p.place(c, f, remaining, bytesFree, false)
}

func (p *Packer) place(c *chunk.Chunk, f *filesource.File, remaining, bytesFree int64, whole bool) (AddFileStatus, error) {
	placeable := remaining
	if !whole {
		placeable = alignDownPage(bytesFree)
		if placeable == 0 {
			return NoSpace, nil
		}
	}

	if err := f.BeginReading(); err != nil {
		return Error, err
	}

	fileOffset := f.NextOffset()
	data := make([]byte, placeable)
	n, err := f.CopyRange(placeable, fileOffset, data)
	if err != nil {
		return Error, err
	}
	data = data[:n]

	e := chunk.Entry{
		FileUUID:       f.UUID,
		TimeModified:   f.ModTime.Unix(),
		Size:           uint64(f.Size),
		Owner:          f.Owner,
		Group:          f.Group,
		Mode:           f.Mode,
		BlobFileOffset: uint64(fileOffset),
		Name:           f.Path,
	}
	if err := c.AddFileEntry(e, data); err != nil {
		return Error, err
	}

	f.PlaceRange(int64(len(data)))

	if whole {
		f.MarkFullyWritten()
		if err := f.FinishedReading(); err != nil {
			return Error, err
		}
		return Success, nil
	}
	return Partial, nil
}

// Finalize seals c with the given job and chunk index and serializes it
// to its on-media byte image. The blob bytes for every entry were
// already copied out of their source mappings during AddFile, so this
// step is just header/layout computation, not further file I/O.
func Finalize(c *chunk.Chunk, jobUUID uuid.UUID, chunkIndex uint64) ([]byte, error) {
	if err := c.Seal(jobUUID, chunkIndex); err != nil {
		return nil, err
	}
	return c.Encode()
}

func dirEntry(f *filesource.File) chunk.Entry {
	return chunk.Entry{
		FileUUID:     f.UUID,
		TimeModified: f.ModTime.Unix(),
		Owner:        f.Owner,
		Group:        f.Group,
		Mode:         f.Mode,
		Name:         f.Path,
	}
}

func alignDownPage(n int64) int64 {
	return (n / chunk.PageSize) * chunk.PageSize
}
