// chunk/codec.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package chunk

import (
	"fmt"
	"hash/crc32"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC-32C (Castagnoli) checksum used to verify a
// single entry's blob bytes.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// Encode lays out the chunk's header, entry table, and blob area into a
// single contiguous byte image, computing each entry's checksum along
// the way. The chunk must have been sealed first.
func (c *Chunk) Encode() ([]byte, error) {
	if !c.sealed {
		return nil, ErrNotSealed
	}

	entryTableSize := int64(0)
	for i := range c.entries {
		entryTableSize += int64(c.entries[i].encodedSize())
	}

	headerSize := alignUp(headerFixedSize+entryTableSize, PageSize)

	blobOffsets := make([]int64, len(c.entries))
	blobTotal := int64(0)
	for i, e := range c.entries {
		if e.Type == EntryTypeDir {
			continue
		}
		blobOffsets[i] = headerSize + blobTotal
		blobTotal += alignUp(int64(len(c.blobs[i])), PageSize)
	}

	total := alignUp(headerSize+blobTotal, PageSize)
	buf := make([]byte, total)

	// Header.
	off := 0
	byteOrder.PutUint32(buf[off:], FormatVersion)
	off += 4
	putUUID(buf[off:], c.jobUUID)
	off += 16
	byteOrder.PutUint64(buf[off:], c.chunkIndex)
	off += 8
	byteOrder.PutUint64(buf[off:], uint64(total))
	off += 8
	copy(buf[off:off+encryptionMethodSize], []byte(EncryptionMethodNone))
	off += encryptionMethodSize
	off += encryptionIVSize // IV left zeroed; no key management is specified.
	off += headerReservedSize
	byteOrder.PutUint32(buf[off:], uint32(len(c.entries)))
	off += 4

	// Entry table.
	for i, e := range c.entries {
		if e.Type != EntryTypeDir {
			e.BlobStartOff = uint64(blobOffsets[i])
			e.Checksum = Checksum(c.blobs[i])
		}
		n := writeEntry(buf[off:], e)
		off += n
	}

	// Blob area.
	for i, e := range c.entries {
		if e.Type == EntryTypeDir {
			continue
		}
		copy(buf[blobOffsets[i]:], c.blobs[i])
	}

	return buf, nil
}

func writeEntry(b []byte, e Entry) int {
	off := 0
	putUUID(b[off:], e.FileUUID)
	off += 16
	byteOrder.PutUint16(b[off:], uint16(e.Type))
	off += 2
	byteOrder.PutUint64(b[off:], uint64(e.TimeModified))
	off += 8
	byteOrder.PutUint64(b[off:], e.Size)
	off += 8
	byteOrder.PutUint32(b[off:], e.Owner)
	off += 4
	byteOrder.PutUint32(b[off:], e.Group)
	off += 4
	byteOrder.PutUint32(b[off:], e.Mode)
	off += 4
	byteOrder.PutUint32(b[off:], e.Checksum)
	off += 4
	byteOrder.PutUint64(b[off:], e.BlobStartOff)
	off += 8
	byteOrder.PutUint64(b[off:], e.BlobLenBytes)
	off += 8
	byteOrder.PutUint64(b[off:], e.BlobFileOffset)
	off += 8
	nameBytes := append([]byte(e.Name), 0)
	byteOrder.PutUint32(b[off:], uint32(len(nameBytes)))
	off += 4
	copy(b[off:], nameBytes)
	off += len(nameBytes)
	return off
}

func readEntry(b []byte) (Entry, int, error) {
	if len(b) < entryFixedSize {
		return Entry{}, 0, fmt.Errorf("chunk: truncated entry table")
	}
	var e Entry
	off := 0
	e.FileUUID = getUUID(b[off:])
	off += 16
	e.Type = EntryType(byteOrder.Uint16(b[off:]))
	off += 2
	e.TimeModified = int64(byteOrder.Uint64(b[off:]))
	off += 8
	e.Size = byteOrder.Uint64(b[off:])
	off += 8
	e.Owner = byteOrder.Uint32(b[off:])
	off += 4
	e.Group = byteOrder.Uint32(b[off:])
	off += 4
	e.Mode = byteOrder.Uint32(b[off:])
	off += 4
	e.Checksum = byteOrder.Uint32(b[off:])
	off += 4
	e.BlobStartOff = byteOrder.Uint64(b[off:])
	off += 8
	e.BlobLenBytes = byteOrder.Uint64(b[off:])
	off += 8
	e.BlobFileOffset = byteOrder.Uint64(b[off:])
	off += 8
	nameLen := byteOrder.Uint32(b[off:])
	off += 4
	if int64(off)+int64(nameLen) > int64(len(b)) {
		return Entry{}, 0, fmt.Errorf("chunk: truncated entry name")
	}
	name := b[off : off+int(nameLen)]
	off += int(nameLen)
	// Trim the NUL terminator.
	if n := len(name); n > 0 && name[n-1] == 0 {
		name = name[:n-1]
	}
	e.Name = string(name)
	return e, off, nil
}

// Parsed is a parsed chunk image: its header and entry table, plus
// access to the original buffer so blob bytes can be sliced out without
// a copy.
type Parsed struct {
	Header  Header
	Entries []Entry
	raw     []byte
}

// Parse reads a chunk's header and entry table from a byte image. It
// does not validate entry checksums; call VerifyEntry for that.
func Parse(data []byte) (*Parsed, error) {
	if len(data) < headerFixedSize {
		return nil, fmt.Errorf("chunk: short header (%d bytes)", len(data))
	}

	var h Header
	off := 0
	h.Version = byteOrder.Uint32(data[off:])
	off += 4
	h.JobUUID = getUUID(data[off:])
	off += 16
	h.ChunkIndex = byteOrder.Uint64(data[off:])
	off += 8
	h.ChunkLenBytes = byteOrder.Uint64(data[off:])
	off += 8
	copy(h.EncryptionMethod[:], data[off:off+encryptionMethodSize])
	off += encryptionMethodSize
	copy(h.EncryptionIV[:], data[off:off+encryptionIVSize])
	off += encryptionIVSize
	off += headerReservedSize
	h.NumFileEntries = byteOrder.Uint32(data[off:])
	off += 4

	if h.Version != FormatVersion {
		// Non-fatal: parsing continues under the only layout this package
		// knows. Callers compare Header.Version against FormatVersion and
		// warn (the reader tool prints a warning to stderr).
	}

	entries := make([]Entry, 0, h.NumFileEntries)
	for i := uint32(0); i < h.NumFileEntries; i++ {
		e, n, err := readEntry(data[off:])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		off += n
	}

	return &Parsed{Header: h, Entries: entries, raw: data}, nil
}

// Blob returns the raw blob bytes for entry i.
func (p *Parsed) Blob(i int) []byte {
	e := p.Entries[i]
	if e.Type == EntryTypeDir || e.BlobLenBytes == 0 {
		return nil
	}
	start := e.BlobStartOff
	end := start + e.BlobLenBytes
	if end > uint64(len(p.raw)) {
		end = uint64(len(p.raw))
	}
	return p.raw[start:end]
}

// VerifyEntry recomputes entry i's checksum and reports whether it
// matches the stored value. A mismatch indicates media corruption; the
// caller decides whether to abort or merely report it (the reader tool
// reports and proceeds).
func (p *Parsed) VerifyEntry(i int) bool {
	e := p.Entries[i]
	if e.Type == EntryTypeDir {
		return true
	}
	return Checksum(p.Blob(i)) == e.Checksum
}
