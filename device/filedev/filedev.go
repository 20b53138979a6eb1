// device/filedev/filedev.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package filedev implements device.Device backed by a single regular
// file, treating it as a sequential medium: records are appended with a
// small framing header, a file mark is a reserved zero-length frame,
// and end-of-medium is simulated once a configurable capacity would be
// exceeded. Grounded on the teacher's file-backed, size-capped pack
// files (storage/disk.go), generalized from a content-addressed pack
// format to a plain append-only tape-record log.
package filedev

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/mmp/tapebak/device"
)

const (
	frameData      = 0
	frameFileMark  = 1
	frameHeaderLen = 1 + 8 // type byte + uint64 length
)

// DefaultCapacity is the simulated medium capacity used when none is
// configured.
const DefaultCapacity = 2 << 30 // 2 GiB

// Device is a file-backed virtual sequential device.
type Device struct {
	device.StateMachine

	Capacity int64

	path   string
	f      *os.File
	offset int64 // current read/write byte offset
	// offsets[i] is the byte offset of the start of the i'th record's
	// frame header, used by SeekTo/GetPosition to address by block.
	offsets []int64
	blockNo int64
	atEOM   bool
	locked  bool
}

// Open opens (creating if necessary) a file-backed virtual tape at
// path.
func Open(path string, capacity int64) (*Device, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	d := &Device{Capacity: capacity, path: path, f: f}
	if err := d.indexExisting(); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) indexExisting() error {
	var off int64
	for {
		var hdr [frameHeaderLen]byte
		n, err := io.ReadFull(d.f, hdr[:])
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			break
		}
		if err != nil {
			return err
		}
		length := int64(binary.LittleEndian.Uint64(hdr[1:]))
		d.offsets = append(d.offsets, off)
		off += frameHeaderLen + length
		if _, err := d.f.Seek(off, io.SeekStart); err != nil {
			return err
		}
	}
	d.offset = off
	return nil
}

func (d *Device) GetStatus() (device.State, error) {
	return d.StateMachine.Status(), nil
}

func (d *Device) GetPosition() (int64, error) {
	return d.blockNo, nil
}

func (d *Device) SeekTo(block int64) error {
	if err := d.Begin(device.SeekingForward); err != nil {
		return err
	}
	defer d.End()

	if block < 0 || block > int64(len(d.offsets)) {
		return errors.New("filedev: seek out of range")
	}
	if block == int64(len(d.offsets)) {
		d.offset, _ = d.f.Seek(0, io.SeekEnd)
	} else {
		d.offset = d.offsets[block]
		d.f.Seek(d.offset, io.SeekStart)
	}
	d.blockNo = block
	d.atEOM = false
	return nil
}

func (d *Device) Rewind() error {
	if err := d.Begin(device.Rewinding); err != nil {
		return err
	}
	defer d.End()
	d.f.Seek(0, io.SeekStart)
	d.offset = 0
	d.blockNo = 0
	d.atEOM = false
	return nil
}

func (d *Device) Eject() error {
	if err := d.RequireIdleForEject(); err != nil {
		return err
	}
	return d.f.Close()
}

func (d *Device) LockMedium(locked bool) error {
	// Advisory only; no physical medium to lock (Open Question, §9).
	d.locked = locked
	return nil
}

func (d *Device) Write(data []byte, appendFilemark bool) (int, error) {
	if err := d.Begin(device.WritingData); err != nil {
		return 0, err
	}
	defer d.End()

	frameLen := int64(frameHeaderLen) + int64(len(data))
	if appendFilemark {
		frameLen += frameHeaderLen
	}
	if d.offset+frameLen > d.Capacity {
		d.atEOM = true
		return 0, device.ErrEndOfMedium
	}

	n, err := d.writeFrame(frameData, data)
	if err != nil {
		return n, err
	}
	if appendFilemark {
		if _, err := d.writeFrame(frameFileMark, nil); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (d *Device) WriteFileMark() error {
	if err := d.Begin(device.WritingMetadata); err != nil {
		return err
	}
	defer d.End()
	_, err := d.writeFrame(frameFileMark, nil)
	return err
}

func (d *Device) writeFrame(kind byte, data []byte) (int, error) {
	var hdr [frameHeaderLen]byte
	hdr[0] = kind
	binary.LittleEndian.PutUint64(hdr[1:], uint64(len(data)))

	d.offsets = append(d.offsets, d.offset)
	if _, err := d.f.Write(hdr[:]); err != nil {
		return 0, err
	}
	n := 0
	if len(data) > 0 {
		var err error
		n, err = d.f.Write(data)
		if err != nil {
			return n, err
		}
	}
	d.offset += int64(frameHeaderLen + len(data))
	d.blockNo++
	return n, nil
}

func (d *Device) Read(buf []byte) (int, error) {
	if err := d.Begin(device.Reading); err != nil {
		return 0, err
	}
	defer d.End()

	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(d.f, hdr[:]); err != nil {
		if err == io.EOF {
			d.atEOM = true
			return 0, device.ErrEndOfMedium
		}
		return 0, err
	}
	kind := hdr[0]
	length := int64(binary.LittleEndian.Uint64(hdr[1:]))
	d.offset += frameHeaderLen
	d.blockNo++

	if kind == frameFileMark {
		// Rewind the file position back over the file-mark frame so a
		// subsequent SkipFileMark/Read sees it again; callers use
		// SkipFileMark to consume it explicitly.
		d.f.Seek(-frameHeaderLen, io.SeekCurrent)
		d.offset -= frameHeaderLen
		d.blockNo--
		return 0, io.EOF
	}

	if int64(len(buf)) < length {
		return 0, errors.New("filedev: read buffer too small")
	}
	n, err := io.ReadFull(d.f, buf[:length])
	d.offset += int64(n)
	return n, err
}

func (d *Device) IsAtEndOfMedium() bool {
	return d.atEOM
}

func (d *Device) SkipFileMark() error {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(d.f, hdr[:]); err != nil {
		return err
	}
	if hdr[0] != frameFileMark {
		return errors.New("filedev: expected file mark")
	}
	d.offset += frameHeaderLen
	d.blockNo++
	return nil
}

var _ device.Device = (*Device)(nil)
