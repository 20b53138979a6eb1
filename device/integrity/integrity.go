// device/integrity/integrity.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package integrity wraps any device.Device with an optional
// Reed-Solomon parity layer: after each tape record is followed by its
// file mark, a parity sidecar for that record is written as one
// additional record+file-mark pair. This is an explicitly off-by-default
// protection against bit rot on the medium, grounded on rdso (a
// generalization of the teacher's per-pack-file integrity checking) —
// it is unrelated to the on-media encryption the format's Non-goals
// exclude.
package integrity

import (
	"bytes"

	"github.com/mmp/tapebak/device"
	"github.com/mmp/tapebak/rdso"
)

// Defaults for the parity shard layout. These trade redundancy for
// space; 2 parity shards tolerate 2 corrupted shards per record.
const (
	DefaultDataShards   = 8
	DefaultParityShards = 2
	DefaultHashRate     = 1 << 16
)

// Device wraps an underlying device.Device, writing a parity sidecar
// record after each data record's file mark.
type Device struct {
	device.Device

	DataShards, ParityShards int
	HashRate                 int64

	lastRecord []byte
}

// Wrap returns an integrity-checked Device layered over inner, using
// the default shard layout.
func Wrap(inner device.Device) *Device {
	return &Device{
		Device:       inner,
		DataShards:   DefaultDataShards,
		ParityShards: DefaultParityShards,
		HashRate:     DefaultHashRate,
	}
}

// Write remembers the record so WriteFileMark can compute its parity
// sidecar once the record is known to be complete.
func (d *Device) Write(data []byte, appendFilemark bool) (int, error) {
	n, err := d.Device.Write(data, false)
	if err != nil {
		return n, err
	}
	d.lastRecord = append([]byte(nil), data...)
	if appendFilemark {
		if err := d.WriteFileMark(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteFileMark writes the underlying file mark, then — if a record is
// pending — its Reed-Solomon parity sidecar as a second record+mark
// pair.
func (d *Device) WriteFileMark() error {
	if err := d.Device.WriteFileMark(); err != nil {
		return err
	}
	if d.lastRecord == nil {
		return nil
	}

	var rs bytes.Buffer
	if err := rdso.EncodeBytes(d.lastRecord, &rs, d.DataShards, d.ParityShards, d.HashRate); err != nil {
		return err
	}
	d.lastRecord = nil

	if _, err := d.Device.Write(rs.Bytes(), true); err != nil {
		return err
	}
	return nil
}

// VerifyRecord checks a just-read data record against the parity
// sidecar record that should immediately follow it on the medium. It
// reports a mismatch rather than repairing it; repair is available via
// rdso's file-oriented recovery path for offline use.
func VerifyRecord(data, sidecar []byte) error {
	return rdso.CheckBytes(data, sidecar)
}

var _ device.Device = (*Device)(nil)
