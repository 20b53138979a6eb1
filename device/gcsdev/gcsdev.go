// device/gcsdev/gcsdev.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package gcsdev implements device.Device over a Google Cloud Storage
// bucket: each tape record becomes one object named by a monotonically
// increasing block number under a per-medium prefix, a file mark is a
// zero-length marker object, and end-of-medium is simulated by a
// configurable per-medium object-count cap (there is no byte-count
// cap). Grounded on
// the teacher's storage/gcs.go, including its retry-with-backoff helper
// and its post-upload local/remote CRC-32C cross-check.
package gcsdev

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"io/ioutil"
	"time"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/net/context"

	"github.com/mmp/tapebak/device"
	"github.com/mmp/tapebak/tlog"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// DefaultMaxObjects is the simulated medium capacity, in objects, used
// when none is configured.
const DefaultMaxObjects = 100000

// Options configures a gcsdev.Device.
type Options struct {
	BucketName string
	// Prefix namespaces this medium's objects within the bucket, so one
	// bucket can hold multiple virtual tapes.
	Prefix string
	// MaxObjects simulates end-of-medium once this many records (data
	// plus file-mark objects) have been written. Zero means
	// DefaultMaxObjects.
	MaxObjects int64
	MaxBytesPerSecond int
}

// Device is a GCS-object-backed virtual sequential device.
type Device struct {
	device.StateMachine

	ctx    context.Context
	bucket *gcs.BucketHandle
	opts   Options
	log    *tlog.Logger

	blockNo int64
	atEOM   bool
}

// Open attaches to (or begins writing) a virtual tape at opts.Prefix in
// the named bucket.
func Open(client *gcs.Client, opts Options, log *tlog.Logger) *Device {
	if opts.MaxObjects <= 0 {
		opts.MaxObjects = DefaultMaxObjects
	}
	return &Device{
		ctx:    context.Background(),
		bucket: client.Bucket(opts.BucketName),
		opts:   opts,
		log:    log,
	}
}

func (d *Device) objectName(block int64) string {
	return fmt.Sprintf("%s/%012d", d.opts.Prefix, block)
}

func retry(name string, log *tlog.Logger, f func() error) error {
	const maxTries = 5
	for tries := 0; ; tries++ {
		err := f()
		if err == nil || tries == maxTries {
			return err
		}
		log.Warning("%s: sleeping due to error %s", name, err.Error())
		time.Sleep(time.Duration(100*(tries+1)) * time.Millisecond)
	}
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
	d.blockNo = block
	d.atEOM = false
	return nil
}

func (d *Device) Rewind() error {
	if err := d.Begin(device.Rewinding); err != nil {
		return err
	}
	defer d.End()
	d.blockNo = 0
	d.atEOM = false
	return nil
}

func (d *Device) Eject() error {
	return d.RequireIdleForEject()
}

func (d *Device) LockMedium(locked bool) error {
	return nil
}

func (d *Device) Write(data []byte, appendFilemark bool) (int, error) {
	if err := d.Begin(device.WritingData); err != nil {
		return 0, err
	}
	defer d.End()

	if d.blockNo >= d.opts.MaxObjects {
		d.atEOM = true
		return 0, device.ErrEndOfMedium
	}

	name := d.objectName(d.blockNo)
	if err := d.upload(name, data); err != nil {
		return 0, err
	}
	d.blockNo++

	if appendFilemark {
		if err := d.writeMarkLocked(); err != nil {
			return len(data), err
		}
	}
	return len(data), nil
}

func (d *Device) WriteFileMark() error {
	if err := d.Begin(device.WritingMetadata); err != nil {
		return err
	}
	defer d.End()
	return d.writeMarkLocked()
}

// writeMarkLocked assumes the caller already transitioned the state
// machine out of Idle.
func (d *Device) writeMarkLocked() error {
	if d.blockNo >= d.opts.MaxObjects {
		d.atEOM = true
		return device.ErrEndOfMedium
	}
	name := d.objectName(d.blockNo) + ".mark"
	if err := d.upload(name, nil); err != nil {
		return err
	}
	d.blockNo++
	return nil
}

func (d *Device) upload(name string, data []byte) error {
	return retry(name, d.log, func() error {
		obj := d.bucket.Object(name)
		w := obj.NewWriter(d.ctx)
		w.ChunkSize = 256 * 1024
		if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}

		localCRC := crc32.Checksum(data, castagnoliTable)
		remoteCRC := w.Attrs().CRC32C
		if localCRC != remoteCRC {
			return fmt.Errorf("gcsdev: %s: CRC32C mismatch, local %d remote %d", name, localCRC, remoteCRC)
		}
		return nil
	})
}

func (d *Device) Read(buf []byte) (int, error) {
	if err := d.Begin(device.Reading); err != nil {
		return 0, err
	}
	defer d.End()

	name := d.objectName(d.blockNo)
	obj := d.bucket.Object(name)
	if _, err := obj.Attrs(d.ctx); err == gcs.ErrObjectNotExist {
		// Check whether it's actually a file-mark object at this
		// position.
		if _, merr := d.bucket.Object(name + ".mark").Attrs(d.ctx); merr == nil {
			return 0, io.EOF
		}
		d.atEOM = true
		return 0, device.ErrEndOfMedium
	}

	r, err := obj.NewReader(d.ctx)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return 0, err
	}
	n := copy(buf, data)
	d.blockNo++
	return n, nil
}

func (d *Device) IsAtEndOfMedium() bool {
	return d.atEOM
}

func (d *Device) SkipFileMark() error {
	name := d.objectName(d.blockNo) + ".mark"
	if _, err := d.bucket.Object(name).Attrs(d.ctx); err != nil {
		return err
	}
	d.blockNo++
	return nil
}

var _ device.Device = (*Device)(nil)
