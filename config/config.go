// config/config.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package config loads the daemon's YAML configuration: the backup
// root, exclusion filters, which device backend to use and its
// parameters, chunk-size tunables, simulated-changer geometry, and the
// HTTP listen address.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceConfig selects and parameterizes one device/filedev/gcsdev/
// nativedev backend.
type DeviceConfig struct {
	Kind string `yaml:"kind"` // "file", "gcs", or "native"

	// file
	Path     string `yaml:"path,omitempty"`
	Capacity int64  `yaml:"capacity,omitempty"`

	// gcs
	Bucket     string `yaml:"bucket,omitempty"`
	Prefix     string `yaml:"prefix,omitempty"`
	MaxObjects int64  `yaml:"maxObjects,omitempty"`

	// native: loads a dynamically-linked backend plugin (device/nativedev)
	// and opens one of the sessions it enumerates.
	LibraryPath string `yaml:"libraryPath,omitempty"` // overrides nativedev.Locate's search
	DeviceName  string `yaml:"deviceName,omitempty"`  // name passed to OpenSession
}

// ChangerConfig describes the simulated media changer's geometry. A
// nil *ChangerConfig in Config means no changer: the job runs against
// a single medium and aborts at end-of-medium.
type ChangerConfig struct {
	NumSlots   int `yaml:"numSlots"`
	NumPortals int `yaml:"numPortals"`
	NumDrives  int `yaml:"numDrives"`
}

// ChunkConfig holds the packer's tunables (§4.4); zero values fall back
// to pack.Packer's defaults.
type ChunkConfig struct {
	MaxChunkSize   int64 `yaml:"maxChunkSize,omitempty"`
	HeaderReserved int64 `yaml:"headerReserved,omitempty"`
	MinFreeSpace   int64 `yaml:"minFreeSpace,omitempty"`
}

// Config is the daemon's top-level configuration document.
type Config struct {
	BackupRoot string   `yaml:"backupRoot"`
	Excludes   []string `yaml:"excludes,omitempty"`

	Device  DeviceConfig   `yaml:"device"`
	Changer *ChangerConfig `yaml:"changer,omitempty"`
	Chunk   ChunkConfig    `yaml:"chunk,omitempty"`

	HTTPListenAddr string `yaml:"httpListenAddr,omitempty"`

	Verbose bool `yaml:"verbose,omitempty"`
	Debug   bool `yaml:"debug,omitempty"`
}

// Load reads and parses a YAML configuration document from path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if c.BackupRoot == "" {
		return Config{}, fmt.Errorf("config: %s: backupRoot is required", path)
	}
	if c.Device.Kind == "" {
		return Config{}, fmt.Errorf("config: %s: device.kind is required", path)
	}
	return c, nil
}
