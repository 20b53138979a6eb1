// config/config_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "daemon.yaml")
	doc := `
backupRoot: /var/data
excludes:
  - .cache
  - /tmp
device:
  kind: file
  path: /dev/tape0
  capacity: 1073741824
changer:
  numSlots: 8
  numPortals: 1
  numDrives: 1
httpListenAddr: ":8080"
`
	if err := os.WriteFile(p, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %+v", err)
	}
	if c.BackupRoot != "/var/data" {
		t.Errorf("got %q, want /var/data", c.BackupRoot)
	}
	if c.Device.Kind != "file" || c.Device.Capacity != 1073741824 {
		t.Errorf("got device %+v", c.Device)
	}
	if c.Changer == nil || c.Changer.NumSlots != 8 {
		t.Errorf("got changer %+v", c.Changer)
	}
}

func TestLoadValidNativeDeviceConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "daemon.yaml")
	doc := `
backupRoot: /var/data
device:
  kind: native
  libraryPath: /opt/tapebak/iolib.so
  deviceName: drive0
`
	if err := os.WriteFile(p, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %+v", err)
	}
	if c.Device.Kind != "native" {
		t.Errorf("got kind %q, want native", c.Device.Kind)
	}
	if c.Device.LibraryPath != "/opt/tapebak/iolib.so" {
		t.Errorf("got libraryPath %q", c.Device.LibraryPath)
	}
	if c.Device.DeviceName != "drive0" {
		t.Errorf("got deviceName %q", c.Device.DeviceName)
	}
}

func TestLoadMissingBackupRootFails(t *testing.T) {
	p := filepath.Join(t.TempDir(), "daemon.yaml")
	if err := os.WriteFile(p, []byte("device:\n  kind: file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected an error for a missing backupRoot")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
