// cmd/tapebak-daemon/main.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// tapebak-daemon runs a single backup job against a configured
// sequential device and exposes its progress over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	gcs "cloud.google.com/go/storage"

	"github.com/mmp/tapebak/changer"
	"github.com/mmp/tapebak/config"
	"github.com/mmp/tapebak/device"
	"github.com/mmp/tapebak/device/filedev"
	"github.com/mmp/tapebak/device/gcsdev"
	"github.com/mmp/tapebak/device/nativedev"
	"github.com/mmp/tapebak/httpapi"
	"github.com/mmp/tapebak/job"
	"github.com/mmp/tapebak/tlog"
	"github.com/mmp/tapebak/writer"
)

func main() {
	configPath := flag.String("config", "", "path to the daemon's YAML configuration file")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: tapebak-daemon --config <path>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := tlog.New(cfg.Verbose, cfg.Debug)

	dev, err := openDevice(cfg.Device, log)
	if err != nil {
		log.Fatal("opening device: %s", err)
	}

	var ch *changer.Changer
	var swapper writer.MediumSwapper = writer.NoSwap{}
	if cfg.Changer != nil {
		ch = changer.New(changer.Config{
			NumSlots:   cfg.Changer.NumSlots,
			NumPortals: cfg.Changer.NumPortals,
			NumDrives:  cfg.Changer.NumDrives,
		})
		swapper = &writer.ChangerSwapper{Changer: ch}
	}

	j := job.New(cfg.BackupRoot, dev, swapper, log)
	j.Scanner.Excludes = cfg.Excludes
	if cfg.Chunk.MaxChunkSize > 0 {
		j.Packer.MaxChunkSize = cfg.Chunk.MaxChunkSize
	}
	if cfg.Chunk.HeaderReserved > 0 {
		j.Packer.HeaderReserved = cfg.Chunk.HeaderReserved
	}
	if cfg.Chunk.MinFreeSpace > 0 {
		j.Packer.MinFreeSpace = cfg.Chunk.MinFreeSpace
	}

	server := httpapi.NewServer(
		[]httpapi.Library{{Name: cfg.BackupRoot, DeviceKind: cfg.Device.Kind, HasChanger: cfg.Changer != nil}},
		ch,
		nil,
	)
	server.Register(j)

	addr := cfg.HTTPListenAddr
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		log.Print("listening on %s", addr)
		log.CheckError(http.ListenAndServe(addr, server.Router()))
	}()

	j.Start(context.Background())
	j.Wait()

	st := j.Status()
	if st.State == job.Failed {
		log.Fatal("job %s failed: %s", st.UUID, st.LastError)
	}
	log.Print("job %s: wrote %d chunks, %d bytes", st.UUID, st.ChunksWritten, st.BytesWritten)
}

func openDevice(c config.DeviceConfig, log *tlog.Logger) (device.Device, error) {
	switch c.Kind {
	case "file":
		return filedev.Open(c.Path, c.Capacity)
	case "gcs":
		client, err := gcs.NewClient(context.Background())
		if err != nil {
			return nil, err
		}
		return gcsdev.Open(client, gcsdev.Options{
			BucketName: c.Bucket,
			Prefix:     c.Prefix,
			MaxObjects: c.MaxObjects,
		}, log), nil
	case "native":
		path := c.LibraryPath
		if path == "" {
			located, err := nativedev.Locate()
			if err != nil {
				return nil, err
			}
			path = located
		}
		lib, err := nativedev.Load(path, nil)
		if err != nil {
			return nil, err
		}
		return lib.OpenSession(c.DeviceName)
	default:
		return nil, fmt.Errorf("unknown device kind %q", c.Kind)
	}
}
