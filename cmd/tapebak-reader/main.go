// cmd/tapebak-reader/main.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// tapebak-reader inspects a single chunk file on disk: by default it
// lists the files packed into it, and with --extract it pulls one
// entry's blob data back out to a file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/mmp/tapebak/chunk"
)

func main() {
	in := flag.String("in", "", "chunk file to inspect")
	extract := flag.Int("extract", -1, "entry index to extract")
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: tapebak-reader --in <path> [--extract <index>]")
		os.Exit(1)
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	parsed, err := chunk.Parse(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if parsed.Header.Version != chunk.FormatVersion {
		fmt.Fprintf(os.Stderr, "warning: unknown chunk format version %#08x, parsing as %#08x\n",
			parsed.Header.Version, chunk.FormatVersion)
	}

	if *extract >= 0 {
		if err := extractEntry(parsed, *extract); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	listEntries(parsed)
}

func listEntries(p *chunk.Parsed) {
	for i, e := range p.Entries {
		owner := resolveUser(e.Owner)
		group := resolveGroup(e.Group)
		ok := "ok"
		if e.Size > 0 && !p.VerifyEntry(i) {
			ok = "CHECKSUM MISMATCH"
		}
		fmt.Printf("%4d  %-40s %04o  %-10s %-10s  %10s  blob@%d+%d  fileOff=%d  %s\n",
			i, e.Name, e.Mode, owner, group,
			humanize.Bytes(e.Size), e.BlobStartOff, e.BlobLenBytes, e.BlobFileOffset, ok)
	}
}

func resolveUser(uid uint32) string {
	if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
		return u.Username
	}
	return strconv.FormatUint(uint64(uid), 10)
}

func resolveGroup(gid uint32) string {
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10)); err == nil {
		return g.Name
	}
	return strconv.FormatUint(uint64(gid), 10)
}

func extractEntry(p *chunk.Parsed, index int) error {
	if index < 0 || index >= len(p.Entries) {
		return fmt.Errorf("entry index %d out of range (chunk has %d entries)", index, len(p.Entries))
	}
	e := p.Entries[index]
	name := filepath.Base(e.Name)

	if e.Size > 0 && !p.VerifyEntry(index) {
		fmt.Fprintf(os.Stderr, "%s: CHECKSUM MISMATCH, extracting anyway\n", e.Name)
	}

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(e.Mode))
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(int64(e.BlobFileOffset), 0); err != nil {
		return err
	}
	if _, err := f.Write(p.Blob(index)); err != nil {
		return err
	}
	return nil
}
