// changer/changer.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package changer simulates a media changer: a fixed collection of
// storage slots, import/export portals, and drives, connected by one
// transport that moves media between them. It exists so a job can run
// against a simulated multi-volume medium swap without real hardware,
// mirroring how a real changer's move/exchange commands are used to
// keep a sequential-device backend supplied with media.
package changer

import (
	"errors"
	"fmt"
	"sync"
)

// ElementFlags describes per-element status bits, modeled after a
// real media-changer's element-status-page flags.
type ElementFlags uint8

const (
	Full ElementFlags = 1 << iota
	PlacedByOperator
	InvalidLabel
	Accessible
	SupportsExport
	SupportsImport
)

func (f ElementFlags) String() string {
	s := ""
	for _, b := range []struct {
		bit  ElementFlags
		name string
	}{
		{Full, "Full"}, {PlacedByOperator, "PlacedByOperator"},
		{InvalidLabel, "InvalidLabel"}, {Accessible, "Accessible"},
		{SupportsExport, "SupportsExport"}, {SupportsImport, "SupportsImport"},
	} {
		if f&b.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += b.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// ElementKind distinguishes the four element types a changer reports.
type ElementKind int

const (
	Transport ElementKind = iota
	Slot
	Portal
	Drive
)

// Element is one slot/drive/portal/transport position and the medium
// (if any) currently occupying it.
type Element struct {
	Kind    ElementKind
	Address int
	Flags   ElementFlags
	// VolumeTag identifies the medium occupying this element, empty if
	// Flags has no Full bit set.
	VolumeTag string
}

var (
	ErrElementEmpty    = errors.New("changer: source element is empty")
	ErrElementFull     = errors.New("changer: destination element is occupied")
	ErrNoSuchElement   = errors.New("changer: no such element address")
	ErrInaccessible    = errors.New("changer: element is not accessible")
)

// Changer is an in-process simulated media changer.
type Changer struct {
	mu       sync.Mutex
	slots    []Element
	portals  []Element
	drives   []Element
	transport Element
}

// Config describes the simulated changer's geometry.
type Config struct {
	NumSlots   int
	NumPortals int
	NumDrives  int
}

// New builds a changer with the given geometry, all slots empty.
func New(cfg Config) *Changer {
	c := &Changer{transport: Element{Kind: Transport, Address: 0, Flags: Accessible}}
	for i := 0; i < cfg.NumSlots; i++ {
		c.slots = append(c.slots, Element{Kind: Slot, Address: i, Flags: Accessible})
	}
	for i := 0; i < cfg.NumPortals; i++ {
		c.portals = append(c.portals, Element{
			Kind: Portal, Address: i,
			Flags: Accessible | SupportsExport | SupportsImport,
		})
	}
	for i := 0; i < cfg.NumDrives; i++ {
		c.drives = append(c.drives, Element{Kind: Drive, Address: i, Flags: Accessible})
	}
	return c
}

// LoadSlot places a labeled medium into a slot at startup or via an
// operator action, bypassing the transport.
func (c *Changer) LoadSlot(address int, volumeTag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.find(Slot, address)
	if err != nil {
		return err
	}
	if e.Flags&Full != 0 {
		return ErrElementFull
	}
	e.Flags |= Full | PlacedByOperator
	e.VolumeTag = volumeTag
	return nil
}

// GetNumElements reports how many elements of kind are configured.
func (c *Changer) GetNumElements(kind ElementKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.elementsOfKind(kind))
}

// GetElements returns a snapshot of every element of kind.
func (c *Changer) GetElements(kind ElementKind) []Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	els := c.elementsOfKind(kind)
	out := make([]Element, len(els))
	for i, e := range els {
		out[i] = *e
	}
	return out
}

func (c *Changer) elementsOfKind(kind ElementKind) []*Element {
	switch kind {
	case Transport:
		return []*Element{&c.transport}
	case Slot:
		els := make([]*Element, len(c.slots))
		for i := range c.slots {
			els[i] = &c.slots[i]
		}
		return els
	case Portal:
		els := make([]*Element, len(c.portals))
		for i := range c.portals {
			els[i] = &c.portals[i]
		}
		return els
	case Drive:
		els := make([]*Element, len(c.drives))
		for i := range c.drives {
			els[i] = &c.drives[i]
		}
		return els
	default:
		return nil
	}
}

func (c *Changer) find(kind ElementKind, address int) (*Element, error) {
	for _, e := range c.elementsOfKind(kind) {
		if e.Address == address {
			return e, nil
		}
	}
	return nil, ErrNoSuchElement
}

// Move transfers a medium from src to dst via the transport. Both
// elements must be accessible; src must be occupied and dst empty.
func (c *Changer) Move(srcKind ElementKind, srcAddr int, dstKind ElementKind, dstAddr int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	src, err := c.find(srcKind, srcAddr)
	if err != nil {
		return err
	}
	dst, err := c.find(dstKind, dstAddr)
	if err != nil {
		return err
	}
	if src.Flags&Accessible == 0 || dst.Flags&Accessible == 0 {
		return ErrInaccessible
	}
	if src.Flags&Full == 0 {
		return ErrElementEmpty
	}
	if dst.Flags&Full != 0 {
		return ErrElementFull
	}

	dst.VolumeTag = src.VolumeTag
	dst.Flags |= Full
	dst.Flags &^= PlacedByOperator
	src.VolumeTag = ""
	src.Flags &^= Full | PlacedByOperator
	return nil
}

// Exchange swaps the media occupying two elements in one operation, as
// a real changer's EXCHANGE MEDIUM command does.
func (c *Changer) Exchange(aKind ElementKind, aAddr int, bKind ElementKind, bAddr int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, err := c.find(aKind, aAddr)
	if err != nil {
		return err
	}
	b, err := c.find(bKind, bAddr)
	if err != nil {
		return err
	}
	if a.Flags&Accessible == 0 || b.Flags&Accessible == 0 {
		return ErrInaccessible
	}
	a.VolumeTag, b.VolumeTag = b.VolumeTag, a.VolumeTag
	aFull, bFull := a.Flags&Full, b.Flags&Full
	a.Flags = (a.Flags &^ Full) | bFull
	b.Flags = (b.Flags &^ Full) | aFull
	return nil
}

// PerformInventory rebuilds the changer's idea of which elements are
// full by re-deriving Full from each element's VolumeTag. It exists to
// mirror a real changer's READ ELEMENT STATUS re-scan after
// out-of-band operator intervention (e.g. LoadSlot calls).
func (c *Changer) PerformInventory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range []ElementKind{Slot, Portal, Drive} {
		for _, e := range c.elementsOfKind(kind) {
			if e.VolumeTag != "" {
				e.Flags |= Full
			} else {
				e.Flags &^= Full
			}
		}
	}
}

// FirstFullSlot returns the address of the first occupied storage slot,
// for a writer picking the next medium to mount.
func (c *Changer) FirstFullSlot() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.slots {
		if e.Flags&Full != 0 {
			return e.Address, nil
		}
	}
	return 0, fmt.Errorf("changer: no full slots available")
}
