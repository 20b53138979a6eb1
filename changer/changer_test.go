// changer/changer_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package changer

import "testing"

func TestLoadAndMoveToDrive(t *testing.T) {
	c := New(Config{NumSlots: 4, NumPortals: 1, NumDrives: 1})
	if err := c.LoadSlot(0, "VOL001"); err != nil {
		t.Fatalf("LoadSlot: %+v", err)
	}

	if err := c.Move(Slot, 0, Drive, 0); err != nil {
		t.Fatalf("Move: %+v", err)
	}

	drives := c.GetElements(Drive)
	if drives[0].VolumeTag != "VOL001" {
		t.Errorf("got %q, want VOL001", drives[0].VolumeTag)
	}
	slots := c.GetElements(Slot)
	if slots[0].Flags&Full != 0 {
		t.Errorf("source slot should be empty after move")
	}
}

func TestMoveFromEmptySlotFails(t *testing.T) {
	c := New(Config{NumSlots: 2, NumDrives: 1})
	if err := c.Move(Slot, 0, Drive, 0); err != ErrElementEmpty {
		t.Errorf("got %v, want ErrElementEmpty", err)
	}
}

func TestMoveToOccupiedDriveFails(t *testing.T) {
	c := New(Config{NumSlots: 2, NumDrives: 1})
	c.LoadSlot(0, "A")
	c.LoadSlot(1, "B")
	if err := c.Move(Slot, 0, Drive, 0); err != nil {
		t.Fatalf("Move: %+v", err)
	}
	if err := c.Move(Slot, 1, Drive, 0); err != ErrElementFull {
		t.Errorf("got %v, want ErrElementFull", err)
	}
}

func TestExchange(t *testing.T) {
	c := New(Config{NumSlots: 2, NumDrives: 1})
	c.LoadSlot(0, "A")
	c.Move(Slot, 0, Drive, 0)
	c.LoadSlot(0, "B")

	if err := c.Exchange(Drive, 0, Slot, 0); err != nil {
		t.Fatalf("Exchange: %+v", err)
	}
	if c.GetElements(Drive)[0].VolumeTag != "B" {
		t.Errorf("drive should now hold B")
	}
	if c.GetElements(Slot)[0].VolumeTag != "A" {
		t.Errorf("slot should now hold A")
	}
}

func TestFirstFullSlot(t *testing.T) {
	c := New(Config{NumSlots: 3, NumDrives: 1})
	if _, err := c.FirstFullSlot(); err == nil {
		t.Fatalf("expected error with no full slots")
	}
	c.LoadSlot(2, "VOL9")
	addr, err := c.FirstFullSlot()
	if err != nil || addr != 2 {
		t.Errorf("got (%d, %v), want (2, nil)", addr, err)
	}
}

func TestPerformInventory(t *testing.T) {
	c := New(Config{NumSlots: 1, NumDrives: 1})
	c.LoadSlot(0, "X")
	c.slots[0].Flags &^= Full // desync, as if set out-of-band
	c.PerformInventory()
	if c.GetElements(Slot)[0].Flags&Full == 0 {
		t.Errorf("PerformInventory should re-derive Full from VolumeTag")
	}
}
