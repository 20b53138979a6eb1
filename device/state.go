// device/state.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package device

import "sync"

// State is one of the drive's operating states (§4.7).
type State int

const (
	Idle State = iota
	WritingData
	WritingMetadata
	Reading
	SeekingForward
	SeekingBackward
	Rewinding
	Loading
	Unloading
	Erasing
	Retensioning
	Unknown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case WritingData:
		return "WritingData"
	case WritingMetadata:
		return "WritingMetadata"
	case Reading:
		return "Reading"
	case SeekingForward:
		return "SeekingForward"
	case SeekingBackward:
		return "SeekingBackward"
	case Rewinding:
		return "Rewinding"
	case Loading:
		return "Loading"
	case Unloading:
		return "Unloading"
	case Erasing:
		return "Erasing"
	case Retensioning:
		return "Retensioning"
	default:
		return "Unknown"
	}
}

// StateMachine is the shared drive-state bookkeeping every concrete
// Device backend embeds. It enforces that eject is only valid from
// Idle and that seek/write are rejected from any non-Idle state.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

// Begin transitions from Idle into op, returning ErrWrongState if the
// drive is not currently Idle.
func (d *StateMachine) Begin(op State) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Idle {
		return ErrWrongState
	}
	d.state = op
	return nil
}

// End returns the drive to Idle. It is always valid.
func (d *StateMachine) End() {
	d.mu.Lock()
	d.state = Idle
	d.mu.Unlock()
}

// Status returns the current state.
func (d *StateMachine) Status() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// RequireIdleForEject reports whether eject may proceed: only from
// Idle.
func (d *StateMachine) RequireIdleForEject() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Idle {
		return ErrWrongState
	}
	return nil
}
