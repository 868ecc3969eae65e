// Package joypad implements the P1 matrix described in spec.md §4.6: two
// row-select bits, two 4-bit button lines, edge-triggered IRQ on any
// visible 1->0 transition.
package joypad

// Key is one physical button.
type Key uint8

const (
	Right Key = iota
	Left
	Up
	Down
	A
	B
	Select
	Start
)

// Mask bits, matching spec.md §6's RIGHT,LEFT,UP,DOWN,A,B,SELECT,START =
// 0x01..0x80.
const (
	MaskRight  uint8 = 1 << 0
	MaskLeft   uint8 = 1 << 1
	MaskUp     uint8 = 1 << 2
	MaskDown   uint8 = 1 << 3
	MaskA      uint8 = 1 << 4
	MaskB      uint8 = 1 << 5
	MaskSelect uint8 = 1 << 6
	MaskStart  uint8 = 1 << 7
)

// Joypad tracks button/d-pad state (1 = released, 0 = pressed, matching
// hardware polarity) and the P1 row-select bits.
type Joypad struct {
	buttons uint8 // bits 0-3: A,B,Select,Start
	dpad    uint8 // bits 0-3: Right,Left,Up,Down
	select_ uint8 // raw P1 bits 4-5 as last written

	// InterruptRequested latches true on any visible 1->0 transition;
	// callers consume it once per update.
	InterruptRequested bool
}

// New returns a joypad with nothing pressed.
func New() *Joypad {
	return &Joypad{buttons: 0x0F, dpad: 0x0F}
}

// ButtonsDown presses every key named by mask (using the MaskX bits).
func (j *Joypad) ButtonsDown(mask uint8) {
	before := j.visibleLines()
	if mask&MaskRight != 0 {
		j.dpad &^= 1 << 0
	}
	if mask&MaskLeft != 0 {
		j.dpad &^= 1 << 1
	}
	if mask&MaskUp != 0 {
		j.dpad &^= 1 << 2
	}
	if mask&MaskDown != 0 {
		j.dpad &^= 1 << 3
	}
	if mask&MaskA != 0 {
		j.buttons &^= 1 << 0
	}
	if mask&MaskB != 0 {
		j.buttons &^= 1 << 1
	}
	if mask&MaskSelect != 0 {
		j.buttons &^= 1 << 2
	}
	if mask&MaskStart != 0 {
		j.buttons &^= 1 << 3
	}
	after := j.visibleLines()
	if before&^after != 0 {
		j.InterruptRequested = true
	}
}

// ButtonsUp releases every key named by mask.
func (j *Joypad) ButtonsUp(mask uint8) {
	if mask&MaskRight != 0 {
		j.dpad |= 1 << 0
	}
	if mask&MaskLeft != 0 {
		j.dpad |= 1 << 1
	}
	if mask&MaskUp != 0 {
		j.dpad |= 1 << 2
	}
	if mask&MaskDown != 0 {
		j.dpad |= 1 << 3
	}
	if mask&MaskA != 0 {
		j.buttons |= 1 << 0
	}
	if mask&MaskB != 0 {
		j.buttons |= 1 << 1
	}
	if mask&MaskSelect != 0 {
		j.buttons |= 1 << 2
	}
	if mask&MaskStart != 0 {
		j.buttons |= 1 << 3
	}
}

// visibleLines returns the 4 bits currently selected by P1, as they would
// read right now (before any interrupt bookkeeping).
func (j *Joypad) visibleLines() uint8 {
	selectDpad := j.select_&0x10 == 0
	selectButtons := j.select_&0x20 == 0
	switch {
	case selectButtons && selectDpad:
		return j.buttons & j.dpad & 0x0F
	case selectButtons:
		return j.buttons & 0x0F
	case selectDpad:
		return j.dpad & 0x0F
	default:
		return 0x0F
	}
}

// ConsumeInterrupt reports and clears the latched joypad IRQ.
func (j *Joypad) ConsumeInterrupt() bool {
	if j.InterruptRequested {
		j.InterruptRequested = false
		return true
	}
	return false
}

// Read returns the P1 register as software would see it: bits 6-7 always
// read 1, bits 4-5 are the selection as last written, bits 0-3 are the
// selected line.
func (j *Joypad) Read() uint8 {
	return 0xC0 | (j.select_ & 0x30) | j.visibleLines()
}

// Write updates the selection bits (4-5 only; 0-3 are read-only from
// software's perspective).
func (j *Joypad) Write(value uint8) {
	j.select_ = value & 0x30
}
