// Package interrupt implements the IE/IF/IME interrupt controller
// described in spec.md §4.2: request/ack protocol, the EI one-instruction
// delay, and the HALT-bug precondition check.
package interrupt

import "github.com/mlang/gbcore/addr"

// bitOrder is the fixed interrupt priority, lowest bit first.
var bitOrder = [5]addr.Interrupt{
	addr.VBlankInterrupt,
	addr.LCDSTATInterrupt,
	addr.TimerInterrupt,
	addr.SerialInterrupt,
	addr.JoypadInterrupt,
}

// Controller holds IE, IF and IME plus the pending-enable flag used to
// implement EI's one-instruction-delayed effect.
type Controller struct {
	ie  uint8
	if_ uint8
	ime bool

	eiPending bool // EI was executed; IME is set at the start of the next instruction
}

// New returns a controller with nothing enabled or pending, matching
// post-boot-ROM hardware state (IE=0, IF=0xE0, IME=0).
func New() *Controller {
	return &Controller{if_: 0xE0}
}

// IE returns the Interrupt Enable register.
func (c *Controller) IE() uint8 { return c.ie }

// SetIE writes the Interrupt Enable register.
func (c *Controller) SetIE(v uint8) { c.ie = v }

// IF returns the Interrupt Flag register. Bits 5-7 always read as 1 on
// real hardware (spec.md §3, mirrored from the teacher's mem.go comment).
func (c *Controller) IF() uint8 { return c.if_ | 0xE0 }

// SetIF writes the Interrupt Flag register; the upper three bits are
// pinned high regardless of what's written, matching hardware.
func (c *Controller) SetIF(v uint8) { c.if_ = (v & 0x1F) | 0xE0 }

// Request sets the IF bit for the given interrupt source.
func (c *Controller) Request(i addr.Interrupt) {
	c.if_ |= uint8(i)
}

// Clear clears the IF bit for the given interrupt source.
func (c *Controller) Clear(i addr.Interrupt) {
	c.if_ &^= uint8(i)
}

// IME reports the master interrupt enable flip-flop.
func (c *Controller) IME() bool { return c.ime }

// SetIMEImmediate sets IME synchronously (used by DI, and by the
// dispatch sequence itself when it clears IME on entry).
func (c *Controller) SetIMEImmediate(v bool) {
	c.ime = v
	c.eiPending = false
}

// RequestEnable arms the one-instruction-delayed IME=1 transition caused
// by EI; the next InstructionBoundary call, made as the instruction after
// EI starts, flips IME, so no dispatch happens before that instruction.
func (c *Controller) RequestEnable() {
	c.eiPending = true
}

// InstructionBoundary advances the EI-delay state machine; the CPU calls
// this once per instruction, just before fetching it, so an EI executed by
// the previous instruction takes effect here.
func (c *Controller) InstructionBoundary() {
	if c.eiPending {
		c.ime = true
		c.eiPending = false
	}
}

// Pending reports whether any enabled interrupt is currently flagged,
// independent of IME — this is the condition the HALT bug and STOP/HALT
// wake checks use.
func (c *Controller) Pending() bool {
	return (c.ie & c.if_ & 0x1F) != 0
}

// Dispatchable reports whether an interrupt should be dispatched at the
// current instruction boundary: spec.md §3 invariant
// ime && (ie & if & 0x1F) != 0.
func (c *Controller) Dispatchable() bool {
	return c.ime && c.Pending()
}

// HighestPending returns the highest-priority pending-and-enabled
// interrupt's vector and bit position, acking (clearing) it in IF and
// clearing IME, per the 5-m-cycle dispatch sequence in spec.md §4.2.
// Callers must have already checked Dispatchable().
func (c *Controller) HighestPending() (vector uint16, bitPos uint8, ok bool) {
	active := c.ie & c.if_ & 0x1F
	for pos := uint8(0); pos < 5; pos++ {
		if active&(1<<pos) != 0 {
			c.if_ &^= uint8(bitOrder[pos])
			c.ime = false
			c.eiPending = false
			return addr.Vector(pos), pos, true
		}
	}
	return 0, 0, false
}
