// Package serial implements the SB/SC 8-bit shift register link port
// described in spec.md §4.7. Serial link between two instances is out of
// scope (spec.md §1 Non-goals); this component models a single port
// talking to an absent peer, per spec.md §8's "external clock: behavior
// is never completes" boundary case.
package serial

import "github.com/mlang/gbcore/addr"

const (
	ctrlStart      uint8 = 1 << 7
	ctrlSpeedCGB   uint8 = 1 << 1
	ctrlClockInt   uint8 = 1 << 0
	shiftsPerByte        = 8
	cyclesPerShift       = 512 // internal-clock bit period at single speed, DMG/CGB
)

// Port models the serial data/control registers and the internal-clock
// shift timing.
type Port struct {
	sb, sc  byte
	active  bool
	bitsLeft int
	cyclesLeft int

	doubleSpeed bool

	InterruptRequested bool
}

// New returns an idle serial port.
func New() *Port {
	return &Port{}
}

// SetDoubleSpeed toggles the CGB double-speed shift-rate divisor.
func (p *Port) SetDoubleSpeed(on bool) { p.doubleSpeed = on }

func (p *Port) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return p.sb
	case addr.SC:
		ctrl := p.sc | 0x7C // bits 2-6 unused, always read 1
		if p.active {
			ctrl |= ctrlStart
		}
		return ctrl
	default:
		return 0xFF
	}
}

func (p *Port) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		p.sb = value
	case addr.SC:
		p.sc = value
		p.maybeStart()
	}
}

func (p *Port) maybeStart() {
	if p.active {
		return
	}
	if p.sc&ctrlStart == 0 {
		return
	}
	if p.sc&ctrlClockInt == 0 {
		// External clock: the peer is absent, so per spec.md §4.7/§8 the
		// transfer is started but never completes without an external
		// clock tick driving it. We leave `active` false so Tick does
		// nothing and SC.start stays set, matching "never completes".
		return
	}

	p.active = true
	p.bitsLeft = shiftsPerByte
	rate := cyclesPerShift
	if p.sc&ctrlSpeedCGB != 0 && p.doubleSpeed {
		rate /= 4
	}
	p.cyclesLeft = rate
}

// Tick advances the internal-clock shift state machine.
func (p *Port) Tick(cycles int) {
	if !p.active {
		return
	}
	rate := cyclesPerShift
	if p.sc&ctrlSpeedCGB != 0 && p.doubleSpeed {
		rate /= 4
	}

	p.cyclesLeft -= cycles
	for p.cyclesLeft <= 0 {
		p.cyclesLeft += rate
		p.sb = (p.sb << 1) | 1 // MSB-first shift, clocking in 0xFF from an absent peer
		p.bitsLeft--
		if p.bitsLeft <= 0 {
			p.complete()
			return
		}
	}
}

func (p *Port) complete() {
	p.active = false
	p.sc &^= ctrlStart
	p.InterruptRequested = true
}

// ConsumeInterrupt reports and clears the latched serial-completion IRQ.
func (p *Port) ConsumeInterrupt() bool {
	if p.InterruptRequested {
		p.InterruptRequested = false
		return true
	}
	return false
}
