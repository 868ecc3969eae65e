package cpu

// Bus is everything the CPU needs from the rest of the system: byte-wide
// memory access and a way to advance every other ticked component in
// lockstep, one M-cycle at a time, so mid-instruction timing (OAM-DMA
// conflicts, STAT edges) stays accurate.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)

	// TickM advances every other component by one CPU M-cycle's worth of
	// real time (4 T-cycles at single speed, 2 at double speed).
	TickM()

	// Interrupts exposes the shared interrupt controller's dispatch
	// surface without the cpu package importing the interrupt package
	// directly, keeping the dependency edge one-directional.
	InterruptsDispatchable() bool
	InterruptsPending() bool
	InterruptsHighestPending() (vector uint16, bitPos uint8, ok bool)
	InterruptsInstructionBoundary()
	InterruptsRequestEnable()
	InterruptsSetIMEImmediate(bool)

	// SpeedSwitch reports and performs a CGB double-speed toggle armed by
	// KEY1 and consumed by STOP.
	SpeedSwitchPending() bool
	PerformSpeedSwitch()
}

// CPU is the SM83 register file and execution engine.
type CPU struct {
	r registers
	bus Bus

	halted  bool
	stopped bool

	// haltBugArmed reproduces the documented "HALT executed with
	// IME==0 and a pending-but-disabled interrupt" bug: the next
	// instruction fetch does not advance PC, causing it to be read twice.
	haltBugArmed bool

	cyclesThisStep int

	// ldBB records that opcode 0x40 (LD B,B) has executed at least once
	// since the last ConsumeLdBB call, the conventional test-ROM
	// breakpoint marker.
	ldBB bool
}

// New returns a CPU with the documented post-boot-ROM DMG register state.
// CGB post-boot state differs only in A (0x11); callers select via cgb.
func New(bus Bus, cgb bool) *CPU {
	c := &CPU{bus: bus}
	c.r.setAF(0x01B0)
	if cgb {
		c.r.setAF(0x11B0)
	}
	c.r.setBC(0x0013)
	c.r.setDE(0x00D8)
	c.r.setHL(0x014D)
	c.r.sp = 0xFFFE
	c.r.pc = 0x0100
	return c
}

func (c *CPU) PC() uint16 { return c.r.pc }
func (c *CPU) SP() uint16 { return c.r.sp }

func (c *CPU) A() byte { return c.r.a }
func (c *CPU) F() byte { return c.r.f }
func (c *CPU) B() byte { return c.r.b }
func (c *CPU) C() byte { return c.r.c }
func (c *CPU) D() byte { return c.r.d }
func (c *CPU) E() byte { return c.r.e }
func (c *CPU) H() byte { return c.r.h }
func (c *CPU) L() byte { return c.r.l }

// ConsumeLdBB reports and clears whether LD B,B has executed since the
// last call, for TestInfo's test-ROM breakpoint signal.
func (c *CPU) ConsumeLdBB() bool {
	v := c.ldBB
	c.ldBB = false
	return v
}

// tick advances every other ticked component by one M-cycle and counts it
// toward this Step's returned cycle count.
func (c *CPU) tick() {
	c.cyclesThisStep++
	c.bus.TickM()
}

func (c *CPU) read(address uint16) byte {
	v := c.bus.Read(address)
	c.tick()
	return v
}

func (c *CPU) write(address uint16, value byte) {
	c.bus.Write(address, value)
	c.tick()
}

func (c *CPU) fetch() byte {
	v := c.read(c.r.pc)
	if !c.haltBugArmed {
		c.r.pc++
	}
	c.haltBugArmed = false
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch()
	hi := c.fetch()
	return uint16(hi)<<8 | uint16(lo)
}

func (c *CPU) push(v uint16) {
	c.r.sp--
	c.write(c.r.sp, byte(v>>8))
	c.r.sp--
	c.write(c.r.sp, byte(v))
}

func (c *CPU) pop() uint16 {
	lo := c.read(c.r.sp)
	c.r.sp++
	hi := c.read(c.r.sp)
	c.r.sp++
	return uint16(hi)<<8 | uint16(lo)
}

// internalDelay spends one M-cycle doing nothing but ticking the bus,
// matching instructions whose timing includes internal (non-memory-access)
// cycles.
func (c *CPU) internalDelay() { c.tick() }

// Step executes exactly one instruction (dispatching an interrupt instead,
// if one is pending) and returns the number of M-cycles it consumed.
func (c *CPU) Step() int {
	c.cyclesThisStep = 0

	if c.dispatchInterruptIfPending() {
		return c.cyclesThisStep
	}

	if c.stopped {
		if c.bus.SpeedSwitchPending() {
			c.bus.PerformSpeedSwitch()
			c.stopped = false
		} else if c.bus.InterruptsPending() {
			c.stopped = false
		} else {
			c.tick()
			return c.cyclesThisStep
		}
	}

	if c.halted {
		if c.bus.InterruptsPending() {
			c.halted = false
		} else {
			c.tick()
			return c.cyclesThisStep
		}
	}

	// An EI executed by the previous instruction takes effect here, so the
	// earliest dispatch it allows comes after this instruction.
	c.bus.InterruptsInstructionBoundary()

	opcode := c.fetch()
	exec := opcodeTable[opcode]
	if exec == nil {
		exec = undefinedOp
	}
	exec(c)

	return c.cyclesThisStep
}

// dispatchInterruptIfPending performs the 5-M-cycle interrupt dispatch
// sequence described in spec.md §4.2 and returns true if it fired.
func (c *CPU) dispatchInterruptIfPending() bool {
	wasHalted := c.halted
	if wasHalted && !c.bus.InterruptsPending() {
		return false
	}
	if !c.bus.InterruptsDispatchable() {
		if wasHalted && c.bus.InterruptsPending() {
			c.halted = false
		}
		return false
	}

	c.halted = false
	c.tick() // 2 internal cycles
	c.tick()

	// IF/IE are consulted and acked only after PC's high byte has been
	// pushed, which is when the vector is chosen; a source disabled by that
	// push degrades the vector to 0x0000 (spec.md §4.2 quirk).
	c.r.sp--
	c.write(c.r.sp, byte(c.r.pc>>8))
	vector, _, ok := c.bus.InterruptsHighestPending()
	c.r.sp--
	c.write(c.r.sp, byte(c.r.pc))

	if !ok {
		vector = 0x0000
	}
	c.r.pc = vector
	c.tick()
	return true
}

// haltInstruction is invoked by the HALT opcode implementation.
func (c *CPU) haltInstruction() {
	if !c.bus.InterruptsDispatchable() && c.bus.InterruptsPending() {
		// HALT bug: IME is 0 but an interrupt is already pending — the
		// CPU fails to halt and the next opcode fetch does not advance PC.
		c.haltBugArmed = true
		return
	}
	c.halted = true
}

func (c *CPU) stopInstruction() {
	c.fetch() // STOP is followed by a discarded byte on real hardware
	if c.bus.SpeedSwitchPending() {
		c.bus.PerformSpeedSwitch()
		return
	}
	c.stopped = true
}

func undefinedOp(c *CPU) {
	// Real SM83 opcodes 0xD3,0xDB,0xDD,0xE3,0xE4,0xEB,0xEC,0xED,0xF4,0xFC,0xFD
	// are unused and lock the CPU on real hardware. We treat them as a
	// one-cycle no-op rather than modeling the lockup.
}
