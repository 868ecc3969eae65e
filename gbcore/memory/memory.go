// Package memory implements the address bus described in spec.md §4.4: a
// single decode point for ROM/RAM/VRAM/OAM/IO, OAM-DMA with its bus
// conflicts, CGB general-purpose and h-blank HDMA, and WRAM/VRAM banking.
package memory

import (
	"github.com/mlang/gbcore/addr"
	"github.com/mlang/gbcore/audio"
	"github.com/mlang/gbcore/cart"
	"github.com/mlang/gbcore/clock"
	"github.com/mlang/gbcore/interrupt"
	"github.com/mlang/gbcore/joypad"
	"github.com/mlang/gbcore/logging"
	"github.com/mlang/gbcore/serial"
	"github.com/mlang/gbcore/timer"
	"github.com/mlang/gbcore/video"
)

// bus identifies which physical bus an address falls on, for OAM-DMA
// conflict modeling (spec.md §4.4): while a DMA transfer is active, CPU
// reads on the bus the transfer is NOT using see the current DMA byte,
// and accesses on the source's own bus proceed normally.
type bus int

const (
	busExternal bus = iota // ROM, cart RAM, WRAM — DMG bus 1 / CGB bus 1&3
	busVideo                // VRAM — bus 2
)

func busOf(address uint16) bus {
	if address >= 0x8000 && address <= 0x9FFF {
		return busVideo
	}
	return busExternal
}

// Memory wires every addressable component behind a single decode point.
// It holds non-owning pointers assigned once by the emulator at
// construction, forming a DAG (no component below it ever reaches back up
// to Memory or to each other).
type Memory struct {
	cgb bool

	cart       *cart.Cartridge
	clockRef   *clock.Clock
	interrupts *interrupt.Controller
	timerDev   *timer.Timer
	joypadDev  *joypad.Joypad
	serialDev  *serial.Port
	ppu        *video.PPU
	apu        *audio.APU
	recorder   *logging.Recorder

	wram     [8][0x1000]byte
	wramBank int // 1-7; SVBK 0 is treated as 1

	hram [0x7F]byte
	ie   uint8

	bootROMDisabled byte

	dma  dmaState
	hdma hdmaState

	pendingSpeedSwitch bool
}

type dmaState struct {
	pending           bool // within the 2-M-cycle startup delay before the first byte transfers
	startupCyclesLeft int

	active      bool
	sourceBase  uint16
	index       int
	cyclesLeft  int
	currentByte byte // last byte fetched from source, what a conflicting-bus CPU read sees
}

type hdmaState struct {
	srcHi, srcLo byte
	dstHi, dstLo byte
	active       bool
	hblankMode   bool
	remaining    int // bytes left to copy
	src, dst     uint16
	length5      byte
}

// Deps bundles the components Memory dispatches into.
type Deps struct {
	CGB        bool
	Cart       *cart.Cartridge
	Clock      *clock.Clock
	Interrupts *interrupt.Controller
	Timer      *timer.Timer
	Joypad     *joypad.Joypad
	Serial     *serial.Port
	PPU        *video.PPU
	APU        *audio.APU
	Recorder   *logging.Recorder
}

// New builds a Memory wired to the given components, with WRAM seeded to a
// pseudo-random pattern matching un-initialized hardware RAM (spec.md §7).
func New(d Deps) *Memory {
	m := &Memory{
		cgb:        d.CGB,
		cart:       d.Cart,
		clockRef:   d.Clock,
		interrupts: d.Interrupts,
		timerDev:   d.Timer,
		joypadDev:  d.Joypad,
		serialDev:  d.Serial,
		ppu:        d.PPU,
		apu:        d.APU,
		recorder:   d.Recorder,
		wramBank:   1,
	}
	seedRAM(m.wram[:])
	return m
}

// seedRAM fills WRAM with the fixed pseudo-random pattern real hardware
// powers on with, rather than all zero (spec.md §7). The exact bytes don't
// matter for correctness, only that software relying on zeroed RAM is
// exposed rather than accidentally working.
func seedRAM(banks [][0x1000]byte) {
	state := uint32(0x1234ABCD)
	for b := range banks {
		for i := range banks[b] {
			state = state*1664525 + 1013904223
			banks[b][i] = byte(state >> 24)
		}
	}
}

func (m *Memory) wramLow() []byte  { return m.wram[0][:] }
func (m *Memory) wramHigh() []byte { return m.wram[m.wramBank][:] }

// Read dispatches a CPU-visible read. During an active OAM-DMA transfer,
// addresses on the bus the DMA source is NOT using read back whatever byte
// the DMA unit currently has in flight instead of their own content (the
// bus the source itself lives on reads normally); VRAM/OAM separately read
// 0xFF while the PPU has them blocked, per spec.md §4.4/§4.8 and §8's
// bus-block test scenario.
func (m *Memory) Read(address uint16) byte {
	if m.dma.active && busOf(address) != busOf(m.dma.sourceBase) && address < 0xFF80 {
		return m.dma.currentByte
	}

	switch {
	case address < 0x8000:
		return m.cart.ReadROM(address)
	case address < 0xA000:
		if m.ppu.VRAMBlocked() {
			return 0xFF
		}
		return m.ppu.ReadVRAM(address)
	case address < 0xC000:
		return m.cart.ReadRAM(m.clockRef.CurrentCycle(), address)
	case address < 0xD000:
		return m.wramLow()[address-0xC000]
	case address < 0xE000:
		return m.wramHigh()[address-0xD000]
	case address < 0xFE00:
		return m.Read(address - 0x2000) // echo RAM
	case address < 0xFEA0:
		if m.ppu.OAMBlocked() {
			return 0xFF
		}
		return m.ppu.ReadOAM(address)
	case address < 0xFF00:
		return 0x00 // unusable region
	case address < 0xFF80:
		return m.readIO(address)
	case address < 0xFFFF:
		return m.hram[address-0xFF80]
	default:
		return m.interrupts.IE()
	}
}

// Write dispatches a CPU-visible write, with the same DMA bus-conflict
// gating as Read.
func (m *Memory) Write(address uint16, value byte) {
	if m.dma.active && busOf(address) != busOf(m.dma.sourceBase) && address < 0xFF80 {
		return
	}

	switch {
	case address < 0x8000:
		m.recorder.Logf(logging.CategoryMBC, m.clockRef.CurrentCycle(), 0, "bank control write %04X=%02X", address, value)
		m.cart.WriteControl(address, value)
	case address < 0xA000:
		if m.ppu.VRAMBlocked() {
			return
		}
		m.ppu.WriteVRAM(address, value)
	case address < 0xC000:
		m.cart.WriteRAM(m.clockRef.CurrentCycle(), address, value)
	case address < 0xD000:
		m.wramLow()[address-0xC000] = value
	case address < 0xE000:
		m.wramHigh()[address-0xD000] = value
	case address < 0xFE00:
		m.Write(address-0x2000, value) // echo RAM
	case address < 0xFEA0:
		if m.ppu.OAMBlocked() {
			return
		}
		m.ppu.WriteOAM(address, value)
	case address < 0xFF00:
		// unusable region, writes dropped
	case address < 0xFF80:
		m.writeIO(address, value)
	case address < 0xFFFF:
		m.hram[address-0xFF80] = value
	default:
		m.interrupts.SetIE(value)
	}
}

func (m *Memory) readIO(address uint16) byte {
	switch {
	case address == addr.P1:
		return m.joypadDev.Read()
	case address == addr.SB, address == addr.SC:
		return m.serialDev.Read(address)
	case address >= addr.DIV && address <= addr.TAC:
		return m.timerDev.Read(address)
	case address == addr.IF:
		return m.interrupts.IF()
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		return m.apu.Read(address)
	case address >= addr.LCDC && address <= addr.WX:
		return m.ppu.ReadRegister(address)
	case address == addr.KEY1:
		if m.clockRef.DoubleSpeed() {
			return 0xFE
		}
		return 0x7E
	case address == addr.VBK, address == addr.BCPS, address == addr.BCPD,
		address == addr.OCPS, address == addr.OCPD, address == addr.OPRI:
		return m.ppu.ReadRegister(address)
	case address == addr.SVBK:
		if !m.cgb {
			return 0xFF
		}
		return byte(m.wramBank) | 0xF8
	case address == addr.BootROMDisable:
		return m.bootROMDisabled
	case address >= addr.HDMA1 && address <= addr.HDMA5:
		return m.readHDMA(address)
	default:
		return 0xFF
	}
}

func (m *Memory) writeIO(address uint16, value byte) {
	switch {
	case address == addr.P1:
		m.recorder.Logf(logging.CategoryJoypad, m.clockRef.CurrentCycle(), 0, "P1 select write %02X", value)
		m.joypadDev.Write(value)
	case address == addr.SB, address == addr.SC:
		m.serialDev.Write(address, value)
	case address == addr.DIV:
		m.writeDIV()
	case address >= addr.TIMA && address <= addr.TAC:
		m.timerDev.Write(address, value)
	case address == addr.IF:
		m.interrupts.SetIF(value)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		m.apu.Write(address, value)
	case address == addr.DMA:
		m.startOAMDMA(value)
	case address >= addr.LCDC && address <= addr.WX:
		m.ppu.WriteRegister(address, value)
	case address == addr.KEY1:
		if m.cgb {
			m.pendingSpeedSwitch = value&0x01 != 0
		}
	case address == addr.VBK, address == addr.BCPS, address == addr.BCPD,
		address == addr.OCPS, address == addr.OCPD, address == addr.OPRI:
		m.ppu.WriteRegister(address, value)
	case address == addr.SVBK:
		if m.cgb {
			bank := int(value & 0x07)
			if bank == 0 {
				bank = 1
			}
			m.wramBank = bank
		}
	case address == addr.BootROMDisable:
		m.bootROMDisabled = value
	case address >= addr.HDMA1 && address <= addr.HDMA5:
		m.writeHDMA(address, value)
	}
}

// writeDIV resets the timer and notifies the APU frame sequencer, since a
// DIV write can itself cause the sequencer's monitored bit to fall
// (spec.md §4.9).
func (m *Memory) writeDIV() {
	before := m.timerDev.DIVCounter()
	m.timerDev.WriteDIV()
	m.CheckAPUDivEdge(before, 0)
}

// CheckAPUDivEdge drives the APU frame sequencer's 512 Hz clock: it fires
// NotifyDIVFalling whenever the DIV-synchronized bit (12, or 13 in CGB
// double speed) transitions 1->0 between two counter snapshots. Called
// both from a direct DIV write and from the emulator's normal per-cycle
// timer tick, since the counter falls through this edge on its own every
// 8192 T-cycles as it free-runs (spec.md §4.9).
func (m *Memory) CheckAPUDivEdge(before, after uint16) {
	bit := uint16(12)
	if m.clockRef.DoubleSpeed() {
		bit = 13
	}
	wasHigh := (before>>bit)&1 == 1
	isLow := (after>>bit)&1 == 0
	if wasHigh && isLow {
		m.apu.NotifyDIVFalling()
	}
}
