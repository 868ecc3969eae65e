package memory

import "github.com/mlang/gbcore/addr"

const oamDMALength = 160
const oamDMACyclesPerByte = 4

// oamDMAStartupDelay is the 2-M-cycle gap between the FF46 write and the
// first source byte actually being fetched, verified by test ROM
// per spec.md §4.4. Bus-conflict redirection (gated on m.dma.active) does
// not begin until this delay has elapsed either.
const oamDMAStartupDelay = 2 * oamDMACyclesPerByte

// startOAMDMA arms a 160-byte transfer from (value<<8) into OAM, one byte
// every 4 T-cycles, starting after oamDMAStartupDelay T-cycles have
// elapsed (spec.md §4.4).
func (m *Memory) startOAMDMA(value byte) {
	m.dma = dmaState{
		pending:           true,
		startupCyclesLeft: oamDMAStartupDelay,
		sourceBase:        uint16(value) << 8,
	}
}

// TickDMA advances the OAM-DMA transfer (including its startup delay) by
// delta T-cycles. Must be called every cycle Memory's owner ticks the
// system, even when no DMA is pending or active (a no-op in that case).
func (m *Memory) TickDMA(delta int) {
	if !m.dma.pending && !m.dma.active {
		return
	}
	for i := 0; i < delta && (m.dma.pending || m.dma.active); i++ {
		if m.dma.pending {
			m.dma.startupCyclesLeft--
			if m.dma.startupCyclesLeft <= 0 {
				m.dma.pending = false
				m.dma.active = true
				m.dma.cyclesLeft = oamDMACyclesPerByte
			}
			continue
		}

		m.dma.cyclesLeft--
		if m.dma.cyclesLeft > 0 {
			continue
		}
		m.dma.cyclesLeft = oamDMACyclesPerByte
		src := m.dma.sourceBase + uint16(m.dma.index)
		value := m.rawReadForDMA(src)
		m.dma.currentByte = value
		m.ppu.WriteOAM(addr.OAMStart+uint16(m.dma.index), value)
		m.dma.index++
		if m.dma.index >= oamDMALength {
			m.dma.active = false
		}
	}
}

// rawReadForDMA reads a source byte bypassing the CPU-visibility gate (the
// DMA unit, unlike the CPU, always owns whichever bus its source lives
// on). A source at 0xE000 or above reads WRAM 0x2000 lower, so every
// source lands inside 0x0000-0xDFFF.
func (m *Memory) rawReadForDMA(address uint16) byte {
	if address >= 0xE000 {
		address -= 0x2000
	}
	switch {
	case address < 0x8000:
		return m.cart.ReadROM(address)
	case address < 0xA000:
		return m.ppu.ReadVRAM(address)
	case address < 0xC000:
		return m.cart.ReadRAM(m.clockRef.CurrentCycle(), address)
	case address < 0xD000:
		return m.wramLow()[address-0xC000]
	default:
		return m.wramHigh()[address-0xD000]
	}
}

// DMAActive reports whether an OAM-DMA transfer is in flight (for test
// inspection and bus-conflict reasoning elsewhere).
func (m *Memory) DMAActive() bool { return m.dma.active }

// readHDMA services FF51-FF55. The source/destination registers are
// write-only on real hardware; only HDMA5 (transfer length / mode / active
// flag) is readable.
func (m *Memory) readHDMA(address uint16) byte {
	if address != addr.HDMA5 {
		return 0xFF
	}
	if m.hdma.active {
		return m.hdma.length5 & 0x7F
	}
	return 0xFF
}

func (m *Memory) writeHDMA(address uint16, value byte) {
	if !m.cgb {
		return
	}
	switch address {
	case addr.HDMA1:
		m.hdma.srcHi = value
	case addr.HDMA2:
		m.hdma.srcLo = value & 0xF0
	case addr.HDMA3:
		m.hdma.dstHi = value & 0x1F
	case addr.HDMA4:
		m.hdma.dstLo = value & 0xF0
	case addr.HDMA5:
		m.startHDMA(value)
	}
}

func (m *Memory) startHDMA(value byte) {
	if m.hdma.active && m.hdma.hblankMode && value&0x80 == 0 {
		m.hdma.active = false // writing bit7=0 while an h-blank transfer runs cancels it
		return
	}

	m.hdma.src = uint16(m.hdma.srcHi)<<8 | uint16(m.hdma.srcLo)
	m.hdma.dst = 0x8000 | (uint16(m.hdma.dstHi)<<8 | uint16(m.hdma.dstLo))
	m.hdma.remaining = (int(value&0x7F) + 1) * 16
	m.hdma.length5 = value & 0x7F
	m.hdma.hblankMode = value&0x80 != 0

	if !m.hdma.hblankMode {
		m.hdma.active = true
		for m.hdma.remaining > 0 {
			m.copyHDMABlock()
		}
		m.hdma.active = false
		m.hdma.length5 = 0x7F
	} else {
		m.hdma.active = true
	}
}

func (m *Memory) copyHDMABlock() {
	for i := 0; i < 16 && m.hdma.remaining > 0; i++ {
		value := m.rawReadForDMA(m.hdma.src)
		m.ppu.WriteVRAM(m.hdma.dst, value)
		m.hdma.src++
		m.hdma.dst++
		m.hdma.remaining--
	}
	m.hdma.length5--
}

// OnHBlank drives one 16-byte block of an in-progress h-blank HDMA
// transfer; the emulator calls this each time the PPU enters mode 0.
func (m *Memory) OnHBlank() {
	if !m.hdma.active || !m.hdma.hblankMode {
		return
	}
	m.copyHDMABlock()
	if m.hdma.remaining <= 0 {
		m.hdma.active = false
	}
}

// PendingSpeedSwitch reports, without clearing, the KEY1-armed CGB
// speed-switch request; ConsumeSpeedSwitch clears it.
func (m *Memory) PendingSpeedSwitch() bool {
	v := m.pendingSpeedSwitch
	return v
}

// ConsumeSpeedSwitch clears the pending speed-switch flag after the CPU
// has performed the switch.
func (m *Memory) ConsumeSpeedSwitch() {
	m.pendingSpeedSwitch = false
}
