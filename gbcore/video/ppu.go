// Package video implements the scanline/FIFO-equivalent PPU described in
// spec.md §4.8: mode timing, STAT/VBlank interrupts, DMG and CGB
// background/window/sprite composition, and CGB color correction.
//
// Rendering happens once per scanline, at the moment mode 3 ends for
// that line, using whichever register values are live at that instant.
// This reproduces every well-known "change a register between scanlines"
// raster trick while not attempting true per-pixel FIFO timing, a
// simplification recorded in DESIGN.md.
package video

import (
	"github.com/mlang/gbcore/addr"
	"github.com/mlang/gbcore/interrupt"
	"github.com/mlang/gbcore/logging"
)

// Mode is one of the four LCD controller states.
type Mode int

const (
	ModeHBlank Mode = 0
	ModeVBlank Mode = 1
	ModeOAMScan Mode = 2
	ModeVRAM    Mode = 3
)

const (
	dotsPerLine   = 456
	oamScanDots   = 80
	linesPerFrame = 154
	vblankStartLine = 144
)

const (
	lcdcEnable      = 1 << 7
	lcdcWinMap      = 1 << 6
	lcdcWinEnable   = 1 << 5
	lcdcTileData    = 1 << 4
	lcdcBGMap       = 1 << 3
	lcdcObjSize     = 1 << 2
	lcdcObjEnable   = 1 << 1
	lcdcBGEnable    = 1 << 0

	statLYCInt  = 1 << 6
	statMode2Int = 1 << 5
	statMode1Int = 1 << 4
	statMode0Int = 1 << 3
	statLYCEqual = 1 << 2
)

type spriteEntry struct {
	y, x, tile, flags byte
	oamIndex          int
}

// PPU holds VRAM/OAM, LCD registers, CGB palette RAM and the mode state
// machine.
type PPU struct {
	cgb bool

	vram     [2][0x2000]byte
	vramBank int
	oam      [160]byte

	lcdc, stat, scy, scx, lyc, bgp, obp0, obp1, wy, wx byte
	vbk, opri                                          byte

	bgPal, objPal cgbPaletteRAM

	mode        Mode
	line        int
	lineDot     int
	mode3Length int
	statLine    bool

	windowLine    int
	windowActive  bool

	front, back    *FrameBuffer
	FrameID        uint64
	frameReady     bool
	hblankEntered  bool

	lut       *correctionLUT
	greyscale bool
	dmgCompat bool

	interrupts *interrupt.Controller
	recorder   *logging.Recorder
}

// New returns a PPU wired to the given interrupt controller. recorder may
// be nil; a nil Recorder silently drops Logf calls.
func New(interrupts *interrupt.Controller, recorder *logging.Recorder, cgb bool) *PPU {
	p := &PPU{
		interrupts: interrupts,
		recorder:   recorder,
		cgb:        cgb,
		front:      &FrameBuffer{},
		back:       &FrameBuffer{},
		lut:        newCorrectionLUT(CorrectionDefault),
		lcdc:       0x91,
		bgp:        0xFC,
		mode:       ModeOAMScan,
	}
	return p
}

// SetCorrectionMode swaps the CGB color-correction curve, spec.md §4.8.
func (p *PPU) SetCorrectionMode(mode CorrectionMode) { p.lut = newCorrectionLUT(mode) }

// SetGreyscale selects the DMG_Greyscale color hint (spec.md §6), replacing
// the classic green-grey ramp with a pure grey ramp for DMG-mode
// rendering. Has no effect on CGB games, which never consult dmgPalette.
func (p *PPU) SetGreyscale(on bool) { p.greyscale = on }

// EnableDMGCompatPalette seeds BG palette 0 and OBJ palettes 0/1 from the
// title-checksum boot heuristic and switches sprite palette resolution to
// the OBP0/OBP1 bit rather than the CGB attribute byte's palette index,
// matching how the CGB boot ROM colorizes an otherwise DMG-only cartridge
// (spec.md §11). Only meaningful when the PPU itself is running in CGB
// mode; callers only call this for a CGB-resolved DMG-only cartridge.
func (p *PPU) EnableDMGCompatPalette(title string) {
	pal := lookupDMGCompatPalette(title)
	p.bgPal.seedPalette(0, pal.bg)
	p.objPal.seedPalette(0, pal.obj0)
	p.objPal.seedPalette(1, pal.obj1)
	p.dmgCompat = true
}

func (p *PPU) dmgRamp() *[4]uint32 {
	if p.greyscale {
		return &dmgGreyscalePalette
	}
	return &dmgPalette
}

func (p *PPU) lcdEnabled() bool { return p.lcdc&lcdcEnable != 0 }

// OAMBlocked reports whether the CPU-visible bus currently sees OAM as
// inaccessible (modes 2 and 3).
func (p *PPU) OAMBlocked() bool {
	return p.lcdEnabled() && (p.mode == ModeOAMScan || p.mode == ModeVRAM)
}

// VRAMBlocked reports whether the CPU-visible bus currently sees VRAM as
// inaccessible (mode 3 only).
func (p *PPU) VRAMBlocked() bool {
	return p.lcdEnabled() && p.mode == ModeVRAM
}

// ReadVRAM/WriteVRAM access the bank selected by VBK, ignoring the
// CPU-visibility gate (callers that need the gate check VRAMBlocked
// themselves; DMA and internal rendering always bypass it).
func (p *PPU) ReadVRAM(address uint16) byte { return p.vram[p.vramBank][address-0x8000] }
func (p *PPU) WriteVRAM(address uint16, value byte) {
	p.vram[p.vramBank][address-0x8000] = value
}

func (p *PPU) ReadOAM(address uint16) byte { return p.oam[address-addr.OAMStart] }
func (p *PPU) WriteOAM(address uint16, value byte) {
	p.oam[address-addr.OAMStart] = value
}

// LY returns the externally visible scanline counter, including the
// line-153 quirk: LY reads 153 for only the first few dots of that line,
// then reads 0 for the remainder while internally still on line 153.
func (p *PPU) LY() byte {
	if p.line == 153 && p.lineDot > 2 {
		return 0
	}
	return byte(p.line)
}

func (p *PPU) computeStat() byte {
	s := p.stat & 0x78
	s |= byte(p.mode) & 0x03
	if p.LY() == p.lyc {
		s |= statLYCEqual
	}
	return s | 0x80
}

// ReadRegister services the LCD register window FF40-FF4B plus the
// CGB-only registers VBK/BCPS/BCPD/OCPS/OCPD/OPRI.
func (p *PPU) ReadRegister(address uint16) byte {
	switch address {
	case addr.LCDC:
		return p.lcdc
	case addr.STAT:
		return p.computeStat()
	case addr.SCY:
		return p.scy
	case addr.SCX:
		return p.scx
	case addr.LY:
		return p.LY()
	case addr.LYC:
		return p.lyc
	case addr.BGP:
		return p.bgp
	case addr.OBP0:
		return p.obp0
	case addr.OBP1:
		return p.obp1
	case addr.WY:
		return p.wy
	case addr.WX:
		return p.wx
	case addr.VBK:
		return p.vbk | 0xFE
	case addr.BCPS:
		return p.bgPal.readSpec()
	case addr.BCPD:
		return p.bgPal.readData()
	case addr.OCPS:
		return p.objPal.readSpec()
	case addr.OCPD:
		return p.objPal.readData()
	case addr.OPRI:
		return p.opri | 0xFE
	default:
		return 0xFF
	}
}

// WriteRegister services the same window as ReadRegister. Writes to STAT
// apply the documented "spurious all-sources-high" glitch for one cycle.
func (p *PPU) WriteRegister(address uint16, value byte) {
	switch address {
	case addr.LCDC:
		wasEnabled := p.lcdEnabled()
		p.lcdc = value
		if wasEnabled && !p.lcdEnabled() {
			p.line, p.lineDot = 0, 0
			p.mode = ModeHBlank
			p.stat = p.stat &^ 0x03
		}
	case addr.STAT:
		p.stat = (p.stat & 0x87) | (value & 0x78)
		if !p.statLine {
			p.requestSTATIRQ()
		}
		p.refreshStatLine()
	case addr.SCY:
		p.scy = value
	case addr.SCX:
		p.scx = value
	case addr.LY:
		// read-only
	case addr.LYC:
		p.lyc = value
		p.refreshStatLine()
	case addr.BGP:
		p.bgp = value
	case addr.OBP0:
		p.obp0 = value
	case addr.OBP1:
		p.obp1 = value
	case addr.WY:
		p.wy = value
	case addr.WX:
		p.wx = value
	case addr.VBK:
		if p.cgb {
			p.vbk = value & 0x01
			p.vramBank = int(p.vbk)
		}
	case addr.BCPS:
		p.bgPal.writeSpec(value)
	case addr.BCPD:
		p.bgPal.writeData(value)
	case addr.OCPS:
		p.objPal.writeSpec(value)
	case addr.OCPD:
		p.objPal.writeData(value)
	case addr.OPRI:
		if p.cgb {
			p.opri = value & 0x01
		}
	}
}

func (p *PPU) requestSTATIRQ() {
	if p.interrupts != nil {
		p.interrupts.Request(addr.LCDSTATInterrupt)
	}
}

func (p *PPU) statSourcesHigh() bool {
	if p.LY() == p.lyc && p.stat&statLYCInt != 0 {
		return true
	}
	switch p.mode {
	case ModeHBlank:
		return p.stat&statMode0Int != 0
	case ModeVBlank:
		return p.stat&statMode1Int != 0
	case ModeOAMScan:
		return p.stat&statMode2Int != 0
	}
	return false
}

func (p *PPU) refreshStatLine() {
	now := p.statSourcesHigh()
	if now && !p.statLine {
		p.requestSTATIRQ()
	}
	p.statLine = now
}

// FrontBuffer returns the most recently completed frame.
func (p *PPU) FrontBuffer() *FrameBuffer { return p.front }

// ConsumeFrame reports and clears the one-shot "a new frame was just
// completed" flag, for Emulator.Run's return value.
func (p *PPU) ConsumeFrame() bool {
	if p.frameReady {
		p.frameReady = false
		return true
	}
	return false
}

// ConsumeHBlankEntered reports and clears the one-shot "just entered mode
// 0 for this line" flag, which the emulator uses to drive one block of an
// in-progress h-blank HDMA transfer.
func (p *PPU) ConsumeHBlankEntered() bool {
	if p.hblankEntered {
		p.hblankEntered = false
		return true
	}
	return false
}

// Tick advances the PPU by delta T-cycles (never doubled, even in CGB
// double-speed mode — spec.md §4.10).
func (p *PPU) Tick(delta int) {
	if !p.lcdEnabled() {
		return
	}
	for i := 0; i < delta; i++ {
		p.tickOne()
	}
}

func (p *PPU) tickOne() {
	p.lineDot++

	switch {
	case p.line < vblankStartLine && p.lineDot == oamScanDots:
		p.mode3Length = p.computeMode3Length()
		p.mode = ModeVRAM
		p.refreshStatLine()
	case p.line < vblankStartLine && p.mode == ModeVRAM && p.lineDot == oamScanDots+p.mode3Length:
		p.renderScanline()
		p.mode = ModeHBlank
		p.hblankEntered = true
		p.refreshStatLine()
	case p.lineDot == dotsPerLine:
		p.lineDot = 0
		p.line++
		if p.line == vblankStartLine {
			p.mode = ModeVBlank
			if p.interrupts != nil {
				p.interrupts.Request(addr.VBlankInterrupt)
			}
			p.refreshStatLine()
		} else if p.line == linesPerFrame {
			// Line 153 has just completed: swap buffers here, not at
			// v-blank entry (spec.md §3's screen-buffer invariant).
			p.line = 0
			p.windowLine = 0
			p.mode = ModeOAMScan
			p.swapBuffers()
			p.recorder.Logf(logging.CategoryPPU, 0, 0, "frame %d completed", p.FrameID)
			p.refreshStatLine()
		} else if p.line < vblankStartLine {
			p.mode = ModeOAMScan
			p.refreshStatLine()
		}
	}
}

func (p *PPU) swapBuffers() {
	p.front, p.back = p.back, p.front
	p.FrameID++
	p.frameReady = true
}

// computeMode3Length approximates the well-known mode-3 length extension
// from SCX fine scroll, active sprites on the line, and a triggered
// window, per spec.md §4.8's tolerance for an additive approximation
// rather than true per-pixel FIFO timing.
func (p *PPU) computeMode3Length() int {
	length := 172 + int(p.scx&0x07)
	if p.lcdc&lcdcWinEnable != 0 && p.wy <= byte(p.line) && p.wx <= 166 {
		length += 6
	}
	sprites := p.scanSprites()
	for _, s := range sprites {
		x := int(s.x) - 8
		penalty := 6 + min(5, (x+int(p.scx))%8)
		length += penalty
	}
	return length
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
