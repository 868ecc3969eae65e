// Package gbcore is a cycle-accurate DMG/CGB emulation core: CPU, PPU,
// APU, memory bus with bank controllers, timer, joypad, serial and
// interrupt controller, wired together behind one Emulator type. Host
// concerns (windowing, audio output, file I/O, CLI) are not part of this
// package; cmd/gbcore is a thin demonstration binary only.
package gbcore

import (
	"log/slog"

	"github.com/mlang/gbcore/addr"
	"github.com/mlang/gbcore/audio"
	"github.com/mlang/gbcore/cart"
	"github.com/mlang/gbcore/clock"
	"github.com/mlang/gbcore/cpu"
	"github.com/mlang/gbcore/interrupt"
	"github.com/mlang/gbcore/joypad"
	"github.com/mlang/gbcore/logging"
	"github.com/mlang/gbcore/memory"
	"github.com/mlang/gbcore/serial"
	"github.com/mlang/gbcore/timer"
	"github.com/mlang/gbcore/video"
)

// CyclesPerSecond is the fixed DMG/CGB reference clock rate. CGB double
// speed mode changes how many CPU M-cycles happen per reference cycle, not
// this constant.
const CyclesPerSecond = 4194304

// PCMSamplingRate is exactly half CyclesPerSecond (spec.md §6).
const PCMSamplingRate = CyclesPerSecond / 2

const (
	screenWidth  = video.Width
	screenHeight = video.Height
)

// Emulator is the single public entry point: one self-contained instance
// per cartridge, owning every component as a non-owning-pointer DAG
// (spec.md §5).
type Emulator struct {
	cgb bool

	clockDev   *clock.Clock
	interrupts *interrupt.Controller
	cartridge  *cart.Cartridge
	mem        *memory.Memory
	timerDev   *timer.Timer
	joypadDev  *joypad.Joypad
	serialDev  *serial.Port
	ppu        *video.PPU
	apu        *audio.APU
	core       *cpu.CPU

	recorder *logging.Recorder

	totalCycles int64
	frameReady  bool
}

// New parses rom, resolves the hardware model and constructs a fully
// seeded Emulator.
func New(rom []byte, opts Options) (*Emulator, error) {
	c, err := cart.New(rom, CyclesPerSecond)
	if err != nil {
		return nil, wrapCartError(err)
	}
	slog.Debug("gbcore: loaded cartridge", "title", c.Header.Title, "mbc", c.Header.MBC, "romBanks", c.Header.ROMBankCount)

	cgb := resolveCGB(opts.Hardware, c.Header.CGBFlag)
	recorder := logging.NewRecorder(opts.LogCategories)

	e := &Emulator{
		cgb:        cgb,
		clockDev:   clock.New(),
		interrupts: interrupt.New(),
		cartridge:  c,
		timerDev:   timer.New(),
		joypadDev:  joypad.New(),
		serialDev:  serial.New(),
		apu:        audio.New(PCMSamplingRate, recorder),
		recorder:   recorder,
	}
	e.ppu = video.New(e.interrupts, recorder, cgb)
	applyColorHint(e.ppu, opts.ColorsHint)
	if cgb && c.Header.CGBFlag == cart.CGBUnsupported {
		e.ppu.EnableDMGCompatPalette(c.Header.Title)
	}

	e.mem = memory.New(memory.Deps{
		CGB:        cgb,
		Cart:       c,
		Clock:      e.clockDev,
		Interrupts: e.interrupts,
		Timer:      e.timerDev,
		Joypad:     e.joypadDev,
		Serial:     e.serialDev,
		PPU:        e.ppu,
		APU:        e.apu,
		Recorder:   recorder,
	})
	e.core = cpu.New(e, cgb)
	return e, nil
}

func resolveCGB(hw Hardware, support cart.CGBSupport) bool {
	switch hw {
	case HardwareDMG:
		return false
	case HardwareCGB_ABCD, HardwareCGB_E:
		return true
	default: // HardwareAuto
		return support != cart.CGBUnsupported
	}
}

func applyColorHint(p *video.PPU, hint ColorHint) {
	switch hint {
	case ColorDMGGreyscale:
		p.SetGreyscale(true)
	case ColorCGBAcid2:
		p.SetCorrectionMode(video.CorrectionAcid2)
	case ColorCGBGambatte:
		p.SetCorrectionMode(video.CorrectionGambatte)
	default:
		p.SetCorrectionMode(video.CorrectionDefault)
	}
}

// Title returns the cleaned cartridge title (spec.md §6).
func (e *Emulator) Title() string { return e.cartridge.Header.Title }

// ScreenWidth and ScreenHeight are always 160, 144.
func (e *Emulator) ScreenWidth() int  { return screenWidth }
func (e *Emulator) ScreenHeight() int { return screenHeight }

// ScreenFrontBuffer returns the most recently completed frame, valid until
// the next Run call.
func (e *Emulator) ScreenFrontBuffer() *[screenWidth * screenHeight]uint32 {
	return &e.ppu.FrontBuffer().Pixels
}

// AudioBuffer returns the PCM samples generated by the most recent Run
// call, interleaved stereo int16 frames. The buffer is cleared at the
// start of every Run, not by reading it (spec.md §3).
func (e *Emulator) AudioBuffer() []int16 { return e.apu.Samples }

// CyclesPerSecond reports the fixed reference clock rate.
func (e *Emulator) CyclesPerSecond() int64 { return CyclesPerSecond }

// PCMSamplingRate reports the native, un-downsampled PCM output rate.
func (e *Emulator) PCMSamplingRate() int64 { return e.apu.PCMSamplingRate() }

// EmulatedCycles is monotonic across the emulator's lifetime, unaffected
// by internal clock shift_back rebasing.
func (e *Emulator) EmulatedCycles() int64 { return e.totalCycles }

// PersistentRAM and SetPersistentRAM implement battery-backed save data;
// both are no-ops if the cartridge has no battery.
func (e *Emulator) PersistentRAM() []byte {
	if !e.cartridge.HasBattery() {
		return nil
	}
	return e.cartridge.PersistentRAM()
}

func (e *Emulator) SetPersistentRAM(data []byte) {
	if !e.cartridge.HasBattery() {
		return
	}
	if want := len(e.cartridge.PersistentRAM()); len(data) > want {
		slog.Warn("gbcore: persistent RAM buffer larger than declared cart RAM, discarding excess",
			"got", len(data), "want", want)
	}
	e.cartridge.SetPersistentRAM(data)
}

// ButtonsDown presses the named buttons, requesting a joypad interrupt on
// any visible 1->0 transition.
func (e *Emulator) ButtonsDown(mask uint8) {
	e.joypadDev.ButtonsDown(mask)
	if e.joypadDev.ConsumeInterrupt() {
		e.interrupts.Request(addr.JoypadInterrupt)
		e.recorder.Logf(logging.CategoryJoypad, e.totalCycles, 0, "joypad interrupt, mask %02X", mask)
	}
}

// ButtonsUp releases the named buttons.
func (e *Emulator) ButtonsUp(mask uint8) { e.joypadDev.ButtonsUp(mask) }

// Run executes CPU instructions (dispatching interrupts as they become
// due) until at least cycles reference T-cycles have elapsed since Run was
// called, stopping at the next instruction boundary at or after that
// point. It returns true iff a new frame completed during the call.
// Run(0) is a no-op.
func (e *Emulator) Run(cycles int) bool {
	e.apu.DrainSamples()
	e.frameReady = false
	if cycles <= 0 {
		return false
	}

	start := e.totalCycles
	for e.totalCycles-start < int64(cycles) {
		e.core.Step()
	}
	return e.frameReady
}

// --- cpu.Bus ---

// TickM advances every peripheral by one CPU M-cycle's worth of reference
// T-cycles: 4 at single speed, 2 in CGB double speed (spec.md §4.10).
// Peripherals always see this non-doubled "real" rate; only CPU
// instruction fetch/execute proceeds at the doubled rate.
func (e *Emulator) TickM() {
	real := int64(4)
	if e.clockDev.DoubleSpeed() {
		real = 2
	}

	e.clockDev.Tick(real)
	e.totalCycles += real

	e.mem.TickComponents(int(real))
	e.ppu.Tick(int(real))
	if e.ppu.ConsumeHBlankEntered() {
		e.mem.OnHBlank()
	}
	if e.ppu.ConsumeFrame() {
		e.frameReady = true
	}

	if e.clockDev.NeedsShiftBack() {
		offset := e.clockDev.ShiftBackAmount()
		e.clockDev.ShiftBack(offset)
		e.cartridge.ShiftBack(offset)
	}
}

func (e *Emulator) Read(address uint16) byte         { return e.mem.Read(address) }
func (e *Emulator) Write(address uint16, value byte) { e.mem.Write(address, value) }

func (e *Emulator) InterruptsDispatchable() bool { return e.interrupts.Dispatchable() }
func (e *Emulator) InterruptsPending() bool      { return e.interrupts.Pending() }
func (e *Emulator) InterruptsHighestPending() (vector uint16, bitPos uint8, ok bool) {
	return e.interrupts.HighestPending()
}
func (e *Emulator) InterruptsInstructionBoundary()   { e.interrupts.InstructionBoundary() }
func (e *Emulator) InterruptsRequestEnable()         { e.interrupts.RequestEnable() }
func (e *Emulator) InterruptsSetIMEImmediate(v bool) { e.interrupts.SetIMEImmediate(v) }

// SpeedSwitchPending reports whether KEY1 has armed a CGB speed switch,
// consumed by the next STOP instruction.
func (e *Emulator) SpeedSwitchPending() bool { return e.mem.PendingSpeedSwitch() }

// PerformSpeedSwitch flips the clock and serial port's speed and clears
// the KEY1 arming flag.
func (e *Emulator) PerformSpeedSwitch() {
	on := !e.clockDev.DoubleSpeed()
	e.clockDev.SetDoubleSpeed(on)
	e.serialDev.SetDoubleSpeed(on)
	e.mem.ConsumeSpeedSwitch()
}

// TestInfo returns a snapshot of CPU state for test-ROM harnesses.
func (e *Emulator) TestInfo() TestInfo {
	return TestInfo{
		PC: e.core.PC(),
		SP: e.core.SP(),
		A:  e.core.A(), F: e.core.F(),
		B: e.core.B(), C: e.core.C(),
		D: e.core.D(), E: e.core.E(),
		H: e.core.H(), L: e.core.L(),
		LdBB: e.core.ConsumeLdBB(),
	}
}

// LogEntries returns every recorded log entry since the last Reset of the
// recorder (the recorder never auto-clears; callers that want a moving
// window call logEntries then recorder.Reset via a future API addition if
// needed).
func (e *Emulator) LogEntries() []logging.LogEntry { return e.recorder.Entries() }
