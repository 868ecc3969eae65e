package memory

import (
	"github.com/mlang/gbcore/addr"
	"github.com/mlang/gbcore/logging"
)

// TickComponents advances the timer, OAM-DMA, serial port and APU by real
// T-cycles, requesting whatever interrupts they raise. The PPU is ticked
// separately by the emulator so it can drive h-blank HDMA off the PPU's
// mode transition.
func (m *Memory) TickComponents(real int) {
	before := m.timerDev.DIVCounter()
	m.timerDev.Tick(real)
	after := m.timerDev.DIVCounter()
	m.CheckAPUDivEdge(before, after)
	if m.timerDev.ConsumeInterrupt() {
		m.interrupts.Request(addr.TimerInterrupt)
		m.recorder.Logf(logging.CategoryTimer, m.clockRef.CurrentCycle(), int64(after), "TIMA overflow")
	}

	m.TickDMA(real)

	m.serialDev.Tick(real)
	if m.serialDev.ConsumeInterrupt() {
		m.interrupts.Request(addr.SerialInterrupt)
		m.recorder.Logf(logging.CategorySerial, m.clockRef.CurrentCycle(), 0, "serial transfer complete")
	}

	m.apu.Tick(real)
}
