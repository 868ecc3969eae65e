// Package audio implements the four-channel APU described in spec.md §4.9:
// two duty-cycle square channels (one with frequency sweep), a 32-sample
// wave channel, a noise channel, the 512 Hz frame sequencer synchronized to
// the DIV falling edge, and NR52 power-on/off semantics.
package audio

import (
	"github.com/mlang/gbcore/addr"
	"github.com/mlang/gbcore/logging"
)

// APU holds all four channels, the mixer registers and the frame
// sequencer. It emits one raw stereo PCM frame every 2 T-cycles, i.e. at
// half the system clock rate (spec.md §6); any further downsampling to a host output rate is outer-shell
// concern and out of scope here.
type APU struct {
	poweredOn bool

	ch1, ch2 *square
	ch3      *wave
	ch4      *noise

	nr50, nr51 byte

	seqStep    int
	lastDivBit bool

	sampleRate   int64
	cycleParity  int // 0 or 1; a sample is emitted every 2nd T-cycle

	recorder *logging.Recorder

	Samples []int16 // interleaved stereo, appended as generated
}

// New returns a powered-off APU. sampleRate is the native output rate in
// Hz (half the system clock rate, one frame per 2 T-cycles; no further
// downsampling is performed here).
// recorder may be nil; a nil Recorder silently drops Logf calls.
func New(sampleRate int64, recorder *logging.Recorder) *APU {
	return &APU{
		ch1:        newSquare(true),
		ch2:        newSquare(false),
		ch3:        newWave(),
		ch4:        newNoise(),
		sampleRate: sampleRate,
		recorder:   recorder,
	}
}

// PCMSamplingRate reports the native sample rate.
func (a *APU) PCMSamplingRate() int64 { return a.sampleRate }

func (a *APU) Read(address uint16) byte {
	switch address {
	case addr.NR10:
		return packSweep(a.ch1) | 0x80
	case addr.NR11:
		return a.ch1.duty<<6 | 0x3F
	case addr.NR12:
		return a.ch1.nrx2
	case addr.NR13:
		return 0xFF
	case addr.NR14:
		return packLengthEnable(a.ch1.length.enabled) | 0xBF

	case addr.NR21:
		return a.ch2.duty<<6 | 0x3F
	case addr.NR22:
		return a.ch2.nrx2
	case addr.NR23:
		return 0xFF
	case addr.NR24:
		return packLengthEnable(a.ch2.length.enabled) | 0xBF

	case addr.NR30:
		if a.ch3.dacOn {
			return 0xFF
		}
		return 0x7F
	case addr.NR31:
		return 0xFF
	case addr.NR32:
		return (a.ch3.volume << 5) | 0x9F
	case addr.NR33:
		return 0xFF
	case addr.NR34:
		return packLengthEnable(a.ch3.length.enabled) | 0xBF

	case addr.NR41:
		return 0xFF
	case addr.NR42:
		return a.ch4.nr42
	case addr.NR43:
		return packNR43(a.ch4)
	case addr.NR44:
		return packLengthEnable(a.ch4.length.enabled) | 0xBF

	case addr.NR50:
		return a.nr50
	case addr.NR51:
		return a.nr51
	case addr.NR52:
		return a.packNR52()

	default:
		if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
			return a.readWaveRAM(address)
		}
		return 0xFF
	}
}

func (a *APU) Write(address uint16, value byte) {
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		a.writeWaveRAM(address, value)
		return
	}

	if !a.poweredOn && address != addr.NR52 {
		return // registers are write-ignored while powered off, except length on DMG (approximated as fully ignored)
	}

	switch address {
	case addr.NR10:
		a.ch1.writeSweep(value)
	case addr.NR11:
		a.ch1.writeNRx1(value)
	case addr.NR12:
		a.ch1.writeNRx2(value)
	case addr.NR13:
		a.ch1.writeNRx3(value)
	case addr.NR14:
		a.ch1.writeNRx4(value, a)

	case addr.NR21:
		a.ch2.writeNRx1(value)
	case addr.NR22:
		a.ch2.writeNRx2(value)
	case addr.NR23:
		a.ch2.writeNRx3(value)
	case addr.NR24:
		a.ch2.writeNRx4(value, a)

	case addr.NR30:
		a.ch3.dacOn = value&0x80 != 0
		if !a.ch3.dacOn {
			a.ch3.enabled = false
		}
	case addr.NR31:
		a.ch3.length.load(256 - int(value))
	case addr.NR32:
		a.ch3.volume = (value >> 5) & 0x03
	case addr.NR33:
		a.ch3.freq = (a.ch3.freq & 0x700) | int(value)
	case addr.NR34:
		a.ch3.freq = (a.ch3.freq & 0xFF) | (int(value&0x07) << 8)
		a.ch3.length.enabled = value&0x40 != 0
		if value&0x80 != 0 {
			a.ch3.trigger()
		}

	case addr.NR41:
		a.ch4.length.load(64 - int(value&0x3F))
	case addr.NR42:
		a.ch4.writeNR42(value)
	case addr.NR43:
		a.ch4.writeNR43(value)
	case addr.NR44:
		a.ch4.length.enabled = value&0x40 != 0
		if value&0x80 != 0 {
			a.ch4.trigger()
		}

	case addr.NR50:
		a.nr50 = value
	case addr.NR51:
		a.nr51 = value
	case addr.NR52:
		a.writeNR52(value)
	}
}

func (a *APU) writeNR52(value byte) {
	wasOn := a.poweredOn
	a.poweredOn = value&0x80 != 0
	if wasOn && !a.poweredOn {
		*a.ch1 = *newSquare(true)
		*a.ch2 = *newSquare(false)
		a.ch3.enabled, a.ch3.dacOn, a.ch3.volume = false, false, 0
		*a.ch4 = *newNoise()
		a.nr50, a.nr51 = 0, 0
		a.recorder.Logf(logging.CategoryAPU, 0, 0, "APU powered off, channel state reset")
	} else if !wasOn && a.poweredOn {
		a.recorder.Logf(logging.CategoryAPU, 0, 0, "APU powered on")
	}
}

func (a *APU) packNR52() byte {
	v := byte(0x70)
	if a.poweredOn {
		v |= 0x80
	}
	if a.ch1.enabled {
		v |= 0x01
	}
	if a.ch2.enabled {
		v |= 0x02
	}
	if a.ch3.enabled {
		v |= 0x04
	}
	if a.ch4.enabled {
		v |= 0x08
	}
	return v
}

func packSweep(s *square) byte {
	v := byte(s.sweepPeriod&0x07) << 4
	if s.sweepNeg {
		v |= 0x08
	}
	v |= byte(s.sweepShift & 0x07)
	return v
}

func packLengthEnable(enabled bool) byte {
	if enabled {
		return 0x40
	}
	return 0
}

func packNR43(n *noise) byte {
	v := byte(n.shift) << 4
	if n.narrow {
		v |= 0x08
	}
	for i, d := range noiseDivisors {
		if d == n.divisor {
			v |= byte(i)
		}
	}
	return v
}

func (a *APU) readWaveRAM(address uint16) byte {
	i := int(address-addr.WaveRAMStart) * 2
	hi := a.ch3.samples[i]
	lo := a.ch3.samples[i+1]
	return hi<<4 | lo
}

func (a *APU) writeWaveRAM(address uint16, value byte) {
	i := int(address-addr.WaveRAMStart) * 2
	a.ch3.samples[i] = value >> 4
	a.ch3.samples[i+1] = value & 0x0F
}

// NotifyDIVFalling must be called by the emulator whenever the timer's
// DIV-synchronized bit (bit 12 of the 16-bit DIV counter, non-doubled)
// falls, driving the 512 Hz frame sequencer (spec.md §4.9).
func (a *APU) NotifyDIVFalling() {
	if !a.poweredOn {
		return
	}
	switch a.seqStep {
	case 0, 2, 4, 6:
		a.clockLength()
	}
	if a.seqStep == 7 {
		a.clockEnvelope()
	}
	if a.seqStep == 2 || a.seqStep == 6 {
		a.ch1.sweepClock()
	}
	a.seqStep = (a.seqStep + 1) % 8
}

func (a *APU) clockLength() {
	if a.ch1.length.clock() {
		a.ch1.enabled = false
	}
	if a.ch2.length.clock() {
		a.ch2.enabled = false
	}
	if a.ch3.length.clock() {
		a.ch3.enabled = false
	}
	if a.ch4.length.clock() {
		a.ch4.enabled = false
	}
}

func (a *APU) clockEnvelope() {
	a.ch1.env.clock()
	a.ch2.env.clock()
	a.ch4.env.clock()
}

// Tick advances every channel's frequency timer by delta T-cycles and
// appends PCM samples at the native rate: one stereo frame every 2
// T-cycles (pcm_sampling_rate is exactly half cycles_per_second), silence
// while powered off.
func (a *APU) Tick(delta int) {
	if a.poweredOn {
		a.ch1.tick(delta)
		a.ch2.tick(delta)
		a.ch3.tick(delta)
		a.ch4.tick(delta)
	}

	for i := 0; i < delta; i++ {
		a.cycleParity ^= 1
		if a.cycleParity == 0 {
			l, r := a.mix()
			a.Samples = append(a.Samples, l, r)
		}
	}
}

func (a *APU) mix() (left, right int16) {
	c1, c2, c3, c4 := a.ch1.amplitude(), a.ch2.amplitude(), a.ch3.amplitude(), a.ch4.amplitude()

	var l, r int
	if a.nr51&0x10 != 0 {
		l += c1
	}
	if a.nr51&0x20 != 0 {
		l += c2
	}
	if a.nr51&0x40 != 0 {
		l += c3
	}
	if a.nr51&0x80 != 0 {
		l += c4
	}
	if a.nr51&0x01 != 0 {
		r += c1
	}
	if a.nr51&0x02 != 0 {
		r += c2
	}
	if a.nr51&0x04 != 0 {
		r += c3
	}
	if a.nr51&0x08 != 0 {
		r += c4
	}

	leftVol := int(a.nr50&0x07) + 1
	rightVol := int((a.nr50>>4)&0x07) + 1

	return int16(l * leftVol * 256 / 15), int16(r * rightVol * 256 / 15)
}

// DrainSamples returns and clears the accumulated PCM buffer.
func (a *APU) DrainSamples() []int16 {
	out := a.Samples
	a.Samples = nil
	return out
}
