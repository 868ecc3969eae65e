package audio

import (
	"testing"

	"github.com/mlang/gbcore/addr"
	"github.com/stretchr/testify/assert"
)

func powerOn(a *APU) {
	a.Write(addr.NR52, 0x80)
}

func TestPoweredOffIgnoresRegisterWrites(t *testing.T) {
	a := New(2097152, nil)
	a.Write(addr.NR11, 0xFF)
	assert.Equal(t, byte(0), a.ch1.duty, "writes while powered off must be ignored")
}

func TestPoweringOnThenOffResetsChannelState(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR11, 0x80) // duty=2
	assert.Equal(t, byte(2), a.ch1.duty)

	a.Write(addr.NR52, 0x00) // power off
	assert.Equal(t, byte(0), a.ch1.duty, "channel 1 must reset on power-off")
	assert.Equal(t, byte(0), a.nr51)
}

func TestNR52ReflectsPowerAndChannelEnableBits(t *testing.T) {
	a := New(2097152, nil)
	assert.Equal(t, byte(0x70), a.Read(addr.NR52), "powered off, no channels enabled, reserved bits high")

	powerOn(a)
	a.Write(addr.NR12, 0xF0) // DAC on, max volume, no envelope sweep
	a.Write(addr.NR14, 0x80) // trigger
	got := a.Read(addr.NR52)
	assert.Equal(t, byte(0x80|0x70|0x01), got, "bit0 set once channel 1 triggers with its DAC on")
}

func TestSquareChannelTriggerRequiresDACOn(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR12, 0x00) // volume 0, direction 0 -> DAC off
	a.Write(addr.NR14, 0x80) // trigger
	assert.False(t, a.ch1.enabled, "triggering with DAC off must not enable the channel")
}

func TestSquareChannelAmplitudeFollowsDutyTable(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR11, 0x80) // duty 2 (50%): {1,0,0,0,0,1,1,1}
	a.Write(addr.NR12, 0xF0) // DAC on, volume 15
	a.Write(addr.NR13, 0x00)
	a.Write(addr.NR14, 0x80) // trigger, freq upper bits 0

	assert.Equal(t, 15, a.ch1.amplitude(), "dutyPos 0 is high in the 50% table")

	// advance one full period: timer = (2048-0)*4 = 8192 cycles to move dutyPos by one
	a.ch1.tick(8192)
	assert.Equal(t, 1, a.ch1.dutyPos)
	assert.Equal(t, 0, a.ch1.amplitude(), "dutyPos 1 is low in the 50% table")
}

func TestLengthCounterDisablesChannelOnExpiry(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR12, 0xF0)
	a.Write(addr.NR11, 0x3F) // length load = 64-63 = 1
	a.Write(addr.NR14, 0xC0) // trigger, length enabled

	assert.True(t, a.ch1.enabled)
	a.clockLength()
	assert.False(t, a.ch1.enabled, "length counter reaching zero disables the channel")
}

func TestLengthCounterIgnoredWhenNotEnabled(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR12, 0xF0)
	a.Write(addr.NR11, 0x3F) // length load = 1
	a.Write(addr.NR14, 0x80) // trigger, length NOT enabled

	a.clockLength()
	assert.True(t, a.ch1.enabled, "length counter must not run unless NRx4 bit 6 is set")
}

func TestEnvelopeIncreasesVolumeWhenDirectionUp(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR12, 0x08|0x01) // volume 0, direction up, period 1
	a.Write(addr.NR14, 0x80)      // trigger

	assert.Equal(t, 0, a.ch1.env.volume)
	a.clockEnvelope()
	assert.Equal(t, 1, a.ch1.env.volume)
}

func TestEnvelopePeriodZeroNeverClocks(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR12, 0xF0) // volume 15, period 0
	a.Write(addr.NR14, 0x80)

	a.clockEnvelope()
	assert.Equal(t, 15, a.ch1.env.volume, "period 0 envelope never advances")
}

func TestSweepOverflowDisablesChannel(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR10, 0x01|0x00) // period 0, shift 1, additive
	a.Write(addr.NR12, 0xF0)
	a.Write(addr.NR13, 0xFF)
	a.Write(addr.NR14, 0x87) // trigger, freq=0x7FF (2047)

	a.ch1.sweepClock() // the trigger's own overflow check already computed 2047 + (2047>>1) = 3070 > 2047
	assert.False(t, a.ch1.enabled, "sweep overflow beyond 2047 disables the channel")
}

func TestFrameSequencerClocksLengthOnEvenSteps(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR12, 0xF0)
	a.Write(addr.NR11, 0x3F) // length = 1
	a.Write(addr.NR14, 0xC0) // trigger, length enabled

	a.NotifyDIVFalling() // seqStep 0 -> clocks length
	assert.False(t, a.ch1.enabled, "step 0 clocks length and expires the 1-tick counter")
}

func TestFrameSequencerClocksEnvelopeOnlyOnStep7(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR12, 0x08|0x01) // direction up, period 1
	a.Write(addr.NR14, 0x80)

	for i := 0; i < 7; i++ {
		a.NotifyDIVFalling()
	}
	assert.Equal(t, 0, a.ch1.env.volume, "envelope must not clock on steps 0-6")
	a.NotifyDIVFalling() // now at step 7
	assert.Equal(t, 1, a.ch1.env.volume)
}

func TestNotifyDIVFallingIgnoredWhilePoweredOff(t *testing.T) {
	a := New(2097152, nil)
	a.NotifyDIVFalling()
	assert.Equal(t, 0, a.seqStep, "sequencer must not advance while the APU is off")
}

func TestTickEmitsOneStereoSamplePairEvery2Cycles(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Tick(2)
	assert.Len(t, a.Samples, 2, "one stereo frame (L,R) per 2 T-cycles")
	a.Tick(4)
	assert.Len(t, a.Samples, 6)
}

func TestMixRespectsNR51Panning(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR12, 0xF0)
	a.Write(addr.NR11, 0x80)
	a.Write(addr.NR14, 0x80) // trigger channel 1, duty pos 0 -> amplitude 15

	a.nr50 = 0x77 // max volume both sides
	a.nr51 = 0x01 // channel 1 routed to right only
	l, r := a.mix()
	assert.Equal(t, int16(0), l, "channel 1 not routed left")
	assert.NotEqual(t, int16(0), r, "channel 1 routed right")
}

func TestDrainSamplesClearsBuffer(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Tick(2)
	assert.NotEmpty(t, a.Samples)
	out := a.DrainSamples()
	assert.NotEmpty(t, out)
	assert.Empty(t, a.Samples)
}

func TestWaveRAMPacksTwoNibblesPerByte(t *testing.T) {
	a := New(2097152, nil)
	a.writeWaveRAM(addr.WaveRAMStart, 0xAB)
	assert.Equal(t, byte(0xA), a.ch3.samples[0])
	assert.Equal(t, byte(0xB), a.ch3.samples[1])
	assert.Equal(t, byte(0xAB), a.readWaveRAM(addr.WaveRAMStart))
}

func TestNoiseLFSRNarrowModeCopiesBitIntoBit6(t *testing.T) {
	a := New(2097152, nil)
	powerOn(a)
	a.Write(addr.NR43, 0x08|0x00) // narrow mode, divisor code 0 -> 8, shift 0
	a.Write(addr.NR42, 0xF0)      // DAC on, so the trigger enables the channel
	a.Write(addr.NR44, 0x80)      // trigger

	a.ch4.tick(a.ch4.divisor << a.ch4.shift)
	bit6 := (a.ch4.lfsr >> 6) & 1
	bit14 := (a.ch4.lfsr >> 14) & 1
	assert.Equal(t, bit14, bit6, "narrow mode mirrors the feedback bit into bit 6")
}
