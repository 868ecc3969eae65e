package serial

import (
	"testing"

	"github.com/mlang/gbcore/addr"
	"github.com/stretchr/testify/assert"
)

func TestInternalClockTransferCompletes(t *testing.T) {
	p := New()
	p.Write(addr.SB, 0x00)
	p.Write(addr.SC, 0x81) // start, internal clock

	p.Tick(cyclesPerShift * shiftsPerByte)

	assert.True(t, p.ConsumeInterrupt())
	assert.Equal(t, byte(0xFF), p.sb, "shifting in an absent peer's line should read all 1s")
	assert.Equal(t, byte(0), p.Read(addr.SC)&ctrlStart, "start bit clears on completion")
}

func TestExternalClockNeverCompletes(t *testing.T) {
	p := New()
	p.Write(addr.SB, 0x00)
	p.Write(addr.SC, 0x80) // start, external clock

	p.Tick(cyclesPerShift * shiftsPerByte * 10)

	assert.False(t, p.ConsumeInterrupt(), "external clock transfer must never complete without a peer")
	assert.NotEqual(t, byte(0), p.Read(addr.SC)&ctrlStart, "start bit stays set")
}

func TestSCReservedBitsReadHigh(t *testing.T) {
	p := New()
	p.Write(addr.SC, 0x00)
	assert.Equal(t, byte(0x7C), p.Read(addr.SC))
}

func TestDoubleSpeedQuartersInternalShiftRate(t *testing.T) {
	p := New()
	p.SetDoubleSpeed(true)
	p.Write(addr.SB, 0x00)
	p.Write(addr.SC, 0x83) // start, internal clock, CGB fast mode

	p.Tick((cyclesPerShift/4)*shiftsPerByte - 1)
	assert.False(t, p.ConsumeInterrupt(), "not quite done yet")

	p.Tick(1)
	assert.True(t, p.ConsumeInterrupt())
}
