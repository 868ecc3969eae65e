// Package clock implements the shared monotonic cycle counter and event
// scheduler described in spec.md §4.1: a single source of simulated time
// that every other component reads, and whose min-heap of pending events
// other components schedule into instead of polling.
package clock

import "container/heap"

// EventKind identifies one of the fixed set of schedulable events. There
// is at most one pending instance of each kind at a time; rescheduling a
// kind replaces its previous target cycle.
type EventKind int

const (
	EventStartOAMDMA EventKind = iota
	EventLCDIRQVBlank
	EventLCDIRQLYC
	EventLCDIRQMode2
	EventLCDIRQMode0
	EventTimerOverflow
	EventSerialTransferFinished
	EventHDMAStep
	EventSpeedSwitchDone

	eventKindCount
)

// Event pairs a kind with the absolute cycle it should fire at.
type Event struct {
	Kind        EventKind
	TargetCycle int64
}

// NoCycle is the sentinel used by components to mean "no cycle scheduled".
// shift_back must never adjust a field holding this sentinel.
const NoCycle = int64(-1) << 62

// Clock is the monotonic signed cycle counter plus the event min-heap.
// One machine cycle equals 4 clock cycles; the system runs at
// 4.194304 MHz (DMG/CGB single speed), doubled in CGB double-speed mode.
type Clock struct {
	cycle        int64
	doubleSpeed  bool
	pending      eventHeap
	index        [eventKindCount]int // heap index of each kind, -1 if absent
	shiftBackAt  int64               // safe bound that triggers a shift_back
	shiftBackAmt int64
}

// New creates a clock starting at cycle 0, single speed, with a shift-back
// threshold large enough to run for hours before it ever triggers.
func New() *Clock {
	c := &Clock{
		shiftBackAt:  1 << 40,
		shiftBackAmt: 1 << 39,
	}
	for i := range c.index {
		c.index[i] = -1
	}
	heap.Init(&c.pending)
	return c
}

// CurrentCycle returns the monotonic cycle counter.
func (c *Clock) CurrentCycle() int64 { return c.cycle }

// SetDoubleSpeed toggles tick granularity without moving the counter.
func (c *Clock) SetDoubleSpeed(on bool) { c.doubleSpeed = on }

// DoubleSpeed reports whether double-speed mode is active.
func (c *Clock) DoubleSpeed() bool { return c.doubleSpeed }

// Tick advances the counter by delta cycles. Callers are expected to drain
// PopDue() immediately afterward, before issuing another memory access,
// per the ordering guarantee in spec.md §5.
func (c *Clock) Tick(delta int64) {
	c.cycle += delta
}

// Schedule inserts or replaces the pending event of the given kind so that
// it fires inCycles cycles from now.
func (c *Clock) Schedule(kind EventKind, inCycles int64) {
	c.Remove(kind)
	heap.Push(&c.pending, &heapEntry{kind: kind, target: c.cycle + inCycles, owner: c})
}

// ScheduleAt is like Schedule but takes an absolute target cycle.
func (c *Clock) ScheduleAt(kind EventKind, targetCycle int64) {
	c.Remove(kind)
	heap.Push(&c.pending, &heapEntry{kind: kind, target: targetCycle, owner: c})
}

// Remove cancels any pending event of the given kind.
func (c *Clock) Remove(kind EventKind) {
	idx := c.index[kind]
	if idx < 0 {
		return
	}
	heap.Remove(&c.pending, idx)
}

// PeekNext returns the earliest pending event, if any.
func (c *Clock) PeekNext() (Event, bool) {
	if c.pending.Len() == 0 {
		return Event{}, false
	}
	top := c.pending[0]
	return Event{Kind: top.kind, TargetCycle: top.target}, true
}

// PopDue removes and returns the earliest pending event if its target has
// been reached (target <= current cycle), or false otherwise. Callers
// drain this in a loop to dispatch every event due at the current cycle,
// in target-cycle order.
func (c *Clock) PopDue() (Event, bool) {
	if c.pending.Len() == 0 {
		return Event{}, false
	}
	top := c.pending[0]
	if top.target > c.cycle {
		return Event{}, false
	}
	popped := heap.Pop(&c.pending).(*heapEntry)
	return Event{Kind: popped.kind, TargetCycle: popped.target}, true
}

// NeedsShiftBack reports whether the cycle counter has crossed the safe
// bound configured at construction.
func (c *Clock) NeedsShiftBack() bool {
	return c.cycle >= c.shiftBackAt
}

// ShiftBackAmount returns the constant every component should subtract
// from its own stored absolute-cycle fields when NeedsShiftBack is true.
func (c *Clock) ShiftBackAmount() int64 {
	return c.shiftBackAmt
}

// ShiftBack subtracts offset from the counter and every scheduled event's
// target cycle; the relative order of events is unchanged since every
// target shifts by the same amount.
func (c *Clock) ShiftBack(offset int64) {
	c.cycle -= offset
	for _, e := range c.pending {
		e.target -= offset
	}
}

// ShiftBackCycle applies offset to a single absolute-cycle field owned by
// another component, honoring the NoCycle sentinel.
func ShiftBackCycle(field int64, offset int64) int64 {
	if field == NoCycle {
		return field
	}
	return field - offset
}

// --- internal min-heap plumbing ---

type heapEntry struct {
	kind   EventKind
	target int64
	owner  *Clock
}

type eventHeap []*heapEntry

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].target < h[j].target }
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].owner.index[h[i].kind] = i
	h[j].owner.index[h[j].kind] = j
}

func (h *eventHeap) Push(x any) {
	e := x.(*heapEntry)
	e.owner.index[e.kind] = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	e.owner.index[e.kind] = -1
	return e
}
