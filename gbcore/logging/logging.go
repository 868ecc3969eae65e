// Package logging implements the in-instance, category-filtered log that
// backs the emulator's public LogEntries() method. Unlike log/slog, which
// writes to an external handler, this is a query-able append-only buffer
// scoped to a single emulator instance (see DESIGN.md).
package logging

import "fmt"

// Category is a bitmask selecting which components may append log entries.
type Category uint32

const (
	CategoryCPU Category = 1 << iota
	CategoryTimer
	CategoryPPU
	CategoryAPU
	CategoryMBC
	CategorySerial
	CategoryJoypad

	CategoryNone Category = 0
	CategoryAll  Category = ^Category(0)
)

// LogEntry is one recorded event, timestamped against both the system
// clock and the DIV-phase clock so test-ROM traces can be cross-referenced
// against hardware logs that use either reference.
type LogEntry struct {
	Category Category
	Clock    int64
	DivClock int64
	Message  string
}

// Recorder accumulates LogEntry values for components whose category is
// present in the construction-time filter. The emulator is single
// threaded per run (spec.md §5), so no locking is required here.
type Recorder struct {
	filter  Category
	entries []LogEntry
}

// NewRecorder creates a recorder that only keeps entries for the given
// category set.
func NewRecorder(filter Category) *Recorder {
	return &Recorder{filter: filter}
}

// Logf appends a formatted entry if category is enabled in the filter.
func (r *Recorder) Logf(category Category, clock, divClock int64, format string, args ...any) {
	if r == nil || r.filter&category == 0 {
		return
	}
	r.entries = append(r.entries, LogEntry{
		Category: category,
		Clock:    clock,
		DivClock: divClock,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Entries returns all recorded entries, oldest first.
func (r *Recorder) Entries() []LogEntry {
	if r == nil {
		return nil
	}
	return r.entries
}

// Reset clears the buffer; entries accumulate across Run() calls, this is
// exposed for callers (tests, long sessions) that want to bound memory.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.entries = r.entries[:0]
}
