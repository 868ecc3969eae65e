package gbcore

import "github.com/mlang/gbcore/logging"

// Hardware selects which console model the core emulates.
type Hardware int

const (
	HardwareAuto Hardware = iota
	HardwareDMG
	HardwareCGB_ABCD
	HardwareCGB_E
)

// ColorHint selects the CGB color-correction curve, or a DMG greyscale
// override (spec.md §6 `colors_hint`).
type ColorHint int

const (
	ColorDefault ColorHint = iota
	ColorDMGGreyscale
	ColorCGBAcid2
	ColorCGBGambatte
)

// Options is the construction-time configuration for New.
type Options struct {
	Hardware      Hardware
	ColorsHint    ColorHint
	LogCategories logging.Category
}

// TestInfo is a snapshot of CPU register state plus the test-ROM
// breakpoint convention, for headless test-ROM harnesses (spec.md §6, §8).
type TestInfo struct {
	PC, SP     uint16
	A, F       byte
	B, C       byte
	D, E       byte
	H, L       byte
	LdBB       bool
}
