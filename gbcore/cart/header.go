// Package cart parses the cartridge header and implements the memory
// bank controller variants described in spec.md §4.3: MBC1 (with the
// multi-cart heuristic), MBC2, MBC3 (+RTC), MBC5 (+ rumble) and a stubbed
// MBC7.
package cart

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadCartridgeHeader is returned by ParseHeader (and so by New) when the ROM is too small to
// contain a header or names an unrecognized cartridge type.
var ErrBadCartridgeHeader = errors.New("gbcore/cart: bad cartridge header")

const (
	entryPointAddress    = 0x0100
	logoAddress          = 0x0104
	titleAddress         = 0x0134
	titleLength          = 16
	cgbFlagAddress       = 0x0143
	cartTypeAddress      = 0x0147
	romSizeAddress       = 0x0148
	ramSizeAddress       = 0x0149
	headerChecksumAddr   = 0x014D
	headerMinimumLength  = 0x0150
)

// CGBSupport describes what the CGB flag byte in the header says.
type CGBSupport uint8

const (
	CGBUnsupported CGBSupport = iota
	CGBEnhanced               // works on DMG and CGB, with enhancements
	CGBOnly
)

// MBCKind enumerates the memory bank controller families.
type MBCKind uint8

const (
	MBCNone MBCKind = iota
	MBC1
	MBC1Multicart
	MBC2
	MBC3
	MBC3RTC
	MBC5
	MBC5Rumble
	MBC7
	MBCUnknown
)

// Header holds the parsed fields of the 0x0100-0x014F cartridge header.
type Header struct {
	Title        string
	CGBFlag      CGBSupport
	CartType     uint8
	MBC          MBCKind
	ROMBankCount int
	RAMBankCount int
	HasBattery   bool
	HasRumble    bool
	HasRTC       bool
}

// numROMBanks decodes the header's ROM size byte into a bank count. It is
// always a power of two per spec.md §3.
func numROMBanks(code uint8) int {
	if code > 8 {
		return 2
	}
	return 2 << code
}

// ramBankCount decodes the header's RAM size byte into a bank count.
func ramBankCount(code uint8) int {
	switch code {
	case 0x00:
		return 0
	case 0x01:
		return 1 // unofficial 2KiB, treated as one partial bank
	case 0x02:
		return 1
	case 0x03:
		return 4
	case 0x04:
		return 16
	case 0x05:
		return 8
	default:
		return 0
	}
}

func classify(cartType uint8) (MBCKind, bool, bool, bool) {
	switch cartType {
	case 0x00, 0x08, 0x09:
		return MBCNone, cartType != 0x00, false, false
	case 0x01, 0x02, 0x03:
		return MBC1, cartType == 0x03, false, false
	case 0x05, 0x06:
		return MBC2, cartType == 0x06, false, false
	case 0x0F, 0x10:
		return MBC3RTC, true, false, true
	case 0x11, 0x12, 0x13:
		return MBC3, cartType == 0x13, false, false
	case 0x19, 0x1A, 0x1B:
		return MBC5, cartType == 0x1B, false, false
	case 0x1C, 0x1D, 0x1E:
		return MBC5Rumble, cartType == 0x1E, true, false
	case 0x22:
		return MBC7, true, true, false
	default:
		return MBCUnknown, false, false, false
	}
}

// cleanTitle stops at the first NUL (trimming trailing spaces), turns
// spaces into '_', keeps only [A-Za-z0-9_], and truncates at the first
// other invalid byte, matching spec.md §6's title() contract.
func cleanTitle(raw []byte) string {
	var b strings.Builder
	for _, c := range raw {
		switch {
		case c == 0:
			// trailing padding, stop scanning (spec: "truncate at first invalid byte")
			return strings.TrimRight(b.String(), " ")
		case c == ' ':
			b.WriteByte('_')
		case (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_':
			b.WriteByte(c)
		default:
			return b.String()
		}
	}
	return b.String()
}

// ParseHeader reads and validates the cartridge header from rom.
func ParseHeader(rom []byte) (Header, error) {
	if len(rom) < headerMinimumLength {
		return Header{}, fmt.Errorf("%w: rom length %d < %d", ErrBadCartridgeHeader, len(rom), headerMinimumLength)
	}

	cartType := rom[cartTypeAddress]
	mbc, hasBattery, hasRumble, hasRTC := classify(cartType)
	if mbc == MBCUnknown {
		return Header{}, fmt.Errorf("%w: unrecognized cart type 0x%02X", ErrBadCartridgeHeader, cartType)
	}

	if mbc == MBC1 && isMulticart(rom) {
		mbc = MBC1Multicart
	}

	cgbByte := rom[cgbFlagAddress]
	cgb := CGBUnsupported
	switch cgbByte {
	case 0x80:
		cgb = CGBEnhanced
	case 0xC0:
		cgb = CGBOnly
	}

	title := cleanTitle(rom[titleAddress : titleAddress+titleLength])
	if len(title) > 32 {
		title = title[:32]
	}

	return Header{
		Title:        title,
		CGBFlag:      cgb,
		CartType:     cartType,
		MBC:          mbc,
		ROMBankCount: numROMBanks(rom[romSizeAddress]),
		RAMBankCount: ramBankCount(rom[ramSizeAddress]),
		HasBattery:   hasBattery,
		HasRumble:    hasRumble,
		HasRTC:       hasRTC,
	}, nil
}

// nintendoLogo is the fixed 48-byte Nintendo logo bitmap every licensed
// cartridge repeats at 0x0104. The multi-cart heuristic looks for repeats
// of it at 0x40000-byte strides (spec.md §4.3).
var nintendoLogo = [48]byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83,
	0x00, 0x0C, 0x00, 0x0D, 0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E,
	0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99, 0xBB, 0xBB, 0x67, 0x63,
	0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

const multicartStride = 0x40000

// isMulticart reports whether the Nintendo logo signature appears at
// least 3 times at 0x40000-byte strides, the MBC1 multi-cart heuristic
// named in spec.md §4.3.
func isMulticart(rom []byte) bool {
	hits := 0
	for offset := 0; offset+logoAddress+len(nintendoLogo) <= len(rom); offset += multicartStride {
		start := offset + logoAddress
		if string(rom[start:start+len(nintendoLogo)]) == string(nintendoLogo[:]) {
			hits++
		}
	}
	return hits >= 3
}
