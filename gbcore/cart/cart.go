package cart

// Cartridge owns the ROM image, cartridge RAM, and the selected MBC
// controller. It never touches the clock directly except to seed the
// RTC's cycle rate; ReadRAM/WriteRAM drive the RTC's CatchUp with the
// current cycle passed in by the caller.
type Cartridge struct {
	Header Header
	rom    []byte
	ram    []byte
	mbc    Controller
	rtc    *mbc3rtc // non-nil only for MBC3RTC
}

// New parses rom and constructs the matching MBC. cyclesPerSecond is
// needed only to seed MBC3's RTC clock.
func New(rom []byte, cyclesPerSecond int64) (*Cartridge, error) {
	hdr, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}

	c := &Cartridge{
		Header: hdr,
		rom:    rom,
		ram:    make([]byte, hdr.RAMBankCount*0x2000),
	}
	if hdr.MBC == MBC2 {
		c.ram = make([]byte, 512)
	}

	switch hdr.MBC {
	case MBCNone:
		c.mbc = NewNoMBC()
	case MBC1, MBC1Multicart:
		c.mbc = NewMBC1(hdr.ROMBankCount, hdr.MBC == MBC1Multicart)
	case MBC2:
		c.mbc = NewMBC2(hdr.ROMBankCount)
	case MBC3:
		c.mbc = NewMBC3(hdr.ROMBankCount)
	case MBC3RTC:
		rtc := NewMBC3RTC(hdr.ROMBankCount, cyclesPerSecond)
		c.mbc = rtc
		c.rtc = rtc
	case MBC5, MBC5Rumble:
		c.mbc = NewMBC5(hdr.ROMBankCount, hdr.MBC == MBC5Rumble)
	case MBC7:
		c.mbc = NewMBC7(hdr.ROMBankCount)
	default:
		c.mbc = NewNoMBC()
	}

	return c, nil
}

// HasBattery reports whether PersistentRAM should be considered.
func (c *Cartridge) HasBattery() bool { return c.Header.HasBattery }

// ReadROM reads a byte from 0x0000-0x7FFF.
func (c *Cartridge) ReadROM(address uint16) uint8 { return c.mbc.ReadROM(c.rom, address) }

// WriteControl handles a write in 0x0000-0x7FFF (bank-select registers).
func (c *Cartridge) WriteControl(address uint16, value uint8) { c.mbc.WriteControl(address, value) }

// ReadRAM reads a byte from 0xA000-0xBFFF, catching the RTC up first if
// this cartridge has one mapped into that window.
func (c *Cartridge) ReadRAM(currentCycle int64, address uint16) uint8 {
	if c.rtc != nil {
		c.rtc.CatchUp(currentCycle)
	}
	return c.mbc.ReadCartRAM(c.ram, address)
}

// WriteRAM writes a byte to 0xA000-0xBFFF.
func (c *Cartridge) WriteRAM(currentCycle int64, address uint16, value uint8) {
	if c.rtc != nil {
		c.rtc.CatchUp(currentCycle)
	}
	c.mbc.WriteCartRAM(c.ram, address, value)
}

// PersistentRAM returns the raw cart-RAM bytes in bank order, the layout
// spec.md §6 defines for battery-backed saves.
func (c *Cartridge) PersistentRAM() []byte {
	out := make([]byte, len(c.ram))
	copy(out, c.ram)
	return out
}

// SetPersistentRAM loads a battery-backed RAM image. A buffer larger than
// the declared cart RAM has its extra bytes discarded; a shorter buffer
// is zero-padded, per spec.md §7.
func (c *Cartridge) SetPersistentRAM(data []byte) {
	for i := range c.ram {
		c.ram[i] = 0
	}
	n := len(data)
	if n > len(c.ram) {
		n = len(c.ram)
	}
	copy(c.ram, data[:n])
}

// ShiftBack adjusts the RTC's lazily-tracked last-update cycle when the
// emulator rebases its clock (spec.md §5).
func (c *Cartridge) ShiftBack(offset int64) {
	if c.rtc != nil {
		c.rtc.lastUpdateCycle -= offset
	}
}
