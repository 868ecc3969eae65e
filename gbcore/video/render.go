package video

import (
	"sort"

	"github.com/mlang/gbcore/addr"
)

const maxSpritesPerLine = 10

// scanSprites selects up to 10 sprites intersecting the current line,
// sorted DMG-style by X then OAM index, or CGB-style by OAM index only
// when OPRI selects that priority mode.
func (p *PPU) scanSprites() []spriteEntry {
	height := 8
	if p.lcdc&lcdcObjSize != 0 {
		height = 16
	}

	var found []spriteEntry
	for i := 0; i < 40 && len(found) < maxSpritesPerLine; i++ {
		base := i * 4
		y := int(p.oam[base]) - 16
		if p.line < y || p.line >= y+height {
			continue
		}
		found = append(found, spriteEntry{
			y:        p.oam[base],
			x:        p.oam[base+1],
			tile:     p.oam[base+2],
			flags:    p.oam[base+3],
			oamIndex: i,
		})
	}

	dmgOrder := !p.cgb || p.opri == 1
	if dmgOrder {
		sort.SliceStable(found, func(a, b int) bool {
			return found[a].x < found[b].x
		})
	}
	return found
}

// renderScanline composes the background, window and sprite layers for the
// current line into the back buffer, using whichever register state is
// live right now (called once, as mode 3 ends for this line).
func (p *PPU) renderScanline() {
	y := p.line
	if y < 0 || y >= Height {
		return
	}

	var bgColorID [Width]uint8
	var bgPalIdx [Width]uint8

	// On CGB, LCDC bit 0 instead toggles BG-under-OBJ master priority, so
	// the background/window layer is always composed.
	if p.lcdc&lcdcBGEnable != 0 || p.cgb {
		mapBase := uint16(addr.TileMap0)
		if p.lcdc&lcdcBGMap != 0 {
			mapBase = addr.TileMap1
		}
		scy, scx := p.scy, p.scx
		tileY := (int(scy) + y) & 0xFF
		row := tileY / 8
		fineY := tileY % 8

		for x := 0; x < Width; x++ {
			tileX := (int(scx) + x) & 0xFF
			col := tileX / 8
			fineX := tileX % 8

			mapAddr := mapBase + uint16(row*32+col)
			tileIndex := p.vram[0][mapAddr-0x8000]

			var attr byte
			if p.cgb {
				attr = p.vram[1][mapAddr-0x8000]
			}

			colorID, palIdx := p.tilePixel(tileIndex, attr, fineX, fineY)
			bgColorID[x] = colorID
			bgPalIdx[x] = palIdx
		}
	}

	if p.lcdc&lcdcWinEnable != 0 && p.wy <= byte(y) && p.wx <= 166 {
		mapBase := uint16(addr.TileMap0)
		if p.lcdc&lcdcWinMap != 0 {
			mapBase = addr.TileMap1
		}
		winRow := p.windowLine
		fineY := winRow % 8
		row := winRow / 8
		wx := int(p.wx) - 7

		drew := false
		for x := 0; x < Width; x++ {
			winX := x - wx
			if winX < 0 {
				continue
			}
			drew = true
			col := winX / 8
			fineX := winX % 8

			mapAddr := mapBase + uint16(row*32+col)
			tileIndex := p.vram[0][mapAddr-0x8000]
			var attr byte
			if p.cgb {
				attr = p.vram[1][mapAddr-0x8000]
			}
			colorID, palIdx := p.tilePixel(tileIndex, attr, fineX, fineY)
			bgColorID[x] = colorID
			bgPalIdx[x] = palIdx
		}
		if drew {
			p.windowLine++
		}
	}

	var out [Width]uint32
	for x := 0; x < Width; x++ {
		out[x] = p.resolveBGPixel(bgColorID[x], bgPalIdx[x])
	}

	if p.lcdc&lcdcObjEnable != 0 {
		p.renderSprites(out[:], bgColorID[:])
	}

	for x := 0; x < Width; x++ {
		p.back.set(x, y, out[x])
	}
}

func (p *PPU) resolveBGPixel(colorID, cgbPalIdx uint8) uint32 {
	if p.cgb {
		rgb := p.bgPal.color555(int(cgbPalIdx), int(colorID))
		return p.lut.apply(rgb)
	}
	shade := dmgShade(p.bgp, colorID)
	return p.dmgRamp()[shade]
}

// tilePixel decodes one pixel from tile data, honoring the CGB attribute
// byte's bank select, X/Y flip and palette index.
func (p *PPU) tilePixel(tileIndex, attr byte, fineX, fineY int) (colorID, cgbPalette uint8) {
	bank := 0
	if attr&0x08 != 0 {
		bank = 1
	}
	if attr&0x40 != 0 {
		fineY = 7 - fineY
	}
	if attr&0x20 != 0 {
		fineX = 7 - fineX
	}

	var base uint16
	if p.lcdc&lcdcTileData != 0 {
		base = addr.TileData0 + uint16(tileIndex)*16
	} else {
		base = uint16(int(addr.TileData2) + int(int8(tileIndex))*16)
	}
	rowAddr := base + uint16(fineY*2)
	lo := p.vram[bank][rowAddr-0x8000]
	hi := p.vram[bank][rowAddr+1-0x8000]

	bit := 7 - fineX
	colorID = ((hi>>bit)&1)<<1 | (lo>>bit)&1
	return colorID, attr & 0x07
}

func (p *PPU) renderSprites(out []uint32, bgColorID []uint8) {
	sprites := p.scanSprites()
	height := 8
	if p.lcdc&lcdcObjSize != 0 {
		height = 16
	}

	// Draw lowest priority first so higher-priority sprites overwrite.
	for i := len(sprites) - 1; i >= 0; i-- {
		s := sprites[i]
		spriteX := int(s.x) - 8
		spriteY := int(s.y) - 16
		line := p.line - spriteY
		if s.flags&0x40 != 0 {
			line = height - 1 - line
		}

		tile := s.tile
		if height == 16 {
			tile &^= 0x01
			if line >= 8 {
				tile |= 0x01
				line -= 8
			}
		}

		bank := 0
		palIdx := uint8(0)
		var dmgPal byte
		if p.cgb {
			if s.flags&0x08 != 0 {
				bank = 1
			}
			if p.dmgCompat {
				if s.flags&0x10 != 0 {
					palIdx = 1
				}
			} else {
				palIdx = s.flags & 0x07
			}
		} else if s.flags&0x10 != 0 {
			dmgPal = p.obp1
		} else {
			dmgPal = p.obp0
		}

		base := addr.TileData0 + uint16(tile)*16
		rowAddr := base + uint16(line*2)
		lo := p.vram[bank][rowAddr-0x8000]
		hi := p.vram[bank][rowAddr+1-0x8000]

		behindBG := s.flags&0x80 != 0

		for fineX := 0; fineX < 8; fineX++ {
			x := spriteX + fineX
			if x < 0 || x >= Width {
				continue
			}
			bit := fineX
			if s.flags&0x20 == 0 {
				bit = 7 - fineX
			}
			colorID := ((hi>>bit)&1)<<1 | (lo>>bit)&1
			if colorID == 0 {
				continue
			}
			if behindBG && bgColorID[x] != 0 {
				continue
			}
			if p.cgb {
				rgb := p.objPal.color555(int(palIdx), int(colorID))
				out[x] = p.lut.apply(rgb)
			} else {
				shade := dmgShade(dmgPal, colorID)
				out[x] = p.dmgRamp()[shade]
			}
		}
	}
}
