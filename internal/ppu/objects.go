package ppu

// objSizes maps OAM's (shape, size) field pairs to pixel dimensions.
var objSizes = [4][4][2]int{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}},   // square
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}},   // horizontal
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}},   // vertical
	{{8, 8}, {8, 8}, {8, 8}, {8, 8}},          // reserved, unused
}

// renderObjLine scans OAM in priority order and produces one sprite
// sample per screen column for scanline y. Affine (rotation/scaling)
// sprites are not rendered here and are treated as disabled: the OAM
// scan skips any entry with the affine attribute set, since correct
// affine OBJ sampling needs the same per-pixel matrix transform as
// affine backgrounds applied per-sprite, which this renderer does not
// carry for sprites.
func (p *PPU) renderObjLine(y int) [ScreenWidth]objPixel {
	var out [ScreenWidth]objPixel
	for i := range out {
		out[i] = objPixel{transparent: true, priority: 4}
	}

	oneDMapping := p.objMapping1D()

	for obj := 0; obj < numObjs; obj++ {
		base := obj * 8
		attr0 := uint16(p.OAM[base]) | uint16(p.OAM[base+1])<<8
		attr1 := uint16(p.OAM[base+2]) | uint16(p.OAM[base+3])<<8
		attr2 := uint16(p.OAM[base+4]) | uint16(p.OAM[base+5])<<8

		objMode := (attr0 >> 8) & 0x3 // 0 normal, 1 semi-transparent, 2 window, 3 prohibited
		mosaicOn := attr0&0x1000 != 0
		isAffine := attr0&0x100 != 0
		doubleSize := attr0&0x200 != 0
		if isAffine && doubleSize {
			continue // affine double-size sprites: not rendered, see doc above
		}
		if !isAffine && attr0&0x200 != 0 {
			continue // disabled (non-affine OBJ with bit 9 set)
		}
		if isAffine {
			continue
		}

		shape := (attr0 >> 14) & 0x3
		size := (attr1 >> 14) & 0x3
		w, h := objSizes[shape][size][0], objSizes[shape][size][1]

		objY := int(attr0 & 0xFF)
		if objY >= 160 {
			objY -= 256
		}
		if y < objY || y >= objY+h {
			continue
		}

		objX := int(attr1 & 0x1FF)
		if objX >= 256 {
			objX -= 512
		}

		flipX := attr1&0x1000 != 0
		flipY := attr1&0x2000 != 0

		sampleY := y
		if mosaicOn {
			_, vStep := p.objMosaicSize()
			sampleY = y - y%(vStep+1)
			if sampleY < objY {
				sampleY = objY
			}
		}
		row := sampleY - objY
		if flipY {
			row = h - 1 - row
		}

		colors256 := attr0&0x2000 != 0
		tileIdx := int(attr2 & 0x3FF)
		priority := int((attr2 >> 10) & 0x3)
		palBank := (attr2 >> 12) & 0xF

		tilesWide := w / 8
		var charBase uint32
		var bytesPerTileRow uint32 = 4
		if colors256 {
			bytesPerTileRow = 8
		}

		tileRow := row / 8
		rowInTile := row % 8

		for col := 0; col < w; col++ {
			screenX := objX + col
			if screenX < 0 || screenX >= ScreenWidth {
				continue
			}
			sampleCol := col
			if mosaicOn {
				hStep, _ := p.objMosaicSize()
				sampleCol = col - col%(hStep+1)
			}
			c := sampleCol
			if flipX {
				c = w - 1 - sampleCol
			}
			tileCol := c / 8
			colInTile := c % 8

			var tileNum int
			if oneDMapping {
				stride := tilesWide
				if colors256 {
					stride *= 2
				}
				tileNum = tileIdx + (tileRow*stride + tileCol*(btoi(colors256)+1))
			} else {
				rowStride := 32
				tileNum = tileIdx + tileRow*rowStride + tileCol
			}

			tileAddr := charBase + 0x10000 + uint32(tileNum)*32
			var palIdx byte
			if colors256 {
				addr := tileAddr + uint32(rowInTile)*bytesPerTileRow + uint32(colInTile)
				palIdx = p.VRAM[addr]
			} else {
				addr := tileAddr + uint32(rowInTile)*bytesPerTileRow + uint32(colInTile/2)
				b := p.VRAM[addr]
				if colInTile%2 == 0 {
					palIdx = b & 0xF
				} else {
					palIdx = b >> 4
				}
			}
			if palIdx == 0 {
				continue
			}
			if out[screenX].priority <= priority && !out[screenX].transparent {
				continue
			}

			var palOffset uint32
			if colors256 {
				palOffset = 0x200 + uint32(palIdx)*2
			} else {
				palOffset = 0x200 + (uint32(palBank)*16+uint32(palIdx))*2
			}
			color := uint16(p.PalRAM[palOffset]) | uint16(p.PalRAM[palOffset+1])<<8

			out[screenX] = objPixel{
				color:       color,
				transparent: false,
				priority:    priority,
				semiTransp:  objMode == 1,
				windowOnly:  objMode == 2,
			}
		}
	}
	return out
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
