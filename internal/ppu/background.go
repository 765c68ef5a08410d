package ppu

// renderTextLine renders one scanline of a regular (non-affine) tile
// background using its scroll offsets, 32x32/64x64 screen layout, and
// 4bpp/8bpp character data.
func (p *PPU) renderTextLine(bg, y int) [ScreenWidth]bgPixel {
	var out [ScreenWidth]bgPixel
	cnt := p.bgcnt(bg)
	charBase := uint32((cnt>>2)&0x3) * 0x4000
	screenBase := uint32((cnt>>8)&0x1F) * 0x800
	colors256 := cnt&0x80 != 0
	size := (cnt >> 14) & 0x3
	mosaicOn := cnt&0x40 != 0

	screenW, screenH := 256, 256
	switch size {
	case 1:
		screenW = 512
	case 2:
		screenH = 512
	case 3:
		screenW, screenH = 512, 512
	}

	sampleY := y
	if mosaicOn {
		_, vStep := p.bgMosaicSize()
		sampleY = y - y%(vStep+1)
	}

	scrollX := int(p.bgHOfs(bg))
	scrollY := int(p.bgVOfs(bg))
	sy := (sampleY + scrollY) % screenH

	for x := 0; x < ScreenWidth; x++ {
		sx := (x + scrollX) % screenW
		tileX, tileY := sx/8, sy/8
		mapX, mapY := tileX%32, tileY%32

		block := uint32(0)
		if screenW == 512 && tileX >= 32 {
			block++
		}
		if screenH == 512 && tileY >= 32 {
			if screenW == 512 {
				block += 2
			} else {
				block++
			}
		}

		mapOffset := screenBase + block*0x800 + uint32(mapY*32+mapX)*2
		entry := uint16(p.VRAM[mapOffset]) | uint16(p.VRAM[mapOffset+1])<<8

		tileIdx := entry & 0x3FF
		flipX := entry&0x400 != 0
		flipY := entry&0x800 != 0
		palBank := (entry >> 12) & 0xF

		px, py := sx%8, sy%8
		if flipX {
			px = 7 - px
		}
		if flipY {
			py = 7 - py
		}

		var palIdx byte
		if colors256 {
			tileAddr := charBase + uint32(tileIdx)*64 + uint32(py*8+px)
			palIdx = p.VRAM[tileAddr]
		} else {
			tileAddr := charBase + uint32(tileIdx)*32 + uint32(py*4+px/2)
			b := p.VRAM[tileAddr]
			if px%2 == 0 {
				palIdx = b & 0xF
			} else {
				palIdx = b >> 4
			}
		}

		if palIdx == 0 {
			out[x] = bgPixel{transparent: true}
			continue
		}
		var palOffset uint32
		if colors256 {
			palOffset = uint32(palIdx) * 2
		} else {
			palOffset = (uint32(palBank)*16 + uint32(palIdx)) * 2
		}
		color := uint16(p.PalRAM[palOffset]) | uint16(p.PalRAM[palOffset+1])<<8
		out[x] = bgPixel{color: color}
	}
	if mosaicOn {
		hStep, _ := p.bgMosaicSize()
		applyMosaicBG(&out, hStep)
	}
	return out
}

// applyMosaicBG snaps every pixel to the color of the nearest preceding
// column divisible by (step+1), step being the mosaic size field.
func applyMosaicBG(out *[ScreenWidth]bgPixel, step int) {
	for x := 0; x < ScreenWidth; x++ {
		src := x - x%(step+1)
		out[x] = out[src]
	}
}

// renderAffineLine renders one scanline of an affine (rotation/scaling)
// background using its internal reference point and PA/PC matrix
// parameters. affineIdx is 0 for BG2, 1 for BG3.
func (p *PPU) renderAffineLine(bg, affineIdx int) [ScreenWidth]bgPixel {
	var out [ScreenWidth]bgPixel
	cnt := p.bgcnt(bg)
	charBase := uint32((cnt>>2)&0x3) * 0x4000
	screenBase := uint32((cnt>>8)&0x1F) * 0x800
	sizeSel := (cnt >> 14) & 0x3
	tiles := 16 << sizeSel // 16,32,64,128 tiles per side
	wrap := cnt&0x2000 != 0

	pa := int32(p.bgAffineParam(affineIdx, 0))
	pc := int32(p.bgAffineParam(affineIdx, 2))
	refX := p.bgAffineInternal[affineIdx][0]
	refY := p.bgAffineInternal[affineIdx][1]

	sizePixels := tiles * 8

	for x := 0; x < ScreenWidth; x++ {
		// 20.8 fixed point texture coordinates.
		tx := (refX + int32(x)*pa) >> 8
		ty := (refY + int32(x)*pc) >> 8

		if wrap {
			tx = ((tx % int32(sizePixels)) + int32(sizePixels)) % int32(sizePixels)
			ty = ((ty % int32(sizePixels)) + int32(sizePixels)) % int32(sizePixels)
		} else if tx < 0 || ty < 0 || int(tx) >= sizePixels || int(ty) >= sizePixels {
			out[x] = bgPixel{transparent: true}
			continue
		}

		tileX, tileY := int(tx)/8, int(ty)/8
		mapOffset := screenBase + uint32(tileY*tiles+tileX)
		tileIdx := p.VRAM[mapOffset]

		px, py := int(tx)%8, int(ty)%8
		tileAddr := charBase + uint32(tileIdx)*64 + uint32(py*8+px)
		palIdx := p.VRAM[tileAddr]
		if palIdx == 0 {
			out[x] = bgPixel{transparent: true}
			continue
		}
		palOffset := uint32(palIdx) * 2
		color := uint16(p.PalRAM[palOffset]) | uint16(p.PalRAM[palOffset+1])<<8
		out[x] = bgPixel{color: color}
	}
	return out
}

// renderBitmapMode3Line renders mode 3's full 15-bit-direct-color bitmap.
func (p *PPU) renderBitmapMode3Line(y int) [ScreenWidth]bgPixel {
	var out [ScreenWidth]bgPixel
	base := uint32(y * ScreenWidth * 2)
	for x := 0; x < ScreenWidth; x++ {
		off := base + uint32(x*2)
		out[x] = bgPixel{color: uint16(p.VRAM[off]) | uint16(p.VRAM[off+1])<<8}
	}
	return out
}

// renderBitmapMode4Line renders mode 4's paletted bitmap, honoring the
// DISPCNT frame-select page bit.
func (p *PPU) renderBitmapMode4Line(y int) [ScreenWidth]bgPixel {
	var out [ScreenWidth]bgPixel
	var page uint32
	if p.dispcntPage() == 1 {
		page = 0xA000
	}
	base := page + uint32(y*ScreenWidth)
	for x := 0; x < ScreenWidth; x++ {
		idx := p.VRAM[base+uint32(x)]
		if idx == 0 {
			out[x] = bgPixel{transparent: true}
			continue
		}
		palOffset := uint32(idx) * 2
		out[x] = bgPixel{color: uint16(p.PalRAM[palOffset]) | uint16(p.PalRAM[palOffset+1])<<8}
	}
	return out
}

// renderBitmapMode5Line renders mode 5's smaller (160x128) direct-color
// bitmap, honoring the frame-select page bit.
func (p *PPU) renderBitmapMode5Line(y int) [ScreenWidth]bgPixel {
	var out [ScreenWidth]bgPixel
	if y >= 128 {
		for x := range out {
			out[x] = bgPixel{transparent: true}
		}
		return out
	}
	var page uint32
	if p.dispcntPage() == 1 {
		page = 0xA000
	}
	base := page + uint32(y*160*2)
	for x := 0; x < ScreenWidth; x++ {
		if x >= 160 {
			out[x] = bgPixel{transparent: true}
			continue
		}
		off := base + uint32(x*2)
		out[x] = bgPixel{color: uint16(p.VRAM[off]) | uint16(p.VRAM[off+1])<<8}
	}
	return out
}
