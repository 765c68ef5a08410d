package ppu

import (
	"github.com/arm7tdmi-core/gbacore/internal/irq"
	"github.com/arm7tdmi-core/gbacore/internal/scheduler"
)

const (
	numBGs  = 4
	numObjs = 128
)

// bgPixel is one rendered background-layer sample: its 15-bit color
// (palette lookups are already resolved by the layer renderers) plus
// whether it is transparent.
type bgPixel struct {
	color       uint16
	transparent bool
}

// objPixel is one rendered sprite sample.
type objPixel struct {
	color         uint16
	transparent   bool
	priority      int
	semiTransp    bool
	windowOnly    bool
}

// OnHBlankStart fires at the end of a scanline's visible window. It
// renders the line that just finished, raises the HBlank IRQ if enabled,
// and schedules HBlankEnd.
func (p *PPU) OnHBlankStart() {
	p.dispstatFlags |= 0x02
	if p.dispstat()&0x10 != 0 {
		p.irq.Raise(irq.HBlank)
	}
	if int(p.vcount) < ScreenHeight {
		p.renderLine(int(p.vcount))
	}
	p.sched.Push(scheduler.HBlankEnd, cyclesPerScanline-hVisibleCycles, -1)
}

// OnHBlankEnd advances VCOUNT, updates the VCounter-match status bit,
// handles the VBlank transition, and schedules the next HBlankStart.
func (p *PPU) OnHBlankEnd() {
	p.dispstatFlags &^= 0x02
	p.vcount++
	if int(p.vcount) >= scanlinesPerFrame {
		p.vcount = 0
	}

	vcountSetting := uint16(p.regs[0x05])
	if p.vcount == vcountSetting {
		p.dispstatFlags |= 0x04
		if p.dispstat()&0x20 != 0 {
			p.irq.Raise(irq.VCount)
		}
	} else {
		p.dispstatFlags &^= 0x04
	}

	switch int(p.vcount) {
	case ScreenHeight:
		p.dispstatFlags |= 0x01
		p.reloadAffineInternal()
		if p.dispstat()&0x08 != 0 {
			p.irq.Raise(irq.VBlank)
		}
	case 0:
		p.dispstatFlags &^= 0x01
	}

	if int(p.vcount) < ScreenHeight {
		p.advanceAffineInternal()
	}

	p.sched.Push(scheduler.HBlankStart, hVisibleCycles, -1)
}

func (p *PPU) reloadAffineInternal() {
	p.bgAffineInternal = p.bgAffineCurrent
}

func (p *PPU) advanceAffineInternal() {
	for bg := 0; bg < 2; bg++ {
		p.bgAffineInternal[bg][0] += int32(p.bgAffineParam(bg, 1)) // pb
		p.bgAffineInternal[bg][1] += int32(p.bgAffineParam(bg, 3)) // pd
	}
}

// renderLine produces ARGB8888 pixels for scanline y into the framebuffer.
func (p *PPU) renderLine(y int) {
	row := p.framebuffer[y*ScreenWidth : (y+1)*ScreenWidth]
	if p.forcedBlank() {
		for x := range row {
			row[x] = 0xFFFFFFFF
		}
		return
	}

	var bgLines [numBGs][ScreenWidth]bgPixel
	mode := p.dispcntMode()

	switch mode {
	case 0:
		for bg := 0; bg < 4; bg++ {
			if p.bgEnabled(bg) {
				bgLines[bg] = p.renderTextLine(bg, y)
			}
		}
	case 1:
		if p.bgEnabled(0) {
			bgLines[0] = p.renderTextLine(0, y)
		}
		if p.bgEnabled(1) {
			bgLines[1] = p.renderTextLine(1, y)
		}
		if p.bgEnabled(2) {
			bgLines[2] = p.renderAffineLine(2, 0)
		}
	case 2:
		if p.bgEnabled(2) {
			bgLines[2] = p.renderAffineLine(2, 0)
		}
		if p.bgEnabled(3) {
			bgLines[3] = p.renderAffineLine(3, 1)
		}
	case 3:
		if p.bgEnabled(2) {
			bgLines[2] = p.renderBitmapMode3Line(y)
		}
	case 4:
		if p.bgEnabled(2) {
			bgLines[2] = p.renderBitmapMode4Line(y)
		}
	case 5:
		if p.bgEnabled(2) {
			bgLines[2] = p.renderBitmapMode5Line(y)
		}
	}

	var objLine [ScreenWidth]objPixel
	if p.objEnabled() {
		objLine = p.renderObjLine(y)
	} else {
		for x := range objLine {
			objLine[x] = objPixel{transparent: true, priority: 4}
		}
	}

	p.composeLine(row, y, mode, &bgLines, &objLine)
}

// bgPriority returns BGCNT's two-bit priority field for background bg.
func (p *PPU) bgPriority(bg int) int { return int(p.bgcnt(bg) & 0x3) }

// composeLine merges background and sprite samples for one scanline,
// applying windowing and blend effects, and writes ARGB8888 pixels.
func (p *PPU) composeLine(row []uint32, y int, mode int, bgLines *[numBGs][ScreenWidth]bgPixel, objLine *[ScreenWidth]objPixel) {
	bgActive := [numBGs]bool{}
	switch mode {
	case 0:
		bgActive = [numBGs]bool{p.bgEnabled(0), p.bgEnabled(1), p.bgEnabled(2), p.bgEnabled(3)}
	case 1:
		bgActive = [numBGs]bool{p.bgEnabled(0), p.bgEnabled(1), p.bgEnabled(2), false}
	case 2:
		bgActive = [numBGs]bool{false, false, p.bgEnabled(2), p.bgEnabled(3)}
	default:
		bgActive = [numBGs]bool{false, false, p.bgEnabled(2), false}
	}

	anyWindow := p.winEnabled(0) || p.winEnabled(1) || p.winEnabled(2)

	for x := 0; x < ScreenWidth; x++ {
		layerEnable := bgActive
		objEnable := true
		effectsEnable := true

		if anyWindow {
			layerEnable, objEnable, effectsEnable = p.windowMaskAt(x, y, objLine[x].windowOnly)
			for i := range layerEnable {
				layerEnable[i] = layerEnable[i] && bgActive[i]
			}
		}

		topColor, topLayer := uint16(0), -1 // -1 = backdrop
		topPriority := 5
		secondColor, secondLayer := uint16(0), -1
		secondPriority := 5
		for bg := 3; bg >= 0; bg-- {
			if !layerEnable[bg] || bgLines[bg][x].transparent {
				continue
			}
			pr := p.bgPriority(bg)
			if pr <= topPriority {
				secondColor, secondLayer, secondPriority = topColor, topLayer, topPriority
				topPriority = pr
				topColor = bgLines[bg][x].color
				topLayer = bg
			} else if pr <= secondPriority {
				secondPriority = pr
				secondColor = bgLines[bg][x].color
				secondLayer = bg
			}
		}
		if objEnable && !objLine[x].transparent && !objLine[x].windowOnly && objLine[x].priority <= topPriority {
			secondColor, secondLayer, secondPriority = topColor, topLayer, topPriority
			topPriority = objLine[x].priority
			topColor = objLine[x].color
			topLayer = 4
		}

		row[x] = rgb555ToARGB(p.resolveLayerColor(mode, topLayer, topColor))

		if effectsEnable {
			botRGB := rgb555ToARGB(p.resolveLayerColor(mode, secondLayer, secondColor))
			row[x] = p.applyBlend(row[x], botRGB, topLayer, secondLayer)
		}
	}
}

// resolveLayerColor maps a chosen layer/sample pair to its RGB555 value,
// substituting the backdrop color for the no-layer (-1) case.
func (p *PPU) resolveLayerColor(mode, layer int, color uint16) uint16 {
	switch {
	case layer == -1:
		return p.backdropColor()
	case mode >= 3 && layer == 2:
		return color
	default:
		return p.paletteColor(layer, color)
	}
}

func (p *PPU) backdropColor() uint16 {
	return uint16(p.PalRAM[0]) | uint16(p.PalRAM[1])<<8
}

// paletteColor returns a BG/OBJ sample's RGB555 value. The layer
// renderers store already-resolved colors, so the sample is returned as is.
func (p *PPU) paletteColor(layer int, idx uint16) uint16 {
	return idx
}

func rgb555ToARGB(c uint16) uint32 {
	r := uint32(c&0x1F) * 255 / 31
	g := uint32((c>>5)&0x1F) * 255 / 31
	b := uint32((c>>10)&0x1F) * 255 / 31
	return 0xFF000000 | r<<16 | g<<8 | b
}

// applyBlend applies the color special-effect configured by BLDCNT to an
// already-composited pixel. top is the chosen pixel's own color; bot is
// the next layer down, needed for alpha blending's two-layer mix.
// topLayer/secondLayer index BLDCNT's per-layer target-selection bits
// (-1 = backdrop, 0-3 = BG0-3, 4 = OBJ).
func (p *PPU) applyBlend(top, bot uint32, topLayer, secondLayer int) uint32 {
	switch (p.bldcnt() >> 6) & 0x3 {
	case 1: // alpha blend
		if !p.isBlendTarget(topLayer, true) || !p.isBlendTarget(secondLayer, false) {
			return top
		}
		eva := float64(p.bldAlpha() & 0x1F)
		evb := float64((p.bldAlpha() >> 8) & 0x1F)
		if eva > 16 {
			eva = 16
		}
		if evb > 16 {
			evb = 16
		}
		return mixChannels(top, bot, eva/16, evb/16)
	case 2: // brighten toward white
		evy := float64(p.bldY())
		if evy > 16 {
			evy = 16
		}
		return blendChannels(top, 0xFFFFFF, evy/16)
	case 3: // darken toward black
		evy := float64(p.bldY())
		if evy > 16 {
			evy = 16
		}
		return blendChannels(top, 0x000000, evy/16)
	default:
		return top
	}
}

// isBlendTarget reports whether layer is selected as a 1st-target (top)
// or 2nd-target (bottom) source in BLDCNT. Bits 0-5 are the 1st-target
// flags and bits 8-13 are the 2nd-target flags, both laid out as
// BG0,BG1,BG2,BG3,OBJ,BD.
func (p *PPU) isBlendTarget(layer int, firstTarget bool) bool {
	idx := layer
	if layer == -1 {
		idx = 5
	}
	shift := uint(idx)
	if !firstTarget {
		shift += 8
	}
	return p.bldcnt()&(1<<shift) != 0
}

func blendChannels(c uint32, target uint32, amt float64) uint32 {
	r := float64((c>>16)&0xFF)
	g := float64((c >> 8) & 0xFF)
	b := float64(c & 0xFF)
	tr := float64((target >> 16) & 0xFF)
	tg := float64((target >> 8) & 0xFF)
	tb := float64(target & 0xFF)
	r += (tr - r) * amt
	g += (tg - g) * amt
	b += (tb - b) * amt
	return 0xFF000000 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// mixChannels blends top and bot per-channel by their EVA/EVB weights
// and clamps to 8 bits, matching the hardware's saturating blend unit.
func mixChannels(top, bot uint32, wa, wb float64) uint32 {
	tr, tg, tb := float64((top>>16)&0xFF), float64((top>>8)&0xFF), float64(top&0xFF)
	br, bg, bb := float64((bot>>16)&0xFF), float64((bot>>8)&0xFF), float64(bot&0xFF)
	r := clamp8(tr*wa + br*wb)
	g := clamp8(tg*wa + bg*wb)
	b := clamp8(tb*wa + bb*wb)
	return 0xFF000000 | r<<16 | g<<8 | b
}

func clamp8(v float64) uint32 {
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint32(v)
}

// windowMaskAt returns which BG layers, OBJ, and color effects are
// enabled at pixel (x, y) given Win0/Win1/ObjWin configuration.
// objWindowHit reports whether an OBJ-window-mode sprite covers this
// pixel, which is what actually selects the ObjWin region (WinOut's
// upper byte), not window 2 being merely configured.
func (p *PPU) windowMaskAt(x, y int, objWindowHit bool) (bg [numBGs]bool, obj bool, fx bool) {
	inside := func(win int) bool {
		l, r := p.winH(win)
		t, b := p.winV(win)
		if r > ScreenWidth || r == 0 {
			r = ScreenWidth
		}
		if b > ScreenHeight || b == 0 {
			b = ScreenHeight
		}
		xin := l <= r && x >= l && x < r
		yin := t <= b && y >= t && y < b
		return xin && yin
	}

	if p.winEnabled(0) && inside(0) {
		v := p.winIn()
		return decodeWinFlags(v & 0xFF), v&0x20 != 0, v&0x80 != 0
	}
	if p.winEnabled(1) && inside(1) {
		v := p.winIn()
		return decodeWinFlags(v >> 8), (v>>8)&0x20 != 0, (v>>8)&0x80 != 0
	}
	if p.winEnabled(2) && objWindowHit {
		v := p.winOut() >> 8
		return decodeWinFlags(v), v&0x20 != 0, v&0x80 != 0
	}
	v := p.winOut()
	return decodeWinFlags(v), v&0x20 != 0, v&0x80 != 0
}

func decodeWinFlags(v uint16) [numBGs]bool {
	return [numBGs]bool{v&0x1 != 0, v&0x2 != 0, v&0x4 != 0, v&0x8 != 0}
}
