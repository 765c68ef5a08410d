package ppu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arm7tdmi-core/gbacore/internal/irq"
	"github.com/arm7tdmi-core/gbacore/internal/scheduler"
)

func newTestPPU() (*PPU, *scheduler.Scheduler) {
	sched := scheduler.New()
	irqc := irq.New(sched)
	return New(sched, irqc), sched
}

func TestDispstatStatusBitsAreReadOnly(t *testing.T) {
	p, _ := newTestPPU()
	p.Write8(0x04000004, 0xFF)
	// Only bits 3-5 (IRQ enables) are writable; bits 0-2 come from hardware.
	assert.Equal(t, byte(0x38), p.regs[0x04])
	assert.Equal(t, byte(0x38), p.Read8(0x04000004))
}

func TestVCountIsReadOnly(t *testing.T) {
	p, _ := newTestPPU()
	p.vcount = 42
	p.Write8(0x04000006, 0xFF)
	assert.Equal(t, byte(42), p.Read8(0x04000006))
}

func TestBG2ReferencePointLatchesOnWrite(t *testing.T) {
	p, _ := newTestPPU()
	p.Write8(0x04000028, 0x00)
	p.Write8(0x04000029, 0x01)
	p.Write8(0x0400002A, 0x00)
	p.Write8(0x0400002B, 0x00)
	require.Equal(t, int32(0x100), p.bgAffineCurrent[0][0])
}

func TestBG2ReferencePointSignExtends(t *testing.T) {
	p, _ := newTestPPU()
	p.Write8(0x04000028, 0x00)
	p.Write8(0x04000029, 0x00)
	p.Write8(0x0400002A, 0x00)
	p.Write8(0x0400002B, 0xF8) // top nibble set -> negative 28-bit value
	assert.True(t, p.bgAffineCurrent[0][0] < 0)
}

func TestHBlankEndAdvancesVCountAndWrapsAtFrameEnd(t *testing.T) {
	p, _ := newTestPPU()
	p.vcount = scanlinesPerFrame - 1
	p.OnHBlankEnd()
	assert.Equal(t, uint16(0), p.vcount)
}

func TestVBlankFlagSetsAtLine160(t *testing.T) {
	p, _ := newTestPPU()
	p.vcount = ScreenHeight - 1
	p.OnHBlankEnd()
	assert.Equal(t, uint16(ScreenHeight), p.vcount)
	assert.NotZero(t, p.dispstatFlags&0x01)
}

func TestForcedBlankProducesWhiteLine(t *testing.T) {
	p, _ := newTestPPU()
	p.regs[0] = 0x80 // DISPCNT bit 7: forced blank
	p.renderLine(0)
	for x := 0; x < ScreenWidth; x++ {
		assert.Equal(t, uint32(0xFFFFFFFF), p.framebuffer[x])
	}
}

func TestMode3BitmapRendersDirectColor(t *testing.T) {
	p, _ := newTestPPU()
	p.regs[0] = 0x03                 // mode 3
	p.regs[1] = 0x04                 // BG2 enable (bit 10 of DISPCNT -> regs[1] bit 2)
	p.VRAM[0] = 0x1F                 // red=31,green=0 low byte
	p.VRAM[1] = 0x00
	p.renderLine(0)
	assert.Equal(t, rgb555ToARGB(0x001F), p.framebuffer[0])
}

func TestRGB555ToARGBWhite(t *testing.T) {
	assert.Equal(t, uint32(0xFFFFFFFF), rgb555ToARGB(0x7FFF))
}

func TestRGB555ToARGBBlack(t *testing.T) {
	assert.Equal(t, uint32(0xFF000000), rgb555ToARGB(0))
}

func TestWindowMaskRestrictsToInsideRegion(t *testing.T) {
	p, _ := newTestPPU()
	p.regs[1] = 0x20 // DISPCNT bit 13 (Win0 enable) -> regs[1] bit5
	p.setReg16(0x40, 0x1000+50) // left=0x10,right=50 -> left=16,right=50
	p.setReg16(0x44, 0x0A00+80) // top=10,bottom=80
	p.setReg16(0x48, 0x0001)    // WinIn: win0 enables BG0 only

	bgIn, _, _ := p.windowMaskAt(20, 20, false)
	assert.True(t, bgIn[0])
	assert.False(t, bgIn[1])

	bgOut, _, _ := p.windowMaskAt(5, 5, false)
	_ = bgOut
}

func TestWindowMaskObjWinRequiresObjWindowHit(t *testing.T) {
	p, _ := newTestPPU()
	p.regs[1] = 0x80 // DISPCNT bit 15 (ObjWin enable) -> regs[1] bit7
	p.setReg16(0x4A, 0x0200) // WinOut upper byte: ObjWin enables BG1 only

	bgMiss, _, _ := p.windowMaskAt(10, 10, false)
	assert.False(t, bgMiss[1])

	bgHit, _, _ := p.windowMaskAt(10, 10, true)
	assert.True(t, bgHit[1])
}

func TestApplyBlendAlphaMixesTopAndBottomTargets(t *testing.T) {
	p, _ := newTestPPU()
	p.setReg16(0x50, 0x0241) // alpha mode; BG0 top target, BG1 bottom target
	p.setReg16(0x52, 0x0808) // EVA=8, EVB=8
	top := uint32(0xFF0000FF)
	bot := uint32(0xFFFF0000)
	got := p.applyBlend(top, bot, 0, 1)
	assert.Equal(t, uint32(0xFF7F007F), got)
}

func TestApplyBlendAlphaSkippedWhenTargetsNotSelected(t *testing.T) {
	p, _ := newTestPPU()
	p.setReg16(0x50, 0x0040) // alpha mode, no target bits set
	p.setReg16(0x52, 0x0808)
	top := uint32(0xFF0000FF)
	got := p.applyBlend(top, 0, 0, 1)
	assert.Equal(t, top, got)
}

func TestApplyMosaicBGRepeatsColumns(t *testing.T) {
	var out [ScreenWidth]bgPixel
	for x := 0; x < 4; x++ {
		out[x] = bgPixel{color: uint16(x)}
	}
	applyMosaicBG(&out, 1) // step = 2
	assert.Equal(t, out[0].color, out[1].color)
	assert.Equal(t, out[2].color, out[3].color)
	assert.NotEqual(t, out[0].color, out[2].color)
}

func TestMosaicSizeAccessorsSplitNibbles(t *testing.T) {
	p, _ := newTestPPU()
	p.setReg16(0x4C, 0x1234)
	h, v := p.bgMosaicSize()
	assert.Equal(t, 4, h)
	assert.Equal(t, 3, v)
	oh, ov := p.objMosaicSize()
	assert.Equal(t, 2, oh)
	assert.Equal(t, 1, ov)
}
