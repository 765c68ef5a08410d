// Package ppu implements the scanline-driven pixel unit: its memory
// (palette RAM, VRAM, OAM), its memory-mapped register file, and the
// HBlank/VBlank scheduler events that drive scanline rendering into a
// 240x160 ARGB8888 framebuffer.
package ppu

import (
	"github.com/arm7tdmi-core/gbacore/internal/irq"
	"github.com/arm7tdmi-core/gbacore/internal/scheduler"
)

const (
	ScreenWidth  = 240
	ScreenHeight = 160

	cyclesPerScanline = 1232
	hVisibleCycles    = 960
	scanlinesPerFrame = 228

	regsSize = 0x58 // DISPCNT (0x00) .. BLDY (0x54..0x55)
)

// PPU owns video memory, the LCD register file, and the per-scanline
// rendering state machine.
type PPU struct {
	sched *scheduler.Scheduler
	irq   *irq.Controller

	PalRAM [0x400]byte
	VRAM   [0x18000]byte
	OAM    [0x400]byte

	regs [regsSize]byte

	vcount        uint16
	dispstatFlags byte // hardware-maintained bits 0 (VBlank) 1 (HBlank) 2 (VCounter match)

	// Affine reference points for BG2 (index 0) and BG3 (index 1): X is
	// field 0, Y is field 1. "current" is latched from register writes;
	// "internal" advances every visible line and reloads from current on
	// entering VBlank.
	bgAffineCurrent  [2][2]int32
	bgAffineInternal [2][2]int32

	framebuffer [ScreenWidth * ScreenHeight]uint32
}

// New returns a PPU wired to sched for its scanline events and irqc for
// VBlank/HBlank/VCount interrupt requests.
func New(sched *scheduler.Scheduler, irqc *irq.Controller) *PPU {
	p := &PPU{sched: sched, irq: irqc}
	return p
}

// Start schedules the first HBlankStart event, beginning the scanline
// loop. Called once by the system at boot.
func (p *PPU) Start() {
	p.sched.Push(scheduler.HBlankStart, hVisibleCycles, -1)
}

// Framebuffer returns the most recently rendered frame, row-major ARGB8888.
func (p *PPU) Framebuffer() []uint32 { return p.framebuffer[:] }

// VCount returns the current scanline counter (0..227).
func (p *PPU) VCount() uint16 { return p.vcount }

func (p *PPU) reg16(offset int) uint16 {
	return uint16(p.regs[offset]) | uint16(p.regs[offset+1])<<8
}

func (p *PPU) setReg16(offset int, v uint16) {
	p.regs[offset] = byte(v)
	p.regs[offset+1] = byte(v >> 8)
}

// --- register file ---

// Read8 dispatches a byte read of the LCD I/O register block
// (0x04000000..0x04000055).
func (p *PPU) Read8(addr uint32) byte {
	off := int(addr - 0x04000000)
	if off < 0 || off >= regsSize {
		return 0
	}
	switch off {
	case 0x04: // DISPSTAT lo: status bits + enable bits
		return p.regs[off] | p.dispstatFlags
	case 0x06:
		return byte(p.vcount)
	case 0x07:
		return byte(p.vcount >> 8)
	default:
		return p.regs[off]
	}
}

// Write8 dispatches a byte write of the LCD I/O register block.
func (p *PPU) Write8(addr uint32, v byte) {
	off := int(addr - 0x04000000)
	if off < 0 || off >= regsSize {
		return
	}
	switch {
	case off == 0x04:
		p.regs[off] = v & 0x38 // only the three IRQ-enable bits are writable
	case off == 0x06 || off == 0x07:
		// VCOUNT is read-only.
	case off >= 0x28 && off < 0x30:
		p.regs[off] = v
		p.latchAffine(0)
	case off >= 0x38 && off < 0x40:
		p.regs[off] = v
		p.latchAffine(1)
	default:
		p.regs[off] = v
	}
}

func signExtend28(v uint32) int32 {
	v &= 0x0FFFFFFF
	if v&0x08000000 != 0 {
		v |= 0xF0000000
	}
	return int32(v)
}

// latchAffine recomputes BGnX/BGnY's "current" reference point from the
// raw register bytes. bg is 0 for BG2, 1 for BG3.
func (p *PPU) latchAffine(bg int) {
	base := 0x28
	if bg == 1 {
		base = 0x38
	}
	x := uint32(p.regs[base]) | uint32(p.regs[base+1])<<8 | uint32(p.regs[base+2])<<16 | uint32(p.regs[base+3])<<24
	y := uint32(p.regs[base+4]) | uint32(p.regs[base+5])<<8 | uint32(p.regs[base+6])<<16 | uint32(p.regs[base+7])<<24
	p.bgAffineCurrent[bg][0] = signExtend28(x)
	p.bgAffineCurrent[bg][1] = signExtend28(y)
}

// --- field accessors used by the renderer ---

func (p *PPU) dispcnt() uint16    { return p.reg16(0x00) }
func (p *PPU) dispcntMode() int   { return int(p.dispcnt() & 0x7) }
func (p *PPU) dispcntPage() int   { return int((p.dispcnt() >> 4) & 1) }
func (p *PPU) forcedBlank() bool  { return p.dispcnt()&0x80 != 0 }
func (p *PPU) objMapping1D() bool { return p.dispcnt()&0x40 != 0 }
func (p *PPU) bgEnabled(i int) bool {
	return p.dispcnt()&(1<<uint(8+i)) != 0
}
func (p *PPU) objEnabled() bool    { return p.dispcnt()&0x1000 != 0 }
func (p *PPU) winEnabled(i int) bool {
	return p.dispcnt()&(1<<uint(13+i)) != 0 // i: 0=Win0,1=Win1,2=ObjWin
}

func (p *PPU) dispstat() uint16 { return uint16(p.Read8(0x04000004)) | uint16(p.regs[0x05])<<8 }

func (p *PPU) bgcnt(i int) uint16   { return p.reg16(0x08 + i*2) }
func (p *PPU) bgHOfs(i int) uint16  { return p.reg16(0x10+i*4) & 0x1FF }
func (p *PPU) bgVOfs(i int) uint16  { return p.reg16(0x12+i*4) & 0x1FF }
func (p *PPU) bgAffineParam(bg, which int) int16 {
	base := 0x20
	if bg == 1 {
		base = 0x30
	}
	return int16(p.reg16(base + which*2))
}

func (p *PPU) winH(i int) (left, right int) {
	v := p.reg16(0x40 + i*2)
	return int(v >> 8), int(v & 0xFF)
}
func (p *PPU) winV(i int) (top, bottom int) {
	v := p.reg16(0x44 + i*2)
	return int(v >> 8), int(v & 0xFF)
}
func (p *PPU) winIn() uint16  { return p.reg16(0x48) }
func (p *PPU) winOut() uint16 { return p.reg16(0x4A) }
func (p *PPU) mosaic() uint16 { return p.reg16(0x4C) }

// bgMosaicSize and objMosaicSize split MOSAIC's nibbles into the
// horizontal/vertical repeat sizes (0 = no mosaic, so step = size+1).
func (p *PPU) bgMosaicSize() (h, v int) {
	m := p.mosaic()
	return int(m & 0xF), int((m >> 4) & 0xF)
}
func (p *PPU) objMosaicSize() (h, v int) {
	m := p.mosaic()
	return int((m >> 8) & 0xF), int((m >> 12) & 0xF)
}
func (p *PPU) bldcnt() uint16 { return p.reg16(0x50) }
func (p *PPU) bldAlpha() uint16 { return p.reg16(0x52) }
func (p *PPU) bldY() int      { return int(p.regs[0x54] & 0x1F) }

// --- VRAM/OAM/Palette CPU-facing access (used by bus) ---

// ReadPalette8/16 and friends are exposed through the generic byte
// accessors below; the bus applies region masking/mirroring before
// calling these.

func (p *PPU) ReadPal(offset uint32) byte { return p.PalRAM[offset&0x3FF] }
func (p *PPU) WritePal(offset uint32, v byte) {
	// 8-bit writes to palette RAM duplicate across the halfword.
	o := offset & 0x3FE
	p.PalRAM[o] = v
	p.PalRAM[o+1] = v
}

func (p *PPU) ReadVRAM(offset uint32) byte {
	return p.VRAM[mirrorVRAM(offset)]
}
func (p *PPU) WriteVRAMByte(offset uint32, v byte) {
	o := mirrorVRAM(offset)
	// OBJ tile VRAM (>= 0x10000) ignores 8-bit writes.
	if o >= 0x10000 {
		return
	}
	o &^= 1
	p.VRAM[o] = v
	p.VRAM[o+1] = v
}
func (p *PPU) WriteVRAMHalf(offset uint32, v uint16) {
	o := mirrorVRAM(offset) &^ 1
	p.VRAM[o] = byte(v)
	p.VRAM[o+1] = byte(v >> 8)
}

func mirrorVRAM(offset uint32) uint32 {
	offset &= 0x1FFFF
	if offset >= 0x18000 {
		offset -= 0x8000
	}
	return offset
}

func (p *PPU) ReadOAM(offset uint32) byte { return p.OAM[offset&0x3FF] }

// WriteOAMByte is a no-op: 8-bit writes to OAM are ignored by hardware.
func (p *PPU) WriteOAMByte(uint32, byte) {}
func (p *PPU) WriteOAMHalf(offset uint32, v uint16) {
	o := offset & 0x3FE
	p.OAM[o] = byte(v)
	p.OAM[o+1] = byte(v >> 8)
}
