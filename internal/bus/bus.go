// Package bus implements the address-space decoder: region routing,
// per-region waitstate costs (reported by WaitStates; Read/Write do not
// charge them to the clock), VRAM/palette mirroring, the 8-bit write
// broadcast onto 16-bit-only memories, and open-bus reads.
package bus

import (
	"github.com/arm7tdmi-core/gbacore/internal/access"
	"github.com/arm7tdmi-core/gbacore/internal/cart"
	"github.com/arm7tdmi-core/gbacore/internal/dma"
	"github.com/arm7tdmi-core/gbacore/internal/irq"
	"github.com/arm7tdmi-core/gbacore/internal/keypad"
	"github.com/arm7tdmi-core/gbacore/internal/ppu"
	"github.com/arm7tdmi-core/gbacore/internal/timer"
)

// cpuPort is the narrow slice of CPU state the bus needs for open-bus
// reads and HALTCNT, satisfied structurally by *cpu.CPU without the bus
// importing the cpu package.
type cpuPort interface {
	PipelineOpcode() uint32
	PC() uint32
	InThumb() bool
	SetHalted(bool)
}

const (
	biosSize   = 0x4000
	ewramSize  = 0x40000
	iwramSize  = 0x8000
)

// Bus owns all memory outside the cartridge and CPU, and routes reads
// and writes to the right device.
type Bus struct {
	bios  [biosSize]byte
	ewram [ewramSize]byte
	iwram [iwramSize]byte

	waitcnt uint16
	ioRaw   [0x400]byte

	cartImg *cart.Image
	ppu     *ppu.PPU
	dma     *dma.Controller
	timers  *timer.Manager
	irqc    *irq.Controller
	keypad  *keypad.Keypad
	cpu     cpuPort

	lastOpenBus uint32
}

// New returns a Bus wired to the given peripherals. cpu may be nil until
// SetCPU is called (construction order requires the bus to exist before
// the CPU that references it).
func New(cartImg *cart.Image, p *ppu.PPU, d *dma.Controller, t *timer.Manager, irqc *irq.Controller, kp *keypad.Keypad) *Bus {
	return &Bus{cartImg: cartImg, ppu: p, dma: d, timers: t, irqc: irqc, keypad: kp}
}

// LoadBIOS copies a BIOS image into the bus's fixed BIOS region.
func (b *Bus) LoadBIOS(img []byte) {
	copy(b.bios[:], img)
}

// SetCPU wires the CPU for open-bus/halt queries, once it has been
// constructed with this bus.
func (b *Bus) SetCPU(c cpuPort) { b.cpu = c }

// region classifies an address by its top nibble.
type region int

const (
	regionBIOS region = iota
	regionUnused
	regionEWRAM
	regionIWRAM
	regionIO
	regionPalette
	regionVRAM
	regionOAM
	regionCartWS0
	regionCartWS1
	regionCartWS2
	regionSRAM
)

func classify(addr uint32) region {
	switch addr >> 24 {
	case 0x00:
		return regionBIOS
	case 0x02:
		return regionEWRAM
	case 0x03:
		return regionIWRAM
	case 0x04:
		return regionIO
	case 0x05:
		return regionPalette
	case 0x06:
		return regionVRAM
	case 0x07:
		return regionOAM
	case 0x08, 0x09:
		return regionCartWS0
	case 0x0A, 0x0B:
		return regionCartWS1
	case 0x0C, 0x0D:
		return regionCartWS2
	case 0x0E, 0x0F:
		return regionSRAM
	default:
		return regionUnused
	}
}

// waitcntNonSeq and waitcntSeq give the cycle-count lookup tables for the
// three programmable cartridge waitstate windows, indexed by the 2-bit
// field WAITCNT stores for each.
var waitcntNonSeq = [4]uint32{4, 3, 2, 8}
var waitcntSeq = [3][2]uint32{{2, 1}, {4, 1}, {8, 1}}

// WaitStates returns the cycle cost of an access of the given byte size
// (1, 2, or 4) and timing kind at addr.
func (b *Bus) WaitStates(addr uint32, size int, kind access.Kind) uint32 {
	r := classify(addr)
	base := b.baseWaitStates(r, kind, addr)
	if size == 4 && (r == regionCartWS0 || r == regionCartWS1 || r == regionCartWS2 || r == regionEWRAM) {
		// 32-bit accesses to a 16-bit bus cost one non-sequential and one
		// sequential access.
		return base + b.baseWaitStates(r, access.Sequential, addr)
	}
	return base
}

func (b *Bus) baseWaitStates(r region, kind access.Kind, addr uint32) uint32 {
	switch r {
	case regionBIOS, regionIWRAM, regionIO, regionOAM:
		return 1
	case regionPalette, regionVRAM:
		return 1
	case regionEWRAM:
		return 3
	case regionCartWS0:
		return b.cartWait(0, kind)
	case regionCartWS1:
		return b.cartWait(1, kind)
	case regionCartWS2:
		return b.cartWait(2, kind)
	case regionSRAM:
		return waitcntNonSeq[b.waitcnt&0x3]
	default:
		return 1
	}
}

func (b *Bus) cartWait(window int, kind access.Kind) uint32 {
	shift := uint(2 + window*2)
	nonSeqSel := (b.waitcnt >> shift) & 0x3
	if kind != access.Sequential {
		return waitcntNonSeq[nonSeqSel]
	}
	seqShift := uint(4 + window*3)
	seqSel := (b.waitcnt >> seqShift) & 0x1
	return waitcntSeq[window][seqSel]
}

// Read32/16/8 and Write32/16/8 are the CPU-facing access points.

func (b *Bus) Read32(addr uint32, kind access.Kind) uint32 {
	addr &^= 3
	lo := uint32(b.read8(addr, kind))
	hi1 := uint32(b.read8(addr+1, kind))
	hi2 := uint32(b.read8(addr+2, kind))
	hi3 := uint32(b.read8(addr+3, kind))
	return lo | hi1<<8 | hi2<<16 | hi3<<24
}

func (b *Bus) Read16(addr uint32, kind access.Kind) uint16 {
	addr &^= 1
	lo := uint16(b.read8(addr, kind))
	hi := uint16(b.read8(addr+1, kind))
	return lo | hi<<8
}

func (b *Bus) Read8(addr uint32, kind access.Kind) byte { return b.read8(addr, kind) }

func (b *Bus) Write32(addr uint32, v uint32, kind access.Kind) {
	addr &^= 3
	b.write16(addr, uint16(v), kind)
	b.write16(addr+2, uint16(v>>16), kind)
}

func (b *Bus) Write16(addr uint32, v uint16, kind access.Kind) {
	addr &^= 1
	b.write16(addr, v, kind)
}

func (b *Bus) Write8(addr uint32, v byte, kind access.Kind) { b.write8(addr, v, kind) }

func (b *Bus) read8(addr uint32, kind access.Kind) byte {
	switch classify(addr) {
	case regionBIOS:
		if b.cpu != nil && b.cpu.PC() < biosSize {
			off := addr & (biosSize - 1)
			v := b.bios[off]
			b.lastOpenBus = uint32(v)
			return v
		}
		return byte(b.openBus(addr))
	case regionEWRAM:
		return b.ewram[addr&(ewramSize-1)]
	case regionIWRAM:
		return b.iwram[addr&(iwramSize-1)]
	case regionIO:
		return b.readIO(addr)
	case regionPalette:
		return b.ppu.ReadPal(addr & 0x3FF)
	case regionVRAM:
		return b.ppu.ReadVRAM(addr & 0x1FFFF)
	case regionOAM:
		return b.ppu.ReadOAM(addr & 0x3FF)
	case regionCartWS0, regionCartWS1, regionCartWS2:
		off := addr & 0x01FFFFFF
		if v, ok := b.cartImg.ReadByte(off); ok {
			return v
		}
		return byte((off / 2) >> (8 * (off % 2)))
	case regionSRAM:
		return b.cartImg.ReadSRAM(addr & 0xFFFF)
	default:
		return byte(b.openBus(addr))
	}
}

func (b *Bus) write8(addr uint32, v byte, kind access.Kind) {
	switch classify(addr) {
	case regionEWRAM:
		b.ewram[addr&(ewramSize-1)] = v
	case regionIWRAM:
		b.iwram[addr&(iwramSize-1)] = v
	case regionIO:
		b.writeIO8(addr, v)
	case regionPalette:
		b.ppu.WritePal(addr&0x3FF, v)
	case regionVRAM:
		b.ppu.WriteVRAMByte(addr&0x1FFFF, v)
	case regionOAM:
		b.ppu.WriteOAMByte(addr&0x3FF, v)
	case regionSRAM:
		b.cartImg.WriteSRAM(addr&0xFFFF, v)
	default:
		// BIOS and cartridge ROM windows are read-only; writes are dropped.
	}
}

func (b *Bus) write16(addr uint32, v uint16, kind access.Kind) {
	switch classify(addr) {
	case regionVRAM:
		b.ppu.WriteVRAMHalf(addr&0x1FFFF, v)
	case regionOAM:
		b.ppu.WriteOAMHalf(addr&0x3FF, v)
	case regionPalette:
		o := addr & 0x3FE
		b.ppu.PalRAM[o] = byte(v)
		b.ppu.PalRAM[o+1] = byte(v >> 8)
	default:
		b.write8(addr, byte(v), access.Sequential)
		b.write8(addr+1, byte(v>>8), access.Sequential)
	}
}

// openBus returns the value the bus drives when no device answers a
// read, derived from the CPU's currently latched pipeline opcode.
func (b *Bus) openBus(addr uint32) uint32 {
	if b.cpu == nil {
		return b.lastOpenBus
	}
	op := b.cpu.PipelineOpcode()
	b.lastOpenBus = op
	return op
}

// --- DMA-facing access (internal/dma's busPort) ---

func (b *Bus) DMARead16(addr uint32, kind access.Kind) uint16  { return b.Read16(addr, kind) }
func (b *Bus) DMAWrite16(addr uint32, v uint16, kind access.Kind) { b.Write16(addr, v, kind) }
func (b *Bus) DMARead32(addr uint32, kind access.Kind) uint32  { return b.Read32(addr, kind) }
func (b *Bus) DMAWrite32(addr uint32, v uint32, kind access.Kind) { b.Write32(addr, v, kind) }
