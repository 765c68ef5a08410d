package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arm7tdmi-core/gbacore/internal/access"
	"github.com/arm7tdmi-core/gbacore/internal/cart"
	"github.com/arm7tdmi-core/gbacore/internal/dma"
	"github.com/arm7tdmi-core/gbacore/internal/irq"
	"github.com/arm7tdmi-core/gbacore/internal/keypad"
	"github.com/arm7tdmi-core/gbacore/internal/ppu"
	"github.com/arm7tdmi-core/gbacore/internal/scheduler"
	"github.com/arm7tdmi-core/gbacore/internal/timer"
)

type fakeCPU struct {
	pc      uint32
	opcode  uint32
	thumb   bool
	halted  bool
}

func (f *fakeCPU) PipelineOpcode() uint32 { return f.opcode }
func (f *fakeCPU) PC() uint32             { return f.pc }
func (f *fakeCPU) InThumb() bool          { return f.thumb }
func (f *fakeCPU) SetHalted(v bool)       { f.halted = v }

func newTestBus(t *testing.T) (*Bus, *fakeCPU) {
	t.Helper()
	sched := scheduler.New()
	irqc := irq.New(sched)
	timers := timer.New(sched, irqc)
	p := ppu.New(sched, irqc)
	d := dma.New(sched, irqc)
	kp := keypad.New()
	rom := make([]byte, 0x1000)
	img, err := cart.Load(rom)
	require.NoError(t, err)

	b := New(img, p, d, timers, irqc, kp)
	d.SetBus(b)
	fc := &fakeCPU{}
	b.SetCPU(fc)
	return b, fc
}

func TestEWRAMReadWriteRoundTrips(t *testing.T) {
	b, _ := newTestBus(t)
	b.Write32(0x02000000, 0xDEADBEEF, access.NonSequential)
	assert.Equal(t, uint32(0xDEADBEEF), b.Read32(0x02000000, access.NonSequential))
}

func TestEWRAMMirrorsAcrossRegion(t *testing.T) {
	b, _ := newTestBus(t)
	b.Write8(0x02000005, 0x42, access.NonSequential)
	assert.Equal(t, byte(0x42), b.Read8(0x02040005, access.NonSequential))
}

func TestBIOSReadsOnlyWhilePCInsideBIOS(t *testing.T) {
	b, fc := newTestBus(t)
	b.bios[4] = 0x99
	fc.pc = 0
	assert.Equal(t, byte(0x99), b.Read8(0x00000004, access.NonSequential))

	fc.pc = 0x08000000
	fc.opcode = 0xAABBCCDD
	assert.Equal(t, byte(0xDD), b.Read8(0x00000004, access.NonSequential))
}

func TestIWRAMMirrors(t *testing.T) {
	b, _ := newTestBus(t)
	b.Write8(0x03000010, 7, access.NonSequential)
	assert.Equal(t, byte(7), b.Read8(0x03008010, access.NonSequential))
}

func TestCartReadPastEndReturnsAddressPattern(t *testing.T) {
	b, _ := newTestBus(t)
	v := b.Read8(0x08002000, access.NonSequential)
	want := uint32(0x08002000) / 2
	assert.Equal(t, byte(want), v)
}

func TestWaitcntSelectsCartWaitStates(t *testing.T) {
	b, _ := newTestBus(t)
	b.writeIO8(0x04000204, 0x00) // all N waits = 4 cycles (sel 0)
	assert.Equal(t, uint32(4), b.WaitStates(0x08000000, 1, access.NonSequential))

	b.writeIO8(0x04000204, 0x0C) // WS0 non-seq select (bits 2-3) = 3 -> 8 cycles
	assert.Equal(t, uint32(8), b.WaitStates(0x08000000, 1, access.NonSequential))
}

func TestHaltcntWriteHaltsCPU(t *testing.T) {
	b, fc := newTestBus(t)
	b.Write8(0x04000300, 0x00, access.NonSequential)
	assert.True(t, fc.halted)
}

func TestDMARegistersForwardToController(t *testing.T) {
	b, _ := newTestBus(t)
	b.Write32(0x040000B0, 0x02000000, access.NonSequential) // SAD0
	b.Write32(0x040000B4, 0x03000000, access.NonSequential) // DAD0
	b.Write16(0x040000B8, 1, access.NonSequential)           // CNT_L0
	b.Write16(0x040000BA, 0x8000, access.NonSequential)      // CNT_H0: enable, immediate
	assert.True(t, b.dma.Enabled(0))
}

func TestKeyInputReadsAllReleasedByDefault(t *testing.T) {
	b, _ := newTestBus(t)
	v := b.Read16(0x04000130, access.NonSequential)
	assert.Equal(t, uint16(0xFFFF), v) // no buttons pressed, all inverted bits 1
}

func TestIECanBeReadBackAfterWrite(t *testing.T) {
	b, _ := newTestBus(t)
	b.Write16(0x04000200, 0x3FFF, access.NonSequential)
	assert.Equal(t, uint16(0x3FFF), b.Read16(0x04000200, access.NonSequential))
}
