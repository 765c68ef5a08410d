package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arm7tdmi-core/gbacore/internal/bus"
	"github.com/arm7tdmi-core/gbacore/internal/cart"
	"github.com/arm7tdmi-core/gbacore/internal/dma"
	"github.com/arm7tdmi-core/gbacore/internal/irq"
	"github.com/arm7tdmi-core/gbacore/internal/keypad"
	"github.com/arm7tdmi-core/gbacore/internal/ppu"
	"github.com/arm7tdmi-core/gbacore/internal/scheduler"
	"github.com/arm7tdmi-core/gbacore/internal/timer"
)

func newTestCPU(t *testing.T) (*CPU, *bus.Bus) {
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

	b := bus.New(img, p, d, timers, irqc, kp)
	d.SetBus(b)
	c := New(b, irqc)
	b.SetCPU(c)
	return c, b
}

// writeARM places an ARM word into EWRAM at addr and points PC there.
func writeARM(c *CPU, b *bus.Bus, addr, instr uint32) {
	b.Write32(addr, instr, 0)
	c.r[15] = addr
	c.refillPipeline()
}

func TestDataProcessingMovSetsRegister(t *testing.T) {
	c, b := newTestCPU(t)
	// MOV R0, #5 (cond=AL, imm op2=5)
	writeARM(c, b, 0x02000000, 0xE3A00005)
	c.Step()
	assert.Equal(t, uint32(5), c.r[0])
}

func TestDataProcessingAddsSetsCarryAndZero(t *testing.T) {
	c, b := newTestCPU(t)
	c.r[1] = 0xFFFFFFFF
	// ADDS R0, R1, #1 -> result 0, carry set, zero set
	writeARM(c, b, 0x02000000, 0xE2910001)
	c.Step()
	assert.Equal(t, uint32(0), c.r[0])
	assert.True(t, c.flagSet(flagZ))
	assert.True(t, c.flagSet(flagC))
}

func TestConditionalInstructionSkippedWhenFalse(t *testing.T) {
	c, b := newTestCPU(t)
	c.setFlag(flagZ, false)
	c.r[0] = 42
	// MOVEQ R0, #9: EQ condition, Z clear -> should not execute
	writeARM(c, b, 0x02000000, 0x03A00009)
	c.Step()
	assert.Equal(t, uint32(42), c.r[0])
}

func TestBranchUpdatesPC(t *testing.T) {
	c, b := newTestCPU(t)
	// B +8 (offset field = 2 words): cond=AL, link=0, offset=0x000002
	writeARM(c, b, 0x02000000, 0xEA000002)
	c.Step()
	// PC after branch: base(addr+8) + offset*4 = 0x02000008 + 8 = 0x02000010,
	// then refillPipeline advances it two more instructions (+8).
	assert.Equal(t, uint32(0x02000010+8), c.r[15])
}

func TestMulComputesProduct(t *testing.T) {
	c, b := newTestCPU(t)
	c.r[1] = 6
	c.r[2] = 7
	// MUL R0, R1, R2 (cond=AL)
	writeARM(c, b, 0x02000000, 0xE0000291)
	c.Step()
	assert.Equal(t, uint32(42), c.r[0])
}

func TestSWIEntersSupervisorModeAndSetsLR(t *testing.T) {
	c, b := newTestCPU(t)
	writeARM(c, b, 0x02000000, 0xEF000000)
	pcBefore := c.r[15]
	c.Step()
	assert.Equal(t, ModeSVC, c.mode())
	assert.Equal(t, pcBefore-4, c.r[14])
	assert.Equal(t, uint32(0x08), c.r[15]-8)
}

func TestThumbMovImmediateSetsRegister(t *testing.T) {
	c, b := newTestCPU(t)
	c.setFlag(flagT, true)
	b.Write16(0x02000000, 0x2005, 0) // MOV R0, #5
	c.r[15] = 0x02000000
	c.refillPipeline()
	c.Step()
	assert.Equal(t, uint32(5), c.r[0])
}

func TestThumbConditionalBranchOffsetIsHalfwordGranularity(t *testing.T) {
	c, b := newTestCPU(t)
	c.setFlag(flagT, true)
	c.setFlag(flagZ, true)
	// BEQ #4 (offset field = 2, encoded cond=0 EQ)
	b.Write16(0x02000000, 0xD002, 0)
	c.r[15] = 0x02000000
	c.refillPipeline()
	pcAtBranch := c.r[15] - 4 // address of the branch instruction itself
	c.Step()
	assert.Equal(t, pcAtBranch+4+4+4, c.r[15])
}

func TestHalfwordTransferLoadsSignedByte(t *testing.T) {
	c, b := newTestCPU(t)
	b.Write8(0x02000100, 0xFF, 0) // -1 as signed byte
	c.r[1] = 0x02000100
	// LDRSB R0, [R1] (cond=AL, P=1,U=1,I=1,W=0,L=1,S=1,H=0)
	writeARM(c, b, 0x02000000, 0xE1D100D0)
	c.Step()
	assert.Equal(t, uint32(0xFFFFFFFF), c.r[0])
}

func TestSBCSubtractsExtraBorrowWhenCarryClear(t *testing.T) {
	c, b := newTestCPU(t)
	c.r[1] = 5
	c.setFlag(flagC, false)
	// SBCS R0, R1, #1 -> 5 - 1 - (1-C) = 5 - 1 - 1 = 3
	writeARM(c, b, 0x02000000, 0xE2D10001)
	c.Step()
	assert.Equal(t, uint32(3), c.r[0])
}

func TestBlockTransferSuppressesWritebackWhenBaseIsLoaded(t *testing.T) {
	c, b := newTestCPU(t)
	base := uint32(0x03000010)
	b.Write32(base, 0x11, 0)
	b.Write32(base+4, 0x22, 0)
	b.Write32(base+8, 0x33, 0)
	b.Write32(base+12, 0x44, 0)
	c.r[0] = base
	// LDMIA R0!, {R0-R3}
	writeARM(c, b, 0x02000000, 0xE8B0000F)
	c.Step()
	assert.Equal(t, uint32(0x11), c.r[0])
	assert.Equal(t, uint32(0x22), c.r[1])
	assert.Equal(t, uint32(0x33), c.r[2])
	assert.Equal(t, uint32(0x44), c.r[3])
}

func TestBlockTransferWritesBackWhenBaseNotLoaded(t *testing.T) {
	c, b := newTestCPU(t)
	base := uint32(0x03000020)
	b.Write32(base, 0x11, 0)
	b.Write32(base+4, 0x22, 0)
	c.r[1] = base
	// LDMIA R1!, {R0,R2}
	writeARM(c, b, 0x02000000, 0xE8B10005)
	c.Step()
	assert.Equal(t, uint32(0x11), c.r[0])
	assert.Equal(t, uint32(0x22), c.r[2])
	assert.Equal(t, base+8, c.r[1])
}
