// Package cpu implements the ARM7TDMI core: banked register sets, the
// two-stage fetch/decode-execute pipeline, condition evaluation, and the
// ARM and Thumb instruction sets.
package cpu

import (
	"github.com/arm7tdmi-core/gbacore/internal/access"
	"github.com/arm7tdmi-core/gbacore/internal/bus"
	"github.com/arm7tdmi-core/gbacore/internal/irq"
)

// Mode is a CPSR operating mode value.
type Mode uint32

const (
	ModeUSR Mode = 0x10
	ModeFIQ Mode = 0x11
	ModeIRQ Mode = 0x12
	ModeSVC Mode = 0x13
	ModeABT Mode = 0x17
	ModeUND Mode = 0x1B
	ModeSYS Mode = 0x1F
)

// CPSR flag bits.
const (
	flagN uint32 = 1 << 31
	flagZ uint32 = 1 << 30
	flagC uint32 = 1 << 29
	flagV uint32 = 1 << 28
	flagI uint32 = 1 << 7
	flagF uint32 = 1 << 6
	flagT uint32 = 1 << 5
)

// CPU holds all architectural state: the 16 general registers as seen by
// the current mode, the banked register sets behind them, and CPSR/SPSR.
type CPU struct {
	bus  *bus.Bus
	irqc *irq.Controller

	r    [16]uint32
	cpsr uint32

	bankedSVC, bankedABT, bankedIRQ, bankedUND, bankedFIQ, bankedUSR [2]uint32 // r13,r14
	fiqR8_12                                                [5]uint32
	usrR8_12                                                [5]uint32
	spsrSVC, spsrABT, spsrIRQ, spsrUND, spsrFIQ              uint32

	fetched, decoded uint32
	fetchedValid     bool
	decodedValid     bool

	halted bool

	onUndefined func(pc uint32)
}

// New returns a CPU reset into supervisor mode with interrupts masked,
// wired to bus for memory access and irqc for interrupt delivery.
func New(b *bus.Bus, irqc *irq.Controller) *CPU {
	c := &CPU{bus: b, irqc: irqc}
	c.Reset()
	return c
}

// Reset puts the CPU at the reset vector in ARM state, SVC mode, with
// IRQ/FIQ masked.
func (c *CPU) Reset() {
	c.cpsr = uint32(ModeSVC) | flagI | flagF
	c.r[15] = 0x00000008
	c.refillPipeline()
}

func (c *CPU) mode() Mode    { return Mode(c.cpsr & 0x1F) }
func (c *CPU) thumb() bool   { return c.cpsr&flagT != 0 }
func (c *CPU) irqMasked() bool { return c.cpsr&flagI != 0 }

// InThumb, PC, PipelineOpcode, and SetHalted satisfy the bus package's
// cpuPort interface for open-bus reads and HALTCNT.
func (c *CPU) InThumb() bool  { return c.thumb() }
func (c *CPU) PC() uint32     { return c.r[15] }
func (c *CPU) SetHalted(v bool) { c.halted = v }
func (c *CPU) PipelineOpcode() uint32 {
	if c.decodedValid {
		return c.decoded
	}
	return c.fetched
}

// Halted reports whether the CPU is in low-power halt state, woken only
// by a pending interrupt.
func (c *CPU) Halted() bool { return c.halted }

// SetUnimplementedHook registers fn to be called with the faulting
// instruction's address whenever the CPU takes an UND exception. Used by
// the headless runner's --trace-unimplemented flag; nil by default.
func (c *CPU) SetUnimplementedHook(fn func(pc uint32)) { c.onUndefined = fn }

func (c *CPU) flagSet(f uint32) bool { return c.cpsr&f != 0 }
func (c *CPU) setFlag(f uint32, v bool) {
	if v {
		c.cpsr |= f
	} else {
		c.cpsr &^= f
	}
}

func (c *CPU) instrSize() uint32 {
	if c.thumb() {
		return 2
	}
	return 4
}

// refillPipeline discards the pipeline and fetches two instructions
// (non-sequential then sequential) from the current PC, leaving PC
// pointing two instructions ahead as ARM7TDMI's pipeline convention
// requires.
func (c *CPU) refillPipeline() {
	size := c.instrSize()
	c.fetched = c.fetchAt(c.r[15], access.NonSequential)
	c.r[15] += size
	c.decoded = c.fetched
	c.decodedValid = true
	c.fetched = c.fetchAt(c.r[15], access.Sequential)
	c.r[15] += size
	c.fetchedValid = true
}

func (c *CPU) fetchAt(addr uint32, kind access.Kind) uint32 {
	if c.thumb() {
		return uint32(c.bus.Read16(addr, kind))
	}
	return c.bus.Read32(addr, kind)
}

// Step executes one instruction, servicing a pending interrupt first if
// one is deliverable. It returns the number of cycles consumed.
func (c *CPU) Step() uint32 {
	if bit, ok := c.irqc.NextPending(); ok && c.irqc.Deliverable(c.irqMasked()) {
		addrDecoded := c.r[15] - 2*c.instrSize()
		c.enterException(ModeIRQ, 0x18, addrDecoded+4)
		c.irqc.Acknowledge(bit)
		c.refillPipeline()
		return 3
	}
	if c.halted {
		return 1
	}

	opcode := c.decoded
	size := c.instrSize()
	pcBefore := c.r[15]

	c.decoded = c.fetched
	branched := false
	if c.thumb() {
		branched = c.execThumb(uint16(opcode))
	} else {
		branched = c.execARM(opcode)
	}

	if branched {
		c.refillPipeline()
	} else {
		c.fetched = c.fetchAt(c.r[15], access.Sequential)
		c.r[15] += size
	}
	_ = pcBefore
	return 1
}

// enterException performs the shared exception-entry sequence: save
// CPSR to the target mode's SPSR, switch mode, set LR to returnAddr,
// mask interrupts, and branch to the vector.
func (c *CPU) enterException(target Mode, vector uint32, returnAddr uint32) {
	savedCPSR := c.cpsr
	c.switchMode(target)
	c.setSPSR(savedCPSR)
	c.r[14] = returnAddr
	c.setFlag(flagT, false)
	c.setFlag(flagI, true)
	c.r[15] = vector
}

// switchMode banks out the current mode's R13/R14 (and R8-R12 for FIQ)
// and banks in the target mode's, per the ARM7TDMI register file.
func (c *CPU) switchMode(target Mode) {
	cur := c.mode()
	c.saveBank(cur)
	c.cpsr = (c.cpsr &^ 0x1F) | uint32(target)
	c.loadBank(target)
}

func (c *CPU) saveBank(m Mode) {
	switch m {
	case ModeSVC:
		c.bankedSVC[0], c.bankedSVC[1] = c.r[13], c.r[14]
	case ModeABT:
		c.bankedABT[0], c.bankedABT[1] = c.r[13], c.r[14]
	case ModeIRQ:
		c.bankedIRQ[0], c.bankedIRQ[1] = c.r[13], c.r[14]
	case ModeUND:
		c.bankedUND[0], c.bankedUND[1] = c.r[13], c.r[14]
	case ModeFIQ:
		c.bankedFIQ[0], c.bankedFIQ[1] = c.r[13], c.r[14]
		copy(c.fiqR8_12[:], c.r[8:13])
	case ModeUSR, ModeSYS:
		c.bankedUSR[0], c.bankedUSR[1] = c.r[13], c.r[14]
	}
	if m != ModeFIQ {
		copy(c.usrR8_12[:], c.r[8:13])
	}
}

func (c *CPU) loadBank(m Mode) {
	if m == ModeFIQ {
		copy(c.r[8:13], c.fiqR8_12[:])
	} else {
		copy(c.r[8:13], c.usrR8_12[:])
	}
	switch m {
	case ModeSVC:
		c.r[13], c.r[14] = c.bankedSVC[0], c.bankedSVC[1]
	case ModeABT:
		c.r[13], c.r[14] = c.bankedABT[0], c.bankedABT[1]
	case ModeIRQ:
		c.r[13], c.r[14] = c.bankedIRQ[0], c.bankedIRQ[1]
	case ModeUND:
		c.r[13], c.r[14] = c.bankedUND[0], c.bankedUND[1]
	case ModeFIQ:
		c.r[13], c.r[14] = c.bankedFIQ[0], c.bankedFIQ[1]
	case ModeUSR, ModeSYS:
		c.r[13], c.r[14] = c.bankedUSR[0], c.bankedUSR[1]
	}
}

// userReg and setUserReg access register i in the USR/SYS bank regardless
// of the CPU's current mode, used by block-transfer's S-bit user-bank
// register transfer (STM^ and LDM^ without R15 in the list).
func (c *CPU) userReg(i uint32) uint32 {
	switch {
	case i <= 7:
		return c.r[i]
	case i <= 12:
		if c.mode() == ModeFIQ {
			return c.usrR8_12[i-8]
		}
		return c.r[i]
	case i == 13:
		if m := c.mode(); m == ModeUSR || m == ModeSYS {
			return c.r[13]
		}
		return c.bankedUSR[0]
	case i == 14:
		if m := c.mode(); m == ModeUSR || m == ModeSYS {
			return c.r[14]
		}
		return c.bankedUSR[1]
	default:
		return c.r[15]
	}
}

func (c *CPU) setUserReg(i uint32, v uint32) {
	switch {
	case i <= 7:
		c.r[i] = v
	case i <= 12:
		if c.mode() == ModeFIQ {
			c.usrR8_12[i-8] = v
		} else {
			c.r[i] = v
		}
	case i == 13:
		if m := c.mode(); m == ModeUSR || m == ModeSYS {
			c.r[13] = v
		} else {
			c.bankedUSR[0] = v
		}
	case i == 14:
		if m := c.mode(); m == ModeUSR || m == ModeSYS {
			c.r[14] = v
		} else {
			c.bankedUSR[1] = v
		}
	default:
		c.r[15] = v
	}
}

func (c *CPU) setSPSR(v uint32) {
	switch c.mode() {
	case ModeSVC:
		c.spsrSVC = v
	case ModeABT:
		c.spsrABT = v
	case ModeIRQ:
		c.spsrIRQ = v
	case ModeUND:
		c.spsrUND = v
	case ModeFIQ:
		c.spsrFIQ = v
	}
}

func (c *CPU) getSPSR() uint32 {
	switch c.mode() {
	case ModeSVC:
		return c.spsrSVC
	case ModeABT:
		return c.spsrABT
	case ModeIRQ:
		return c.spsrIRQ
	case ModeUND:
		return c.spsrUND
	case ModeFIQ:
		return c.spsrFIQ
	default:
		return c.cpsr
	}
}

// raiseSWI enters SVC mode for a software interrupt instruction. Called
// during execution of the SWI instruction itself, while r[15] still
// holds its pre-step pipeline value (current instruction address + 2
// instruction widths).
func (c *CPU) raiseSWI() {
	retAddr := c.r[15] - 2*c.instrSize() + c.instrSize()
	c.enterException(ModeSVC, 0x08, retAddr)
}

// raiseUndefined enters UND mode for an undecodable instruction.
func (c *CPU) raiseUndefined() {
	if c.onUndefined != nil {
		c.onUndefined(c.r[15] - 2*c.instrSize())
	}
	retAddr := c.r[15] - 2*c.instrSize() + c.instrSize()
	c.enterException(ModeUND, 0x04, retAddr)
}
