package cpu

import "github.com/arm7tdmi-core/gbacore/internal/access"

// execARM decodes and runs one ARM-state instruction. It returns true if
// execution branched (changed PC), requiring a full pipeline refill.
func (c *CPU) execARM(instr uint32) bool {
	if !c.conditionPasses(instr >> 28) {
		return false
	}

	switch {
	case instr&0x0FFFFFF0 == 0x012FFF10: // BX
		return c.armBX(instr)
	case instr&0x0F8000F0 == 0x00000090: // MUL/MLA
		return c.armMul(instr)
	case instr&0x0F8000F0 == 0x00800090: // UMULL/UMLAL/SMULL/SMLAL
		return c.armMulLong(instr)
	case instr&0x0FB00FF0 == 0x01000090: // SWP/SWPB
		return c.armSwap(instr)
	case instr&0x0E000090 == 0x00000090 && instr&0x60 != 0: // halfword/signed transfer
		return c.armHalfwordTransfer(instr)
	case instr&0x0FBFFFF0 == 0x010F0000: // MRS
		return c.armPSRTransfer(instr)
	case instr&0x0FB0FFF0 == 0x0120F000 || instr&0x0DB0F000 == 0x0120F000: // MSR
		return c.armPSRTransfer(instr)
	case instr&0x0C000000 == 0x00000000: // data processing
		return c.armDataProcessing(instr)
	case instr&0x0C000000 == 0x04000000: // single data transfer
		return c.armSingleTransfer(instr)
	case instr&0x0E000000 == 0x08000000: // block data transfer
		return c.armBlockTransfer(instr)
	case instr&0x0E000000 == 0x0A000000: // branch / branch-with-link
		return c.armBranch(instr)
	case instr&0x0F000000 == 0x0F000000: // SWI
		c.raiseSWI()
		return true
	default:
		c.raiseUndefined()
		return true
	}
}

func (c *CPU) conditionPasses(cond uint32) bool {
	n, z, cf, v := c.flagSet(flagN), c.flagSet(flagZ), c.flagSet(flagC), c.flagSet(flagV)
	switch cond & 0xF {
	case 0x0:
		return z
	case 0x1:
		return !z
	case 0x2:
		return cf
	case 0x3:
		return !cf
	case 0x4:
		return n
	case 0x5:
		return !n
	case 0x6:
		return v
	case 0x7:
		return !v
	case 0x8:
		return cf && !z
	case 0x9:
		return !cf || z
	case 0xA:
		return n == v
	case 0xB:
		return n != v
	case 0xC:
		return !z && n == v
	case 0xD:
		return z || n != v
	case 0xE:
		return true
	default:
		return false
	}
}

func (c *CPU) getReg(i uint32) uint32 { return c.r[i] }
func (c *CPU) setReg(i uint32, v uint32) {
	c.r[i] = v
}

// barrelShift evaluates a data-processing operand2 shift, returning the
// shifted value and the carry-out it produces.
func (c *CPU) barrelShift(instr uint32) (uint32, bool) {
	if instr&0x02000000 != 0 {
		imm := instr & 0xFF
		rot := ((instr >> 8) & 0xF) * 2
		if rot == 0 {
			return imm, c.flagSet(flagC)
		}
		v := (imm >> rot) | (imm << (32 - rot))
		return v, v&0x80000000 != 0
	}

	rm := c.getReg(instr & 0xF)
	shiftType := (instr >> 5) & 0x3
	var amount uint32
	if instr&0x10 != 0 {
		amount = c.getReg((instr>>8)&0xF) & 0xFF
		if (instr&0xF) == 15 {
			rm += 4 // register-specified shift reads PC as current+12
		}
	} else {
		amount = (instr >> 7) & 0x1F
	}

	return shiftValue(shiftType, rm, amount, instr&0x10 != 0, c.flagSet(flagC))
}

// shiftValue applies one of the four barrel-shifter operations, handling
// the special #0 encodings (LSR#0==LSR#32, ASR#0==ASR#32, ROR#0==RRX).
func shiftValue(shiftType, rm, amount uint32, isRegShift bool, carryIn bool) (uint32, bool) {
	switch shiftType {
	case 0: // LSL
		if amount == 0 {
			return rm, carryIn
		}
		if amount >= 32 {
			if amount == 32 {
				return 0, rm&1 != 0
			}
			return 0, false
		}
		return rm << amount, (rm>>(32-amount))&1 != 0
	case 1: // LSR
		if amount == 0 {
			if isRegShift {
				return rm, carryIn
			}
			amount = 32
		}
		if amount >= 32 {
			if amount == 32 {
				return 0, rm&0x80000000 != 0
			}
			return 0, false
		}
		return rm >> amount, (rm>>(amount-1))&1 != 0
	case 2: // ASR
		if amount == 0 {
			if isRegShift {
				return rm, carryIn
			}
			amount = 32
		}
		if amount >= 32 {
			if rm&0x80000000 != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(rm) >> amount), (rm>>(amount-1))&1 != 0
	default: // ROR / RRX
		if amount == 0 {
			if isRegShift {
				return rm, carryIn
			}
			// ROR#0 encodes RRX: rotate right through carry by one.
			out := rm >> 1
			if carryIn {
				out |= 0x80000000
			}
			return out, rm&1 != 0
		}
		amount &= 0x1F
		if amount == 0 {
			return rm, rm&0x80000000 != 0
		}
		v := (rm >> amount) | (rm << (32 - amount))
		return v, (rm>>(amount-1))&1 != 0
	}
}

const (
	opAND = 0x0
	opEOR = 0x1
	opSUB = 0x2
	opRSB = 0x3
	opADD = 0x4
	opADC = 0x5
	opSBC = 0x6
	opRSC = 0x7
	opTST = 0x8
	opTEQ = 0x9
	opCMP = 0xA
	opCMN = 0xB
	opORR = 0xC
	opMOV = 0xD
	opBIC = 0xE
	opMVN = 0xF
)

func (c *CPU) armDataProcessing(instr uint32) bool {
	op := (instr >> 21) & 0xF
	setFlags := instr&0x00100000 != 0
	rn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF

	op2, shiftCarry := c.barrelShift(instr)
	op1 := c.getReg(rn)
	if rn == 15 && instr&0x02000000 == 0 && instr&0x10 != 0 {
		op1 += 4
	}

	var result uint32
	var carryOut = shiftCarry
	var overflow = c.flagSet(flagV)

	switch op {
	case opAND, opTST:
		result = op1 & op2
	case opEOR, opTEQ:
		result = op1 ^ op2
	case opSUB, opCMP:
		result, carryOut, overflow = subWithFlags(op1, op2)
	case opRSB:
		result, carryOut, overflow = subWithFlags(op2, op1)
	case opADD, opCMN:
		result, carryOut, overflow = addWithFlags(op1, op2)
	case opADC:
		result, carryOut, overflow = addWithFlags(op1, op2+boolToU32(c.flagSet(flagC)))
	case opSBC:
		result, carryOut, overflow = subWithFlags(op1, op2+1-boolToU32(c.flagSet(flagC)))
	case opRSC:
		result, carryOut, overflow = subWithFlags(op2, op1+1-boolToU32(c.flagSet(flagC)))
	case opORR:
		result = op1 | op2
	case opMOV:
		result = op2
	case opBIC:
		result = op1 &^ op2
	case opMVN:
		result = ^op2
	}

	isTestOp := op == opTST || op == opTEQ || op == opCMP || op == opCMN
	if setFlags {
		if rd == 15 && !isTestOp {
			c.cpsr = c.getSPSR()
		} else {
			c.setFlag(flagN, result&0x80000000 != 0)
			c.setFlag(flagZ, result == 0)
			c.setFlag(flagC, carryOut)
			c.setFlag(flagV, overflow)
		}
	}

	if isTestOp {
		return false
	}
	c.setReg(rd, result)
	return rd == 15
}

func addWithFlags(a, b uint32) (uint32, bool, bool) {
	sum := uint64(a) + uint64(b)
	result := uint32(sum)
	carry := sum > 0xFFFFFFFF
	overflow := (a^result)&(b^result)&0x80000000 != 0
	return result, carry, overflow
}

func subWithFlags(a, b uint32) (uint32, bool, bool) {
	result := a - b
	carry := a >= b
	overflow := (a^b)&(a^result)&0x80000000 != 0
	return result, carry, overflow
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (c *CPU) armBX(instr uint32) bool {
	target := c.getReg(instr & 0xF)
	c.setFlag(flagT, target&1 != 0)
	c.r[15] = target &^ 1
	return true
}

func (c *CPU) armBranch(instr uint32) bool {
	link := instr&0x01000000 != 0
	offset := instr & 0x00FFFFFF
	if offset&0x00800000 != 0 {
		offset |= 0xFF000000
	}
	offset <<= 2
	if link {
		c.r[14] = c.r[15] - 4
	}
	c.r[15] = c.r[15] + offset
	return true
}

// armMul implements MUL/MLA. The cycle-count booth scan (not modeled as
// extra CPU cycles here: Step returns a flat per-instruction count and bus
// accesses do not add waitstate cycles to it) looks at successive bytes
// of Rs's *value*, not its register index.
func (c *CPU) armMul(instr uint32) bool {
	rd := (instr >> 16) & 0xF
	rn := (instr >> 12) & 0xF
	rs := (instr >> 8) & 0xF
	rm := instr & 0xF
	accumulate := instr&0x00200000 != 0
	setFlags := instr&0x00100000 != 0

	result := c.getReg(rm) * c.getReg(rs)
	if accumulate {
		result += c.getReg(rn)
	}
	c.setReg(rd, result)
	if setFlags {
		c.setFlag(flagN, result&0x80000000 != 0)
		c.setFlag(flagZ, result == 0)
	}
	return false
}

func (c *CPU) armMulLong(instr uint32) bool {
	rdHi := (instr >> 16) & 0xF
	rdLo := (instr >> 12) & 0xF
	rs := (instr >> 8) & 0xF
	rm := instr & 0xF
	signed := instr&0x00400000 != 0
	accumulate := instr&0x00200000 != 0
	setFlags := instr&0x00100000 != 0

	var result uint64
	if signed {
		result = uint64(int64(int32(c.getReg(rm))) * int64(int32(c.getReg(rs))))
	} else {
		result = uint64(c.getReg(rm)) * uint64(c.getReg(rs))
	}
	if accumulate {
		result += uint64(c.getReg(rdHi))<<32 | uint64(c.getReg(rdLo))
	}
	c.setReg(rdLo, uint32(result))
	c.setReg(rdHi, uint32(result>>32))
	if setFlags {
		c.setFlag(flagN, result&0x8000000000000000 != 0)
		c.setFlag(flagZ, result == 0)
	}
	return false
}

func (c *CPU) armSwap(instr uint32) bool {
	rn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF
	rm := instr & 0xF
	byteSwap := instr&0x00400000 != 0
	addr := c.getReg(rn)

	if byteSwap {
		old := c.bus.Read8(addr, access.NonSequential)
		c.bus.Write8(addr, byte(c.getReg(rm)), access.NonSequential)
		c.setReg(rd, uint32(old))
	} else {
		old := c.bus.Read32(addr, access.NonSequential)
		c.bus.Write32(addr, c.getReg(rm), access.NonSequential)
		c.setReg(rd, old)
	}
	return false
}

func (c *CPU) armPSRTransfer(instr uint32) bool {
	useSPSR := instr&0x00400000 != 0
	if instr&0x00200000 != 0 { // MSR
		var mask uint32
		if instr&0x00010000 != 0 {
			mask |= 0x000000FF
		}
		if instr&0x00080000 != 0 {
			mask |= 0xFF000000
		}
		var v uint32
		if instr&0x02000000 != 0 {
			imm := instr & 0xFF
			rot := ((instr >> 8) & 0xF) * 2
			v = (imm >> rot) | (imm << (32 - rot))
		} else {
			v = c.getReg(instr & 0xF)
		}
		if useSPSR {
			c.setSPSR((c.getSPSR() &^ mask) | (v & mask))
		} else {
			c.cpsr = (c.cpsr &^ mask) | (v & mask)
		}
		return false
	}
	// MRS
	rd := (instr >> 12) & 0xF
	if useSPSR {
		c.setReg(rd, c.getSPSR())
	} else {
		c.setReg(rd, c.cpsr)
	}
	return false
}

func (c *CPU) armSingleTransfer(instr uint32) bool {
	load := instr&0x00100000 != 0
	byteAccess := instr&0x00400000 != 0
	up := instr&0x00800000 != 0
	pre := instr&0x01000000 != 0
	writeback := instr&0x00200000 != 0
	rn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF

	var offset uint32
	if instr&0x02000000 != 0 {
		shiftType := (instr >> 5) & 0x3
		amount := (instr >> 7) & 0x1F
		rm := c.getReg(instr & 0xF)
		offset, _ = shiftValue(shiftType, rm, amount, false, c.flagSet(flagC))
	} else {
		offset = instr & 0xFFF
	}

	base := c.getReg(rn)
	addr := base
	if pre {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
	}

	kind := access.NonSequential
	if load {
		var v uint32
		if byteAccess {
			v = uint32(c.bus.Read8(addr, kind))
		} else {
			v = c.bus.Read32(addr, kind)
		}
		// Writeback is suppressed when the loaded register is also the
		// base register: the loaded value takes precedence.
		if rn != rd {
			if !pre {
				if up {
					base += offset
				} else {
					base -= offset
				}
				c.setReg(rn, base)
			} else if writeback {
				c.setReg(rn, addr)
			}
		}
		c.setReg(rd, v)
		return rd == 15
	}

	v := c.getReg(rd)
	if rd == 15 {
		v += 4
	}
	if byteAccess {
		c.bus.Write8(addr, byte(v), kind)
	} else {
		c.bus.Write32(addr, v, kind)
	}
	if !pre {
		if up {
			base += offset
		} else {
			base -= offset
		}
		c.setReg(rn, base)
	} else if writeback {
		c.setReg(rn, addr)
	}
	return false
}

func (c *CPU) armHalfwordTransfer(instr uint32) bool {
	load := instr&0x00100000 != 0
	up := instr&0x00800000 != 0
	pre := instr&0x01000000 != 0
	writeback := instr&0x00200000 != 0
	immOffset := instr&0x00400000 != 0
	rn := (instr >> 16) & 0xF
	rd := (instr >> 12) & 0xF
	sh := (instr >> 5) & 0x3

	var offset uint32
	if immOffset {
		offset = ((instr >> 4) & 0xF0) | (instr & 0xF)
	} else {
		offset = c.getReg(instr & 0xF)
	}

	base := c.getReg(rn)
	addr := base
	if pre {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
	}

	kind := access.NonSequential
	if load {
		var v uint32
		switch sh {
		case 1: // unsigned halfword
			v = uint32(c.bus.Read16(addr, kind))
		case 2: // signed byte
			b := c.bus.Read8(addr, kind)
			v = uint32(int32(int8(b)))
		case 3: // signed halfword
			h := c.bus.Read16(addr, kind)
			v = uint32(int32(int16(h)))
		}
		c.setReg(rd, v)
	} else {
		v := uint16(c.getReg(rd))
		c.bus.Write16(addr, v, kind)
	}

	if !pre {
		if up {
			base += offset
		} else {
			base -= offset
		}
		c.setReg(rn, base)
	} else if writeback {
		c.setReg(rn, addr)
	}
	return load && rd == 15
}

func (c *CPU) armBlockTransfer(instr uint32) bool {
	load := instr&0x00100000 != 0
	up := instr&0x00800000 != 0
	pre := instr&0x01000000 != 0
	sBit := instr&0x00400000 != 0
	writeback := instr&0x00200000 != 0
	rn := (instr >> 16) & 0xF
	list := instr & 0xFFFF

	count := 0
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) != 0 {
			count++
		}
	}
	if count == 0 {
		count = 16
		list = 0x8000
	}

	pcInList := list&0x8000 != 0
	// S-bit selects the USR/SYS register bank for the transfer, except
	// when this is an LDM that also loads R15; that case restores CPSR
	// from SPSR once the load completes instead.
	userBank := sBit && !(load && pcInList)

	base := c.getReg(rn)
	addr := base
	if !up {
		addr = base - uint32(count)*4
		if pre {
			addr += 4
		}
	} else if pre {
		addr += 4
	}

	pcLoaded := false
	kind := access.NonSequential
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) == 0 {
			continue
		}
		if load {
			v := c.bus.Read32(addr, kind)
			if userBank {
				c.setUserReg(uint32(i), v)
			} else {
				c.setReg(uint32(i), v)
			}
			if i == 15 {
				pcLoaded = true
			}
		} else {
			var v uint32
			if userBank {
				v = c.userReg(uint32(i))
			} else {
				v = c.getReg(uint32(i))
			}
			if i == 15 {
				v += 4
			}
			c.bus.Write32(addr, v, kind)
		}
		addr += 4
		kind = access.Sequential
	}

	if load && pcInList && sBit {
		c.cpsr = c.getSPSR()
	}

	if writeback && !(load && list&(1<<rn) != 0) {
		if up {
			c.setReg(rn, base+uint32(count)*4)
		} else {
			c.setReg(rn, base-uint32(count)*4)
		}
	}

	return pcLoaded
}
