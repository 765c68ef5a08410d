package cpu

import "github.com/arm7tdmi-core/gbacore/internal/access"

// execThumb decodes and runs one Thumb-state instruction, returning true
// if it branched.
func (c *CPU) execThumb(instr uint16) bool {
	switch {
	case instr&0xF800 == 0x1800: // format 2: add/subtract
		return c.thumbAddSub(instr)
	case instr&0xE000 == 0x0000: // format 1: move shifted register
		return c.thumbShifted(instr)
	case instr&0xE000 == 0x2000: // format 3: move/cmp/add/sub immediate
		return c.thumbImmediate(instr)
	case instr&0xFC00 == 0x4000: // format 4: ALU operations
		return c.thumbALU(instr)
	case instr&0xFC00 == 0x4400: // format 5: hi register ops / BX
		return c.thumbHiRegBX(instr)
	case instr&0xF800 == 0x4800: // format 6: PC-relative load
		return c.thumbPCRelLoad(instr)
	case instr&0xF000 == 0x5000: // format 7/8: load/store with register offset
		return c.thumbLoadStoreReg(instr)
	case instr&0xE000 == 0x6000: // format 9: load/store immediate offset (word/byte)
		return c.thumbLoadStoreImm(instr)
	case instr&0xF000 == 0x8000: // format 10: load/store halfword
		return c.thumbLoadStoreHalf(instr)
	case instr&0xF000 == 0x9000: // format 11: SP-relative load/store
		return c.thumbSPRelLoadStore(instr)
	case instr&0xF000 == 0xA000: // format 12: load address
		return c.thumbLoadAddr(instr)
	case instr&0xFF00 == 0xB000: // format 13: add offset to SP
		return c.thumbAddSP(instr)
	case instr&0xF600 == 0xB400: // format 14: push/pop
		return c.thumbPushPop(instr)
	case instr&0xF000 == 0xC000: // format 15: multiple load/store
		return c.thumbMultipleLoadStore(instr)
	case instr&0xFF00 == 0xDF00: // format 17: SWI
		c.raiseSWI()
		return true
	case instr&0xF000 == 0xD000: // format 16: conditional branch
		return c.thumbCondBranch(instr)
	case instr&0xF800 == 0xE000: // format 18: unconditional branch
		return c.thumbUncondBranch(instr)
	case instr&0xF000 == 0xF000: // format 19: long branch with link
		return c.thumbLongBranchLink(instr)
	default:
		c.raiseUndefined()
		return true
	}
}

func (c *CPU) setNZ(v uint32) {
	c.setFlag(flagN, v&0x80000000 != 0)
	c.setFlag(flagZ, v == 0)
}

func (c *CPU) thumbShifted(instr uint16) bool {
	op := (instr >> 11) & 0x3
	amount := uint32((instr >> 6) & 0x1F)
	rs := uint32((instr >> 3) & 0x7)
	rd := uint32(instr & 0x7)

	v, carry := shiftValue(uint32(op), c.getReg(rs), amount, false, c.flagSet(flagC))
	c.setReg(rd, v)
	c.setNZ(v)
	c.setFlag(flagC, carry)
	return false
}

func (c *CPU) thumbAddSub(instr uint16) bool {
	useImm := instr&0x0400 != 0
	isSub := instr&0x0200 != 0
	rn := uint32((instr >> 6) & 0x7)
	rs := uint32((instr >> 3) & 0x7)
	rd := uint32(instr & 0x7)

	var operand uint32
	if useImm {
		operand = rn
	} else {
		operand = c.getReg(rn)
	}

	var result uint32
	var carry, overflow bool
	if isSub {
		result, carry, overflow = subWithFlags(c.getReg(rs), operand)
	} else {
		result, carry, overflow = addWithFlags(c.getReg(rs), operand)
	}
	c.setReg(rd, result)
	c.setNZ(result)
	c.setFlag(flagC, carry)
	c.setFlag(flagV, overflow)
	return false
}

func (c *CPU) thumbImmediate(instr uint16) bool {
	op := (instr >> 11) & 0x3
	rd := uint32((instr >> 8) & 0x7)
	imm := uint32(instr & 0xFF)

	switch op {
	case 0: // MOV
		c.setReg(rd, imm)
		c.setNZ(imm)
	case 1: // CMP
		result, carry, overflow := subWithFlags(c.getReg(rd), imm)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 2: // ADD
		result, carry, overflow := addWithFlags(c.getReg(rd), imm)
		c.setReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 3: // SUB
		result, carry, overflow := subWithFlags(c.getReg(rd), imm)
		c.setReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	}
	return false
}

func (c *CPU) thumbALU(instr uint16) bool {
	op := (instr >> 6) & 0xF
	rs := uint32((instr >> 3) & 0x7)
	rd := uint32(instr & 0x7)
	a, b := c.getReg(rd), c.getReg(rs)

	var result uint32
	carry, overflow := c.flagSet(flagC), c.flagSet(flagV)
	write := true

	switch op {
	case 0x0:
		result = a & b
	case 0x1:
		result = a ^ b
	case 0x2:
		result, carry = shiftValue(0, a, b&0xFF, true, carry)
	case 0x3:
		result, carry = shiftValue(1, a, b&0xFF, true, carry)
	case 0x4:
		result, carry = shiftValue(2, a, b&0xFF, true, carry)
	case 0x5:
		result, carry, overflow = addWithFlags(a, b+boolToU32(carry))
	case 0x6:
		result, carry, overflow = subWithFlags(a, b-1+boolToU32(carry))
	case 0x7:
		result, carry = shiftValue(3, a, b&0xFF, true, carry)
	case 0x8:
		result = a & b
		write = false
	case 0x9:
		result, carry, overflow = subWithFlags(0, b)
	case 0xA:
		result, carry, overflow = subWithFlags(a, b)
		write = false
	case 0xB:
		result, carry, overflow = addWithFlags(a, b)
		write = false
	case 0xC:
		result = a | b
	case 0xD:
		result = a * b
	case 0xE:
		result = a &^ b
	case 0xF:
		result = ^b
	}

	c.setNZ(result)
	c.setFlag(flagC, carry)
	c.setFlag(flagV, overflow)
	if write {
		c.setReg(rd, result)
	}
	return false
}

func (c *CPU) thumbHiRegBX(instr uint16) bool {
	op := (instr >> 8) & 0x3
	h1 := instr&0x80 != 0
	h2 := instr&0x40 != 0
	rs := uint32((instr>>3)&0x7) + boolToU32(h2)*8
	rd := uint32(instr&0x7) + boolToU32(h1)*8

	switch op {
	case 0: // ADD
		c.setReg(rd, c.getReg(rd)+c.getReg(rs))
		return rd == 15
	case 1: // CMP
		result, carry, overflow := subWithFlags(c.getReg(rd), c.getReg(rs))
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
		return false
	case 2: // MOV
		c.setReg(rd, c.getReg(rs))
		return rd == 15
	default: // BX
		target := c.getReg(rs)
		c.setFlag(flagT, target&1 != 0)
		c.r[15] = target &^ 1
		return true
	}
}

func (c *CPU) thumbPCRelLoad(instr uint16) bool {
	rd := uint32((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) * 4
	base := (c.r[15] &^ 3)
	v := c.bus.Read32(base+imm, access.NonSequential)
	c.setReg(rd, v)
	return false
}

func (c *CPU) thumbLoadStoreReg(instr uint16) bool {
	load := instr&0x0800 != 0
	byteAccess := instr&0x0400 != 0
	ro := uint32((instr >> 6) & 0x7)
	rb := uint32((instr >> 3) & 0x7)
	rd := uint32(instr & 0x7)
	addr := c.getReg(rb) + c.getReg(ro)

	if load {
		if byteAccess {
			c.setReg(rd, uint32(c.bus.Read8(addr, access.NonSequential)))
		} else {
			c.setReg(rd, c.bus.Read32(addr, access.NonSequential))
		}
	} else {
		if byteAccess {
			c.bus.Write8(addr, byte(c.getReg(rd)), access.NonSequential)
		} else {
			c.bus.Write32(addr, c.getReg(rd), access.NonSequential)
		}
	}
	return false
}

func (c *CPU) thumbLoadStoreImm(instr uint16) bool {
	byteAccess := instr&0x1000 != 0
	load := instr&0x0800 != 0
	imm := uint32((instr >> 6) & 0x1F)
	rb := uint32((instr >> 3) & 0x7)
	rd := uint32(instr & 0x7)

	var addr uint32
	if byteAccess {
		addr = c.getReg(rb) + imm
	} else {
		addr = c.getReg(rb) + imm*4
	}

	if load {
		if byteAccess {
			c.setReg(rd, uint32(c.bus.Read8(addr, access.NonSequential)))
		} else {
			c.setReg(rd, c.bus.Read32(addr, access.NonSequential))
		}
	} else {
		if byteAccess {
			c.bus.Write8(addr, byte(c.getReg(rd)), access.NonSequential)
		} else {
			c.bus.Write32(addr, c.getReg(rd), access.NonSequential)
		}
	}
	return false
}

func (c *CPU) thumbLoadStoreHalf(instr uint16) bool {
	load := instr&0x0800 != 0
	imm := uint32((instr>>6)&0x1F) * 2
	rb := uint32((instr >> 3) & 0x7)
	rd := uint32(instr & 0x7)
	addr := c.getReg(rb) + imm

	if load {
		c.setReg(rd, uint32(c.bus.Read16(addr, access.NonSequential)))
	} else {
		c.bus.Write16(addr, uint16(c.getReg(rd)), access.NonSequential)
	}
	return false
}

func (c *CPU) thumbSPRelLoadStore(instr uint16) bool {
	load := instr&0x0800 != 0
	rd := uint32((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) * 4
	addr := c.r[13] + imm

	if load {
		c.setReg(rd, c.bus.Read32(addr, access.NonSequential))
	} else {
		c.bus.Write32(addr, c.getReg(rd), access.NonSequential)
	}
	return false
}

func (c *CPU) thumbLoadAddr(instr uint16) bool {
	useSP := instr&0x0800 != 0
	rd := uint32((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) * 4
	if useSP {
		c.setReg(rd, c.r[13]+imm)
	} else {
		c.setReg(rd, (c.r[15]&^3)+imm)
	}
	return false
}

func (c *CPU) thumbAddSP(instr uint16) bool {
	negative := instr&0x80 != 0
	imm := uint32(instr&0x7F) * 4
	if negative {
		c.r[13] -= imm
	} else {
		c.r[13] += imm
	}
	return false
}

func (c *CPU) thumbPushPop(instr uint16) bool {
	load := instr&0x0800 != 0
	includePCLR := instr&0x0100 != 0
	list := uint32(instr & 0xFF)

	if load { // POP
		for i := 0; i < 8; i++ {
			if list&(1<<uint(i)) != 0 {
				c.setReg(uint32(i), c.bus.Read32(c.r[13], access.Sequential))
				c.r[13] += 4
			}
		}
		if includePCLR {
			target := c.bus.Read32(c.r[13], access.Sequential)
			c.r[13] += 4
			c.r[15] = target &^ 1
			return true
		}
		return false
	}

	// PUSH
	count := 0
	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) != 0 {
			count++
		}
	}
	if includePCLR {
		count++
	}
	addr := c.r[13] - uint32(count)*4
	c.r[13] = addr
	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) != 0 {
			c.bus.Write32(addr, c.getReg(uint32(i)), access.Sequential)
			addr += 4
		}
	}
	if includePCLR {
		c.bus.Write32(addr, c.r[14], access.Sequential)
	}
	return false
}

func (c *CPU) thumbMultipleLoadStore(instr uint16) bool {
	load := instr&0x0800 != 0
	rb := uint32((instr >> 8) & 0x7)
	list := uint32(instr & 0xFF)
	addr := c.getReg(rb)

	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) != 0 {
			if load {
				c.setReg(uint32(i), c.bus.Read32(addr, access.Sequential))
			} else {
				c.bus.Write32(addr, c.getReg(uint32(i)), access.Sequential)
			}
			addr += 4
		}
	}
	if !load || list&(1<<rb) == 0 {
		c.setReg(rb, addr)
	}
	return false
}

func (c *CPU) thumbCondBranch(instr uint16) bool {
	cond := uint32((instr >> 8) & 0xF)
	if !c.conditionPasses(cond) {
		return false
	}
	offset := int32(int8(instr & 0xFF))
	c.r[15] = uint32(int32(c.r[15]) + offset*2)
	return true
}

func (c *CPU) thumbUncondBranch(instr uint16) bool {
	offset := instr & 0x7FF
	var signed int32
	if offset&0x400 != 0 {
		signed = int32(offset) - 0x800
	} else {
		signed = int32(offset)
	}
	c.r[15] = uint32(int32(c.r[15]) + signed*2)
	return true
}

func (c *CPU) thumbLongBranchLink(instr uint16) bool {
	low := instr&0x0800 != 0
	offset := uint32(instr & 0x7FF)

	if !low {
		signed := offset
		if signed&0x400 != 0 {
			signed |= 0xFFFFF800
		}
		c.r[14] = uint32(int32(c.r[15]) + int32(signed<<12))
		return false
	}

	next := c.r[15] - 2
	target := c.r[14] + (offset << 1)
	c.r[15] = target
	c.r[14] = next | 1
	return true
}
