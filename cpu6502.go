// cpu6502.go - Minimal 6502 interpreter for register-capture extraction
//
// NSF and SAP music is executable code, not data tables; the notes only
// exist as the side effect of sound-chip register writes. This interpreter
// runs the documented opcode set against a caller-supplied memory map and
// enforces a hard cycle budget inside the fetch-decode loop, so a hostile
// or looping input cannot hang the caller. No wall-clock timers, no global
// state: the struct owns its registers, the caller owns the memory.

package importer

// MemoryMap is the injectable 64 KiB address space the CPU executes against.
// Chip register windows live behind Write.
type MemoryMap interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
}

// Status register flags.
const (
	flagC byte = 1 << 0
	flagZ byte = 1 << 1
	flagI byte = 1 << 2
	flagD byte = 1 << 3
	flagB byte = 1 << 4
	flagU byte = 1 << 5
	flagV byte = 1 << 6
	flagN byte = 1 << 7
)

const stackBase = 0x0100

// callSentinel is the address a routine "returns" to. Call pushes it as the
// RTS target and stops when PC lands there, so no stub code is written into
// the emulated RAM (the image may be fully occupied by the player).
const callSentinel = 0xFFFF

// CPU6502 is the interpreter state. Construct with newCPU6502; one instance
// per extraction, safe to run many concurrently.
type CPU6502 struct {
	A, X, Y byte
	SP      byte
	P       byte
	PC      uint16
	Cycles  uint64
	mem     MemoryMap
}

func newCPU6502(mem MemoryMap) *CPU6502 {
	return &CPU6502{SP: 0xFD, P: flagU | flagI, mem: mem}
}

// Call executes the subroutine at addr with A and X preloaded, returning
// when the routine RTSes back to the sentinel or erroring when it trips the
// cycle budget or an undefined opcode. This is the init/play protocol both
// NSF and SAP use.
func (c *CPU6502) Call(addr uint16, a, x byte, maxCycles uint64) error {
	if addr == 0 {
		return &emulationFault{Reason: "zero entry point"}
	}
	c.A, c.X, c.Y = a, x, 0
	c.SP = 0xFD
	c.P = flagU | flagI
	c.push(byte((callSentinel - 1) >> 8))
	c.push(byte((callSentinel - 1) & 0xFF))
	c.PC = addr
	start := c.Cycles
	for c.PC != callSentinel {
		if c.Cycles-start > maxCycles {
			return &emulationFault{PC: c.PC, Reason: "cycle budget exceeded"}
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *CPU6502) read16(addr uint16) uint16 {
	return uint16(c.mem.Read(addr)) | uint16(c.mem.Read(addr+1))<<8
}

func (c *CPU6502) fetch() byte {
	b := c.mem.Read(c.PC)
	c.PC++
	return b
}

func (c *CPU6502) fetch16() uint16 {
	lo := c.fetch()
	hi := c.fetch()
	return uint16(lo) | uint16(hi)<<8
}

func (c *CPU6502) push(v byte) {
	c.mem.Write(stackBase+uint16(c.SP), v)
	c.SP--
}

func (c *CPU6502) pop() byte {
	c.SP++
	return c.mem.Read(stackBase + uint16(c.SP))
}

func (c *CPU6502) setNZ(v byte) byte {
	c.P &^= flagN | flagZ
	if v == 0 {
		c.P |= flagZ
	}
	if v&0x80 != 0 {
		c.P |= flagN
	}
	return v
}

// Addressing modes. Each returns the effective address.

func (c *CPU6502) zp() uint16  { return uint16(c.fetch()) }
func (c *CPU6502) zpX() uint16 { return uint16(c.fetch()+c.X) & 0xFF }
func (c *CPU6502) zpY() uint16 { return uint16(c.fetch()+c.Y) & 0xFF }
func (c *CPU6502) abs() uint16 { return c.fetch16() }
func (c *CPU6502) absX() uint16 { return c.fetch16() + uint16(c.X) }
func (c *CPU6502) absY() uint16 { return c.fetch16() + uint16(c.Y) }

func (c *CPU6502) indX() uint16 {
	zp := uint16(c.fetch()+c.X) & 0xFF
	return uint16(c.mem.Read(zp)) | uint16(c.mem.Read((zp+1)&0xFF))<<8
}

func (c *CPU6502) indY() uint16 {
	zp := uint16(c.fetch())
	base := uint16(c.mem.Read(zp)) | uint16(c.mem.Read((zp+1)&0xFF))<<8
	return base + uint16(c.Y)
}

func (c *CPU6502) branch(cond bool) {
	offset := int8(c.fetch())
	if cond {
		c.PC = uint16(int32(c.PC) + int32(offset))
		c.Cycles++
	}
}

func (c *CPU6502) adc(v byte) {
	carry := uint16(c.P & flagC)
	sum := uint16(c.A) + uint16(v) + carry
	c.P &^= flagC | flagV
	if sum > 0xFF {
		c.P |= flagC
	}
	if (c.A^byte(sum))&(v^byte(sum))&0x80 != 0 {
		c.P |= flagV
	}
	c.A = c.setNZ(byte(sum))
}

func (c *CPU6502) sbc(v byte) {
	borrow := uint16(c.P&flagC) ^ 1
	diff := uint16(c.A) - uint16(v) - borrow
	c.P &^= flagC | flagV
	if diff < 0x100 {
		c.P |= flagC
	}
	if (c.A^v)&(c.A^byte(diff))&0x80 != 0 {
		c.P |= flagV
	}
	c.A = c.setNZ(byte(diff))
}

func (c *CPU6502) cmp(reg, v byte) {
	diff := uint16(reg) - uint16(v)
	c.P &^= flagC
	if diff < 0x100 {
		c.P |= flagC
	}
	c.setNZ(byte(diff))
}

func (c *CPU6502) bit(v byte) {
	c.P &^= flagN | flagV | flagZ
	c.P |= v & (flagN | flagV)
	if c.A&v == 0 {
		c.P |= flagZ
	}
}

func (c *CPU6502) asl(v byte) byte {
	c.P &^= flagC
	if v&0x80 != 0 {
		c.P |= flagC
	}
	return c.setNZ(v << 1)
}

func (c *CPU6502) lsr(v byte) byte {
	c.P &^= flagC
	if v&1 != 0 {
		c.P |= flagC
	}
	return c.setNZ(v >> 1)
}

func (c *CPU6502) rol(v byte) byte {
	carry := c.P & flagC
	c.P &^= flagC
	if v&0x80 != 0 {
		c.P |= flagC
	}
	return c.setNZ(v<<1 | carry)
}

func (c *CPU6502) ror(v byte) byte {
	carry := c.P & flagC
	c.P &^= flagC
	if v&1 != 0 {
		c.P |= flagC
	}
	return c.setNZ(v>>1 | carry<<7)
}

func (c *CPU6502) rmw(addr uint16, op func(byte) byte) {
	c.mem.Write(addr, op(c.mem.Read(addr)))
}

// cycles6502 holds base cycle counts for the documented opcodes; zero marks
// an undefined opcode. Page-cross penalties are ignored: the budget only has
// to bound execution, not time it.
var cycles6502 = [256]byte{
	0x00: 7, 0x01: 6, 0x05: 3, 0x06: 5, 0x08: 3, 0x09: 2, 0x0A: 2, 0x0D: 4, 0x0E: 6,
	0x10: 2, 0x11: 5, 0x15: 4, 0x16: 6, 0x18: 2, 0x19: 4, 0x1D: 4, 0x1E: 7,
	0x20: 6, 0x21: 6, 0x24: 3, 0x25: 3, 0x26: 5, 0x28: 4, 0x29: 2, 0x2A: 2, 0x2C: 4, 0x2D: 4, 0x2E: 6,
	0x30: 2, 0x31: 5, 0x35: 4, 0x36: 6, 0x38: 2, 0x39: 4, 0x3D: 4, 0x3E: 7,
	0x40: 6, 0x41: 6, 0x45: 3, 0x46: 5, 0x48: 3, 0x49: 2, 0x4A: 2, 0x4C: 3, 0x4D: 4, 0x4E: 6,
	0x50: 2, 0x51: 5, 0x55: 4, 0x56: 6, 0x58: 2, 0x59: 4, 0x5D: 4, 0x5E: 7,
	0x60: 6, 0x61: 6, 0x65: 3, 0x66: 5, 0x68: 4, 0x69: 2, 0x6A: 2, 0x6C: 5, 0x6D: 4, 0x6E: 6,
	0x70: 2, 0x71: 5, 0x75: 4, 0x76: 6, 0x78: 2, 0x79: 4, 0x7D: 4, 0x7E: 7,
	0x81: 6, 0x84: 3, 0x85: 3, 0x86: 3, 0x88: 2, 0x8A: 2, 0x8C: 4, 0x8D: 4, 0x8E: 4,
	0x90: 2, 0x91: 6, 0x94: 4, 0x95: 4, 0x96: 4, 0x98: 2, 0x99: 5, 0x9A: 2, 0x9D: 5,
	0xA0: 2, 0xA1: 6, 0xA2: 2, 0xA4: 3, 0xA5: 3, 0xA6: 3, 0xA8: 2, 0xA9: 2, 0xAA: 2, 0xAC: 4, 0xAD: 4, 0xAE: 4,
	0xB0: 2, 0xB1: 5, 0xB4: 4, 0xB5: 4, 0xB6: 4, 0xB8: 2, 0xB9: 4, 0xBA: 2, 0xBC: 4, 0xBD: 4, 0xBE: 4,
	0xC0: 2, 0xC1: 6, 0xC4: 3, 0xC5: 3, 0xC6: 5, 0xC8: 2, 0xC9: 2, 0xCA: 2, 0xCC: 4, 0xCD: 4, 0xCE: 6,
	0xD0: 2, 0xD1: 5, 0xD5: 4, 0xD6: 6, 0xD8: 2, 0xD9: 4, 0xDD: 4, 0xDE: 7,
	0xE0: 2, 0xE1: 6, 0xE4: 3, 0xE5: 3, 0xE6: 5, 0xE8: 2, 0xE9: 2, 0xEA: 2, 0xEC: 4, 0xED: 4, 0xEE: 6,
	0xF0: 2, 0xF1: 5, 0xF5: 4, 0xF6: 6, 0xF8: 2, 0xF9: 4, 0xFD: 4, 0xFE: 7,
}

// Step executes one instruction. Undefined opcodes and BRK both return an
// emulationFault: inside a music player either one means the extraction has
// run off the rails.
func (c *CPU6502) Step() error {
	pc := c.PC
	op := c.fetch()
	cost := cycles6502[op]
	if cost == 0 {
		return &emulationFault{PC: pc, Opcode: op, Reason: "undefined opcode"}
	}
	c.Cycles += uint64(cost)

	switch op {
	case 0x00: // BRK
		return &emulationFault{PC: pc, Opcode: op, Reason: "BRK executed"}

	// Loads
	case 0xA9:
		c.A = c.setNZ(c.fetch())
	case 0xA5:
		c.A = c.setNZ(c.mem.Read(c.zp()))
	case 0xB5:
		c.A = c.setNZ(c.mem.Read(c.zpX()))
	case 0xAD:
		c.A = c.setNZ(c.mem.Read(c.abs()))
	case 0xBD:
		c.A = c.setNZ(c.mem.Read(c.absX()))
	case 0xB9:
		c.A = c.setNZ(c.mem.Read(c.absY()))
	case 0xA1:
		c.A = c.setNZ(c.mem.Read(c.indX()))
	case 0xB1:
		c.A = c.setNZ(c.mem.Read(c.indY()))
	case 0xA2:
		c.X = c.setNZ(c.fetch())
	case 0xA6:
		c.X = c.setNZ(c.mem.Read(c.zp()))
	case 0xB6:
		c.X = c.setNZ(c.mem.Read(c.zpY()))
	case 0xAE:
		c.X = c.setNZ(c.mem.Read(c.abs()))
	case 0xBE:
		c.X = c.setNZ(c.mem.Read(c.absY()))
	case 0xA0:
		c.Y = c.setNZ(c.fetch())
	case 0xA4:
		c.Y = c.setNZ(c.mem.Read(c.zp()))
	case 0xB4:
		c.Y = c.setNZ(c.mem.Read(c.zpX()))
	case 0xAC:
		c.Y = c.setNZ(c.mem.Read(c.abs()))
	case 0xBC:
		c.Y = c.setNZ(c.mem.Read(c.absX()))

	// Stores
	case 0x85:
		c.mem.Write(c.zp(), c.A)
	case 0x95:
		c.mem.Write(c.zpX(), c.A)
	case 0x8D:
		c.mem.Write(c.abs(), c.A)
	case 0x9D:
		c.mem.Write(c.absX(), c.A)
	case 0x99:
		c.mem.Write(c.absY(), c.A)
	case 0x81:
		c.mem.Write(c.indX(), c.A)
	case 0x91:
		c.mem.Write(c.indY(), c.A)
	case 0x86:
		c.mem.Write(c.zp(), c.X)
	case 0x96:
		c.mem.Write(c.zpY(), c.X)
	case 0x8E:
		c.mem.Write(c.abs(), c.X)
	case 0x84:
		c.mem.Write(c.zp(), c.Y)
	case 0x94:
		c.mem.Write(c.zpX(), c.Y)
	case 0x8C:
		c.mem.Write(c.abs(), c.Y)

	// Transfers
	case 0xAA:
		c.X = c.setNZ(c.A)
	case 0xA8:
		c.Y = c.setNZ(c.A)
	case 0x8A:
		c.A = c.setNZ(c.X)
	case 0x98:
		c.A = c.setNZ(c.Y)
	case 0xBA:
		c.X = c.setNZ(c.SP)
	case 0x9A:
		c.SP = c.X

	// Stack
	case 0x48:
		c.push(c.A)
	case 0x68:
		c.A = c.setNZ(c.pop())
	case 0x08:
		c.push(c.P | flagB | flagU)
	case 0x28:
		c.P = c.pop() | flagU

	// Logic
	case 0x29:
		c.A = c.setNZ(c.A & c.fetch())
	case 0x25:
		c.A = c.setNZ(c.A & c.mem.Read(c.zp()))
	case 0x35:
		c.A = c.setNZ(c.A & c.mem.Read(c.zpX()))
	case 0x2D:
		c.A = c.setNZ(c.A & c.mem.Read(c.abs()))
	case 0x3D:
		c.A = c.setNZ(c.A & c.mem.Read(c.absX()))
	case 0x39:
		c.A = c.setNZ(c.A & c.mem.Read(c.absY()))
	case 0x21:
		c.A = c.setNZ(c.A & c.mem.Read(c.indX()))
	case 0x31:
		c.A = c.setNZ(c.A & c.mem.Read(c.indY()))
	case 0x09:
		c.A = c.setNZ(c.A | c.fetch())
	case 0x05:
		c.A = c.setNZ(c.A | c.mem.Read(c.zp()))
	case 0x15:
		c.A = c.setNZ(c.A | c.mem.Read(c.zpX()))
	case 0x0D:
		c.A = c.setNZ(c.A | c.mem.Read(c.abs()))
	case 0x1D:
		c.A = c.setNZ(c.A | c.mem.Read(c.absX()))
	case 0x19:
		c.A = c.setNZ(c.A | c.mem.Read(c.absY()))
	case 0x01:
		c.A = c.setNZ(c.A | c.mem.Read(c.indX()))
	case 0x11:
		c.A = c.setNZ(c.A | c.mem.Read(c.indY()))
	case 0x49:
		c.A = c.setNZ(c.A ^ c.fetch())
	case 0x45:
		c.A = c.setNZ(c.A ^ c.mem.Read(c.zp()))
	case 0x55:
		c.A = c.setNZ(c.A ^ c.mem.Read(c.zpX()))
	case 0x4D:
		c.A = c.setNZ(c.A ^ c.mem.Read(c.abs()))
	case 0x5D:
		c.A = c.setNZ(c.A ^ c.mem.Read(c.absX()))
	case 0x59:
		c.A = c.setNZ(c.A ^ c.mem.Read(c.absY()))
	case 0x41:
		c.A = c.setNZ(c.A ^ c.mem.Read(c.indX()))
	case 0x51:
		c.A = c.setNZ(c.A ^ c.mem.Read(c.indY()))
	case 0x24:
		c.bit(c.mem.Read(c.zp()))
	case 0x2C:
		c.bit(c.mem.Read(c.abs()))

	// Arithmetic
	case 0x69:
		c.adc(c.fetch())
	case 0x65:
		c.adc(c.mem.Read(c.zp()))
	case 0x75:
		c.adc(c.mem.Read(c.zpX()))
	case 0x6D:
		c.adc(c.mem.Read(c.abs()))
	case 0x7D:
		c.adc(c.mem.Read(c.absX()))
	case 0x79:
		c.adc(c.mem.Read(c.absY()))
	case 0x61:
		c.adc(c.mem.Read(c.indX()))
	case 0x71:
		c.adc(c.mem.Read(c.indY()))
	case 0xE9:
		c.sbc(c.fetch())
	case 0xE5:
		c.sbc(c.mem.Read(c.zp()))
	case 0xF5:
		c.sbc(c.mem.Read(c.zpX()))
	case 0xED:
		c.sbc(c.mem.Read(c.abs()))
	case 0xFD:
		c.sbc(c.mem.Read(c.absX()))
	case 0xF9:
		c.sbc(c.mem.Read(c.absY()))
	case 0xE1:
		c.sbc(c.mem.Read(c.indX()))
	case 0xF1:
		c.sbc(c.mem.Read(c.indY()))

	// Compares
	case 0xC9:
		c.cmp(c.A, c.fetch())
	case 0xC5:
		c.cmp(c.A, c.mem.Read(c.zp()))
	case 0xD5:
		c.cmp(c.A, c.mem.Read(c.zpX()))
	case 0xCD:
		c.cmp(c.A, c.mem.Read(c.abs()))
	case 0xDD:
		c.cmp(c.A, c.mem.Read(c.absX()))
	case 0xD9:
		c.cmp(c.A, c.mem.Read(c.absY()))
	case 0xC1:
		c.cmp(c.A, c.mem.Read(c.indX()))
	case 0xD1:
		c.cmp(c.A, c.mem.Read(c.indY()))
	case 0xE0:
		c.cmp(c.X, c.fetch())
	case 0xE4:
		c.cmp(c.X, c.mem.Read(c.zp()))
	case 0xEC:
		c.cmp(c.X, c.mem.Read(c.abs()))
	case 0xC0:
		c.cmp(c.Y, c.fetch())
	case 0xC4:
		c.cmp(c.Y, c.mem.Read(c.zp()))
	case 0xCC:
		c.cmp(c.Y, c.mem.Read(c.abs()))

	// Increments/decrements
	case 0xE6:
		c.rmw(c.zp(), func(v byte) byte { return c.setNZ(v + 1) })
	case 0xF6:
		c.rmw(c.zpX(), func(v byte) byte { return c.setNZ(v + 1) })
	case 0xEE:
		c.rmw(c.abs(), func(v byte) byte { return c.setNZ(v + 1) })
	case 0xFE:
		c.rmw(c.absX(), func(v byte) byte { return c.setNZ(v + 1) })
	case 0xC6:
		c.rmw(c.zp(), func(v byte) byte { return c.setNZ(v - 1) })
	case 0xD6:
		c.rmw(c.zpX(), func(v byte) byte { return c.setNZ(v - 1) })
	case 0xCE:
		c.rmw(c.abs(), func(v byte) byte { return c.setNZ(v - 1) })
	case 0xDE:
		c.rmw(c.absX(), func(v byte) byte { return c.setNZ(v - 1) })
	case 0xE8:
		c.X = c.setNZ(c.X + 1)
	case 0xC8:
		c.Y = c.setNZ(c.Y + 1)
	case 0xCA:
		c.X = c.setNZ(c.X - 1)
	case 0x88:
		c.Y = c.setNZ(c.Y - 1)

	// Shifts/rotates
	case 0x0A:
		c.A = c.asl(c.A)
	case 0x06:
		c.rmw(c.zp(), c.asl)
	case 0x16:
		c.rmw(c.zpX(), c.asl)
	case 0x0E:
		c.rmw(c.abs(), c.asl)
	case 0x1E:
		c.rmw(c.absX(), c.asl)
	case 0x4A:
		c.A = c.lsr(c.A)
	case 0x46:
		c.rmw(c.zp(), c.lsr)
	case 0x56:
		c.rmw(c.zpX(), c.lsr)
	case 0x4E:
		c.rmw(c.abs(), c.lsr)
	case 0x5E:
		c.rmw(c.absX(), c.lsr)
	case 0x2A:
		c.A = c.rol(c.A)
	case 0x26:
		c.rmw(c.zp(), c.rol)
	case 0x36:
		c.rmw(c.zpX(), c.rol)
	case 0x2E:
		c.rmw(c.abs(), c.rol)
	case 0x3E:
		c.rmw(c.absX(), c.rol)
	case 0x6A:
		c.A = c.ror(c.A)
	case 0x66:
		c.rmw(c.zp(), c.ror)
	case 0x76:
		c.rmw(c.zpX(), c.ror)
	case 0x6E:
		c.rmw(c.abs(), c.ror)
	case 0x7E:
		c.rmw(c.absX(), c.ror)

	// Jumps and returns
	case 0x4C:
		c.PC = c.fetch16()
	case 0x6C:
		ptr := c.fetch16()
		// 6502 JMP (ind) page-wrap bug preserved: players rely on it.
		lo := c.mem.Read(ptr)
		hi := c.mem.Read((ptr & 0xFF00) | ((ptr + 1) & 0x00FF))
		c.PC = uint16(lo) | uint16(hi)<<8
	case 0x20:
		target := c.fetch16()
		ret := c.PC - 1
		c.push(byte(ret >> 8))
		c.push(byte(ret))
		c.PC = target
	case 0x60: // RTS
		lo := c.pop()
		hi := c.pop()
		c.PC = (uint16(lo) | uint16(hi)<<8) + 1
	case 0x40: // RTI
		c.P = c.pop() | flagU
		lo := c.pop()
		hi := c.pop()
		c.PC = uint16(lo) | uint16(hi)<<8

	// Branches
	case 0x10:
		c.branch(c.P&flagN == 0)
	case 0x30:
		c.branch(c.P&flagN != 0)
	case 0x50:
		c.branch(c.P&flagV == 0)
	case 0x70:
		c.branch(c.P&flagV != 0)
	case 0x90:
		c.branch(c.P&flagC == 0)
	case 0xB0:
		c.branch(c.P&flagC != 0)
	case 0xD0:
		c.branch(c.P&flagZ == 0)
	case 0xF0:
		c.branch(c.P&flagZ != 0)

	// Flag operations
	case 0x18:
		c.P &^= flagC
	case 0x38:
		c.P |= flagC
	case 0x58:
		c.P &^= flagI
	case 0x78:
		c.P |= flagI
	case 0xB8:
		c.P &^= flagV
	case 0xD8:
		c.P &^= flagD
	case 0xF8:
		c.P |= flagD
	case 0xEA: // NOP
	}
	return nil
}
