package importer

import "testing"

// flatRAM is a bare 64 KiB memory map for interpreter tests.
type flatRAM struct {
	mem [0x10000]byte
}

func (r *flatRAM) Read(addr uint16) byte         { return r.mem[addr] }
func (r *flatRAM) Write(addr uint16, value byte) { r.mem[addr] = value }

func loadProgram(ram *flatRAM, addr uint16, code ...byte) {
	copy(ram.mem[addr:], code)
}

func TestCall_RunsToReturn(t *testing.T) {
	ram := &flatRAM{}
	// LDA #$42; STA $0200; RTS
	loadProgram(ram, 0x8000, 0xA9, 0x42, 0x8D, 0x00, 0x02, 0x60)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 7, 3, 10000); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if ram.mem[0x0200] != 0x42 {
		t.Errorf("store result: got $%02X, want $42", ram.mem[0x0200])
	}
}

func TestCall_PushesSentinelReturnAddress(t *testing.T) {
	ram := &flatRAM{}
	// RTS
	loadProgram(ram, 0x8000, 0x60)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0, 0, 1000); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	// RTS pops $FFFE and adds one, so both pushed bytes must be $FF/$FE.
	if ram.mem[stackBase+0xFD] != 0xFF || ram.mem[stackBase+0xFC] != 0xFE {
		t.Errorf("return address on stack: $%02X%02X, want $FFFE",
			ram.mem[stackBase+0xFD], ram.mem[stackBase+0xFC])
	}
	if cpu.PC != callSentinel {
		t.Errorf("final PC: $%04X, want $%04X", cpu.PC, callSentinel)
	}
}

func TestCall_PassesRegisters(t *testing.T) {
	ram := &flatRAM{}
	// STA $0200; STX $0201; RTS
	loadProgram(ram, 0x8000, 0x8D, 0x00, 0x02, 0x8E, 0x01, 0x02, 0x60)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0xAA, 0x55, 10000); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if ram.mem[0x0200] != 0xAA || ram.mem[0x0201] != 0x55 {
		t.Errorf("got A=$%02X X=$%02X, want $AA $55", ram.mem[0x0200], ram.mem[0x0201])
	}
}

func TestCall_CycleBudgetStopsTightLoop(t *testing.T) {
	ram := &flatRAM{}
	// JMP $8000
	loadProgram(ram, 0x8000, 0x4C, 0x00, 0x80)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0, 0, 1000); err == nil {
		t.Fatal("expected cycle budget fault")
	}
}

func TestCall_UndefinedOpcodeFaults(t *testing.T) {
	ram := &flatRAM{}
	loadProgram(ram, 0x8000, 0x02)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0, 0, 1000); err == nil {
		t.Fatal("expected fault on undefined opcode")
	}
}

func TestCall_BRKFaults(t *testing.T) {
	ram := &flatRAM{}
	loadProgram(ram, 0x8000, 0x00)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0, 0, 1000); err == nil {
		t.Fatal("expected fault on BRK")
	}
}

func TestCall_ZeroAddressFaults(t *testing.T) {
	cpu := newCPU6502(&flatRAM{})
	if err := cpu.Call(0, 0, 0, 1000); err == nil {
		t.Fatal("expected fault on zero entry point")
	}
}

func TestStep_ArithmeticAndFlags(t *testing.T) {
	ram := &flatRAM{}
	// CLC; LDA #$FF; ADC #$01; STA $0200; RTS -> wraps to $00, carry set
	loadProgram(ram, 0x8000, 0x18, 0xA9, 0xFF, 0x69, 0x01, 0x8D, 0x00, 0x02, 0x60)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0, 0, 10000); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if ram.mem[0x0200] != 0x00 {
		t.Errorf("ADC wrap: got $%02X, want $00", ram.mem[0x0200])
	}
	if cpu.P&flagC == 0 {
		t.Error("carry not set after overflow")
	}
}

func TestStep_BranchesAndLoops(t *testing.T) {
	ram := &flatRAM{}
	// LDX #$05; loop: DEX; BNE loop; STX $0200; RTS
	loadProgram(ram, 0x8000, 0xA2, 0x05, 0xCA, 0xD0, 0xFD, 0x8E, 0x00, 0x02, 0x60)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0, 0, 10000); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if ram.mem[0x0200] != 0 {
		t.Errorf("loop result: got %d, want 0", ram.mem[0x0200])
	}
}

func TestStep_IndirectIndexedStore(t *testing.T) {
	ram := &flatRAM{}
	ram.mem[0x10] = 0x00
	ram.mem[0x11] = 0x02
	// LDY #$04; LDA #$77; STA ($10),Y; RTS
	loadProgram(ram, 0x8000, 0xA0, 0x04, 0xA9, 0x77, 0x91, 0x10, 0x60)
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0, 0, 10000); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if ram.mem[0x0204] != 0x77 {
		t.Errorf("(zp),Y store: got $%02X, want $77", ram.mem[0x0204])
	}
}

func TestCall_CountsCycles(t *testing.T) {
	ram := &flatRAM{}
	loadProgram(ram, 0x8000, 0xA9, 0x01, 0x60) // LDA #; RTS
	cpu := newCPU6502(ram)
	if err := cpu.Call(0x8000, 0, 0, 10000); err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if cpu.Cycles == 0 {
		t.Error("cycle counter never advanced")
	}
}
