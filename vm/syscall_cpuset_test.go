package vm

import "testing"

// swiInstruction builds an unconditional ARM SWI instruction for index,
// matching the encoding ExecuteSWI's (inst.Opcode>>16)&0xFF extraction
// expects.
func swiInstruction(index uint32) *Instruction {
	return &Instruction{
		Opcode:    0x0F000000 | (index << 16),
		Type:      InstSWI,
		Condition: CondAL,
	}
}

func TestSWICpuSet16BitCopy(t *testing.T) {
	mem := NewFlatMemory()
	machine := NewVM(mem, nil)

	src := uint32(IWRAMBase)
	dst := uint32(IWRAMBase + 0x100)
	for i := uint32(0); i < 4; i++ {
		mem.Write16(src+i*2, uint16(0x1000+i), false)
	}

	machine.CPU.SetRegister(0, src)
	machine.CPU.SetRegister(1, dst)
	machine.CPU.SetRegister(2, 4) // count=4, 16-bit, not fixed-source

	if _, err := machine.Execute(swiInstruction(SWICpuSet)); err != nil {
		t.Fatalf("Execute(SWI CpuSet) error = %v", err)
	}

	for i := uint32(0); i < 4; i++ {
		got, _ := mem.Read16(dst+i*2, false, false)
		want := uint16(0x1000 + i)
		if got != want {
			t.Errorf("dst[%d] = %#x, want %#x", i, got, want)
		}
	}
}

func TestSWICpuSet32BitFixedSourceFill(t *testing.T) {
	mem := NewFlatMemory()
	machine := NewVM(mem, nil)

	src := uint32(IWRAMBase)
	dst := uint32(IWRAMBase + 0x100)
	mem.Write32(src, 0xCAFEBABE, false)

	machine.CPU.SetRegister(0, src)
	machine.CPU.SetRegister(1, dst)
	// count=4, bit24=fixed source (fill), bit26=32-bit
	machine.CPU.SetRegister(2, 4|(1<<24)|(1<<26))

	if _, err := machine.Execute(swiInstruction(SWICpuSet)); err != nil {
		t.Fatalf("Execute(SWI CpuSet) error = %v", err)
	}

	for i := uint32(0); i < 4; i++ {
		got, _ := mem.Read32(dst+i*4, false, false)
		if got != 0xCAFEBABE {
			t.Errorf("dst[%d] = %#x, want 0xCAFEBABE (fill)", i, got)
		}
	}
}

func TestSWICpuFastSetRoundsLengthUpToEightWords(t *testing.T) {
	mem := NewFlatMemory()
	machine := NewVM(mem, nil)

	src := uint32(IWRAMBase)
	dst := uint32(IWRAMBase + 0x200)
	for i := uint32(0); i < 3; i++ {
		mem.Write32(src+i*4, 0x11110000+i, false)
	}

	machine.CPU.SetRegister(0, src)
	machine.CPU.SetRegister(1, dst)
	machine.CPU.SetRegister(2, 3) // not a multiple of 8; rounds up to 8

	if _, err := machine.Execute(swiInstruction(SWICpuFastSet)); err != nil {
		t.Fatalf("Execute(SWI CpuFastSet) error = %v", err)
	}

	for i := uint32(0); i < 8; i++ {
		got, _ := mem.Read32(dst+i*4, false, false)
		want := uint32(0)
		if i < 3 {
			want = 0x11110000 + i
		}
		if got != want {
			t.Errorf("dst[%d] = %#x, want %#x", i, got, want)
		}
	}
}
