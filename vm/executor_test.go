package vm

import "testing"

// TestStepExecutesMovImmediate runs a single ARM MOV R0, #5 (0xE3A00005:
// cond=AL, I=1, opcode=MOV, Rd=R0, operand2=5) out of IWRAM and checks the
// register write and PC advance spec §4.6 describes for a non-branching
// instruction.
func TestStepExecutesMovImmediate(t *testing.T) {
	mem := NewFlatMemory()
	machine := NewVM(mem, nil)

	mem.Write32(IWRAMBase, 0xE3A00005, false)
	machine.CPU.SetPC(IWRAMBase)

	info, err := machine.Step()
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if info.CausedException {
		t.Fatalf("Step() CausedException, want clean execution")
	}
	if got := machine.CPU.Reg(0); got != 5 {
		t.Errorf("R0 = %d, want 5", got)
	}
	if got := machine.CPU.GetPC(); got != IWRAMBase+4 {
		t.Errorf("PC = %#x, want %#x", got, IWRAMBase+4)
	}
	if machine.State != PipelineRunning {
		t.Errorf("State = %v, want PipelineRunning", machine.State)
	}
}

// TestStepSkipsFailedCondition exercises the "conditionally NOP" rule: a MOV
// guarded by a false condition still costs a cycle but must not write Rd.
func TestStepSkipsFailedCondition(t *testing.T) {
	mem := NewFlatMemory()
	machine := NewVM(mem, nil)

	// MOVEQ R0, #5 with Z clear: cond=EQ(0x0) instead of AL.
	mem.Write32(IWRAMBase, 0x03A00005, false)
	machine.CPU.SetPC(IWRAMBase)
	machine.CPU.CPSR.Z = false

	if _, err := machine.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := machine.CPU.Reg(0); got != 0 {
		t.Errorf("R0 = %d, want 0 (condition should have failed)", got)
	}
	if got := machine.CPU.GetPC(); got != IWRAMBase+4 {
		t.Errorf("PC = %#x, want %#x", got, IWRAMBase+4)
	}
}

// TestRunStopsOnShouldStop drives a branch-to-self loop via VM.Run with a
// shouldStop callback, confirming the driver loop terminates when asked to.
func TestRunStopsOnShouldStop(t *testing.T) {
	mem := NewFlatMemory()
	machine := NewVM(mem, nil)

	// B -2 (branch to self): 0xEAFFFFFE, an infinite loop a real ROM might
	// idle in; shouldStop must be the only thing that ends Run.
	mem.Write32(IWRAMBase, 0xEAFFFFFE, false)
	machine.CPU.SetPC(IWRAMBase)

	steps := 0
	err := machine.Run(func(v *VM) bool {
		steps++
		return steps >= 3
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if steps < 3 {
		t.Errorf("steps = %d, want at least 3", steps)
	}
}
