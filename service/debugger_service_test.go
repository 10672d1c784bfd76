package service

import (
	"testing"

	"github.com/lookbusy1344/arm-emulator/loader"
	"github.com/lookbusy1344/arm-emulator/vm"
)

func newTestService(t *testing.T) (*DebuggerService, *vm.FlatMemory) {
	t.Helper()
	mem := vm.NewFlatMemory()
	machine := vm.NewVM(mem, nil)
	return NewDebuggerService(machine, mem), mem
}

func makeROM(title string) *loader.ROM {
	data := make([]byte, 0xC0)
	copy(data[0xA0:], title)
	return &loader.ROM{Data: data, Title: title}
}

func TestLoadROMSetsTitleAndResetsBreakpoints(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.AddBreakpoint(0x08000004); err != nil {
		t.Fatalf("AddBreakpoint() error = %v", err)
	}

	if err := svc.LoadROM(makeROM("GROUNDED"), nil); err != nil {
		t.Fatalf("LoadROM() error = %v", err)
	}

	if got := svc.GetROMTitle(); got != "GROUNDED" {
		t.Errorf("GetROMTitle() = %q, want %q", got, "GROUNDED")
	}
	if bps := svc.GetBreakpoints(); len(bps) != 0 {
		t.Errorf("GetBreakpoints() after LoadROM = %v, want empty (breakpoints reset on load)", bps)
	}
}

func TestStepAdvancesRegisterState(t *testing.T) {
	svc, mem := newTestService(t)
	if err := svc.LoadROM(makeROM("STEPTEST"), nil); err != nil {
		t.Fatalf("LoadROM() error = %v", err)
	}

	mem.Write32(vm.ROMBase, 0xE3A00005, false) // MOV R0, #5
	svc.GetVM().CPU.SetPC(vm.ROMBase)

	if err := svc.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	regs := svc.GetRegisterState()
	if regs.Registers[0] != 5 {
		t.Errorf("R0 = %d, want 5", regs.Registers[0])
	}
	if regs.PC != vm.ROMBase+4 {
		t.Errorf("PC = %#x, want %#x", regs.PC, vm.ROMBase+4)
	}
}

func TestBreakpointLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.AddBreakpoint(0x08000100); err != nil {
		t.Fatalf("AddBreakpoint() error = %v", err)
	}
	bps := svc.GetBreakpoints()
	if len(bps) != 1 || bps[0].Address != 0x08000100 {
		t.Fatalf("GetBreakpoints() = %v, want one breakpoint at 0x08000100", bps)
	}

	if err := svc.RemoveBreakpoint(0x08000100); err != nil {
		t.Fatalf("RemoveBreakpoint() error = %v", err)
	}
	if bps := svc.GetBreakpoints(); len(bps) != 0 {
		t.Errorf("GetBreakpoints() after remove = %v, want empty", bps)
	}
}

func TestGetMemoryReturnsLoadedROM(t *testing.T) {
	svc, _ := newTestService(t)
	rom := makeROM("MEMTEST")
	if err := svc.LoadROM(rom, nil); err != nil {
		t.Fatalf("LoadROM() error = %v", err)
	}

	data, err := svc.GetMemory(vm.ROMBase+0xA0, 7)
	if err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}
	if string(data) != "MEMTEST" {
		t.Errorf("GetMemory() = %q, want %q", data, "MEMTEST")
	}
}
