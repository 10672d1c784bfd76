package loader

import (
	"testing"

	"github.com/lookbusy1344/arm-emulator/vm"
)

func makeROM(title string) []byte {
	data := make([]byte, headerMinSize)
	copy(data[headerTitleOff:], title)
	return data
}

func TestParseROMExtractsTitle(t *testing.T) {
	rom, err := ParseROM(makeROM("TESTGAME"))
	if err != nil {
		t.Fatalf("ParseROM() error = %v", err)
	}
	if rom.Title != "TESTGAME" {
		t.Errorf("Title = %q, want %q", rom.Title, "TESTGAME")
	}
}

func TestParseROMRejectsShortImage(t *testing.T) {
	_, err := ParseROM(make([]byte, headerMinSize-1))
	if err == nil {
		t.Fatal("ParseROM() with truncated header: want error, got nil")
	}
}

func TestLoadIntoVMWithoutBIOSEntersCartridgeEntryPoint(t *testing.T) {
	mem := vm.NewFlatMemory()
	machine := vm.NewVM(mem, nil)
	rom := &ROM{Data: makeROM("NOBIOS"), Title: "NOBIOS"}

	if err := LoadIntoVM(machine, mem, rom, nil); err != nil {
		t.Fatalf("LoadIntoVM() error = %v", err)
	}
	if got := machine.CPU.GetPC(); got != vm.ROMBase {
		t.Errorf("PC = %#x, want ROMBase %#x", got, vm.ROMBase)
	}
	if got := machine.CPU.GetSP(); got != userStackTop {
		t.Errorf("SP = %#x, want userStackTop %#x", got, userStackTop)
	}
	if machine.CPU.CPSR.Mode != vm.ModeSystem {
		t.Errorf("CPSR.Mode = %v, want ModeSystem", machine.CPU.CPSR.Mode)
	}
}

func TestLoadIntoVMWithBIOSEntersResetVector(t *testing.T) {
	mem := vm.NewFlatMemory()
	machine := vm.NewVM(mem, nil)
	rom := &ROM{Data: makeROM("WITHBIOS"), Title: "WITHBIOS"}
	bios := make([]byte, 0x100)

	if err := LoadIntoVM(machine, mem, rom, bios); err != nil {
		t.Fatalf("LoadIntoVM() error = %v", err)
	}
	if got := machine.CPU.GetPC(); got != vm.BIOSBase {
		t.Errorf("PC = %#x, want BIOSBase %#x", got, vm.BIOSBase)
	}
	if got := machine.CPU.GetSP(); got != supervisorTop {
		t.Errorf("SP = %#x, want supervisorTop %#x", got, supervisorTop)
	}
}
