// Package loader stands up a VM from a GBA ROM image, optionally paired with
// a BIOS image, instead of the teacher's assembly-source pipeline.
package loader

import (
	"fmt"
	"os"

	"github.com/lookbusy1344/arm-emulator/vm"
)

// Standard GBA cartridge header offsets (GBATEK "GBA Cartridge Header").
const (
	headerMinSize   = 0xC0
	headerEntryOff  = 0x00 // B instruction jumping to game code
	headerLogoOff   = 0x04
	headerTitleOff  = 0xA0
	headerTitleLen  = 12
	header96hOffset = 0xB2
	header96hValue  = 0x96

	// Without a BIOS image the loader seeds the machine in the post-boot
	// state the real BIOS would have left behind (GBATEK "BIOS Reset").
	userStackTop   = 0x03007F00
	irqStackTop    = 0x03007FA0
	supervisorTop  = 0x03007FE0
)

// ROM wraps a loaded cartridge image and its parsed header fields.
type ROM struct {
	Data  []byte
	Title string
}

// LoadROMFile reads a .gba image from disk.
func LoadROMFile(path string) (*ROM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ROM %s: %w", path, err)
	}
	return ParseROM(data)
}

// ParseROM validates and wraps a raw ROM image already in memory, e.g. one
// uploaded over the API rather than read from disk.
func ParseROM(data []byte) (*ROM, error) {
	if len(data) < headerMinSize {
		return nil, fmt.Errorf("ROM image too small: %d bytes, header needs at least %d", len(data), headerMinSize)
	}
	title := make([]byte, 0, headerTitleLen)
	for i := 0; i < headerTitleLen; i++ {
		b := data[headerTitleOff+i]
		if b == 0 {
			break
		}
		title = append(title, b)
	}
	return &ROM{Data: data, Title: string(title)}, nil
}

// LoadBIOSFile reads an optional BIOS image from disk. A missing path is not
// an error: the caller passes the nil image to LoadIntoVM, which then boots
// without a BIOS.
func LoadBIOSFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading BIOS %s: %w", path, err)
	}
	if len(data) > vm.BIOSSize {
		return nil, fmt.Errorf("BIOS image too large: %d bytes, max %d", len(data), vm.BIOSSize)
	}
	return data, nil
}

// LoadIntoVM maps rom (and bios, if non-nil) into machine's memory and
// arranges the entry point. With a BIOS image present, execution starts at
// the BIOS reset vector, the way real hardware boots; without one, the VM is
// seeded directly into the state the BIOS would have left behind and starts
// at the cartridge's entry point (GBATEK "BIOS Reset").
func LoadIntoVM(machine *vm.VM, mem *vm.FlatMemory, rom *ROM, bios []byte) error {
	mem.LoadROM(rom.Data)

	if len(bios) > 0 {
		mem.LoadBIOS(bios)
		machine.BIOSLoaded = true
		machine.SetEntryPoint(vm.BIOSBase, supervisorTop)
		return nil
	}

	seedUnbootedStacks(machine)
	machine.SetEntryPoint(vm.ROMBase, userStackTop)
	return nil
}

// seedUnbootedStacks mirrors the per-mode SP values the BIOS reset handler
// sets up before jumping to cartridge code, since LoadIntoVM's no-BIOS path
// skips that handler entirely.
func seedUnbootedStacks(machine *vm.VM) {
	machine.CPU.SetRegIn(vm.ModeIRQ, vm.SP, irqStackTop)
	machine.CPU.SetRegIn(vm.ModeSVC, vm.SP, supervisorTop)
	machine.CPU.SetRegIn(vm.ModeSystem, vm.SP, userStackTop)
	machine.CPU.CPSR.Mode = vm.ModeSystem
}
