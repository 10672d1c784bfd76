package vm

import (
	"fmt"
)

// ExecuteLoadStoreMultiple executes LDM/STM. Per spec.md §4.4's block data
// transfer contract: registers are always transferred in increasing index
// order (the addressing mode only affects which physical address that
// lowest-indexed register lands at), the S bit means two different things
// depending on whether R15 is being loaded, and writeback of the base
// register follows a load-vs-store-specific rule when the base is itself in
// the list.
func ExecuteLoadStoreMultiple(vm *VM, inst *Instruction) (ExecInfo, error) {
	load := (inst.Opcode >> LBitShift) & Mask1Bit
	writeBack := (inst.Opcode >> WBitShift) & Mask1Bit
	sBit := (inst.Opcode >> BBitShift) & Mask1Bit // bit 22, reused as S for this format
	increment := (inst.Opcode >> UBitShift) & Mask1Bit
	preIndex := (inst.Opcode >> PBitShift) & Mask1Bit

	rn := int((inst.Opcode >> RnShift) & Mask4Bit)
	regList := inst.Opcode & RegisterListMask

	baseAddr := vm.CPU.GetRegister(rn)

	var regs []int
	for i := 0; i < 16; i++ {
		if regList&(1<<uint(i)) != 0 {
			regs = append(regs, i)
		}
	}

	pcInList := regList&(1<<PCRegister) != 0
	userBankTransfer := sBit == 1 && !(load == 1 && pcInList)

	if len(regs) == 0 {
		// Empty list: R15 only, base steps by +-0x40 (spec.md §4.4).
		if load == 1 {
			value, info := vm.Memory.Read32(baseAddr, false, false)
			if info.Fault != nil {
				return ExecInfo{CausedException: true}, fmt.Errorf("LDM empty-list load failed at 0x%08X: %w", baseAddr, info.Fault)
			}
			vm.CPU.SetPC(value &^ 0x3)
		} else {
			info := vm.Memory.Write32(baseAddr, vm.CPU.GetPC()+PCStoreOffset, false)
			if info.Fault != nil {
				return ExecInfo{CausedException: true}, fmt.Errorf("STM empty-list store failed at 0x%08X: %w", baseAddr, info.Fault)
			}
		}
		if increment == 1 {
			vm.CPU.SetRegister(rn, baseAddr+0x40)
		} else {
			vm.CPU.SetRegister(rn, baseAddr-0x40)
		}
		info := normalExec()
		if load == 1 {
			info.AdditionalProgCyclesN = 1
			info.AdditionalProgCyclesS = 1
		}
		return info, nil
	}

	regOffset := uint32(len(regs) * 4)
	var lowestAddr uint32
	if increment == 1 {
		lowestAddr = baseAddr
	} else {
		lowestAddr = baseAddr - regOffset
	}
	if preIndex == 1 {
		lowestAddr += 4
	}

	var newBase uint32
	if increment == 1 {
		newBase = baseAddr + regOffset
	} else {
		newBase = baseAddr - regOffset
	}

	transferMode := vm.CPU.CPSR.Mode
	if userBankTransfer {
		transferMode = ModeUser
	}

	addr := lowestAddr
	for idx, reg := range regs {
		seq := idx != 0
		switch {
		case load == 1:
			value, info := vm.Memory.Read32(addr, seq, false)
			if info.Fault != nil {
				return ExecInfo{CausedException: true}, fmt.Errorf("LDM failed at 0x%08X: %w", addr, info.Fault)
			}
			if reg == PCRegister {
				vm.CPU.SetPC(value)
			} else {
				vm.CPU.SetRegIn(transferMode, reg, value)
			}
		default:
			var value uint32
			if reg == PCRegister {
				value = vm.CPU.GetPC() + PCStoreOffset
			} else if reg == rn {
				// STM storing the base: original value if it's the lowest-indexed
				// register in the list, else the writeback-final value.
				if reg == regs[0] {
					value = baseAddr
				} else {
					value = newBase
				}
			} else {
				value = vm.CPU.RegIn(transferMode, reg)
			}
			info := vm.Memory.Write32(addr, value, seq)
			if info.Fault != nil {
				return ExecInfo{CausedException: true}, fmt.Errorf("STM failed at 0x%08X: %w", addr, info.Fault)
			}
		}
		addr += 4
	}

	// Writeback: for LDM, a loaded base value wins over this; since the base
	// is only overwritten here when it was NOT in the list (the in-list case
	// already set it via SetPC/SetRegIn above), this is safe to apply
	// unconditionally when rn was not loaded.
	if writeBack == 1 {
		baseWasLoaded := load == 1 && regList&(1<<uint(rn)) != 0
		if !baseWasLoaded {
			vm.CPU.SetRegister(rn, newBase)
		}
	}

	if sBit == 1 && load == 1 && pcInList {
		vm.CPU.RestoreCPSR()
	}

	info := normalExec()
	if load == 1 {
		info.AdditionalProgCyclesN = 1
		if pcInList {
			info.AdditionalProgCyclesS = 1
		}
	}
	return info, nil
}
