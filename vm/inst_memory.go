package vm

import (
	"fmt"
)

// ExecuteLoadStore executes LDR/STR/LDRB/STRB and the halfword/signed-byte
// family (LDRH/STRH/LDRSH/LDRSB), per spec.md §4.4's addressing and
// misalignment rules.
func ExecuteLoadStore(vmachine *VM, inst *Instruction) (ExecInfo, error) {
	load := (inst.Opcode >> LBitShift) & Mask1Bit
	byteTransfer := (inst.Opcode >> BBitShift) & Mask1Bit
	writeBack := (inst.Opcode >> WBitShift) & Mask1Bit
	preIndexed := (inst.Opcode >> PBitShift) & Mask1Bit
	addOffset := (inst.Opcode >> UBitShift) & Mask1Bit

	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	rn := int((inst.Opcode >> RnShift) & Mask4Bit)

	baseAddr := vmachine.CPU.GetRegister(rn)

	bits27_25 := (inst.Opcode >> Bits27_25Shift) & Mask3Bit
	bit7 := (inst.Opcode >> Bit7Pos) & Mask1Bit
	bit4 := (inst.Opcode >> Bit4Pos) & Mask1Bit
	isHalfwordEncoding := bits27_25 == 0 && bit7 == 1 && bit4 == 1

	halfwordOp := (inst.Opcode >> 5) & Mask2Bit // SH bits for the halfword encoding: 01=H, 10=SB, 11=SH

	var offset uint32
	if isHalfwordEncoding {
		immediate := (inst.Opcode >> BBitShift) & Mask1Bit
		if immediate == 1 {
			offsetHigh := (inst.Opcode >> HalfwordHighShift) & HalfwordOffsetHighMask
			offsetLow := inst.Opcode & HalfwordOffsetLowMask
			offset = (offsetHigh << HalfwordLowShift) | offsetLow
		} else {
			rm := int(inst.Opcode & Mask4Bit)
			offset = vmachine.CPU.GetRegister(rm)
		}
	} else {
		immediate := ((inst.Opcode >> IBitShift) & Mask1Bit) == 0
		if immediate {
			offset = inst.Opcode & Offset12BitMask
		} else {
			rm := int(inst.Opcode & Mask4Bit)
			offsetReg := vmachine.CPU.GetRegister(rm)
			shiftType := ShiftType((inst.Opcode >> ShiftTypePos) & Mask2Bit)
			shiftAmount := int((inst.Opcode >> ShiftAmountPos) & Mask5Bit)
			offset = PerformShift(offsetReg, shiftAmount, shiftType, vmachine.CPU.CPSR.C, true)
		}
	}

	var effectiveAddr uint32
	if addOffset == 1 {
		effectiveAddr = baseAddr + offset
	} else {
		effectiveAddr = baseAddr - offset
	}

	var accessAddr uint32
	if preIndexed == 1 {
		accessAddr = effectiveAddr
	} else {
		accessAddr = baseAddr
	}

	// Post-indexed with W=1 forces user-bank register access for the
	// duration of this instruction (spec.md §4.4).
	forceUserBank := preIndexed == 0 && writeBack == 1
	accessMode := vmachine.CPU.CPSR.Mode
	if forceUserBank {
		accessMode = ModeUser
	}

	var cyclesExtra uint32

	if load == 1 {
		var value uint32
		switch {
		case isHalfwordEncoding && halfwordOp == 1: // LDRH
			raw, info := vmachine.Memory.Read16(accessAddr, false, false)
			if info.Fault != nil {
				return ExecInfo{CausedException: true}, fmt.Errorf("LDRH failed at 0x%08X: %w", accessAddr, info.Fault)
			}
			if accessAddr&1 != 0 {
				// Misaligned LDRH: read the aligned halfword, rotate by 8.
				value = uint32(raw>>8) | uint32(raw<<8)&0xFF00
			} else {
				value = uint32(raw)
			}
		case isHalfwordEncoding && halfwordOp == 2: // LDRSB
			raw, info := vmachine.Memory.Read8(accessAddr, false, false)
			if info.Fault != nil {
				return ExecInfo{CausedException: true}, fmt.Errorf("LDRSB failed at 0x%08X: %w", accessAddr, info.Fault)
			}
			value = uint32(int32(int8(raw)))
		case isHalfwordEncoding && halfwordOp == 3: // LDRSH (degrades to LDRSB on an odd address)
			if accessAddr&1 != 0 {
				raw, info := vmachine.Memory.Read8(accessAddr, false, false)
				if info.Fault != nil {
					return ExecInfo{CausedException: true}, fmt.Errorf("LDRSH(degraded) failed at 0x%08X: %w", accessAddr, info.Fault)
				}
				value = uint32(int32(int8(raw)))
			} else {
				raw, info := vmachine.Memory.Read16(accessAddr, false, false)
				if info.Fault != nil {
					return ExecInfo{CausedException: true}, fmt.Errorf("LDRSH failed at 0x%08X: %w", accessAddr, info.Fault)
				}
				value = uint32(int32(int16(raw)))
			}
		case byteTransfer == 1:
			raw, info := vmachine.Memory.Read8(accessAddr, false, false)
			if info.Fault != nil {
				return ExecInfo{CausedException: true}, fmt.Errorf("LDRB failed at 0x%08X: %w", accessAddr, info.Fault)
			}
			value = uint32(raw)
		default:
			raw, info := vmachine.Memory.Read32(accessAddr&^3, false, false)
			if info.Fault != nil {
				return ExecInfo{CausedException: true}, fmt.Errorf("LDR failed at 0x%08X: %w", accessAddr, info.Fault)
			}
			if accessAddr&3 != 0 {
				rot := (accessAddr & 3) * 8
				raw = (raw >> rot) | (raw << (32 - rot))
			}
			value = raw
		}

		if rd == PCRegister {
			vmachine.CPU.SetPC(value &^ 0x3)
			cyclesExtra = 2 // extra N+S for the pipeline refill (spec.md §4.4/§4.6)
		} else {
			vmachine.CPU.SetRegIn(accessMode, rd, value)
		}
	} else {
		var value uint32
		if rd == PCRegister {
			value = vmachine.CPU.GetPC() + PCStoreOffset
		} else {
			value = vmachine.CPU.RegIn(accessMode, rd)
		}

		var info AccessInfo
		switch {
		case isHalfwordEncoding:
			info = vmachine.Memory.Write16(accessAddr, uint16(value&HalfwordValueMask), false)
		case byteTransfer == 1:
			info = vmachine.Memory.Write8(accessAddr, uint8(value&ByteValueMask), false)
		default:
			info = vmachine.Memory.Write32(accessAddr&^3, value, false)
		}
		if info.Fault != nil {
			return ExecInfo{CausedException: true}, fmt.Errorf("store failed at 0x%08X: %w", accessAddr, info.Fault)
		}
	}

	// Writeback is suppressed when rn == rd on a load (the loaded value
	// already determines rn's new contents); post-indexed forms always
	// write back, pre-indexed forms only when W is set.
	writeBackSuppressed := load == 1 && rn == rd
	if !writeBackSuppressed && ((preIndexed == 1 && writeBack == 1) || preIndexed == 0) {
		if rn != PCRegister {
			vmachine.CPU.SetRegIn(accessMode, rn, effectiveAddr)
		}
	}

	info := normalExec()
	if cyclesExtra > 0 {
		info.AdditionalProgCyclesN = 1
		info.AdditionalProgCyclesS = 1
	}
	return info, nil
}

// ExecuteSwap executes SWP/SWPB: an atomic read-modify-write of memory
// (spec.md §4.4's single data swap contract).
func ExecuteSwap(vmachine *VM, inst *Instruction) (ExecInfo, error) {
	byteTransfer := (inst.Opcode >> BBitShift) & Mask1Bit
	rn := int((inst.Opcode >> RnShift) & Mask4Bit)
	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	rm := int(inst.Opcode & Mask4Bit)

	addr := vmachine.CPU.GetRegister(rn)
	newValue := vmachine.CPU.GetRegister(rm)

	if byteTransfer == 1 {
		old, info := vmachine.Memory.Read8(addr, false, false)
		if info.Fault != nil {
			return ExecInfo{CausedException: true}, fmt.Errorf("SWPB read failed at 0x%08X: %w", addr, info.Fault)
		}
		if info := vmachine.Memory.Write8(addr, uint8(newValue), false); info.Fault != nil {
			return ExecInfo{CausedException: true}, fmt.Errorf("SWPB write failed at 0x%08X: %w", addr, info.Fault)
		}
		vmachine.CPU.SetRegister(rd, uint32(old))
	} else {
		raw, info := vmachine.Memory.Read32(addr&^3, false, false)
		if info.Fault != nil {
			return ExecInfo{CausedException: true}, fmt.Errorf("SWP read failed at 0x%08X: %w", addr, info.Fault)
		}
		if addr&3 != 0 {
			rot := (addr & 3) * 8
			raw = (raw >> rot) | (raw << (32 - rot))
		}
		if info := vmachine.Memory.Write32(addr&^3, newValue, false); info.Fault != nil {
			return ExecInfo{CausedException: true}, fmt.Errorf("SWP write failed at 0x%08X: %w", addr, info.Fault)
		}
		vmachine.CPU.SetRegister(rd, raw)
	}

	return ExecInfo{CycleCount: 1, AdditionalProgCyclesN: 1}, nil
}
