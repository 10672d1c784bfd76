package vm

import (
	"fmt"
)

// multiplyMCycles returns the 'm' term of spec §4.4's multiply timing
// formula: the number of bytes of rs, counted from the top, needed before a
// byte is found whose bits are not all equal to the sign bit.
func multiplyMCycles(rs uint32) uint32 {
	signExtended := uint32(0)
	if rs&SignBitMask != 0 {
		signExtended = Mask32Bit
	}
	switch {
	case rs&0xFFFFFF00 == signExtended&0xFFFFFF00:
		return 1
	case rs&0xFFFF0000 == signExtended&0xFFFF0000:
		return 2
	case rs&0xFF000000 == signExtended&0xFF000000:
		return 3
	default:
		return 4
	}
}

// ExecuteMultiply executes MUL/MLA (32-bit result).
func ExecuteMultiply(vm *VM, inst *Instruction) (ExecInfo, error) {
	accumulate := (inst.Opcode >> MultiplyAShift) & Mask1Bit
	setFlags := inst.SetFlags

	rd := int((inst.Opcode >> RnShift) & Mask4Bit) // encoded in the Rn field for this format
	rn := int((inst.Opcode >> RdShift) & Mask4Bit) // accumulate operand, encoded in the Rd field
	rs := int((inst.Opcode >> RsShift) & Mask4Bit)
	rm := int(inst.Opcode & Mask4Bit)

	if rd == rm {
		return ExecInfo{CausedException: true}, fmt.Errorf("multiply: Rd and Rm must be different registers (Rd=%d, Rm=%d)", rd, rm)
	}
	if rd == PCRegister || rm == PCRegister || rs == PCRegister || (accumulate == 1 && rn == PCRegister) {
		return ExecInfo{CausedException: true}, fmt.Errorf("multiply: R15 (PC) cannot be used as an operand or destination")
	}

	op1 := vm.CPU.GetRegister(rm)
	op2 := vm.CPU.GetRegister(rs)

	result := op1 * op2
	if accumulate == 1 {
		result += vm.CPU.GetRegister(rn)
	}
	vm.CPU.SetRegister(rd, result)

	if setFlags {
		vm.CPU.CPSR.UpdateFlagsNZ(result)
	}

	cycles := uint32(1) + multiplyMCycles(op2)
	if accumulate == 1 {
		cycles++
	}
	return ExecInfo{CycleCount: cycles}, nil
}

// Long-multiply opcode field (bits 22-21 when bits 27-23 match 0b00001).
const (
	longMulUMULL = 0x0
	longMulUMLAL = 0x1
	longMulSMULL = 0x2
	longMulSMLAL = 0x3
)

// ExecuteLongMultiply executes UMULL/UMLAL/SMULL/SMLAL (64-bit result split
// across RdHi:RdLo).
func ExecuteLongMultiply(vm *VM, inst *Instruction) (ExecInfo, error) {
	opKind := (inst.Opcode >> 21) & Mask2Bit
	setFlags := inst.SetFlags

	rdHi := int((inst.Opcode >> RnShift) & Mask4Bit)
	rdLo := int((inst.Opcode >> RdShift) & Mask4Bit)
	rs := int((inst.Opcode >> RsShift) & Mask4Bit)
	rm := int(inst.Opcode & Mask4Bit)

	if rdHi == rdLo || rdHi == rm || rdLo == rm {
		return ExecInfo{CausedException: true}, fmt.Errorf("long multiply: RdHi, RdLo and Rm must all be different registers")
	}
	if rdHi == PCRegister || rdLo == PCRegister || rs == PCRegister || rm == PCRegister {
		return ExecInfo{CausedException: true}, fmt.Errorf("long multiply: R15 (PC) cannot be used as an operand or destination")
	}

	rmVal := vm.CPU.GetRegister(rm)
	rsVal := vm.CPU.GetRegister(rs)

	var resultHi, resultLo uint32
	switch opKind {
	case longMulUMULL, longMulUMLAL:
		product := uint64(rmVal) * uint64(rsVal)
		if opKind == longMulUMLAL {
			acc := uint64(vm.CPU.GetRegister(rdHi))<<32 | uint64(vm.CPU.GetRegister(rdLo))
			product += acc
		}
		resultHi, resultLo = uint32(product>>32), uint32(product)
	case longMulSMULL, longMulSMLAL:
		product := int64(int32(rmVal)) * int64(int32(rsVal))
		if opKind == longMulSMLAL {
			acc := int64(uint64(vm.CPU.GetRegister(rdHi))<<32 | uint64(vm.CPU.GetRegister(rdLo)))
			product += acc
		}
		u := uint64(product)
		resultHi, resultLo = uint32(u>>32), uint32(u)
	}

	vm.CPU.SetRegister(rdLo, resultLo)
	vm.CPU.SetRegister(rdHi, resultHi)

	if setFlags {
		vm.CPU.CPSR.N = resultHi&SignBitMask != 0
		vm.CPU.CPSR.Z = resultHi == 0 && resultLo == 0
	}

	cycles := uint32(1) + multiplyMCycles(rsVal)
	if opKind == longMulUMLAL || opKind == longMulSMLAL {
		cycles++
	}
	return ExecInfo{CycleCount: cycles}, nil
}
