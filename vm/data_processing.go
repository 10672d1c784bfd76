package vm

import (
	"fmt"
)

// Data processing operation codes
const (
	OpAND = 0x0 // AND - Bitwise AND
	OpEOR = 0x1 // EOR - Bitwise Exclusive OR
	OpSUB = 0x2 // SUB - Subtract
	OpRSB = 0x3 // RSB - Reverse Subtract
	OpADD = 0x4 // ADD - Add
	OpADC = 0x5 // ADC - Add with Carry
	OpSBC = 0x6 // SBC - Subtract with Carry
	OpRSC = 0x7 // RSC - Reverse Subtract with Carry
	OpTST = 0x8 // TST - Test (AND without storing result)
	OpTEQ = 0x9 // TEQ - Test Equivalence (EOR without storing result)
	OpCMP = 0xA // CMP - Compare (SUB without storing result)
	OpCMN = 0xB // CMN - Compare Negative (ADD without storing result)
	OpORR = 0xC // ORR - Bitwise OR
	OpMOV = 0xD // MOV - Move
	OpBIC = 0xE // BIC - Bit Clear
	OpMVN = 0xF // MVN - Move Not
)

func isLogicalOp(opcode uint32) bool {
	switch opcode {
	case OpAND, OpEOR, OpTST, OpTEQ, OpORR, OpMOV, OpBIC, OpMVN:
		return true
	default:
		return false
	}
}

// operandPC returns the value R15 contributes as an ARM data-processing
// operand. Normally this is PC+8 (the pipeline offset of spec §3.3), but
// when the second operand's shift amount comes from a register (Rs) the
// extra internal cycle spent reading Rs pushes the visible PC one word
// further ahead, per spec §4.4 item 2.
func operandPC(vm *VM, shiftByReg bool) uint32 {
	if shiftByReg {
		return vm.CPU.GetPC() + 12
	}
	return vm.CPU.GetPC() + 8
}

// ExecuteDataProcessing executes an ARM data-processing instruction.
func ExecuteDataProcessing(vm *VM, inst *Instruction) (ExecInfo, error) {
	opcode := (inst.Opcode >> OpcodeShift) & Mask4Bit
	immediate := (inst.Opcode >> 25) & Mask1Bit
	setFlags := inst.SetFlags

	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	rn := int((inst.Opcode >> RnShift) & Mask4Bit)

	var op2 uint32
	var shiftCarry bool
	var lslZeroShift bool // LSL#0: carry is left untouched even though op is "logical"
	shiftByReg := immediate == 0 && (inst.Opcode>>4)&Mask1Bit != 0

	if immediate == 1 {
		imm := inst.Opcode & ImmediateValueMask
		rotation := ((inst.Opcode >> RotationShift) & RotationMask) * RotationMultiplier
		if rotation == 0 {
			op2 = imm
			shiftCarry = vm.CPU.CPSR.C
		} else {
			op2 = (imm >> rotation) | (imm << (BitsInWord - rotation))
			shiftCarry = (op2 & SignBitMask) != 0
		}
	} else {
		rm := int(inst.Opcode & Mask4Bit)
		var op2Value uint32
		if rm == PCRegister {
			op2Value = operandPC(vm, shiftByReg)
		} else {
			op2Value = vm.CPU.GetRegister(rm)
		}

		shiftType := ShiftType((inst.Opcode >> 5) & 0x3)

		var shiftAmount int
		shiftByImmediate := !shiftByReg
		if shiftByReg {
			rs := int((inst.Opcode >> RsShift) & Mask4Bit)
			shiftAmount = int(vm.CPU.GetRegister(rs) & 0xFF)
		} else {
			shiftAmount = int((inst.Opcode >> 7) & 0x1F)
			if shiftType == ShiftROR && shiftAmount == 0 {
				shiftType = ShiftRRX
			}
			lslZeroShift = shiftType == ShiftLSL && shiftAmount == 0
		}

		shiftCarry = CalculateShiftCarry(op2Value, shiftAmount, shiftType, vm.CPU.CPSR.C, shiftByImmediate)
		op2 = PerformShift(op2Value, shiftAmount, shiftType, vm.CPU.CPSR.C, shiftByImmediate)
	}

	var op1 uint32
	if rn == PCRegister {
		op1 = operandPC(vm, shiftByReg)
	} else {
		op1 = vm.CPU.GetRegister(rn)
	}

	var result uint32
	var carry, overflow bool
	writeResult := true
	updateFlags := setFlags

	switch opcode {
	case OpAND:
		result = op1 & op2
		carry = shiftCarry
	case OpEOR:
		result = op1 ^ op2
		carry = shiftCarry
	case OpSUB:
		result = op1 - op2
		carry = CalculateSubCarry(op1, op2)
		overflow = CalculateSubOverflow(op1, op2, result)
	case OpRSB:
		result = op2 - op1
		carry = CalculateSubCarry(op2, op1)
		overflow = CalculateSubOverflow(op2, op1, result)
	case OpADD:
		result = op1 + op2
		carry = CalculateAddCarry(op1, op2, result)
		overflow = CalculateAddOverflow(op1, op2, result)
	case OpADC:
		carryIn := uint32(0)
		if vm.CPU.CPSR.C {
			carryIn = 1
		}
		result = op1 + op2 + carryIn
		temp := op1 + op2
		carry = CalculateAddCarry(op1, op2, temp) || CalculateAddCarry(temp, carryIn, result)
		overflow = CalculateAddOverflow(op1, op2, result)
	case OpSBC:
		carryIn := uint32(1)
		if !vm.CPU.CPSR.C {
			carryIn = 0
		}
		result = op1 - op2 - (1 - carryIn)
		carry = CalculateSubCarry(op1, op2+1-carryIn)
		overflow = CalculateSubOverflow(op1, op2+(1-carryIn), result)
	case OpRSC:
		carryIn := uint32(1)
		if !vm.CPU.CPSR.C {
			carryIn = 0
		}
		result = op2 - op1 - (1 - carryIn)
		carry = CalculateSubCarry(op2, op1+1-carryIn)
		overflow = CalculateSubOverflow(op2, op1+(1-carryIn), result)
	case OpTST:
		result = op1 & op2
		carry = shiftCarry
		writeResult = false
		updateFlags = true
	case OpTEQ:
		result = op1 ^ op2
		carry = shiftCarry
		writeResult = false
		updateFlags = true
	case OpCMP:
		result = op1 - op2
		carry = CalculateSubCarry(op1, op2)
		overflow = CalculateSubOverflow(op1, op2, result)
		writeResult = false
		updateFlags = true
	case OpCMN:
		result = op1 + op2
		carry = CalculateAddCarry(op1, op2, result)
		overflow = CalculateAddOverflow(op1, op2, result)
		writeResult = false
		updateFlags = true
	case OpORR:
		result = op1 | op2
		carry = shiftCarry
	case OpMOV:
		result = op2
		carry = shiftCarry
	case OpBIC:
		result = op1 & ^op2
		carry = shiftCarry
	case OpMVN:
		result = ^op2
		carry = shiftCarry
	default:
		return ExecInfo{CausedException: true}, fmt.Errorf("unknown data processing opcode: 0x%X", opcode)
	}

	// spec §4.4 item 6: S set, Rd=R15, and the instruction actually writes
	// Rd (not a compare/test) restores CPSR from SPSR instead of the normal
	// flag update — the "move PC and flags" return-from-exception idiom.
	restoresSPSR := setFlags && rd == PCRegister && writeResult

	if writeResult {
		vm.CPU.SetRegister(rd, result)
	}

	if restoresSPSR {
		vm.CPU.RestoreCPSR()
	} else if updateFlags {
		if isLogicalOp(opcode) {
			if lslZeroShift {
				vm.CPU.CPSR.UpdateFlagsNZ(result)
			} else {
				vm.CPU.CPSR.UpdateFlagsNZC(result, carry)
			}
		} else {
			vm.CPU.CPSR.UpdateFlagsNZCV(result, carry, overflow)
		}
	}

	info := normalExec()
	if writeResult && rd == PCRegister {
		info.AdditionalProgCyclesN = 1
		info.AdditionalProgCyclesS = 1
	}
	return info, nil
}
