// Package disasm renders ARM and THUMB opcodes as assembly mnemonics for the
// debugger and the remote-inspection API. It shares its instruction field
// layout with vm/arch_constants.go: decoding an opcode into a class here uses
// the same bit positions the executor uses to decode it into behavior.
package disasm

import (
	"fmt"

	"github.com/lookbusy1344/arm-emulator/vm"
)

var dataProcMnemonics = [16]string{
	"AND", "EOR", "SUB", "RSB", "ADD", "ADC", "SBC", "RSC",
	"TST", "TEQ", "CMP", "CMN", "ORR", "MOV", "BIC", "MVN",
}

// testOnly reports whether a data-processing opcode never writes Rd (TST,
// TEQ, CMP, CMN), matching vm/data_processing.go's own classification.
func testOnly(op uint32) bool {
	switch op {
	case 0x8, 0x9, 0xA, 0xB:
		return true
	default:
		return false
	}
}

// moveOnly reports whether a data-processing opcode ignores Rn (MOV, MVN).
func moveOnly(op uint32) bool {
	return op == 0xD || op == 0xF
}

// Line formats a single decoded instruction the way service.DisassemblyLine's
// Mnemonic (copied into the API's InstructionInfo.Disassembly) carries it:
// condition suffix applied, operands rendered in GNU ARM assembler order.
func Line(addr uint32, opcode uint32, thumb bool) string {
	if thumb {
		return thumbLine(addr, uint16(opcode))
	}
	return armLine(addr, opcode)
}

func armLine(addr, word uint32) string {
	cond := vm.ConditionCode((word >> vm.ConditionShift) & 0xF)
	condStr := condSuffix(cond)

	switch {
	case word&0x0FFFFFF0 == 0x012FFF10:
		rm := word & 0xF
		return fmt.Sprintf("BX%s r%d", condStr, rm)

	case word&0x0F000000 == 0x0F000000:
		return fmt.Sprintf("SWI%s 0x%06X", condStr, word&0x00FFFFFF)

	case word&0x0E000000 == 0x0A000000:
		link := (word>>vm.BranchLinkShift)&1 != 0
		offset := int32(word&0x00FFFFFF) << 8 >> 8 // sign-extend 24-bit
		target := addr + 8 + uint32(offset*4)
		mnemonic := "B"
		if link {
			mnemonic = "BL"
		}
		return fmt.Sprintf("%s%s 0x%08X", mnemonic, condStr, target)

	case word&0x0FC000F0 == 0x00000090:
		rd := (word >> vm.RnShift) & 0xF
		rm := word & 0xF
		rs := (word >> vm.RsShift) & 0xF
		return fmt.Sprintf("MUL%s r%d, r%d, r%d", condStr, rd, rm, rs)

	case word&0x0E000090 == 0x00000090 && word&0x60 != 0:
		rd := (word >> vm.RdShift) & 0xF
		rn := (word >> vm.RnShift) & 0xF
		load := (word>>vm.LBitShift)&1 != 0
		mnemonic := "STRH"
		if load {
			mnemonic = "LDRH"
		}
		return fmt.Sprintf("%s%s r%d, [r%d]", mnemonic, condStr, rd, rn)

	case word&0x0C000000 == 0x04000000:
		rd := (word >> vm.RdShift) & 0xF
		rn := (word >> vm.RnShift) & 0xF
		load := (word>>vm.LBitShift)&1 != 0
		byteAccess := (word>>vm.BBitShift)&1 != 0
		mnemonic := "STR"
		if load {
			mnemonic = "LDR"
		}
		if byteAccess {
			mnemonic += "B"
		}
		return fmt.Sprintf("%s%s r%d, [r%d]", mnemonic, condStr, rd, rn)

	case word&0x0E000000 == 0x08000000:
		rn := (word >> vm.RnShift) & 0xF
		load := (word>>vm.LBitShift)&1 != 0
		mnemonic := "STM"
		if load {
			mnemonic = "LDM"
		}
		return fmt.Sprintf("%s%s r%d, {0x%04X}", mnemonic, condStr, rn, word&0xFFFF)

	case word&0x0C000000 == 0x00000000:
		op := (word >> vm.OpcodeShift) & 0xF
		rd := (word >> vm.RdShift) & 0xF
		rn := (word >> vm.RnShift) & 0xF
		mnemonic := dataProcMnemonics[op]
		setFlags := ""
		if (word>>vm.SBitShift)&1 != 0 && !testOnly(op) {
			setFlags = "S"
		}
		switch {
		case testOnly(op):
			return fmt.Sprintf("%s%s r%d, #...", mnemonic, condStr, rn)
		case moveOnly(op):
			return fmt.Sprintf("%s%s%s r%d, #...", mnemonic, setFlags, condStr, rd)
		default:
			return fmt.Sprintf("%s%s%s r%d, r%d, #...", mnemonic, setFlags, condStr, rd, rn)
		}

	default:
		return fmt.Sprintf(".word 0x%08X", word)
	}
}

func condSuffix(cond vm.ConditionCode) string {
	// ConditionAlways (0xE) renders unconditional mnemonics bare, matching
	// GNU ARM assembler convention.
	if cond == 0xE {
		return ""
	}
	return cond.String()
}

func thumbLine(addr uint32, word uint16) string {
	switch {
	case word&0xF800 == 0x1800:
		rd := word & 0x7
		rn := (word >> 3) & 0x7
		sub := (word>>9)&1 != 0
		mnemonic := "ADD"
		if sub {
			mnemonic = "SUB"
		}
		return fmt.Sprintf("%s r%d, r%d, ...", mnemonic, rd, rn)

	case word&0xE000 == 0x2000:
		op := (word >> 11) & 0x3
		rd := (word >> 8) & 0x7
		imm := word & 0xFF
		mnemonics := [4]string{"MOV", "CMP", "ADD", "SUB"}
		return fmt.Sprintf("%s r%d, #0x%02X", mnemonics[op], rd, imm)

	case word&0xFC00 == 0x4000:
		op := (word >> 6) & 0xF
		rd := word & 0x7
		rm := (word >> 3) & 0x7
		names := [16]string{"AND", "EOR", "LSL", "LSR", "ASR", "ADC", "SBC", "ROR",
			"TST", "NEG", "CMP", "CMN", "ORR", "MUL", "BIC", "MVN"}
		return fmt.Sprintf("%s r%d, r%d", names[op], rd, rm)

	case word&0xFF00 == 0xDF00:
		return fmt.Sprintf("SWI 0x%02X", word&0xFF)

	case word&0xF000 == 0xD000:
		cond := vm.ConditionCode((word >> 8) & 0xF)
		offset := int32(int8(word & 0xFF))
		target := addr + 4 + uint32(offset*2)
		return fmt.Sprintf("B%s 0x%08X", cond.String(), target)

	case word&0xF800 == 0xE000:
		offset := int32(word&0x7FF) << 21 >> 21
		target := addr + 4 + uint32(offset*2)
		return fmt.Sprintf("B 0x%08X", target)

	case word&0xF800 == 0xF000, word&0xF800 == 0xF800:
		return fmt.Sprintf("BL 0x%08X (half 0x%04X)", addr, word)

	case word&0xFF00 == 0x4700, word&0xFF00 == 0x4780:
		rm := (word >> 3) & 0xF
		return fmt.Sprintf("BX r%d", rm)

	case word&0xF600 == 0xB400:
		pop := (word>>11)&1 != 0
		mnemonic := "PUSH"
		if pop {
			mnemonic = "POP"
		}
		return fmt.Sprintf("%s {0x%02X}", mnemonic, word&0xFF)

	case word&0xF000 == 0x6000, word&0xF000 == 0x7000, word&0xF000 == 0x8000:
		rd := word & 0x7
		rn := (word >> 3) & 0x7
		load := (word>>11)&1 != 0
		mnemonic := "STR"
		if load {
			mnemonic = "LDR"
		}
		return fmt.Sprintf("%s r%d, [r%d, #...]", mnemonic, rd, rn)

	case word&0xF800 == 0x4800:
		rd := (word >> 8) & 0x7
		return fmt.Sprintf("LDR r%d, [pc, #0x%02X]", rd, (word&0xFF)*4)

	default:
		return fmt.Sprintf(".hword 0x%04X", word)
	}
}
