package vm

// ============================================================================
// ARM/THUMB Instruction Encoding Architecture Constants
// ============================================================================
// These constants define the instruction encoding formats specified by the
// ARMv4T architecture. They are shared by the decoder and the disassembler.

// Instruction field bit positions (ARM, 32-bit word)
const (
	ConditionShift = 28 // Bits 31-28: condition code

	OpcodeShift = 21 // Bits 24-21: data-processing opcode field
	SBitShift   = 20 // Bit 20: S bit (set flags)
	RnShift     = 16 // Bits 19-16: Rn (first operand register)
	RdShift     = 12 // Bits 15-12: Rd (destination register)
	RsShift     = 8  // Bits 11-8: Rs (shift-amount register)

	PBitShift = 24 // Bit 24: P (pre/post indexing)
	UBitShift = 23 // Bit 23: U (up/down)
	BBitShift = 22 // Bit 22: B (byte/word)
	WBitShift = 21 // Bit 21: W (writeback / force-user)
	LBitShift = 20 // Bit 20: L (load/store)

	BranchLinkShift = 24 // Bit 24: L bit for BL
)

// ARM register numbers
const (
	ARMRegisterPC = 15
	ARMRegisterLR = 14
	ARMRegisterSP = 13
)

// CPSR control-bit positions, mirroring src/cpu/regs.hpp's cpsr_flags.
const (
	CPSRFlagN = 31
	CPSRFlagZ = 30
	CPSRFlagC = 29
	CPSRFlagV = 28

	CPSRFlagIRQDisable = 7
	CPSRFlagFIQDisable = 6
	CPSRFlagThumb      = 5

	CPSRModeMask = 0x1F
)

// Mode represents the CPSR mode field (M4-M0). Values match the architectural
// encoding so CPSR.FromUint32 can round-trip them directly.
type Mode uint32

const (
	ModeUser   Mode = 0x10
	ModeFIQ    Mode = 0x11
	ModeIRQ    Mode = 0x12
	ModeSVC    Mode = 0x13
	ModeAbort  Mode = 0x17
	ModeUndef  Mode = 0x1B
	ModeSystem Mode = 0x1F
)

// ValidMode reports whether m is one of the seven architected modes (the
// invariant in spec §3.1).
func ValidMode(m Mode) bool {
	switch m {
	case ModeUser, ModeFIQ, ModeIRQ, ModeSVC, ModeAbort, ModeUndef, ModeSystem:
		return true
	default:
		return false
	}
}

func (m Mode) String() string {
	switch m {
	case ModeUser:
		return "USR"
	case ModeFIQ:
		return "FIQ"
	case ModeIRQ:
		return "IRQ"
	case ModeSVC:
		return "SVC"
	case ModeAbort:
		return "ABT"
	case ModeUndef:
		return "UND"
	case ModeSystem:
		return "SYS"
	default:
		return "???"
	}
}

// HasSPSR reports whether mode m has a private SPSR (User and System alias
// SPSR to CPSR and have none, per spec §3.1).
func (m Mode) HasSPSR() bool {
	return m != ModeUser && m != ModeSystem
}
