package vm

// Register aliases, unchanged from the plain numeric indices used throughout
// the decoder and execution engine.
const (
	R0  = 0
	R1  = 1
	R2  = 2
	R3  = 3
	R4  = 4
	R5  = 5
	R6  = 6
	R7  = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	SP  = 13 // Stack Pointer
	LR  = 14 // Link Register
	PC  = 15 // Program Counter
)

// bank identifies one of the six physical register banks described in
// spec §3.1. User and System modes share bankCommon.
type bank int

const (
	bankCommon bank = iota
	bankFIQ
	bankIRQ
	bankSVC
	bankAbort
	bankUndef
	bankCount
)

func bankFor(m Mode) bank {
	switch m {
	case ModeFIQ:
		return bankFIQ
	case ModeIRQ:
		return bankIRQ
	case ModeSVC:
		return bankSVC
	case ModeAbort:
		return bankAbort
	case ModeUndef:
		return bankUndef
	default: // ModeUser, ModeSystem, and any value already guarded by ValidMode
		return bankCommon
	}
}

// midBank selects which R8-R12 bank a mode uses: only FIQ has its own,
// every other mode (including IRQ/SVC/ABT/UND) shares the common one.
func midBank(m Mode) int {
	if m == ModeFIQ {
		return 1
	}
	return 0
}

// CPU is the complete ARM7TDMI programmer's model: the banked register file,
// CPSR and cycle counter. The visible effect of the three-stage pipeline
// (operands reading PC as the current instruction's address +8 in ARM state,
// +4 in THUMB) is modeled directly by GetRegister rather than by staging
// fetch/decode/execute across separate Step calls; executor.go's Step drives
// the actual fetch/decode/execute/refill sequence each call.
//
// This is the "sole source of truth" register file named in spec §3.1: every
// execution handler reads and writes registers only through Reg/SetReg (for
// the current mode) or RegIn/SetRegIn (for a specific mode, used by the
// force-user-bank addressing modes and the debugger).
type CPU struct {
	low [8]uint32       // R0-R7, never banked
	mid [2][5]uint32    // R8-R12: [0]=shared by all non-FIQ modes, [1]=FIQ
	hi  [bankCount][2]uint32 // R13,R14 per bank
	pc  uint32

	CPSR CPSR
	spsr [bankCount]CPSR // SPSR per bank; bankCommon slot is unused (User/System alias to CPSR)

	Cycles uint64
}

// NewCPU creates a CPU with all registers zeroed and CPSR in System mode,
// ARM state, interrupts disabled — a reasonable reset vector default; the
// loader overrides mode/PC/SP once a ROM (and optional BIOS) is in place.
func NewCPU() *CPU {
	c := &CPU{}
	c.Reset()
	return c
}

// Reset clears all banks, flags and the cycle counter.
func (c *CPU) Reset() {
	c.low = [8]uint32{}
	c.mid = [2][5]uint32{}
	c.hi = [bankCount][2]uint32{}
	c.pc = 0
	c.CPSR = CPSR{Mode: ModeSystem, I: true, F: true}
	c.spsr = [bankCount]CPSR{}
	c.Cycles = 0
}

// Reg returns the value of logical register i (0-15) as seen by the CPU's
// current mode. Reading R15 returns the raw PC; callers needing the
// pipelined "PC+8/PC+4" operand value use GetRegister instead.
func (c *CPU) Reg(i int) uint32 {
	return c.RegIn(c.CPSR.Mode, i)
}

// RegIn returns logical register i as banked for an explicit mode, the
// primitive the force-user-bank addressing modes and LDM/STM^ use.
func (c *CPU) RegIn(m Mode, i int) uint32 {
	switch {
	case i < 8:
		return c.low[i]
	case i < 13:
		return c.mid[midBank(m)][i-8]
	case i == SP || i == LR:
		return c.hi[bankFor(m)][i-SP]
	case i == PC:
		return c.pc
	default:
		return 0
	}
}

// SetReg writes logical register i under the CPU's current mode.
func (c *CPU) SetReg(i int, v uint32) {
	c.SetRegIn(c.CPSR.Mode, i, v)
}

// SetRegIn writes logical register i under an explicit mode's bank.
func (c *CPU) SetRegIn(m Mode, i int, v uint32) {
	switch {
	case i < 8:
		c.low[i] = v
	case i < 13:
		c.mid[midBank(m)][i-8] = v
	case i == SP || i == LR:
		c.hi[bankFor(m)][i-SP] = v
	case i == PC:
		c.pc = v
	}
}

// GetRegister returns a register's value the way an instruction operand
// sees it: R15 reads as PC + 8 in ARM state or PC + 4 in THUMB state (the
// pipeline offset of spec §3.3); every other register reads as-is.
func (c *CPU) GetRegister(reg int) uint32 {
	if reg == PC {
		if c.CPSR.T {
			return c.pc + 4
		}
		return c.pc + 8
	}
	return c.Reg(reg)
}

// SetRegister writes a register. Writing R15 sets PC directly; pipeline
// refill on a PC write is Step's responsibility (executor.go), not this
// setter's.
func (c *CPU) SetRegister(reg int, value uint32) {
	c.SetReg(reg, value)
}

// GetPC returns the raw program counter (no pipeline offset).
func (c *CPU) GetPC() uint32 { return c.pc }

// SetPC sets the raw program counter.
func (c *CPU) SetPC(v uint32) { c.pc = v }

// GetSP returns the stack pointer for the current mode.
func (c *CPU) GetSP() uint32 { return c.Reg(SP) }

// SetSP sets the stack pointer for the current mode.
func (c *CPU) SetSP(value uint32) { c.SetReg(SP, value) }

// GetLR returns the link register for the current mode.
func (c *CPU) GetLR() uint32 { return c.Reg(LR) }

// SetLR sets the link register for the current mode.
func (c *CPU) SetLR(value uint32) { c.SetReg(LR, value) }

// SPSR returns a pointer to the current mode's saved program status
// register, or nil in User/System mode (which have none, per spec §3.1).
func (c *CPU) SPSR() *CPSR {
	if !c.CPSR.Mode.HasSPSR() {
		return nil
	}
	return &c.spsr[bankFor(c.CPSR.Mode)]
}

// IncrementCycles advances the cycle counter.
func (c *CPU) IncrementCycles(cycles uint64) {
	c.Cycles += cycles
}
