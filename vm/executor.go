package vm

import (
	"fmt"
)

// InstructionType tags which ARM category a decoded instruction belongs to;
// THUMB instructions carry InstThumb and are re-decoded by format inside
// ExecuteThumb (thumb.go), since THUMB's sixteen formats are each compact
// enough that a parallel struct-of-fields decode would only add a layer.
type InstructionType int

const (
	InstUnknown InstructionType = iota
	InstDataProcessing
	InstPSRTransfer
	InstMultiply
	InstLongMultiply
	InstSwap
	InstLoadStore
	InstLoadStoreMultiple
	InstBranch
	InstBranchExchange
	InstSWI
	InstThumb
)

func (t InstructionType) String() string {
	names := [...]string{
		"UNKNOWN", "DATA_PROCESSING", "PSR_TRANSFER", "MULTIPLY", "LONG_MULTIPLY",
		"SWAP", "LOAD_STORE", "LOAD_STORE_MULTIPLE", "BRANCH", "BRANCH_EXCHANGE",
		"SWI", "THUMB",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "???"
}

// Instruction is the decoder's output, spec §3.4's "decoded instruction"
// record. For THUMB, Opcode holds the raw 16-bit word zero-extended into
// the low half and Condition/SetFlags are unused (THUMB ALU ops always set
// flags except the high-register forms, which ExecuteThumb handles itself).
type Instruction struct {
	Address   uint32
	Opcode    uint32
	Type      InstructionType
	Condition ConditionCode
	SetFlags  bool
	IsThumb   bool
}

// VM ties together the register file, memory and interrupt controller, and
// drives the fetch/decode/execute/refill loop of spec §4.6.
type VM struct {
	CPU        *CPU
	Memory     Memory
	Interrupts InterruptController

	State PipelineState

	// Halted/HaltMask persist across Step() calls: a cooperative halt
	// (SWI Halt/IntrWait/VBlankIntrWait) lasts until the interrupt
	// controller reports the wait mask satisfied.
	Halted   bool
	HaltMask uint16

	// Stall is the number of cycles still owed from the last instruction's
	// CycleCount, per the RUNNING/STALLED split of spec §4.6.
	Stall uint32

	MaxCycles  uint64
	CycleLimit bool // true once MaxCycles has been reached, so Run() stops cleanly

	InstructionLog []Instruction // bounded ring of recently executed instructions, for the debugger

	LastError error

	EntryPoint uint32
	StackTop   uint32

	// BIOSLoaded is set by the loader once a real BIOS image has been
	// installed. ExecuteSWI (syscall.go) consults it to decide whether
	// CpuSet/CpuFastSet delegate to that image or fall back to an
	// internally-modeled block copy.
	BIOSLoaded bool
}

// NewVM builds a VM with a fresh CPU and the given memory/interrupt
// collaborators. A nil controller is replaced with NullInterruptController
// so standalone use (unit tests, a bare CLI) never needs one.
func NewVM(mem Memory, interrupts InterruptController) *VM {
	if interrupts == nil {
		interrupts = NullInterruptController{}
	}
	return &VM{
		CPU:            NewCPU(),
		Memory:         mem,
		Interrupts:     interrupts,
		State:          PipelineRunning,
		MaxCycles:      DefaultMaxCycles,
		InstructionLog: make([]Instruction, 0, DefaultLogCapacity),
	}
}

// Reset returns the CPU and driver state to their post-construction values;
// memory contents are untouched (the loader owns re-installing a ROM).
func (vm *VM) Reset() {
	vm.CPU.Reset()
	vm.State = PipelineRunning
	vm.Halted = false
	vm.HaltMask = 0
	vm.Stall = 0
	vm.CycleLimit = false
	vm.LastError = nil
	vm.InstructionLog = vm.InstructionLog[:0]
}

// SetEntryPoint sets PC and records EntryPoint/StackTop for DumpState and a
// debugger's "restart" command.
func (vm *VM) SetEntryPoint(pc, sp uint32) {
	vm.EntryPoint = pc
	vm.StackTop = sp
	vm.CPU.SetPC(pc)
	vm.CPU.SetSP(sp)
}

// logInstruction appends to the bounded instruction history, discarding the
// oldest entry once DefaultLogCapacity is reached.
func (vm *VM) logInstruction(inst Instruction) {
	if len(vm.InstructionLog) >= DefaultLogCapacity {
		copy(vm.InstructionLog, vm.InstructionLog[1:])
		vm.InstructionLog = vm.InstructionLog[:len(vm.InstructionLog)-1]
	}
	vm.InstructionLog = append(vm.InstructionLog, inst)
}

// Fetch reads the next instruction word at the current PC, ARM or THUMB
// depending on CPSR.T, and decodes it.
func (vm *VM) Fetch() (*Instruction, error) {
	pc := vm.CPU.GetPC()
	if vm.CPU.CPSR.T {
		word, info := vm.Memory.Read16(pc, false, true)
		if info.Fault != nil {
			return nil, fmt.Errorf("instruction fetch failed at 0x%08X: %w", pc, info.Fault)
		}
		return decodeThumb(pc, word), nil
	}
	word, info := vm.Memory.Read32(pc&^3, false, true)
	if info.Fault != nil {
		return nil, fmt.Errorf("instruction fetch failed at 0x%08X: %w", pc, info.Fault)
	}
	return decodeARM(pc, word), nil
}

func decodeThumb(addr uint32, word uint16) *Instruction {
	return &Instruction{
		Address: addr,
		Opcode:  uint32(word),
		Type:    InstThumb,
		IsThumb: true,
	}
}

// decodeARM classifies a 32-bit ARM word by the fixed pattern order of
// spec.md §4.3: narrower patterns (multiply family, swap, halfword
// transfer, branch exchange) are tested before the broader data-processing
// and load/store catch-alls they'd otherwise be mistaken for.
func decodeARM(addr uint32, word uint32) *Instruction {
	inst := &Instruction{
		Address:   addr,
		Opcode:    word,
		Condition: ConditionCode((word >> ConditionShift) & Mask4Bit),
		SetFlags:  (word>>SBitShift)&Mask1Bit != 0,
	}

	switch {
	case word&LongMultiplyMask == LongMultiplyPattern:
		inst.Type = InstLongMultiply
	case word&MultiplyMask == MultiplyPattern:
		inst.Type = InstMultiply
	case word&BXPatternMask == BXEncodingBase:
		inst.Type = InstBranchExchange
	case word&0x0FB00FF0 == 0x01000090: // SWP/SWPB: bits27-23=00010, bits21-20=B0, bits7-4=1001
		inst.Type = InstSwap
	case word&0x0E000090 == 0x00000090 && word&0x00000060 != 0: // halfword/signed transfer, bits7-4=1SH1
		inst.Type = InstLoadStore
	case word&0x0FBF0FFF == MRSPattern, word&0x0FB000F0 == MSRRegPattern, word&0x0FB00000 == MSRImmPattern:
		inst.Type = InstPSRTransfer
	case word&0x0C000000 == 0x00000000:
		inst.Type = InstDataProcessing
	case word&0x0C000000 == 0x04000000:
		inst.Type = InstLoadStore
	case word&0x0E000000 == 0x08000000:
		inst.Type = InstLoadStoreMultiple
	case word&0x0E000000 == 0x0A000000:
		inst.Type = InstBranch
	case word&SWIDetectMask == SWIPattern:
		inst.Type = InstSWI
	default:
		inst.Type = InstUnknown
	}

	return inst
}

// Execute dispatches a decoded instruction to its category handler. ARM
// instructions whose condition fails cost one cycle and do nothing else,
// per the architectural "conditionally NOP" rule.
func (vm *VM) Execute(inst *Instruction) (ExecInfo, error) {
	if inst.IsThumb {
		return ExecuteThumb(vm, uint16(inst.Opcode))
	}

	if !vm.CPU.CPSR.EvaluateCondition(inst.Condition) {
		return normalExec(), nil
	}

	switch inst.Type {
	case InstDataProcessing:
		return ExecuteDataProcessing(vm, inst)
	case InstPSRTransfer:
		return ExecutePSRTransfer(vm, inst)
	case InstMultiply:
		return ExecuteMultiply(vm, inst)
	case InstLongMultiply:
		return ExecuteLongMultiply(vm, inst)
	case InstSwap:
		return ExecuteSwap(vm, inst)
	case InstLoadStore:
		return ExecuteLoadStore(vm, inst)
	case InstLoadStoreMultiple:
		return ExecuteLoadStoreMultiple(vm, inst)
	case InstBranchExchange:
		return ExecuteBranchExchange(vm, inst)
	case InstBranch:
		return ExecuteBranch(vm, inst)
	case InstSWI:
		return ExecuteSWI(vm, inst)
	default:
		return ExecInfo{CausedException: true}, fmt.Errorf("undefined ARM instruction 0x%08X at 0x%08X", inst.Opcode, inst.Address)
	}
}

// instructionSize returns how far a non-branching instruction advances PC.
func instructionSize(isThumb bool) uint32 {
	if isThumb {
		return 2
	}
	return 4
}

// Step runs exactly one core cycle of the pipeline driver described in
// spec.md §4.6. The caller (or a host's timer/DMA subsystems) is expected to
// have already advanced any external peripherals for this cycle; Step only
// owns the interrupt check, fetch, decode, execute and refill/cycle
// accounting that belong to the core itself.
func (vm *VM) Step() (ExecInfo, error) {
	if vm.Halted {
		if !vm.Interrupts.CheckForHaltCondition(vm.HaltMask) {
			vm.State = PipelineHalted
			return ExecInfo{CycleCount: 1}, nil
		}
		vm.Halted = false
	}

	if vm.Stall > 0 {
		vm.Stall--
		vm.State = PipelineStalled
		return ExecInfo{CycleCount: 1}, nil
	}

	vm.Interrupts.CheckForInterrupt(vm.CPU)

	prevThumb := vm.CPU.CPSR.T
	prevPC := vm.CPU.GetPC()

	inst, err := vm.Fetch()
	if err != nil {
		vm.State = PipelineFaulted
		vm.LastError = err
		return ExecInfo{CausedException: true}, err
	}

	info, err := vm.Execute(inst)
	vm.logInstruction(*inst)
	if err != nil {
		vm.State = PipelineFaulted
		vm.LastError = err
		return info, err
	}

	if info.HaltCPU {
		vm.Halted = true
		vm.HaltMask = info.HaltCondition
	}

	postThumb := vm.CPU.CPSR.T
	postPC := vm.CPU.GetPC()

	switch {
	case info.ForceBranch, postPC != prevPC, postThumb != prevThumb:
		// Pipeline refill: two fetches and a decode against the new PC
		// happen implicitly on the next Step calls since Fetch always
		// reads from the current PC; nothing further to flush here
		// because this core has no separate prefetch buffer to discard.
		norm, _ := vm.Memory.NormalizeAddress(postPC)
		vm.CPU.SetPC(norm)
	default:
		vm.CPU.SetPC(postPC + instructionSize(prevThumb))
	}

	size := Access32
	if postThumb {
		size = Access16
	}
	sCycles := uint8(1) + uint8(info.AdditionalProgCyclesS)
	nCycles := uint8(info.AdditionalProgCyclesN)
	cycleCost := uint64(info.CycleCount-1) +
		uint64(nCycles)*uint64(vm.Memory.CyclesNonSeq(vm.CPU.GetPC(), size)) +
		uint64(sCycles)*uint64(vm.Memory.CyclesSeq(vm.CPU.GetPC(), size))
	if !info.NoDefaultSCycle {
		vm.CPU.IncrementCycles(1 + cycleCost)
	} else {
		vm.CPU.IncrementCycles(cycleCost)
	}

	if info.CycleCount > 1 {
		vm.Stall = info.CycleCount - 1
	}

	if vm.CPU.Cycles >= vm.MaxCycles {
		vm.CycleLimit = true
	}

	if vm.Halted {
		vm.State = PipelineHalted
	} else if vm.Stall > 0 {
		vm.State = PipelineStalled
	} else {
		vm.State = PipelineRunning
	}

	return info, nil
}

// Run steps the core until it halts permanently (fault), the cycle budget
// is exhausted, the core enters a cooperative halt, or the host-supplied
// shouldStop returns true. It never
// blocks on a cooperative halt waiting for an interrupt that the host
// hasn't arranged to deliver — callers driving real hardware timing should
// call Step in their own loop instead.
func (vm *VM) Run(shouldStop func(*VM) bool) error {
	for {
		if vm.CycleLimit {
			return nil
		}
		if shouldStop != nil && shouldStop(vm) {
			return nil
		}
		if _, err := vm.Step(); err != nil {
			return err
		}
		if vm.State == PipelineFaulted {
			return vm.LastError
		}
		if vm.State == PipelineHalted {
			return nil
		}
	}
}

// DumpState renders a human-readable register/flag snapshot, in the
// teacher's plain fmt.Sprintf diagnostic style rather than a structured
// dump.
func (vm *VM) DumpState() string {
	c := vm.CPU
	s := fmt.Sprintf("PC=0x%08X SP=0x%08X LR=0x%08X CPSR=%s N=%v Z=%v C=%v V=%v T=%v Cycles=%d\n",
		c.GetPC(), c.GetSP(), c.GetLR(), c.CPSR.Mode, c.CPSR.N, c.CPSR.Z, c.CPSR.C, c.CPSR.V, c.CPSR.T, c.Cycles)
	for i := 0; i < 13; i++ {
		s += fmt.Sprintf("R%-2d=0x%08X ", i, c.Reg(i))
		if i%4 == 3 {
			s += "\n"
		}
	}
	return s
}
