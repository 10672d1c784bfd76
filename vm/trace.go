package vm

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// TraceEntry represents a single executed instruction.
type TraceEntry struct {
	Sequence        uint64
	Address         uint32
	Opcode          uint32
	Thumb           bool
	Disassembly     string
	RegisterChanges map[string]uint32
	Flags           CPSR
	Duration        time.Duration
}

// ExecutionTrace records executed instructions and the register changes they
// caused, for post-mortem inspection of a run (e.g. from the debugger).
type ExecutionTrace struct {
	Enabled       bool
	Writer        io.Writer
	FilterRegs    map[string]bool // registers to track; empty means all
	IncludeFlags  bool
	IncludeTiming bool
	MaxEntries    int

	entries      []TraceEntry
	startTime    time.Time
	lastSnapshot map[string]uint32
}

func NewExecutionTrace(writer io.Writer) *ExecutionTrace {
	return &ExecutionTrace{
		Enabled:       true,
		Writer:        writer,
		FilterRegs:    make(map[string]bool),
		IncludeFlags:  true,
		IncludeTiming: true,
		MaxEntries:    100000,
		entries:       make([]TraceEntry, 0, 1000),
		lastSnapshot:  make(map[string]uint32),
	}
}

// SetFilterRegisters restricts tracking to the named registers ("R0".."R15",
// "SP", "LR", "PC"). An empty slice tracks everything.
func (t *ExecutionTrace) SetFilterRegisters(regs []string) {
	t.FilterRegs = make(map[string]bool)
	for _, reg := range regs {
		t.FilterRegs[strings.ToUpper(reg)] = true
	}
}

func (t *ExecutionTrace) Start() {
	t.startTime = time.Now()
	t.entries = t.entries[:0]
	t.lastSnapshot = make(map[string]uint32)
}

// RecordInstruction snapshots vm's register file after an instruction has
// executed and appends a trace entry for it. addr/opcode describe the
// instruction that just ran (the caller fetches these before Step() refills
// the pipeline).
func (t *ExecutionTrace) RecordInstruction(vm *VM, addr, opcode uint32, thumb bool, disasm string) {
	if !t.Enabled {
		return
	}
	if t.MaxEntries > 0 && len(t.entries) >= t.MaxEntries {
		return
	}

	entry := TraceEntry{
		Sequence:        vm.CPU.Cycles,
		Address:         addr,
		Opcode:          opcode,
		Thumb:           thumb,
		Disassembly:     disasm,
		RegisterChanges: make(map[string]uint32),
		Flags:           vm.CPU.CPSR,
	}
	if t.IncludeTiming {
		entry.Duration = time.Since(t.startTime)
	}

	currentRegs := make(map[string]uint32, 16)
	for i := 0; i < 15; i++ {
		currentRegs[fmt.Sprintf("R%d", i)] = vm.CPU.GetRegister(i)
	}
	currentRegs["PC"] = vm.CPU.GetPC()
	currentRegs["SP"] = vm.CPU.GetRegister(SP)
	currentRegs["LR"] = vm.CPU.GetRegister(LR)

	for name, value := range currentRegs {
		if len(t.FilterRegs) > 0 && !t.FilterRegs[name] {
			continue
		}
		if oldValue, exists := t.lastSnapshot[name]; !exists || oldValue != value {
			entry.RegisterChanges[name] = value
			t.lastSnapshot[name] = value
		}
	}

	t.entries = append(t.entries, entry)
}

func (t *ExecutionTrace) Flush() error {
	if t.Writer == nil {
		return nil
	}
	for _, entry := range t.entries {
		if err := t.writeEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func (t *ExecutionTrace) writeEntry(entry TraceEntry) error {
	width := 8
	if entry.Thumb {
		width = 4
	}
	line := fmt.Sprintf("[%06d] 0x%0*X: %-30s", entry.Sequence, width, entry.Address, entry.Disassembly)

	if len(entry.RegisterChanges) > 0 {
		changes := make([]string, 0, len(entry.RegisterChanges))
		for name, value := range entry.RegisterChanges {
			changes = append(changes, fmt.Sprintf("%s=0x%08X", name, value))
		}
		line += " | " + strings.Join(changes, " ")
	} else {
		line += " | (no changes)"
	}

	if t.IncludeFlags {
		flags := ""
		for _, set := range []bool{entry.Flags.N, entry.Flags.Z, entry.Flags.C, entry.Flags.V} {
			if set {
				flags += "NZCV"[len(flags) : len(flags)+1]
			} else {
				flags += "-"
			}
		}
		line += " | " + flags
	}

	if t.IncludeTiming {
		line += fmt.Sprintf(" | %v", entry.Duration)
	}

	line += "\n"
	_, err := t.Writer.Write([]byte(line))
	return err
}

func (t *ExecutionTrace) GetEntries() []TraceEntry {
	return t.entries
}

func (t *ExecutionTrace) Clear() {
	t.entries = t.entries[:0]
	t.lastSnapshot = make(map[string]uint32)
}

// MemoryAccessEntry represents a single memory bus transaction.
type MemoryAccessEntry struct {
	Sequence  uint64
	Address   uint32
	PC        uint32
	Type      string // "READ" or "WRITE"
	Size      string // "BYTE", "HALF", "WORD"
	Value     uint32
	Timestamp time.Duration
}

// MemoryTrace records bus accesses, useful for diagnosing wait-state and
// DMA-conflict behavior against VRAM/OAM/palette RAM.
type MemoryTrace struct {
	Enabled    bool
	Writer     io.Writer
	MaxEntries int

	entries   []MemoryAccessEntry
	startTime time.Time
}

func NewMemoryTrace(writer io.Writer) *MemoryTrace {
	return &MemoryTrace{
		Enabled:    true,
		Writer:     writer,
		MaxEntries: 100000,
		entries:    make([]MemoryAccessEntry, 0, 1000),
	}
}

func (t *MemoryTrace) Start() {
	t.startTime = time.Now()
	t.entries = t.entries[:0]
}

func (t *MemoryTrace) RecordRead(sequence uint64, pc, address, value uint32, size string) {
	if !t.Enabled {
		return
	}
	if t.MaxEntries > 0 && len(t.entries) >= t.MaxEntries {
		return
	}
	t.entries = append(t.entries, MemoryAccessEntry{
		Sequence: sequence, Address: address, PC: pc,
		Type: "READ", Size: size, Value: value,
		Timestamp: time.Since(t.startTime),
	})
}

func (t *MemoryTrace) RecordWrite(sequence uint64, pc, address, value uint32, size string) {
	if !t.Enabled {
		return
	}
	if t.MaxEntries > 0 && len(t.entries) >= t.MaxEntries {
		return
	}
	t.entries = append(t.entries, MemoryAccessEntry{
		Sequence: sequence, Address: address, PC: pc,
		Type: "WRITE", Size: size, Value: value,
		Timestamp: time.Since(t.startTime),
	})
}

func (t *MemoryTrace) Flush() error {
	if t.Writer == nil {
		return nil
	}
	for _, entry := range t.entries {
		if err := t.writeEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func (t *MemoryTrace) writeEntry(entry MemoryAccessEntry) error {
	arrow := "<-"
	if entry.Type == "WRITE" {
		arrow = "->"
	}
	line := fmt.Sprintf("[%06d] [%-5s] 0x%08X %s [0x%08X] = 0x%08X (%s)\n",
		entry.Sequence, entry.Type, entry.PC, arrow, entry.Address, entry.Value, entry.Size)
	_, err := t.Writer.Write([]byte(line))
	return err
}

func (t *MemoryTrace) GetEntries() []MemoryAccessEntry {
	return t.entries
}

func (t *MemoryTrace) Clear() {
	t.entries = t.entries[:0]
}

// OpenTraceFile opens a trace file for writing.
func OpenTraceFile(filename string) (*os.File, error) {
	return os.Create(filename)
}
