package service

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lookbusy1344/arm-emulator/debugger"
	"github.com/lookbusy1344/arm-emulator/disasm"
	"github.com/lookbusy1344/arm-emulator/loader"
	"github.com/lookbusy1344/arm-emulator/vm"
)

const (
	maxDisassemblyCount = 1000   // Maximum number of instructions to disassemble
	maxStackCount       = 1000   // Maximum number of stack entries to return
	maxStackOffset      = 100000 // Maximum stack offset to prevent wraparound attacks
	stepsBeforeYield    = 1000   // Yield every N steps during a run, to let a UI poll state
)

var serviceLog *log.Logger

func init() {
	if os.Getenv("ARM_EMULATOR_DEBUG") != "" {
		logPath := filepath.Join(os.TempDir(), "arm-emulator-service-debug.log")
		f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600) // #nosec G304 -- fixed filename in temp dir
		if err != nil {
			serviceLog = log.New(os.Stderr, "SERVICE: ", log.Ltime|log.Lmicroseconds|log.Lshortfile)
		} else {
			serviceLog = log.New(f, "SERVICE: ", log.Ltime|log.Lmicroseconds|log.Lshortfile)
		}
	} else {
		serviceLog = log.New(io.Discard, "", 0)
	}
}

// DebuggerService provides a thread-safe interface to debugger functionality,
// shared by the TUI and the HTTP/WebSocket API. A GBA ROM carries no symbol
// table and produces no host stdout; "source" in this service's vocabulary
// means disassembly text, and "console output" means the debugger's own
// command output, not anything the guest program wrote.
//
// Lock ordering: the service's own sync.RWMutex (s.mu) is always acquired
// before any Debugger method that takes the debugger's internal mutex.
type DebuggerService struct {
	mu       sync.RWMutex
	vm       *vm.VM
	mem      *vm.FlatMemory
	debugger *debugger.Debugger
	symbols  map[string]uint32

	romTitle  string
	romLoaded bool

	trace *vm.ExecutionTrace
}

// NewDebuggerService creates a new debugger service around an already
// constructed VM and its backing flat memory.
func NewDebuggerService(machine *vm.VM, mem *vm.FlatMemory) *DebuggerService {
	return &DebuggerService{
		vm:       machine,
		mem:      mem,
		debugger: debugger.NewDebugger(machine),
		symbols:  make(map[string]uint32),
	}
}

// GetVM returns the underlying VM (for testing).
func (s *DebuggerService) GetVM() *vm.VM {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vm
}

// LoadROM maps a cartridge image (and optional BIOS image) into memory and
// arranges the entry point, replacing whatever was previously loaded.
func (s *DebuggerService) LoadROM(rom *loader.ROM, bios []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := loader.LoadIntoVM(s.vm, s.mem, rom, bios); err != nil {
		return err
	}

	s.romTitle = rom.Title
	s.romLoaded = true
	s.symbols = make(map[string]uint32)
	s.debugger.Breakpoints.Clear()
	s.debugger.Watchpoints.Clear()
	s.debugger.Running = false

	return nil
}

// GetROMTitle returns the title field of the currently loaded cartridge.
func (s *DebuggerService) GetROMTitle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.romTitle
}

// GetRegisterState returns current register state.
func (s *DebuggerService) GetRegisterState() RegisterState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var regs [16]uint32
	for i := 0; i < 15; i++ {
		regs[i] = s.vm.CPU.Reg(i)
	}
	regs[15] = s.vm.CPU.GetPC()

	return RegisterState{
		Registers: regs,
		CPSR: CPSRState{
			N: s.vm.CPU.CPSR.N,
			Z: s.vm.CPU.CPSR.Z,
			C: s.vm.CPU.CPSR.C,
			V: s.vm.CPU.CPSR.V,
		},
		PC:     s.vm.CPU.GetPC(),
		Cycles: s.vm.CPU.Cycles,
	}
}

// Step executes a single core cycle.
func (s *DebuggerService) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked()
}

// stepLocked runs one instruction and, if tracing is enabled, records it.
// Callers must hold s.mu.
func (s *DebuggerService) stepLocked() error {
	addr := s.vm.CPU.GetPC()
	thumb := s.vm.CPU.CPSR.T
	var opcode uint32
	if thumb {
		word, info := s.vm.Memory.Read16(addr, false, true)
		if info.Fault == nil {
			opcode = uint32(word)
		}
	} else {
		word, info := s.vm.Memory.Read32(addr, false, true)
		if info.Fault == nil {
			opcode = word
		}
	}

	_, err := s.vm.Step()

	if s.trace != nil && s.trace.Enabled {
		s.trace.RecordInstruction(s.vm, addr, opcode, thumb, disasm.Line(addr, opcode, thumb))
	}

	return err
}

// Continue marks the debugger as running; the caller drives execution via
// RunUntilHalt.
func (s *DebuggerService) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.debugger.Running = true
	s.debugger.StepMode = debugger.StepNone

	return nil
}

// Pause stops execution.
func (s *DebuggerService) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugger.Running = false
	s.vm.State = vm.PipelineHalted
}

// Reset performs a complete reset: clears the loaded ROM's metadata, all
// breakpoints and watchpoints, and resets the VM's CPU/pipeline state. ROM
// image bytes already loaded into memory are left in place; call LoadROM
// again to replace the cartridge.
func (s *DebuggerService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vm.Reset()
	s.vm.EntryPoint = 0
	s.vm.StackTop = 0
	s.romTitle = ""
	s.romLoaded = false
	s.symbols = make(map[string]uint32)

	s.debugger.Breakpoints.Clear()
	s.debugger.Watchpoints.Clear()
	s.debugger.Running = false

	return nil
}

// ResetToEntryPoint restarts the current ROM from its entry point without
// re-loading it: CPU/pipeline state resets, but the recorded entry PC and
// stack top (set by the last LoadROM) are reapplied immediately after.
func (s *DebuggerService) ResetToEntryPoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.romLoaded {
		s.vm.Reset()
		s.debugger.Running = false
		return nil
	}

	entry, sp := s.vm.EntryPoint, s.vm.StackTop
	s.vm.Reset()
	s.vm.SetEntryPoint(entry, sp)
	s.debugger.Running = false

	return nil
}

// GetExecutionState returns the current execution state.
func (s *DebuggerService) GetExecutionState() ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return VMStateToExecution(s.vm.State)
}

// AddBreakpoint adds a breakpoint at the specified address.
func (s *DebuggerService) AddBreakpoint(address uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugger.Breakpoints.AddBreakpoint(address, false, "")
	return nil
}

// RemoveBreakpoint removes a breakpoint.
func (s *DebuggerService) RemoveBreakpoint(address uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugger.Breakpoints.DeleteBreakpointAt(address)
}

// GetBreakpoints returns all breakpoints.
func (s *DebuggerService) GetBreakpoints() []BreakpointInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bps := s.debugger.Breakpoints.GetAllBreakpoints()
	result := make([]BreakpointInfo, len(bps))
	for i, bp := range bps {
		result[i] = BreakpointInfo{
			Address: bp.Address,
			Enabled: bp.Enabled,
		}
	}
	return result
}

// ClearAllBreakpoints removes all breakpoints.
func (s *DebuggerService) ClearAllBreakpoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugger.Breakpoints.Clear()
}

// GetMemory returns memory contents for a region. Unmapped or faulting bytes
// read back as zero so a memory view can still render the rest of the range.
func (s *DebuggerService) GetMemory(address uint32, size uint32) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	serviceLog.Printf("GetMemory: address=0x%08X, size=%d", address, size)
	data := make([]byte, size)
	for i := uint32(0); i < size; i++ {
		b, info := s.vm.Memory.Read8(address+i, false, false)
		if info.Fault != nil {
			data[i] = 0
			continue
		}
		data[i] = b
	}
	return data, nil
}

// GetSymbols returns all known symbols. GBA ROMs carry no symbol table of
// their own; this is populated only if a caller supplies one out of band
// (e.g. from a companion debug-info file), which this service does not yet
// load, so it is always empty today.
func (s *DebuggerService) GetSymbols() map[string]uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make(map[string]uint32, len(s.symbols))
	for k, v := range s.symbols {
		symbols[k] = v
	}
	return symbols
}

// GetSymbolForAddress resolves an address to a symbol name, or "" if none.
func (s *DebuggerService) GetSymbolForAddress(addr uint32) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSymbolForAddressUnsafe(addr)
}

func (s *DebuggerService) getSymbolForAddressUnsafe(addr uint32) string {
	for name, symbolAddr := range s.symbols {
		if symbolAddr == addr {
			return name
		}
	}
	return ""
}

// RunUntilHalt runs until a breakpoint, watchpoint or halt stops it. If
// Running is already false (e.g. Pause was called before this goroutine
// started), it returns immediately.
func (s *DebuggerService) RunUntilHalt() error {
	s.mu.Lock()
	if !s.debugger.Running {
		s.mu.Unlock()
		return nil
	}
	s.vm.State = vm.PipelineRunning
	s.mu.Unlock()

	stepCount := 0

	for {
		s.mu.Lock()
		if !s.debugger.Running || s.vm.State != vm.PipelineRunning {
			s.mu.Unlock()
			break
		}

		if shouldBreak, _ := s.debugger.ShouldBreak(); shouldBreak {
			s.debugger.Running = false
			s.mu.Unlock()
			break
		}

		err := s.stepLocked()
		halted := s.vm.State == vm.PipelineHalted
		s.mu.Unlock()

		if err != nil && !halted {
			s.mu.Lock()
			s.debugger.Running = false
			s.mu.Unlock()
			return err
		}

		if halted {
			s.mu.Lock()
			s.debugger.Running = false
			s.mu.Unlock()
			break
		}

		stepCount++
		if stepCount >= stepsBeforeYield {
			stepCount = 0
			time.Sleep(1 * time.Millisecond)
		}
	}

	return nil
}

// IsRunning returns whether execution is in progress.
func (s *DebuggerService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debugger.Running
}

// SetRunning sets the running state synchronously, used by async execution
// callers to set state before launching a goroutine that calls RunUntilHalt.
func (s *DebuggerService) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugger.Running = running
	if running {
		s.vm.State = vm.PipelineRunning
	} else if s.vm.State == vm.PipelineRunning {
		s.vm.State = vm.PipelineHalted
	}
}

// GetOutput returns and clears the debugger's console output buffer (text
// produced by ExecuteCommand-style interaction, not guest program output --
// the GBA has no host stdout).
func (s *DebuggerService) GetOutput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugger.GetOutput()
}

// GetDisassembly returns disassembled instructions starting at address,
// honoring the CPU's current ARM/THUMB mode. Returns a truncated slice if a
// memory read faults before count is reached.
func (s *DebuggerService) GetDisassembly(startAddr uint32, count int) []DisassemblyLine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > maxDisassemblyCount {
		return []DisassemblyLine{}
	}

	thumb := s.vm.CPU.CPSR.T
	step := uint32(4)
	if thumb {
		step = 2
	}
	if startAddr%step != 0 {
		return []DisassemblyLine{}
	}

	lines := make([]DisassemblyLine, 0, count)
	addr := startAddr
	for i := 0; i < count; i++ {
		var opcode uint32
		if thumb {
			word, info := s.vm.Memory.Read16(addr, false, true)
			if info.Fault != nil {
				break
			}
			opcode = uint32(word)
		} else {
			word, info := s.vm.Memory.Read32(addr, false, true)
			if info.Fault != nil {
				break
			}
			opcode = word
		}

		lines = append(lines, DisassemblyLine{
			Address:  addr,
			Opcode:   opcode,
			Mnemonic: disasm.Line(addr, opcode, thumb),
			Symbol:   s.getSymbolForAddressUnsafe(addr),
		})
		addr += step
	}

	return lines
}

// GetStack returns stack contents from SP+offset, offset counted in words.
func (s *DebuggerService) GetStack(offset int, count int) []StackEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > maxStackCount {
		return []StackEntry{}
	}
	if offset < -maxStackOffset || offset > maxStackOffset {
		return []StackEntry{}
	}

	sp := s.vm.CPU.GetSP()
	newAddr := int64(sp) + int64(offset)*4
	if newAddr < 0 || newAddr > 0xFFFFFFFF {
		return []StackEntry{}
	}
	startAddr := uint32(newAddr)

	entries := make([]StackEntry, 0, count)
	for i := 0; i < count; i++ {
		nextAddr := int64(startAddr) + int64(i)*4
		if nextAddr < 0 || nextAddr > 0xFFFFFFFF {
			break
		}
		addr := uint32(nextAddr)

		value, info := s.vm.Memory.Read32(addr, false, false)
		if info.Fault != nil {
			break
		}

		entries = append(entries, StackEntry{
			Address: addr,
			Value:   value,
			Symbol:  s.getSymbolForAddressUnsafe(value),
		})
	}

	return entries
}

// StepOver executes one instruction, stepping over function calls.
func (s *DebuggerService) StepOver() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.romLoaded {
		return fmt.Errorf("no ROM loaded")
	}

	s.debugger.SetStepOver()

	for s.debugger.Running {
		if s.debugger.StepMode != debugger.StepSingle {
			if shouldBreak, _ := s.debugger.ShouldBreak(); shouldBreak {
				s.debugger.Running = false
				break
			}
		}

		err := s.stepLocked()
		if err != nil {
			s.debugger.Running = false
			return err
		}

		if s.debugger.StepMode == debugger.StepSingle {
			if shouldBreak, _ := s.debugger.ShouldBreak(); shouldBreak {
				s.debugger.Running = false
				break
			}
		}
	}

	return nil
}

// StepOut puts the debugger in step-out mode. The step-out mode does not
// track function returns: execution continues until a breakpoint,
// watchpoint or halt stops it. The caller drives execution via
// RunUntilHalt/Step after calling this.
func (s *DebuggerService) StepOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.romLoaded {
		return fmt.Errorf("no ROM loaded")
	}

	s.debugger.SetStepOut()
	return nil
}

// AddWatchpoint adds a watchpoint at the specified address.
func (s *DebuggerService) AddWatchpoint(address uint32, watchType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wpType debugger.WatchType
	switch watchType {
	case "read":
		wpType = debugger.WatchRead
	case "write":
		wpType = debugger.WatchWrite
	case "readwrite":
		wpType = debugger.WatchReadWrite
	default:
		return fmt.Errorf("invalid watchpoint type: %s", watchType)
	}

	expression := fmt.Sprintf("[0x%08X]", address)
	s.debugger.Watchpoints.AddWatchpoint(wpType, expression, address, false, 0)

	return nil
}

// RemoveWatchpoint removes a watchpoint by ID.
func (s *DebuggerService) RemoveWatchpoint(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugger.Watchpoints.DeleteWatchpoint(id)
}

// GetWatchpoints returns all watchpoints.
func (s *DebuggerService) GetWatchpoints() []WatchpointInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wps := s.debugger.Watchpoints.GetAllWatchpoints()
	result := make([]WatchpointInfo, len(wps))
	for i, wp := range wps {
		var wpType string
		switch wp.Type {
		case debugger.WatchRead:
			wpType = "read"
		case debugger.WatchWrite:
			wpType = "write"
		case debugger.WatchReadWrite:
			wpType = "readwrite"
		}

		result[i] = WatchpointInfo{
			ID:      wp.ID,
			Address: wp.Address,
			Type:    wpType,
			Enabled: wp.Enabled,
		}
	}
	return result
}

// ExecuteCommand executes a debugger command and returns its output.
func (s *DebuggerService) ExecuteCommand(command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.debugger.ExecuteCommand(command)
	output := s.debugger.GetOutput()

	return output, err
}

// EvaluateExpression evaluates a debugger expression and returns its value.
func (s *DebuggerService) EvaluateExpression(expr string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugger.Evaluator.EvaluateExpression(expr, s.vm, s.symbols)
}

// EnableExecutionTrace enables execution tracing.
func (s *DebuggerService) EnableExecutionTrace() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trace == nil {
		var buf bytes.Buffer
		s.trace = vm.NewExecutionTrace(&buf)
	}
	s.trace.Enabled = true
	s.trace.Start()
	return nil
}

// DisableExecutionTrace disables execution tracing.
func (s *DebuggerService) DisableExecutionTrace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trace != nil {
		s.trace.Enabled = false
	}
}

// GetExecutionTraceData returns recorded execution trace entries.
func (s *DebuggerService) GetExecutionTraceData() ([]vm.TraceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trace == nil {
		return []vm.TraceEntry{}, nil
	}
	return s.trace.GetEntries(), nil
}

// ClearExecutionTrace clears recorded execution trace entries.
func (s *DebuggerService) ClearExecutionTrace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trace != nil {
		s.trace.Clear()
	}
}
