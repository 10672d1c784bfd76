package api

import (
	"time"

	"github.com/lookbusy1344/arm-emulator/service"
)

// SessionCreateRequest represents a request to create a new session. A GBA
// session's memory map is fixed by hardware, so there is nothing here to
// size; an optional per-session BIOS override is the one thing that varies.
type SessionCreateRequest struct {
	BIOSPath string `json:"biosPath,omitempty"` // Optional BIOS image path override
}

// SessionCreateResponse represents the response from creating a session
type SessionCreateResponse struct {
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStatusResponse represents the current status of a session
type SessionStatusResponse struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	PC        uint32 `json:"pc"`
	Cycles    uint64 `json:"cycles"`
	Error     string `json:"error,omitempty"`
}

// LoadProgramRequest represents a request to load a ROM image into a
// session. ROMData is the raw .gba cartridge image; BIOSData is optional --
// without it the session boots straight into cartridge code, as
// loader.LoadIntoVM does when given no BIOS image.
type LoadProgramRequest struct {
	ROMData  []byte `json:"romData"`
	BIOSData []byte `json:"biosData,omitempty"`
}

// LoadProgramResponse represents the response from loading a ROM.
type LoadProgramResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Title   string `json:"title,omitempty"`
}

// RegistersResponse represents the current register state
type RegistersResponse struct {
	R0     uint32    `json:"r0"`
	R1     uint32    `json:"r1"`
	R2     uint32    `json:"r2"`
	R3     uint32    `json:"r3"`
	R4     uint32    `json:"r4"`
	R5     uint32    `json:"r5"`
	R6     uint32    `json:"r6"`
	R7     uint32    `json:"r7"`
	R8     uint32    `json:"r8"`
	R9     uint32    `json:"r9"`
	R10    uint32    `json:"r10"`
	R11    uint32    `json:"r11"`
	R12    uint32    `json:"r12"`
	SP     uint32    `json:"sp"`
	LR     uint32    `json:"lr"`
	PC     uint32    `json:"pc"`
	CPSR   CPSRFlags `json:"cpsr"`
	Cycles uint64    `json:"cycles"`
}

// CPSRFlags represents the CPSR flags
type CPSRFlags struct {
	N bool `json:"n"` // Negative
	Z bool `json:"z"` // Zero
	C bool `json:"c"` // Carry
	V bool `json:"v"` // Overflow
}

// MemoryRequest represents a request for memory data
type MemoryRequest struct {
	Address uint32 `json:"address"`
	Length  uint32 `json:"length"`
}

// MemoryResponse represents memory data
type MemoryResponse struct {
	Address uint32 `json:"address"`
	Data    []byte `json:"data"`
	Length  uint32 `json:"length"`
}

// DisassemblyRequest represents a request for disassembly
type DisassemblyRequest struct {
	Address uint32 `json:"address"`
	Count   uint32 `json:"count"`
}

// DisassemblyResponse represents disassembled instructions
type DisassemblyResponse struct {
	Instructions []InstructionInfo `json:"instructions"`
}

// InstructionInfo represents a disassembled instruction
type InstructionInfo struct {
	Address     uint32 `json:"address"`
	MachineCode uint32 `json:"machineCode"`
	Disassembly string `json:"disassembly"`
	Symbol      string `json:"symbol,omitempty"`
}

// BreakpointRequest represents a request to add/remove a breakpoint
type BreakpointRequest struct {
	Address uint32 `json:"address"`
}

// BreakpointsResponse represents a list of breakpoints
type BreakpointsResponse struct {
	Breakpoints []uint32 `json:"breakpoints"`
}

// WatchpointRequest represents a request to add a watchpoint
type WatchpointRequest struct {
	Address uint32 `json:"address"`
	Type    string `json:"type,omitempty"` // "read", "write", "readwrite" (default)
}

// WatchpointResponse represents a newly created watchpoint
type WatchpointResponse struct {
	ID      int    `json:"id"`
	Address uint32 `json:"address"`
	Type    string `json:"type"`
}

// WatchpointsResponse represents a list of watchpoints
type WatchpointsResponse struct {
	Watchpoints []service.WatchpointInfo `json:"watchpoints"`
}

// TraceEntryInfo is one recorded instruction in an execution trace
type TraceEntryInfo struct {
	Sequence        uint64            `json:"sequence"`
	Address         uint32            `json:"address"`
	Opcode          uint32            `json:"opcode"`
	Disassembly     string            `json:"disassembly"`
	RegisterChanges map[string]uint32 `json:"registerChanges,omitempty"`
	Flags           CPSRFlags         `json:"flags"`
	DurationNs      int64             `json:"durationNs"`
}

// TraceDataResponse represents accumulated execution trace entries
type TraceDataResponse struct {
	Entries []TraceEntryInfo `json:"entries"`
	Count   int              `json:"count"`
}

// ExecutionConfig mirrors config.Config's Execution section
type ExecutionConfig struct {
	MaxCycles      uint64 `json:"maxCycles"`
	BIOSPath       string `json:"biosPath"`
	EnableTrace    bool   `json:"enableTrace"`
	EnableMemTrace bool   `json:"enableMemTrace"`
}

// DebuggerConfig mirrors config.Config's Debugger section
type DebuggerConfig struct {
	HistorySize    int  `json:"historySize"`
	AutoSaveBreaks bool `json:"autoSaveBreakpoints"`
	ShowSource     bool `json:"showSource"`
	ShowRegisters  bool `json:"showRegisters"`
}

// DisplayConfig mirrors config.Config's Display section
type DisplayConfig struct {
	ColorOutput   bool   `json:"colorOutput"`
	BytesPerLine  int    `json:"bytesPerLine"`
	DisasmContext int    `json:"disasmContext"`
	NumberFormat  string `json:"numberFormat"`
}

// TraceConfig mirrors config.Config's Trace section
type TraceConfig struct {
	OutputFile    string `json:"outputFile"`
	FilterRegs    string `json:"filterRegisters"`
	IncludeFlags  bool   `json:"includeFlags"`
	IncludeTiming bool   `json:"includeTiming"`
	MaxEntries    int    `json:"maxEntries"`
}

// ConfigResponse is the emulator configuration surfaced over the API
type ConfigResponse struct {
	Execution ExecutionConfig `json:"execution"`
	Debugger  DebuggerConfig  `json:"debugger"`
	Display   DisplayConfig   `json:"display"`
	Trace     TraceConfig     `json:"trace"`
}

// ExampleInfo describes a ROM image available under the server's examples directory
type ExampleInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ExamplesResponse represents a list of available example ROM images
type ExamplesResponse struct {
	Examples []ExampleInfo `json:"examples"`
	Count    int           `json:"count"`
}

// ExampleContentResponse represents a ROM image's raw bytes, base64-encoded by JSON
type ExampleContentResponse struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
	Size int64  `json:"size"`
}

// SymbolMapResponse represents the address->name symbols known for a session.
// GBA ROMs carry no symbol table of their own; this reflects only what a
// caller has registered out of band.
type SymbolMapResponse struct {
	Symbols map[string]uint32 `json:"symbols"`
}

// EvaluateRequest represents a request to evaluate a debugger expression
type EvaluateRequest struct {
	Expression string `json:"expression"`
}

// EvaluateResponse represents the result of evaluating a debugger expression
type EvaluateResponse struct {
	Value uint32 `json:"value"`
}

// ConsoleOutputResponse represents the debugger's command console buffer
type ConsoleOutputResponse struct {
	Output string `json:"output"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// SuccessResponse represents a simple success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Event represents a WebSocket event
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// StateEvent represents a state change event
type StateEvent struct {
	State     string        `json:"state"`
	PC        uint32        `json:"pc"`
	Registers [16]uint32    `json:"registers"`
	CPSR      CPSRFlags     `json:"cpsr"`
	Cycles    uint64        `json:"cycles"`
}

// OutputEvent represents console output
type OutputEvent struct {
	Stream  string `json:"stream"`  // "stdout" or "stderr"
	Content string `json:"content"` // Output content
}

// ExecutionEvent represents execution events like breakpoints
type ExecutionEvent struct {
	Event   string `json:"event"`            // "breakpoint_hit", "error", "halted"
	Address uint32 `json:"address,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message,omitempty"`
}

// ToRegisterResponse converts service.RegisterState to API response
func ToRegisterResponse(regs *service.RegisterState) *RegistersResponse {
	return &RegistersResponse{
		R0:     regs.Registers[0],
		R1:     regs.Registers[1],
		R2:     regs.Registers[2],
		R3:     regs.Registers[3],
		R4:     regs.Registers[4],
		R5:     regs.Registers[5],
		R6:     regs.Registers[6],
		R7:     regs.Registers[7],
		R8:     regs.Registers[8],
		R9:     regs.Registers[9],
		R10:    regs.Registers[10],
		R11:    regs.Registers[11],
		R12:    regs.Registers[12],
		SP:     regs.Registers[13],
		LR:     regs.Registers[14],
		PC:     regs.PC,
		CPSR: CPSRFlags{
			N: regs.CPSR.N,
			Z: regs.CPSR.Z,
			C: regs.CPSR.C,
			V: regs.CPSR.V,
		},
		Cycles: regs.Cycles,
	}
}

// ToInstructionInfo converts service.DisassemblyLine to API response
func ToInstructionInfo(line *service.DisassemblyLine) InstructionInfo {
	return InstructionInfo{
		Address:     line.Address,
		MachineCode: line.Opcode,
		Disassembly: line.Mnemonic,
		Symbol:      line.Symbol,
	}
}
