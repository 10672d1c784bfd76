package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/lookbusy1344/arm-emulator/api"
	"github.com/lookbusy1344/arm-emulator/config"
	"github.com/lookbusy1344/arm-emulator/debugger"
	"github.com/lookbusy1344/arm-emulator/loader"
	"github.com/lookbusy1344/arm-emulator/vm"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		debugMode   = flag.Bool("debug", false, "Start in CLI debugger mode")
		tuiMode     = flag.Bool("tui", false, "Start in TUI debugger mode")
		apiServer   = flag.Bool("api-server", false, "Start HTTP+WebSocket API server mode")
		apiPort     = flag.Int("port", 8080, "API server port (used with -api-server)")
		biosPath    = flag.String("bios", "", "BIOS image path (boots through BIOS reset vector if given)")
		configPath  = flag.String("config", "", "TOML config file (default: platform config dir)")
		maxCycles   = flag.Uint64("max-cycles", 0, "Maximum CPU cycles before halt (0: use config default)")
		verboseMode = flag.Bool("verbose", false, "Verbose output")

		enableTrace    = flag.Bool("trace", false, "Enable execution trace")
		traceFile      = flag.String("trace-file", "", "Trace output file")
		traceFilter    = flag.String("trace-filter", "", "Filter trace by registers, e.g. R0,R1,PC")
		enableMemTrace = flag.Bool("mem-trace", false, "Enable memory access trace")
		memTraceFile   = flag.String("mem-trace-file", "", "Memory trace output file")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("GBA ARM7TDMI core %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		if Date != "unknown" {
			fmt.Printf("Built: %s\n", Date)
		}
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if *apiServer {
		runAPIServer(*apiPort)
		return
	}

	if flag.NArg() == 0 {
		printHelp()
		os.Exit(0)
	}

	romPath := flag.Arg(0)
	if _, err := os.Stat(romPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: ROM not found: %s\n", romPath)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *biosPath == "" {
		*biosPath = cfg.Execution.BIOSPath
	}

	rom, err := loader.LoadROMFile(romPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ROM: %v\n", err)
		os.Exit(1)
	}
	bios, err := loader.LoadBIOSFile(*biosPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading BIOS: %v\n", err)
		os.Exit(1)
	}

	if *verboseMode {
		fmt.Printf("ROM: %s (%q, %d bytes)\n", romPath, rom.Title, len(rom.Data))
		if bios != nil {
			fmt.Printf("BIOS: %s (%d bytes)\n", *biosPath, len(bios))
		} else {
			fmt.Println("No BIOS image: booting directly into cartridge entry point")
		}
	}

	mem := vm.NewFlatMemory()
	mem.SetROMWaitControl(cfg.Memory.ROMWaitNonSeq, cfg.Memory.ROMWaitSeq)
	mem.SetEWRAMFast(cfg.Memory.EWRAMFast)

	machine := vm.NewVM(mem, nil)
	if *maxCycles > 0 {
		machine.MaxCycles = *maxCycles
	} else {
		machine.MaxCycles = cfg.Execution.MaxCycles
	}

	if err := loader.LoadIntoVM(machine, mem, rom, bios); err != nil {
		fmt.Fprintf(os.Stderr, "Error mapping ROM/BIOS into memory: %v\n", err)
		os.Exit(1)
	}

	if *enableTrace || cfg.Execution.EnableTrace {
		path := *traceFile
		if path == "" {
			path = cfg.Trace.OutputFile
		}
		w, err := os.Create(path) // #nosec G304 -- user-specified trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating trace file: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()

		trace := vm.NewExecutionTrace(w)
		if *traceFilter != "" {
			trace.SetFilterRegisters(strings.Split(*traceFilter, ","))
		}
		trace.Start()
		if *verboseMode {
			fmt.Printf("Execution trace enabled: %s\n", path)
		}
		defer func() {
			if err := trace.Flush(); err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing trace: %v\n", err)
			}
		}()
	}

	if *enableMemTrace || cfg.Execution.EnableMemTrace {
		path := *memTraceFile
		if path == "" {
			path = "memtrace.log"
		}
		w, err := os.Create(path) // #nosec G304 -- user-specified trace output path
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory trace file: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
		memTrace := vm.NewMemoryTrace(w)
		memTrace.Start()
		if *verboseMode {
			fmt.Printf("Memory trace enabled: %s\n", path)
		}
		defer func() {
			if err := memTrace.Flush(); err != nil {
				fmt.Fprintf(os.Stderr, "Error flushing memory trace: %v\n", err)
			}
		}()
	}

	if *debugMode || *tuiMode {
		dbg := debugger.NewDebugger(machine)
		if *tuiMode {
			if err := debugger.RunTUI(dbg); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
				os.Exit(1)
			}
		} else {
			fmt.Println("GBA core debugger - type 'help' for commands")
			fmt.Printf("ROM loaded: %s\n", romPath)
			fmt.Println()
			if err := debugger.RunCLI(dbg); err != nil {
				fmt.Fprintf(os.Stderr, "Debugger error: %v\n", err)
				os.Exit(1)
			}
		}
		return
	}

	if *verboseMode {
		fmt.Println("Starting execution...")
	}
	runErr := machine.Run(nil)
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "\nRuntime error at PC=0x%08X: %v\n", machine.CPU.GetPC(), runErr)
		os.Exit(1)
	}
	if *verboseMode {
		fmt.Println(machine.DumpState())
		fmt.Printf("CPU cycles: %d\n", machine.CPU.Cycles)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func runAPIServer(port int) {
	server := api.NewServerWithVersion(port, Version, Commit, Date)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownOnce sync.Once
	performShutdown := func() {
		shutdownOnce.Do(func() {
			fmt.Println("\nShutting down API server...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("API server stopped")
			os.Exit(0)
		})
	}

	monitor := api.NewProcessMonitor(performShutdown)
	monitor.Start()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "API server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-sigChan
	performShutdown()
}

func printHelp() {
	fmt.Printf(`GBA ARM7TDMI core %s

Usage: gba-core [options] <rom.gba>
       gba-core -api-server [-port N]

Options:
  -help              Show this help message
  -version           Show version information
  -api-server        Start HTTP+WebSocket API server mode (no ROM required)
  -port N            API server port (default: 8080, used with -api-server)
  -bios PATH         Boot through a real BIOS image instead of the synthesized reset state
  -config PATH       TOML config file (default: platform config dir)
  -debug             Start in CLI debugger mode
  -tui               Start in TUI debugger mode
  -max-cycles N      Cap CPU cycles before forcing a stop (0: use config default)
  -verbose           Verbose output

Tracing Options:
  -trace             Enable execution trace
  -trace-file FILE   Trace output file (default: config trace.output_file)
  -trace-filter REGS Filter trace by registers (e.g., R0,R1,PC)
  -mem-trace         Enable memory access trace
  -mem-trace-file F  Memory trace file (default: memtrace.log)

Examples:
  gba-core game.gba
  gba-core -bios gba_bios.bin game.gba
  gba-core -debug game.gba
  gba-core -tui game.gba
  gba-core -trace -trace-filter "R0,R1,PC" game.gba
  gba-core -api-server -port 3000

Debugger Commands (when in -debug mode):
  run, r             Reset and start execution
  continue, c        Continue execution
  step, s            Execute a single instruction
  break ADDR         Set breakpoint at address
  info registers     Show all registers
  print EXPR         Evaluate and print expression
  help               Show debugger help
`, Version)
}
