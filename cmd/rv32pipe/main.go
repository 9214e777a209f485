// Command rv32pipe assembles and runs an RV32I/M program on the 5-stage
// in-order pipeline simulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/m2sim/asm"
	"github.com/sarchlab/m2sim/emu"
	"github.com/sarchlab/m2sim/timing/pipeline"
)

var (
	pipelined  = flag.Bool("pipeline", true, "enable pipelining (false runs each instruction to completion before fetching the next)")
	forwarding = flag.Bool("forwarding", true, "enable EX/MEM forwarding")
	maxCycles  = flag.Uint64("max-cycles", 1_000_000, "halt the run after this many cycles")
	trace      = flag.Bool("trace", false, "log every fetch and cycle boundary")
	verbose    = flag.Bool("v", false, "print the resolved symbol table before running")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rv32pipe [options] <program.s>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)
	source, err := os.ReadFile(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading program: %v\n", err)
		os.Exit(1)
	}

	mem := emu.NewMemory()
	if err := asm.Assemble(mem, string(source), asm.WithSymbolTrace(*verbose)); err != nil {
		fmt.Fprintf(os.Stderr, "Error assembling program: %v\n", err)
		os.Exit(1)
	}

	regFile := emu.NewRegFile()
	sched := pipeline.NewScheduler(regFile, mem,
		pipeline.WithPipelining(*pipelined),
		pipeline.WithForwarding(*forwarding),
		pipeline.WithTrace(*trace),
	)
	sched.SetPC(emu.TextSegmentBase)

	sched.Run(*maxCycles)

	for _, line := range sched.Logs() {
		fmt.Fprintln(os.Stderr, line)
	}

	stats := sched.Stats()
	fmt.Printf("Program: %s\n", programPath)
	fmt.Printf("Halted: %s\n", sched.HaltReason())
	fmt.Printf("\n")
	fmt.Printf("Total cycles:          %d\n", stats.TotalCycles)
	fmt.Printf("Instructions executed: %d\n", stats.InstructionsExecuted)
	fmt.Printf("CPI:                   %.2f\n", stats.CPI())
	fmt.Printf("\n")
	fmt.Printf("Data hazards:          %d (stalls: %d)\n", stats.DataHazards, stats.DataHazardStalls)
	fmt.Printf("Control hazards:       %d (stalls: %d, flushes: %d)\n",
		stats.ControlHazards, stats.ControlHazardStalls, stats.PipelineFlushes)
	fmt.Printf("Stall bubbles:         %d\n", stats.StallBubbles)

	if *verbose {
		fmt.Printf("\nFinal registers:\n")
		regs := sched.Registers()
		for i, v := range regs {
			fmt.Printf("  x%-2d = 0x%08X\n", i, v)
		}
	}
}
