package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bassosimone/rve/pkg/isa"
	"github.com/bassosimone/rve/pkg/machine"
	"github.com/bassosimone/rve/pkg/rvprof"
)

func main() {
	log.SetFlags(0)
	filename := flag.String("f", "", "ELF file to run")
	verboseInstr := flag.Bool("v", false, "log each executed instruction")
	verboseRegs := flag.Bool("r", false, "log register file after each instruction")
	maxInstr := flag.Uint64("n", 0, "instruction budget (0 = unbounded)")
	extM := flag.Bool("m", true, "enable the M (multiply/divide) extension")
	extA := flag.Bool("a", true, "enable the A (atomic) extension")
	extC := flag.Bool("c", true, "enable the C (compressed) extension")
	profOut := flag.String("prof", "", "write a pprof PC-histogram profile to this path")
	flag.Parse()
	if *filename == "" {
		log.Fatal("usage: rve [-v] [-r] [-n budget] -f <elf-file>")
	}

	data, err := os.ReadFile(*filename)
	if err != nil {
		log.Fatal(err)
	}

	m, err := machine.New(data, machine.Config{
		VerboseInstructions: *verboseInstr,
		VerboseRegisters:    *verboseRegs,
		Extensions:          isa.Extensions{M: *extM, A: *extA, C: *extC},
		Print: func(b []byte) {
			os.Stdout.Write(b)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := m.SetupArgv(flag.Args()); err != nil {
		log.Fatal(err)
	}
	if *maxInstr != 0 {
		m.SetMaxInstructions(*maxInstr)
	}

	var sampler *rvprof.Sampler
	if *profOut != "" {
		sampler = rvprof.New(func(pc uint64) string {
			for name, addr := range m.Memory.SymbolTable {
				if addr == pc {
					return name
				}
			}
			return ""
		})
		m.CPU.Profiler = sampler
	}

	simErr := m.Simulate(0)

	if sampler != nil {
		fp, err := os.Create(*profOut)
		if err != nil {
			log.Fatal(err)
		}
		if err := sampler.WriteProfile(fp); err != nil {
			fp.Close()
			log.Fatal(err)
		}
		fp.Close()
	}

	if simErr != nil {
		log.Fatalf("rve: %v", simErr)
	}
	fmt.Fprintf(os.Stderr, "rve: executed %d instructions, exit status %d\n", m.InstructionCounter(), m.ExitCode())
	os.Exit(m.ExitCode())
}
