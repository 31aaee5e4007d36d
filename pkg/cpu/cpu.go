// Package cpu implements the fetch/execute engine: one CPU per hart,
// holding a register file, a reference to the shared guest Memory, the
// set of executable-segment decoder caches it can dispatch against,
// and the atomic-reservation state backing the A extension. CPU
// implements decoder.Context so pkg/isa's handlers can run against it
// without this package importing pkg/isa or pkg/machine.
package cpu

import (
	"fmt"

	"github.com/bassosimone/rve/pkg/decoder"
	"github.com/bassosimone/rve/pkg/fault"
	"github.com/bassosimone/rve/pkg/memory"
	"github.com/bassosimone/rve/pkg/regfile"
)

// maxAtomicSpin bounds how many consecutive failed SCs at the same pc
// are tolerated before DEADLOCK_REACHED fires. A real spin-lock retries
// a handful of times under contention; anything in the thousands at a
// single pc with no other forward progress indicates the guest program
// (or a missing wakeup) will never make progress.
const maxAtomicSpin = 100000

// Segment is one executable region's decoder cache, plus the address
// range it covers (duplicated from Cache.Base/Length for a cheap
// Contains check without an extra pointer indirection).
type Segment struct {
	Base   uint64
	Length uint64
	Cache  *decoder.Cache
}

// Contains reports whether pc falls inside this segment.
func (s *Segment) Contains(pc uint64) bool {
	return pc >= s.Base && pc < s.Base+s.Length
}

// CPU is one hart: a register file, the memory it shares with its
// Machine and sibling harts, and the executable segments it may
// dispatch into. Segments is shared by value (the same []*Segment
// slice header) between forked CPUs when the embedder sets
// machine.Config.UseSharedExecuteSegments; otherwise a forked CPU gets
// its own copy of the slice, so segments added to one CPU are not seen
// by the other, while the *Segment values and their decoder caches
// already present are still the same objects in both.
type CPU struct {
	ID int

	mem      *memory.Memory
	Regs     *regfile.File
	Segments []*Segment

	reservationValid bool
	reservationAddr  uint64
	spinCounts       map[uint64]int

	Counter         uint64
	MaxInstructions uint64
	StopRequested   bool
	ExitCode        int

	// EcallHandler dispatches a7's syscall number; nil means every ECALL
	// raises UNIMPLEMENTED_INSTRUCTION. EbreakHandler is the optional
	// debugger hook spec.md §4.5 describes; nil means EBREAK also raises
	// UNIMPLEMENTED_INSTRUCTION.
	EcallHandler  func(c *CPU) error
	EbreakHandler func(c *CPU) error

	VerboseInstructions bool
	VerboseRegisters    bool
	// Logger receives one line per verbose event; defaults to nil,
	// meaning the embedder must set it to see any output (Machine
	// defaults this to log.Printf, matching the teacher's CLIs).
	Logger func(format string, args ...any)

	// Disassemble renders the instruction at a pc as text for verbose
	// logging; Machine wires this to isa.Disassemble via decoder.FetchRaw
	// so this package stays free of an pkg/isa import.
	Disassemble func(c *CPU, pc uint64) string

	// Profiler, when set, is sampled with the PC of every fast-loop span
	// before it runs and every precise-loop instruction, for a
	// PC-histogram hotspot profile (see pkg/rvprof). A small interface
	// rather than a direct pkg/rvprof import keeps this package free of
	// that dependency.
	Profiler interface{ Sample(pc uint64) }
}

// New constructs a CPU for the given XLEN (bytes per integer register:
// 4, 8, or 16), with an unbounded instruction budget until the
// embedder sets MaxInstructions.
func New(id, xlenBytes int, mem *memory.Memory) *CPU {
	return &CPU{
		ID:              id,
		mem:             mem,
		Regs:            regfile.New(xlenBytes),
		spinCounts:      make(map[uint64]int),
		MaxInstructions: ^uint64(0),
	}
}

// AddSegment registers a decoder cache covering [base, base+length)
// for dispatch.
func (c *CPU) AddSegment(base, length uint64, cache *decoder.Cache) {
	c.Segments = append(c.Segments, &Segment{Base: base, Length: length, Cache: cache})
}

func (c *CPU) segmentFor(pc uint64) *Segment {
	for _, s := range c.Segments {
		if s.Contains(pc) {
			return s
		}
	}
	return nil
}

// --- decoder.Context ---

func (c *CPU) GPR(i int) uint64         { return c.Regs.GetGPR(i) }
func (c *CPU) SetGPR(i int, v uint64)   { c.Regs.SetGPR(i, v) }
func (c *CPU) FPRSingle(i int) uint32   { return c.Regs.GetFPRSingle(i) }
func (c *CPU) SetFPRSingle(i int, v uint32) { c.Regs.SetFPRSingle(i, v) }
func (c *CPU) FPRDouble(i int) uint64   { return c.Regs.GetFPRDouble(i) }
func (c *CPU) SetFPRDouble(i int, v uint64) { c.Regs.SetFPRDouble(i, v) }
func (c *CPU) PC() uint64      { return c.Regs.PC }
func (c *CPU) SetPC(pc uint64) { c.Regs.PC = pc }
func (c *CPU) XLEN() int       { return c.Regs.XLEN * 8 }

// Mem implements decoder.Context.
func (c *CPU) Mem() *memory.Memory { return c.mem }

func (c *CPU) ReserveAddr(addr uint64) {
	c.reservationValid = true
	c.reservationAddr = addr
}

func (c *CPU) CheckReservation(addr uint64) bool {
	return c.reservationValid && c.reservationAddr == addr
}

// ClearReservation drops the reservation. The A-extension handlers call
// it only after a successful SC, so it also resets the failed-SC count
// for the current pc (the SC's own, since PC has not advanced yet).
func (c *CPU) ClearReservation() {
	c.reservationValid = false
	delete(c.spinCounts, c.Regs.PC)
}

// NoteAtomicSpin tracks consecutive failed SCs per pc; the A-extension
// handlers call it only from the SC failure path, and a successful SC at
// the same pc resets the count (see ClearReservation).
func (c *CPU) NoteAtomicSpin(pc uint64) error {
	c.spinCounts[pc]++
	if c.spinCounts[pc] > maxAtomicSpin {
		return c.Fault(fault.DeadlockReached, pc, "atomic spin exceeded %d consecutive failed SCs", maxAtomicSpin)
	}
	return nil
}

// Fault constructs the MachineException the caller returns to unwind
// the current simulate call.
func (c *CPU) Fault(kind fault.Kind, data uint64, format string, args ...any) error {
	return fault.New(kind, data, format, args...)
}

func (c *CPU) Ecall() error {
	if c.EcallHandler == nil {
		return c.Fault(fault.UnimplementedInstruction, c.Regs.GetGPR(17), "no syscall handler installed")
	}
	return c.EcallHandler(c)
}

func (c *CPU) Ebreak() error {
	if c.EbreakHandler == nil {
		return c.Fault(fault.UnimplementedInstruction, c.Regs.PC, "no debugger hook installed")
	}
	return c.EbreakHandler(c)
}

// String renders CPU state for debugging, in the teacher's
// "{field:value ...}" style (see vm.VM.String).
func (c *CPU) String() string {
	return fmt.Sprintf("{id:%d pc:0x%x gpr:%+v}", c.ID, c.Regs.PC, c.Regs.GPR)
}
