// Package machine ties the paged memory, decoder cache, and CPU
// executor into the top-level container spec.md calls Machine: it owns
// Memory, the primary (and any forked) CPU, the instruction budget, the
// syscall table, and the verbose-logging toggles, and is constructed
// directly from an ELF image the way the teacher's cmd/vm constructs a
// VM from a bytecode file.
package machine

import (
	"errors"
	"fmt"
	"log"

	"github.com/bassosimone/rve/pkg/cpu"
	"github.com/bassosimone/rve/pkg/decoder"
	"github.com/bassosimone/rve/pkg/elfload"
	"github.com/bassosimone/rve/pkg/fault"
	"github.com/bassosimone/rve/pkg/isa"
	"github.com/bassosimone/rve/pkg/memory"
	"github.com/bassosimone/rve/pkg/page"
)

// DefaultStackSize is the initial stack area size when Config.StackSize
// is left at zero.
const DefaultStackSize = 2 << 20 // 2 MiB

// SyscallFunc handles one ECALL dispatched via register a7.
type SyscallFunc func(m *Machine, c *cpu.CPU) error

// Config is the recognized configuration record (spec.md §6).
type Config struct {
	MemoryMax                uint64
	StackSize                uint64
	AllowWriteExecSegment    bool
	VerboseInstructions      bool
	VerboseRegisters         bool
	UseSharedExecuteSegments bool
	PageFaultHandler         memory.PageFaultFunc
	Extensions               isa.Extensions

	// Print is the host sink for guest output (write(1)/write(2)); nil
	// discards it.
	Print func(data []byte)
	// Logger backs verbose instruction/register tracing; defaults to
	// log.Printf, matching the teacher's cmd/vm -v behavior.
	Logger func(format string, args ...any)
}

// ErrNoImage indicates a Machine method was called before New finished
// loading an ELF image.
var ErrNoImage = errors.New("machine: no image loaded")

// Machine is the top-level container.
type Machine struct {
	Memory *memory.Memory
	CPU    *cpu.CPU
	Config Config

	image    *elfload.Image
	syscalls map[uint64]SyscallFunc
	nextID   int
	argvTop  uint64
	brk      uint64
}

// New constructs a Machine from a RISC-V ELF image's raw bytes: it maps
// every PT_LOAD segment into a fresh Memory, builds a decoder cache for
// each executable range, wires the minimal syscall table, and resets
// the CPU to the entry point.
func New(elfBytes []byte, cfg Config) (*Machine, error) {
	if cfg.StackSize == 0 {
		cfg.StackSize = DefaultStackSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Printf
	}

	mem := memory.New()
	mem.AllowWriteExecSegment = cfg.AllowWriteExecSegment
	if cfg.PageFaultHandler != nil {
		mem.PageFaultHandler = cfg.PageFaultHandler
	}
	if cfg.MemoryMax != 0 {
		mem.MaxPages = (cfg.MemoryMax + page.Size - 1) / page.Size
	}

	img, err := elfload.Load(mem, elfBytes)
	if err != nil {
		return nil, err
	}

	m := &Machine{
		Memory:   mem,
		Config:   cfg,
		image:    img,
		syscalls: make(map[uint64]SyscallFunc),
		nextID:   1,
	}

	c := cpu.New(0, img.XLENBytes, mem)
	c.VerboseInstructions = cfg.VerboseInstructions
	c.VerboseRegisters = cfg.VerboseRegisters
	c.Logger = cfg.Logger
	c.Disassemble = func(_ *cpu.CPU, pc uint64) string {
		raw, is16, _, err := decoder.FetchRaw(mem, pc)
		if err != nil {
			return fmt.Sprintf("<fetch error: %v>", err)
		}
		return isa.Disassemble(raw, is16)
	}
	c.EcallHandler = func(cc *cpu.CPU) error { return m.dispatchSyscall(cc) }

	divisor := uint64(4)
	if cfg.Extensions.C {
		divisor = 2
	}
	decodeFn := isa.NewDecodeFunc(img.XLENBytes, cfg.Extensions)
	rewriteFn := isa.NewRewriteFunc()
	for _, r := range img.Executable {
		cache, err := decoder.Build(mem, r.Base, r.Length, divisor, decodeFn, rewriteFn)
		if err != nil {
			return nil, fmt.Errorf("machine: building decoder cache for [0x%x,0x%x): %w", r.Base, r.Base+r.Length, err)
		}
		c.AddSegment(r.Base, r.Length, cache)
	}

	m.CPU = c
	m.SetupMinimalSyscalls()
	if err := m.reset(); err != nil {
		return nil, err
	}
	return m, nil
}

// reset reinitializes Registers and jumps to the entry PC, and carves
// out the initial stack area.
func (m *Machine) reset() error {
	if m.image == nil {
		return ErrNoImage
	}
	m.CPU.Regs.Reset(m.image.Entry)
	m.CPU.Counter = 0
	m.CPU.StopRequested = false
	m.CPU.ExitCode = 0
	m.brk = m.image.BreakStart
	top, err := m.carveStack()
	if err != nil {
		return err
	}
	m.argvTop = top
	m.CPU.Regs.SetGPR(2, top) // x2 = sp, per the RISC-V calling convention
	return nil
}

// stackTopFor returns a high guest address below which the initial
// stack is carved, distinct per address width so a 32-bit build's
// stack never aliases a 64-bit build's convention.
func stackTopFor(xlenBytes int) uint64 {
	if xlenBytes <= 4 {
		return 0x7ffff000
	}
	return 0x7fffffff0000
}

// carveStack materializes cfg.StackSize bytes of owning, writable pages
// just below stackTopFor and returns the initial stack pointer (16-byte
// aligned, per the RISC-V ABI).
func (m *Machine) carveStack() (uint64, error) {
	top := stackTopFor(m.image.XLENBytes)
	base := top - m.Config.StackSize
	for addr := base; addr < top; addr += page.Size {
		if _, err := m.Memory.CreatePage(addr / page.Size); err != nil {
			return 0, err
		}
	}
	return top &^ 0xf, nil
}

// SetupArgv writes argv (and an empty envp) onto the stack below the
// current stack pointer, in the layout a RISC-V libc _start expects:
// argc, argv[0..n-1], NULL, envp (empty), NULL, auxv terminator. It
// must run after reset (or New) and before the first simulate call.
func (m *Machine) SetupArgv(argv []string) error {
	sp := m.argvTop
	ptrSize := uint64(m.image.XLENBytes)

	ptrs := make([]uint64, len(argv))
	for i, s := range argv {
		buf := append([]byte(s), 0)
		sp -= uint64(len(buf))
		sp &^= 0x7
		if err := m.Memory.MemcpyFromHost(sp, buf); err != nil {
			return err
		}
		ptrs[i] = sp
	}

	// argc, argv[], NULL, envp[] (empty), NULL, auxv terminator (a
	// single AT_NULL entry), all ptrSize-wide.
	words := make([]uint64, 0, len(ptrs)+5)
	words = append(words, uint64(len(ptrs)))
	words = append(words, ptrs...)
	words = append(words, 0) // argv terminator
	words = append(words, 0) // envp terminator (no env vars)
	words = append(words, 0, 0) // auxv: AT_NULL

	sp -= uint64(len(words)) * ptrSize
	sp &^= 0xf
	for i, w := range words {
		addr := sp + uint64(i)*ptrSize
		var err error
		if ptrSize == 4 {
			err = memory.Write[uint32](m.Memory, addr, uint32(w))
		} else {
			err = memory.Write[uint64](m.Memory, addr, w)
		}
		if err != nil {
			return err
		}
	}

	m.CPU.Regs.SetGPR(2, sp)
	return nil
}

// InstructionCounter returns the number of instructions the primary CPU
// has executed so far.
func (m *Machine) InstructionCounter() uint64 { return m.CPU.Counter }

// MaxInstructions returns the primary CPU's instruction budget.
func (m *Machine) MaxInstructions() uint64 { return m.CPU.MaxInstructions }

// SetMaxInstructions sets the primary CPU's instruction budget.
func (m *Machine) SetMaxInstructions(n uint64) { m.CPU.MaxInstructions = n }

// Simulate runs the primary CPU for up to budget instructions; budget
// == 0 means "run out whatever remains of CPU.MaxInstructions" (itself
// unbounded unless SetMaxInstructions was called), matching spec.md's
// simulate(max_instructions = ∞). It dispatches to the precise loop
// when either verbose toggle is set (so logging observes every
// instruction) and to the fast loop otherwise.
func (m *Machine) Simulate(budget uint64) error {
	if budget == 0 {
		if m.CPU.MaxInstructions > m.CPU.Counter {
			budget = m.CPU.MaxInstructions - m.CPU.Counter
		}
	}
	if m.Config.VerboseInstructions || m.Config.VerboseRegisters {
		return m.CPU.SimulatePrecise(budget)
	}
	return m.CPU.Simulate(budget)
}

// Fork returns a new CPU sharing this Machine's Memory. When
// Config.UseSharedExecuteSegments is set the fork shares the primary
// CPU's Segments slice; otherwise it gets a copy of that slice, whose
// entries still point at the same decoder caches.
func (m *Machine) Fork(excludeVector bool) (*cpu.CPU, error) {
	if m.CPU == nil {
		return nil, ErrNoImage
	}
	id := m.nextID
	m.nextID++
	return m.CPU.Fork(id, excludeVector, m.Config.UseSharedExecuteSegments), nil
}

// SetSyscall installs or replaces the handler for a given a7 number.
func (m *Machine) SetSyscall(a7 uint64, fn SyscallFunc) {
	m.syscalls[a7] = fn
}

func (m *Machine) dispatchSyscall(c *cpu.CPU) error {
	a7 := c.GPR(17)
	fn, ok := m.syscalls[a7]
	if !ok {
		return c.Fault(fault.UnimplementedInstruction, a7, "no syscall handler installed for a7=%d", a7)
	}
	return fn(m, c)
}

// ExitCode returns the primary CPU's exit status, valid once Simulate
// has returned after an exit syscall set the stop flag.
func (m *Machine) ExitCode() int { return m.CPU.ExitCode }

// ResolveAddress looks up a symbol's address from the ELF's symbol
// table, populated by pkg/elfload.
func (m *Machine) ResolveAddress(name string) (uint64, bool) {
	addr, ok := m.Memory.SymbolTable[name]
	return addr, ok
}

// ResolveSection looks up a section's (addr, size) from the ELF's
// section headers, populated by pkg/elfload.
func (m *Machine) ResolveSection(name string) (addr, size uint64, ok bool) {
	v, ok := m.Memory.SectionTable[name]
	return v[0], v[1], ok
}
