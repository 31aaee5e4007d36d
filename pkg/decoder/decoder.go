// Package decoder implements the per-instruction decoder cache: an
// array, one entry per reachable instruction slot, each pre-decoded
// into a handler plus either the raw instruction bits or, after the
// bytecode rewriter runs, an operand-packed encoding.
package decoder

import (
	"github.com/bassosimone/rve/pkg/fault"
	"github.com/bassosimone/rve/pkg/memory"
)

// Context is the interface a Handler uses to read and mutate machine
// state. It is implemented by the CPU so that this package and pkg/isa
// never need to import pkg/cpu.
type Context interface {
	GPR(i int) uint64
	SetGPR(i int, v uint64)
	FPRSingle(i int) uint32
	SetFPRSingle(i int, v uint32)
	FPRDouble(i int) uint64
	SetFPRDouble(i int, v uint64)
	PC() uint64
	SetPC(pc uint64)
	XLEN() int
	Mem() *memory.Memory
	Fault(kind fault.Kind, data uint64, format string, args ...any) error
	// ReserveAddr/ClearReservation/CheckReservation back the A extension's
	// per-CPU single-granule reservation.
	ReserveAddr(addr uint64)
	CheckReservation(addr uint64) bool
	ClearReservation()
	// NoteAtomicSpin is called on every failed SC at pc; an
	// implementation that sees too many consecutive failures at the same
	// pc should raise fault.DeadlockReached.
	NoteAtomicSpin(pc uint64) error
	Ecall() error
	Ebreak() error
}

// Handler executes the semantic effect of the instruction stored in e.
// The caller never advances PC on a Handler's behalf: every Handler,
// including one that falls through normally, must set PC itself before
// returning (ctx.SetPC(ctx.PC()+uint64(e.OpcodeLength)) for fall-through).
// The CPU's fast loop compares PC after the call against the expected
// fall-through address to detect a branch, jump, call, or ecall and stop
// amortizing further slots, so no sentinel error is needed for control
// transfers — but a Handler that forgets to advance PC on fall-through
// looks exactly like one, and the fast loop stalls on it forever.
type Handler func(ctx Context, e *Entry) error

// Entry is one slot of the decoder cache.
type Entry struct {
	Handler Handler

	// Bits holds either the raw 32-bit (or 16-bit, widened) instruction,
	// or, after the rewriter runs, an operand-packed encoding. Handlers
	// interpret Bits according to which form they expect; the rewriter
	// only ever substitutes both Bits and Handler together so the two
	// stay consistent.
	Bits uint64

	// IdxEnd is the number of slots from this slot (inclusive) until the
	// next basic-block terminator, used by the CPU's fast loop to bound
	// a linear run.
	IdxEnd int

	// InstrCount is the number of true instructions within the IdxEnd
	// span (may be less than IdxEnd when 32-bit instructions occupy two
	// slots in a compressed build).
	InstrCount int

	// OpcodeLength is 2 or 4: how far PC advances after this slot.
	OpcodeLength uint8

	// Terminator marks this slot as ending a basic block (branch, jump,
	// system call, illegal, or any implicit-PC-mutating instruction).
	Terminator bool
}

// Cache is the decoder cache for one executable region
// [Base, Base+Length).
type Cache struct {
	Base    uint64
	Length  uint64
	Divisor uint64 // 2 if compressed extension enabled, else 4
	Entries []Entry
}

// SlotFor returns the cache slot index for a PC known to lie within
// [Base, Base+Length).
func (c *Cache) SlotFor(pc uint64) int {
	return int((pc - c.Base) / c.Divisor)
}

// Contains reports whether pc lies within this cache's region.
func (c *Cache) Contains(pc uint64) bool {
	return pc >= c.Base && pc < c.Base+c.Length
}

// EntryAt returns the entry for pc, which must satisfy Contains(pc).
func (c *Cache) EntryAt(pc uint64) *Entry {
	return &c.Entries[c.SlotFor(pc)]
}

// New allocates an empty cache sized for [base, base+length) at the
// given divisor.
func New(base, length, divisor uint64) *Cache {
	n := int((length + divisor - 1) / divisor)
	return &Cache{Base: base, Length: length, Divisor: divisor, Entries: make([]Entry, n)}
}
