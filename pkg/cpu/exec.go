package cpu

import (
	"github.com/bassosimone/rve/pkg/fault"
)

// Jump validates addr lies within one of this CPU's executable
// segments and sets PC to it. A target outside every known segment
// raises EXECUTION_SPACE_PROTECTION_FAULT rather than silently
// extending dispatch to an unmapped region.
func (c *CPU) Jump(addr uint64) error {
	if c.segmentFor(addr) == nil {
		return c.Fault(fault.ExecutionSpaceProtectionFault, addr, "jump target outside any executable segment")
	}
	c.Regs.PC = addr
	return nil
}

// StepOne fetches, decodes (via the segment's decoder cache), and
// executes exactly one instruction.
func (c *CPU) StepOne() error {
	seg := c.segmentFor(c.Regs.PC)
	if seg == nil {
		return c.Fault(fault.ExecutionSpaceProtectionFault, c.Regs.PC, "fetch from non-executable region")
	}
	e := seg.Cache.EntryAt(c.Regs.PC)
	if c.VerboseInstructions && c.Logger != nil {
		text := ""
		if c.Disassemble != nil {
			text = c.Disassemble(c, c.Regs.PC)
		}
		c.Logger("0x%08x: %s", c.Regs.PC, text)
	}
	err := e.Handler(c, e)
	if c.VerboseRegisters && c.Logger != nil {
		c.Logger("%s", c.String())
	}
	return err
}

// SimulatePrecise runs step_one in a loop, updating the counter and PC
// after every instruction. Used for debugging and verbose tracing,
// where the fast loop's batched counter/PC updates would be observable.
func (c *CPU) SimulatePrecise(budget uint64) error {
	limit := c.Counter + budget
	for c.Counter < limit && !c.StopRequested {
		if c.Profiler != nil {
			c.Profiler.Sample(c.Regs.PC)
		}
		if err := c.StepOne(); err != nil {
			return err
		}
		c.Counter++
	}
	return nil
}

// Simulate runs until budget instructions have executed, the stop flag
// is set, or an exception is raised, amortizing PC/counter updates
// across each basic block's span per the decoder cache's idxend.
func (c *CPU) Simulate(budget uint64) error {
	limit := c.Counter + budget
	for c.Counter < limit && !c.StopRequested {
		pc := c.Regs.PC
		if c.Profiler != nil {
			c.Profiler.Sample(pc)
		}
		seg := c.segmentFor(pc)
		if seg == nil {
			return c.Fault(fault.ExecutionSpaceProtectionFault, pc, "fetch from non-executable region")
		}
		e := seg.Cache.EntryAt(pc)
		instrCount := uint64(e.InstrCount)
		if instrCount == 0 {
			instrCount = 1
		}
		remaining := limit - c.Counter
		if instrCount > remaining {
			// This span would overshoot the budget; fall back to a single
			// precise step so the caller's instruction count is exact.
			if err := c.StepOne(); err != nil {
				return err
			}
			c.Counter++
			continue
		}
		c.Counter += instrCount
		if err := c.runSpan(seg, pc, seg.Cache.SlotFor(pc), uint64(e.IdxEnd)); err != nil {
			return err
		}
	}
	return nil
}

// runSpan executes exactly slots decoder-cache entries starting at
// (pc, idx), four at a time for fixed-length (divisor==4) segments per
// spec.md's fast-loop prologue, one instruction at a time otherwise,
// stepping over both slots a 4-byte instruction occupies when the
// divisor is 2. It returns as
// soon as a handler changes PC to anything other than the expected
// fall-through address — a branch, jump, call, or exception — letting
// Simulate's outer loop re-read the authoritative PC.
func (c *CPU) runSpan(seg *Segment, pc uint64, idx int, slots uint64) error {
	divisor := seg.Cache.Divisor
	for slots > 0 {
		if divisor == 4 && slots >= 4 {
			for k := 0; k < 4; k++ {
				ent := &seg.Cache.Entries[idx+k]
				cur := pc + uint64(k)*4
				c.Regs.PC = cur
				if err := ent.Handler(c, ent); err != nil {
					return err
				}
				if c.Regs.PC != cur+4 {
					return nil
				}
			}
			idx += 4
			pc += 16
			slots -= 4
			continue
		}
		ent := &seg.Cache.Entries[idx]
		c.Regs.PC = pc
		if err := ent.Handler(c, ent); err != nil {
			return err
		}
		if c.Regs.PC != pc+uint64(ent.OpcodeLength) {
			return nil
		}
		// A 4-byte instruction in a divisor-2 cache occupies two slots.
		width := uint64(ent.OpcodeLength) / divisor
		if width == 0 {
			width = 1
		}
		pc += uint64(ent.OpcodeLength)
		idx += int(width)
		if width > slots {
			width = slots
		}
		slots -= width
	}
	return nil
}

// exceptionMessages is the fixed kind -> message table spec.md §7
// names for TriggerException; handlers that need a dynamic detail
// (a faulting address, an operand) call Fault directly instead.
var exceptionMessages = map[fault.Kind]string{
	fault.IllegalOpcode:                  "opcode bits decode to no handler",
	fault.IllegalOperation:               "valid opcode, invalid operand combination",
	fault.ProtectionFault:                "read/write to page lacking the required attribute",
	fault.ExecutionSpaceProtectionFault:  "pc fetch from non-executable page",
	fault.MisalignedInstruction:          "jump/branch target not aligned to 2",
	fault.InvalidAlignment:               "typed access violates natural alignment",
	fault.UnimplementedInstruction:       "handler intentionally absent",
	fault.DeadlockReached:                "atomic spin detector fired",
	fault.OutOfMemory:                    "allocation or scatter-gather vector exhausted",
	fault.UnknownException:               "unknown exception",
}

// TriggerException raises a MachineException of kind carrying data,
// using the fixed kind->message table rather than a caller-supplied
// format string.
func (c *CPU) TriggerException(kind fault.Kind, data uint64) error {
	msg, ok := exceptionMessages[kind]
	if !ok {
		msg = exceptionMessages[fault.UnknownException]
	}
	return c.Fault(kind, data, "%s", msg)
}

// Fork returns a new CPU sharing this one's Memory and, when
// shareSegments is true, its Segments slice (spec.md: "forked CPUs
// share the executable segment pointer"). The register file is always
// a deep copy via regfile.Clone.
func (c *CPU) Fork(id int, excludeVector, shareSegments bool) *CPU {
	out := &CPU{
		ID:              id,
		mem:             c.mem,
		Regs:            c.Regs.Clone(excludeVector),
		spinCounts:      make(map[uint64]int),
		MaxInstructions: c.MaxInstructions,
		EcallHandler:    c.EcallHandler,
		EbreakHandler:   c.EbreakHandler,
		Logger:          c.Logger,
		Disassemble:     c.Disassemble,
	}
	if shareSegments {
		out.Segments = c.Segments
	} else {
		out.Segments = append([]*Segment(nil), c.Segments...)
	}
	return out
}
