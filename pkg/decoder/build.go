package decoder

import "github.com/bassosimone/rve/pkg/memory"

// DecodeFunc classifies and decodes the instruction whose raw bits are
// raw (already widened to 32 bits for a 16-bit compressed instruction),
// returning the handler to dispatch and whether this slot terminates a
// basic block. The instruction's length comes from FetchRaw, not from
// the DecodeFunc.
type DecodeFunc func(raw uint32, is16 bool) (handler Handler, terminator bool, err error)

// RewriteFunc is invoked once per entry, in address order, after
// terminators are known; it may replace the entry's Bits and Handler
// with an operand-packed, specialized form. It must not read or modify
// any other entry's state.
type RewriteFunc func(pc uint64, e *Entry)

// FetchRaw reads the instruction bits at pc: 2 bytes if the low two
// bits are not 11 (a compressed instruction), widened to 32 bits by the
// caller-supplied decode logic; otherwise a full 4-byte read. Exported
// for callers (e.g. a disassembler) that need the same classification
// logic Build uses without re-deriving it.
func FetchRaw(mem *memory.Memory, pc uint64) (raw uint32, is16 bool, length uint8, err error) {
	lo, err := memory.Read[uint16](mem, pc)
	if err != nil {
		return 0, false, 0, err
	}
	if lo&0b11 != 0b11 {
		return uint32(lo), true, 2, nil
	}
	hi, err := memory.Read[uint16](mem, pc+2)
	if err != nil {
		return 0, false, 0, err
	}
	return uint32(lo) | uint32(hi)<<16, false, 4, nil
}

// Build populates a decoder cache for the executable region
// [base, base+length) by walking instructions with decode, computing
// each slot's IdxEnd/InstrCount, and finally applying rewrite to every
// slot. divisor is 2 when the compressed extension is enabled, else 4.
func Build(mem *memory.Memory, base, length, divisor uint64, decode DecodeFunc, rewrite RewriteFunc) (*Cache, error) {
	c := New(base, length, divisor)

	// Pass 1: walk by instruction length, decoding each slot.
	pc := base
	for pc < base+length {
		raw, is16, ilen, err := FetchRaw(mem, pc)
		if err != nil {
			return nil, err
		}
		handler, terminator, err := decode(raw, is16)
		if err != nil {
			return nil, err
		}
		e := c.EntryAt(pc)
		e.Bits = uint64(raw)
		e.Handler = handler
		e.OpcodeLength = ilen
		e.Terminator = terminator
		pc += uint64(ilen)
		if divisor == 4 && ilen == 2 {
			// Fixed-length (non-compressed) build should never see a
			// 16-bit opcode; treat as a single terminating slot so the
			// fast loop never runs past it.
			e.Terminator = true
		}
	}

	// Pass 2: compute IdxEnd/InstrCount from the end backwards. The last
	// dispatched slot always implicitly terminates a run (open question
	// in the specification resolved here): there is no fall-through slot
	// beyond the cache for it to span into, so it is forced to behave
	// like a terminator regardless of what decode said, before the
	// backward accumulation runs — doing this after the loop would only
	// fix that one slot's own IdxEnd and leave every earlier slot's
	// already-computed IdxEnd overstated by one, claiming a span that
	// runs past the cache's bounds.
	slots := len(c.Entries)
	for i := slots - 1; i >= 0; i-- {
		if c.Entries[i].Handler != nil {
			c.Entries[i].Terminator = true
			break
		}
	}
	idxend := 0
	instrcount := 0
	for i := slots - 1; i >= 0; i-- {
		e := &c.Entries[i]
		if e.Handler == nil {
			// Slot is the second half of a 32-bit instruction that
			// occupies two compressed-divisor slots; not independently
			// dispatched.
			continue
		}
		width := 1
		if divisor == 2 && e.OpcodeLength == 4 {
			width = 2
		}
		if e.Terminator {
			e.IdxEnd = width
			e.InstrCount = 1
		} else {
			e.IdxEnd = width + idxend
			e.InstrCount = 1 + instrcount
		}
		idxend = e.IdxEnd
		instrcount = e.InstrCount
	}

	// Pass 3: rewrite each slot in address order.
	for pc := base; pc < base+length; pc += divisor {
		e := c.EntryAt(pc)
		if e.Handler == nil {
			continue
		}
		rewrite(pc, e)
	}

	return c, nil
}
