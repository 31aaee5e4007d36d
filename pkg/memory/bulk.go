package memory

import "github.com/bassosimone/rve/pkg/fault"

// clampRun returns how many bytes of a [addr, addr+remaining) walk fit
// in the current page, i.e. PAGE_SIZE - offset, clamped to remaining.
func clampRun(addr uint64, remaining uint64) uint64 {
	run := uint64(pageSizeConst) - offsetOf(addr)
	if run > remaining {
		run = remaining
	}
	return run
}

const pageSizeConst = 4096

// Memset fills length bytes starting at addr with value, walking page
// by page. It fails atomically: on a fault partway through, bytes
// already written before the fault remain written, but the call itself
// reports failure.
func (m *Memory) Memset(addr uint64, value byte, length uint64) error {
	for length > 0 {
		pg, off, err := m.resolveWrite(addr)
		if err != nil {
			return err
		}
		run := clampRun(addr, length)
		data := pg.Data[off : off+run]
		for i := range data {
			data[i] = value
		}
		addr += run
		length -= run
	}
	return nil
}

// MemcpyFromHost copies src into guest memory at addr.
func (m *Memory) MemcpyFromHost(addr uint64, src []byte) error {
	length := uint64(len(src))
	var pos uint64
	for length > 0 {
		pg, off, err := m.resolveWrite(addr)
		if err != nil {
			return err
		}
		run := clampRun(addr, length)
		copy(pg.Data[off:off+run], src[pos:pos+run])
		addr += run
		pos += run
		length -= run
	}
	return nil
}

// MemcpyToHost copies length bytes of guest memory at addr into a
// freshly allocated host slice.
func (m *Memory) MemcpyToHost(addr uint64, length uint64) ([]byte, error) {
	out := make([]byte, length)
	var pos uint64
	for length > 0 {
		pg, off, err := m.resolveRead(addr)
		if err != nil {
			return nil, err
		}
		run := clampRun(addr, length)
		copy(out[pos:pos+run], pg.Data[off:off+run])
		addr += run
		pos += run
		length -= run
	}
	return out, nil
}

// Memcpy copies length bytes from src to dst within this Memory's guest
// address space, walking both ranges page by page. When src, dst and
// length are all multiples of 4, the copy uses
// 4-byte batched word copies, matching the specification's "guest to
// guest memcpy with matching XLEN alignment uses 4-wide batched word
// copies".
func (m *Memory) Memcpy(dst, src uint64, length uint64) error {
	if length == 0 {
		return nil
	}
	wordAligned := dst%4 == 0 && src%4 == 0 && length%4 == 0
	step := uint64(1)
	if wordAligned {
		step = 4
	}
	for length > 0 {
		rpg, roff, err := m.resolveRead(src)
		if err != nil {
			return err
		}
		wpg, woff, err := m.resolveWrite(dst)
		if err != nil {
			return err
		}
		run := clampRun(src, length)
		if wrun := clampRun(dst, length); wrun < run {
			run = wrun
		}
		run -= run % step
		if run == 0 {
			run = 1
		}
		copy(wpg.Data[woff:woff+run], rpg.Data[roff:roff+run])
		dst += run
		src += run
		length -= run
	}
	return nil
}

// MemcpyMachines copies length bytes from src in srcMem to dst in this
// Memory, for the Machine-to-Machine helper named in the specification
// (used by multi-hart embedders moving data between independently
// mapped guest address spaces).
func (m *Memory) MemcpyMachines(dst uint64, srcMem *Memory, src uint64, length uint64) error {
	buf, err := srcMem.MemcpyToHost(src, length)
	if err != nil {
		return err
	}
	return m.MemcpyFromHost(dst, buf)
}

// Memcmp compares length bytes of guest memory starting at a and b,
// returning 0 if equal, <0 if a < b, >0 if a > b (first differing byte).
func (m *Memory) Memcmp(a, b uint64, length uint64) (int, error) {
	for length > 0 {
		apg, aoff, err := m.resolveRead(a)
		if err != nil {
			return 0, err
		}
		bpg, boff, err := m.resolveRead(b)
		if err != nil {
			return 0, err
		}
		run := clampRun(a, length)
		if brun := clampRun(b, length); brun < run {
			run = brun
		}
		for i := uint64(0); i < run; i++ {
			av, bv := apg.Data[aoff+i], bpg.Data[boff+i]
			if av != bv {
				return int(av) - int(bv), nil
			}
		}
		a += run
		b += run
		length -= run
	}
	return 0, nil
}

// Strlen returns the length of a NUL-terminated guest string starting
// at addr, not including the terminator, scanning at most maxlen bytes.
func (m *Memory) Strlen(addr uint64, maxlen uint64) (uint64, error) {
	var n uint64
	for n < maxlen {
		pg, off, err := m.resolveRead(addr + n)
		if err != nil {
			return 0, err
		}
		run := clampRun(addr+n, maxlen-n)
		data := pg.Data[off : off+run]
		for i, b := range data {
			if b == 0 {
				return n + uint64(i), nil
			}
		}
		n += run
	}
	return 0, fault.New(fault.OutOfMemory, addr, "string exceeds maxlen=%d without a NUL terminator", maxlen)
}

// Memstring reads a NUL-terminated guest string starting at addr (at
// most maxlen bytes, terminator excluded) into a Go string. It may
// cross any number of page boundaries.
func (m *Memory) Memstring(addr uint64, maxlen uint64) (string, error) {
	n, err := m.Strlen(addr, maxlen)
	if err != nil {
		return "", err
	}
	buf, err := m.MemcpyToHost(addr, n)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// RVBuffer is an alias for MemcpyToHost, named to match the
// specification's rvbuffer helper: a host-owned copy of a guest range.
func (m *Memory) RVBuffer(addr uint64, length uint64) ([]byte, error) {
	return m.MemcpyToHost(addr, length)
}

// RVString is an alias for Memstring.
func (m *Memory) RVString(addr uint64, maxlen uint64) (string, error) {
	return m.Memstring(addr, maxlen)
}

// RVView returns a direct host-pointer view of a guest range when it
// fits entirely within a single page or within the flat arena; it
// returns ok=false when the range straddles pages and the caller must
// fall back to RVBuffer.
func (m *Memory) RVView(addr uint64, length uint64) (view []byte, ok bool, err error) {
	if m.arena != nil && addr+length <= m.arenaReadEnd {
		return m.arena[addr : addr+length], true, nil
	}
	pg, off, err := m.resolveRead(addr)
	if err != nil {
		return nil, false, err
	}
	if off+length > pageSizeConst {
		return nil, false, nil
	}
	return pg.Data[off : off+length], true, nil
}

// MemView is an alias for RVView kept for parity with the
// specification's naming (rvview / memview both name the same
// single-page direct-view helper).
func (m *Memory) MemView(addr uint64, length uint64) ([]byte, bool, error) {
	return m.RVView(addr, length)
}

// GatherBuffersFromRange splits [addr, addr+length) into one []byte per
// page it touches, each clamped to that page's remaining bytes, for
// scatter-gather I/O (e.g. a readv/writev-shaped syscall). into must
// have enough capacity for every resulting chunk or OUT_OF_MEMORY is
// raised.
func (m *Memory) GatherBuffersFromRange(addr uint64, length uint64, into [][]byte) ([][]byte, error) {
	out := into[:0]
	for length > 0 {
		pg, off, err := m.resolveRead(addr)
		if err != nil {
			return nil, err
		}
		run := clampRun(addr, length)
		if len(out) >= cap(into) {
			return nil, fault.New(fault.OutOfMemory, addr, "scatter-gather vector exhausted")
		}
		out = append(out, pg.Data[off:off+run])
		addr += run
		length -= run
	}
	return out, nil
}

// GatherWritableBuffersFromRange behaves like GatherBuffersFromRange but
// resolves each page for writing (materializing CoW pages as needed).
func (m *Memory) GatherWritableBuffersFromRange(addr uint64, length uint64, into [][]byte) ([][]byte, error) {
	out := into[:0]
	for length > 0 {
		pg, off, err := m.resolveWrite(addr)
		if err != nil {
			return nil, err
		}
		run := clampRun(addr, length)
		if len(out) >= cap(into) {
			return nil, fault.New(fault.OutOfMemory, addr, "scatter-gather vector exhausted")
		}
		out = append(out, pg.Data[off:off+run])
		addr += run
		length -= run
	}
	return out, nil
}
