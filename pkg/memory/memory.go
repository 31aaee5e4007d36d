// Package memory implements the paged guest address space: a sparse
// map from page number to page.Page, a one-slot read/write hot cache,
// an optional flat arena fast path, and the bulk host/guest copy
// helpers the CPU and syscall layer build on.
package memory

import (
	"github.com/bassosimone/rve/pkg/fault"
	"github.com/bassosimone/rve/pkg/page"
)

// PageFaultFunc produces a page for a pageno that has never been
// mapped. The default implementation allocates a zeroed owning page.
type PageFaultFunc func(m *Memory, pageno uint64) (*page.Page, error)

// Memory owns the guest address space.
type Memory struct {
	pages map[uint64]*page.Page

	rdPageno uint64
	rdPage   *page.Page
	wrPageno uint64
	wrPage   *page.Page
	rdValid  bool
	wrValid  bool

	// Flat arena: an optional contiguous host buffer fast path covering
	// [0, len(arena)). arenaReadEnd/arenaWriteEnd let reads and writes be
	// enabled independently, per spec.md's "writes use a separate write
	// boundary".
	arena         []byte
	arenaReadEnd  uint64
	arenaWriteEnd uint64

	// AllowWriteExecSegment permits pages to carry both write and exec
	// attributes simultaneously; by default SetPageAttr rejects W|X.
	AllowWriteExecSegment bool

	// TrapsEnabled gates whether a page's trap callback is consulted.
	TrapsEnabled bool

	// MaxPages caps the number of distinct owning pages CreatePage will
	// allocate; 0 means unbounded. Backs machine.Config's memory_max,
	// converted to a page count by the caller.
	MaxPages uint64

	PageFaultHandler PageFaultFunc

	StartPC uint64
	ExitPC  uint64

	// SymbolTable maps symbol name to guest address, populated lazily
	// (typically by pkg/elfload from an ELF's .symtab).
	SymbolTable map[string]uint64
	// SectionTable maps section name to (addr, size).
	SectionTable map[string][2]uint64
}

// New constructs an empty Memory with the default page-fault handler
// (allocate a zeroed owning page on demand).
func New() *Memory {
	return &Memory{
		pages:        make(map[uint64]*page.Page),
		SymbolTable:  make(map[string]uint64),
		SectionTable: make(map[string][2]uint64),
		PageFaultHandler: func(m *Memory, pageno uint64) (*page.Page, error) {
			return page.NewOwning(), nil
		},
	}
}

// EnableFlatArena installs a contiguous host buffer covering
// [0, len(buf)) as the fast path for addresses under readEnd/writeEnd.
// The arena coexists with paged memory for addresses outside its bounds;
// per the specification's open question, the arena is authoritative
// within its bounds and is never mirrored into the page map.
func (m *Memory) EnableFlatArena(buf []byte, readEnd, writeEnd uint64) {
	m.arena = buf
	m.arenaReadEnd = readEnd
	m.arenaWriteEnd = writeEnd
}

func pageOf(addr uint64) uint64   { return addr / page.Size }
func offsetOf(addr uint64) uint64 { return addr % page.Size }

// invalidateReadSlot drops the read hot-slot cache if it refers to
// pageno; callers must do this after any attribute change or allocation
// that could affect what the slot observes.
func (m *Memory) invalidateReadSlot(pageno uint64) {
	if m.rdValid && m.rdPageno == pageno {
		m.rdValid = false
	}
}

func (m *Memory) invalidateWriteSlot(pageno uint64) {
	if m.wrValid && m.wrPageno == pageno {
		m.wrValid = false
	}
}

// GetPageno returns the mapped page at pageno, or the shared zero page
// if nothing is mapped there. It never allocates.
func (m *Memory) GetPageno(pageno uint64) *page.Page {
	if p, ok := m.pages[pageno]; ok {
		return p
	}
	return page.Zero()
}

// GetExecPageno returns the mapped page at pageno or raises
// EXECUTION_SPACE_PROTECTION_FAULT if the page is not executable.
func (m *Memory) GetExecPageno(pageno uint64) (*page.Page, error) {
	p := m.GetPageno(pageno)
	if !p.Attrs.Exec {
		return nil, fault.New(fault.ExecutionSpaceProtectionFault, pageno*page.Size,
			"fetch from non-executable page")
	}
	return p, nil
}

// CreatePage returns a writable, owning page at pageno, allocating or
// promoting it as needed. If nothing is mapped, the page-fault handler
// is invoked. If a CoW page is mapped, it is promoted to an owning copy
// of the zero page's contents.
func (m *Memory) CreatePage(pageno uint64) (*page.Page, error) {
	p, ok := m.pages[pageno]
	if !ok {
		if m.MaxPages != 0 && uint64(len(m.pages)) >= m.MaxPages {
			return nil, fault.New(fault.OutOfMemory, pageno*page.Size, "memory_max exceeded: %d pages mapped", len(m.pages))
		}
		np, err := m.PageFaultHandler(m, pageno)
		if err != nil {
			return nil, err
		}
		m.pages[pageno] = np
		m.invalidateReadSlot(pageno)
		m.invalidateWriteSlot(pageno)
		return np, nil
	}
	if p.Attrs.IsCOW || p.Attrs.NonOwning {
		np := p.Clone()
		m.pages[pageno] = np
		m.invalidateReadSlot(pageno)
		m.invalidateWriteSlot(pageno)
		return np, nil
	}
	return p, nil
}

// SetPageAttr applies attrs over [addr, addr+length). For the default
// attributes, pages that are still CoW are left unmapped (no
// allocation); for any non-default attributes, pages are materialized
// as needed so the new attributes have somewhere to live.
func (m *Memory) SetPageAttr(addr, length uint64, attrs page.Attributes) error {
	if attrs.Write && attrs.Exec && !m.AllowWriteExecSegment {
		return fault.New(fault.IllegalOperation, addr, "W|X pages are not permitted")
	}
	start := pageOf(addr)
	end := pageOf(addr + length - 1)
	isDefault := attrs == page.Default()
	for pn := start; pn <= end; pn++ {
		if isDefault {
			if p, ok := m.pages[pn]; ok {
				if p.Attrs.IsCOW {
					continue
				}
				p.Attrs = attrs
				m.invalidateReadSlot(pn)
				m.invalidateWriteSlot(pn)
			}
			continue
		}
		p, err := m.CreatePage(pn)
		if err != nil {
			return err
		}
		p.Attrs = attrs
		m.invalidateReadSlot(pn)
		m.invalidateWriteSlot(pn)
	}
	return nil
}

// MapSegment installs data as owning pages covering
// [pageOf(addr), pageOf(addr+len(data)-1)] with the given attrs,
// unconditionally materializing every page regardless of whether attrs
// equals the default (unlike SetPageAttr, which intentionally leaves
// still-unmapped, default-attribute pages alone so they keep reading
// through the shared CoW zero page). It exists for loaders (pkg/elfload)
// that need to place real segment bytes rather than lazily fault them
// in.
func (m *Memory) MapSegment(addr uint64, data []byte, attrs page.Attributes) error {
	if attrs.Write && attrs.Exec && !m.AllowWriteExecSegment {
		return fault.New(fault.IllegalOperation, addr, "W|X pages are not permitted")
	}
	if len(data) == 0 {
		return nil
	}
	start := pageOf(addr)
	end := pageOf(addr + uint64(len(data)) - 1)
	srcOff := 0
	for pn := start; pn <= end; pn++ {
		p, err := m.CreatePage(pn)
		if err != nil {
			return err
		}
		var dstOff uint64
		if pn == start {
			dstOff = offsetOf(addr)
		}
		run := uint64(page.Size) - dstOff
		if remaining := uint64(len(data) - srcOff); run > remaining {
			run = remaining
		}
		// Copied directly into p.Data rather than through Write[T] or
		// MemcpyFromHost: those enforce attrs.Write, which a read-only
		// or exec-only segment (the common case for .text) does not
		// have, and attrs is set below only after the bytes land.
		copy(p.Data[dstOff:dstOff+run], data[srcOff:srcOff+int(run)])
		srcOff += int(run)
		p.Attrs = attrs
		m.invalidateReadSlot(pn)
		m.invalidateWriteSlot(pn)
	}
	return nil
}

// FreePages erases every non-CoW page intersecting [addr, addr+length).
func (m *Memory) FreePages(addr, length uint64) {
	start := pageOf(addr)
	end := pageOf(addr + length - 1)
	for pn := start; pn <= end; pn++ {
		if p, ok := m.pages[pn]; ok && !p.Attrs.IsCOW {
			delete(m.pages, pn)
			m.invalidateReadSlot(pn)
			m.invalidateWriteSlot(pn)
		}
	}
}

// resolveRead returns the page backing addr for a read access, using
// and refreshing the read hot slot.
func (m *Memory) resolveRead(addr uint64) (*page.Page, uint64, error) {
	pn := pageOf(addr)
	if m.rdValid && m.rdPageno == pn {
		return m.rdPage, offsetOf(addr), nil
	}
	p := m.GetPageno(pn)
	if !p.Attrs.Read {
		return nil, 0, fault.New(fault.ProtectionFault, addr, "page not readable")
	}
	m.rdPageno, m.rdPage, m.rdValid = pn, p, true
	return p, offsetOf(addr), nil
}

// resolveWrite returns the page backing addr for a write access,
// materializing a CoW page first, and refreshes the write hot slot.
func (m *Memory) resolveWrite(addr uint64) (*page.Page, uint64, error) {
	pn := pageOf(addr)
	p := m.GetPageno(pn)
	if !p.Attrs.Write && !p.Attrs.IsCOW {
		return nil, 0, fault.New(fault.ProtectionFault, addr, "page not writable")
	}
	if p.Attrs.IsCOW || p.Attrs.NonOwning {
		np, err := m.CreatePage(pn)
		if err != nil {
			return nil, 0, err
		}
		p = np
	}
	m.wrPageno, m.wrPage, m.wrValid = pn, p, true
	return p, offsetOf(addr), nil
}

// Value is the set of integer widths the typed read/write operations
// support.
type Value interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

func sizeOf[T Value]() int {
	var v T
	switch any(v).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

// Read performs an aligned, typed read of addr, consulting the read hot
// slot first and falling through to a page lookup on miss. If the page
// traps and traps are enabled, the trap callback supplies the value
// instead of backing memory.
func Read[T Value](m *Memory, addr uint64) (T, error) {
	size := sizeOf[T]()
	if m.arena != nil && addr+uint64(size) <= m.arenaReadEnd {
		return readArena[T](m.arena, addr), nil
	}
	pg, off, err := m.resolveRead(addr)
	if err != nil {
		var zero T
		return zero, err
	}
	if m.TrapsEnabled && pg.Attrs.HasTrap && pg.Trap != nil {
		v, err := pg.Trap(uint32(off), size, page.TrapRead, 0)
		if err != nil {
			var zero T
			return zero, err
		}
		return T(v), nil
	}
	return readBytes[T](pg.Data, off), nil
}

// Write performs an aligned, typed write of v to addr, refreshing the
// write hot slot (the slot is recorded but not consulted on lookup). Writing a trapped page discards the
// slot update and routes through the trap callback instead.
func Write[T Value](m *Memory, addr uint64, v T) error {
	size := sizeOf[T]()
	if m.arena != nil && addr+uint64(size) <= m.arenaWriteEnd {
		writeArena[T](m.arena, addr, v)
		return nil
	}
	pg, off, err := m.resolveWrite(addr)
	if err != nil {
		return err
	}
	if m.TrapsEnabled && pg.Attrs.HasTrap && pg.Trap != nil {
		m.wrValid = false
		_, err := pg.Trap(uint32(off), size, page.TrapWrite, uint64(v))
		return err
	}
	writeBytes[T](pg.Data, off, v)
	return nil
}

func readArena[T Value](buf []byte, addr uint64) T {
	return readBytes[T](buf, addr)
}

func writeArena[T Value](buf []byte, addr uint64, v T) {
	writeBytes[T](buf, addr, v)
}

func readBytes[T Value](data []byte, off uint64) T {
	switch sizeOf[T]() {
	case 1:
		return T(data[off])
	case 2:
		return T(uint16(data[off]) | uint16(data[off+1])<<8)
	case 4:
		return T(uint32(data[off]) | uint32(data[off+1])<<8 |
			uint32(data[off+2])<<16 | uint32(data[off+3])<<24)
	default:
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(data[off+uint64(i)]) << (8 * i)
		}
		return T(v)
	}
}

func writeBytes[T Value](data []byte, off uint64, val T) {
	switch sizeOf[T]() {
	case 1:
		data[off] = byte(val)
	case 2:
		v := uint16(val)
		data[off] = byte(v)
		data[off+1] = byte(v >> 8)
	case 4:
		v := uint32(val)
		data[off] = byte(v)
		data[off+1] = byte(v >> 8)
		data[off+2] = byte(v >> 16)
		data[off+3] = byte(v >> 24)
	default:
		v := uint64(val)
		for i := 0; i < 8; i++ {
			data[off+uint64(i)] = byte(v >> (8 * i))
		}
	}
}
