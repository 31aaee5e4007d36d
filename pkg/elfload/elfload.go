// Package elfload loads a RISC-V ELF image into a memory.Memory: it
// maps every PT_LOAD segment with the page attributes its ELF flags
// imply, records the entry PC, and populates the symbol and section
// tables pkg/memory exposes for ResolveAddress/ResolveSection-style
// lookups.
package elfload

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/bassosimone/rve/pkg/memory"
	"github.com/bassosimone/rve/pkg/page"
)

// Image is the result of loading an ELF file: the populated memory,
// the entry PC, and the XLEN (bytes per integer register) the ELF
// class implies.
type Image struct {
	XLENBytes int
	Entry     uint64
	// Executable lists the [base, base+length) ranges PT_LOAD mapped
	// with the exec flag, in file order, for the caller to build decoder
	// caches over.
	Executable []ExecRange
	// BreakStart is the page-aligned address just past the highest
	// byte any PT_LOAD segment occupies, the conventional initial
	// brk(2) value a syscall layer grows the heap from.
	BreakStart uint64
}

// ExecRange is one executable region to build a decoder cache for.
type ExecRange struct {
	Base   uint64
	Length uint64
}

// Load reads a RISC-V ELF image from r's bytes and maps it into mem.
// mem must already exist (typically memory.New()); Load only populates
// it, it does not construct a Machine or CPU.
func Load(mem *memory.Memory, r []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("elfload: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("elfload: unexpected e_machine %s, want EM_RISCV", f.Machine)
	}
	xlenBytes := 4
	if f.Class == elf.ELFCLASS64 {
		xlenBytes = 8
	}

	img := &Image{XLENBytes: xlenBytes, Entry: f.Entry}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Memsz)
		if prog.Filesz > 0 {
			buf := make([]byte, prog.Filesz)
			sr := prog.Open()
			if _, err := readFull(sr, buf); err != nil {
				return nil, fmt.Errorf("elfload: reading PT_LOAD segment: %w", err)
			}
			copy(data, buf)
		}
		attrs := page.Attributes{
			Read:  prog.Flags&elf.PF_R != 0,
			Write: prog.Flags&elf.PF_W != 0,
			Exec:  prog.Flags&elf.PF_X != 0,
		}
		if err := mapSegment(mem, prog.Vaddr, data, attrs); err != nil {
			return nil, err
		}
		if attrs.Exec {
			img.Executable = append(img.Executable, ExecRange{Base: alignDown(prog.Vaddr), Length: alignUp(prog.Vaddr+prog.Memsz) - alignDown(prog.Vaddr)})
		}
		if end := alignUp(prog.Vaddr + prog.Memsz); end > img.BreakStart {
			img.BreakStart = end
		}
	}

	syms, err := f.Symbols()
	if err == nil {
		for _, s := range syms {
			if s.Name != "" {
				mem.SymbolTable[s.Name] = s.Value
			}
		}
	}
	for _, sec := range f.Sections {
		if sec.Name != "" && sec.Addr != 0 {
			mem.SectionTable[sec.Name] = [2]uint64{sec.Addr, sec.Size}
		}
	}

	mem.StartPC = f.Entry
	return img, nil
}

// mapSegment installs data as a sequence of owning pages starting at
// the page containing vaddr, applying attrs to each.
func mapSegment(mem *memory.Memory, vaddr uint64, data []byte, attrs page.Attributes) error {
	if len(data) == 0 {
		return nil
	}
	base := alignDown(vaddr)
	offsetInFirst := vaddr - base
	padded := make([]byte, offsetInFirst+uint64(len(data)))
	copy(padded[offsetInFirst:], data)
	return mem.MapSegment(base, padded, attrs)
}

func alignDown(v uint64) uint64 { return v &^ (page.Size - 1) }
func alignUp(v uint64) uint64   { return (v + page.Size - 1) &^ (page.Size - 1) }

type reader interface {
	Read(p []byte) (int, error)
}

func readFull(r reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}
