package elfload

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/bassosimone/rve/pkg/memory"
)

// buildMinimalRISCVELF hand-assembles the smallest ELF64 RISC-V image
// Load can parse: one PT_LOAD segment carrying text, entry pointing at
// its start. debug/elf only reads ELF files, so the on-disk layout is
// built directly with encoding/binary against its Header64/Prog64
// structs.
func buildMinimalRISCVELF(t *testing.T, text []byte, vaddr uint64) []byte {
	t.Helper()
	const ehsize = 64
	const phsize = 56
	phoff := uint64(ehsize)
	textOff := phoff + phsize

	var buf bytes.Buffer
	hdr := elf.Header64{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)},
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_RISCV),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     vaddr,
		Phoff:     phoff,
		Shoff:     0,
		Ehsize:    ehsize,
		Phentsize: phsize,
		Phnum:     1,
		Shentsize: 0,
		Shnum:     0,
		Shstrndx:  0,
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		t.Fatalf("writing ELF header: %v", err)
	}
	prog := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    textOff,
		Vaddr:  vaddr,
		Paddr:  vaddr,
		Filesz: uint64(len(text)),
		Memsz:  uint64(len(text)),
		Align:  0x1000,
	}
	if err := binary.Write(&buf, binary.LittleEndian, prog); err != nil {
		t.Fatalf("writing program header: %v", err)
	}
	buf.Write(text)
	return buf.Bytes()
}

func TestLoadMapsExecutableSegmentAndEntry(t *testing.T) {
	vaddr := uint64(0x10000)
	text := []byte{0x13, 0x00, 0x00, 0x00} // addi x0, x0, 0 (nop)
	raw := buildMinimalRISCVELF(t, text, vaddr)

	mem := memory.New()
	img, err := Load(mem, raw)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != vaddr {
		t.Errorf("Entry = 0x%x, want 0x%x", img.Entry, vaddr)
	}
	if img.XLENBytes != 8 {
		t.Errorf("XLENBytes = %d, want 8", img.XLENBytes)
	}
	if len(img.Executable) != 1 {
		t.Fatalf("len(Executable) = %d, want 1", len(img.Executable))
	}
	if img.Executable[0].Base != alignDown(vaddr) {
		t.Errorf("Executable[0].Base = 0x%x, want 0x%x", img.Executable[0].Base, alignDown(vaddr))
	}

	got, err := memory.Read[uint32](mem, vaddr)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != 0x00000013 {
		t.Errorf("word at entry = 0x%x, want 0x00000013", got)
	}

	wantBreak := alignUp(vaddr + uint64(len(text)))
	if img.BreakStart != wantBreak {
		t.Errorf("BreakStart = 0x%x, want 0x%x", img.BreakStart, wantBreak)
	}
}

func TestLoadRejectsNonRISCV(t *testing.T) {
	vaddr := uint64(0x10000)
	raw := buildMinimalRISCVELF(t, []byte{0, 0, 0, 0}, vaddr)
	// Flip e_machine to something else (EM_X86_64 = 62) in the header.
	binary.LittleEndian.PutUint16(raw[18:20], 62)
	mem := memory.New()
	if _, err := Load(mem, raw); err == nil {
		t.Fatalf("Load accepted a non-RISC-V e_machine")
	}
}
