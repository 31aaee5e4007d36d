package decoder

import (
	"testing"

	"github.com/bassosimone/rve/pkg/memory"
)

func nopHandler(ctx Context, e *Entry) error { return nil }

// fakeDecode classifies every slot as a plain 4-byte non-terminating
// instruction, except when raw == 0xffffffff (our synthetic "branch"
// marker), which terminates a basic block.
func fakeDecode(raw uint32, is16 bool) (Handler, bool, error) {
	return nopHandler, raw == 0xffffffff, nil
}

func noopRewrite(pc uint64, e *Entry) {}

func TestBuildIdxEndSpansToNextTerminator(t *testing.T) {
	mem := memory.New()
	base := uint64(0x1000)
	// Five plain 4-byte instructions (low bits 11), the fourth a terminator.
	words := []uint32{0x13, 0x93, 0x113, 0xffffffff, 0x193}
	for i, w := range words {
		if err := memory.Write[uint32](mem, base+uint64(i*4), w); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	c, err := Build(mem, base, uint64(len(words)*4), 4, fakeDecode, noopRewrite)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := c.Entries[0].IdxEnd; got != 4 {
		t.Errorf("Entries[0].IdxEnd = %d, want 4 (span to the terminator)", got)
	}
	if got := c.Entries[0].InstrCount; got != 4 {
		t.Errorf("Entries[0].InstrCount = %d, want 4", got)
	}
	if !c.Entries[3].Terminator {
		t.Errorf("Entries[3].Terminator = false, want true")
	}
	if got := c.Entries[3].IdxEnd; got != 1 {
		t.Errorf("Entries[3].IdxEnd = %d, want 1 (a terminator's own span)", got)
	}
	// The final slot always implicitly terminates, even though fakeDecode
	// did not mark it.
	last := &c.Entries[len(words)-1]
	if got := last.IdxEnd; got != 1 {
		t.Errorf("last slot IdxEnd = %d, want 1 (implicit end-of-cache terminator)", got)
	}
}

func TestBuildRewriteRunsInAddressOrder(t *testing.T) {
	mem := memory.New()
	base := uint64(0x2000)
	for i := 0; i < 3; i++ {
		if err := memory.Write[uint32](mem, base+uint64(i*4), uint32(i)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	var seen []uint64
	rewrite := func(pc uint64, e *Entry) {
		seen = append(seen, pc)
	}
	if _, err := Build(mem, base, 12, 4, fakeDecode, rewrite); err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []uint64{base, base + 4, base + 8}
	if len(seen) != len(want) {
		t.Fatalf("rewrite ran %d times, want %d", len(seen), len(want))
	}
	for i, pc := range want {
		if seen[i] != pc {
			t.Errorf("rewrite call %d saw pc=0x%x, want 0x%x", i, seen[i], pc)
		}
	}
}

func TestCacheSlotForAndContains(t *testing.T) {
	c := New(0x1000, 0x100, 4)
	if !c.Contains(0x1000) || !c.Contains(0x10fc) {
		t.Errorf("Contains failed for in-range addresses")
	}
	if c.Contains(0x1100) {
		t.Errorf("Contains(0x1100) = true, want false (out of range)")
	}
	if got := c.SlotFor(0x1008); got != 2 {
		t.Errorf("SlotFor(0x1008) = %d, want 2", got)
	}
}

func TestFetchRawDistinguishesCompressed(t *testing.T) {
	mem := memory.New()
	// Low two bits != 11 marks a compressed (16-bit) instruction.
	if err := memory.Write[uint16](mem, 0x3000, 0x0001); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, is16, length, err := FetchRaw(mem, 0x3000)
	if err != nil {
		t.Fatalf("FetchRaw: %v", err)
	}
	if !is16 || length != 2 || raw != 1 {
		t.Fatalf("FetchRaw(compressed) = (0x%x, %v, %d), want (1, true, 2)", raw, is16, length)
	}

	if err := memory.Write[uint32](mem, 0x4000, 0x00000013); err != nil { // low bits 11
		t.Fatalf("Write: %v", err)
	}
	raw, is16, length, err = FetchRaw(mem, 0x4000)
	if err != nil {
		t.Fatalf("FetchRaw: %v", err)
	}
	if is16 || length != 4 || raw != 0x13 {
		t.Fatalf("FetchRaw(full) = (0x%x, %v, %d), want (0x13, false, 4)", raw, is16, length)
	}
}
