package isa

import (
	"testing"

	"github.com/bassosimone/rve/pkg/cpu"
	"github.com/bassosimone/rve/pkg/decoder"
	"github.com/bassosimone/rve/pkg/memory"
	"github.com/bassosimone/rve/pkg/page"
)

func encodeItype(opcode uint32, rdN, funct3, rs1N uint32, imm int32) uint32 {
	return opcode | rdN<<7 | funct3<<12 | rs1N<<15 | (uint32(imm)&0xfff)<<20
}

func encodeRtype(opcode uint32, rdN, funct3, rs1N, rs2N, funct7 uint32) uint32 {
	return opcode | rdN<<7 | funct3<<12 | rs1N<<15 | rs2N<<20 | funct7<<25
}

func encodeJtype(rdN uint32, offset int32) uint32 {
	u := uint32(offset)
	imm20 := (u >> 20) & 1
	imm10_1 := (u >> 1) & 0x3ff
	imm11 := (u >> 11) & 1
	imm19_12 := (u >> 12) & 0xff
	return opJAL | rdN<<7 | imm19_12<<12 | imm11<<20 | imm10_1<<21 | imm20<<31
}

// encodeUtype encodes a U-type instruction (LUI/AUIPC); imm20 is the
// already-positioned 20-bit upper immediate (bits 31:12 of the result).
func encodeUtype(opcode, rdN uint32, imm20 uint32) uint32 {
	return opcode | rdN<<7 | (imm20 << 12)
}

// buildCPU writes words (already raw-encoded instructions) starting at
// base, maps that range executable, builds a decoder cache via the
// real isa decode/rewrite functions, and returns a ready-to-step CPU.
func buildCPU(t *testing.T, base uint64, words []uint32) (*cpu.CPU, *decoder.Cache) {
	t.Helper()
	mem := memory.New()
	for i, w := range words {
		if err := memory.Write[uint32](mem, base+uint64(i*4), w); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	length := uint64(len(words) * 4)
	if err := mem.SetPageAttr(base, length, page.Attributes{Read: true, Exec: true}); err != nil {
		t.Fatalf("SetPageAttr: %v", err)
	}
	c, err := decoder.Build(mem, base, length, 4, NewDecodeFunc(8, Extensions{M: true, A: true}), NewRewriteFunc())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cp := cpu.New(0, 8, mem)
	cp.AddSegment(base, length, c)
	cp.Regs.PC = base
	return cp, c
}

func TestFastImmAndOpRoundTripThroughSimulate(t *testing.T) {
	base := uint64(0x1000)
	words := []uint32{
		encodeItype(opImm, 1, 0, 0, 5),  // addi x1, x0, 5
		encodeItype(opImm, 2, 0, 1, 7),  // addi x2, x1, 7
		encodeRtype(opOp, 3, 0, 1, 2, 0), // add x3, x1, x2
	}
	cp, _ := buildCPU(t, base, words)
	if err := cp.Simulate(uint64(len(words))); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got := cp.GPR(1); got != 5 {
		t.Errorf("x1 = %d, want 5", got)
	}
	if got := cp.GPR(2); got != 12 {
		t.Errorf("x2 = %d, want 12", got)
	}
	if got := cp.GPR(3); got != 17 {
		t.Errorf("x3 = %d, want 17", got)
	}
	if cp.Regs.PC != base+uint64(len(words)*4) {
		t.Errorf("PC = 0x%x, want 0x%x", cp.Regs.PC, base+uint64(len(words)*4))
	}
}

func TestPreciseAndFastLoopsAgree(t *testing.T) {
	base := uint64(0x2000)
	words := []uint32{
		encodeItype(opImm, 1, 0, 0, 3),
		encodeItype(opImm, 2, 0, 1, 4),
		encodeRtype(opOp, 3, 0, 1, 2, 0),
		encodeItype(opImm, 4, 0, 3, 1),
	}
	fast, _ := buildCPU(t, base, words)
	if err := fast.Simulate(uint64(len(words))); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	precise, _ := buildCPU(t, base, words)
	if err := precise.SimulatePrecise(uint64(len(words))); err != nil {
		t.Fatalf("SimulatePrecise: %v", err)
	}
	for i := 1; i < 5; i++ {
		if fast.GPR(i) != precise.GPR(i) {
			t.Errorf("x%d: fast=%d precise=%d, want equal", i, fast.GPR(i), precise.GPR(i))
		}
	}
	if fast.Regs.PC != precise.Regs.PC {
		t.Errorf("fast PC=0x%x precise PC=0x%x, want equal", fast.Regs.PC, precise.Regs.PC)
	}
}

func TestFastJalDiscardsLinkWhenRdIsZero(t *testing.T) {
	base := uint64(0x3000)
	words := []uint32{
		encodeJtype(0, 8), // jal x0, +8 (skip the next word)
		encodeItype(opImm, 1, 0, 0, 99),
		encodeItype(opImm, 2, 0, 0, 1),
	}
	cp, _ := buildCPU(t, base, words)
	if err := cp.StepOne(); err != nil {
		t.Fatalf("StepOne: %v", err)
	}
	if cp.Regs.PC != base+8 {
		t.Fatalf("PC = 0x%x, want 0x%x (jumped over the skipped word)", cp.Regs.PC, base+8)
	}
	if cp.GPR(0) != 0 {
		t.Fatalf("x0 = %d, want 0 (hardwired)", cp.GPR(0))
	}
}

func TestFastJalWritesLinkWhenRdNonzero(t *testing.T) {
	base := uint64(0x4000)
	words := []uint32{
		encodeJtype(1, 4), // jal x1, +4
		encodeItype(opImm, 2, 0, 0, 1),
	}
	cp, _ := buildCPU(t, base, words)
	if err := cp.StepOne(); err != nil {
		t.Fatalf("StepOne: %v", err)
	}
	if got := cp.GPR(1); got != base+4 {
		t.Errorf("x1 (link) = 0x%x, want 0x%x", got, base+4)
	}
	if cp.Regs.PC != base+4 {
		t.Errorf("PC = 0x%x, want 0x%x", cp.Regs.PC, base+4)
	}
}

func TestLUIAndAUIPCAdvancePCThroughFastLoop(t *testing.T) {
	base := uint64(0x6000)
	words := []uint32{
		encodeUtype(opLUI, 1, 0x12345),   // lui x1, 0x12345
		encodeUtype(opAUIPC, 2, 0x1),     // auipc x2, 0x1
		encodeItype(opImm, 3, 0, 0, 9),   // addi x3, x0, 9 (would stall forever if PC never advanced)
	}
	cp, _ := buildCPU(t, base, words)
	if err := cp.Simulate(uint64(len(words))); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got, want := cp.GPR(1), uint64(0x12345000); got != want {
		t.Errorf("x1 (lui) = 0x%x, want 0x%x", got, want)
	}
	if got, want := cp.GPR(2), base+4+0x1000; got != want {
		t.Errorf("x2 (auipc) = 0x%x, want 0x%x", got, want)
	}
	if got := cp.GPR(3); got != 9 {
		t.Errorf("x3 = %d, want 9 (never reached if LUI/AUIPC stalled the fast loop)", got)
	}
	if want := base + uint64(len(words)*4); cp.Regs.PC != want {
		t.Errorf("PC = 0x%x, want 0x%x", cp.Regs.PC, want)
	}
}

func TestLUIAndAUIPCAgreeBetweenFastAndPreciseLoops(t *testing.T) {
	base := uint64(0x6100)
	words := []uint32{
		encodeUtype(opLUI, 1, 0xfffff),
		encodeUtype(opAUIPC, 2, 0x0),
	}
	fast, _ := buildCPU(t, base, words)
	if err := fast.Simulate(uint64(len(words))); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	precise, _ := buildCPU(t, base, words)
	if err := precise.SimulatePrecise(uint64(len(words))); err != nil {
		t.Fatalf("SimulatePrecise: %v", err)
	}
	for i := 1; i < 3; i++ {
		if fast.GPR(i) != precise.GPR(i) {
			t.Errorf("x%d: fast=0x%x precise=0x%x, want equal", i, fast.GPR(i), precise.GPR(i))
		}
	}
	if fast.Regs.PC != precise.Regs.PC {
		t.Errorf("fast PC=0x%x precise PC=0x%x, want equal", fast.Regs.PC, precise.Regs.PC)
	}
}

func TestNegativeImmediateSignExtendsThroughFastLoop(t *testing.T) {
	base := uint64(0x6200)
	words := []uint32{
		encodeItype(opImm, 1, 0, 0, -1),  // addi x1, x0, -1
		encodeItype(opImm, 2, 7, 0, -1),  // andi x2, x0, -1
	}
	cp, _ := buildCPU(t, base, words)
	if err := cp.Simulate(uint64(len(words))); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if got, want := cp.GPR(1), uint64(0xFFFFFFFFFFFFFFFF); got != want {
		t.Errorf("x1 (addi x0, -1) = 0x%x, want 0x%x (full 64-bit sign extension on RV64)", got, want)
	}
	if got, want := cp.GPR(2), uint64(0); got != want {
		t.Errorf("x2 (andi x0, -1) = 0x%x, want 0x%x", got, want)
	}
}

func TestNegativeImmediateAgreeBetweenFastAndPreciseLoops(t *testing.T) {
	base := uint64(0x6300)
	words := []uint32{
		encodeItype(opImm, 1, 0, 0, -2),   // addi x1, x0, -2
		encodeItype(opImm, 2, 2, 1, -3),   // slti x2, x1, -3
		encodeItype(opImm, 3, 3, 1, -3),   // sltiu x3, x1, -3
	}
	fast, _ := buildCPU(t, base, words)
	if err := fast.Simulate(uint64(len(words))); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	precise, _ := buildCPU(t, base, words)
	if err := precise.SimulatePrecise(uint64(len(words))); err != nil {
		t.Fatalf("SimulatePrecise: %v", err)
	}
	for i := 1; i < 4; i++ {
		if fast.GPR(i) != precise.GPR(i) {
			t.Errorf("x%d: fast=0x%x precise=0x%x, want equal", i, fast.GPR(i), precise.GPR(i))
		}
	}
	if got, want := fast.GPR(1), uint64(0xFFFFFFFFFFFFFFFE); got != want {
		t.Errorf("x1 = 0x%x, want 0x%x", got, want)
	}
}

func TestIllegalOpcodeFaults(t *testing.T) {
	base := uint64(0x5000)
	// 0x7f is not a valid RV32I opcode: reserved/illegal.
	words := []uint32{0x0000007f}
	cp, _ := buildCPU(t, base, words)
	err := cp.StepOne()
	if err == nil {
		t.Fatalf("StepOne on an illegal opcode succeeded")
	}
}
