package isa

import "testing"

func TestDisassembleBaseOpcodes(t *testing.T) {
	cases := []struct {
		raw  uint32
		want string
	}{
		{encodeItype(opImm, 1, 0, 2, 5), "addi x1, x2, 5"},
		{encodeRtype(opOp, 3, 0, 1, 2, 0), "add x3, x1, x2"},
		{encodeJtype(1, 16), "jal x1, 16"},
		{0x00000073, "ecall"},
		{0x00100073, "ebreak"},
	}
	for _, c := range cases {
		if got := Disassemble(c.raw, false); got != c.want {
			t.Errorf("Disassemble(0x%08x) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestDisassembleUnknownOpcodeFallsBackToHex(t *testing.T) {
	got := Disassemble(0x0000007f, false)
	want := "<unknown instruction: 0x0000007f>"
	if got != want {
		t.Errorf("Disassemble(0x7f) = %q, want %q", got, want)
	}
}
