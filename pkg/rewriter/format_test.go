package rewriter

import "testing"

func TestFasterItypeRoundTrip(t *testing.T) {
	cases := []FasterItype{
		{Rs1: 1, Rd: 2, Tag: 0, Imm: 0},
		{Rs1: 31, Rd: 31, Tag: 31, Imm: -1},
		{Rs1: 5, Rd: 10, Tag: 3, Imm: 2047},
		{Rs1: 5, Rd: 10, Tag: 3, Imm: -2048},
	}
	for _, c := range cases {
		got := UnpackItype(c.Pack())
		if got != c {
			t.Errorf("UnpackItype(Pack(%+v)) = %+v", c, got)
		}
	}
}

func TestFasterOpTypeRoundTrip(t *testing.T) {
	cases := []FasterOpType{
		{Rs1: 0, Rs2: 0, Rd: 0, Tag: 0},
		{Rs1: 31, Rs2: 31, Rd: 31, Tag: 31},
		{Rs1: 7, Rs2: 14, Rd: 21, Tag: 9},
	}
	for _, c := range cases {
		got := UnpackOpType(c.Pack())
		if got != c {
			t.Errorf("UnpackOpType(Pack(%+v)) = %+v", c, got)
		}
	}
}

func TestFasterJtypeRoundTrip(t *testing.T) {
	cases := []FasterJtype{
		{Rd: 1, Offset: 0},
		{Rd: 0, Offset: -1048576},
		{Rd: 5, Offset: 1048574},
	}
	for _, c := range cases {
		got := UnpackJtype(c.Pack())
		if got != c {
			t.Errorf("UnpackJtype(Pack(%+v)) = %+v", c, got)
		}
	}
}

func TestSignExtend(t *testing.T) {
	cases := []struct {
		v    uint64
		bits int
		want int64
	}{
		{0x1, 1, -1},
		{0x0, 1, 0},
		{0x7ff, 12, 2047},
		{0x800, 12, -2048},
	}
	for _, c := range cases {
		if got := signExtend(c.v, c.bits); got != c.want {
			t.Errorf("signExtend(0x%x, %d) = %d, want %d", c.v, c.bits, got, c.want)
		}
	}
}
