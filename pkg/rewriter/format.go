// Package rewriter defines the packed-operand bytecode formats that
// the decoder cache's rewrite pass substitutes for a slot's raw
// instruction bits, and the pure pack/unpack codecs for them. It knows
// nothing about instruction semantics or machine state: pkg/isa owns
// deciding which slots qualify for which packed form and supplies the
// specialized handlers that interpret the packed bits at dispatch
// time. Keeping the codec here, separate from the specialization
// policy, lets the format be unit-tested without a CPU.
package rewriter

// FasterItype is the packed form for immediate-operand arithmetic
// (ADDI, SLTI, ANDI, shifts, ...): one source register, one
// destination register, an ALU operation tag, and a 22-bit immediate
// (wide enough for every I-type immediate and every shift amount this
// core decodes).
type FasterItype struct {
	Rs1 uint8
	Rd  uint8
	Tag uint8
	Imm int32
}

const (
	itypeRs1Shift = 0
	itypeRdShift  = 5
	itypeTagShift = 10
	itypeImmShift = 15
	itypeImmBits  = 22
)

// Pack encodes f into the 64-bit slot representation.
func (f FasterItype) Pack() uint64 {
	return uint64(f.Rs1&0x1f)<<itypeRs1Shift |
		uint64(f.Rd&0x1f)<<itypeRdShift |
		uint64(f.Tag&0x1f)<<itypeTagShift |
		(uint64(uint32(f.Imm))&((1<<itypeImmBits)-1))<<itypeImmShift
}

// UnpackItype decodes a FasterItype previously produced by Pack.
func UnpackItype(bits uint64) FasterItype {
	imm := (bits >> itypeImmShift) & ((1 << itypeImmBits) - 1)
	return FasterItype{
		Rs1: uint8((bits >> itypeRs1Shift) & 0x1f),
		Rd:  uint8((bits >> itypeRdShift) & 0x1f),
		Tag: uint8((bits >> itypeTagShift) & 0x1f),
		Imm: int32(signExtend(imm, itypeImmBits)),
	}
}

// FasterOpType is the packed form for register-register operations
// (the base ALU ops and the M extension's multiply/divide family):
// two source registers, a destination register, and an operation tag.
type FasterOpType struct {
	Rs1 uint8
	Rs2 uint8
	Rd  uint8
	Tag uint8
}

const (
	optypeRs1Shift = 0
	optypeRs2Shift = 5
	optypeRdShift  = 10
	optypeTagShift = 15
)

func (f FasterOpType) Pack() uint64 {
	return uint64(f.Rs1&0x1f)<<optypeRs1Shift |
		uint64(f.Rs2&0x1f)<<optypeRs2Shift |
		uint64(f.Rd&0x1f)<<optypeRdShift |
		uint64(f.Tag&0x1f)<<optypeTagShift
}

func UnpackOpType(bits uint64) FasterOpType {
	return FasterOpType{
		Rs1: uint8((bits >> optypeRs1Shift) & 0x1f),
		Rs2: uint8((bits >> optypeRs2Shift) & 0x1f),
		Rd:  uint8((bits >> optypeRdShift) & 0x1f),
		Tag: uint8((bits >> optypeTagShift) & 0x1f),
	}
}

// FasterJtype is the packed form for JAL: a destination register and a
// 21-bit signed byte offset from the instruction's own address (the
// full range immJ can represent). The FAST_JAL specialization applies
// when Rd is x0: the rewriter then selects a handler that skips the
// link-register write entirely, since the link value would never be
// read.
type FasterJtype struct {
	Rd     uint8
	Offset int32
}

const (
	jtypeRdShift     = 0
	jtypeOffsetShift = 5
	jtypeOffsetBits  = 21
)

func (f FasterJtype) Pack() uint64 {
	return uint64(f.Rd&0x1f)<<jtypeRdShift |
		(uint64(uint32(f.Offset))&((1<<jtypeOffsetBits)-1))<<jtypeOffsetShift
}

func UnpackJtype(bits uint64) FasterJtype {
	off := (bits >> jtypeOffsetShift) & ((1 << jtypeOffsetBits) - 1)
	return FasterJtype{
		Rd:     uint8((bits >> jtypeRdShift) & 0x1f),
		Offset: int32(signExtend(off, jtypeOffsetBits)),
	}
}

func signExtend(v uint64, bits int) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}
