package isa

import (
	"github.com/bassosimone/rve/pkg/decoder"
	"github.com/bassosimone/rve/pkg/fault"
	"github.com/bassosimone/rve/pkg/rewriter"
)

// NewRewriteFunc returns a decoder.RewriteFunc that replaces the slots
// the fast loop benefits from most — immediate arithmetic, register
// arithmetic (including the M extension), and JAL — with packed
// operand encodings, leaving every other slot (loads, stores,
// branches, system, AMO, and every compressed form) on its slow
// handler. Those categories either already do their own memory
// access and gain little from repacking, or are rare enough in hot
// loops that specializing them is not worth the second handler family.
func NewRewriteFunc() decoder.RewriteFunc {
	return func(pc uint64, e *decoder.Entry) {
		if e.OpcodeLength != 4 {
			return // compressed slots are not rewritten
		}
		raw := uint32(e.Bits)
		switch opcode(raw) {
		case opImm:
			rewriteImm(e, raw)
		case opImm32:
			rewriteImm32(e, raw)
		case opOp:
			rewriteOp(e, raw)
		case opOp32:
			rewriteOp32(e, raw)
		case opJAL:
			rewriteJAL(e, raw)
		}
	}
}

func rewriteImm(e *decoder.Entry, raw uint32) {
	tag, err := immTag(funct3(raw), raw)
	if err != nil {
		return // leave the illegal/reserved encoding on its slow fault path
	}
	imm := int32(immI(raw))
	if tag == aluSLL || tag == aluSRL || tag == aluSRA {
		imm = int32(rs2(raw)) // shamt
	}
	e.Bits = rewriter.FasterItype{Rs1: uint8(rs1(raw)), Rd: uint8(rd(raw)), Tag: uint8(tag), Imm: imm}.Pack()
	e.Handler = hFastImm
}

func rewriteImm32(e *decoder.Entry, raw uint32) {
	tag, err := imm32Tag(funct3(raw), raw)
	if err != nil {
		return
	}
	imm := int32(immI(raw))
	if tag == aluSLLW || tag == aluSRLW || tag == aluSRAW {
		imm = int32(rs2(raw))
	}
	e.Bits = rewriter.FasterItype{Rs1: uint8(rs1(raw)), Rd: uint8(rd(raw)), Tag: uint8(tag), Imm: imm}.Pack()
	e.Handler = hFastImm32
}

func rewriteOp(e *decoder.Entry, raw uint32) {
	if funct7(raw) == 0x01 {
		tag := mTagFor(funct3(raw))
		e.Bits = rewriter.FasterOpType{Rs1: uint8(rs1(raw)), Rs2: uint8(rs2(raw)), Rd: uint8(rd(raw)), Tag: uint8(tag)}.Pack()
		e.Handler = hFastM
		return
	}
	tag, err := opTag(funct3(raw), funct7(raw))
	if err != nil {
		return
	}
	e.Bits = rewriter.FasterOpType{Rs1: uint8(rs1(raw)), Rs2: uint8(rs2(raw)), Rd: uint8(rd(raw)), Tag: uint8(tag)}.Pack()
	e.Handler = hFastOp
}

func rewriteOp32(e *decoder.Entry, raw uint32) {
	if funct7(raw) == 0x01 {
		tag := mWTagFor(funct3(raw))
		e.Bits = rewriter.FasterOpType{Rs1: uint8(rs1(raw)), Rs2: uint8(rs2(raw)), Rd: uint8(rd(raw)), Tag: uint8(tag)}.Pack()
		e.Handler = hFastMW
		return
	}
	tag, err := op32Tag(funct3(raw), funct7(raw))
	if err != nil {
		return
	}
	e.Bits = rewriter.FasterOpType{Rs1: uint8(rs1(raw)), Rs2: uint8(rs2(raw)), Rd: uint8(rd(raw)), Tag: uint8(tag)}.Pack()
	e.Handler = hFastOp32
}

func rewriteJAL(e *decoder.Entry, raw uint32) {
	target := rewriter.FasterJtype{Rd: uint8(rd(raw)), Offset: int32(immJ(raw))}
	e.Bits = target.Pack()
	if target.Rd == 0 {
		e.Handler = hFastJalDiscard
		return
	}
	e.Handler = hFastJAL
}

func hFastImm(ctx decoder.Context, e *decoder.Entry) error {
	f := rewriter.UnpackItype(e.Bits)
	ctx.SetGPR(int(f.Rd), aluCompute(aluTag(f.Tag), ctx.XLEN(), ctx.GPR(int(f.Rs1)), uint64(int64(f.Imm))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hFastImm32(ctx decoder.Context, e *decoder.Entry) error {
	f := rewriter.UnpackItype(e.Bits)
	ctx.SetGPR(int(f.Rd), aluCompute(aluTag(f.Tag), 64, ctx.GPR(int(f.Rs1)), uint64(uint32(f.Imm))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hFastOp(ctx decoder.Context, e *decoder.Entry) error {
	f := rewriter.UnpackOpType(e.Bits)
	ctx.SetGPR(int(f.Rd), aluCompute(aluTag(f.Tag), ctx.XLEN(), ctx.GPR(int(f.Rs1)), ctx.GPR(int(f.Rs2))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hFastOp32(ctx decoder.Context, e *decoder.Entry) error {
	f := rewriter.UnpackOpType(e.Bits)
	ctx.SetGPR(int(f.Rd), aluCompute(aluTag(f.Tag), 64, ctx.GPR(int(f.Rs1)), ctx.GPR(int(f.Rs2))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hFastM(ctx decoder.Context, e *decoder.Entry) error {
	f := rewriter.UnpackOpType(e.Bits)
	ctx.SetGPR(int(f.Rd), mulDivCompute(mTag(f.Tag), ctx.XLEN(), ctx.GPR(int(f.Rs1)), ctx.GPR(int(f.Rs2))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hFastMW(ctx decoder.Context, e *decoder.Entry) error {
	f := rewriter.UnpackOpType(e.Bits)
	ctx.SetGPR(int(f.Rd), mulDivCompute(mTag(f.Tag), 64, ctx.GPR(int(f.Rs1)), ctx.GPR(int(f.Rs2))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hFastJAL(ctx decoder.Context, e *decoder.Entry) error {
	f := rewriter.UnpackJtype(e.Bits)
	pc := ctx.PC()
	target := uint64(int64(pc) + int64(f.Offset))
	if target%2 != 0 {
		return ctx.Fault(fault.MisalignedInstruction, target, "JAL target not 2-byte aligned")
	}
	ctx.SetGPR(int(f.Rd), pc+uint64(e.OpcodeLength))
	ctx.SetPC(target)
	return nil
}

// hFastJalDiscard is the FAST_JAL specialization: rd is x0, so the
// link value is dead and the handler skips writing it.
func hFastJalDiscard(ctx decoder.Context, e *decoder.Entry) error {
	f := rewriter.UnpackJtype(e.Bits)
	target := uint64(int64(ctx.PC()) + int64(f.Offset))
	if target%2 != 0 {
		return ctx.Fault(fault.MisalignedInstruction, target, "JAL target not 2-byte aligned")
	}
	ctx.SetPC(target)
	return nil
}
