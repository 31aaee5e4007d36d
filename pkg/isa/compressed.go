package isa

import (
	"github.com/bassosimone/rve/pkg/decoder"
	"github.com/bassosimone/rve/pkg/fault"
)

// This file implements the common RVC subset: the stack-pointer-based
// loads/stores, the register-immediate and register-register ALU
// forms, and the control-flow instructions, covering what a typical
// compiler emits. Less common forms (C.FLD/C.FSW and friends, which
// require floating-point computation that is out of scope, and
// C.ADDI4SPN's rarely-used siblings) fault as UNIMPLEMENTED_INSTRUCTION
// rather than ILLEGAL_OPCODE, since they are valid encodings this build
// intentionally does not implement.

// cReg expands a compressed 3-bit register field (x8-x15) to its full
// 5-bit index.
func cReg(bits uint16) int { return int(bits&0x7) + 8 }

func decodeCompressed(raw uint32, xlen int) (decoder.Handler, bool, error) {
	r := uint16(raw)
	op := r & 0x3
	f3 := (r >> 13) & 0x7

	switch op {
	case 0b00:
		switch f3 {
		case 0b000: // C.ADDI4SPN
			if (r>>5)&0xff == 0 {
				return illegalHandler, true, nil
			}
			return hcAddi4spn, false, nil
		case 0b001, 0b101: // C.FLD / C.FSD (unimplemented: FP)
			return hUnimplemented, true, nil
		case 0b010: // C.LW
			return hcLW, false, nil
		case 0b011: // C.LD (RV64) / C.FLW (RV32, unimplemented: FP)
			if xlen >= 64 {
				return hcLD, false, nil
			}
			return hUnimplemented, true, nil
		case 0b110: // C.SW
			return hcSW, false, nil
		case 0b111: // C.SD (RV64) / C.FSW (RV32, unimplemented: FP)
			if xlen >= 64 {
				return hcSD, false, nil
			}
			return hUnimplemented, true, nil
		default:
			return illegalHandler, true, nil
		}
	case 0b01:
		switch f3 {
		case 0b000: // C.ADDI / C.NOP
			return hcAddi, false, nil
		case 0b001: // C.ADDIW (RV64) / C.JAL (RV32)
			if xlen >= 64 {
				return hcAddiw, false, nil
			}
			return hcJal, true, nil
		case 0b010: // C.LI
			return hcLi, false, nil
		case 0b011: // C.ADDI16SP / C.LUI
			if (r>>7)&0x1f == 2 {
				return hcAddi16sp, false, nil
			}
			return hcLui, false, nil
		case 0b100: // arithmetic group: SRLI/SRAI/ANDI/SUB/XOR/OR/AND
			return decodeCompressedArith(r)
		case 0b101: // C.J
			return hcJ, true, nil
		case 0b110: // C.BEQZ
			return hcBeqz, true, nil
		case 0b111: // C.BNEZ
			return hcBnez, true, nil
		default:
			return illegalHandler, true, nil
		}
	case 0b10:
		switch f3 {
		case 0b000: // C.SLLI
			return hcSlli, false, nil
		case 0b001, 0b101: // C.FLDSP / C.FSDSP (unimplemented: FP)
			return hUnimplemented, true, nil
		case 0b010: // C.LWSP
			return hcLwsp, false, nil
		case 0b011: // C.LDSP (RV64)
			if xlen >= 64 {
				return hcLdsp, false, nil
			}
			return hUnimplemented, true, nil
		case 0b100: // C.JR / C.MV / C.EBREAK / C.JALR / C.ADD
			return decodeCompressedJumpAdd(r)
		case 0b110: // C.SWSP
			return hcSwsp, false, nil
		case 0b111: // C.SDSP (RV64)
			if xlen >= 64 {
				return hcSdsp, false, nil
			}
			return hUnimplemented, true, nil
		default:
			return illegalHandler, true, nil
		}
	default: // op == 0b11 never arises: that low-bits pattern means 32-bit
		return illegalHandler, true, nil
	}
}

func decodeCompressedArith(r uint16) (decoder.Handler, bool, error) {
	switch (r >> 10) & 0x3 {
	case 0b00:
		return hcSrli, false, nil
	case 0b01:
		return hcSrai, false, nil
	case 0b10:
		return hcAndi, false, nil
	default:
		switch (r >> 5) & 0x3 {
		case 0b00:
			return hcSub, false, nil
		case 0b01:
			return hcXor, false, nil
		case 0b10:
			return hcOr, false, nil
		default:
			return hcAnd, false, nil
		}
	}
}

func decodeCompressedJumpAdd(r uint16) (decoder.Handler, bool, error) {
	bit12 := (r >> 12) & 1
	rs2 := (r >> 2) & 0x1f
	rdrs1 := (r >> 7) & 0x1f
	switch {
	case bit12 == 0 && rs2 == 0:
		if rdrs1 == 0 {
			return illegalHandler, true, nil
		}
		return hcJr, true, nil
	case bit12 == 0:
		return hcMv, false, nil
	case bit12 == 1 && rs2 == 0 && rdrs1 == 0:
		return hcEbreak, true, nil
	case bit12 == 1 && rs2 == 0:
		return hcJalr, true, nil
	default:
		return hcAdd, false, nil
	}
}

// --- quadrant 0 ---

func hcAddi4spn(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	nzuimm := ((r>>7)&0x30)<<2 | ((r>>11)&0x3)<<4 | ((r>>5)&0x1)<<3 | ((r>>6)&0x1)<<2
	ctx.SetGPR(cReg(r>>2), ctx.GPR(2)+uint64(nzuimm))
	return advance16(ctx, e)
}

func clOffset(r uint16) uint64 {
	return uint64((r>>5)&0x1)<<6 | uint64((r>>10)&0x7)<<3 | uint64((r>>6)&0x1)<<2
}

func hcLW(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	addr := ctx.GPR(cReg(r>>7)) + clOffset(r)
	v, err := loadValue(ctx.Mem(), addr, 2)
	if err != nil {
		return err
	}
	ctx.SetGPR(cReg(r>>2), v)
	return advance16(ctx, e)
}

func clOffsetD(r uint16) uint64 {
	return uint64((r>>5)&0x3)<<6 | uint64((r>>10)&0x7)<<3
}

func hcLD(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	addr := ctx.GPR(cReg(r>>7)) + clOffsetD(r)
	v, err := loadValue(ctx.Mem(), addr, 3)
	if err != nil {
		return err
	}
	ctx.SetGPR(cReg(r>>2), v)
	return advance16(ctx, e)
}

func hcSW(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	addr := ctx.GPR(cReg(r>>7)) + clOffset(r)
	if err := storeValue(ctx.Mem(), addr, 2, ctx.GPR(cReg(r>>2))); err != nil {
		return err
	}
	return advance16(ctx, e)
}

func hcSD(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	addr := ctx.GPR(cReg(r>>7)) + clOffsetD(r)
	if err := storeValue(ctx.Mem(), addr, 3, ctx.GPR(cReg(r>>2))); err != nil {
		return err
	}
	return advance16(ctx, e)
}

// --- quadrant 1 ---

func ciImm6(r uint16) int64 {
	v := uint32((r>>12)&1)<<5 | uint32((r>>2)&0x1f)
	return signExtend(uint64(v), 6)
}

func hcAddi(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	rdi := int((r >> 7) & 0x1f)
	ctx.SetGPR(rdi, ctx.GPR(rdi)+uint64(ciImm6(r)))
	return advance16(ctx, e)
}

func hcAddiw(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	rdi := int((r >> 7) & 0x1f)
	ctx.SetGPR(rdi, signExtend32(uint32(ctx.GPR(rdi))+uint32(ciImm6(r))))
	return advance16(ctx, e)
}

func hcLi(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	ctx.SetGPR(int((r>>7)&0x1f), uint64(ciImm6(r)))
	return advance16(ctx, e)
}

func hcAddi16sp(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	v := uint32((r>>12)&1)<<9 | uint32((r>>3)&0x3)<<7 | uint32((r>>5)&0x1)<<6 |
		uint32((r>>2)&0x1)<<5 | uint32((r>>6)&0x1)<<4
	imm := signExtend(uint64(v), 10)
	ctx.SetGPR(2, ctx.GPR(2)+uint64(imm))
	return advance16(ctx, e)
}

func hcLui(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	v := uint32((r>>12)&1)<<17 | uint32((r>>2)&0x1f)<<12
	imm := signExtend(uint64(v), 18)
	ctx.SetGPR(int((r>>7)&0x1f), uint64(imm))
	return advance16(ctx, e)
}

func cbShamt(r uint16) uint32 {
	return uint32((r>>12)&1)<<5 | uint32((r>>2)&0x1f)
}

func hcSrli(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	reg := cReg(r >> 7)
	ctx.SetGPR(reg, aluCompute(aluSRL, ctx.XLEN(), ctx.GPR(reg), uint64(cbShamt(r))))
	return advance16(ctx, e)
}

func hcSrai(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	reg := cReg(r >> 7)
	ctx.SetGPR(reg, aluCompute(aluSRA, ctx.XLEN(), ctx.GPR(reg), uint64(cbShamt(r))))
	return advance16(ctx, e)
}

func hcAndi(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	reg := cReg(r >> 7)
	ctx.SetGPR(reg, ctx.GPR(reg)&uint64(ciImm6(r)))
	return advance16(ctx, e)
}

func hcSub(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	rd_ := cReg(r >> 7)
	ctx.SetGPR(rd_, aluCompute(aluSUB, ctx.XLEN(), ctx.GPR(rd_), ctx.GPR(cReg(r>>2))))
	return advance16(ctx, e)
}

func hcXor(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	rd_ := cReg(r >> 7)
	ctx.SetGPR(rd_, ctx.GPR(rd_)^ctx.GPR(cReg(r>>2)))
	return advance16(ctx, e)
}

func hcOr(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	rd_ := cReg(r >> 7)
	ctx.SetGPR(rd_, ctx.GPR(rd_)|ctx.GPR(cReg(r>>2)))
	return advance16(ctx, e)
}

func hcAnd(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	rd_ := cReg(r >> 7)
	ctx.SetGPR(rd_, ctx.GPR(rd_)&ctx.GPR(cReg(r>>2)))
	return advance16(ctx, e)
}

func cjTarget(r uint16) int64 {
	v := uint32((r>>12)&1)<<11 | uint32((r>>8)&1)<<10 | uint32((r>>9)&0x3)<<8 |
		uint32((r>>6)&1)<<7 | uint32((r>>7)&1)<<6 | uint32((r>>2)&1)<<5 |
		uint32((r>>11)&1)<<4 | uint32((r>>3)&0x7)<<1
	return signExtend(uint64(v), 12)
}

func hcJ(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	target := ctx.PC() + uint64(cjTarget(r))
	if target%2 != 0 {
		return ctx.Fault(fault.MisalignedInstruction, target, "C.J target not 2-byte aligned")
	}
	ctx.SetPC(target)
	return nil
}

func hcJal(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	target := ctx.PC() + uint64(cjTarget(r))
	if target%2 != 0 {
		return ctx.Fault(fault.MisalignedInstruction, target, "C.JAL target not 2-byte aligned")
	}
	ctx.SetGPR(1, ctx.PC()+uint64(e.OpcodeLength))
	ctx.SetPC(target)
	return nil
}

func cbOffset(r uint16) int64 {
	v := uint32((r>>12)&1)<<8 | uint32((r>>5)&0x3)<<6 | uint32((r>>2)&0x1)<<5 |
		uint32((r>>10)&0x3)<<3 | uint32((r>>3)&0x3)<<1
	return signExtend(uint64(v), 9)
}

func hcBeqz(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	if ctx.GPR(cReg(r>>7)) == 0 {
		target := ctx.PC() + uint64(cbOffset(r))
		if target%2 != 0 {
			return ctx.Fault(fault.MisalignedInstruction, target, "C.BEQZ target not 2-byte aligned")
		}
		ctx.SetPC(target)
		return nil
	}
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hcBnez(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	if ctx.GPR(cReg(r>>7)) != 0 {
		target := ctx.PC() + uint64(cbOffset(r))
		if target%2 != 0 {
			return ctx.Fault(fault.MisalignedInstruction, target, "C.BNEZ target not 2-byte aligned")
		}
		ctx.SetPC(target)
		return nil
	}
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

// --- quadrant 2 ---

func hcSlli(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	rdi := int((r >> 7) & 0x1f)
	ctx.SetGPR(rdi, aluCompute(aluSLL, ctx.XLEN(), ctx.GPR(rdi), uint64(cbShamt(r))))
	return advance16(ctx, e)
}

func hcLwsp(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	off := uint64((r>>12)&1)<<5 | uint64((r>>4)&0x7)<<2 | uint64((r>>2)&0x3)<<6
	addr := ctx.GPR(2) + off
	v, err := loadValue(ctx.Mem(), addr, 2)
	if err != nil {
		return err
	}
	ctx.SetGPR(int((r>>7)&0x1f), v)
	return advance16(ctx, e)
}

func hcLdsp(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	off := uint64((r>>12)&1)<<5 | uint64((r>>5)&0x3)<<3 | uint64((r>>2)&0x7)<<6
	addr := ctx.GPR(2) + off
	v, err := loadValue(ctx.Mem(), addr, 3)
	if err != nil {
		return err
	}
	ctx.SetGPR(int((r>>7)&0x1f), v)
	return advance16(ctx, e)
}

func hcSwsp(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	off := uint64((r>>9)&0xf)<<2 | uint64((r>>7)&0x3)<<6
	addr := ctx.GPR(2) + off
	if err := storeValue(ctx.Mem(), addr, 2, ctx.GPR(int((r>>2)&0x1f))); err != nil {
		return err
	}
	return advance16(ctx, e)
}

func hcSdsp(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	off := uint64((r>>10)&0x7)<<3 | uint64((r>>7)&0x7)<<6
	addr := ctx.GPR(2) + off
	if err := storeValue(ctx.Mem(), addr, 3, ctx.GPR(int((r>>2)&0x1f))); err != nil {
		return err
	}
	return advance16(ctx, e)
}

func hcJr(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	target := ctx.GPR(int((r >> 7) & 0x1f))
	if target%2 != 0 {
		return ctx.Fault(fault.MisalignedInstruction, target, "C.JR target not 2-byte aligned")
	}
	ctx.SetPC(target)
	return nil
}

func hcMv(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	ctx.SetGPR(int((r>>7)&0x1f), ctx.GPR(int((r>>2)&0x1f)))
	return advance16(ctx, e)
}

func hcEbreak(ctx decoder.Context, e *decoder.Entry) error {
	if err := ctx.Ebreak(); err != nil {
		return err
	}
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hcJalr(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	reg := int((r >> 7) & 0x1f)
	target := ctx.GPR(reg)
	if target%2 != 0 {
		return ctx.Fault(fault.MisalignedInstruction, target, "C.JALR target not 2-byte aligned")
	}
	link := ctx.PC() + uint64(e.OpcodeLength)
	ctx.SetGPR(1, link)
	ctx.SetPC(target)
	return nil
}

func hcAdd(ctx decoder.Context, e *decoder.Entry) error {
	r := uint16(e.Bits)
	rdi := int((r >> 7) & 0x1f)
	ctx.SetGPR(rdi, ctx.GPR(rdi)+ctx.GPR(int((r>>2)&0x1f)))
	return advance16(ctx, e)
}

func advance16(ctx decoder.Context, e *decoder.Entry) error {
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}
