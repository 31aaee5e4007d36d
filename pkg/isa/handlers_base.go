package isa

import (
	"github.com/bassosimone/rve/pkg/decoder"
	"github.com/bassosimone/rve/pkg/fault"
	"github.com/bassosimone/rve/pkg/memory"
)

// The handlers in this file are the "slow" path: they re-extract every
// operand from the raw 32-bit instruction stored in e.Bits. The
// bytecode rewriter (pkg/rewriter) may later replace a slot's Bits and
// Handler with a packed, specialized pair; these handlers remain
// correct as the un-rewritten fallback and as the semantic reference
// the rewriter's packed forms must agree with.

func hLUI(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	ctx.SetGPR(rd(raw), uint64(immU(raw)))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hAUIPC(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	ctx.SetGPR(rd(raw), ctx.PC()+uint64(immU(raw)))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func hJAL(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	pc := ctx.PC()
	target := pc + uint64(immJ(raw))
	if target%2 != 0 {
		return ctx.Fault(fault.MisalignedInstruction, target, "JAL target not 2-byte aligned")
	}
	ctx.SetGPR(rd(raw), pc+uint64(e.OpcodeLength))
	ctx.SetPC(target)
	return nil
}

func hJALR(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	link := ctx.PC() + uint64(e.OpcodeLength)
	target := (ctx.GPR(rs1(raw)) + uint64(immI(raw))) &^ 1
	if target%2 != 0 {
		return ctx.Fault(fault.MisalignedInstruction, target, "JALR target not 2-byte aligned")
	}
	ctx.SetGPR(rd(raw), link)
	ctx.SetPC(target)
	return nil
}

// branchCond evaluates the branch condition for funct3, operands
// compared in register order as the specification requires.
func branchCond(f3 uint32, a, b uint64, xlen int) (bool, error) {
	switch f3 {
	case 0: // BEQ
		return a == b, nil
	case 1: // BNE
		return a != b, nil
	case 4: // BLT
		return signedLess(a, b, xlen), nil
	case 5: // BGE
		return !signedLess(a, b, xlen), nil
	case 6: // BLTU
		return a < b, nil
	case 7: // BGEU
		return a >= b, nil
	default:
		return false, fault.New(fault.IllegalOperation, uint64(f3), "reserved branch funct3")
	}
}

func hBranch(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	a, b := ctx.GPR(rs1(raw)), ctx.GPR(rs2(raw))
	taken, err := branchCond(funct3(raw), a, b, ctx.XLEN())
	if err != nil {
		return err
	}
	pc := ctx.PC()
	if taken {
		target := pc + uint64(immB(raw))
		if target%2 != 0 {
			return ctx.Fault(fault.MisalignedInstruction, target, "branch target not 2-byte aligned")
		}
		ctx.SetPC(target)
		return nil
	}
	ctx.SetPC(pc + uint64(e.OpcodeLength))
	return nil
}

func loadValue(mem *memory.Memory, addr uint64, f3 uint32) (uint64, error) {
	switch f3 {
	case 0: // LB
		v, err := memory.Read[uint8](mem, addr)
		return uint64(int64(int8(v))), err
	case 1: // LH
		v, err := memory.Read[uint16](mem, addr)
		return uint64(int64(int16(v))), err
	case 2: // LW
		v, err := memory.Read[uint32](mem, addr)
		return uint64(int64(int32(v))), err
	case 3: // LD
		v, err := memory.Read[uint64](mem, addr)
		return v, err
	case 4: // LBU
		v, err := memory.Read[uint8](mem, addr)
		return uint64(v), err
	case 5: // LHU
		v, err := memory.Read[uint16](mem, addr)
		return uint64(v), err
	case 6: // LWU
		v, err := memory.Read[uint32](mem, addr)
		return uint64(v), err
	default:
		return 0, fault.New(fault.IllegalOperation, uint64(f3), "reserved load funct3")
	}
}

func hLoad(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	addr := ctx.GPR(rs1(raw)) + uint64(immI(raw))
	v, err := loadValue(ctx.Mem(), addr, funct3(raw))
	if err != nil {
		return err
	}
	ctx.SetGPR(rd(raw), v)
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func storeValue(mem *memory.Memory, addr uint64, f3 uint32, v uint64) error {
	switch f3 {
	case 0:
		return memory.Write[uint8](mem, addr, uint8(v))
	case 1:
		return memory.Write[uint16](mem, addr, uint16(v))
	case 2:
		return memory.Write[uint32](mem, addr, uint32(v))
	case 3:
		return memory.Write[uint64](mem, addr, v)
	default:
		return fault.New(fault.IllegalOperation, uint64(f3), "reserved store funct3")
	}
}

func hStore(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	addr := ctx.GPR(rs1(raw)) + uint64(immS(raw))
	if err := storeValue(ctx.Mem(), addr, funct3(raw), ctx.GPR(rs2(raw))); err != nil {
		return err
	}
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

// immTag maps an I-type funct3 (and, for shifts, bit 30) to an aluTag.
func immTag(f3 uint32, raw uint32) (aluTag, error) {
	switch f3 {
	case 0:
		return aluADD, nil // ADDI
	case 2:
		return aluSLT, nil // SLTI
	case 3:
		return aluSLTU, nil // SLTIU
	case 4:
		return aluXOR, nil // XORI
	case 6:
		return aluOR, nil // ORI
	case 7:
		return aluAND, nil // ANDI
	case 1:
		return aluSLL, nil // SLLI
	case 5:
		if (raw>>30)&1 == 1 {
			return aluSRA, nil // SRAI
		}
		return aluSRL, nil // SRLI
	default:
		return 0, fault.New(fault.IllegalOperation, uint64(f3), "reserved imm-arith funct3")
	}
}

func hImm(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	tag, err := immTag(funct3(raw), raw)
	if err != nil {
		return err
	}
	xlen := ctx.XLEN()
	var b uint64
	if tag == aluSLL || tag == aluSRL || tag == aluSRA {
		b = uint64(rs2(raw)) // shamt lives where rs2 would be
	} else {
		b = uint64(immI(raw))
	}
	ctx.SetGPR(rd(raw), aluCompute(tag, xlen, ctx.GPR(rs1(raw)), b))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func imm32Tag(f3 uint32, raw uint32) (aluTag, error) {
	switch f3 {
	case 0:
		return aluADDW, nil
	case 1:
		return aluSLLW, nil
	case 5:
		if (raw>>30)&1 == 1 {
			return aluSRAW, nil
		}
		return aluSRLW, nil
	default:
		return 0, fault.New(fault.IllegalOperation, uint64(f3), "reserved imm32-arith funct3")
	}
}

func hImm32(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	tag, err := imm32Tag(funct3(raw), raw)
	if err != nil {
		return err
	}
	var b uint64
	if tag == aluSLLW || tag == aluSRLW || tag == aluSRAW {
		b = uint64(rs2(raw))
	} else {
		b = uint64(immI(raw))
	}
	ctx.SetGPR(rd(raw), aluCompute(tag, 64, ctx.GPR(rs1(raw)), b))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func opTag(f3, f7 uint32) (aluTag, error) {
	switch f3 {
	case 0:
		if f7 == 0x20 {
			return aluSUB, nil
		}
		return aluADD, nil
	case 1:
		return aluSLL, nil
	case 2:
		return aluSLT, nil
	case 3:
		return aluSLTU, nil
	case 4:
		return aluXOR, nil
	case 5:
		if f7 == 0x20 {
			return aluSRA, nil
		}
		return aluSRL, nil
	case 6:
		return aluOR, nil
	case 7:
		return aluAND, nil
	default:
		return 0, fault.New(fault.IllegalOperation, uint64(f3), "reserved reg-arith funct3")
	}
}

func hOp(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	tag, err := opTag(funct3(raw), funct7(raw))
	if err != nil {
		return err
	}
	ctx.SetGPR(rd(raw), aluCompute(tag, ctx.XLEN(), ctx.GPR(rs1(raw)), ctx.GPR(rs2(raw))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func op32Tag(f3, f7 uint32) (aluTag, error) {
	switch f3 {
	case 0:
		if f7 == 0x20 {
			return aluSUBW, nil
		}
		return aluADDW, nil
	case 1:
		return aluSLLW, nil
	case 5:
		if f7 == 0x20 {
			return aluSRAW, nil
		}
		return aluSRLW, nil
	default:
		return 0, fault.New(fault.IllegalOperation, uint64(f3), "reserved reg32-arith funct3")
	}
}

func hOp32(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	tag, err := op32Tag(funct3(raw), funct7(raw))
	if err != nil {
		return err
	}
	ctx.SetGPR(rd(raw), aluCompute(tag, 64, ctx.GPR(rs1(raw)), ctx.GPR(rs2(raw))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func mTagFor(f3 uint32) mTag { return mTag(f3) }

func hM(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	tag := mTagFor(funct3(raw))
	ctx.SetGPR(rd(raw), mulDivCompute(tag, ctx.XLEN(), ctx.GPR(rs1(raw)), ctx.GPR(rs2(raw))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func mWTagFor(f3 uint32) mTag {
	switch f3 {
	case 0:
		return mMULW
	case 4:
		return mDIVW
	case 5:
		return mDIVUW
	case 6:
		return mREMW
	default:
		return mREMUW
	}
}

func hMW(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	tag := mWTagFor(funct3(raw))
	ctx.SetGPR(rd(raw), mulDivCompute(tag, 64, ctx.GPR(rs1(raw)), ctx.GPR(rs2(raw))))
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

// hFence is a no-op in this single-hart, non-device-backed core: there
// is no device I/O or multi-hart cache hierarchy to order (see
// spec.md's Non-goals).
func hFence(ctx decoder.Context, e *decoder.Entry) error {
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func systemHandler(raw uint32) (decoder.Handler, bool, error) {
	if funct3(raw) != 0 {
		// CSR access (CSRRW/CSRRS/CSRRC and immediate forms): out of
		// scope per spec.md's non-goal on bit-exact CSR behavior.
		return hUnimplemented, true, nil
	}
	return hEcallEbreak, true, nil
}

func hUnimplemented(ctx decoder.Context, e *decoder.Entry) error {
	return ctx.Fault(fault.UnimplementedInstruction, e.Bits, "handler intentionally absent")
}

func hEcallEbreak(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	imm := uint32(raw) >> 20
	switch imm {
	case 0: // ECALL
		if err := ctx.Ecall(); err != nil {
			return err
		}
		ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
		return nil
	case 1: // EBREAK
		if err := ctx.Ebreak(); err != nil {
			return err
		}
		ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
		return nil
	default:
		return ctx.Fault(fault.IllegalOperation, uint64(imm), "reserved SYSTEM immediate")
	}
}
