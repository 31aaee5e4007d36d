package isa

import (
	"github.com/bassosimone/rve/pkg/decoder"
	"github.com/bassosimone/rve/pkg/fault"
)

// Extensions selects which optional extensions a NewDecodeFunc should
// recognize.
type Extensions struct {
	M bool // multiply/divide
	A bool // atomics (LR/SC/AMO*)
	C bool // compressed 16-bit forms
}

// NewDecodeFunc returns a decoder.DecodeFunc closed over xlenBytes (4,
// 8, or 16 bytes per integer register) and the enabled extensions. The
// returned function is pure: same (raw, is16) always yields the same
// handler, satisfying the rewriter's idempotence requirement. Handlers
// themselves read ctx.XLEN() at run time for width-dependent arithmetic;
// xlenBytes is only needed here to gate the RV64-only *W opcodes and
// to pick between the RV32 and RV64 meanings of the compressed forms.
func NewDecodeFunc(xlenBytes int, ext Extensions) decoder.DecodeFunc {
	is64 := xlenBytes >= 8
	return func(raw uint32, is16 bool) (decoder.Handler, bool, error) {
		if is16 {
			if !ext.C {
				return illegalHandler, true, nil
			}
			return decodeCompressed(raw, xlenBytes*8)
		}
		return decode32(raw, is64, ext)
	}
}

func illegalHandler(ctx decoder.Context, e *decoder.Entry) error {
	return ctx.Fault(fault.IllegalOpcode, e.Bits, "opcode bits decode to no handler")
}

func decode32(raw uint32, is64 bool, ext Extensions) (decoder.Handler, bool, error) {
	switch opcode(raw) {
	case opLUI:
		return hLUI, false, nil
	case opAUIPC:
		return hAUIPC, false, nil
	case opJAL:
		return hJAL, true, nil
	case opJALR:
		return hJALR, true, nil
	case opBranch:
		return hBranch, true, nil
	case opLoad:
		return hLoad, false, nil
	case opStore:
		return hStore, false, nil
	case opImm:
		return hImm, false, nil
	case opImm32:
		if !is64 {
			return illegalHandler, true, nil
		}
		return hImm32, false, nil
	case opOp:
		if ext.M && funct7(raw) == 0x01 {
			return hM, false, nil
		}
		return hOp, false, nil
	case opOp32:
		if !is64 {
			return illegalHandler, true, nil
		}
		if ext.M && funct7(raw) == 0x01 {
			return hMW, false, nil
		}
		return hOp32, false, nil
	case opFence:
		return hFence, true, nil
	case opSystem:
		return systemHandler(raw)
	case opAMO:
		if !ext.A {
			return illegalHandler, true, nil
		}
		return hAMO, true, nil
	default:
		return illegalHandler, true, nil
	}
}
