package isa

import (
	"github.com/bassosimone/rve/pkg/decoder"
	"github.com/bassosimone/rve/pkg/fault"
	"github.com/bassosimone/rve/pkg/memory"
)

// The A extension: LR/SC use a per-CPU single reservation granule (see
// decoder.Context.ReserveAddr/CheckReservation/ClearReservation); AMO*
// operations are read-modify-write atomic with respect to their own
// CPU's visibility, which a single-threaded Go implementation gets for
// free.

const (
	amoFuncLR      = 0b00010
	amoFuncSC      = 0b00011
	amoFuncSWAP    = 0b00001
	amoFuncADD     = 0b00000
	amoFuncXOR     = 0b00100
	amoFuncAND     = 0b01100
	amoFuncOR      = 0b01000
	amoFuncMIN     = 0b10000
	amoFuncMAX     = 0b10100
	amoFuncMINU    = 0b11000
	amoFuncMAXU    = 0b11100
)

func hAMO(ctx decoder.Context, e *decoder.Entry) error {
	raw := uint32(e.Bits)
	f3 := funct3(raw)
	is64 := f3 == 0b011
	if !is64 && f3 != 0b010 {
		return ctx.Fault(fault.IllegalOperation, uint64(f3), "reserved AMO width funct3")
	}
	addr := ctx.GPR(rs1(raw))
	fn := funct5(raw)
	mem := ctx.Mem()

	if fn == amoFuncLR {
		ctx.ReserveAddr(addr)
		v, err := amoLoad(mem, addr, is64)
		if err != nil {
			return err
		}
		ctx.SetGPR(rd(raw), v)
		ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
		return nil
	}
	if fn == amoFuncSC {
		if !ctx.CheckReservation(addr) {
			if err := ctx.NoteAtomicSpin(ctx.PC()); err != nil {
				return err
			}
			ctx.SetGPR(rd(raw), 1) // failure
			ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
			return nil
		}
		if err := amoStore(mem, addr, is64, ctx.GPR(rs2(raw))); err != nil {
			return err
		}
		ctx.ClearReservation()
		ctx.SetGPR(rd(raw), 0) // success
		ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
		return nil
	}

	old, err := amoLoad(mem, addr, is64)
	if err != nil {
		return err
	}
	operand := ctx.GPR(rs2(raw))
	result := amoCompute(fn, old, operand, is64)
	if err := amoStore(mem, addr, is64, result); err != nil {
		return err
	}
	ctx.SetGPR(rd(raw), old)
	ctx.SetPC(ctx.PC() + uint64(e.OpcodeLength))
	return nil
}

func amoLoad(mem *memory.Memory, addr uint64, is64 bool) (uint64, error) {
	if is64 {
		return memory.Read[uint64](mem, addr)
	}
	v, err := memory.Read[uint32](mem, addr)
	return uint64(int64(int32(v))), err
}

func amoStore(mem *memory.Memory, addr uint64, is64 bool, v uint64) error {
	if is64 {
		return memory.Write[uint64](mem, addr, v)
	}
	return memory.Write[uint32](mem, addr, uint32(v))
}

func amoCompute(fn uint32, old, operand uint64, is64 bool) uint64 {
	switch fn {
	case amoFuncSWAP:
		return operand
	case amoFuncADD:
		return old + operand
	case amoFuncXOR:
		return old ^ operand
	case amoFuncAND:
		return old & operand
	case amoFuncOR:
		return old | operand
	case amoFuncMIN:
		if signedCompare(old, operand, is64) {
			return old
		}
		return operand
	case amoFuncMAX:
		if !signedCompare(old, operand, is64) {
			return old
		}
		return operand
	case amoFuncMINU:
		if unsignedCompare(old, operand, is64) {
			return old
		}
		return operand
	case amoFuncMAXU:
		if !unsignedCompare(old, operand, is64) {
			return old
		}
		return operand
	default:
		return old
	}
}

// signedCompare reports whether old < operand, signed at the AMO's
// configured width.
func signedCompare(old, operand uint64, is64 bool) bool {
	if is64 {
		return int64(old) < int64(operand)
	}
	return int32(old) < int32(operand)
}

// unsignedCompare reports whether old < operand, unsigned at the AMO's
// configured width. amoLoad sign-extends a 32-bit value to 64 bits, so a
// .W comparison must mask back down first or a value with bit 31 set
// reads as a huge 64-bit quantity instead of a small 32-bit one.
func unsignedCompare(old, operand uint64, is64 bool) bool {
	if is64 {
		return old < operand
	}
	return uint32(old) < uint32(operand)
}
