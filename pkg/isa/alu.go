package isa

import "math/bits"

// aluTag enumerates the register/immediate ALU operations shared by
// the slow (raw bits) and fast (rewritten, packed bits) handler paths,
// so the core arithmetic is written exactly once.
type aluTag uint8

const (
	aluADD aluTag = iota
	aluSUB
	aluSLL
	aluSLT
	aluSLTU
	aluXOR
	aluSRL
	aluSRA
	aluOR
	aluAND
	aluADDW
	aluSUBW
	aluSLLW
	aluSRLW
	aluSRAW
)

// shiftMask returns the mask applied to a shift amount for the given
// register width in bits (5 bits for 32-bit shifts, 6 for 64-bit).
func shiftMask(width int) uint64 {
	if width <= 32 {
		return 0x1f
	}
	return 0x3f
}

// aluCompute evaluates tag on operands a, b for a register width of
// xlen bits (the configured XLEN, used for the non-W shift mask and for
// signed comparisons and SRA). The result is not masked here; the *W
// tags always produce a 32-bit result sign-extended to 64 bits.
func aluCompute(tag aluTag, xlen int, a, b uint64) uint64 {
	switch tag {
	case aluADD:
		return a + b
	case aluSUB:
		return a - b
	case aluSLL:
		return a << (b & shiftMask(xlen))
	case aluSLT:
		return boolU64(signedLess(a, b, xlen))
	case aluSLTU:
		return boolU64(a < b)
	case aluXOR:
		return a ^ b
	case aluSRL:
		return a >> (b & shiftMask(xlen))
	case aluSRA:
		return uint64(arithShiftRight(int64FromXlen(a, xlen), int(b&shiftMask(xlen)), xlen))
	case aluOR:
		return a | b
	case aluAND:
		return a & b
	case aluADDW:
		return signExtend32(uint32(a) + uint32(b))
	case aluSUBW:
		return signExtend32(uint32(a) - uint32(b))
	case aluSLLW:
		return signExtend32(uint32(a) << (b & 0x1f))
	case aluSRLW:
		return signExtend32(uint32(a) >> (b & 0x1f))
	case aluSRAW:
		return signExtend32(uint32(int32(uint32(a)) >> (b & 0x1f)))
	default:
		return 0
	}
}

func boolU64(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func signedLess(a, b uint64, xlen int) bool {
	if xlen <= 32 {
		return int32(a) < int32(b)
	}
	return int64(a) < int64(b)
}

func int64FromXlen(a uint64, xlen int) int64 {
	if xlen <= 32 {
		return int64(int32(a))
	}
	return int64(a)
}

func arithShiftRight(v int64, shamt int, xlen int) int64 {
	return v >> shamt
}

func signExtend32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}

// mulDivCompute implements the M extension, sharing code between
// the slow and fast execution paths exactly as aluCompute does.
type mTag uint8

const (
	mMUL mTag = iota
	mMULH
	mMULHSU
	mMULHU
	mDIV
	mDIVU
	mREM
	mREMU
	mMULW
	mDIVW
	mDIVUW
	mREMW
	mREMUW
)

func mulDivCompute(tag mTag, xlen int, a, b uint64) uint64 {
	switch tag {
	case mMUL:
		return a * b
	case mMULH:
		return mulHigh(int64FromXlen(a, xlen), int64FromXlen(b, xlen), xlen)
	case mMULHSU:
		return mulHighSU(int64FromXlen(a, xlen), b, xlen)
	case mMULHU:
		return mulHighU(a, b, xlen)
	case mDIV:
		return divSigned(a, b, xlen)
	case mDIVU:
		return divUnsigned(a, b, xlen)
	case mREM:
		return remSigned(a, b, xlen)
	case mREMU:
		return remUnsigned(a, b, xlen)
	case mMULW:
		return signExtend32(uint32(a) * uint32(b))
	case mDIVW:
		return signExtend32(uint32(divSigned32(int32(a), int32(b))))
	case mDIVUW:
		return signExtend32(divUnsigned32(uint32(a), uint32(b)))
	case mREMW:
		return signExtend32(uint32(remSigned32(int32(a), int32(b))))
	case mREMUW:
		return signExtend32(remUnsigned32(uint32(a), uint32(b)))
	default:
		return 0
	}
}

func mulHigh(a, b int64, xlen int) uint64 {
	if xlen <= 32 {
		r := int64(int32(a)) * int64(int32(b))
		return signExtend32(uint32(r >> 32))
	}
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	// Correct the unsigned multiply's high word for signedness.
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return hi
}

func mulHighSU(a int64, b uint64, xlen int) uint64 {
	if xlen <= 32 {
		r := int64(int32(a)) * int64(uint32(b))
		return signExtend32(uint32(r >> 32))
	}
	hi, _ := bits.Mul64(uint64(a), b)
	if a < 0 {
		hi -= b
	}
	return hi
}

func mulHighU(a, b uint64, xlen int) uint64 {
	if xlen <= 32 {
		r := uint64(uint32(a)) * uint64(uint32(b))
		return signExtend32(uint32(r >> 32))
	}
	hi, _ := bits.Mul64(a, b)
	return hi
}

func divSigned(a, b uint64, xlen int) uint64 {
	av, bv := int64FromXlen(a, xlen), int64FromXlen(b, xlen)
	if bv == 0 {
		return ^uint64(0)
	}
	minVal := int64(-1) << (xlen - 1)
	if av == minVal && bv == -1 {
		return a
	}
	return uint64(av / bv)
}

func divUnsigned(a, b uint64, xlen int) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remSigned(a, b uint64, xlen int) uint64 {
	av, bv := int64FromXlen(a, xlen), int64FromXlen(b, xlen)
	if bv == 0 {
		return a
	}
	minVal := int64(-1) << (xlen - 1)
	if av == minVal && bv == -1 {
		return 0
	}
	return uint64(av % bv)
}

func remUnsigned(a, b uint64, xlen int) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

func divSigned32(a, b int32) int32 {
	if b == 0 {
		return -1
	}
	if a == -0x80000000 && b == -1 {
		return a
	}
	return a / b
}

func divUnsigned32(a, b uint32) uint32 {
	if b == 0 {
		return 0xffffffff
	}
	return a / b
}

func remSigned32(a, b int32) int32 {
	if b == 0 {
		return a
	}
	if a == -0x80000000 && b == -1 {
		return 0
	}
	return a % b
}

func remUnsigned32(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}
