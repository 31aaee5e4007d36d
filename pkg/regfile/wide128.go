package regfile

import "math/bits"

// Wide128 is a 128-bit unsigned integer represented as two 64-bit
// limbs, used only to back GPR/GPRHi arithmetic when XLEN==16. Full
// RV128I instruction semantics are out of scope for this build (see
// DESIGN.md); this type exists so address and register-width math for
// a 128-bit configuration does not silently truncate.
type Wide128 struct {
	Lo, Hi uint64
}

// AddWide128 adds two Wide128 values with carry propagation.
func AddWide128(a, b Wide128) Wide128 {
	lo, carry := bits.Add64(a.Lo, b.Lo, 0)
	hi, _ := bits.Add64(a.Hi, b.Hi, carry)
	return Wide128{Lo: lo, Hi: hi}
}

// SubWide128 subtracts b from a with borrow propagation.
func SubWide128(a, b Wide128) Wide128 {
	lo, borrow := bits.Sub64(a.Lo, b.Lo, 0)
	hi, _ := bits.Sub64(a.Hi, b.Hi, borrow)
	return Wide128{Lo: lo, Hi: hi}
}

// GetGPRWide reads GPR i as a Wide128 value, valid only when
// f.XLEN == 16.
func (f *File) GetGPRWide(i int) Wide128 {
	if i == 0 {
		return Wide128{}
	}
	return Wide128{Lo: f.GPR[i], Hi: f.GPRHi[i]}
}

// SetGPRWide writes a Wide128 value into GPR i, valid only when
// f.XLEN == 16. Writes to register 0 are discarded.
func (f *File) SetGPRWide(i int, v Wide128) {
	if i == 0 {
		return
	}
	f.GPR[i] = v.Lo
	f.GPRHi[i] = v.Hi
}
