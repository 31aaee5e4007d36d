// Package regfile implements the architectural register file: the
// integer general-purpose registers, the floating-point register file
// with NaN-boxed single-precision tagging, an optional vector register
// file, and the program counter.
package regfile

// NumGPR is the number of integer general-purpose registers. Register 0
// is hard-wired to zero: writes to it are discarded.
const NumGPR = 32

// NumFPR is the number of floating-point registers.
const NumFPR = 32

// nanBoxUpper is the pattern that marks the upper 32 bits of an FPR
// payload as a reserved NaN-box, signaling the lower 32 bits hold a
// single-precision value.
const nanBoxUpper = 0xffffffff00000000

// File is the architectural register file for one hart. XLEN is the
// configured integer register width in bytes (4, 8, or 16); values are
// stored in 64-bit slots and masked to XLEN by GetGPR/SetGPR. For
// XLEN==16 the upper 64 bits live in GPRHi and are written only through
// SetGPRWide.
type File struct {
	// XLEN is the configured register width in bytes: 4, 8, or 16.
	XLEN int

	GPR [NumGPR]uint64
	// GPRHi holds the upper 64 bits of each GPR when XLEN==16; unused
	// otherwise. See Wide128 in wide128.go for the arithmetic this backs.
	GPRHi [NumGPR]uint64

	FPR [NumFPR]uint64

	Vector []uint64 // VLEN/64 words per vector register; nil unless enabled
	VLEN   int      // bits per vector register, 0 if vectors are disabled

	PC uint64
}

// New constructs a register file for the given XLEN (bytes per integer
// register: 4, 8, or 16).
func New(xlen int) *File {
	return &File{XLEN: xlen}
}

// Reset zeroes every register and sets PC to entry.
func (f *File) Reset(entry uint64) {
	f.GPR = [NumGPR]uint64{}
	f.GPRHi = [NumGPR]uint64{}
	f.FPR = [NumFPR]uint64{}
	for i := range f.Vector {
		f.Vector[i] = 0
	}
	f.PC = entry
}

// Mask returns the bitmask for the configured XLEN (for XLEN==16 this
// is the mask of the low 64 bits only; the high word is unmasked).
func (f *File) Mask() uint64 {
	switch f.XLEN {
	case 4:
		return 0xffffffff
	default:
		return ^uint64(0)
	}
}

// GetGPR reads general-purpose register i, masked to XLEN. Register 0
// always reads as zero.
func (f *File) GetGPR(i int) uint64 {
	if i == 0 {
		return 0
	}
	return f.GPR[i] & f.Mask()
}

// SetGPR writes v into general-purpose register i, masked to XLEN.
// Writes to register 0 are silently discarded.
func (f *File) SetGPR(i int, v uint64) {
	if i == 0 {
		return
	}
	f.GPR[i] = v & f.Mask()
}

// GetFPRSingle reads FP register i as a NaN-boxed single-precision
// value (the low 32 bits).
func (f *File) GetFPRSingle(i int) uint32 {
	return uint32(f.FPR[i])
}

// SetFPRSingle writes v into FP register i as a NaN-boxed
// single-precision value: the upper 32 bits are set to all-ones per the
// reserved NaN-box convention.
func (f *File) SetFPRSingle(i int, v uint32) {
	f.FPR[i] = nanBoxUpper | uint64(v)
}

// GetFPRDouble reads FP register i as a double-precision value.
func (f *File) GetFPRDouble(i int) uint64 {
	return f.FPR[i]
}

// SetFPRDouble writes v into FP register i as a double-precision value.
func (f *File) SetFPRDouble(i int, v uint64) {
	f.FPR[i] = v
}

// IsSingleBoxed reports whether FP register i currently holds a
// NaN-boxed single-precision value.
func (f *File) IsSingleBoxed(i int) bool {
	return f.FPR[i]&nanBoxUpper == nanBoxUpper
}

// EnableVector allocates a vector register file of numRegs registers,
// each vlenBits wide. Per the specification's non-goals, this is
// storage only: no vector instruction semantics are implemented.
func (f *File) EnableVector(numRegs, vlenBits int) {
	f.VLEN = vlenBits
	f.Vector = make([]uint64, numRegs*(vlenBits/64))
}

// Clone returns a deep copy of f, optionally excluding the vector file,
// for CPU forking (spec.md: "copies registers, optionally excluding
// vector").
func (f *File) Clone(excludeVector bool) *File {
	out := &File{XLEN: f.XLEN, GPR: f.GPR, GPRHi: f.GPRHi, FPR: f.FPR, PC: f.PC, VLEN: f.VLEN}
	if !excludeVector && f.Vector != nil {
		out.Vector = make([]uint64, len(f.Vector))
		copy(out.Vector, f.Vector)
	}
	return out
}
