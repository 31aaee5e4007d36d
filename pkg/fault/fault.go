// Package fault defines the exception kinds raised synchronously by the
// memory, decoder, and CPU subsystems. All faults are fatal to the
// triggering simulate call: they unwind as a single concrete error type
// that embedders classify with errors.Is against the package-level
// sentinels.
package fault

import "fmt"

// Kind identifies the category of a raised exception.
type Kind uint8

// The following constants enumerate every exception kind the core can
// raise. They mirror the table in the specification's error handling
// section verbatim.
const (
	IllegalOpcode Kind = iota
	IllegalOperation
	ProtectionFault
	ExecutionSpaceProtectionFault
	MisalignedInstruction
	InvalidAlignment
	UnimplementedInstruction
	DeadlockReached
	OutOfMemory
	UnknownException
)

var names = [...]string{
	"ILLEGAL_OPCODE",
	"ILLEGAL_OPERATION",
	"PROTECTION_FAULT",
	"EXECUTION_SPACE_PROTECTION_FAULT",
	"MISALIGNED_INSTRUCTION",
	"INVALID_ALIGNMENT",
	"UNIMPLEMENTED_INSTRUCTION",
	"DEADLOCK_REACHED",
	"OUT_OF_MEMORY",
	"UNKNOWN_EXCEPTION",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN_EXCEPTION"
}

// sentinels holds the error that errors.Is compares against for each
// Kind; one instance per kind, constructed once at init time.
var sentinels = func() [len(names)]error {
	var arr [len(names)]error
	for i, n := range names {
		arr[i] = fmt.Errorf("fault: %s", n)
	}
	return arr
}()

// Sentinel returns the package-level sentinel error for kind k, suitable
// for errors.Is comparisons (e.g. errors.Is(err, fault.Sentinel(fault.ProtectionFault))).
func Sentinel(k Kind) error {
	if int(k) < len(sentinels) {
		return sentinels[k]
	}
	return sentinels[UnknownException]
}

// Exception is the concrete error type raised by every faulting
// operation in the core. Data carries the faulting address, or a
// kind-specific code when no address applies.
type Exception struct {
	Kind    Kind
	Message string
	Data    uint64
}

// New constructs an Exception of the given kind carrying data and an
// optional formatted message.
func New(kind Kind, data uint64, format string, args ...any) *Exception {
	return &Exception{Kind: kind, Message: fmt.Sprintf(format, args...), Data: data}
}

// Error implements the error interface.
func (e *Exception) Error() string {
	return fmt.Sprintf("%s: %s (data=0x%x)", e.Kind, e.Message, e.Data)
}

// Unwrap lets errors.Is(err, fault.Sentinel(e.Kind)) succeed.
func (e *Exception) Unwrap() error {
	return Sentinel(e.Kind)
}

// Unpack returns the exception's kind and data word, matching the
// specification's MachineException.Unpack contract.
func (e *Exception) Unpack() (Kind, uint64) {
	return e.Kind, e.Data
}
