package fault

import (
	"errors"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := []struct {
		k    Kind
		want string
	}{
		{IllegalOpcode, "ILLEGAL_OPCODE"},
		{ProtectionFault, "PROTECTION_FAULT"},
		{DeadlockReached, "DEADLOCK_REACHED"},
		{Kind(255), "UNKNOWN_EXCEPTION"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Errorf("Kind(%d).String() = %q, want %q", c.k, got, c.want)
		}
	}
}

func TestExceptionErrorsIsSentinel(t *testing.T) {
	err := New(ProtectionFault, 0x1000, "page not writable")
	if !errors.Is(err, Sentinel(ProtectionFault)) {
		t.Fatalf("errors.Is(err, Sentinel(ProtectionFault)) = false")
	}
	if errors.Is(err, Sentinel(IllegalOpcode)) {
		t.Fatalf("errors.Is(err, Sentinel(IllegalOpcode)) = true, want false")
	}
}

func TestExceptionUnpack(t *testing.T) {
	err := New(MisalignedInstruction, 0xdeadbeef, "branch target %d", 3)
	kind, data := err.Unpack()
	if kind != MisalignedInstruction {
		t.Errorf("Unpack kind = %v, want %v", kind, MisalignedInstruction)
	}
	if data != 0xdeadbeef {
		t.Errorf("Unpack data = 0x%x, want 0x%x", data, 0xdeadbeef)
	}
	if err.Message != "branch target 3" {
		t.Errorf("Message = %q, want %q", err.Message, "branch target 3")
	}
}

func TestSentinelOutOfRangeFallsBackToUnknown(t *testing.T) {
	if Sentinel(Kind(255)) != Sentinel(UnknownException) {
		t.Fatalf("Sentinel(255) did not fall back to UnknownException's sentinel")
	}
}
