package machine

import (
	"github.com/bassosimone/rve/pkg/cpu"
)

// SetupMinimalSyscalls installs the minimal syscall table spec.md §4.5
// names (exit, write, read, close, brk) plus the openat/fstat/lseek
// stubs SPEC_FULL.md adds: a libc start-up sequence commonly probes
// fstat on stdout before main runs, and the minimal five alone leave
// that ECALL unhandled.
func (m *Machine) SetupMinimalSyscalls() {
	m.SetSyscall(93, sysExit)
	m.SetSyscall(64, sysWrite)
	m.SetSyscall(63, sysRead)
	m.SetSyscall(57, sysClose)
	m.SetSyscall(214, sysBrk)
	m.SetSyscall(56, sysOpenatStub)
	m.SetSyscall(80, sysFstatStub)
	m.SetSyscall(62, sysLseekStub)
}

// errnoNoSys is the ENOSYS value the stub syscalls return in a0 (as
// -ENOSYS, per the Linux syscall ABI convention of returning a negative
// errno on failure).
const errnoNoSys = 38

// errnoBadFD is EBADF, returned when a write/read targets a descriptor
// this build does not back.
const errnoBadFD = 9

func sysExit(_ *Machine, c *cpu.CPU) error {
	c.ExitCode = int(int32(c.GPR(10)))
	c.StopRequested = true
	return nil
}

func sysWrite(m *Machine, c *cpu.CPU) error {
	fd := c.GPR(10)
	addr := c.GPR(11)
	count := c.GPR(12)
	if fd != 1 && fd != 2 {
		c.SetGPR(10, negErrno(errnoBadFD))
		return nil
	}
	buf, err := m.Memory.MemcpyToHost(addr, count)
	if err != nil {
		return err
	}
	if m.Config.Print != nil {
		m.Config.Print(buf)
	}
	c.SetGPR(10, count)
	return nil
}

func sysRead(m *Machine, c *cpu.CPU) error {
	fd := c.GPR(10)
	if fd != 0 {
		c.SetGPR(10, negErrno(errnoBadFD))
		return nil
	}
	// No host stdin wiring in this build: report EOF (0 bytes read)
	// rather than blocking, since simulate is synchronous and
	// cooperative.
	c.SetGPR(10, 0)
	return nil
}

func sysClose(_ *Machine, c *cpu.CPU) error {
	c.SetGPR(10, 0)
	return nil
}

// sysBrk implements the minimal brk(2) contract musl/newlib startup
// code uses to discover and extend the heap: called with 0 it reports
// the current break, called with a nonzero address it grows (never
// shrinks) to that address and reports the new break.
func sysBrk(m *Machine, c *cpu.CPU) error {
	req := c.GPR(10)
	if req > m.brk {
		m.brk = req
	}
	c.SetGPR(10, m.brk)
	return nil
}

func sysOpenatStub(_ *Machine, c *cpu.CPU) error {
	c.SetGPR(10, negErrno(errnoNoSys))
	return nil
}

func sysFstatStub(_ *Machine, c *cpu.CPU) error {
	c.SetGPR(10, negErrno(errnoNoSys))
	return nil
}

func sysLseekStub(_ *Machine, c *cpu.CPU) error {
	c.SetGPR(10, negErrno(errnoNoSys))
	return nil
}

func negErrno(errno uint64) uint64 {
	return ^errno + 1 // two's complement negation, masked by SetGPR to XLEN
}
