package memory

import (
	"errors"
	"testing"

	"github.com/bassosimone/rve/pkg/fault"
	"github.com/bassosimone/rve/pkg/page"
)

func TestReadUnmappedReturnsZero(t *testing.T) {
	m := New()
	v, err := Read[uint32](m, 0x4000)
	if err != nil {
		t.Fatalf("Read from an unmapped (but readable zero) page failed: %v", err)
	}
	if v != 0 {
		t.Fatalf("Read = %d, want 0", v)
	}
}

func TestWriteMaterializesCOWPage(t *testing.T) {
	m := New()
	if err := Write[uint32](m, 0x1000, 0xcafef00d); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := Read[uint32](m, 0x1000)
	if err != nil {
		t.Fatalf("Read after Write failed: %v", err)
	}
	if got != 0xcafef00d {
		t.Fatalf("Read = 0x%x, want 0xcafef00d", got)
	}
	if len(m.pages) != 1 {
		t.Fatalf("len(pages) = %d, want 1 (exactly one page materialized)", len(m.pages))
	}
}

func TestWriteToReadOnlyPageFaults(t *testing.T) {
	m := New()
	if err := m.SetPageAttr(0x2000, page.Size, page.Attributes{Read: true}); err != nil {
		t.Fatalf("SetPageAttr: %v", err)
	}
	err := Write[uint32](m, 0x2000, 1)
	if err == nil {
		t.Fatalf("Write to a read-only page succeeded")
	}
	if !errors.Is(err, fault.Sentinel(fault.ProtectionFault)) {
		t.Fatalf("Write error = %v, want a ProtectionFault", err)
	}
}

func TestCreatePageRespectsMaxPages(t *testing.T) {
	m := New()
	m.MaxPages = 1
	if _, err := m.CreatePage(0); err != nil {
		t.Fatalf("first CreatePage failed: %v", err)
	}
	_, err := m.CreatePage(1)
	if err == nil {
		t.Fatalf("CreatePage beyond MaxPages succeeded")
	}
	if !errors.Is(err, fault.Sentinel(fault.OutOfMemory)) {
		t.Fatalf("error = %v, want OutOfMemory", err)
	}
	// Re-promoting an already-counted page must not be blocked by the cap.
	if _, err := m.CreatePage(0); err != nil {
		t.Fatalf("re-fetching an already-mapped page failed under MaxPages: %v", err)
	}
}

func TestMapSegmentPlacesReadOnlyBytes(t *testing.T) {
	m := New()
	data := []byte("hello, world")
	if err := m.MapSegment(0x10000, data, page.Attributes{Read: true, Exec: true}); err != nil {
		t.Fatalf("MapSegment: %v", err)
	}
	got, err := m.MemcpyToHost(0x10000, uint64(len(data)))
	if err != nil {
		t.Fatalf("MemcpyToHost: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("MemcpyToHost = %q, want %q", got, data)
	}
	if err := Write[uint8](m, 0x10000, 0); err == nil {
		t.Fatalf("write to a segment mapped Read|Exec (no Write) succeeded")
	}
}

func TestMapSegmentSpanningPages(t *testing.T) {
	m := New()
	data := make([]byte, page.Size+16)
	for i := range data {
		data[i] = byte(i)
	}
	addr := uint64(page.Size - 8)
	if err := m.MapSegment(addr, data, page.Attributes{Read: true, Write: true}); err != nil {
		t.Fatalf("MapSegment: %v", err)
	}
	got, err := m.MemcpyToHost(addr, uint64(len(data)))
	if err != nil {
		t.Fatalf("MemcpyToHost: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}

func TestMemstringCrossesPageBoundary(t *testing.T) {
	m := New()
	addr := uint64(page.Size - 4)
	s := "spanning a page boundary"
	if err := m.MemcpyFromHost(addr, append([]byte(s), 0)); err != nil {
		t.Fatalf("MemcpyFromHost: %v", err)
	}
	got, err := m.Memstring(addr, 1024)
	if err != nil {
		t.Fatalf("Memstring: %v", err)
	}
	if got != s {
		t.Fatalf("Memstring = %q, want %q", got, s)
	}
}

func TestMemcmp(t *testing.T) {
	m := New()
	if err := m.MemcpyFromHost(0x100, []byte("abc")); err != nil {
		t.Fatalf("MemcpyFromHost: %v", err)
	}
	if err := m.MemcpyFromHost(0x200, []byte("abc")); err != nil {
		t.Fatalf("MemcpyFromHost: %v", err)
	}
	if err := m.MemcpyFromHost(0x300, []byte("abd")); err != nil {
		t.Fatalf("MemcpyFromHost: %v", err)
	}
	if eq, err := m.Memcmp(0x100, 0x200, 3); err != nil || eq != 0 {
		t.Fatalf("Memcmp(equal) = (%d, %v), want (0, nil)", eq, err)
	}
	if lt, err := m.Memcmp(0x100, 0x300, 3); err != nil || lt >= 0 {
		t.Fatalf("Memcmp(abc, abd) = (%d, %v), want <0", lt, err)
	}
}

func TestSetPageAttrLeavesCOWPagesUnmapped(t *testing.T) {
	m := New()
	if err := m.SetPageAttr(0, page.Size, page.Default()); err != nil {
		t.Fatalf("SetPageAttr: %v", err)
	}
	if len(m.pages) != 0 {
		t.Fatalf("SetPageAttr with default attrs materialized %d pages, want 0", len(m.pages))
	}
}

func TestSetPageAttrRejectsWriteExecByDefault(t *testing.T) {
	m := New()
	err := m.SetPageAttr(0, page.Size, page.Attributes{Write: true, Exec: true})
	if err == nil {
		t.Fatalf("SetPageAttr(W|X) succeeded without AllowWriteExecSegment")
	}
	if !errors.Is(err, fault.Sentinel(fault.IllegalOperation)) {
		t.Fatalf("error = %v, want IllegalOperation", err)
	}
}

func TestFlatArenaTakesPrecedenceWithinBounds(t *testing.T) {
	m := New()
	arena := make([]byte, 4096)
	m.EnableFlatArena(arena, 4096, 4096)
	if err := Write[uint32](m, 0, 0x11223344); err != nil {
		t.Fatalf("Write into arena: %v", err)
	}
	got, err := Read[uint32](m, 0)
	if err != nil || got != 0x11223344 {
		t.Fatalf("Read from arena = (0x%x, %v), want (0x11223344, nil)", got, err)
	}
	if len(m.pages) != 0 {
		t.Fatalf("arena write leaked into the paged map: %d pages", len(m.pages))
	}
}
