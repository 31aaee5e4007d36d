package rvprof

import (
	"bytes"
	"testing"
)

func TestSampleAccumulatesHitCounts(t *testing.T) {
	s := New(nil)
	s.Sample(0x1000)
	s.Sample(0x1000)
	s.Sample(0x2000)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if s.hits[0x1000] != 2 {
		t.Errorf("hits[0x1000] = %d, want 2", s.hits[0x1000])
	}
}

func TestResetClearsHits(t *testing.T) {
	s := New(nil)
	s.Sample(0x1000)
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("Len() = %d after Reset, want 0", s.Len())
	}
}

func TestNameForFallsBackToHex(t *testing.T) {
	s := New(nil)
	if got := s.nameFor(0xabc); got != "0xabc" {
		t.Errorf("nameFor(0xabc) = %q, want %q", got, "0xabc")
	}
	s2 := New(func(pc uint64) string {
		if pc == 0x1000 {
			return "_start"
		}
		return ""
	})
	if got := s2.nameFor(0x1000); got != "_start" {
		t.Errorf("nameFor(0x1000) = %q, want %q", got, "_start")
	}
	if got := s2.nameFor(0x2000); got != "0x2000" {
		t.Errorf("nameFor(0x2000) = %q, want %q (resolve returned empty)", got, "0x2000")
	}
}

func TestProfileOneLocationPerDistinctPC(t *testing.T) {
	s := New(nil)
	s.Sample(0x100)
	s.Sample(0x100)
	s.Sample(0x200)
	p := s.Profile()
	if len(p.Location) != 2 {
		t.Fatalf("len(Location) = %d, want 2", len(p.Location))
	}
	if len(p.Sample) != 2 {
		t.Fatalf("len(Sample) = %d, want 2", len(p.Sample))
	}
	var total int64
	for _, sample := range p.Sample {
		total += sample.Value[0]
	}
	if total != 3 {
		t.Errorf("total sample value = %d, want 3", total)
	}
}

func TestWriteProfileProducesNonEmptyOutput(t *testing.T) {
	s := New(nil)
	s.Sample(0x100)
	var buf bytes.Buffer
	if err := s.WriteProfile(&buf); err != nil {
		t.Fatalf("WriteProfile: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("WriteProfile wrote 0 bytes")
	}
}
