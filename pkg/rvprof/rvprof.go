// Package rvprof implements a PC-histogram hotspot profiler for a
// running CPU: it counts how often each span (fast loop) or
// instruction (precise loop) is sampled and renders the histogram as a
// pprof-format profile via github.com/google/pprof/profile, loadable
// directly in "go tool pprof".
package rvprof

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/pprof/profile"
)

// Sampler accumulates per-PC hit counts. It satisfies the small
// interface pkg/cpu.CPU.Profiler expects (a Sample(pc uint64) method),
// so wiring it in is a single field assignment: cpu.Profiler = sampler.
type Sampler struct {
	hits    map[uint64]int64
	resolve func(pc uint64) string
}

// New constructs a Sampler. resolve, if non-nil, names a PC (typically
// via Machine.ResolveAddress's symbol table) for the profile's function
// names; a nil resolve or one that returns "" falls back to a hex
// address.
func New(resolve func(pc uint64) string) *Sampler {
	return &Sampler{hits: make(map[uint64]int64), resolve: resolve}
}

// Sample records one hit at pc.
func (s *Sampler) Sample(pc uint64) {
	s.hits[pc]++
}

// Reset discards all accumulated samples.
func (s *Sampler) Reset() {
	s.hits = make(map[uint64]int64)
}

// Len returns the number of distinct PCs sampled so far.
func (s *Sampler) Len() int {
	return len(s.hits)
}

// Profile renders the accumulated histogram as a *profile.Profile: one
// Location and Function per distinct sampled PC, one Sample per
// Location carrying its hit count.
func (s *Sampler) Profile() *profile.Profile {
	pcs := make([]uint64, 0, len(s.hits))
	for pc := range s.hits {
		pcs = append(pcs, pc)
	}
	sort.Slice(pcs, func(i, j int) bool { return pcs[i] < pcs[j] })

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "instructions", Unit: "count"},
		Period:     1,
	}
	for i, pc := range pcs {
		id := uint64(i + 1)
		name := s.nameFor(pc)
		fn := &profile.Function{ID: id, Name: name, SystemName: name}
		loc := &profile.Location{
			ID:      id,
			Address: pc,
			Line:    []profile.Line{{Function: fn, Line: 0}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.hits[pc]},
		})
	}
	return p
}

func (s *Sampler) nameFor(pc uint64) string {
	if s.resolve != nil {
		if name := s.resolve(pc); name != "" {
			return name
		}
	}
	return fmt.Sprintf("0x%x", pc)
}

// WriteProfile renders the accumulated histogram and writes it in
// pprof's gzip-compressed protobuf wire format to w.
func (s *Sampler) WriteProfile(w io.Writer) error {
	return s.Profile().Write(w)
}
