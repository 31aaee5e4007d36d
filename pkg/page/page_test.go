package page

import "testing"

func TestZeroPageShared(t *testing.T) {
	a := Zero()
	b := Zero()
	if a != b {
		t.Fatalf("Zero() returned distinct pages: %p != %p", a, b)
	}
	if !a.IsZero() {
		t.Fatalf("Zero().IsZero() = false")
	}
	if !a.Attrs.IsCOW || !a.Attrs.Read {
		t.Fatalf("zero page attrs = %+v, want Read && IsCOW", a.Attrs)
	}
}

func TestNewOwningDefaults(t *testing.T) {
	p := NewOwning()
	if p.IsZero() {
		t.Fatalf("NewOwning() returned the zero page")
	}
	if !p.Attrs.Read || !p.Attrs.Write || p.Attrs.Exec {
		t.Fatalf("NewOwning() attrs = %+v, want Read && Write && !Exec", p.Attrs)
	}
	if len(p.Data) != Size {
		t.Fatalf("len(Data) = %d, want %d", len(p.Data), Size)
	}
	for i, b := range p.Data {
		if b != 0 {
			t.Fatalf("Data[%d] = %d, want 0", i, b)
		}
	}
}

func TestNewNonOwning(t *testing.T) {
	buf := make([]byte, Size)
	buf[0] = 0xab
	p := NewNonOwning(buf, Attributes{Read: true, Exec: true})
	if !p.Attrs.NonOwning {
		t.Fatalf("NewNonOwning did not set NonOwning")
	}
	if p.Data[0] != 0xab {
		t.Fatalf("NewNonOwning copied the buffer instead of wrapping it")
	}
	buf[1] = 0xcd
	if p.Data[1] != 0xcd {
		t.Fatalf("NewNonOwning's Data is not backed by the caller's buffer")
	}
}

func TestCloneMaterializesPrivateCopy(t *testing.T) {
	z := Zero()
	c := z.Clone()
	if c == z {
		t.Fatalf("Clone() returned the same page")
	}
	if c.Attrs.IsCOW || c.Attrs.NonOwning {
		t.Fatalf("Clone() attrs = %+v, want IsCOW && NonOwning cleared", c.Attrs)
	}
	c.Data[0] = 0x42
	if z.Data[0] != 0 {
		t.Fatalf("writing to the clone mutated the shared zero page")
	}

	buf := make([]byte, Size)
	buf[10] = 7
	no := NewNonOwning(buf, Attributes{Read: true})
	clone := no.Clone()
	if clone.Attrs.NonOwning {
		t.Fatalf("Clone() of a non-owning page kept NonOwning set")
	}
	clone.Data[10] = 9
	if buf[10] != 7 {
		t.Fatalf("writing to the clone mutated the wrapped host buffer")
	}
}
