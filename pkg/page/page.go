// Package page implements the fixed-size backing store for guest memory.
//
// A Page is a 4 KiB byte buffer plus a small set of attributes. All
// unmapped addresses read through a single shared, copy-on-write zero
// page; the first write to a CoW page materializes a private, owning
// copy. A page may also carry a trap callback that intercepts typed
// reads and writes for MMIO-style emulation.
package page


// Size is the fixed size of a page in bytes.
const Size = 4096

// TrapKind indicates whether a trapped access was a read or a write.
type TrapKind int

// The following constants define the trap access kinds.
const (
	TrapRead TrapKind = iota
	TrapWrite
)

// TrapFunc is invoked on a typed access to a page carrying a trap. For
// reads, val is ignored and the return value becomes the read result.
// For writes, val is the value being written and the return value
// is ignored.
type TrapFunc func(offset uint32, size int, kind TrapKind, val uint64) (uint64, error)

// Attributes describes the permissions and special states of a Page.
type Attributes struct {
	Read       bool
	Write      bool
	Exec       bool
	IsCOW      bool
	NonOwning  bool
	HasTrap    bool
}

// Default returns the attributes of a freshly allocated owning page:
// readable and writable, not executable.
func Default() Attributes {
	return Attributes{Read: true, Write: true}
}

// Page is a fixed-size region of guest memory.
type Page struct {
	Attrs Attributes
	Data  []byte   // always len == Size, except for non-owning wrapped slices
	Trap  TrapFunc // non-nil only when Attrs.HasTrap
}

// zero is the single, shared, never-mutated zero page backing every
// unmapped address. It is always {Read:true, IsCOW:true}.
var zero = &Page{
	Attrs: Attributes{Read: true, IsCOW: true},
	Data:  make([]byte, Size),
}

// Zero returns the shared zero page. Callers must never write to its
// Data slice; any write must first Clone the page.
func Zero() *Page {
	return zero
}

// NewOwning allocates a fresh, zeroed, owning page with the default
// attributes (read/write, not executable).
func NewOwning() *Page {
	return &Page{Attrs: Default(), Data: make([]byte, Size)}
}

// NewNonOwning wraps an externally supplied buffer (for example an ELF
// image's executable segment) without copying it. The caller retains
// ownership of buf and must keep it alive for as long as the page is
// in use.
func NewNonOwning(buf []byte, attrs Attributes) *Page {
	attrs.NonOwning = true
	return &Page{Attrs: attrs, Data: buf}
}

// IsZero reports whether p is the shared zero page.
func (p *Page) IsZero() bool {
	return p == zero
}

// Clone returns a new, owning page carrying a copy of p's bytes and
// attributes with IsCOW and NonOwning cleared. It is used both to
// materialize a private copy of the CoW zero page and to promote a
// non-owning page before a write.
func (p *Page) Clone() *Page {
	data := make([]byte, Size)
	copy(data, p.Data)
	attrs := p.Attrs
	attrs.IsCOW = false
	attrs.NonOwning = false
	return &Page{Attrs: attrs, Data: data}
}
