package guard

import (
	"fmt"
)

// Address is a location inside a caller owned mapping
type Address uintptr

func (a Address) String() string {
	return fmt.Sprintf("0x%X", uint64(a))
}

// PageDown truncates the address to the enclosing page boundary.
// pageSize must be a power of two.
func (a Address) PageDown(pageSize uintptr) Address {
	return a &^ Address(pageSize-1)
}

// Window is the bisection window [Low, High) the guard page is centered in.
// Both bounds are recomputed on every centering, so an implementation must
// reflect whatever the work routine changed before it touched the guard page.
type Window interface {
	Low() Address
	High() Address
}

// Bounds adapts two closures to a Window
type Bounds struct {
	LowFunc  func() Address
	HighFunc func() Address
}

func (b Bounds) Low() Address {
	if b.LowFunc == nil {
		return 0
	}
	return b.LowFunc()
}

func (b Bounds) High() Address {
	if b.HighFunc == nil {
		return 0
	}
	return b.HighFunc()
}

// Protection is the access mode applied to a guard page
type Protection int

const (
	ProtNone Protection = iota
	ProtReadWrite
)

func (p Protection) String() string {
	switch p {
	case ProtNone:
		return "---"
	case ProtReadWrite:
		return "rw-"
	default:
		return fmt.Sprintf("Protection(%d)", int(p))
	}
}

// Protector changes the access mode of page aligned memory
type Protector interface {
	// Protect applies prot to [addr, addr+length). addr must be page aligned.
	Protect(addr Address, length uintptr, prot Protection) error
}
