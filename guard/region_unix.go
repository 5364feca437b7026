//go:build unix

package guard

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is an anonymous read/write mapping that guard pages can be placed in.
// Its base is aligned to the page size it was created with.
type Region struct {
	mapped []byte // whole mapping, including alignment slack
	data   []byte
}

// MapRegion maps pages*pageSize bytes of anonymous memory.
// pageSize must be a power-of-two multiple of the platform page size.
func MapRegion(pages, pageSize int) (*Region, error) {
	if pages <= 0 {
		return nil, fmt.Errorf("region needs at least one page, got %d", pages)
	}
	if err := checkPageSize(pageSize); err != nil {
		return nil, err
	}

	size := pages * pageSize
	slack := pageSize - unix.Getpagesize()

	mapped, err := unix.Mmap(-1, 0, size+slack, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size+slack, err)
	}

	base := uintptr(unsafe.Pointer(&mapped[0]))
	skip := int(alignUp(base, uintptr(pageSize)) - base)

	return &Region{
		mapped: mapped,
		data:   mapped[skip : skip+size : skip+size],
	}, nil
}

// Base returns the first address of the region, or 0 once it is closed
func (r *Region) Base() Address {
	if len(r.data) == 0 {
		return 0
	}
	return Address(uintptr(unsafe.Pointer(&r.data[0])))
}

// End returns the address one past the last byte of the region
func (r *Region) End() Address {
	return r.Base() + Address(len(r.data))
}

func (r *Region) Len() int {
	return len(r.data)
}

// Bytes exposes the region. Touching a byte inside a guard page faults.
func (r *Region) Bytes() []byte {
	return r.data
}

func (r *Region) Contains(addr Address) bool {
	return addr >= r.Base() && addr < r.End()
}

// Offset converts an address inside the region to an index into Bytes
func (r *Region) Offset(addr Address) int {
	return int(addr - r.Base())
}

// Close unmaps the region. Closing twice is a no-op.
func (r *Region) Close() error {
	if r.mapped == nil {
		return nil
	}
	err := unix.Munmap(r.mapped)
	r.mapped, r.data = nil, nil
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
