//go:build unix

package guard

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SystemProtector changes page protections with mprotect(2)
type SystemProtector struct{}

func (SystemProtector) Protect(addr Address, length uintptr, prot Protection) error {
	var flags uintptr
	switch prot {
	case ProtNone:
		flags = unix.PROT_NONE
	case ProtReadWrite:
		flags = unix.PROT_READ | unix.PROT_WRITE
	default:
		return fmt.Errorf("unknown protection %v", prot)
	}

	// The target is caller owned memory outside the Go heap, so there is no
	// []byte to hand to unix.Mprotect; issue the call on the raw address.
	_, _, errno := unix.Syscall(unix.SYS_MPROTECT, uintptr(addr), length, flags)
	if errno != 0 {
		return fmt.Errorf("mprotect %s+%#x %v: %w", addr, length, prot, errno)
	}
	return nil
}

// OSPageSize returns the platform page size
func OSPageSize() int {
	return unix.Getpagesize()
}
