//go:build !unix

package guard

import (
	"errors"
	"os"
)

// SystemProtector is a placeholder on platforms without mprotect
type SystemProtector struct{}

func (SystemProtector) Protect(addr Address, length uintptr, prot Protection) error {
	return errors.ErrUnsupported
}

func OSPageSize() int {
	return os.Getpagesize()
}
