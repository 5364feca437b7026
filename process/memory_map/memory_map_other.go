//go:build !linux

package memory_map

import (
	"fmt"
	"runtime"
)

// OtherMemoryMap is a placeholder for platforms without /proc
type OtherMemoryMap struct{}

func NewOtherMemoryMap() *OtherMemoryMap {
	return &OtherMemoryMap{}
}

func (o *OtherMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	return nil, fmt.Errorf("ReadMemoryMap not implemented for %s", runtime.GOOS)
}

func (o *OtherMemoryMap) ReadSelf() ([]MemoryMapItem, error) {
	return nil, fmt.Errorf("ReadSelf not implemented for %s", runtime.GOOS)
}

func NewMemoryMap() MemoryMap {
	return NewOtherMemoryMap()
}
