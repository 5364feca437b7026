package guard

import (
	"fmt"

	"guardprobe/process/memory_map"
)

// Inspect reports the live mapping entry that covers the guard page, as the
// kernel sees it. It fails when no guard page is installed.
func (s *Session) Inspect() (memory_map.MemoryMapItem, error) {
	if s.guard == 0 {
		return memory_map.MemoryMapItem{}, fmt.Errorf("guard: no guard page installed")
	}
	return InspectAddress(s.guard)
}

// InspectAddress reports the mapping entry of the calling process that
// contains addr.
func InspectAddress(addr Address) (memory_map.MemoryMapItem, error) {
	mm, err := memory_map.NewMemoryMap().ReadSelf()
	if err != nil {
		return memory_map.MemoryMapItem{}, fmt.Errorf("failed to read memory map: %w", err)
	}
	item := memory_map.Lookup(uint64(addr), mm)
	if item == nil {
		return memory_map.MemoryMapItem{}, fmt.Errorf("%s is not mapped", addr)
	}
	return *item, nil
}
