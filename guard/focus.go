package guard

import (
	"errors"
	"fmt"
)

var (
	errNullBound = errors.New("low or high bound is null")
	errSpent     = errors.New("window collapsed")
	errConverged = errors.New("guard already at the center of a one page window")
)

// focus centers the guard page in the current window. The previous guard
// page, if any, is restored to read/write before the new one is protected.
func (s *Session) focus() (Outcome, error) {
	low, high := s.window.Low(), s.window.High()

	if low == 0 || high == 0 {
		return Anomalous, errNullBound
	}
	if low >= high {
		return Exhausted, fmt.Errorf("%w: low %s, high %s", errSpent, low, high)
	}

	center := (low + (high-low)/2).PageDown(s.pageSize)
	old := s.guard
	if old == center && uintptr(high-low) <= s.pageSize {
		s.log.Infoln("guard: spent at", center.String())
		return Exhausted, errConverged
	}

	if old != 0 {
		s.log.Debugln("guard: retiring", old.String())
		s.guard = 0
		if err := s.prot.Protect(old, s.pageSize, ProtReadWrite); err != nil {
			return ProtectionFailure, fmt.Errorf("retire %s: %w", old, err)
		}
	}

	if err := s.prot.Protect(center, s.pageSize, ProtNone); err != nil {
		return ProtectionFailure, fmt.Errorf("protect %s: %w", center, err)
	}
	s.guard = center
	s.log.Infoln("guard: focused", center.String(), "low", low.String(), "high", high.String())

	return Sound, nil
}
