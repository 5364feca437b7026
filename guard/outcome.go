package guard

import (
	"errors"
	"fmt"
)

// Outcome classifies how a guarded invocation ended
type Outcome uint8

const (
	// Sound means the work routine completed without touching the guard page.
	Sound Outcome = iota
	// Recentered means the work routine touched the guard page, was abandoned,
	// and the guard page was moved to the middle of the updated window.
	// The result is not usable; the caller invokes again.
	Recentered
	// Exhausted means the window can no longer be subdivided.
	Exhausted
	// Anomalous means an invariant was violated (bad bounds, foreign fault).
	Anomalous
	// ProtectionFailure means a page protection change failed.
	ProtectionFailure
	// Interrupted means an interrupt signal or context cancellation aborted the work.
	Interrupted
)

var outcomeNames = [...]string{
	Sound:             "sound",
	Recentered:        "recentered",
	Exhausted:         "exhausted",
	Anomalous:         "anomalous",
	ProtectionFailure: "protection-failure",
	Interrupted:       "interrupted",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// Terminal reports whether the outcome tears the guard page down.
func (o Outcome) Terminal() bool {
	return o != Sound && o != Recentered
}

var (
	ErrRecentered  = errors.New("guard: recentered, invoke again")
	ErrExhausted   = errors.New("guard: window exhausted")
	ErrAnomalous   = errors.New("guard: anomalous fault or bounds")
	ErrProtection  = errors.New("guard: page protection failed")
	ErrInterrupted = errors.New("guard: interrupted")
)

func (o Outcome) sentinel() error {
	switch o {
	case Recentered:
		return ErrRecentered
	case Exhausted:
		return ErrExhausted
	case Anomalous:
		return ErrAnomalous
	case ProtectionFailure:
		return ErrProtection
	case Interrupted:
		return ErrInterrupted
	}
	return nil
}

// Error is returned by Run for every outcome other than Sound
type Error struct {
	Outcome Outcome
	Guard   Address // guard page at the time the outcome was decided, 0 if none
	Fault   Address // faulting address, 0 if the outcome was not caused by a memory fault
	Err     error   // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := "guard: " + e.Outcome.String()
	if s := e.Outcome.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Guard != 0 {
		msg += " (guard " + e.Guard.String() + ")"
	}
	if e.Fault != 0 {
		msg += " (fault " + e.Fault.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Outcome.sentinel()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// OutcomeOf maps an error returned by Run back to its outcome.
// A nil error is Sound; errors not produced by this package are Anomalous.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return Sound
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Outcome
	}
	return Anomalous
}
