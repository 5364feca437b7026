package guard

import (
	"context"
	"errors"
)

var errBusy = errors.New("session already has an invocation in flight")

// Run runs work once against the window with the session's guard page in
// place.
//
// If work returns without touching the guard page, its result is returned
// with a nil error and the guard page stays installed for the next call.
// If work touches the guard page it is abandoned, the guard page is moved to
// the middle of the window as it is after the touch, and Run returns the zero
// result with an error matching ErrRecentered; the caller invokes Run again to
// continue the search. Every other outcome restores the guard page to
// read/write, forgets it, and returns an *Error for that outcome.
//
// A memory fault outside the guard page is handed to Options.Previous, if
// set, and its panic is then re-raised on the calling goroutine. Panics from
// work that are not memory faults propagate unchanged.
//
// work receives a context that is cancelled when the attempt is interrupted.
// Run does not return until an interrupted work routine has observed that
// context and stopped, so long running work must watch ctx.Done(). A work
// routine that exits through runtime.Goexit ends the invocation as Anomalous.
func Run[R any](ctx context.Context, s *Session, w Window, work func(context.Context) R) (R, error) {
	var zero R

	if !s.running.CompareAndSwap(false, true) {
		return zero, &Error{Outcome: Anomalous, Guard: s.guard, Err: errBusy}
	}
	defer s.running.Store(false)

	s.window = w
	defer func() { s.window = nil }()

	low, high := w.Low(), w.High()
	switch {
	case low == 0 || high == 0:
		return zero, s.fail(Anomalous, nil, errNullBound)
	case low >= high:
		return zero, s.fail(Exhausted, nil, errSpent)
	}

	if s.guard == 0 {
		if out, err := s.focus(); out != Sound {
			s.log.Infoln("guard: failed to install guard page:", err)
			return zero, s.fail(out, nil, err)
		}
	}

	b := s.installBridge()
	defer b.uninstall()

	var result R
	fault := s.checkpoint.Attempt(ctx, b.interrupts, func(ctx context.Context) {
		result = work(ctx)
	})
	if fault == nil {
		return result, nil
	}

	v := s.handleFault(fault)
	if v.forward {
		panic(fault.Value)
	}
	if !v.outcome.Terminal() {
		return zero, &Error{Outcome: v.outcome, Guard: s.guard, Fault: fault.Addr}
	}
	return zero, s.fail(v.outcome, fault, v.err)
}

// fail tears the guard page down and builds the error for a terminal outcome
func (s *Session) fail(out Outcome, f *Fault, cause error) error {
	e := &Error{Outcome: out, Err: cause}
	if f != nil {
		e.Fault = f.Addr
	}
	e.Guard = s.teardown()
	s.log.Infoln("guard: ended", out.String())
	return e
}
