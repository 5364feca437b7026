package guard

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
)

// FaultHandler receives memory faults that landed outside the guard page.
// It stands in for whatever handler owned the fault before the session did.
type FaultHandler interface {
	HandleFault(f Fault)
}

// FaultHandlerFunc adapts a function to a FaultHandler
type FaultHandlerFunc func(f Fault)

func (fn FaultHandlerFunc) HandleFault(f Fault) {
	fn(f)
}

var (
	errNoGuard      = errors.New("fault with no guard page installed")
	errNoFaultAddr  = errors.New("memory fault without an address")
	errForeignFault = errors.New("memory fault outside the guard page")
	errWorkExited   = errors.New("work routine exited without returning")
)

// bridge owns the interrupt subscription for one attempt
type bridge struct {
	interrupts chan os.Signal
}

func (s *Session) installBridge() *bridge {
	b := &bridge{interrupts: make(chan os.Signal, 1)}
	if len(s.signals) > 0 {
		signal.Notify(b.interrupts, s.signals...)
	}
	return b
}

func (b *bridge) uninstall() {
	signal.Stop(b.interrupts)
}

// verdict is the bridge's decision about a fault
type verdict struct {
	outcome Outcome
	err     error
	// forward is set when the fault belongs to someone else and must keep
	// propagating instead of resuming at the checkpoint.
	forward bool
}

// handleFault classifies a fault and, for a hit on the guard page, recenters
// the guard. It only records its decision; the controller acts on it.
func (s *Session) handleFault(f *Fault) verdict {
	if f.Kind == FaultOther {
		s.log.Debugln("guard: not a fault, propagating:", fmt.Sprint(f.Value))
		return verdict{forward: true}
	}

	if s.guard == 0 {
		s.log.Debugln("guard: fault with no guard page")
		return verdict{outcome: Anomalous, err: errNoGuard}
	}

	switch f.Kind {
	case FaultMemory:
		if f.Addr == 0 {
			s.log.Debugln("guard: memory fault without an address")
			return verdict{outcome: Anomalous, err: fmt.Errorf("%w: %v", errNoFaultAddr, f.Value)}
		}
		if s.inGuard(f.Addr) {
			s.log.Debugln("guard: hit", f.Addr.String())
			out, err := s.focus()
			if out == Sound {
				out = Recentered
			}
			return verdict{outcome: out, err: err}
		}
		s.log.Debugln("guard: foreign fault", f.Addr.String())
		if s.previous != nil {
			s.previous.HandleFault(*f)
			return verdict{forward: true}
		}
		return verdict{outcome: Anomalous, err: fmt.Errorf("%w: %v", errForeignFault, f.Value)}
	case FaultExit:
		s.log.Debugln("guard: work routine exited")
		return verdict{outcome: Anomalous, err: errWorkExited}
	case FaultInterrupt:
		s.log.Debugln("guard: interrupted")
		if err, ok := f.Value.(error); ok {
			return verdict{outcome: Interrupted, err: err}
		}
		return verdict{outcome: Interrupted}
	}

	return verdict{outcome: Anomalous}
}

func (s *Session) inGuard(addr Address) bool {
	return addr >= s.guard && addr < s.guard+Address(s.pageSize)
}
