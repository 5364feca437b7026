package guard

import (
	"context"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
)

// FaultKind says what ended an attempt early
type FaultKind uint8

const (
	// FaultMemory is a hardware memory fault raised while the body ran.
	FaultMemory FaultKind = iota + 1
	// FaultInterrupt is an interrupt signal or a cancelled context.
	FaultInterrupt
	// FaultOther is any other panic raised by the body.
	FaultOther
	// FaultExit is a body that neither returned nor panicked, e.g. one that
	// called runtime.Goexit.
	FaultExit
)

func (k FaultKind) String() string {
	switch k {
	case FaultMemory:
		return "memory"
	case FaultInterrupt:
		return "interrupt"
	case FaultOther:
		return "other"
	case FaultExit:
		return "exit"
	}
	return "none"
}

// Fault describes why an attempt resumed at its checkpoint
type Fault struct {
	Kind FaultKind
	// Addr is the faulting address of a memory fault. Zero when the runtime
	// had no address to report, e.g. a nil dereference.
	Addr Address
	// Signal is set for interrupts delivered as signals.
	Signal os.Signal
	// Value is the recovered panic value, or the context error for a
	// cancelled context.
	Value any
}

// Checkpoint runs one attempt of a work routine and reports how it ended.
// A nil Fault means the body returned normally. A non-nil Fault means the
// body was abandoned and control came back to the checkpoint instead.
type Checkpoint interface {
	Attempt(ctx context.Context, interrupts <-chan os.Signal, body func(context.Context)) *Fault
}

// GoroutineCheckpoint runs the body on its own goroutine with panic-on-fault
// enabled. A memory fault unwinds the body through recover. An interrupt or a
// cancelled context cancels the context the body received, and Attempt
// returns once the body has stopped.
type GoroutineCheckpoint struct{}

func (GoroutineCheckpoint) Attempt(ctx context.Context, interrupts <-chan os.Signal, body func(context.Context)) *Fault {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan *Fault, 1)
	go func() {
		returned := false
		prev := debug.SetPanicOnFault(true)
		defer debug.SetPanicOnFault(prev)
		defer func() {
			r := recover()
			if r == nil && !returned {
				done <- &Fault{Kind: FaultExit}
				return
			}
			done <- faultFromPanic(r)
		}()
		body(actx)
		returned = true
	}()

	select {
	case f := <-done:
		if f == nil && ctx.Err() != nil {
			// returned because the caller's context was cancelled
			return &Fault{Kind: FaultInterrupt, Value: ctx.Err()}
		}
		return f
	case sig := <-interrupts:
		cancel()
		<-done
		return &Fault{Kind: FaultInterrupt, Signal: sig}
	case <-ctx.Done():
		<-done
		return &Fault{Kind: FaultInterrupt, Value: ctx.Err()}
	}
}

// faultFromPanic classifies a recovered panic value. With SetPanicOnFault the
// runtime raises a runtime.Error that exposes the faulting address.
func faultFromPanic(r any) *Fault {
	if r == nil {
		return nil
	}
	if a, ok := r.(interface{ Addr() uintptr }); ok {
		return &Fault{Kind: FaultMemory, Addr: Address(a.Addr()), Value: r}
	}
	if re, ok := r.(runtime.Error); ok && strings.Contains(re.Error(), "invalid memory address") {
		return &Fault{Kind: FaultMemory, Value: r}
	}
	return &Fault{Kind: FaultOther, Value: r}
}
