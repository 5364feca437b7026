package guard

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Moonlight-Companies/gologger/logger"
)

type protectCall struct {
	addr Address
	prot Protection
}

// fakeProtector records protection changes instead of applying them
type fakeProtector struct {
	calls  []protectCall
	state  map[Address]Protection
	failOn map[protectCall]error
}

func newFakeProtector() *fakeProtector {
	return &fakeProtector{state: map[Address]Protection{}, failOn: map[protectCall]error{}}
}

func (p *fakeProtector) Protect(addr Address, length uintptr, prot Protection) error {
	c := protectCall{addr, prot}
	p.calls = append(p.calls, c)
	if err, ok := p.failOn[c]; ok {
		return err
	}
	p.state[addr] = prot
	return nil
}

// protected lists the pages currently marked inaccessible
func (p *fakeProtector) protected() []Address {
	var out []Address
	for a, prot := range p.state {
		if prot == ProtNone {
			out = append(out, a)
		}
	}
	return out
}

var errFake = errors.New("fake mprotect failure")

// fakeCheckpoint resumes with a preset fault, or runs the body when there is none
type fakeCheckpoint struct {
	fault  *Fault
	before func()
	ran    bool
}

func (c *fakeCheckpoint) Attempt(ctx context.Context, interrupts <-chan os.Signal, body func(context.Context)) *Fault {
	if c.before != nil {
		c.before()
	}
	if c.fault != nil {
		return c.fault
	}
	c.ran = true
	body(ctx)
	return nil
}

// window is a mutable Window for tests
type window struct {
	low, high Address
}

func (w *window) Low() Address  { return w.low }
func (w *window) High() Address { return w.high }

func newTestSession(t *testing.T, pageSize uintptr, prot Protector, cp Checkpoint) *Session {
	t.Helper()
	if cp == nil {
		cp = GoroutineCheckpoint{}
	}
	return &Session{
		pageSize:   pageSize,
		prot:       prot,
		checkpoint: cp,
		signals:    []os.Signal{os.Interrupt},
		log:        logger.NewLogger("guard-test"),
	}
}
