package arena

import (
	"context"
	"errors"

	"guardprobe/guard"
)

// Report summarizes a Probe
type Report struct {
	Outcome   guard.Outcome
	Err       error
	Recenters int
	// Guards lists the guard page after each recentering
	Guards []guard.Address
	// LastGuard is the final guard page, restored or still installed
	LastGuard guard.Address
	Allocs    int
}

// Probe drives the arena with the session until the arena is full or the
// session reports a terminal outcome. onRecenter, if set, is called after
// every recentering with the new guard page installed.
func Probe(ctx context.Context, s *guard.Session, a *Arena, onRecenter func(guard.Address)) Report {
	var rep Report
	for {
		_, err := guard.Run(ctx, s, a, a.Fill)
		out := guard.OutcomeOf(err)
		if out == guard.Recentered {
			rep.Recenters++
			rep.Guards = append(rep.Guards, s.Guard())
			if onRecenter != nil {
				onRecenter(s.Guard())
			}
			continue
		}

		rep.Outcome = out
		rep.Err = err
		rep.Allocs = a.Allocs
		rep.LastGuard = s.Guard()
		var ge *guard.Error
		if errors.As(err, &ge) {
			rep.LastGuard = ge.Guard
		}
		return rep
	}
}
