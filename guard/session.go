// Package guard narrows an address range search with a single inaccessible
// guard page. The page sits at the middle of a caller defined window; when
// the caller's work touches it, the fault is caught, the guard page moves to
// the middle of the updated window and the caller is told to go again.
//
// A Session is not safe for concurrent use. Independent sessions, each with
// its own guard page, may run on different goroutines.
package guard

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Options configures a Session
type Options struct {
	// PageSize is the guard page size. It must be a power-of-two multiple of
	// the platform page size. Zero selects the platform page size.
	PageSize int

	// Protector applies page protections. Nil selects SystemProtector.
	Protector Protector

	// Checkpoint runs the work routine. Nil selects GoroutineCheckpoint.
	Checkpoint Checkpoint

	// Previous receives memory faults outside the guard page. When nil such
	// faults end the invocation as Anomalous.
	Previous FaultHandler

	// Signals abort a running attempt as Interrupted.
	Signals []os.Signal

	// Logger defaults to a "guard" logger.
	Logger *logger.Logger
}

// DefaultOptions returns the options used by NewSession for zero fields
func DefaultOptions() Options {
	return Options{
		PageSize:   OSPageSize(),
		Protector:  SystemProtector{},
		Checkpoint: GoroutineCheckpoint{},
		Signals:    []os.Signal{os.Interrupt},
	}
}

// Session is the state of one bisection: the guard page and the
// collaborators of the invocation in flight.
type Session struct {
	pageSize   uintptr
	prot       Protector
	checkpoint Checkpoint
	previous   FaultHandler
	signals    []os.Signal
	log        *logger.Logger

	guard   Address // 0 when no guard page is installed
	window  Window
	running atomic.Bool
}

func NewSession(opts Options) (*Session, error) {
	def := DefaultOptions()
	if opts.PageSize == 0 {
		opts.PageSize = def.PageSize
	}
	if err := checkPageSize(opts.PageSize); err != nil {
		return nil, err
	}
	if opts.Protector == nil {
		opts.Protector = def.Protector
	}
	if opts.Checkpoint == nil {
		opts.Checkpoint = def.Checkpoint
	}
	if opts.Signals == nil {
		opts.Signals = def.Signals
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "guard"))
	}

	return &Session{
		pageSize:   uintptr(opts.PageSize),
		prot:       opts.Protector,
		checkpoint: opts.Checkpoint,
		previous:   opts.Previous,
		signals:    opts.Signals,
		log:        opts.Logger,
	}, nil
}

// PageSize returns the guard page size in bytes
func (s *Session) PageSize() int {
	return int(s.pageSize)
}

// Guard returns the installed guard page, or 0 if there is none
func (s *Session) Guard() Address {
	return s.guard
}

// Close restores the guard page, if any, to read/write access.
// The session can be used again afterwards.
func (s *Session) Close() error {
	if s.running.Load() {
		return fmt.Errorf("guard: close during a running invocation")
	}
	if s.guard == 0 {
		return nil
	}
	old := s.guard
	s.guard = 0
	if err := s.prot.Protect(old, s.pageSize, ProtReadWrite); err != nil {
		return fmt.Errorf("failed to release guard page %s: %w", old, err)
	}
	s.log.Infoln("guard: released", old.String())
	return nil
}

// teardown restores the guard page after a terminal outcome. A failure is
// only logged: the outcome being reported matters more to the caller.
func (s *Session) teardown() Address {
	old := s.guard
	if old == 0 {
		return 0
	}
	s.guard = 0
	if err := s.prot.Protect(old, s.pageSize, ProtReadWrite); err != nil {
		s.log.Warn("guard: failed to uninstall guard page ", old.String(), ": ", err)
	}
	return old
}

func checkPageSize(pageSize int) error {
	platform := OSPageSize()
	if pageSize < platform || pageSize&(pageSize-1) != 0 {
		return fmt.Errorf("page size %d must be a power of two and at least the platform page size %d", pageSize, platform)
	}
	return nil
}
