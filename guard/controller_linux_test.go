//go:build linux

package guard

import (
	"context"
	"os"
	"runtime/debug"
	"sync"
	"testing"

	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func mapTestRegion(t *testing.T, pages int) *Region {
	t.Helper()
	r, err := MapRegion(pages, OSPageSize())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close()) })
	return r
}

func newLiveSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger("guard-test")
	}
	s, err := NewSession(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// touchFaults writes one byte and reports whether the write faulted
func touchFaults(b []byte, off int) (faulted bool) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)
	defer func() {
		if recover() != nil {
			faulted = true
		}
	}()
	b[off] = 0x5a
	return false
}

func requirePerms(t *testing.T, addr Address, inaccessible bool) {
	t.Helper()
	item, err := InspectAddress(addr)
	require.NoError(t, err)
	require.Equal(t, inaccessible, item.IsInaccessible(), item.String())
}

// frontier is a window whose high bound the work routine pulls down onto
// the guard page before touching it
type frontier struct {
	low, high Address
}

func (f *frontier) Low() Address  { return f.low }
func (f *frontier) High() Address { return f.high }

func TestLiveUntouchedKeepsGuard(t *testing.T) {
	r := mapTestRegion(t, 8)
	s := newLiveSession(t, Options{})
	w := Bounds{LowFunc: r.Base, HighFunc: r.End}

	got, err := Run(context.Background(), s, w, func(context.Context) int {
		r.Bytes()[0] = 1
		r.Bytes()[r.Len()-1] = 2
		return int(r.Bytes()[0]) + int(r.Bytes()[r.Len()-1])
	})
	require.NoError(t, err)
	require.Equal(t, 3, got)

	guard := s.Guard()
	require.Equal(t, r.Base()+Address(4*OSPageSize()), guard)
	requirePerms(t, guard, true)

	item, err := s.Inspect()
	require.NoError(t, err)
	require.True(t, item.IsInaccessible())

	require.True(t, touchFaults(r.Bytes(), r.Offset(guard)))
	require.False(t, touchFaults(r.Bytes(), r.Offset(guard)-1))

	require.NoError(t, s.Close())
	requirePerms(t, guard, false)
	require.False(t, touchFaults(r.Bytes(), r.Offset(guard)))
}

func TestLiveBisectsToExhaustion(t *testing.T) {
	const pages = 8
	r := mapTestRegion(t, pages)
	s := newLiveSession(t, Options{})
	w := &frontier{low: r.Base(), high: r.End()}

	work := func(context.Context) bool {
		w.high = s.Guard()
		r.Bytes()[r.Offset(s.Guard())] = 1
		return true
	}

	var (
		err       error
		recenters int
		seen      = map[Address]bool{}
	)
	for i := 0; i < 2*pages; i++ {
		_, err = Run(context.Background(), s, w, work)
		if OutcomeOf(err) != Recentered {
			break
		}
		recenters++
		require.False(t, seen[s.Guard()])
		seen[s.Guard()] = true
		requirePerms(t, s.Guard(), true)
	}

	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 3, recenters)

	var ge *Error
	require.ErrorAs(t, err, &ge)
	require.Equal(t, r.Base(), ge.Guard)
	require.Equal(t, r.Base(), ge.Fault)
	require.Zero(t, s.Guard())
	requirePerms(t, ge.Guard, false)
	require.False(t, touchFaults(r.Bytes(), 0))
}

func TestLiveInterruptSignal(t *testing.T) {
	r := mapTestRegion(t, 8)
	s := newLiveSession(t, Options{})
	w := Bounds{LowFunc: r.Base, HighFunc: r.End}

	_, err := Run(context.Background(), s, w, func(ctx context.Context) int {
		if err := unix.Kill(os.Getpid(), unix.SIGINT); err != nil {
			return -1
		}
		<-ctx.Done()
		return 0
	})
	require.ErrorIs(t, err, ErrInterrupted)

	var ge *Error
	require.ErrorAs(t, err, &ge)
	require.NotZero(t, ge.Guard)
	require.Zero(t, s.Guard())
	requirePerms(t, ge.Guard, false)
	require.False(t, touchFaults(r.Bytes(), r.Offset(ge.Guard)))
}

func TestLiveContextCancel(t *testing.T) {
	r := mapTestRegion(t, 4)
	s := newLiveSession(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Run(ctx, s, Bounds{LowFunc: r.Base, HighFunc: r.End}, func(wctx context.Context) int {
		cancel()
		<-wctx.Done()
		return 0
	})
	require.ErrorIs(t, err, ErrInterrupted)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLiveForeignFault(t *testing.T) {
	r := mapTestRegion(t, 8)
	other := mapTestRegion(t, 2)
	page := OSPageSize()
	require.NoError(t, unix.Mprotect(other.Bytes()[:page], unix.PROT_NONE))
	defer unix.Mprotect(other.Bytes()[:page], unix.PROT_READ|unix.PROT_WRITE)

	var (
		mu        sync.Mutex
		forwarded []Fault
	)
	s := newLiveSession(t, Options{
		Previous: FaultHandlerFunc(func(f Fault) {
			mu.Lock()
			forwarded = append(forwarded, f)
			mu.Unlock()
		}),
	})

	require.Panics(t, func() {
		_, _ = Run(context.Background(), s, Bounds{LowFunc: r.Base, HighFunc: r.End}, func(context.Context) int {
			other.Bytes()[16] = 1
			return 0
		})
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, forwarded, 1)
	assert.Equal(t, FaultMemory, forwarded[0].Kind)
	assert.Equal(t, other.Base()+16, forwarded[0].Addr)
	assert.NotZero(t, s.Guard(), "the checkpoint was not resumed")
}

func TestLiveForeignFaultWithoutHandler(t *testing.T) {
	r := mapTestRegion(t, 8)
	other := mapTestRegion(t, 1)
	require.NoError(t, unix.Mprotect(other.Bytes(), unix.PROT_NONE))
	defer unix.Mprotect(other.Bytes(), unix.PROT_READ|unix.PROT_WRITE)

	s := newLiveSession(t, Options{})
	_, err := Run(context.Background(), s, Bounds{LowFunc: r.Base, HighFunc: r.End}, func(context.Context) int {
		other.Bytes()[0] = 1
		return 0
	})
	require.ErrorIs(t, err, ErrAnomalous)
	require.Equal(t, other.Base(), err.(*Error).Fault)
}

func TestLiveNilDereferenceIsAnomalous(t *testing.T) {
	r := mapTestRegion(t, 4)
	s := newLiveSession(t, Options{})

	var p *int
	_, err := Run(context.Background(), s, Bounds{LowFunc: r.Base, HighFunc: r.End}, func(context.Context) int {
		return *p
	})
	require.ErrorIs(t, err, ErrAnomalous)
	require.ErrorIs(t, err, errNoFaultAddr)
}

func TestLiveIndependentSessions(t *testing.T) {
	ra, rb := mapTestRegion(t, 8), mapTestRegion(t, 16)
	sa, sb := newLiveSession(t, Options{}), newLiveSession(t, Options{})
	wa := &frontier{low: ra.Base(), high: ra.End()}
	wb := &frontier{low: rb.Base(), high: rb.End()}

	touch := func(s *Session, r *Region, w *frontier) func(context.Context) int {
		return func(context.Context) int {
			if s.Guard() != 0 {
				w.low = s.Guard() + Address(s.PageSize())
				r.Bytes()[r.Offset(s.Guard())] = 1
			}
			return 0
		}
	}

	// place both guards
	_, err := Run(context.Background(), sa, wa, func(context.Context) int { return 0 })
	require.NoError(t, err)
	_, err = Run(context.Background(), sb, wb, func(context.Context) int { return 0 })
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = Run(context.Background(), sa, wa, touch(sa, ra, wa))
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = Run(context.Background(), sb, wb, touch(sb, rb, wb))
	}()
	wg.Wait()

	require.ErrorIs(t, errs[0], ErrRecentered)
	require.ErrorIs(t, errs[1], ErrRecentered)
	assert.Equal(t, ra.Base()+Address(6*OSPageSize()), sa.Guard())
	assert.Equal(t, rb.Base()+Address(12*OSPageSize()), sb.Guard())
}

func TestMapRegionAlignment(t *testing.T) {
	page := OSPageSize() * 4
	r, err := MapRegion(3, page)
	require.NoError(t, err)
	defer r.Close()

	assert.Zero(t, uintptr(r.Base())%uintptr(page))
	assert.Equal(t, 3*page, r.Len())
	assert.True(t, r.Contains(r.Base()))
	assert.False(t, r.Contains(r.End()))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Zero(t, r.Base())
	assert.Nil(t, r.Bytes())
	assert.Zero(t, r.Len())
	assert.False(t, r.Contains(0))

	_, err = MapRegion(0, OSPageSize())
	require.Error(t, err)
	_, err = MapRegion(1, OSPageSize()+1)
	require.Error(t, err)
}
