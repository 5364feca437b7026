// Package arena grows two allocation frontiers toward each other inside one
// mapping and uses a guard session to notice when the free gap between them
// runs out. The stack side claims chunks upward from the base, the heap side
// claims chunks downward from the end; the gap [stack, heap) is the window the
// guard page bisects.
package arena

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"guardprobe/guard"
)

// Memory is the mapping an arena allocates from
type Memory interface {
	Base() guard.Address
	Bytes() []byte
}

// Options configures an Arena
type Options struct {
	// ChunkSize is the size of one claim. It must be a multiple of the guard
	// page size so both frontiers stay page aligned.
	ChunkSize int

	// HeapEvery sends every n-th claim to the heap side; the rest go to the
	// stack side. Zero keeps every claim on the stack side.
	HeapEvery int

	// Delay is slept before every claim, which leaves room to interrupt a run.
	Delay time.Duration
}

type span struct {
	at   guard.Address
	size int
	fill byte
}

// Arena is a double ended bump allocator. It implements guard.Window.
type Arena struct {
	mem  Memory
	opts Options

	stack   guard.Address
	heap    guard.Address
	claims  int
	pending *span // claimed, not yet fully written

	Allocs int // chunks written
}

func New(mem Memory, opts Options) (*Arena, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if len(mem.Bytes())%opts.ChunkSize != 0 {
		return nil, fmt.Errorf("region of %d bytes is not a whole number of %d byte chunks", len(mem.Bytes()), opts.ChunkSize)
	}
	return &Arena{
		mem:   mem,
		opts:  opts,
		stack: mem.Base(),
		heap:  mem.Base() + guard.Address(len(mem.Bytes())),
	}, nil
}

func (a *Arena) Low() guard.Address  { return a.stack }
func (a *Arena) High() guard.Address { return a.heap }

// Free returns the size of the gap between the frontiers
func (a *Arena) Free() int {
	return int(a.heap - a.stack)
}

// Fill claims and writes chunks until the gap cannot hold another one or ctx
// is done. A chunk abandoned by a fault in an earlier call is written first.
// Fill returns the number of chunks written so far.
func (a *Arena) Fill(ctx context.Context) int {
	if a.pending != nil {
		a.write(*a.pending)
		a.pending = nil
		a.Allocs++
	}

	for a.Free() >= a.opts.ChunkSize {
		if a.opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return a.Allocs
			case <-time.After(a.opts.Delay):
			}
		}
		if ctx.Err() != nil {
			return a.Allocs
		}

		s := a.claim()
		a.pending = &s
		a.write(s)
		a.pending = nil
		a.Allocs++
	}
	return a.Allocs
}

// claim moves a frontier before the chunk is touched, so a fault on the
// guard page already sees the narrowed gap.
func (a *Arena) claim() span {
	a.claims++
	if a.opts.HeapEvery > 0 && a.claims%a.opts.HeapEvery == 0 {
		a.heap -= guard.Address(a.opts.ChunkSize)
		return span{at: a.heap, size: a.opts.ChunkSize, fill: 'H'}
	}
	s := span{at: a.stack, size: a.opts.ChunkSize, fill: 'S'}
	a.stack += guard.Address(a.opts.ChunkSize)
	return s
}

func (a *Arena) write(s span) {
	off := int(s.at - a.mem.Base())
	b := a.mem.Bytes()[off : off+s.size]
	for i := range b {
		b[i] = s.fill
	}
	if len(b) >= 8 {
		binary.LittleEndian.PutUint64(b, uint64(a.claims))
	}
}
