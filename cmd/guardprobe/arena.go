//go:build unix

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/spf13/cobra"

	"guardprobe/arena"
	"guardprobe/guard"
	"guardprobe/hexdump"
	"guardprobe/process/memory_map"
	"guardprobe/table"
)

type arenaFlags struct {
	pages      int
	chunkPages int
	heapEvery  int
	delay      time.Duration
	maps       bool
	dump       int
}

func init() {
	rootCmd.AddCommand(newArenaCmd())
}

func newArenaCmd() *cobra.Command {
	var f arenaFlags
	cmd := &cobra.Command{
		Use:   "arena",
		Short: "Fill a two ended arena and find where its frontiers meet",
		Long: `The arena command maps a region, grows a stack frontier up from its base
and a heap frontier down from its end, and lets the guard page bisect the
free gap between them. Each touch of the guard page recenters it; the run
ends when the gap is exhausted or on the first terminal outcome.

Example:
  guardprobe arena --pages 256
  guardprobe arena --pages 64 --heap-every 3 --maps
  guardprobe arena --pages 1024 --delay 10ms   # Ctrl+C to interrupt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArena(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().IntVar(&f.pages, "pages", 64, "Region size in guard pages")
	cmd.Flags().IntVar(&f.chunkPages, "chunk-pages", 1, "Allocation size in guard pages")
	cmd.Flags().IntVar(&f.heapEvery, "heap-every", 0, "Send every n-th allocation to the heap side (0: stack only)")
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "Sleep before every allocation")
	cmd.Flags().BoolVar(&f.maps, "maps", false, "Print the memory map entry of the guard page after every recentering")
	cmd.Flags().IntVar(&f.dump, "dump", 64, "Bytes to dump on each side of the final guard page (0: no dump)")
	return cmd
}

func runArena(ctx context.Context, out io.Writer, f arenaFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	page := pageSize
	if page == 0 {
		page = guard.OSPageSize()
	}

	region, err := guard.MapRegion(f.pages, page)
	if err != nil {
		return fmt.Errorf("failed to map region: %w", err)
	}
	defer region.Close()

	s, err := guard.NewSession(guard.Options{
		PageSize: page,
		Logger:   logger.NewLogger(loggerName("arena")),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	a, err := arena.New(region, arena.Options{
		ChunkSize: f.chunkPages * page,
		HeapEvery: f.heapEvery,
		Delay:     f.delay,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "region %s-%s, %d pages of %d bytes\n", region.Base(), region.End(), f.pages, page)

	trace := table.New(
		table.Column{Header: "#", Right: true},
		table.Column{Header: "guard"},
		table.Column{Header: "low"},
		table.Column{Header: "high"},
		table.Column{Header: "perms", Format: table.PermsFormatter},
		table.Column{Header: "mapping"},
	)
	rep := arena.Probe(ctx, s, a, func(g guard.Address) {
		row := []string{strconv.Itoa(trace.Len() + 1), g.String(), a.Low().String(), a.High().String()}
		if f.maps {
			if item, err := s.Inspect(); err == nil {
				row = append(row, item.Perms, fmt.Sprintf("0x%X-0x%X", item.Address, item.End()))
			} else {
				row = append(row, "", err.Error())
			}
		}
		trace.Add(row...)
		printVerbose("recentered at %s\n", g)
	})

	if trace.Len() > 0 {
		fmt.Fprintln(out)
		if err := trace.Render(out); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	summary := table.New(table.Column{Header: "outcome"}, table.Column{Header: "recenters", Right: true},
		table.Column{Header: "allocs", Right: true}, table.Column{Header: "last guard"}, table.Column{Header: "free", Right: true})
	summary.Add(rep.Outcome.String(), strconv.Itoa(rep.Recenters), strconv.Itoa(rep.Allocs),
		rep.LastGuard.String(), strconv.Itoa(a.Free()))
	if err := summary.Render(out); err != nil {
		return err
	}

	if f.dump > 0 && region.Contains(rep.LastGuard) {
		fmt.Fprintln(out)
		dumpAround(out, region, rep.LastGuard, page, f.dump)
	}

	switch rep.Outcome {
	case guard.Sound, guard.Exhausted:
		return nil
	case guard.Interrupted:
		return &exitError{code: 130, err: rep.Err}
	default:
		return &exitError{code: 2, err: rep.Err}
	}
}

// dumpAround hexdumps n bytes on each side of the start of the guard page,
// marking the guard page itself
func dumpAround(out io.Writer, r *guard.Region, g guard.Address, page, n int) {
	start := max(r.Offset(g)-n, 0)
	end := min(r.Offset(g)+n, r.Len())

	mm, err := memory_map.NewMemoryMap().ReadSelf()
	if err != nil {
		printVerbose("no memory map: %v\n", err)
	}

	opts := hexdump.DefaultOptions()
	opts.StartOffset = uint64(r.Base()) + uint64(start)
	opts.MarkStart = uint64(g)
	opts.MarkEnd = uint64(g) + uint64(page)
	opts.ShowPointers = mm != nil
	opts.MemoryMap = mm
	hexdump.DumpToWriter(out, r.Bytes()[start:end], opts)
}

// loggerName colors a logger name unless --no-color is set
func loggerName(name string) string {
	if noColor {
		return name
	}
	return coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, name)
}
