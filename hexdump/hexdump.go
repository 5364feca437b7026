package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"guardprobe/coloransi"
	"guardprobe/process/memory_map"
)

// HexDumpOptions defines options for customizing the hexdump output
type HexDumpOptions struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// ShowOffset determines whether to show the offset/address column
	ShowOffset bool

	// StartOffset is the address of the first byte
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	OffsetColor       coloransi.ColorCode
	HexColor          coloransi.ColorCode
	ASCIIColor        coloransi.ColorCode
	NonPrintableColor coloransi.ColorCode
	ZeroColor         coloransi.ColorCode

	// MarkStart and MarkEnd delimit an address range, such as a guard page,
	// whose bytes are drawn in MarkColor. An empty range marks nothing.
	MarkStart uint64
	MarkEnd   uint64
	MarkColor coloransi.ColorCode

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// ShowPointers appends the little endian words at byte 0 and 8 of a line
	// when they point into MemoryMap, in red when the target is unreadable.
	// MemoryMap must be sorted by address.
	ShowPointers bool
	MemoryMap    []memory_map.MemoryMapItem
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() HexDumpOptions {
	return HexDumpOptions{
		BytesPerLine:      16,
		GroupSize:         1,
		ShowASCII:         true,
		ShowOffset:        true,
		OffsetWidth:       12,
		OffsetColor:       coloransi.Cyan,
		HexColor:          coloransi.Green,
		ASCIIColor:        coloransi.White,
		NonPrintableColor: coloransi.BrightBlack,
		ZeroColor:         coloransi.BrightBlack,
		MarkColor:         coloransi.Red,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options HexDumpOptions) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options HexDumpOptions) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := min(offset+options.BytesPerLine, len(data))
		formatLine(writer, data[offset:end], options.StartOffset+uint64(offset), options)
		lineCount++
	}
}

// formatLine formats a single line of the hex dump
func formatLine(writer io.Writer, data []byte, addr uint64, options HexDumpOptions) {
	if options.ShowOffset {
		offsetStr := fmt.Sprintf("%0"+strconv.Itoa(options.OffsetWidth)+"x", addr)
		fmt.Fprint(writer, coloransi.Foreground(options.OffsetColor, offsetStr), "  ")
	}

	hexParts := formatHexValues(data, addr, options)
	fmt.Fprint(writer, strings.Join(hexParts, " "))

	// keep the ASCII column aligned on a short last line
	if missing := options.BytesPerLine - len(data); missing > 0 {
		fullGroups := (options.BytesPerLine + options.GroupSize - 1) / options.GroupSize
		curGroups := (len(data) + options.GroupSize - 1) / options.GroupSize
		fmt.Fprint(writer, strings.Repeat(" ", missing*2+(fullGroups-curGroups)))
	}

	if options.ShowASCII {
		fmt.Fprint(writer, " | ")
		formatASCII(writer, data, addr, options)
	}

	if options.ShowPointers && len(data) >= 8 {
		var ptrs []string
		for off := 0; off+8 <= len(data) && off <= 8; off += 8 {
			ptr := binary.LittleEndian.Uint64(data[off : off+8])
			item := memory_map.Lookup(ptr, options.MemoryMap)
			if item == nil {
				continue
			}
			color := coloransi.Yellow
			if !item.IsReadable() {
				color = coloransi.Red
			}
			ptrs = append(ptrs, coloransi.Foreground(color, fmt.Sprintf("0x%x", ptr)))
		}
		if len(ptrs) > 0 {
			fmt.Fprint(writer, " | ", strings.Join(ptrs, " "))
		}
	}

	fmt.Fprintln(writer)
}

func (o HexDumpOptions) marked(addr uint64) bool {
	return addr >= o.MarkStart && addr < o.MarkEnd
}

// formatASCII formats the ASCII part of a hex dump line
func formatASCII(writer io.Writer, data []byte, addr uint64, options HexDumpOptions) {
	for i, b := range data {
		c := rune(b)
		switch {
		case options.marked(addr + uint64(i)):
			ch := "."
			if b != 0 && unicode.IsPrint(c) {
				ch = string(c)
			}
			fmt.Fprint(writer, coloransi.Foreground(options.MarkColor, ch))
		case b == 0:
			fmt.Fprint(writer, coloransi.Foreground(options.ZeroColor, "."))
		case c > unicode.MaxASCII || !unicode.IsPrint(c):
			fmt.Fprint(writer, coloransi.Foreground(options.NonPrintableColor, "."))
		default:
			fmt.Fprint(writer, coloransi.Foreground(options.ASCIIColor, string(c)))
		}
	}
}

// formatHexValues formats the hex values part of the line with proper grouping
func formatHexValues(data []byte, addr uint64, options HexDumpOptions) []string {
	var result []string
	var group strings.Builder

	for i, b := range data {
		color := options.HexColor
		switch {
		case options.marked(addr + uint64(i)):
			color = options.MarkColor
		case b == 0:
			color = options.ZeroColor
		}
		group.WriteString(coloransi.Foreground(color, fmt.Sprintf("%02x", b)))

		if (i+1)%options.GroupSize == 0 || i == len(data)-1 {
			result = append(result, group.String())
			group.Reset()
		}
	}

	return result
}
