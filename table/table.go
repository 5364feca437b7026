// Package table renders aligned text tables. Cells may carry ANSI colors;
// widths are computed from the visible text.
package table

import (
	"fmt"
	"io"
	"strings"

	"guardprobe/coloransi"
)

// FormatFunc colorizes a cell after its width is known
type FormatFunc func(value string) string

// Column describes one column
type Column struct {
	Header string
	Blank  string // shown for empty cells, "-" when unset
	Format FormatFunc
	Right  bool // right align
}

type Table struct {
	cols   []Column
	rows   [][]string
	widths []int
}

func New(cols ...Column) *Table {
	t := &Table{cols: cols, widths: make([]int, len(cols))}
	for i := range t.cols {
		if t.cols[i].Blank == "" {
			t.cols[i].Blank = "-"
		}
		t.widths[i] = visibleLen(t.cols[i].Header)
	}
	return t
}

// Add appends a row. Missing trailing cells are blank.
func (t *Table) Add(cells ...string) *Table {
	row := make([]string, len(t.cols))
	for i := range row {
		if i < len(cells) && cells[i] != "" {
			row[i] = cells[i]
		} else {
			row[i] = t.cols[i].Blank
		}
		t.widths[i] = max(t.widths[i], visibleLen(row[i]))
	}
	t.rows = append(t.rows, row)
	return t
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Render(w io.Writer) error {
	line := make([]string, len(t.cols))
	for i, c := range t.cols {
		line[i] = t.pad(i, c.Header)
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(line, "  "), " ")); err != nil {
		return err
	}
	for i := range line {
		line[i] = strings.Repeat("-", t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.Join(line, "  ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		for i, v := range row {
			cell := t.pad(i, v)
			if f := t.cols[i].Format; f != nil && v != t.cols[i].Blank {
				cell = strings.Replace(cell, v, f(v), 1)
			}
			line[i] = cell
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(line, "  "), " ")); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) pad(col int, s string) string {
	n := t.widths[col] - visibleLen(s)
	if n <= 0 {
		return s
	}
	if t.cols[col].Right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

// visibleLen counts runes outside ANSI escape sequences
func visibleLen(s string) int {
	n := 0
	esc := false
	for _, r := range s {
		switch {
		case r == '\033':
			esc = true
		case esc:
			if r == 'm' {
				esc = false
			}
		default:
			n++
		}
	}
	return n
}

// PermsFormatter colors a /proc/self/maps permission string by access
func PermsFormatter(v string) string {
	switch {
	case strings.HasPrefix(v, "---"):
		return coloransi.Foreground(coloransi.Red, v)
	case strings.HasPrefix(v, "rw"):
		return coloransi.Foreground(coloransi.Green, v)
	}
	return v
}
