package table

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardprobe/coloransi"
)

func render(t *testing.T, tb *Table) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, tb.Render(&sb))
	return sb.String()
}

func TestRenderAligns(t *testing.T) {
	tb := New(Column{Header: "#", Right: true}, Column{Header: "guard"}, Column{Header: "perms"})
	tb.Add("1", "0x1000", "---p").Add("12", "0x20000")

	want := " #  guard    perms\n" +
		"--  -------  -----\n" +
		" 1  0x1000   ---p\n" +
		"12  0x20000  -\n"
	assert.Equal(t, want, render(t, tb))
	assert.Equal(t, 2, tb.Len())
}

func TestRenderIgnoresEscapesInWidth(t *testing.T) {
	prev := coloransi.Enabled()
	coloransi.SetEnabled(true)
	defer coloransi.SetEnabled(prev)

	tb := New(Column{Header: "perms", Format: PermsFormatter}, Column{Header: "x"})
	tb.Add("---p", "a")

	out := render(t, tb)
	assert.Contains(t, out, coloransi.Foreground(coloransi.Red, "---p")+"   a")
	assert.Equal(t, 5, visibleLen(coloransi.Foreground(coloransi.Red, "hello")))
}
