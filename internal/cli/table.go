package cli

import (
	"bufio"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const tablePadding = 2

// table lays out rows in columns sized by display width, so wide runes and
// styled cells line up.
type table struct {
	headers []string
	rows    [][]string
	right   map[int]bool
}

func newTable(headers ...string) *table {
	return &table{headers: headers, right: map[int]bool{}}
}

// alignRight right-aligns the given columns, for counts and sizes.
func (t *table) alignRight(cols ...int) *table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(out io.Writer) error {
	cols := len(t.headers)
	for _, row := range t.rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return nil
	}

	widths := make([]int, cols)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], cellWidth(cell))
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}

	w := bufio.NewWriter(out)
	line := func(row []string) {
		var b strings.Builder
		for i := 0; i < cols; i++ {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			pad := strings.Repeat(" ", widths[i]-cellWidth(cell))
			last := i == cols-1
			switch {
			case t.right[i]:
				b.WriteString(pad + cell)
			case last:
				b.WriteString(cell)
			default:
				b.WriteString(cell + pad)
			}
			if !last {
				b.WriteString(strings.Repeat(" ", tablePadding))
			}
		}
		b.WriteByte('\n')
		_, _ = w.WriteString(b.String())
	}

	if len(t.headers) > 0 {
		line(t.headers)
	}
	for _, row := range t.rows {
		line(row)
	}
	return w.Flush()
}

// writeTable renders headers and rows with every column left-aligned.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	t := newTable(headers...)
	for _, row := range rows {
		t.add(row...)
	}
	return t.render(out)
}

func cellWidth(s string) int {
	return runewidth.StringWidth(stripANSI(s))
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// stripANSI removes CSI escape sequences such as lipgloss colors.
func stripANSI(value string) string {
	if !strings.Contains(value, "\x1b[") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != 0x1b || i+1 >= len(value) || value[i+1] != '[' {
			b.WriteByte(value[i])
			continue
		}
		for i += 2; i < len(value); i++ {
			if ch := value[i]; ch >= 0x40 && ch <= 0x7e {
				break
			}
		}
	}
	return b.String()
}
