package render

import (
	"strings"
	"unicode/utf8"
)

// RenderTable renders rows as a bordered monospace table. The first row is
// the header. The output starts with a blank line so it reads as a block
// after the step text; an empty table renders as "".
func RenderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	var sep strings.Builder
	sep.WriteByte('+')
	for _, w := range widths {
		sep.WriteString(strings.Repeat("-", w+2))
		sep.WriteByte('+')
	}
	separator := sep.String()

	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(separator)
	b.WriteByte('\n')
	writeRow(&b, rows[0], widths)
	b.WriteString(separator)
	b.WriteByte('\n')
	for _, row := range rows[1:] {
		writeRow(&b, row, widths)
	}
	b.WriteString(separator)
	b.WriteByte('\n')
	return b.String()
}

func writeRow(b *strings.Builder, row []string, widths []int) {
	b.WriteByte('|')
	for i, w := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		b.WriteByte(' ')
		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", w-utf8.RuneCountInString(cell)))
		b.WriteString(" |")
	}
	b.WriteByte('\n')
}
