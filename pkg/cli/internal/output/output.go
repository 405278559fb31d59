// Package output provides common output formatting utilities.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"
)

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table creates an aligned table writer. Call Flush when done writing.
func Table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// Warn prints a warning line.
func Warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "Warning: "+format+"\n", args...)
}

// Banner draws title and lines inside a box. An empty line renders as a
// blank row.
func Banner(w io.Writer, title string, lines ...string) {
	width := utf8.RuneCountInString(title)
	for _, l := range lines {
		width = max(width, utf8.RuneCountInString(l))
	}
	width += 4

	pad := func(s string) string {
		return s + strings.Repeat(" ", width-2-utf8.RuneCountInString(s))
	}
	titleLen := utf8.RuneCountInString(title)
	titleLeft := (width - titleLen) / 2

	fmt.Fprintln(w, "╔"+strings.Repeat("═", width)+"╗")
	fmt.Fprintln(w, "║"+strings.Repeat(" ", titleLeft)+title+strings.Repeat(" ", width-titleLeft-titleLen)+"║")
	fmt.Fprintln(w, "╠"+strings.Repeat("═", width)+"╣")
	for _, l := range lines {
		fmt.Fprintln(w, "║  "+pad(l)+"║")
	}
	fmt.Fprintln(w, "╚"+strings.Repeat("═", width)+"╝")
}
