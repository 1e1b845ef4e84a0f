package main

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// folderSizeColumn is printed in the size column for folders, the way
// object-store listings mark prefixes.
const folderSizeColumn = "PRE"

// formatListingTime renders a modification time for ls output,
// "2006-01-02 15:04" in local time.
func formatListingTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
