// Package-level formatting helpers for the token-usage table
// (internal/sequencer.DefaultSink.Summary) and other fixed-width console
// output: numbers and costs that collapse to "" when zero so a table column
// doesn't fill with redundant "0"s, and phase names trimmed to keep rows
// narrow.
package console

import "fmt"

// FormatNumberOrEmpty formats a number or returns empty string if zero
func FormatNumberOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return FormatNumber(n)
}

// FormatCostOrEmpty formats cost or returns empty string if zero
func FormatCostOrEmpty(cost float64) string {
	if cost == 0 {
		return ""
	}
	return fmt.Sprintf("%.3f", cost)
}

// TruncateString truncates a string to maxLen with ellipsis
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen > 3 {
		return s[:maxLen-3] + "..."
	}
	return s[:maxLen]
}
