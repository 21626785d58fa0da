// Package stringutil holds small helpers for rendering process output in
// errors and logs.
package stringutil

// TruncateOutput returns at most maxLen bytes of out as a string, marking
// the cut when anything was dropped.
func TruncateOutput(out []byte, maxLen int) string {
	if len(out) <= maxLen {
		return string(out)
	}
	if maxLen < 0 {
		maxLen = 0
	}
	return string(out[:maxLen]) + "... (truncated)"
}
