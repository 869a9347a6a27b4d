package coord

// The engine's redraw protocol carries no "absolute line at the top of the
// screen" field. What it does carry is the rendered line-number gutter: a
// fixed-width run of digit cells at the left edge of the first and last
// screen rows. Tracking those digits recovers the scroll position. Updates
// can be partial — when only one digit changes, only that cell arrives —
// so new text is overlaid onto the previously tracked string at its column
// rather than replacing it.

// Overlay writes text into prev starting at column col and returns the
// result. prev is padded with spaces when col is past its end. col counts
// characters, matching gutter cells (digits and spaces are single-byte).
func Overlay(prev string, col int, text string) string {
	if col < 0 || text == "" {
		return prev
	}
	out := []rune(prev)
	for len(out) < col {
		out = append(out, ' ')
	}
	for i, r := range []rune(text) {
		if col+i < len(out) {
			out[col+i] = r
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}

// ParseLineNumber extracts the absolute line number from a tracked gutter
// string. Returns ok=false for strings with no digits or with garbage
// between digits; the caller keeps its previous value in that case.
func ParseLineNumber(s string) (int, bool) {
	n := 0
	seen := false
	done := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			if done {
				// digits after an inner gap: not a rendered number
				return 0, false
			}
			n = n*10 + int(r-'0')
			seen = true
		case r == ' ':
			if seen {
				done = true
			}
		default:
			return 0, false
		}
	}
	if !seen {
		return 0, false
	}
	return n, true
}
