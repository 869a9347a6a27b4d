// Package linediff computes minimal line-range edits between two texts.
// Both sync directions use it: host edits become replace-line-range engine
// calls, engine edits become a single host edit transaction. The diff runs
// on whole lines, so reordering or touching one line in a large file yields
// one small contiguous range instead of character-level churn.
package linediff

import (
	"strings"

	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// Edit replaces lines [First, Last) with Lines. Both bounds are 0-based and
// Last is exclusive. First == Last inserts before First; empty Lines deletes
// the range.
type Edit struct {
	First int
	Last  int
	Lines []string
}

// Compute diffs before against after and returns the minimal ordered edit
// list, in coordinates of before. Inputs use "\n" separators; callers split
// and rejoin documents with their own end-of-line convention.
func Compute(before, after string) []Edit {
	if before == after {
		return nil
	}
	// Terminate both inputs so every line is its own diff token. The
	// line model splits "x\n" into ["x", ""]; without the terminators the
	// differ treats "x\n" as the single line "x" and a trailing empty
	// line silently vanishes from the edit list.
	raw := myers.ComputeEdits(span.URI(""), before+"\n", after+"\n")

	edits := make([]Edit, 0, len(raw))
	for _, te := range raw {
		e := Edit{
			First: te.Span.Start().Line() - 1,
			Last:  te.Span.End().Line() - 1,
		}
		if te.NewText != "" {
			e.Lines = strings.Split(strings.TrimSuffix(te.NewText, "\n"), "\n")
		}
		edits = append(edits, e)
	}
	return mergeTouching(edits)
}

// Apply replays edits over the given lines and returns the result. Used by
// tests and by the engine→host path to build the expected text.
func Apply(lines []string, edits []Edit) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	// Later edits index the original text, so apply back to front.
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		if e.First < 0 || e.First > len(out) || e.Last < e.First || e.Last > len(out) {
			continue
		}
		repl := make([]string, 0, len(out)-(e.Last-e.First)+len(e.Lines))
		repl = append(repl, out[:e.First]...)
		repl = append(repl, e.Lines...)
		repl = append(repl, out[e.Last:]...)
		out = repl
	}
	return out
}

// mergeTouching folds a pure deletion and a pure insertion that share a
// boundary into one range replacement, so a changed line surfaces as a
// single replace edit rather than a delete/insert pair.
func mergeTouching(in []Edit) []Edit {
	var out []Edit
	for _, e := range in {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			switch {
			case len(prev.Lines) == 0 && prev.First < prev.Last &&
				e.First == e.Last && len(e.Lines) > 0 &&
				(e.First == prev.First || e.First == prev.Last):
				// delete range, then insert at its edge
				prev.Lines = e.Lines
				continue
			case prev.First == prev.Last && len(prev.Lines) > 0 &&
				len(e.Lines) == 0 && e.First < e.Last &&
				(prev.First == e.First || prev.First == e.Last):
				// insert at an edge of the range deleted next
				prev.First = e.First
				prev.Last = e.Last
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
