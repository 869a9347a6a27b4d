package screen

import "github.com/xonecas/tether/internal/coord"

// attrRun is a contiguous highlighted run on one grid row. Start and End
// are byte columns into the rendered row, End exclusive.
type attrRun struct {
	Start int
	End   int
	Attr  int
}

// Grid is one independently scrollable region of the engine's virtual
// screen, bound to at most one host viewport. The screen is taller than
// any real viewport, so the absolute line shown at the top is recovered
// from the rendered gutter digits of the first and last rows.
type Grid struct {
	ID       int
	Viewport int // bound viewport id; -1 while unbound
	Width    int
	Height   int

	CursorRow int
	CursorCol int // byte column

	// tracked gutter strings for the first and last screen rows
	topText    string
	bottomText string

	rows map[int][]attrRun
}

// NewGrid creates an unbound grid.
func NewGrid(id int) *Grid {
	return &Grid{ID: id, Viewport: -1, rows: make(map[int][]attrRun)}
}

// TopLine returns the 1-based absolute line number of the grid's first
// row. Falls back to deriving it from the bottom row's gutter (bottom =
// top + height - 1) when the top row's digits haven't been seen.
func (g *Grid) TopLine() (int, bool) {
	if n, ok := coord.ParseLineNumber(g.topText); ok {
		return n, true
	}
	if n, ok := coord.ParseLineNumber(g.bottomText); ok && g.Height > 0 {
		top := n - (g.Height - 1)
		if top >= 1 {
			return top, true
		}
	}
	return 0, false
}

// TrackGutter overlays a partial gutter cell update for row at byte column
// col. Only the first and last rows carry tracked numbers; other rows are
// ignored. Malformed content is harmless — parsing rejects it later and
// the previous value stays in effect.
func (g *Grid) TrackGutter(row, col int, text string) {
	switch row {
	case 0:
		g.topText = coord.Overlay(g.topText, col, text)
	case g.Height - 1:
		g.bottomText = coord.Overlay(g.bottomText, col, text)
	}
}

// SetRuns overlays runs covering byte columns [start, end) of row,
// truncating whatever they overlap.
func (g *Grid) SetRuns(row, start, end int, runs []attrRun) {
	if row < 0 || end <= start {
		return
	}
	old := g.rows[row]
	merged := make([]attrRun, 0, len(old)+len(runs))
	for _, r := range old {
		if r.End <= start || r.Start >= end {
			merged = append(merged, r)
			continue
		}
		if r.Start < start {
			merged = append(merged, attrRun{Start: r.Start, End: start, Attr: r.Attr})
		}
		if r.End > end {
			merged = append(merged, attrRun{Start: end, End: r.End, Attr: r.Attr})
		}
	}
	for _, r := range runs {
		if r.End > r.Start {
			merged = append(merged, r)
		}
	}
	sortRuns(merged)
	if len(merged) == 0 {
		delete(g.rows, row)
		return
	}
	g.rows[row] = merged
}

// Runs returns the highlight runs recorded for row, in column order.
func (g *Grid) Runs(row int) []attrRun {
	return g.rows[row]
}

// Scroll shifts recorded highlight state inside the region
// [top, bot) x [left, right) by rows/cols. Content correction arrives via
// later line updates; vacated cells are simply cleared. Positive rows
// moves content up (the region scrolled down in the document).
func (g *Grid) Scroll(top, bot, left, right, rows, cols int) {
	if rows != 0 {
		moved := make(map[int][]attrRun)
		for row, runs := range g.rows {
			if row < top || row >= bot {
				moved[row] = runs
				continue
			}
			dst := row - rows
			if dst >= top && dst < bot {
				moved[dst] = runs
			}
		}
		g.rows = moved
	}
	if cols != 0 {
		for row, runs := range g.rows {
			if row < top || row >= bot {
				continue
			}
			var shifted []attrRun
			for _, r := range runs {
				if r.Start >= left && r.End <= right {
					r.Start -= cols
					r.End -= cols
					if r.Start < left || r.End > right {
						continue
					}
				}
				shifted = append(shifted, r)
			}
			if shifted == nil {
				delete(g.rows, row)
				continue
			}
			g.rows[row] = shifted
		}
	}
}

// ClearRow drops highlight state for row.
func (g *Grid) ClearRow(row int) {
	delete(g.rows, row)
}

func sortRuns(runs []attrRun) {
	// insertion sort; run lists are tiny
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].Start < runs[j-1].Start; j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
}
