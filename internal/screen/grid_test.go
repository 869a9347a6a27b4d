package screen

import "testing"

func TestGridTopLineFallback(t *testing.T) {
	g := NewGrid(1)
	g.Height = 40

	if _, ok := g.TopLine(); ok {
		t.Fatal("expected no tracked top line on a fresh grid")
	}

	// Only the bottom row's gutter has been seen: top derives from
	// bottom = top + height - 1.
	g.TrackGutter(39, 0, "  140 ")
	top, ok := g.TopLine()
	if !ok || top != 101 {
		t.Errorf("TopLine from bottom = %d, %v, want 101, true", top, ok)
	}

	// Once the top row's digits arrive they win.
	g.TrackGutter(0, 0, "  100 ")
	top, ok = g.TopLine()
	if !ok || top != 100 {
		t.Errorf("TopLine = %d, %v, want 100, true", top, ok)
	}
}

func TestGridPartialGutterUpdate(t *testing.T) {
	g := NewGrid(1)
	g.Height = 40
	g.TrackGutter(0, 0, "  100 ")

	// Only the hundreds digit is redrawn: positional overlay, not
	// string replacement.
	g.TrackGutter(0, 2, "2")
	top, ok := g.TopLine()
	if !ok || top != 200 {
		t.Errorf("TopLine after partial update = %d, %v, want 200, true", top, ok)
	}
}

func TestGridMalformedGutterKeepsPrevious(t *testing.T) {
	g := NewGrid(1)
	g.Height = 40
	g.TrackGutter(0, 0, "  100 ")
	g.TrackGutter(0, 1, "~")

	if top, ok := g.TopLine(); ok {
		t.Errorf("expected malformed gutter to fail parsing, got %d", top)
	}
	// A later full redraw restores tracking.
	g.TrackGutter(0, 0, "  105 ")
	if top, ok := g.TopLine(); !ok || top != 105 {
		t.Errorf("TopLine after redraw = %d, %v, want 105, true", top, ok)
	}
}

func TestGridSetRunsOverlay(t *testing.T) {
	g := NewGrid(1)
	g.SetRuns(0, 0, 20, []attrRun{{Start: 0, End: 10, Attr: 1}, {Start: 12, End: 20, Attr: 2}})

	// Rewriting the middle truncates what it overlaps.
	g.SetRuns(0, 5, 15, []attrRun{{Start: 5, End: 15, Attr: 3}})

	runs := g.Runs(0)
	want := []attrRun{{0, 5, 1}, {5, 15, 3}, {15, 20, 2}}
	if len(runs) != len(want) {
		t.Fatalf("runs = %v, want %v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Errorf("run %d = %v, want %v", i, runs[i], want[i])
		}
	}
}

func TestGridScrollRows(t *testing.T) {
	g := NewGrid(1)
	g.SetRuns(5, 0, 10, []attrRun{{Start: 0, End: 10, Attr: 1}})
	g.SetRuns(6, 0, 10, []attrRun{{Start: 0, End: 10, Attr: 2}})

	// Scroll the region [0, 10) up by 2 rows.
	g.Scroll(0, 10, 0, 80, 2, 0)

	if runs := g.Runs(3); len(runs) != 1 || runs[0].Attr != 1 {
		t.Errorf("row 3 after scroll = %v", runs)
	}
	if runs := g.Runs(4); len(runs) != 1 || runs[0].Attr != 2 {
		t.Errorf("row 4 after scroll = %v", runs)
	}
	if runs := g.Runs(5); runs != nil {
		t.Errorf("row 5 should be vacated, got %v", runs)
	}
}

func TestGridScrollOutsideRegionUntouched(t *testing.T) {
	g := NewGrid(1)
	g.SetRuns(20, 0, 10, []attrRun{{Start: 0, End: 10, Attr: 7}})
	g.Scroll(0, 10, 0, 80, 3, 0)
	if runs := g.Runs(20); len(runs) != 1 || runs[0].Attr != 7 {
		t.Errorf("row outside scroll region changed: %v", runs)
	}
}
