package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xonecas/tether/internal/host"
)

type inputRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *inputRecorder) Input(ctx context.Context, keys string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, keys)
	return nil
}

func (r *inputRecorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// newTestDecoder builds a decoder over a 120-line document shown in
// viewport 1, with a 6-byte gutter.
func newTestDecoder(t *testing.T) (*Decoder, *host.MockEditor, *host.MockViewport, *inputRecorder) {
	t.Helper()
	lines := make([]string, 120)
	for i := range lines {
		lines[i] = fmt.Sprintf("l%d", i)
	}
	ed := host.NewMockEditor()
	doc := ed.AddDocument("file:///a.txt", strings.Join(lines, "\n"))
	vp := ed.AddViewport(1, doc)
	in := &inputRecorder{}
	d := NewDecoder(Config{
		GutterWidth:  6,
		CmdlineDelay: 5 * time.Millisecond,
	}, ed, in)
	return d, ed, vp, in
}

func redraw(t *testing.T, d *Decoder, payload string) {
	t.Helper()
	d.HandleRedraw(context.Background(), json.RawMessage(payload))
}

// setup binds grid 1 to viewport 1 and tracks top line 100.
func setupGrid(t *testing.T, d *Decoder) {
	t.Helper()
	redraw(t, d, `[
		["hl_attr_define", [5, {"name": "LineNr"}], [1, {"name": "Comment", "foreground": "#888888"}]],
		["win_pos", [1, 1, 80, 40]],
		["grid_line", [1, 0, 0, [["  100 ", 5]]]],
		["flush"]
	]`)
}

func TestDecoderCursorBatchAtomicity(t *testing.T) {
	d, _, vp, _ := newTestDecoder(t)
	setupGrid(t, d)

	// Two cursor moves in one batch: only the final position lands.
	redraw(t, d, `[
		["grid_cursor_goto", [1, 0, 0]],
		["grid_cursor_goto", [1, 2, 3]],
		["flush"]
	]`)

	line, char := vp.Cursor()
	if line != 101 || char != 3 {
		t.Errorf("cursor = (%d, %d), want (101, 3)", line, char)
	}
	if vp.CursorMoves != 1 {
		t.Errorf("expected one host cursor move, got %d", vp.CursorMoves)
	}
}

func TestDecoderCursorSuppression(t *testing.T) {
	d, _, vp, _ := newTestDecoder(t)
	setupGrid(t, d)

	d.SuppressNextCursor()
	redraw(t, d, `[["grid_cursor_goto", [1, 1, 0]], ["flush"]]`)
	if vp.CursorMoves != 0 {
		t.Fatal("suppressed cursor update reached the host")
	}

	// The flag is one-shot: the next batch moves normally.
	redraw(t, d, `[["grid_cursor_goto", [1, 1, 0]], ["flush"]]`)
	if vp.CursorMoves != 1 {
		t.Errorf("expected one cursor move after suppression consumed, got %d", vp.CursorMoves)
	}
}

func TestDecoderCursorSkipsInactiveViewport(t *testing.T) {
	d, ed, vp, _ := newTestDecoder(t)
	setupGrid(t, d)
	doc2 := ed.AddDocument("file:///b.txt", "x")
	ed.AddViewport(2, doc2)
	ed.SetActive(2)

	redraw(t, d, `[["grid_cursor_goto", [1, 3, 0]], ["flush"]]`)
	if vp.CursorMoves != 0 {
		t.Error("cursor applied to a viewport without host input focus")
	}
}

func TestDecoderMultibyteCursorColumn(t *testing.T) {
	d, ed, _, _ := newTestDecoder(t)
	doc := ed.AddDocument("file:///u.txt", strings.Repeat("pad\n", 99)+"aébéc")
	vp := ed.AddViewport(3, doc)
	ed.SetActive(3)

	redraw(t, d, `[
		["hl_attr_define", [5, {"name": "LineNr"}]],
		["win_pos", [2, 3, 80, 40]],
		["grid_line", [2, 0, 0, [["   1  ", 5]]]],
		["flush"]
	]`)

	// Byte column 4 is after "aéb" (1+2+1 bytes): character column 3.
	redraw(t, d, `[["grid_cursor_goto", [2, 99, 4]], ["flush"]]`)
	line, char := vp.Cursor()
	if line != 99 || char != 3 {
		t.Errorf("cursor = (%d, %d), want (99, 3)", line, char)
	}
}

func TestDecoderHighlightSpans(t *testing.T) {
	d, _, vp, _ := newTestDecoder(t)
	setupGrid(t, d)

	// Row 2 shows 1-based line 102, document index 101 ("l101"). A
	// Comment run covers its first two characters, after the 6-byte
	// gutter.
	redraw(t, d, `[
		["grid_line", [1, 2, 0, [["  102 ", 5], ["l1", 1], ["01", 0]]]],
		["flush"]
	]`)

	spans := vp.DecorationsOn(101)
	if len(spans) != 1 {
		t.Fatalf("expected one span on line 101, got %v", spans)
	}
	s := spans[0]
	if s.Start != 0 || s.End != 2 || s.Style != "Comment" {
		t.Errorf("span = %+v", s)
	}
}

func TestDecoderHighlightClearedOnRedrawWithoutAttrs(t *testing.T) {
	d, _, vp, _ := newTestDecoder(t)
	setupGrid(t, d)

	redraw(t, d, `[
		["grid_line", [1, 2, 0, [["  102 ", 5], ["l1", 1], ["01", 0]]]],
		["flush"]
	]`)
	if len(vp.DecorationsOn(101)) != 1 {
		t.Fatal("expected an initial span")
	}

	// The row redraws with no highlighted cells: the line clears.
	redraw(t, d, `[
		["grid_line", [1, 2, 0, [["  102 ", 5], ["l101", 0], [" ", 0, 70]]]],
		["flush"]
	]`)
	if spans := vp.DecorationsOn(101); len(spans) != 0 {
		t.Errorf("expected cleared line, got %v", spans)
	}
}

func TestDecoderUnboundGridIgnored(t *testing.T) {
	d, _, vp, _ := newTestDecoder(t)
	setupGrid(t, d)

	// Grid 9 was never bound: events referencing it are dropped.
	redraw(t, d, `[
		["grid_line", [9, 0, 0, [["zz", 1]]]],
		["grid_cursor_goto", [9, 5, 0]],
		["grid_scroll", [9, 0, 10, 0, 80, 2, 0]],
		["flush"]
	]`)
	if vp.CursorMoves != 0 {
		t.Error("unbound grid produced a cursor move")
	}
}

func TestDecoderDuplicateWinPosIdempotent(t *testing.T) {
	d, ed, vp, _ := newTestDecoder(t)
	setupGrid(t, d)
	doc2 := ed.AddDocument("file:///b.txt", "x")
	ed.AddViewport(2, doc2)

	// A later duplicate bind for grid 1 is ignored.
	redraw(t, d, `[
		["win_pos", [1, 2, 80, 40]],
		["grid_cursor_goto", [1, 0, 0]],
		["flush"]
	]`)
	if vp.CursorMoves != 1 {
		t.Errorf("grid should stay bound to viewport 1, moves=%d", vp.CursorMoves)
	}
}

func TestDecoderModeChangePassthrough(t *testing.T) {
	d, ed, _, _ := newTestDecoder(t)
	setupGrid(t, d)

	redraw(t, d, `[["mode_change", ["insert"]], ["flush"]]`)
	if !ed.Passthrough {
		t.Error("insert mode should enable typing pass-through")
	}
	if !d.InsertMode() {
		t.Error("InsertMode should report true")
	}
	if ed.CursorStyle != "line" {
		t.Errorf("cursor style = %q", ed.CursorStyle)
	}

	redraw(t, d, `[["mode_change", ["normal"]], ["flush"]]`)
	if ed.Passthrough {
		t.Error("normal mode should disable pass-through")
	}
	if ed.CursorStyle != "block" {
		t.Errorf("cursor style = %q", ed.CursorStyle)
	}
}

func TestDecoderConfirmPromptAck(t *testing.T) {
	d, _, _, in := newTestDecoder(t)
	setupGrid(t, d)

	redraw(t, d, `[["msg_show", ["confirm", "Save changes?"]], ["flush"]]`)
	sent := in.sent()
	if len(sent) != 1 || sent[0] != promptAck {
		t.Errorf("expected one %q ack, got %v", promptAck, sent)
	}
}

func TestDecoderUnflushedTailCarriesOver(t *testing.T) {
	d, _, vp, _ := newTestDecoder(t)
	setupGrid(t, d)

	// No flush marker: nothing is applied yet.
	redraw(t, d, `[["grid_cursor_goto", [1, 4, 0]]]`)
	if vp.CursorMoves != 0 {
		t.Fatal("unflushed events were applied")
	}

	// The next notification's flush closes the carried batch.
	redraw(t, d, `[["flush"]]`)
	if vp.CursorMoves != 1 {
		t.Errorf("carried batch not applied, moves=%d", vp.CursorMoves)
	}
	line, _ := vp.Cursor()
	if line != 103 {
		t.Errorf("cursor line = %d, want 103", line)
	}
}

func TestDecoderCursorForTranslation(t *testing.T) {
	d, _, _, _ := newTestDecoder(t)
	setupGrid(t, d)
	redraw(t, d, `[["grid_cursor_goto", [1, 7, 2]], ["flush"]]`)

	line, col, ok := d.CursorFor(1)
	if !ok || line != 106 || col != 2 {
		t.Errorf("CursorFor(1) = %d, %d, %v, want 106, 2, true", line, col, ok)
	}
	if _, _, ok := d.CursorFor(42); ok {
		t.Error("CursorFor for an unbound viewport should fail")
	}
}
