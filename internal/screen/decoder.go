package screen

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tether/internal/coord"
	"github.com/xonecas/tether/internal/host"
)

// batchState is the session-level decode state. One decoder per session,
// not per grid.
type batchState int

const (
	stateIdle batchState = iota
	stateAccumulating
	stateFlushing
)

// promptAck is synthesized back to the engine when a batch signals a
// blocking confirmation prompt, so polling plugins that await a manual
// dismissal are not stalled.
const promptAck = "<CR>"

// Inputter feeds keys back to the engine.
type Inputter interface {
	Input(ctx context.Context, keys string) error
}

// Config holds decoder tunables.
type Config struct {
	// GutterWidth is the byte width of the rendered line-number gutter.
	GutterWidth int
	// OOBRowLimit drops cell updates at or past this screen row; the
	// virtual screen is taller than any real viewport and rows past the
	// limit never correspond to visible text.
	OOBRowLimit int
	// CmdlineDelay is the debounce interval for initial cmdline shows.
	CmdlineDelay time.Duration
	// GutterStyle is the engine's line-number highlight group name.
	GutterStyle string
	// Theme is the chroma theme consulted for name-only attributes.
	Theme string

	// OnCmdlineShow/OnCmdlineHide receive debounced command-line state.
	// Either may be nil.
	OnCmdlineShow func(content, prefix string, pos int)
	OnCmdlineHide func()
}

// Decoder consumes the engine's redraw stream and maintains per-grid
// screen state. Events accumulate until the flush marker closes a batch;
// the batch is then processed as a unit and reduced to the minimal set of
// cursor and decoration changes on the host.
type Decoder struct {
	cfg    Config
	editor host.Editor
	input  Inputter
	attrs  *AttrTable

	cmdline *Cmdline

	mu             sync.Mutex
	state          batchState
	pending        []Event
	grids          map[int]*Grid
	mode           string
	suppressCursor bool
	promptPending  bool

	queuedCursor map[int]GridCursorGoto
	touchedRows  map[int]map[int]bool
}

// NewDecoder creates a decoder for one session.
func NewDecoder(cfg Config, editor host.Editor, input Inputter) *Decoder {
	if cfg.GutterStyle == "" {
		cfg.GutterStyle = "LineNr"
	}
	if cfg.GutterWidth <= 0 {
		cfg.GutterWidth = 8
	}
	if cfg.OOBRowLimit <= 0 {
		cfg.OOBRowLimit = 200
	}
	if cfg.CmdlineDelay <= 0 {
		cfg.CmdlineDelay = 50 * time.Millisecond
	}
	onShow := cfg.OnCmdlineShow
	if onShow == nil {
		onShow = func(string, string, int) {}
	}
	onHide := cfg.OnCmdlineHide
	if onHide == nil {
		onHide = func() {}
	}
	return &Decoder{
		cfg:          cfg,
		editor:       editor,
		input:        input,
		attrs:        NewAttrTable(cfg.GutterStyle, cfg.Theme),
		cmdline:      NewCmdline(cfg.CmdlineDelay, onShow, onHide),
		grids:        make(map[int]*Grid),
		queuedCursor: make(map[int]GridCursorGoto),
		touchedRows:  make(map[int]map[int]bool),
	}
}

// Attrs exposes the session's highlight attribute table.
func (d *Decoder) Attrs() *AttrTable { return d.attrs }

// Mode returns the engine's current interaction mode name.
func (d *Decoder) Mode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// InsertMode reports whether an exclusive text-insertion interaction is
// active.
func (d *Decoder) InsertMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return insertLike(d.mode)
}

// SuppressNextCursor makes the next queued cursor update a no-op. Set when
// a host-originated move is about to echo back from the engine.
func (d *Decoder) SuppressNextCursor() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suppressCursor = true
}

// CursorFor returns the engine cursor for the grid bound to a viewport as
// a 0-based document line and byte column.
func (d *Decoder) CursorFor(viewportID int) (line, byteCol int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, g := range d.grids {
		if g.Viewport != viewportID {
			continue
		}
		top, tracked := g.TopLine()
		if !tracked {
			return 0, 0, false
		}
		return top - 1 + g.CursorRow, g.CursorCol, true
	}
	return 0, 0, false
}

// HandleRedraw consumes one redraw notification. Complete batches (closed
// by a flush marker) are processed; a trailing unflushed tail carries over
// to the next notification. Returns the number of decoded events and
// whether any batch was flushed.
func (d *Decoder) HandleRedraw(ctx context.Context, params json.RawMessage) (events int, flushed bool) {
	decoded := DecodeBatch(params)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ev := range decoded {
		if _, isFlush := ev.(Flush); !isFlush {
			d.state = stateAccumulating
			d.pending = append(d.pending, ev)
			continue
		}
		d.state = stateFlushing
		batch := d.pending
		d.pending = nil
		d.processBatch(ctx, batch)
		d.state = stateIdle
		flushed = true
	}
	return len(decoded), flushed
}

// processBatch interprets one closed batch. Window-position events are
// hoisted to the front — grid→viewport bindings must exist before any
// cell or cursor event referencing that grid is interpreted; everything
// else keeps arrival order.
func (d *Decoder) processBatch(ctx context.Context, batch []Event) {
	sort.SliceStable(batch, func(i, j int) bool {
		_, iPos := batch[i].(WinPos)
		_, jPos := batch[j].(WinPos)
		return iPos && !jPos
	})

	for _, ev := range batch {
		switch ev := ev.(type) {
		case ModeChange:
			d.applyModeChange(ev)
		case AttrDefine:
			d.attrs.Define(ev.ID, ev.Def)
		case CmdlineShow:
			d.cmdline.Show(ev)
		case CmdlineHide:
			d.cmdline.Hide()
		case WinPos:
			d.applyWinPos(ev)
		case GridResize:
			g := d.ensureGrid(ev.Grid)
			g.Width, g.Height = ev.Width, ev.Height
		case GridScroll:
			g, ok := d.grids[ev.Grid]
			if !ok {
				log.Debug().Int("grid", ev.Grid).Msg("screen: scroll for unknown grid")
				continue
			}
			g.Scroll(ev.Top, ev.Bot, ev.Left, ev.Right, ev.Rows, ev.Cols)
		case GridCursorGoto:
			g, ok := d.grids[ev.Grid]
			if !ok {
				continue
			}
			g.CursorRow, g.CursorCol = ev.Row, ev.Col
			// queued so multiple moves in one batch collapse to one
			d.queuedCursor[ev.Grid] = ev
		case GridLine:
			d.applyGridLine(ev)
		case WinClose:
			delete(d.grids, ev.Grid)
			delete(d.queuedCursor, ev.Grid)
			delete(d.touchedRows, ev.Grid)
		case MsgShow:
			if strings.HasPrefix(ev.Kind, "confirm") || ev.Kind == "return_prompt" {
				d.promptPending = true
			}
		case Flush, Unknown:
			// flush never reaches here; unknown tags are a no-op
		}
	}

	d.reconcile(ctx)
}

func (d *Decoder) applyModeChange(ev ModeChange) {
	d.mode = ev.Mode
	// Insert-like modes type into the host directly; anything else
	// forwards keys to the engine.
	d.editor.SetPassthrough(insertLike(ev.Mode))
	switch {
	case insertLike(ev.Mode):
		d.editor.SetCursorStyle("line")
	case strings.HasPrefix(ev.Mode, "visual"):
		d.editor.SetCursorStyle("underline")
	default:
		d.editor.SetCursorStyle("block")
	}
}

func (d *Decoder) applyWinPos(ev WinPos) {
	g := d.ensureGrid(ev.Grid)
	if g.Viewport >= 0 {
		// duplicate binds are idempotent
		return
	}
	g.Viewport = ev.Viewport
	if ev.Width > 0 {
		g.Width = ev.Width
	}
	if ev.Height > 0 {
		g.Height = ev.Height
	}
}

// applyGridLine records highlight runs for one row and feeds gutter cells
// to line-number tracking. Cell columns are engine-native byte offsets
// into the rendered row.
func (d *Decoder) applyGridLine(ev GridLine) {
	g, ok := d.grids[ev.Grid]
	if !ok {
		log.Debug().Int("grid", ev.Grid).Msg("screen: line update for unknown grid")
		return
	}
	if ev.Row < 0 || ev.Row >= d.cfg.OOBRowLimit {
		return
	}

	col := ev.ColStart
	var runs []attrRun
	for _, cell := range ev.Cells {
		repeat := cell.Repeat
		if repeat < 1 {
			repeat = 1
		}
		text := strings.Repeat(cell.Text, repeat)
		width := len(text)
		switch {
		case d.attrs.IsGutter(cell.Attr) && col < d.cfg.GutterWidth:
			g.TrackGutter(ev.Row, col, text)
		case cell.Attr != 0:
			runs = append(runs, attrRun{Start: col, End: col + width, Attr: cell.Attr})
		}
		col += width
	}
	g.SetRuns(ev.Row, ev.ColStart, col, runs)

	rows := d.touchedRows[ev.Grid]
	if rows == nil {
		rows = make(map[int]bool)
		d.touchedRows[ev.Grid] = rows
	}
	rows[ev.Row] = true
}

// reconcile applies the batch's net effect to the host: at most one
// cursor move per grid and one decoration transaction per viewport, plus
// the prompt acknowledgement if a blocking confirmation is pending.
func (d *Decoder) reconcile(ctx context.Context) {
	for gridID, ev := range d.queuedCursor {
		delete(d.queuedCursor, gridID)
		d.applyCursor(ctx, gridID, ev)
	}

	for gridID, rows := range d.touchedRows {
		delete(d.touchedRows, gridID)
		d.applyHighlights(ctx, gridID, rows)
	}

	if d.promptPending {
		d.promptPending = false
		if err := d.input.Input(ctx, promptAck); err != nil {
			log.Warn().Err(err).Msg("screen: prompt ack failed")
		}
	}
}

func (d *Decoder) applyCursor(ctx context.Context, gridID int, ev GridCursorGoto) {
	g, ok := d.grids[gridID]
	if !ok || g.Viewport < 0 {
		return
	}
	active, ok := d.editor.ActiveViewport()
	if !ok || active.ID() != g.Viewport {
		return
	}
	if d.suppressCursor {
		d.suppressCursor = false
		return
	}

	top, tracked := g.TopLine()
	if !tracked {
		return
	}
	docLine := top - 1 + ev.Row
	doc := active.Document()
	if doc == nil {
		return
	}
	lines := doc.Lines()
	if docLine < 0 || docLine >= len(lines) {
		return
	}
	char := coord.ByteToCharCol(lines[docLine], ev.Col)

	curLine, curChar := active.Cursor()
	if curLine == docLine && curChar == char {
		return
	}
	if err := active.SetCursor(ctx, docLine, char); err != nil {
		log.Warn().Err(err).Int("viewport", g.Viewport).Msg("screen: cursor move failed")
	}
}

func (d *Decoder) applyHighlights(ctx context.Context, gridID int, rows map[int]bool) {
	g, ok := d.grids[gridID]
	if !ok || g.Viewport < 0 {
		return
	}
	vp, ok := d.editor.Viewport(g.Viewport)
	if !ok {
		return
	}
	doc := vp.Document()
	if doc == nil {
		return
	}
	top, tracked := g.TopLine()
	if !tracked {
		return
	}
	docLines := doc.Lines()

	var lines []int
	var spans []host.Span
	for row := range rows {
		docLine := top - 1 + row
		if docLine < 0 || docLine >= len(docLines) {
			continue
		}
		lines = append(lines, docLine)
		text := docLines[docLine]
		for _, run := range g.Runs(row) {
			if run.End <= d.cfg.GutterWidth {
				continue
			}
			start := run.Start - d.cfg.GutterWidth
			if start < 0 {
				start = 0
			}
			spans = append(spans, host.Span{
				Line:  docLine,
				Start: coord.ByteToCharCol(text, start),
				End:   coord.ByteToCharCol(text, run.End-d.cfg.GutterWidth),
				Style: d.attrs.StyleKey(run.Attr),
			})
		}
	}
	if len(lines) == 0 {
		return
	}
	sort.Ints(lines)
	if err := vp.SetDecorations(ctx, lines, spans); err != nil {
		log.Warn().Err(err).Int("viewport", g.Viewport).Msg("screen: decorations failed")
	}
}

func (d *Decoder) ensureGrid(id int) *Grid {
	g, ok := d.grids[id]
	if !ok {
		g = NewGrid(id)
		d.grids[id] = g
	}
	return g
}

func insertLike(mode string) bool {
	return strings.HasPrefix(mode, "insert") || strings.HasPrefix(mode, "replace")
}
