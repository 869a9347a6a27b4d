package bufsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tether/internal/coord"
	"github.com/xonecas/tether/internal/engine"
	"github.com/xonecas/tether/internal/host"
	"github.com/xonecas/tether/internal/linediff"
)

// EngineRPC is the slice of the engine channel the sync engine uses.
type EngineRPC interface {
	BufCreate(ctx context.Context) (int, error)
	BufAttach(ctx context.Context, buf int) (int64, error)
	BufDetach(ctx context.Context, buf int) error
	Atomic(ctx context.Context, calls []engine.Call) error
}

// ScreenState is the slice of the redraw decoder the sync engine consults
// for mode and cursor tracking. Implemented by screen.Decoder.
type ScreenState interface {
	InsertMode() bool
	CursorFor(viewportID int) (line, byteCol int, ok bool)
	SuppressNextCursor()
}

// Engine is the bidirectional buffer synchronizer. One per session.
type Engine struct {
	editor host.Editor
	rpc    EngineRPC
	screen ScreenState

	mu        sync.Mutex
	byURI     map[string]*Buffer
	byID      map[int]*Buffer
	queue     []engine.BufLinesEvent
	recording bool

	wake chan struct{}
	idle time.Duration
}

// New creates a sync engine. idle bounds how long the drain loop sleeps
// when no edits arrive.
func New(editor host.Editor, rpc EngineRPC, screen ScreenState, idle time.Duration) *Engine {
	if idle <= 0 {
		idle = time.Second
	}
	return &Engine{
		editor: editor,
		rpc:    rpc,
		screen: screen,
		byURI:  make(map[string]*Buffer),
		byID:   make(map[int]*Buffer),
		wake:   make(chan struct{}, 1),
		idle:   idle,
	}
}

// Bind creates (or returns) the managed buffer for a document. Creation
// uploads the document text, names the buffer, and attaches to its edit
// feed as one atomic batch, so the engine never observes a half-managed
// buffer.
func (e *Engine) Bind(ctx context.Context, doc host.Document) (*Buffer, error) {
	e.mu.Lock()
	if b, ok := e.byURI[doc.URI()]; ok {
		e.mu.Unlock()
		return b, nil
	}
	e.mu.Unlock()

	id, err := e.rpc.BufCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("bufsync: create for %s: %w", doc.URI(), err)
	}

	lines := doc.Lines()
	calls := []engine.Call{
		engine.SetLinesCall(id, 0, -1, lines),
		{Method: "buf_set_name", Args: []any{id, doc.URI()}},
		{Method: "buf_set_managed", Args: []any{id, true}},
	}
	if err := e.rpc.Atomic(ctx, calls); err != nil {
		return nil, fmt.Errorf("bufsync: init %s: %w", doc.URI(), err)
	}

	tick, err := e.rpc.BufAttach(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("bufsync: attach %s: %w", doc.URI(), err)
	}

	b := &Buffer{
		ID:                 id,
		URI:                doc.URI(),
		snapshot:           lines,
		tick:               tick,
		suppressTick:       tick, // the attach-time refresh is not an edit
		lastAppliedVersion: doc.Version(),
	}

	e.mu.Lock()
	e.byURI[b.URI] = b
	e.byID[b.ID] = b
	e.mu.Unlock()

	log.Debug().Str("uri", b.URI).Int("buf", b.ID).Int64("tick", tick).Msg("bufsync: bound")
	return b, nil
}

// Unbind detaches and forgets the buffer for a URI. The placeholder
// buffer survives unbinding requests.
func (e *Engine) Unbind(ctx context.Context, uri string) {
	e.mu.Lock()
	b, ok := e.byURI[uri]
	if ok && b.Placeholder {
		e.mu.Unlock()
		return
	}
	if ok {
		delete(e.byURI, uri)
		delete(e.byID, b.ID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	if err := e.rpc.BufDetach(ctx, b.ID); err != nil {
		log.Warn().Err(err).Str("uri", uri).Msg("bufsync: detach failed")
	}
}

// UnbindAll detaches every managed buffer, placeholders included. Used
// on session shutdown.
func (e *Engine) UnbindAll(ctx context.Context) {
	e.mu.Lock()
	buffers := make([]*Buffer, 0, len(e.byURI))
	for _, b := range e.byURI {
		buffers = append(buffers, b)
	}
	e.byURI = make(map[string]*Buffer)
	e.byID = make(map[int]*Buffer)
	e.mu.Unlock()

	for _, b := range buffers {
		if err := e.rpc.BufDetach(ctx, b.ID); err != nil {
			log.Warn().Err(err).Str("uri", b.URI).Msg("bufsync: detach failed")
		}
	}
}

// Lookup returns the managed buffer for a URI.
func (e *Engine) Lookup(uri string) (*Buffer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.byURI[uri]
	return b, ok
}

// LookupID returns the managed buffer for an engine buffer id.
func (e *Engine) LookupID(id int) (*Buffer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.byID[id]
	return b, ok
}

// SetRecording marks a recording interaction (macro/dot-repeat capture)
// active. It changes how selections are treated after engine edits land
// during insertion.
func (e *Engine) SetRecording(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recording = on
}

// NoteHostEdit reacts to a host document-change event. Engine-originated
// changes (version at or below the last applied watermark) are ignored;
// host-originated ones upload immediately, or are deferred while an
// insertion interaction is active.
func (e *Engine) NoteHostEdit(ctx context.Context, doc host.Document) {
	e.mu.Lock()
	b, ok := e.byURI[doc.URI()]
	if !ok {
		e.mu.Unlock()
		return
	}
	if doc.Version() <= b.lastAppliedVersion {
		e.mu.Unlock()
		return
	}
	if e.screen != nil && e.screen.InsertMode() {
		b.state = stateUploadPending
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.upload(ctx, b, doc)
}

// FlushPending uploads every buffer whose host edits were deferred during
// insertion. Called on insertion exit; each buffer produces exactly one
// diff-derived batch regardless of how many keystrokes accumulated.
func (e *Engine) FlushPending(ctx context.Context) {
	e.mu.Lock()
	var pending []*Buffer
	for _, b := range e.byURI {
		if b.state == stateUploadPending {
			pending = append(pending, b)
		}
	}
	e.mu.Unlock()

	for _, b := range pending {
		doc, ok := e.editor.Document(b.URI)
		if !ok {
			continue
		}
		e.upload(ctx, b, doc)
	}
}

// upload diffs the document against the buffer snapshot and issues one
// atomic batch of replace-line-range calls. The expected post-edit ticks
// become the suppression watermark so the echo is dropped on return.
func (e *Engine) upload(ctx context.Context, b *Buffer, doc host.Document) {
	e.mu.Lock()
	before := strings.Join(b.snapshot, "\n")
	e.mu.Unlock()

	lines := doc.Lines()
	edits := linediff.Compute(before, strings.Join(lines, "\n"))
	if len(edits) == 0 {
		e.mu.Lock()
		b.state = stateClean
		b.lastAppliedVersion = doc.Version()
		e.mu.Unlock()
		return
	}

	calls := make([]engine.Call, len(edits))
	for i, ed := range edits {
		calls[i] = engine.SetLinesCall(b.ID, ed.First, ed.Last, ed.Lines)
	}
	if err := e.rpc.Atomic(ctx, calls); err != nil {
		// Fatal to this batch only: stay pending so a later edit or
		// flush retries from the unchanged snapshot.
		log.Error().Err(err).Str("uri", b.URI).Msg("bufsync: upload failed")
		e.editor.ShowError(fmt.Sprintf("engine sync failed for %s", b.URI))
		e.mu.Lock()
		b.state = stateUploadPending
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	// Each set-lines call bumps the engine tick once.
	b.suppressTick = b.tick + int64(len(calls))
	b.state = stateUploadInFlight
	b.snapshot = lines
	b.lastAppliedVersion = doc.Version()
	e.mu.Unlock()

	log.Debug().Str("uri", b.URI).Int("edits", len(edits)).Int64("suppress", b.suppressTick).Msg("bufsync: uploaded")
}

// Enqueue queues a raw engine edit notification and wakes the drain loop.
func (e *Engine) Enqueue(ev engine.BufLinesEvent) {
	e.mu.Lock()
	e.queue = append(e.queue, ev)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run drains the engine→host queue until ctx is done. The loop sleeps on
// an empty queue, waking immediately on a new edit or after the bounded
// idle interval.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(e.idle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-timer.C:
		}
		e.Drain(ctx)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.idle)
	}
}

// Drain processes every queued edit once. Exposed for tests and for
// session shutdown.
func (e *Engine) Drain(ctx context.Context) {
	e.mu.Lock()
	queued := e.queue
	e.queue = nil
	e.mu.Unlock()
	if len(queued) == 0 {
		return
	}

	// Group per buffer, preserving receipt order within each.
	order := make([]int, 0, len(queued))
	grouped := make(map[int][]engine.BufLinesEvent)
	for _, ev := range queued {
		if _, seen := grouped[ev.Buf]; !seen {
			order = append(order, ev.Buf)
		}
		grouped[ev.Buf] = append(grouped[ev.Buf], ev)
	}

	affected := make(map[string]bool)
	for _, bufID := range order {
		e.mu.Lock()
		b, ok := e.byID[bufID]
		e.mu.Unlock()
		if !ok {
			log.Debug().Int("buf", bufID).Msg("bufsync: edits for unmanaged buffer")
			continue
		}
		if e.applyEngineEdits(ctx, b, grouped[bufID]) {
			affected[b.URI] = true
		}
	}

	if len(affected) > 0 {
		e.adjustCursor(ctx, affected)
	}
}

// applyEngineEdits replays one buffer's queued edits and applies the net
// difference to the host document as a single transaction. Reports
// whether the document changed.
func (e *Engine) applyEngineEdits(ctx context.Context, b *Buffer, events []engine.BufLinesEvent) bool {
	doc, ok := e.editor.Document(b.URI)
	if !ok {
		return false
	}

	working := doc.Lines()
	docText := strings.Join(working, "\n")
	changed := false

	for _, ev := range events {
		e.mu.Lock()
		if ev.Tick <= b.suppressTick {
			// echo of a host-originated change already applied
			if ev.Tick >= b.suppressTick && b.state == stateUploadInFlight {
				b.state = stateClean
			}
			if ev.Tick > b.tick {
				b.tick = ev.Tick
			}
			e.mu.Unlock()
			continue
		}
		if ev.Tick > b.tick {
			b.tick = ev.Tick
		}
		e.mu.Unlock()

		if ev.FirstLine == ev.LastLine && len(ev.Lines) == 0 {
			// zero-width empty edit: no-op
			continue
		}
		working = spliceEvent(working, ev)
		changed = true
	}
	if !changed {
		return false
	}

	newText := strings.Join(working, "\n")
	edits := linediff.Compute(docText, newText)
	if len(edits) == 0 {
		e.mu.Lock()
		b.snapshot = working
		e.mu.Unlock()
		return false
	}

	if err := doc.ApplyEdits(ctx, edits); err != nil {
		// Reported once; other documents in this drain still proceed.
		log.Error().Err(err).Str("uri", b.URI).Msg("bufsync: host edit failed")
		e.editor.ShowError(fmt.Sprintf("could not apply engine edit to %s", b.URI))
		return false
	}

	e.mu.Lock()
	b.snapshot = working
	b.lastAppliedVersion = doc.Version()
	e.mu.Unlock()
	return true
}

// spliceEvent applies one raw line-replacement to the working list. The
// edit class decides the splice: deletions splice out, insertions splice
// in without touching surrounding lines, replacements substitute the
// range.
func spliceEvent(working []string, ev engine.BufLinesEvent) []string {
	first, last := ev.FirstLine, ev.LastLine
	if last < 0 {
		last = len(working)
	}
	if first < 0 {
		first = 0
	}
	if first > len(working) {
		first = len(working)
	}
	if last > len(working) {
		last = len(working)
	}
	if last < first {
		last = first
	}

	switch {
	case len(ev.Lines) == 0:
		// pure deletion
		out := make([]string, 0, len(working)-(last-first))
		out = append(out, working[:first]...)
		out = append(out, working[last:]...)
		return out
	case first == last:
		// pure insertion
		out := make([]string, 0, len(working)+len(ev.Lines))
		out = append(out, working[:first]...)
		out = append(out, ev.Lines...)
		out = append(out, working[first:]...)
		return out
	case last-first == len(ev.Lines):
		// whole-line replace
		out := make([]string, len(working))
		copy(out, working)
		copy(out[first:last], ev.Lines)
		return out
	default:
		// mixed range replace
		out := make([]string, 0, len(working)-(last-first)+len(ev.Lines))
		out = append(out, working[:first]...)
		out = append(out, ev.Lines...)
		out = append(out, working[last:]...)
		return out
	}
}

// adjustCursor repositions the host cursor after engine edits land. Out
// of insertion, the cursor follows the tracked engine grid cursor; during
// insertion with a recording interaction, multi-character selections
// collapse to a single cursor instead.
func (e *Engine) adjustCursor(ctx context.Context, affected map[string]bool) {
	if e.screen == nil {
		return
	}
	active, ok := e.editor.ActiveViewport()
	if !ok {
		return
	}
	doc := active.Document()
	if doc == nil || !affected[doc.URI()] {
		return
	}

	if e.screen.InsertMode() {
		e.mu.Lock()
		recording := e.recording
		e.mu.Unlock()
		if recording {
			if err := active.CollapseSelection(ctx); err != nil {
				log.Warn().Err(err).Msg("bufsync: collapse selection failed")
			}
		}
		return
	}

	line, byteCol, ok := e.screen.CursorFor(active.ID())
	if !ok {
		return
	}
	lines := doc.Lines()
	if line < 0 || line >= len(lines) {
		return
	}
	char := coord.ByteToCharCol(lines[line], byteCol)
	curLine, curChar := active.Cursor()
	if curLine == line && curChar == char {
		return
	}
	if err := active.SetCursor(ctx, line, char); err != nil {
		log.Warn().Err(err).Msg("bufsync: cursor reposition failed")
	}
}
