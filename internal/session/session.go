// Package session ties one host editor to one text engine: it owns the
// engine channel, the buffer synchronizer, the redraw decoder, and the
// activity journal, and routes events between them.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tether/internal/bufsync"
	"github.com/xonecas/tether/internal/coord"
	"github.com/xonecas/tether/internal/engine"
	"github.com/xonecas/tether/internal/host"
	"github.com/xonecas/tether/internal/screen"
	"github.com/xonecas/tether/internal/trace"
)

// Channel is the engine connection surface the session needs. Implemented
// by engine.Client; faked in tests.
type Channel interface {
	bufsync.EngineRPC

	OnNotify(method string, h engine.NotifyHandler)
	OnRequest(method string, h engine.RequestHandler)
	WinSetCursor(ctx context.Context, win, line, col int) error
	Input(ctx context.Context, keys string) error
	Command(ctx context.Context, cmd string) error
	Close() error
}

// Options configures a session.
type Options struct {
	// IdleDrain bounds the edit drain loop's sleep.
	IdleDrain time.Duration
	// Screen configures the redraw decoder.
	Screen screen.Config
	// Journal records activity when non-nil.
	Journal *trace.Journal
	// Dispatch handles out-of-band host commands; nil rejects them all.
	Dispatch Dispatcher
}

// Session is the per-connection aggregate. One per engine.
type Session struct {
	ch      Channel
	editor  host.Editor
	sync    *bufsync.Engine
	screen  *screen.Decoder
	journal *trace.Journal
	disp    Dispatcher

	insertWas bool
}

// New wires a session over an engine channel and a host editor, and
// registers all engine-side handlers. Register-before-first-call: nothing
// may be requested from the engine until New returns.
func New(ch Channel, editor host.Editor, opts Options) *Session {
	s := &Session{
		ch:      ch,
		editor:  editor,
		journal: opts.Journal,
		disp:    opts.Dispatch,
	}
	s.screen = screen.NewDecoder(opts.Screen, editor, inputterFunc(ch.Input))
	s.sync = bufsync.New(editor, ch, s.screen, opts.IdleDrain)

	ch.OnNotify("redraw", s.onRedraw)
	ch.OnNotify("buf_lines", s.onBufLines)
	ch.OnNotify("recording", s.onRecording)
	ch.OnRequest("host_command", s.onHostCommand)
	ch.OnRequest("host_range_command", s.onHostRangeCommand)
	return s
}

// Screen exposes the redraw decoder, for command handlers that inspect
// mode or cursor state.
func (s *Session) Screen() *screen.Decoder { return s.screen }

// Sync exposes the buffer synchronizer.
func (s *Session) Sync() *bufsync.Engine { return s.sync }

// Run drains engine edits until ctx is done.
func (s *Session) Run(ctx context.Context) {
	s.sync.Run(ctx)
}

// Close drains outstanding edits, detaches every buffer, and tears down
// the engine channel and journal.
func (s *Session) Close(ctx context.Context) {
	s.sync.Drain(ctx)
	s.sync.UnbindAll(ctx)
	if err := s.ch.Close(); err != nil {
		log.Warn().Err(err).Msg("session: engine close failed")
	}
	if err := s.journal.Close(); err != nil {
		log.Warn().Err(err).Msg("session: journal close failed")
	}
}

// --- engine notifications ---

func (s *Session) onRedraw(ctx context.Context, params json.RawMessage) {
	events, flushed := s.screen.HandleRedraw(ctx, params)
	s.journal.RecordBatch(events, flushed)

	// Leaving an insertion interaction commits the deferred host edits.
	insert := s.screen.InsertMode()
	if s.insertWas && !insert {
		s.sync.FlushPending(ctx)
	}
	s.insertWas = insert
}

func (s *Session) onBufLines(ctx context.Context, params json.RawMessage) {
	ev, err := engine.DecodeBufLines(params)
	if err != nil {
		log.Debug().Err(err).Msg("session: malformed buf_lines")
		s.journal.RecordFault("engine", err.Error())
		return
	}
	if b, ok := s.sync.LookupID(ev.Buf); ok {
		s.journal.RecordSync(b.URI, trace.DirDownload, len(ev.Lines), ev.Tick)
	}
	s.sync.Enqueue(ev)
}

func (s *Session) onRecording(ctx context.Context, params json.RawMessage) {
	var tuple []bool
	if err := json.Unmarshal(params, &tuple); err != nil || len(tuple) == 0 {
		log.Debug().Msg("session: malformed recording notification")
		return
	}
	s.sync.SetRecording(tuple[0])
}

// --- engine requests ---

func (s *Session) onHostCommand(ctx context.Context, params json.RawMessage) (any, error) {
	cmd, err := engine.DecodeHostCommand(params)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, cmd)
}

func (s *Session) onHostRangeCommand(ctx context.Context, params json.RawMessage) (any, error) {
	cmd, err := engine.DecodeHostRangeCommand(params)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, cmd)
}

func (s *Session) dispatch(ctx context.Context, cmd engine.HostCommand) (any, error) {
	if s.disp == nil {
		return nil, &UnknownCommandError{Name: cmd.Name}
	}
	result, err := s.disp.Dispatch(ctx, cmd)
	if err != nil {
		s.journal.RecordFault("dispatch", cmd.Name+": "+err.Error())
		return nil, err
	}
	return result, nil
}

// --- host hooks ---

// DocumentOpened binds a managed buffer for the document.
func (s *Session) DocumentOpened(ctx context.Context, uri string) {
	doc, ok := s.editor.Document(uri)
	if !ok {
		return
	}
	if _, err := s.sync.Bind(ctx, doc); err != nil {
		log.Error().Err(err).Str("uri", uri).Msg("session: bind failed")
		s.editor.ShowError("engine buffer setup failed for " + uri)
		s.journal.RecordFault("bufsync", err.Error())
	}
}

// DocumentChanged uploads (or defers) the host's change.
func (s *Session) DocumentChanged(ctx context.Context, uri string) {
	doc, ok := s.editor.Document(uri)
	if !ok {
		return
	}
	s.journal.RecordSync(uri, trace.DirUpload, 1, int64(doc.Version()))
	s.sync.NoteHostEdit(ctx, doc)
}

// DocumentClosed unbinds the document's buffer.
func (s *Session) DocumentClosed(ctx context.Context, uri string) {
	s.sync.Unbind(ctx, uri)
}

// ViewportActivated notes the host focus change.
func (s *Session) ViewportActivated(ctx context.Context, id int) {
	log.Debug().Int("viewport", id).Msg("session: viewport activated")
}

// SelectionChanged forwards a host cursor move to the engine. During
// insertion the host owns the cursor, so nothing is forwarded; otherwise
// the engine window tracks the host, and the echoed engine-side move is
// suppressed so it does not bounce back.
func (s *Session) SelectionChanged(ctx context.Context, viewport, line, char int, multi bool) {
	if s.screen.InsertMode() {
		return
	}
	vp, ok := s.editor.Viewport(viewport)
	if !ok {
		return
	}
	doc := vp.Document()
	if doc == nil {
		return
	}
	lines := doc.Lines()
	if line < 0 || line >= len(lines) {
		return
	}
	byteCol := coord.CharToByteCol(lines[line], char)

	s.screen.SuppressNextCursor()
	if err := s.ch.WinSetCursor(ctx, viewport, line+1, byteCol); err != nil {
		log.Warn().Err(err).Int("viewport", viewport).Msg("session: cursor forward failed")
	}
}

// Command passes an ex-style command through to the engine.
func (s *Session) Command(ctx context.Context, cmd string) error {
	return s.ch.Command(ctx, cmd)
}

// Input feeds raw keys through to the engine.
func (s *Session) Input(ctx context.Context, keys string) error {
	return s.ch.Input(ctx, keys)
}

type inputterFunc func(ctx context.Context, keys string) error

func (f inputterFunc) Input(ctx context.Context, keys string) error { return f(ctx, keys) }

// ensure the session satisfies the host event surface
var _ host.Hooks = (*Session)(nil)
