package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/xonecas/tether/internal/linediff"
)

// Hooks receives host-originated events mirrored by the RPC adapter. The
// session implements it. Calls arrive serially from the connection's read
// loop.
type Hooks interface {
	DocumentOpened(ctx context.Context, uri string)
	DocumentChanged(ctx context.Context, uri string)
	DocumentClosed(ctx context.Context, uri string)
	ViewportActivated(ctx context.Context, id int)
	SelectionChanged(ctx context.Context, viewport, line, char int, multi bool)
}

// RemoteEditor implements Editor over a jsonrpc2 channel to the host
// process. Documents are mirrored locally from doc_open/doc_change
// notifications; outbound edits go through the host's transactional
// doc_edit request.
type RemoteEditor struct {
	conn  *jsonrpc2.Conn
	hooks Hooks

	mu        sync.Mutex
	docs      map[string]*remoteDocument
	viewports map[int]*remoteViewport
	active    int
}

// NewRemoteEditor starts the adapter over an established transport.
// hooks may be set later with SetHooks but must be set before the host
// sends its first event.
func NewRemoteEditor(ctx context.Context, rwc io.ReadWriteCloser) *RemoteEditor {
	e := &RemoteEditor{
		docs:      make(map[string]*remoteDocument),
		viewports: make(map[int]*remoteViewport),
		active:    -1,
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	e.conn = jsonrpc2.NewConn(ctx, stream, e)
	return e
}

// SetHooks wires the session callbacks.
func (e *RemoteEditor) SetHooks(h Hooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = h
}

// DisconnectNotify is closed when the host channel drops.
func (e *RemoteEditor) DisconnectNotify() <-chan struct{} {
	return e.conn.DisconnectNotify()
}

// Close tears down the host channel.
func (e *RemoteEditor) Close() error { return e.conn.Close() }

// Handle implements jsonrpc2.Handler for inbound host notifications.
func (e *RemoteEditor) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}
	if err := e.dispatch(ctx, req.Method, params); err != nil {
		log.Warn().Err(err).Str("method", req.Method).Msg("host: event dropped")
	}
	if !req.Notif {
		if err := conn.Reply(ctx, req.ID, nil); err != nil {
			log.Warn().Err(err).Str("method", req.Method).Msg("host: reply failed")
		}
	}
}

func (e *RemoteEditor) dispatch(ctx context.Context, method string, params json.RawMessage) error {
	e.mu.Lock()
	hooks := e.hooks
	e.mu.Unlock()

	switch method {
	case "doc_open":
		var p struct {
			URI     string   `json:"uri"`
			EOL     string   `json:"eol"`
			Version int      `json:"version"`
			Lines   []string `json:"lines"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("doc_open: %w", err)
		}
		if p.EOL == "" {
			p.EOL = "\n"
		}
		e.mu.Lock()
		e.docs[p.URI] = &remoteDocument{editor: e, uri: p.URI, eol: p.EOL, version: p.Version, lines: p.Lines}
		e.mu.Unlock()
		if hooks != nil {
			hooks.DocumentOpened(ctx, p.URI)
		}

	case "doc_change":
		var p struct {
			URI     string   `json:"uri"`
			Version int      `json:"version"`
			Lines   []string `json:"lines"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("doc_change: %w", err)
		}
		e.mu.Lock()
		d := e.docs[p.URI]
		e.mu.Unlock()
		if d == nil {
			return fmt.Errorf("doc_change: unknown document %s", p.URI)
		}
		d.update(p.Version, p.Lines)
		if hooks != nil {
			hooks.DocumentChanged(ctx, p.URI)
		}

	case "doc_close":
		var p struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("doc_close: %w", err)
		}
		e.mu.Lock()
		delete(e.docs, p.URI)
		e.mu.Unlock()
		if hooks != nil {
			hooks.DocumentClosed(ctx, p.URI)
		}

	case "view_open":
		var p struct {
			ID  int    `json:"id"`
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("view_open: %w", err)
		}
		e.mu.Lock()
		e.viewports[p.ID] = &remoteViewport{editor: e, id: p.ID, uri: p.URI}
		if e.active < 0 {
			e.active = p.ID
		}
		e.mu.Unlock()

	case "view_close":
		var p struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("view_close: %w", err)
		}
		e.mu.Lock()
		delete(e.viewports, p.ID)
		e.mu.Unlock()

	case "view_active":
		var p struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("view_active: %w", err)
		}
		e.mu.Lock()
		e.active = p.ID
		e.mu.Unlock()
		if hooks != nil {
			hooks.ViewportActivated(ctx, p.ID)
		}

	case "selection":
		var p struct {
			ID    int  `json:"id"`
			Line  int  `json:"line"`
			Char  int  `json:"char"`
			Multi bool `json:"multi"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("selection: %w", err)
		}
		e.mu.Lock()
		v := e.viewports[p.ID]
		e.mu.Unlock()
		if v != nil {
			v.setCursor(p.Line, p.Char)
		}
		if hooks != nil {
			hooks.SelectionChanged(ctx, p.ID, p.Line, p.Char, p.Multi)
		}

	default:
		// Unknown host events are a no-op.
		log.Debug().Str("method", method).Msg("host: unknown event")
	}
	return nil
}

func (e *RemoteEditor) Document(uri string) (Document, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[uri]
	return d, ok
}

func (e *RemoteEditor) Viewport(id int) (Viewport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.viewports[id]
	return v, ok
}

func (e *RemoteEditor) ActiveViewport() (Viewport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.viewports[e.active]
	return v, ok
}

func (e *RemoteEditor) ShowError(msg string) {
	if err := e.conn.Notify(context.Background(), "show_error", []any{msg}); err != nil {
		log.Warn().Err(err).Msg("host: show_error failed")
	}
}

func (e *RemoteEditor) SetPassthrough(enabled bool) {
	if err := e.conn.Notify(context.Background(), "passthrough", []any{enabled}); err != nil {
		log.Warn().Err(err).Msg("host: passthrough failed")
	}
}

func (e *RemoteEditor) SetCursorStyle(style string) {
	if err := e.conn.Notify(context.Background(), "cursor_style", []any{style}); err != nil {
		log.Warn().Err(err).Msg("host: cursor_style failed")
	}
}

// remoteDocument mirrors one host document.
type remoteDocument struct {
	editor *RemoteEditor

	mu      sync.Mutex
	uri     string
	eol     string
	version int
	lines   []string
}

func (d *remoteDocument) URI() string { return d.uri }

func (d *remoteDocument) EOL() string { return d.eol }

func (d *remoteDocument) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *remoteDocument) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

func (d *remoteDocument) update(version int, lines []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.lines = lines
}

type wireEdit struct {
	First int      `json:"first"`
	Last  int      `json:"last"`
	Lines []string `json:"lines"`
}

// ApplyEdits sends one doc_edit transaction and mirrors the result on
// success. The request is awaited so transactions never overlap.
func (d *remoteDocument) ApplyEdits(ctx context.Context, edits []linediff.Edit) error {
	wire := make([]wireEdit, len(edits))
	for i, e := range edits {
		wire[i] = wireEdit{First: e.First, Last: e.Last, Lines: e.Lines}
	}
	var newVersion int
	err := d.editor.conn.Call(ctx, "doc_edit", map[string]any{"uri": d.uri, "edits": wire}, &newVersion)
	if err != nil {
		return fmt.Errorf("host: doc_edit %s: %w", d.uri, err)
	}
	d.mu.Lock()
	d.lines = linediff.Apply(d.lines, edits)
	d.version = newVersion
	d.mu.Unlock()
	return nil
}

// remoteViewport mirrors one host viewport.
type remoteViewport struct {
	editor *RemoteEditor

	mu   sync.Mutex
	id   int
	uri  string
	line int
	char int
}

func (v *remoteViewport) ID() int { return v.id }

func (v *remoteViewport) Document() Document {
	d, _ := v.editor.Document(v.uri)
	return d
}

func (v *remoteViewport) Cursor() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.line, v.char
}

func (v *remoteViewport) setCursor(line, char int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.line, v.char = line, char
}

func (v *remoteViewport) SetCursor(ctx context.Context, line, char int) error {
	v.setCursor(line, char)
	if err := v.editor.conn.Notify(ctx, "set_cursor", []any{v.id, line, char}); err != nil {
		return fmt.Errorf("host: set_cursor: %w", err)
	}
	return nil
}

func (v *remoteViewport) CollapseSelection(ctx context.Context) error {
	if err := v.editor.conn.Notify(ctx, "collapse_selection", []any{v.id}); err != nil {
		return fmt.Errorf("host: collapse_selection: %w", err)
	}
	return nil
}

func (v *remoteViewport) SetDecorations(ctx context.Context, lines []int, spans []Span) error {
	err := v.editor.conn.Notify(ctx, "set_decorations", map[string]any{
		"view":  v.id,
		"lines": lines,
		"spans": spans,
	})
	if err != nil {
		return fmt.Errorf("host: set_decorations: %w", err)
	}
	return nil
}

// ensure surface compliance
var (
	_ Editor   = (*RemoteEditor)(nil)
	_ Editor   = (*MockEditor)(nil)
	_ Document = (*remoteDocument)(nil)
	_ Viewport = (*remoteViewport)(nil)
)

// Text joins a document's lines using its own EOL convention.
func Text(d Document) string {
	return strings.Join(d.Lines(), d.EOL())
}
