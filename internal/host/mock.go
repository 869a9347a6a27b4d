package host

import (
	"context"
	"strings"
	"sync"

	"github.com/xonecas/tether/internal/linediff"
)

// MockDocument is an in-memory Document for tests.
type MockDocument struct {
	mu      sync.Mutex
	uri     string
	eol     string
	lines   []string
	version int

	// FailNext makes the next ApplyEdits return this error once.
	FailNext error
	// EditCount counts ApplyEdits transactions, not individual edits.
	EditCount int
}

// NewMockDocument creates a "\n"-terminated mock document from text.
func NewMockDocument(uri, text string) *MockDocument {
	return &MockDocument{uri: uri, eol: "\n", lines: strings.Split(text, "\n")}
}

func (d *MockDocument) URI() string { return d.uri }

func (d *MockDocument) EOL() string { return d.eol }

func (d *MockDocument) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

func (d *MockDocument) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Text joins the document lines with its EOL.
func (d *MockDocument) Text() string {
	return strings.Join(d.Lines(), d.eol)
}

// SetText replaces content directly, simulating a host-originated edit.
func (d *MockDocument) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = strings.Split(text, "\n")
	d.version++
}

func (d *MockDocument) ApplyEdits(ctx context.Context, edits []linediff.Edit) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.FailNext; err != nil {
		d.FailNext = nil
		return err
	}
	d.lines = linediff.Apply(d.lines, edits)
	d.version++
	d.EditCount++
	return nil
}

// MockViewport is an in-memory Viewport for tests.
type MockViewport struct {
	mu   sync.Mutex
	id   int
	doc  Document
	line int
	char int

	Collapsed   int
	Decorations map[int][]Span
	CursorMoves int
}

// NewMockViewport binds a viewport id to a document.
func NewMockViewport(id int, doc Document) *MockViewport {
	return &MockViewport{id: id, doc: doc}
}

func (v *MockViewport) ID() int { return v.id }

func (v *MockViewport) Document() Document { return v.doc }

func (v *MockViewport) Cursor() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.line, v.char
}

func (v *MockViewport) SetCursor(ctx context.Context, line, char int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.line, v.char = line, char
	v.CursorMoves++
	return nil
}

func (v *MockViewport) CollapseSelection(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Collapsed++
	return nil
}

func (v *MockViewport) SetDecorations(ctx context.Context, lines []int, spans []Span) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Decorations == nil {
		v.Decorations = make(map[int][]Span)
	}
	for _, line := range lines {
		v.Decorations[line] = nil
	}
	for _, s := range spans {
		v.Decorations[s.Line] = append(v.Decorations[s.Line], s)
	}
	return nil
}

// DecorationsOn returns the spans currently recorded for a line.
func (v *MockViewport) DecorationsOn(line int) []Span {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Decorations[line]
}

// MockEditor is an in-memory Editor for tests.
type MockEditor struct {
	mu        sync.Mutex
	docs      map[string]*MockDocument
	viewports map[int]*MockViewport
	active    int

	Errors      []string
	Passthrough bool
	CursorStyle string
}

// NewMockEditor creates an empty mock editor.
func NewMockEditor() *MockEditor {
	return &MockEditor{
		docs:      make(map[string]*MockDocument),
		viewports: make(map[int]*MockViewport),
		active:    -1,
	}
}

// AddDocument registers a document and returns it.
func (e *MockEditor) AddDocument(uri, text string) *MockDocument {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := NewMockDocument(uri, text)
	e.docs[uri] = d
	return d
}

// AddViewport registers a viewport over a document; the first one added
// becomes active.
func (e *MockEditor) AddViewport(id int, doc Document) *MockViewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := NewMockViewport(id, doc)
	e.viewports[id] = v
	if e.active < 0 {
		e.active = id
	}
	return v
}

// SetActive marks the viewport receiving host input.
func (e *MockEditor) SetActive(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = id
}

func (e *MockEditor) Document(uri string) (Document, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[uri]
	return d, ok
}

func (e *MockEditor) Viewport(id int) (Viewport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.viewports[id]
	return v, ok
}

func (e *MockEditor) ActiveViewport() (Viewport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.viewports[e.active]
	return v, ok
}

func (e *MockEditor) ShowError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Errors = append(e.Errors, msg)
}

func (e *MockEditor) SetPassthrough(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Passthrough = enabled
}

func (e *MockEditor) SetCursorStyle(style string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CursorStyle = style
}
