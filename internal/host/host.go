// Package host defines the surface consumed from the host editor: document
// text and versions, viewports with cursors, a transactional line-edit
// primitive, and a decoration primitive. The host itself is an external
// collaborator; this package holds the interfaces, an RPC-backed adapter,
// and an in-memory mock used by tests.
package host

import (
	"context"

	"github.com/xonecas/tether/internal/linediff"
)

// Document is one host text document.
type Document interface {
	// URI identifies the document for the life of the session.
	URI() string
	// Version increases with every change, from either surface.
	Version() int
	// Lines returns the current text split on the document's EOL.
	Lines() []string
	// EOL is the document's end-of-line convention ("\n" or "\r\n").
	EOL() string
	// ApplyEdits applies the ordered edit list as one transaction. The
	// host forbids concurrent overlapping transactions on one document,
	// so callers await completion before issuing the next.
	ApplyEdits(ctx context.Context, edits []linediff.Edit) error
}

// Span is one decoration range on a line. Columns are character offsets.
type Span struct {
	Line  int    `json:"line"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Style string `json:"style"`
}

// Viewport is one host editor column/window showing a document.
type Viewport interface {
	ID() int
	Document() Document
	// Cursor returns the 0-based line and character column.
	Cursor() (line, char int)
	SetCursor(ctx context.Context, line, char int) error
	// CollapseSelection reduces a multi-character selection to a cursor.
	CollapseSelection(ctx context.Context) error
	// SetDecorations replaces all decorations on the listed lines with
	// spans. A line listed with no spans is cleared.
	SetDecorations(ctx context.Context, lines []int, spans []Span) error
}

// Editor is the host editor as seen from the session.
type Editor interface {
	Document(uri string) (Document, bool)
	Viewport(id int) (Viewport, bool)
	// ActiveViewport is the viewport currently receiving host input.
	ActiveViewport() (Viewport, bool)
	// ShowError surfaces a one-shot visible error message.
	ShowError(msg string)
	// SetPassthrough routes keystrokes to the host's native typing path
	// when enabled, or to the engine when disabled.
	SetPassthrough(enabled bool)
	// SetCursorStyle updates the cursor shape on the active viewport.
	SetCursorStyle(style string)
}
