// Package screen decodes the engine's redraw protocol into per-grid screen
// state and the minimal cursor/decoration notifications the host consumes.
package screen

import (
	"fmt"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// AttrDef is one engine-defined highlight attribute. Colors are "#rrggbb"
// or empty.
type AttrDef struct {
	Name          string
	Foreground    string
	Background    string
	Special       string
	Bold          bool
	Italic        bool
	Underline     bool
	Undercurl     bool
	Reverse       bool
	Strikethrough bool
}

// nameToToken maps common engine highlight-group names to chroma token
// types, used to resolve colors for attributes defined by name only.
var nameToToken = map[string]chroma.TokenType{
	"Comment":    chroma.Comment,
	"Constant":   chroma.LiteralNumber,
	"String":     chroma.LiteralString,
	"Identifier": chroma.Name,
	"Function":   chroma.NameFunction,
	"Statement":  chroma.Keyword,
	"Keyword":    chroma.Keyword,
	"Operator":   chroma.Operator,
	"Type":       chroma.KeywordType,
	"Error":      chroma.Error,
	"Search":     chroma.GenericEmph,
	"Visual":     chroma.GenericEmph,
}

// AttrTable is the session-global, append-only highlight attribute table.
// Ids are engine-assigned, stable for the session, and only ever extended
// or redefined in place.
type AttrTable struct {
	mu     sync.Mutex
	defs   map[int]AttrDef
	gutter map[int]bool

	gutterName string
	theme      string
}

// NewAttrTable creates a table. gutterName is the style name the engine
// uses for the line-number gutter; theme is the chroma theme consulted for
// name-only definitions.
func NewAttrTable(gutterName, theme string) *AttrTable {
	return &AttrTable{
		defs:       make(map[int]AttrDef),
		gutter:     make(map[int]bool),
		gutterName: gutterName,
		theme:      theme,
	}
}

// Define registers or redefines id. Attributes that carry a known group
// name but no explicit colors get colors from the chroma theme.
func (t *AttrTable) Define(id int, def AttrDef) {
	if def.Foreground == "" && def.Background == "" {
		if tok, ok := nameToToken[def.Name]; ok {
			def.Foreground, def.Background = t.themeColors(tok)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defs[id] = def
	if def.Name == t.gutterName {
		t.gutter[id] = true
	} else {
		delete(t.gutter, id)
	}
}

// Get returns the definition for id.
func (t *AttrTable) Get(id int) (AttrDef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.defs[id]
	return d, ok
}

// IsGutter reports whether id is the line-number gutter style. Gutter
// cells are stripped from highlight output and feed line-number tracking
// instead.
func (t *AttrTable) IsGutter(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gutter[id]
}

// StyleKey returns the stable host-facing style bucket for id: the group
// name when the engine provided one, otherwise a synthetic key.
func (t *AttrTable) StyleKey(id int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.defs[id]; ok && d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("attr_%d", id)
}

func (t *AttrTable) themeColors(tok chroma.TokenType) (fg, bg string) {
	sty := styles.Get(t.theme)
	if sty == nil {
		sty = styles.Fallback
	}
	entry := sty.Get(tok)
	if entry.Colour.IsSet() {
		fg = entry.Colour.String()
	}
	if entry.Background.IsSet() {
		bg = entry.Background.String()
	}
	return fg, bg
}
