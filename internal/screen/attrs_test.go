package screen

import "testing"

func TestAttrTableDefineAndGet(t *testing.T) {
	tab := NewAttrTable("LineNr", "vulcan")

	tab.Define(1, AttrDef{Name: "Search", Foreground: "#ffff00", Background: "#303030"})
	d, ok := tab.Get(1)
	if !ok || d.Foreground != "#ffff00" || d.Background != "#303030" {
		t.Errorf("Get(1) = %+v, %v", d, ok)
	}

	// Redefinition in place; ids are never removed.
	tab.Define(1, AttrDef{Name: "Search", Foreground: "#ff0000"})
	d, _ = tab.Get(1)
	if d.Foreground != "#ff0000" {
		t.Errorf("redefined foreground = %q", d.Foreground)
	}
}

func TestAttrTableGutter(t *testing.T) {
	tab := NewAttrTable("LineNr", "")
	tab.Define(5, AttrDef{Name: "LineNr"})
	tab.Define(6, AttrDef{Name: "Comment"})

	if !tab.IsGutter(5) {
		t.Error("id 5 should be the gutter style")
	}
	if tab.IsGutter(6) {
		t.Error("id 6 is not the gutter style")
	}

	// Redefining the id to another group clears the gutter mark.
	tab.Define(5, AttrDef{Name: "Visual"})
	if tab.IsGutter(5) {
		t.Error("redefined id 5 should no longer be gutter")
	}
}

func TestAttrTableStyleKey(t *testing.T) {
	tab := NewAttrTable("LineNr", "")
	tab.Define(3, AttrDef{Name: "Comment"})
	if key := tab.StyleKey(3); key != "Comment" {
		t.Errorf("StyleKey(3) = %q", key)
	}
	if key := tab.StyleKey(99); key != "attr_99" {
		t.Errorf("StyleKey(99) = %q", key)
	}
}

func TestAttrTableThemeFallback(t *testing.T) {
	tab := NewAttrTable("LineNr", "monokai")

	// Name-only definition for a known group resolves colors from the
	// chroma theme.
	tab.Define(2, AttrDef{Name: "Comment"})
	d, _ := tab.Get(2)
	if d.Foreground == "" {
		t.Error("expected a theme-derived foreground for Comment")
	}

	// Explicit colors are never overridden.
	tab.Define(3, AttrDef{Name: "Comment", Foreground: "#123456"})
	d, _ = tab.Get(3)
	if d.Foreground != "#123456" {
		t.Errorf("explicit foreground overridden: %q", d.Foreground)
	}
}
