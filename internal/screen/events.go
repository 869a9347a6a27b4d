package screen

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Event is one decoded redraw sub-event. The wire carries duck-typed
// tuples; they are decoded into these variants at the boundary and
// matched exhaustively. Unknown tags decode to Unknown and are a no-op.
type Event interface {
	isEvent()
}

// ModeChange announces the engine's interaction mode ("normal", "insert",
// "cmdline_normal", ...).
type ModeChange struct {
	Mode string
}

// AttrDefine registers or redefines a highlight attribute id.
type AttrDefine struct {
	ID  int
	Def AttrDef
}

// CmdlineShow presents command-line content at a cursor position.
type CmdlineShow struct {
	Content string
	Pos     int
	Prefix  string
}

// CmdlineHide dismisses the command line.
type CmdlineHide struct{}

// WinPos binds a grid to a host viewport. External reports the same
// binding for a detached window.
type WinPos struct {
	Grid     int
	Viewport int
	Width    int
	Height   int
	External bool
}

// GridResize announces grid dimensions.
type GridResize struct {
	Grid   int
	Width  int
	Height int
}

// GridScroll shifts the region [Top, Bot) x [Left, Right) by Rows/Cols.
type GridScroll struct {
	Grid  int
	Top   int
	Bot   int
	Left  int
	Right int
	Rows  int
	Cols  int
}

// GridCursorGoto moves a grid's cursor in screen-relative terms. Col is a
// byte column.
type GridCursorGoto struct {
	Grid int
	Row  int
	Col  int
}

// CellRun is one run of a GridLine update. Attr carries over from the
// previous run when the tuple omits it; Repeat defaults to 1.
type CellRun struct {
	Text   string
	Attr   int
	Repeat int
}

// GridLine rewrites cells of one row starting at byte column ColStart.
type GridLine struct {
	Grid     int
	Row      int
	ColStart int
	Cells    []CellRun
}

// WinClose destroys a grid.
type WinClose struct {
	Grid int
}

// MsgShow is a transient message; Kind "confirm"-class messages signal a
// blocking prompt awaiting acknowledgement.
type MsgShow struct {
	Kind    string
	Content string
}

// Flush is the distinguished batch boundary marker.
type Flush struct{}

// Unknown is any unrecognized tag.
type Unknown struct {
	Name string
}

func (ModeChange) isEvent()     {}
func (AttrDefine) isEvent()     {}
func (CmdlineShow) isEvent()    {}
func (CmdlineHide) isEvent()    {}
func (WinPos) isEvent()         {}
func (GridResize) isEvent()     {}
func (GridScroll) isEvent()     {}
func (GridCursorGoto) isEvent() {}
func (GridLine) isEvent()       {}
func (WinClose) isEvent()       {}
func (MsgShow) isEvent()        {}
func (Flush) isEvent()          {}
func (Unknown) isEvent()        {}

// DecodeBatch decodes a redraw notification payload: an array of
// [name, args, args, ...] groups, one args tuple per event instance.
// Malformed groups and unknown names never fail the batch.
func DecodeBatch(params json.RawMessage) []Event {
	parsed := gjson.ParseBytes(params)
	if !parsed.IsArray() {
		return nil
	}

	var events []Event
	for _, group := range parsed.Array() {
		tuple := group.Array()
		if len(tuple) == 0 {
			continue
		}
		name := tuple[0].String()
		if name == "flush" {
			events = append(events, Flush{})
			continue
		}
		if len(tuple) == 1 {
			// instance-less tags
			if ev := decodeEvent(name, gjson.Result{}); ev != nil {
				events = append(events, ev)
			}
			continue
		}
		for _, args := range tuple[1:] {
			if ev := decodeEvent(name, args); ev != nil {
				events = append(events, ev)
			}
		}
	}
	return events
}

func decodeEvent(name string, args gjson.Result) Event {
	a := args.Array()
	at := func(i int) gjson.Result {
		if i < len(a) {
			return a[i]
		}
		return gjson.Result{}
	}

	switch name {
	case "mode_change":
		return ModeChange{Mode: at(0).String()}

	case "hl_attr_define":
		attrs := at(1)
		return AttrDefine{
			ID: int(at(0).Int()),
			Def: AttrDef{
				Name:          attrs.Get("name").String(),
				Foreground:    attrs.Get("foreground").String(),
				Background:    attrs.Get("background").String(),
				Special:       attrs.Get("special").String(),
				Bold:          attrs.Get("bold").Bool(),
				Italic:        attrs.Get("italic").Bool(),
				Underline:     attrs.Get("underline").Bool(),
				Undercurl:     attrs.Get("undercurl").Bool(),
				Reverse:       attrs.Get("reverse").Bool(),
				Strikethrough: attrs.Get("strikethrough").Bool(),
			},
		}

	case "cmdline_show":
		return CmdlineShow{Content: at(0).String(), Pos: int(at(1).Int()), Prefix: at(2).String()}

	case "cmdline_hide":
		return CmdlineHide{}

	case "win_pos":
		return WinPos{
			Grid:     int(at(0).Int()),
			Viewport: int(at(1).Int()),
			Width:    int(at(2).Int()),
			Height:   int(at(3).Int()),
		}

	case "win_external_pos":
		return WinPos{Grid: int(at(0).Int()), Viewport: int(at(1).Int()), External: true}

	case "grid_resize":
		return GridResize{Grid: int(at(0).Int()), Width: int(at(1).Int()), Height: int(at(2).Int())}

	case "grid_scroll":
		return GridScroll{
			Grid:  int(at(0).Int()),
			Top:   int(at(1).Int()),
			Bot:   int(at(2).Int()),
			Left:  int(at(3).Int()),
			Right: int(at(4).Int()),
			Rows:  int(at(5).Int()),
			Cols:  int(at(6).Int()),
		}

	case "grid_cursor_goto":
		return GridCursorGoto{Grid: int(at(0).Int()), Row: int(at(1).Int()), Col: int(at(2).Int())}

	case "grid_line":
		ev := GridLine{
			Grid:     int(at(0).Int()),
			Row:      int(at(1).Int()),
			ColStart: int(at(2).Int()),
		}
		attr := 0
		for _, cell := range at(3).Array() {
			c := cell.Array()
			run := CellRun{Repeat: 1}
			if len(c) == 0 {
				continue
			}
			run.Text = c[0].String()
			if len(c) > 1 {
				attr = int(c[1].Int())
			}
			run.Attr = attr
			if len(c) > 2 {
				if n := int(c[2].Int()); n > 0 {
					run.Repeat = n
				}
			}
			ev.Cells = append(ev.Cells, run)
		}
		return ev

	case "win_close":
		return WinClose{Grid: int(at(0).Int())}

	case "msg_show":
		return MsgShow{Kind: at(0).String(), Content: at(1).String()}

	default:
		return Unknown{Name: name}
	}
}
