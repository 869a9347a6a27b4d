package screen

import (
	"strings"
	"sync"
	"time"
)

// Cmdline debounces command-line show/hide events. Transient mappings
// flash a command line for a few milliseconds; delaying the initial show
// lets a hide arriving within the window cancel it before the host ever
// sees it. A show is immediate when a command line is already visible or
// the content is trivial.
type Cmdline struct {
	mu      sync.Mutex
	delay   time.Duration
	visible bool
	pending *time.Timer
	gen     int // invalidates timers that fire after a cancel

	onShow func(content, prefix string, pos int)
	onHide func()
}

// NewCmdline creates a debouncer firing the given callbacks. Callbacks run
// on the timer goroutine for delayed shows, inline otherwise.
func NewCmdline(delay time.Duration, onShow func(content, prefix string, pos int), onHide func()) *Cmdline {
	return &Cmdline{delay: delay, onShow: onShow, onHide: onHide}
}

// Show presents content, possibly after the debounce delay.
func (c *Cmdline) Show(ev CmdlineShow) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.gen++

	if c.visible || strings.TrimSpace(ev.Content) == "" {
		c.visible = true
		c.onShow(ev.Content, ev.Prefix, ev.Pos)
		return
	}

	gen := c.gen
	c.pending = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen {
			// cancelled or superseded while the timer fired
			return
		}
		c.pending = nil
		c.visible = true
		c.onShow(ev.Content, ev.Prefix, ev.Pos)
	})
}

// Hide dismisses the command line; a hide before the show delay elapses
// cancels the pending show entirely.
func (c *Cmdline) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
		return
	}
	if c.visible {
		c.visible = false
		c.onHide()
	}
}

// Visible reports whether the host currently shows a command line.
func (c *Cmdline) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}
