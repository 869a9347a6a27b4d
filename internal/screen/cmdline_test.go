package screen

import (
	"sync"
	"testing"
	"time"
)

type cmdlineRecorder struct {
	mu    sync.Mutex
	shows []string
	hides int
}

func (r *cmdlineRecorder) show(content, prefix string, pos int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shows = append(r.shows, content)
}

func (r *cmdlineRecorder) hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hides++
}

func (r *cmdlineRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shows), r.hides
}

func TestCmdlineDelayedShow(t *testing.T) {
	rec := &cmdlineRecorder{}
	c := NewCmdline(20*time.Millisecond, rec.show, rec.hide)

	c.Show(CmdlineShow{Content: "substitute/a/b/"})
	if shows, _ := rec.counts(); shows != 0 {
		t.Fatal("show fired before the debounce delay")
	}

	time.Sleep(60 * time.Millisecond)
	if shows, _ := rec.counts(); shows != 1 {
		t.Fatalf("expected one show after delay, got %d", shows)
	}
	if !c.Visible() {
		t.Error("cmdline should be visible")
	}
}

func TestCmdlineHideCancelsPendingShow(t *testing.T) {
	rec := &cmdlineRecorder{}
	c := NewCmdline(20*time.Millisecond, rec.show, rec.hide)

	// A transient mapping flashes the command line: show then hide
	// within the delay. The host must never see either.
	c.Show(CmdlineShow{Content: "call TransientMapping()"})
	c.Hide()

	time.Sleep(60 * time.Millisecond)
	shows, hides := rec.counts()
	if shows != 0 || hides != 0 {
		t.Errorf("flicker leaked to the host: shows=%d hides=%d", shows, hides)
	}
	if c.Visible() {
		t.Error("cmdline should not be visible")
	}
}

func TestCmdlineTrivialContentShowsImmediately(t *testing.T) {
	rec := &cmdlineRecorder{}
	c := NewCmdline(time.Hour, rec.show, rec.hide)

	c.Show(CmdlineShow{Content: ""})
	if shows, _ := rec.counts(); shows != 1 {
		t.Fatalf("empty content should show immediately, got %d shows", shows)
	}

	// Already visible: updates bypass the delay too.
	c.Show(CmdlineShow{Content: "s"})
	if shows, _ := rec.counts(); shows != 2 {
		t.Fatalf("visible cmdline update should be immediate, got %d shows", shows)
	}

	c.Hide()
	if _, hides := rec.counts(); hides != 1 {
		t.Error("expected a hide for a visible cmdline")
	}
}
