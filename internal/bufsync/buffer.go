// Package bufsync keeps host documents and engine buffers textually
// consistent in both directions. Host edits are diffed against the last
// known snapshot and uploaded as minimal replace-line-range batches;
// engine edits are replayed, diffed against the host text, and applied as
// one host transaction. A per-buffer tick watermark absorbs the echo each
// direction produces in the other.
package bufsync

// syncState tracks the host→engine upload machine for one buffer. The
// transitions replace the implicit ordering of asynchronous callbacks
// with an explicit per-buffer state.
type syncState int

const (
	// stateClean: snapshot matches both surfaces as far as we know.
	stateClean syncState = iota
	// stateUploadPending: the host edited during an exclusive insertion
	// interaction; the upload is deferred so the host's undo history
	// stays one entry per interaction, not one per keystroke.
	stateUploadPending
	// stateUploadInFlight: an upload batch was issued; its echo (ticks
	// up to the suppression watermark) is still expected back.
	stateUploadInFlight
)

// Buffer is one engine buffer mirroring exactly one host document. At
// most one Buffer exists per document URI and its identity never changes
// once created.
type Buffer struct {
	ID          int
	URI         string
	Placeholder bool

	// snapshot is the engine-side text as of the last reconciliation.
	snapshot []string
	// tick is the last edit-generation counter seen from the engine.
	tick int64
	// suppressTick is the echo watermark: engine edit batches with
	// tick <= suppressTick are host-originated echoes and are dropped.
	suppressTick int64
	// lastAppliedVersion is the host document version last written by
	// the sync engine itself; host change events at or below it are
	// engine-originated echoes.
	lastAppliedVersion int

	state syncState
}

// Snapshot returns a copy of the buffer's last-known line list.
func (b *Buffer) Snapshot() []string {
	out := make([]string, len(b.snapshot))
	copy(out, b.snapshot)
	return out
}

// Tick returns the last engine tick seen for this buffer.
func (b *Buffer) Tick() int64 { return b.tick }
