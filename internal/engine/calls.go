package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// Call is one operation of an atomic batch, encoded on the wire as
// [method, [args...]].
type Call struct {
	Method string
	Args   []any
}

// MarshalJSON encodes the call as a two-element tuple.
func (c Call) MarshalJSON() ([]byte, error) {
	args := c.Args
	if args == nil {
		args = []any{}
	}
	return json.Marshal([]any{c.Method, args})
}

// Atomic issues the calls as one batch; the engine applies all of them or
// none. A failure is fatal to this batch only, never to the session.
func (c *Client) Atomic(ctx context.Context, calls []Call) error {
	if len(calls) == 0 {
		return nil
	}
	if err := c.Request(ctx, "atomic", calls, nil); err != nil {
		return fmt.Errorf("atomic batch of %d: %w", len(calls), err)
	}
	return nil
}

// SetLinesCall builds a buf_set_lines op replacing buffer lines
// [first, last) with lines. Bounds are 0-based, last exclusive.
func SetLinesCall(buf, first, last int, lines []string) Call {
	return Call{Method: "buf_set_lines", Args: []any{buf, first, last, lines}}
}

// SetCursorCall builds a win_set_cursor op. line is 1-based; col is a
// 0-based byte offset (engine-native addressing).
func SetCursorCall(win, line, col int) Call {
	return Call{Method: "win_set_cursor", Args: []any{win, line, col}}
}

// BufSetLines replaces buffer lines [first, last) outside a batch.
func (c *Client) BufSetLines(ctx context.Context, buf, first, last int, lines []string) error {
	return c.Request(ctx, "buf_set_lines", []any{buf, first, last, lines}, nil)
}

// BufCreate allocates an engine buffer and returns its id.
func (c *Client) BufCreate(ctx context.Context) (int, error) {
	var id int
	if err := c.Request(ctx, "buf_create", []any{}, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// BufAttach subscribes to buf_lines notifications for the buffer and
// returns its current edit-generation tick.
func (c *Client) BufAttach(ctx context.Context, buf int) (int64, error) {
	var tick int64
	if err := c.Request(ctx, "buf_attach", []any{buf}, &tick); err != nil {
		return 0, err
	}
	return tick, nil
}

// BufDetach cancels the buf_lines subscription for the buffer.
func (c *Client) BufDetach(ctx context.Context, buf int) error {
	return c.Request(ctx, "buf_detach", []any{buf}, nil)
}

// WinSetCursor moves the engine cursor. line is 1-based, col a 0-based
// byte offset.
func (c *Client) WinSetCursor(ctx context.Context, win, line, col int) error {
	return c.Request(ctx, "win_set_cursor", []any{win, line, col}, nil)
}

// Input feeds raw keys to the engine's input queue.
func (c *Client) Input(ctx context.Context, keys string) error {
	return c.Notify(ctx, "input", []any{keys})
}

// Command executes an ex-style engine command.
func (c *Client) Command(ctx context.Context, cmd string) error {
	return c.Request(ctx, "command", []any{cmd}, nil)
}
