package engine

import (
	"encoding/json"
	"fmt"
)

// BufLinesEvent is one raw buffer-line-change notification: lines
// [FirstLine, LastLine) of buffer Buf were replaced by Lines at
// edit-generation Tick. LastLine is exclusive; FirstLine == LastLine is a
// pure insertion.
type BufLinesEvent struct {
	Buf       int
	Tick      int64
	FirstLine int
	LastLine  int
	Lines     []string
}

// DecodeBufLines decodes a buf_lines notification payload
// [buf, tick, first, last, [lines...]].
func DecodeBufLines(params json.RawMessage) (BufLinesEvent, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(params, &tuple); err != nil {
		return BufLinesEvent{}, fmt.Errorf("engine: buf_lines params: %w", err)
	}
	if len(tuple) < 5 {
		return BufLinesEvent{}, fmt.Errorf("engine: buf_lines params: want 5 elements, got %d", len(tuple))
	}
	var ev BufLinesEvent
	fields := []any{&ev.Buf, &ev.Tick, &ev.FirstLine, &ev.LastLine, &ev.Lines}
	for i, dst := range fields {
		if err := json.Unmarshal(tuple[i], dst); err != nil {
			return BufLinesEvent{}, fmt.Errorf("engine: buf_lines element %d: %w", i, err)
		}
	}
	return ev, nil
}

// HostCommand is an out-of-band dispatch payload: a host command name with
// positional arguments, optionally scoped to a line range.
type HostCommand struct {
	Name     string
	Args     []json.RawMessage
	Range    [2]int
	HasRange bool
}

// DecodeHostCommand decodes [name, [args...]] payloads.
func DecodeHostCommand(params json.RawMessage) (HostCommand, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(params, &tuple); err != nil {
		return HostCommand{}, fmt.Errorf("engine: host_command params: %w", err)
	}
	if len(tuple) == 0 {
		return HostCommand{}, fmt.Errorf("engine: host_command params: empty tuple")
	}
	var cmd HostCommand
	if err := json.Unmarshal(tuple[0], &cmd.Name); err != nil {
		return HostCommand{}, fmt.Errorf("engine: host_command name: %w", err)
	}
	if len(tuple) > 1 {
		if err := json.Unmarshal(tuple[1], &cmd.Args); err != nil {
			return HostCommand{}, fmt.Errorf("engine: host_command args: %w", err)
		}
	}
	return cmd, nil
}

// DecodeHostRangeCommand decodes [first, last, name, [args...]] payloads.
func DecodeHostRangeCommand(params json.RawMessage) (HostCommand, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(params, &tuple); err != nil {
		return HostCommand{}, fmt.Errorf("engine: host_range_command params: %w", err)
	}
	if len(tuple) < 3 {
		return HostCommand{}, fmt.Errorf("engine: host_range_command params: want 3+ elements, got %d", len(tuple))
	}
	var cmd HostCommand
	cmd.HasRange = true
	if err := json.Unmarshal(tuple[0], &cmd.Range[0]); err != nil {
		return HostCommand{}, fmt.Errorf("engine: host_range_command first: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &cmd.Range[1]); err != nil {
		return HostCommand{}, fmt.Errorf("engine: host_range_command last: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &cmd.Name); err != nil {
		return HostCommand{}, fmt.Errorf("engine: host_range_command name: %w", err)
	}
	if len(tuple) > 3 {
		if err := json.Unmarshal(tuple[3], &cmd.Args); err != nil {
			return HostCommand{}, fmt.Errorf("engine: host_range_command args: %w", err)
		}
	}
	return cmd, nil
}
