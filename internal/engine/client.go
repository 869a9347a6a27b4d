// Package engine is the RPC channel to the external text engine. The engine
// drives authoritative buffer state and streams redraw and buffer-line
// notifications; the client issues buffer mutations, some as atomic
// multi-op batches so related state changes apply together.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/jsonrpc2"
)

// NotifyHandler consumes an inbound notification's raw params.
type NotifyHandler func(ctx context.Context, params json.RawMessage)

// RequestHandler consumes an inbound request and produces its reply.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Client wraps a jsonrpc2 connection to the engine.
//
// Handlers run serially in the connection's read loop, so one notification
// is always processed to completion before the next — the decode paths
// depend on that ordering and must not be wrapped in an async handler.
type Client struct {
	mu       sync.Mutex
	conn     *jsonrpc2.Conn
	notify   map[string]NotifyHandler
	requests map[string]RequestHandler
}

// NewClient creates a client over an established transport and starts the
// read loop. Register handlers before the first inbound message can arrive,
// i.e. before issuing any call that provokes notifications.
func NewClient(ctx context.Context, rwc io.ReadWriteCloser) *Client {
	c := &Client{
		notify:   make(map[string]NotifyHandler),
		requests: make(map[string]RequestHandler),
	}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	c.conn = jsonrpc2.NewConn(ctx, stream, c)
	return c
}

// Dial connects to an engine listening on a unix socket or TCP address.
func Dial(ctx context.Context, addr string) (*Client, error) {
	network := "tcp"
	if strings.ContainsRune(addr, '/') {
		network = "unix"
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("engine: dial %s: %w", addr, err)
	}
	return NewClient(ctx, conn), nil
}

// OnNotify registers the handler for an inbound notification method.
func (c *Client) OnNotify(method string, h NotifyHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify[method] = h
}

// OnRequest registers the handler for an inbound request method.
func (c *Client) OnRequest(method string, h RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests[method] = h
}

// Handle implements jsonrpc2.Handler.
func (c *Client) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	if req.Notif {
		c.mu.Lock()
		h := c.notify[req.Method]
		c.mu.Unlock()
		if h == nil {
			log.Debug().Str("method", req.Method).Msg("engine: unhandled notification")
			return
		}
		h(ctx, params)
		return
	}

	c.mu.Lock()
	h := c.requests[req.Method]
	c.mu.Unlock()
	if h == nil {
		err := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("no handler for %q", req.Method),
		})
		if err != nil {
			log.Warn().Err(err).Str("method", req.Method).Msg("engine: reply failed")
		}
		return
	}
	result, err := h(ctx, params)
	if err != nil {
		replyErr := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInternalError,
			Message: err.Error(),
		})
		if replyErr != nil {
			log.Warn().Err(replyErr).Str("method", req.Method).Msg("engine: error reply failed")
		}
		return
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		log.Warn().Err(err).Str("method", req.Method).Msg("engine: reply failed")
	}
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if err := c.conn.Notify(ctx, method, params); err != nil {
		return fmt.Errorf("engine: notify %s: %w", method, err)
	}
	return nil
}

// Request sends a request and decodes the reply into result (may be nil).
func (c *Client) Request(ctx context.Context, method string, params, result any) error {
	if err := c.conn.Call(ctx, method, params, result); err != nil {
		return fmt.Errorf("engine: call %s: %w", method, err)
	}
	return nil
}

// DisconnectNotify is closed when the connection drops.
func (c *Client) DisconnectNotify() <-chan struct{} {
	return c.conn.DisconnectNotify()
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
