// Package db is the client side of the state service protocol: one framed
// TCP connection carrying synchronous `<Collection> <Action>` commands.
// It replaces direct storage access everywhere outside the state service
// itself; the lobby and match runtimes know no other source of truth.
package db

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/okonogi/gamehall/internal/protocol"
)

// CommandError is an ERR reply from the state service. A CommandError means
// the request made the round trip; transport failures surface as ordinary
// wrapped errors and mean the connection is dead.
type CommandError struct {
	Kind string
}

func (e *CommandError) Error() string {
	return "state service: ERR " + e.Kind
}

// Client owns one framed connection to the state service. The mutex
// serializes whole request/reply exchanges, so callers on any goroutine get
// frame-level atomicity on the shared connection.
type Client struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the state service at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to state service %s: %w", addr, err)
	}
	return &Client{addr: addr, conn: conn}, nil
}

// Addr returns the state service address this client dialed.
func (c *Client) Addr() string {
	return c.addr
}

// Close closes the connection. In-flight requests fail.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Request sends one command and waits for its reply. The reply is returned
// verbatim, ERR lines included; a non-nil error always means a transport
// failure. A context deadline bounds the whole exchange.
func (c *Client) Request(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := protocol.WriteMessage(c.conn, cmd); err != nil {
		return "", fmt.Errorf("sending %s: %w", cmdName(cmd), err)
	}
	reply, err := protocol.ReadMessage(c.conn)
	if err != nil {
		return "", fmt.Errorf("awaiting %s reply: %w", cmdName(cmd), err)
	}
	return reply, nil
}

// exec runs a command and converts ERR replies into CommandErrors.
func (c *Client) exec(ctx context.Context, cmd string) (string, error) {
	reply, err := c.Request(ctx, cmd)
	if err != nil {
		return "", err
	}
	if kind := protocol.ErrKind(reply); kind != "" {
		return "", &CommandError{Kind: kind}
	}
	if !protocol.IsOK(reply) {
		return "", fmt.Errorf("malformed reply to %s: %q", cmdName(cmd), reply)
	}
	return reply, nil
}

// cmdName names a command for error messages without echoing its arguments,
// which may carry passwords or tokens.
func cmdName(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) >= 2 {
		return fields[0] + " " + fields[1]
	}
	if len(fields) == 1 {
		return fields[0]
	}
	return "(empty command)"
}
