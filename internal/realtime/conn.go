// Package realtime tracks live transport handles for connected
// visitors and agents and delivers best-effort events to them.
package realtime

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is a live transport handle. Production code wraps a websocket
// connection; tests substitute fakes.
type Conn interface {
	// Send delivers one serialized event to the peer.
	Send(ctx context.Context, data []byte) error

	// Close terminates the connection with a reason.
	Close(reason string) error
}

// wsConn adapts *websocket.Conn to Conn.
type wsConn struct {
	conn *websocket.Conn
}

// NewWebSocketConn wraps a websocket connection as a registry handle.
func NewWebSocketConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}
