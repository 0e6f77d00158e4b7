package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 5 * time.Minute
	pingPeriod = 30 * time.Second
)

// Conn serializes writes to a WebSocket. gorilla/websocket allows one
// concurrent writer, and events arrive from a separate goroutine than
// action replies.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

// NewConn wraps an upgraded connection and arms its read deadline.
func NewConn(conn *websocket.Conn) *Conn {
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	return &Conn{Conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(requestID, code, errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event:     EventError,
		RequestID: requestID,
		Code:      code,
		Error:     errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// Every message extends the read deadline.
func (c *Conn) ReadJSON(v interface{}) error {
	c.SetReadDeadline(time.Now().Add(readWait))
	return c.Conn.ReadJSON(v)
}

// KeepAlive pings the peer until done is closed or a ping fails.
func (c *Conn) KeepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// CloseWith sends a close frame with the given code and reason, then closes.
func (c *Conn) CloseWith(code int, reason string) error {
	c.mu.Lock()
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.Close()
}
