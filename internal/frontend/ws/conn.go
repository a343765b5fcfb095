// Package ws serves room websockets and the HTTP routes around them.
package ws

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn adapts a gorilla websocket to gameserver.Transport and keeps it alive
// with periodic pings.
type Conn struct {
	ws *websocket.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps ws and starts the keepalive pinger.
//
// Precondition: pingInterval must be shorter than readTimeout; all durations positive.
// Postcondition: The read deadline is armed; every pong extends it by readTimeout.
func NewConn(ws *websocket.Conn, readTimeout, writeTimeout, pingInterval time.Duration, maxMessageBytes int64) *Conn {
	c := &Conn{
		ws:           ws,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go c.pingLoop(pingInterval)
	return c
}

// ReadMessage returns the next data frame. A normal or going-away close by the
// peer is reported as io.EOF.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, io.EOF
		}
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	return data, nil
}

// WriteMessage sends frame as a single text message.
func (c *Conn) WriteMessage(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a close frame and releases the socket. Safe to call repeatedly.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
