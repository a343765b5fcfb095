package testutil

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/roomsync/internal/protocol"
)

// RoomClient is a websocket test client speaking the room protocol.
type RoomClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// DialRoom connects to room on the server at baseURL (an http:// or
// https:// URL such as httptest.Server.URL).
//
// Postcondition: Returns a connected RoomClient or fails the test.
func DialRoom(t *testing.T, baseURL, room string) *RoomClient {
	t.Helper()
	start := time.Now()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/rooms/" + room
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dialing %s: %v (status %d) [%s]", url, err, status, time.Since(start))
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("dialing %s: unexpected status %d", url, resp.StatusCode)
	}

	t.Cleanup(func() {
		conn.Close()
	})
	return &RoomClient{conn: conn, t: t}
}

// Next reads the next envelope, failing the test after timeout.
func (c *RoomClient) Next(timeout time.Duration) protocol.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.t.Fatalf("decoding frame %q: %v", data, err)
	}
	return env
}

// NextOf reads until an envelope of type typ arrives.
func (c *RoomClient) NextOf(typ string, timeout time.Duration) protocol.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %q", typ)
		}
		if env := c.Next(remaining); env.T == typ {
			return env
		}
	}
}

// Move sends a move message.
func (c *RoomClient) Move(x, y float64) {
	c.t.Helper()
	c.SendRaw(protocol.MustEncode(protocol.MsgMove, map[string]float64{"x": x, "y": y}))
}

// SendRaw writes a text frame verbatim.
func (c *RoomClient) SendRaw(frame []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("sending frame: %v", err)
	}
}

// Close performs a clean websocket close handshake.
func (c *RoomClient) Close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}

// ExpectClosed reads until the server closes the connection, failing the test
// if it is still open after timeout.
func (c *RoomClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			c.t.Fatalf("connection still open after %s", timeout)
		}
		return
	}
}
