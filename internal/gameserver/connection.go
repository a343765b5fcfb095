package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomsync/internal/game/session"
	"github.com/cory-johannsen/roomsync/internal/protocol"
)

// Transport is a message-oriented, full-duplex client link. ReadMessage is
// called from one goroutine and WriteMessage from another.
type Transport interface {
	// ReadMessage blocks for the next inbound frame. A clean close by the peer
	// returns io.EOF.
	ReadMessage() ([]byte, error)
	WriteMessage(frame []byte) error
	Close() error
}

// ConnState is the lifecycle state of a Connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateActive
	StateClosed
)

// String returns the lowercase state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Connection drives one client through Connecting, Active and Closed.
//
// Invariant: transitions only move forward; Closed is terminal and entered once.
type Connection struct {
	id        string
	room      *Room
	transport Transport
	outbox    *session.Outbox
	logger    *zap.Logger

	state  atomic.Int32
	joined atomic.Bool
	closed chan struct{}
}

// NewConnection creates a Connection in StateConnecting.
//
// Precondition: id must be unique within room; room, transport and logger must be non-nil.
func NewConnection(id string, room *Room, transport Transport, outboxSize int, logger *zap.Logger) *Connection {
	return &Connection{
		id:        id,
		room:      room,
		transport: transport,
		outbox:    session.NewOutbox(id, outboxSize),
		logger:    logger.With(zap.String("participant", id)),
		closed:    make(chan struct{}),
	}
}

// ID returns the participant id.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Done is closed when the connection enters StateClosed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// Send queues a frame for the writer.
func (c *Connection) Send(frame []byte) error {
	return c.outbox.Push(frame)
}

// Serve joins the room, then processes inbound messages until the client goes
// away, a write fails, the outbox overflows or ctx is cancelled.
//
// Postcondition: The connection is Closed and its participant removed on return.
func (c *Connection) Serve(ctx context.Context) error {
	if c.State() != StateConnecting {
		return ErrConnectionClosed
	}
	p, err := c.room.Join(c)
	if err != nil {
		c.Close()
		return fmt.Errorf("joining room %s: %w", c.room.ID(), err)
	}
	c.joined.Store(true)
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		c.room.Leave(c.id)
		return ErrConnectionClosed
	}
	c.logger.Info("participant joined",
		zap.Float64("x", p.X),
		zap.Float64("y", p.Y),
	)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.closed:
		}
	}()

	c.readLoop()
	c.Close()
	<-writerDone
	return nil
}

func (c *Connection) readLoop() {
	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			switch {
			case c.State() == StateClosed:
			case errors.Is(err, io.EOF):
				c.logger.Debug("client closed connection")
			default:
				c.logger.Info("read failed", zap.Error(err))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Connection) handle(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		c.logger.Debug("discarding message", zap.Error(err))
		return
	}
	switch env.T {
	case protocol.MsgMove:
		x, y, err := protocol.DecodeMove(env)
		if err != nil {
			c.logger.Debug("discarding move", zap.Error(err))
			return
		}
		if err := c.room.Move(c.id, x, y); err != nil {
			c.logger.Debug("move rejected", zap.Error(err))
		}
	default:
		c.logger.Debug("discarding message of unknown type", zap.String("type", env.T))
	}
}

func (c *Connection) writeLoop() {
	for frame := range c.outbox.Frames() {
		if err := c.transport.WriteMessage(frame); err != nil {
			if c.State() != StateClosed {
				c.logger.Info("write failed", zap.Error(err))
			}
			c.Close()
			return
		}
	}
}

// Close moves the connection to StateClosed, removes its participant, notifies
// the room and releases the transport. Idempotent and safe from any goroutine.
func (c *Connection) Close() {
	for {
		cur := c.state.Load()
		if ConnState(cur) == StateClosed {
			return
		}
		if c.state.CompareAndSwap(cur, int32(StateClosed)) {
			break
		}
	}
	close(c.closed)
	if c.joined.Load() {
		c.room.Leave(c.id)
	}
	c.outbox.Close()
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("closing transport", zap.Error(err))
	}
	c.logger.Info("participant disconnected")
}
