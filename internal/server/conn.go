package server

import (
	"net"

	"github.com/rs/zerolog"
)

// outboundQueueSize bounds the per-connection FIFO. A peer that falls this
// far behind is disconnected instead of stalling the hub.
const outboundQueueSize = 64

// maxFrameSize caps a single inbound frame.
const maxFrameSize = 64 * 1024

// Conn is the per-socket bundle of identity, buffers and outbound queue.
// The id is assigned by the client at handshake time and never reassigned.
// Only the hub goroutine enqueues and closes the queue; the write pump is the
// only reader. One message is fully written before the next is popped, so
// queued messages never interleave on the wire.
type Conn struct {
	id         string
	remoteAddr string
	nc         net.Conn
	outbound   chan []byte
}

func newConn(id string, nc net.Conn) *Conn {
	return &Conn{
		id:         id,
		remoteAddr: nc.RemoteAddr().String(),
		nc:         nc,
		outbound:   make(chan []byte, outboundQueueSize),
	}
}

// ID returns the client-assigned connection identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address for logging.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// enqueue appends a message to the outbound queue. It reports false when the
// queue is full. Hub goroutine only.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case c.outbound <- msg:
		return true
	default:
		return false
	}
}

// closeQueue ends the outbound stream; the write pump drains what is queued
// and then closes the socket. Hub goroutine only.
func (c *Conn) closeQueue() {
	close(c.outbound)
}

// writePump drains the outbound queue onto the socket until the queue is
// closed or a write fails, then closes the socket.
func (c *Conn) writePump(logger *zerolog.Logger) {
	defer c.nc.Close()

	for msg := range c.outbound {
		if _, err := c.nc.Write(msg); err != nil {
			logger.Warn().Err(err).Str("conn_id", c.id).Msg("write to peer failed")
			return
		}
	}
}
