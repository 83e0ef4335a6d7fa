package server

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/metrics"
	"github.com/avolkov/chatline/internal/presence"
	"github.com/avolkov/chatline/internal/proto"
)

// ErrHubStopped reports that the hub loop is no longer running.
var ErrHubStopped = errors.New("hub stopped")

type inboundFrame struct {
	conn  *Conn
	frame string
}

// Snapshot is a point-in-time view of the hub for the admin endpoint.
type Snapshot struct {
	Connections int                        `json:"connections"`
	Online      []string                   `json:"online"`
	Presence    map[string]presence.Status `json:"presence"`
}

// Hub owns every connection and all presence state. Its single goroutine
// serializes registration, dispatch and snapshots, so no two requests are
// ever dispatched concurrently and the presence store needs no lock. A push
// enqueued during one connection's dispatch reaches another connection at
// that connection's write pump, giving per-connection FIFO ordering and no
// global ordering across streams.
type Hub struct {
	dispatcher *Dispatcher
	tick       time.Duration
	log        *zerolog.Logger
	metrics    *metrics.Metrics

	register     chan *Conn
	disconnected chan *Conn
	inbound      chan inboundFrame
	snapshots    chan chan Snapshot
	done         chan struct{}

	conns map[string]*Conn
}

// NewHub builds the hub around a dispatcher. The tick drives housekeeping
// (gauge refresh, idle log); expiry means "nothing to do, loop again".
func NewHub(d *Dispatcher, tick time.Duration, logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	if tick <= 0 {
		tick = 5 * time.Second
	}
	h := &Hub{
		dispatcher:   d,
		tick:         tick,
		log:          logger,
		metrics:      m,
		register:     make(chan *Conn),
		disconnected: make(chan *Conn),
		inbound:      make(chan inboundFrame),
		snapshots:    make(chan chan Snapshot),
		done:         make(chan struct{}),
		conns:        make(map[string]*Conn),
	}
	d.hub = h
	return h
}

// Run drives the hub until the context is cancelled, then closes every
// remaining connection. In-flight writes are not drained on shutdown.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case conn := <-h.register:
			if prior, ok := h.conns[conn.id]; ok {
				// Two handshakes claimed the same id; the newer one wins and
				// the prior socket is torn down, not orphaned.
				h.log.Warn().Str("conn_id", conn.id).Msg("duplicate connection id, replacing prior connection")
				h.drop(prior)
			}
			h.conns[conn.id] = conn
			h.metrics.ConnectionsActive.Set(float64(len(h.conns)))
			h.log.Info().Str("conn_id", conn.id).Str("remote", conn.remoteAddr).Msg("connection registered")

		case conn := <-h.disconnected:
			h.drop(conn)

		case in := <-h.inbound:
			h.serve(in.conn, in.frame)

		case reply := <-h.snapshots:
			reply <- Snapshot{
				Connections: len(h.conns),
				Online:      h.dispatcher.presence.Online(),
				Presence:    h.dispatcher.presence.Snapshot(),
			}

		case <-ticker.C:
			online := h.dispatcher.presence.Online()
			h.metrics.UsersOnline.Set(float64(len(online)))
			h.log.Debug().Int("connections", len(h.conns)).Int("online", len(online)).Msg("hub idle tick")

		case <-ctx.Done():
			close(h.done)
			for _, conn := range h.conns {
				conn.closeQueue()
			}
			h.conns = nil
			h.log.Info().Msg("hub stopped")
			return
		}
	}
}

// Register hands a freshly handshaken connection to the hub.
func (h *Hub) Register(conn *Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.closeQueue()
	}
}

// Disconnected reports that a connection's read side ended.
func (h *Hub) Disconnected(conn *Conn) {
	select {
	case h.disconnected <- conn:
	case <-h.done:
	}
}

// Inbound hands one decoded frame to the hub loop.
func (h *Hub) Inbound(conn *Conn, frame string) {
	select {
	case h.inbound <- inboundFrame{conn: conn, frame: frame}:
	case <-h.done:
	}
}

// Snapshot asks the hub loop for its current state.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case h.snapshots <- reply:
	case <-h.done:
		return Snapshot{}, ErrHubStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// serve consumes one complete request and enqueues the response on the same
// connection that issued it.
func (h *Hub) serve(conn *Conn, frame string) {
	if _, ok := h.conns[conn.id]; !ok {
		// Frame raced with a disconnect; the connection is gone.
		return
	}

	req, err := proto.DecodeRequest([]byte(frame))
	if err != nil {
		h.log.Warn().Err(err).Str("conn_id", conn.id).Msg("undecodable request")
		h.metrics.RequestsRejected.WithLabelValues("protocol").Inc()
		h.push(conn.id, "request decode error.")
		return
	}

	h.log.Debug().Str("conn_id", conn.id).Str("cmd", req.CmdType).Msg("dispatching request")
	resp, closeAfter := h.dispatcher.Dispatch(conn.id, req)
	h.push(conn.id, resp)
	if closeAfter {
		if c, ok := h.conns[conn.id]; ok {
			delete(h.conns, conn.id)
			h.metrics.ConnectionsActive.Set(float64(len(h.conns)))
			c.closeQueue()
		}
	}
}

// push enqueues a text line on a connection's outbound queue. A full queue
// means the peer stopped draining; the connection is dropped. Hub goroutine
// only.
func (h *Hub) push(connID, text string) bool {
	conn, ok := h.conns[connID]
	if !ok {
		return false
	}
	if !conn.enqueue(proto.EncodeText(text)) {
		h.log.Warn().Str("conn_id", connID).Msg("outbound queue overflow, dropping connection")
		h.drop(conn)
		return false
	}
	return true
}

// drop unregisters a connection, releases its user binding and closes its
// queue. Tolerant of connections that were already dropped.
func (h *Hub) drop(conn *Conn) {
	if _, ok := h.conns[conn.id]; !ok {
		return
	}
	delete(h.conns, conn.id)
	h.metrics.ConnectionsActive.Set(float64(len(h.conns)))

	if name, ok := h.dispatcher.presence.Unbind(conn.id); ok {
		h.dispatcher.presence.SetStatus(name, presence.Offline)
		h.log.Info().Str("conn_id", conn.id).Str("user", name).Msg("user went offline on disconnect")
	}
	conn.closeQueue()
	h.log.Info().Str("conn_id", conn.id).Str("remote", conn.remoteAddr).Msg("connection closed")
}
