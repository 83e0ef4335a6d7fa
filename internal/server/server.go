package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/metrics"
	"github.com/avolkov/chatline/internal/proto"
)

// handshakeTimeout bounds the wait for the client's identifier line.
const handshakeTimeout = 30 * time.Second

// Server accepts TCP connections, captures each client's handshake
// identifier and hands the connection to the hub for multiplexed serving.
type Server struct {
	addr    string
	hub     *Hub
	log     *zerolog.Logger
	metrics *metrics.Metrics

	ln net.Listener
}

// New builds a server around a running hub.
func New(addr string, hub *Hub, logger *zerolog.Logger, m *metrics.Metrics) *Server {
	return &Server{addr: addr, hub: hub, log: logger, metrics: m}
}

// Listen binds the TCP socket. Addr is valid afterwards.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the bound address; useful when listening on port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until the context is cancelled. Each accepted
// socket performs one blocking read for its identifier before being
// registered for multiplexed I/O.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.metrics.ConnectionsAccepted.Inc()
		go s.handleConn(nc)
	}
}

// handleConn reads the handshake line, registers the connection and runs its
// pumps. The read pump runs on this goroutine; its exit reports the
// disconnect to the hub.
func (s *Server) handleConn(nc net.Conn) {
	nc.SetReadDeadline(time.Now().Add(handshakeTimeout))

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 0, 1024), maxFrameSize)
	id, err := proto.ReadFrame(scanner)
	if err != nil || id == "" {
		s.log.Warn().Err(err).Str("remote", nc.RemoteAddr().String()).Msg("handshake failed")
		nc.Close()
		return
	}
	nc.SetReadDeadline(time.Time{})

	s.log.Info().Str("remote", nc.RemoteAddr().String()).Str("conn_id", id).Msg("accepted connection")

	conn := newConn(id, nc)
	s.hub.Register(conn)
	go conn.writePump(s.log)

	// Reuse the handshake scanner so a request sent in the same packet as
	// the identifier is not lost.
	for {
		frame, err := proto.ReadFrame(scanner)
		if err != nil {
			if err != proto.ErrPeerClosed {
				s.log.Warn().Err(err).Str("conn_id", id).Msg("read from peer failed")
			}
			s.hub.Disconnected(conn)
			return
		}
		s.hub.Inbound(conn, frame)
	}
}
