// Package client implements the terminal chat client: one task reads the
// interactive prompt, one reactor task drains the request queue and prints
// asynchronous server pushes. The two tasks share nothing but channels.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/command"
	"github.com/avolkov/chatline/internal/proto"
)

const (
	promptInput  = "INPUT: "
	promptOutput = "OUTPUT: "
	promptInfo   = "INFO: "
)

// Client connects to the chat server and multiplexes the blocking prompt
// against inbound pushes.
type Client struct {
	addr        string
	id          string
	idleTimeout time.Duration
	log         *zerolog.Logger

	// In and Out default to the process's stdio; tests substitute pipes.
	In  io.Reader
	Out io.Writer
}

// New builds a client with a fresh connection identifier.
func New(addr string, idleTimeout time.Duration, logger *zerolog.Logger) *Client {
	return &Client{
		addr:        addr,
		id:          uuid.NewString(),
		idleTimeout: idleTimeout,
		log:         logger,
	}
}

// ID returns the client's connection identifier.
func (c *Client) ID() string { return c.id }

// Run dials the server and serves the session until the context is cancelled
// or the transport fails. No reconnection is attempted.
func (c *Client) Run(ctx context.Context) error {
	nc, err := net.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer nc.Close()
	return c.RunConn(ctx, nc)
}

// RunConn serves an established connection. The identifier handshake is the
// very first line on the stream.
func (c *Client) RunConn(ctx context.Context, nc net.Conn) error {
	if _, err := nc.Write(proto.EncodeText(c.id)); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The lines channel is the outbound request queue: the prompt task only
	// feeds it, the reactor below is its only consumer.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	inbound := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(inbound)
		scanner := bufio.NewScanner(nc)
		for scanner.Scan() {
			select {
			case inbound <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	return c.reactor(ctx, nc, lines, inbound, readErr)
}

// reactor owns the username state and all terminal output. It drains the
// prompt queue in FIFO order and interleaves server pushes as they arrive.
func (c *Client) reactor(ctx context.Context, nc net.Conn, lines, inbound <-chan string, readErr <-chan error) error {
	var username string
	awaitingInput := true

	idle := time.NewTicker(c.idleTimeout)
	defer idle.Stop()

	c.printf(promptInput)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Prompt closed (EOF); the session is over.
				return nil
			}
			res := command.Parse(line)
			if res.Local {
				c.printf("%s%s\n", promptOutput, res.Output)
				c.printf(promptInput)
				awaitingInput = true
				continue
			}

			args := res.Args
			switch res.Kind {
			case command.KindLogin:
				// Remember the attempted name before the request goes out,
				// so follow-up commands carry it as the acting user.
				username = args[0]
				args = append(args, c.id)
			case command.KindLogout:
				args = append(args, c.id)
			}

			frame, err := proto.EncodeRequest(proto.Request{
				User:    username,
				CmdType: string(res.Kind),
				CmdArgs: args,
			})
			if err != nil {
				return err
			}
			if _, err := nc.Write(frame); err != nil {
				return fmt.Errorf("send request: %w", err)
			}
			if res.Kind == command.KindLogout {
				username = ""
			}
			awaitingInput = false

		case line, ok := <-inbound:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("server connection: %w", err)
					}
				default:
				}
				c.printf("%sserver closed the connection.\n", promptInfo)
				return nil
			}
			if awaitingInput {
				// Break the pending prompt line before the push.
				c.printf("\r\n")
			}
			c.printf("%s%s\n", promptInfo, line)
			c.printf(promptInput)
			awaitingInput = true

		case <-idle.C:
			// Quiet server; a liveness check, not an error.
			c.log.Debug().Msg("no server traffic within idle window")

		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) in() io.Reader {
	if c.In != nil {
		return c.In
	}
	return defaultIn
}

func (c *Client) printf(format string, args ...any) {
	out := c.Out
	if out == nil {
		out = defaultOut
	}
	fmt.Fprintf(out, format, args...)
}
