package client

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/proto"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startClient(t *testing.T) (*Client, io.Writer, *safeBuffer, *bufio.Scanner, net.Conn) {
	t.Helper()

	cc, sc := net.Pipe()
	promptR, promptW := io.Pipe()
	out := &safeBuffer{}

	logger := zerolog.Nop()
	cl := New("unused", time.Minute, &logger)
	cl.In = promptR
	cl.Out = out

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		cc.Close()
		sc.Close()
		promptW.Close()
	})
	go cl.RunConn(ctx, cc)

	server := bufio.NewScanner(sc)
	if !server.Scan() {
		t.Fatalf("no handshake line: %v", server.Err())
	}
	if server.Text() != cl.ID() {
		t.Fatalf("handshake = %q, want client id %q", server.Text(), cl.ID())
	}
	return cl, promptW, out, server, sc
}

func TestLocalCommandsNeverTouchTheNetwork(t *testing.T) {
	_, promptW, out, server, _ := startClient(t)

	io.WriteString(promptW, "help\n")
	waitFor(t, "help output", func() bool {
		return strings.Contains(out.String(), "===HELP===")
	})
	io.WriteString(promptW, "no-such-command\n")
	waitFor(t, "command name error", func() bool {
		return strings.Contains(out.String(), "command name error")
	})
	io.WriteString(promptW, "login onlyname\n")
	waitFor(t, "arity error", func() bool {
		return strings.Contains(out.String(), "command arguments error")
	})

	// Nothing must have been sent; the next wire frame is the probe below.
	io.WriteString(promptW, "whoami\n")
	if !server.Scan() {
		t.Fatalf("no frame: %v", server.Err())
	}
	req, err := proto.DecodeRequest(server.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.CmdType != "whoami" {
		t.Fatalf("first wire frame is %q, local commands leaked", req.CmdType)
	}
}

func TestLoginCarriesConnectionIDAndUser(t *testing.T) {
	cl, promptW, _, server, _ := startClient(t)

	io.WriteString(promptW, "login alice secret\n")
	if !server.Scan() {
		t.Fatalf("no frame: %v", server.Err())
	}
	req, err := proto.DecodeRequest(server.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.CmdType != "login" || req.User != "alice" {
		t.Fatalf("request = %+v", req)
	}
	want := []string{"alice", "secret", cl.ID()}
	if len(req.CmdArgs) != 3 || req.CmdArgs[0] != want[0] || req.CmdArgs[1] != want[1] || req.CmdArgs[2] != want[2] {
		t.Fatalf("args = %v, want %v", req.CmdArgs, want)
	}

	// Subsequent requests act as the logged-in user, multi-word text intact.
	io.WriteString(promptW, "message bob hello there\n")
	if !server.Scan() {
		t.Fatalf("no frame: %v", server.Err())
	}
	req, err = proto.DecodeRequest(server.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.User != "alice" || req.CmdType != "message" {
		t.Fatalf("request = %+v", req)
	}
	if len(req.CmdArgs) != 2 || req.CmdArgs[0] != "bob" || req.CmdArgs[1] != "hello there" {
		t.Fatalf("args = %v", req.CmdArgs)
	}

	// Logout appends the id and clears the acting user.
	io.WriteString(promptW, "logout\n")
	if !server.Scan() {
		t.Fatalf("no frame: %v", server.Err())
	}
	req, err = proto.DecodeRequest(server.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.CmdType != "logout" || len(req.CmdArgs) != 1 || req.CmdArgs[0] != cl.ID() {
		t.Fatalf("request = %+v", req)
	}
}

func TestAsynchronousPushIsPrinted(t *testing.T) {
	_, _, out, _, sc := startClient(t)

	if _, err := sc.Write(proto.EncodeText("broadcast to you: user bob has just login.")); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitFor(t, "push output", func() bool {
		return strings.Contains(out.String(), "INFO: broadcast to you: user bob has just login.")
	})
}
