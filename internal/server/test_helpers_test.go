package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/metrics"
	"github.com/avolkov/chatline/internal/proto"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// fakeStore is an in-memory authorizer plus login history.
type fakeStore struct {
	creds  map[string]string
	logins map[string]time.Time
	now    func() time.Time
}

func newFakeStore(creds map[string]string) *fakeStore {
	return &fakeStore{
		creds:  creds,
		logins: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (f *fakeStore) Exists(name string) bool {
	_, ok := f.creds[name]
	return ok
}

func (f *fakeStore) Match(name, password string) bool {
	return f.creds[name] == password
}

func (f *fakeStore) RecordLogin(name string) error {
	f.logins[name] = f.now()
	return nil
}

func (f *fakeStore) NamesLoggedInSince(window time.Duration) ([]string, error) {
	cutoff := f.now().Add(-window)
	var out []string
	for name, at := range f.logins {
		if !at.Before(cutoff) {
			out = append(out, name)
		}
	}
	return out, nil
}

type testEnv struct {
	hub   *Hub
	store *fakeStore
}

func newTestEnv(t *testing.T, creds map[string]string) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fs := newFakeStore(creds)
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(fs, fs, testLogger(), m)
	hub := NewHub(d, 50*time.Millisecond, testLogger(), m)
	go hub.Run(ctx)

	return &testEnv{hub: hub, store: fs}
}

// peer is the client half of a piped connection registered with the hub.
type peer struct {
	id      string
	conn    *Conn
	nc      net.Conn
	scanner *bufio.Scanner
	env     *testEnv
}

func (e *testEnv) connect(t *testing.T, id string) *peer {
	t.Helper()

	clientSide, serverSide := net.Pipe()
	conn := newConn(id, serverSide)
	e.hub.Register(conn)
	go conn.writePump(testLogger())
	t.Cleanup(func() { clientSide.Close() })

	return &peer{
		id:      id,
		conn:    conn,
		nc:      clientSide,
		scanner: bufio.NewScanner(clientSide),
		env:     e,
	}
}

// send frames a request and feeds it to the hub the way the read pump would.
func (p *peer) send(t *testing.T, user, cmdType string, args ...string) {
	t.Helper()

	if args == nil {
		args = []string{}
	}
	frame, err := proto.EncodeRequest(proto.Request{User: user, CmdType: cmdType, CmdArgs: args})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	p.env.hub.Inbound(p.conn, strings.TrimSuffix(string(frame), "\n"))
}

// expectLine reads the next response or push from the peer's stream.
func (p *peer) expectLine(t *testing.T) string {
	t.Helper()

	p.nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if !p.scanner.Scan() {
		t.Fatalf("no line from server: %v", p.scanner.Err())
	}
	return p.scanner.Text()
}

// expect asserts the exact next line on the peer's stream.
func (p *peer) expect(t *testing.T, want string) {
	t.Helper()

	if got := p.expectLine(t); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// login performs a full login exchange and asserts success.
func (p *peer) login(t *testing.T, name, password string) {
	t.Helper()

	p.send(t, name, "login", name, password, p.id)
	p.expect(t, "login success")
}

func (e *testEnv) snapshot(t *testing.T) Snapshot {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := e.hub.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}
