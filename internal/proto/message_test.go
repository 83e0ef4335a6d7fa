package proto

import (
	"bufio"
	"reflect"
	"strings"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "message with args",
			req:  Request{User: "alice", CmdType: "message", CmdArgs: []string{"bob", "hello"}},
		},
		{
			name: "anonymous login",
			req:  Request{CmdType: "login", CmdArgs: []string{"alice", "pw", "conn-1"}},
		},
		{
			name: "no args",
			req:  Request{User: "bob", CmdType: "whoami", CmdArgs: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeRequest(tt.req)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if frame[len(frame)-1] != '\n' {
				t.Fatalf("frame not newline-terminated: %q", frame)
			}

			got, err := DecodeRequest(frame[:len(frame)-1])
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.req) {
				t.Fatalf("round trip mismatch: got %+v want %+v", got, tt.req)
			}
		})
	}
}

func TestDecodeRequestRejectsGarbage(t *testing.T) {
	if _, err := DecodeRequest([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestReadFrameSplitsConcatenatedFrames(t *testing.T) {
	// Two frames arriving in one TCP read must still decode as two requests.
	a, _ := EncodeRequest(Request{User: "a", CmdType: "whoami", CmdArgs: []string{}})
	b, _ := EncodeRequest(Request{User: "b", CmdType: "whoelse", CmdArgs: []string{}})
	scanner := bufio.NewScanner(strings.NewReader(string(a) + string(b)))

	first, err := ReadFrame(scanner)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	second, err := ReadFrame(scanner)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}

	reqA, err := DecodeRequest([]byte(first))
	if err != nil || reqA.User != "a" {
		t.Fatalf("first decode: %+v err=%v", reqA, err)
	}
	reqB, err := DecodeRequest([]byte(second))
	if err != nil || reqB.User != "b" {
		t.Fatalf("second decode: %+v err=%v", reqB, err)
	}

	if _, err := ReadFrame(scanner); err != ErrPeerClosed {
		t.Fatalf("expected ErrPeerClosed at EOF, got %v", err)
	}
}
