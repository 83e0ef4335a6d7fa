package proto

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is the envelope for commands coming from the client.
// It is serialized as one JSON object per newline-terminated frame.
type Request struct {
	User    string   `json:"user"`
	CmdType string   `json:"cmd_type"`
	CmdArgs []string `json:"cmd_args"`
}

// EncodeRequest serializes a request into a single newline-terminated frame.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses one frame produced by EncodeRequest.
func DecodeRequest(frame []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// EncodeText frames a response or push as newline-terminated plain text.
// Responses are free-form strings and are never parsed by the client.
func EncodeText(s string) []byte {
	return append([]byte(s), '\n')
}

// ReadFrame returns the next newline-delimited frame without the trailing
// newline. The scanner must wrap the connection's reader.
func ReadFrame(scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrPeerClosed
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}
