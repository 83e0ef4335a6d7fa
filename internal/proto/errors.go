package proto

import "errors"

// ErrPeerClosed reports that the remote side shut down its end of the stream.
var ErrPeerClosed = errors.New("peer closed connection")
