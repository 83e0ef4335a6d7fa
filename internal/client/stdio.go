package client

import (
	"io"
	"os"
)

var (
	defaultIn  io.Reader = os.Stdin
	defaultOut io.Writer = os.Stdout
)
