// Package command declares the closed set of chat commands and validates
// user input against it before a request is ever built or dispatched.
package command

import "strings"

// Kind names a chat command. The set is closed: routing is always a table
// lookup, never a dynamic dispatch on the raw string.
type Kind string

const (
	KindLogin        Kind = "login"
	KindLogout       Kind = "logout"
	KindMessage      Kind = "message"
	KindBroadcast    Kind = "broadcast"
	KindWhoami       Kind = "whoami"
	KindWhoelse      Kind = "whoelse"
	KindWhoelsesince Kind = "whoelsesince"
	KindBlock        Kind = "block"
	KindUnblock      Kind = "unblock"
	KindHelp         Kind = "help"
)

// Command describes one entry of the command table.
type Command struct {
	Kind  Kind
	Usage string
	// NArgs is the argument count the user types at the prompt.
	NArgs int
	// WireArgs is the argument count on the wire. login and logout carry the
	// client's connection id as a trailing argument, so theirs differ.
	WireArgs int
	// Greedy commands swallow the remaining prompt tokens into their last
	// argument, so multi-word text survives tokenization.
	Greedy bool
	// Local commands are answered by the client and never reach the server.
	Local bool
}

var table = []Command{
	{Kind: KindLogin, Usage: "login <username> <password>", NArgs: 2, WireArgs: 3},
	{Kind: KindLogout, Usage: "logout", NArgs: 0, WireArgs: 1},
	{Kind: KindMessage, Usage: "message <username> <message>", NArgs: 2, WireArgs: 2, Greedy: true},
	{Kind: KindBroadcast, Usage: "broadcast <message>", NArgs: 1, WireArgs: 1, Greedy: true},
	{Kind: KindWhoami, Usage: "whoami", NArgs: 0, WireArgs: 0},
	{Kind: KindWhoelse, Usage: "whoelse", NArgs: 0, WireArgs: 0},
	{Kind: KindWhoelsesince, Usage: "whoelsesince <seconds>", NArgs: 1, WireArgs: 1},
	{Kind: KindBlock, Usage: "block <username>", NArgs: 1, WireArgs: 1},
	{Kind: KindUnblock, Usage: "unblock <username>", NArgs: 1, WireArgs: 1},
	{Kind: KindHelp, Usage: "help", NArgs: 0, WireArgs: 0, Local: true},
}

var byKind = func() map[Kind]Command {
	m := make(map[Kind]Command, len(table))
	for _, c := range table {
		m[c.Kind] = c
	}
	return m
}()

// Lookup resolves a command by its wire name.
func Lookup(name string) (Command, bool) {
	c, ok := byKind[Kind(name)]
	return c, ok
}

// All returns the command table in declaration order.
func All() []Command {
	out := make([]Command, len(table))
	copy(out, table)
	return out
}

// HelpText renders the usage listing shown by the local help command.
func HelpText() string {
	var b strings.Builder
	b.WriteString("===HELP===")
	for _, c := range table {
		b.WriteString("\n")
		b.WriteString(c.Usage)
	}
	return b.String()
}

const (
	errName = "command name error.\ntype \"help\" for help."
	errArgs = "command arguments error.\ntype \"help\" for help."
)

// Result is the outcome of parsing one prompt line.
type Result struct {
	// Local output, answered without touching the network. Set for help,
	// unknown commands and arity mismatches.
	Local  bool
	Output string

	Kind Kind
	Args []string
}

// Parse tokenizes one prompt line and validates it against the table.
// Remote commands come back as Kind plus prompt-level arguments; the caller
// appends the connection id where the wire format requires it.
func Parse(line string) Result {
	tokens := strings.Fields(strings.TrimSpace(line))
	if len(tokens) == 0 {
		return Result{Local: true, Output: errName}
	}

	cmd, ok := Lookup(tokens[0])
	if !ok {
		return Result{Local: true, Output: errName}
	}

	args := tokens[1:]
	if cmd.Greedy {
		if len(args) < cmd.NArgs {
			return Result{Local: true, Output: errArgs}
		}
		// Collapse the trailing tokens into the final argument.
		head := args[:cmd.NArgs-1]
		tail := strings.Join(args[cmd.NArgs-1:], " ")
		args = append(append([]string{}, head...), tail)
	} else if len(args) != cmd.NArgs {
		return Result{Local: true, Output: errArgs}
	}

	if cmd.Kind == KindHelp {
		return Result{Local: true, Output: HelpText()}
	}
	return Result{Kind: cmd.Kind, Args: args}
}
