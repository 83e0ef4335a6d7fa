package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/command"
	"github.com/avolkov/chatline/internal/metrics"
	"github.com/avolkov/chatline/internal/presence"
	"github.com/avolkov/chatline/internal/proto"
	"github.com/avolkov/chatline/internal/store"
)

// Response strings surfaced to the requesting user. Handler-level failures
// are plain text; they never close the connection or crash the server.
const (
	respLoginSuccess     = "login success"
	respLogoutSuccess    = "logout success"
	respMessageSuccess   = "send message success"
	respBroadcastSuccess = "broadcast success"
	respTargetNotFound   = "target_not_found"
	respUnknownUser      = "username does not exist."
	respWrongPassword    = "password does not match."
	respAlreadyElsewhere = "user already logged in elsewhere."
	respLoginFirst       = "login first"
	respUnblockFirst     = "unblock first"
)

// handlerFunc executes one command. args carry the wire arguments, already
// arity-checked. The returned bool asks the hub to close the connection once
// the response is flushed.
type handlerFunc func(d *Dispatcher, connID, user string, args []string) (string, bool)

// handlers is the closed routing table: command kind to handler, never a
// dynamic lookup on the raw command string.
var handlers = map[command.Kind]handlerFunc{
	command.KindLogin:        (*Dispatcher).login,
	command.KindLogout:       (*Dispatcher).logout,
	command.KindMessage:      (*Dispatcher).message,
	command.KindBroadcast:    (*Dispatcher).broadcast,
	command.KindWhoami:       (*Dispatcher).whoami,
	command.KindWhoelse:      (*Dispatcher).whoelse,
	command.KindWhoelsesince: (*Dispatcher).whoelsesince,
	command.KindBlock:        (*Dispatcher).block,
	command.KindUnblock:      (*Dispatcher).unblock,
}

// Dispatcher decodes admission policy, routes requests to handlers and
// mutates presence state. It runs only on the hub goroutine.
type Dispatcher struct {
	presence   *presence.Store
	authorizer store.Authorizer
	history    store.LoginHistory
	log        *zerolog.Logger
	metrics    *metrics.Metrics

	hub *Hub // set by NewHub
}

// NewDispatcher wires the dispatcher with its collaborators. The authorizer
// and history are constructed at startup and injected; their lifecycle is the
// process lifetime.
func NewDispatcher(auth store.Authorizer, history store.LoginHistory, logger *zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		presence:   presence.NewStore(),
		authorizer: auth,
		history:    history,
		log:        logger,
		metrics:    m,
	}
}

// Dispatch consumes one request and produces the response for the issuing
// connection. Side effects are confined to presence state and to other
// connections' outbound queues; a push is enqueued, never sent inline.
func (d *Dispatcher) Dispatch(connID string, req proto.Request) (string, bool) {
	cmd, ok := command.Lookup(req.CmdType)
	if !ok || cmd.Local {
		d.metrics.RequestsRejected.WithLabelValues("protocol").Inc()
		return fmt.Sprintf("unknown command %q.", req.CmdType), false
	}
	if len(req.CmdArgs) != cmd.WireArgs {
		d.metrics.RequestsRejected.WithLabelValues("protocol").Inc()
		return fmt.Sprintf("wrong argument count for %q.", req.CmdType), false
	}

	if rejected, resp := d.checkStatus(connID, req.User, cmd.Kind); rejected {
		d.metrics.RequestsRejected.WithLabelValues("policy").Inc()
		return resp, false
	}

	d.metrics.RequestsTotal.WithLabelValues(string(cmd.Kind)).Inc()
	return handlers[cmd.Kind](d, connID, req.User, req.CmdArgs)
}

// checkStatus gates a command on the acting user's presence before routing.
// A name absent from the store is treated as offline: offline users may only
// log in or log out, blocked users may only log out.
func (d *Dispatcher) checkStatus(connID, user string, kind command.Kind) (rejected bool, resp string) {
	switch d.presence.Status(user) {
	case presence.Online:
		if kind == command.KindLogin {
			if bound, ok := d.presence.ConnOf(user); ok && bound == connID {
				return true, fmt.Sprintf("you have already logged in with name %s.", user)
			}
			// A different connection claiming a live name falls through to
			// the handler, which refuses the duplicate bind.
		}
	case presence.Offline:
		if kind != command.KindLogin && kind != command.KindLogout {
			return true, respLoginFirst
		}
	case presence.Blocked:
		if kind != command.KindLogout {
			return true, respUnblockFirst
		}
	}
	return false, ""
}

func (d *Dispatcher) login(connID, _ string, args []string) (string, bool) {
	name, password := args[0], args[1]
	// args[2] repeats the connection id the client announced at handshake;
	// the session's own id is authoritative.

	if !d.authorizer.Exists(name) {
		return respUnknownUser, false
	}
	if !d.authorizer.Match(name, password) {
		return respWrongPassword, false
	}
	if !d.presence.Bind(connID, name) {
		// The name is live on another connection; refuse rather than evict.
		return respAlreadyElsewhere, false
	}

	d.presence.SetStatus(name, presence.Online)
	if err := d.history.RecordLogin(name); err != nil {
		d.log.Warn().Err(err).Str("user", name).Msg("failed to record login")
	}
	d.pushToOthers(name, fmt.Sprintf("user %s has just login.", name))
	d.log.Info().Str("user", name).Str("conn_id", connID).Msg("user logged in")
	return respLoginSuccess, false
}

func (d *Dispatcher) logout(connID, user string, _ []string) (string, bool) {
	name, ok := d.presence.Unbind(connID)
	if !ok {
		// Never bound; nothing to tear down but the connection itself.
		d.log.Debug().Str("conn_id", connID).Str("user", user).Msg("logout from unbound connection")
		return respLogoutSuccess, true
	}

	d.presence.SetStatus(name, presence.Offline)
	d.pushToOthers(name, fmt.Sprintf("user %s has just logout.", name))
	d.log.Info().Str("user", name).Str("conn_id", connID).Msg("user logged out")
	return respLogoutSuccess, true
}

func (d *Dispatcher) message(_, user string, args []string) (string, bool) {
	target, text := args[0], args[1]

	targetConn, ok := d.presence.ConnOf(target)
	if !ok {
		d.metrics.RequestsRejected.WithLabelValues("routing").Inc()
		return respTargetNotFound, false
	}
	if d.hub.push(targetConn, fmt.Sprintf("%s send to you: %s", user, text)) {
		d.metrics.PushesTotal.Inc()
	}
	return respMessageSuccess, false
}

func (d *Dispatcher) broadcast(_, user string, args []string) (string, bool) {
	d.pushToOthers(user, args[0])
	return respBroadcastSuccess, false
}

func (d *Dispatcher) whoami(_, user string, _ []string) (string, bool) {
	return fmt.Sprintf("you are %s", user), false
}

func (d *Dispatcher) whoelse(_, user string, _ []string) (string, bool) {
	var names []string
	for _, name := range d.presence.Online() {
		if name != user {
			names = append(names, name)
		}
	}
	return "current users except you are: " + strings.Join(names, " "), false
}

func (d *Dispatcher) whoelsesince(_, user string, args []string) (string, bool) {
	sec, err := strconv.Atoi(args[0])
	if err != nil || sec < 0 {
		d.metrics.RequestsRejected.WithLabelValues("protocol").Inc()
		return "invalid seconds value.", false
	}

	logged, err := d.history.NamesLoggedInSince(time.Duration(sec) * time.Second)
	if err != nil {
		d.log.Error().Err(err).Msg("login history query failed")
		return "login history unavailable.", false
	}

	var names []string
	for _, name := range logged {
		if name != user {
			names = append(names, name)
		}
	}
	return fmt.Sprintf("users since %d seconds ago are: %s", sec, strings.Join(names, " ")), false
}

func (d *Dispatcher) block(_, _ string, args []string) (string, bool) {
	target := args[0]
	if !d.presence.Seen(target) {
		d.metrics.RequestsRejected.WithLabelValues("routing").Inc()
		return respTargetNotFound, false
	}
	d.presence.SetStatus(target, presence.Blocked)
	return fmt.Sprintf("block %s success", target), false
}

func (d *Dispatcher) unblock(_, _ string, args []string) (string, bool) {
	target := args[0]
	if !d.presence.Seen(target) {
		d.metrics.RequestsRejected.WithLabelValues("routing").Inc()
		return respTargetNotFound, false
	}
	d.presence.SetStatus(target, presence.Online)
	return fmt.Sprintf("unblock %s success", target), false
}

// pushToOthers enqueues a broadcast-form push on every bound connection
// except the named sender. Blocked-but-connected users still receive pushes.
func (d *Dispatcher) pushToOthers(sender, text string) {
	line := "broadcast to you: " + text
	for connID, name := range d.presence.BoundConns() {
		if name == sender {
			continue
		}
		if d.hub.push(connID, line) {
			d.metrics.PushesTotal.Inc()
		}
	}
}
