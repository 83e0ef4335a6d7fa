// Package presence tracks per-user status and the identity-to-connection
// bindings. The store is confined to the hub goroutine: every mutation happens
// inside a dispatch call, so it carries no lock by design.
package presence

// Status is a user's presence state. Names never seen read as offline.
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
	Blocked Status = "blocked"
)

// Store maps user names to status and keeps the connID<->name bindings
// consistent. A name has at most one bound connection at any time.
type Store struct {
	status     map[string]Status
	nameByConn map[string]string
	connByName map[string]string
}

func NewStore() *Store {
	return &Store{
		status:     make(map[string]Status),
		nameByConn: make(map[string]string),
		connByName: make(map[string]string),
	}
}

// Status returns the user's presence; unknown names are offline.
func (s *Store) Status(name string) Status {
	if st, ok := s.status[name]; ok {
		return st
	}
	return Offline
}

// Seen reports whether the name has ever appeared in the store.
func (s *Store) Seen(name string) bool {
	_, ok := s.status[name]
	return ok
}

// SetStatus records the user's presence. The name persists afterwards even
// when the status goes back to offline.
func (s *Store) SetStatus(name string, st Status) {
	s.status[name] = st
}

// Bind associates a connection with a name. It reports false when the name is
// already bound to a different connection; the caller decides whether to
// refuse or evict.
func (s *Store) Bind(connID, name string) bool {
	if existing, ok := s.connByName[name]; ok && existing != connID {
		return false
	}
	s.nameByConn[connID] = name
	s.connByName[name] = connID
	return true
}

// Unbind drops the binding for a connection, if any, and returns the name
// that was bound. Safe to call for connections that never logged in.
func (s *Store) Unbind(connID string) (string, bool) {
	name, ok := s.nameByConn[connID]
	if !ok {
		return "", false
	}
	delete(s.nameByConn, connID)
	delete(s.connByName, name)
	return name, true
}

// NameOf returns the user bound to a connection.
func (s *Store) NameOf(connID string) (string, bool) {
	name, ok := s.nameByConn[connID]
	return name, ok
}

// ConnOf returns the connection bound to a user.
func (s *Store) ConnOf(name string) (string, bool) {
	connID, ok := s.connByName[name]
	return connID, ok
}

// Online lists names whose status is online, in no particular order.
func (s *Store) Online() []string {
	var out []string
	for name, st := range s.status {
		if st == Online {
			out = append(out, name)
		}
	}
	return out
}

// BoundConns lists every connection id with a logged-in user. Broadcast
// targets come from here: blocked users keep their connection and still
// receive pushes, matching block's "no traffic out, traffic in stays" policy.
func (s *Store) BoundConns() map[string]string {
	out := make(map[string]string, len(s.nameByConn))
	for connID, name := range s.nameByConn {
		out[connID] = name
	}
	return out
}

// Snapshot is a point-in-time copy of the presence table.
func (s *Store) Snapshot() map[string]Status {
	out := make(map[string]Status, len(s.status))
	for name, st := range s.status {
		out[name] = st
	}
	return out
}
