// Package store declares the two narrow capabilities the chat server needs
// from persistent state: credential checks and login history. Backends are
// constructed at startup and injected into the dispatcher; there are no
// package-level singletons.
package store

import "time"

// Authorizer answers credential questions for login.
type Authorizer interface {
	// Exists reports whether the name has a credential record.
	Exists(name string) bool
	// Match reports whether the password matches the stored credential.
	Match(name, password string) bool
}

// LoginHistory records successful logins and answers trailing-window queries.
type LoginHistory interface {
	// RecordLogin stamps the user's latest login at the current time.
	RecordLogin(name string) error
	// NamesLoggedInSince returns users whose last login falls within the
	// trailing window. Order is unspecified.
	NamesLoggedInSince(window time.Duration) ([]string, error)
}

// Store bundles both capabilities behind one closable backend.
type Store interface {
	Authorizer
	LoginHistory
	Close() error
}
