// Package file implements the credential and login-history capabilities on
// flat csv files: `name,password` rows for credentials and
// `name,unix-seconds` rows for history.
package file

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/avolkov/chatline/internal/auth"
)

// Store is a file-backed store.Store. Credentials are read once at startup;
// the history file is rewritten in full after every successful login.
type Store struct {
	credentials map[string]string

	mu          sync.Mutex
	historyPath string
	history     map[string]int64 // name -> last login unix seconds
	now         func() time.Time
}

// New loads both files. A missing history file starts empty; a missing
// credential file is an error since nobody could ever log in.
func New(credentialsPath, historyPath string) (*Store, error) {
	creds, err := readCSVPairs(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	s := &Store{
		credentials: creds,
		historyPath: historyPath,
		history:     make(map[string]int64),
		now:         time.Now,
	}
	if err := s.reloadHistory(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return s, nil
}

// Exists implements store.Authorizer.
func (s *Store) Exists(name string) bool {
	_, ok := s.credentials[name]
	return ok
}

// Match implements store.Authorizer.
func (s *Store) Match(name, password string) bool {
	stored, ok := s.credentials[name]
	if !ok {
		return false
	}
	return auth.MatchPassword(stored, password)
}

// RecordLogin stamps the user's login and rewrites the history file.
func (s *Store) RecordLogin(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[name] = s.now().Unix()
	return s.writeBack()
}

// NamesLoggedInSince re-reads the history file and returns users whose last
// login falls within the trailing window.
func (s *Store) NamesLoggedInSince(window time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadHistory(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reload history: %w", err)
	}

	cutoff := s.now().Add(-window).Unix()
	var out []string
	for name, sec := range s.history {
		if sec >= cutoff {
			out = append(out, name)
		}
	}
	return out, nil
}

// Close implements store.Store. Files are only held open during reads and
// rewrites, so there is nothing to release.
func (s *Store) Close() error { return nil }

func (s *Store) reloadHistory() error {
	rows, err := readCSVPairs(s.historyPath)
	if err != nil {
		return err
	}
	history := make(map[string]int64, len(rows))
	for name, raw := range rows {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("history row for %q: %w", name, err)
		}
		history[name] = sec
	}
	s.history = history
	return nil
}

func (s *Store) writeBack() error {
	f, err := os.Create(s.historyPath)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	for name, sec := range s.history {
		if err := w.Write([]string{name, strconv.FormatInt(sec, 10)}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readCSVPairs(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row[0]] = row[1]
	}
	return out, nil
}
