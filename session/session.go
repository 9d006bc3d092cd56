// Package session implements the on-disk per-run directory that every
// build (and every async sub-session it spawns) executes inside: a
// workspace for recipe commands, a logfile for captured output, and a
// config.json recording the session's lifecycle state.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sciagent/sci-agent/internal/tempfile"
)

// ErrNotFound is returned by Load when no config.json exists for the given
// id.
var ErrNotFound = errors.New("session: not found")

// State is the session lifecycle state. It only ever advances.
type State string

const (
	StateCreated  State = "created"
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// Session is one execution of a recipe, or a single async step, on one
// agent.
type Session struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	Workspace    string `json:"workspace"`
	Logfile      string `json:"logfile"`
	State        State  `json:"state"`
	Created      int64  `json:"created"`
	Ended        int64  `json:"ended"`
	ReturnCode   int    `json:"return_code"`
	ReturnValue  any    `json:"return_value"`
}

// Store roots all session directories under a single path, replacing the
// original's process-global Session.root_path with an explicit value
// threaded through the Agent and Bootstrap.
type Store struct {
	Root string
}

// NewStore returns a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.Root, "sessions", id)
}

// Create makes the workspace directory for a new session, writes its
// initial config.json, and returns it.
func (s *Store) Create(id string) (*Session, error) {
	path := s.path(id)
	sess := &Session{
		ID:        id,
		Path:      path,
		Workspace: filepath.Join(path, "workspace"),
		Logfile:   filepath.Join(path, "output.log"),
		State:     StateCreated,
		Created:   nowUnix(),
	}
	if err := os.MkdirAll(sess.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("session: create workspace for %q: %w", id, err)
	}
	if err := sess.Save(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Load restores a session from its config.json.
func (s *Store) Load(id string) (*Session, error) {
	path := s.path(id)
	b, err := os.ReadFile(filepath.Join(path, "config.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %q: %w", id, err)
	}
	sess := &Session{}
	if err := json.Unmarshal(b, sess); err != nil {
		return nil, fmt.Errorf("session: decode %q: %w", id, err)
	}
	return sess, nil
}

// Save atomically (write-then-rename) persists the session's current state
// to config.json, the same pattern used elsewhere in the module for
// crash-safe on-disk state.
func (sess *Session) Save() error {
	f, err := tempfile.New(
		tempfile.WithDir(sess.Path),
		tempfile.WithName("config.json"),
		tempfile.WithPerms(0o644),
	)
	if err != nil {
		return fmt.Errorf("session: create temp config for %q: %w", sess.ID, err)
	}
	tmpName := f.Name()

	enc := json.NewEncoder(f)
	if err := enc.Encode(sess); err != nil {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session: encode config for %q: %w", sess.ID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: close temp config for %q: %w", sess.ID, err)
	}

	if err := os.Rename(tmpName, filepath.Join(sess.Path, "config.json")); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: rename config for %q: %w", sess.ID, err)
	}
	return nil
}

// Finish marks the session finished with the given return code and value.
func (sess *Session) Finish(returnCode int, returnValue any) {
	sess.State = StateFinished
	sess.ReturnCode = returnCode
	sess.ReturnValue = returnValue
	sess.Ended = nowUnix()
}
