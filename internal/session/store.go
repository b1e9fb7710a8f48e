package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/mentionscan/internal/config"
)

// SessionFileName is the name of the persisted session file.
const SessionFileName = "session.json"

// Store persists the session as a JSON file.
//
// Design decision: a plain file under the XDG state directory rather than
// an OS keyring because:
//  1. The tool runs unattended from the scheduler where no keyring agent
//     is available
//  2. 0600 permissions limit exposure to the owning user, matching how
//     analytics CLIs conventionally store sessions
//  3. The session is short-lived; losing the file just means one extra login
type Store struct {
	// path is the full path of the session file.
	path string
}

// NewStore creates a Store writing to the given directory.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, SessionFileName)}
}

// DefaultStore creates a Store under the XDG state directory.
func DefaultStore() *Store {
	return NewStore(config.XDGStateDir())
}

// Path returns the session file location.
func (st *Store) Path() string {
	return st.path
}

// Load reads the persisted session. A missing or unreadable file returns
// ErrNoSession so callers fall through to a fresh login instead of failing.
func (st *Store) Load() (Session, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		// A corrupted file must not block a new login.
		return Session{}, fmt.Errorf("%w: corrupted session file", ErrNoSession)
	}
	if s.Token == "" {
		return Session{}, fmt.Errorf("%w: empty token", ErrNoSession)
	}
	return s, nil
}

// Save writes the session atomically with owner-only permissions.
// The write goes to a temporary file first so a crash mid-write never
// leaves a truncated session behind.
func (st *Store) Save(s Session) error {
	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(dir, SessionFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restrict session file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}

	if err := os.Rename(tmpName, st.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Clear removes the persisted session. A missing file is not an error.
func (st *Store) Clear() error {
	if err := os.Remove(st.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
