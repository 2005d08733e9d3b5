package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SavedSession is the credential state persisted between runs so an
// admin console can pick up where it left off.
type SavedSession struct {
	Token string
}

// LoadSession restores a previously saved session from path. The
// contract is load-or-absent: ok is false when no session file exists,
// and err is non-nil only for a real read failure. Nothing happens as a
// side effect of construction; callers restore explicitly at startup.
func LoadSession(path string) (sess SavedSession, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SavedSession{}, false, nil
		}
		return SavedSession{}, false, fmt.Errorf("failed to read session file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return SavedSession{}, false, nil
	}
	return SavedSession{Token: token}, true, nil
}

// SaveSession persists the session for a later LoadSession.
func SaveSession(path string, sess SavedSession) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(sess.Token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// ClearSession removes the saved session. Removing an absent file is
// not an error.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
