// Package storage provides per-user upload storage. Isolation is by
// sanitized user id: each user gets a single flat directory and no caller
// can escape it with path tricks.
package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

const (
	// AnonymousUser is used when no user id is supplied.
	AnonymousUser = "anonymous"

	maxUserIDLen = 100
)

var userIDPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeUserID reduces an arbitrary identifier to alphanumeric, dash and
// underscore characters, capped at 100, defaulting to "anonymous".
func SanitizeUserID(input string) string {
	cleaned := userIDPattern.ReplaceAllString(input, "")
	if len(cleaned) > maxUserIDLen {
		cleaned = cleaned[:maxUserIDLen]
	}
	if cleaned == "" {
		return AnonymousUser
	}
	return cleaned
}

// Store hands out user-scoped storage. The backend (local disk here) is
// swappable behind this interface.
type Store interface {
	ForUser(userID string) (UserStore, error)
	// Users lists the user ids that currently have an upload directory.
	Users() ([]string, error)
}

// UserStore is a capability over exactly one user's uploads. It is flat:
// implementations never create subdirectories.
type UserStore interface {
	UserID() string
	Dir() string
	Save(name string, data []byte) error
	SaveStream(name string, r io.Reader) (int64, error)
	// List returns the names of regular non-hidden files, unordered.
	List() ([]string, error)
	Stat(name string) (fs.FileInfo, error)
	Read(name string) ([]byte, error)
}

// LocalStore stores uploads under baseDir/<sanitized-user-id>/.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{baseDir: baseDir}
}

func (s *LocalStore) ForUser(userID string) (UserStore, error) {
	id := SanitizeUserID(userID)
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}
	return &localUserStore{userID: id, dir: dir}, nil
}

func (s *LocalStore) Users() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var users []string
	for _, e := range entries {
		if e.IsDir() {
			users = append(users, e.Name())
		}
	}
	sort.Strings(users)
	return users, nil
}

type localUserStore struct {
	userID string
	dir    string
}

func (u *localUserStore) UserID() string { return u.userID }
func (u *localUserStore) Dir() string    { return u.dir }

func (u *localUserStore) Save(name string, data []byte) error {
	target, err := u.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

func (u *localUserStore) SaveStream(name string, r io.Reader) (int64, error) {
	target, err := u.resolve(name)
	if err != nil {
		return 0, err
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	return io.Copy(dst, r)
}

func (u *localUserStore) List() ([]string, error) {
	entries, err := os.ReadDir(u.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if len(e.Name()) > 0 && e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (u *localUserStore) Stat(name string) (fs.FileInfo, error) {
	target, err := u.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Stat(target)
}

func (u *localUserStore) Read(name string) ([]byte, error) {
	target, err := u.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(target)
}

// resolve rejects names that would leave the user directory.
func (u *localUserStore) resolve(name string) (string, error) {
	base := filepath.Base(name)
	if base != name || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return filepath.Join(u.dir, base), nil
}
