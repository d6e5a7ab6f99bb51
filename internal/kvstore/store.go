// Package kvstore implements the profile trail: a file-backed store of
// single-line values, one file per key, kept on the machine being tuned.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/javanstorm/perftune/internal/machine"
)

// Store errors
var (
	ErrMalformedValue = errors.New("kvstore: value must be a single line")
	ErrAlreadySet     = errors.New("kvstore: key already set")
	ErrInvalidKey     = errors.New("kvstore: invalid key")
)

// LastKey is removed after every other key on Clear.
const LastKey = "set_profile"

// Store is a per-profile key-value store rooted at a directory.
// It is not safe for concurrent use.
type Store struct {
	fs   machine.FS
	root string
}

// New creates a store for the files under root.
func New(fsys machine.FS, root string) *Store {
	return &Store{fs: fsys, root: root}
}

// Root returns the storage directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the file backing key.
func (s *Store) Path(key string) string {
	return path.Join(s.root, key)
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, "/\n") || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Lookup returns the value of key and whether it is set.
func (s *Store) Lookup(ctx context.Context, key string) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}
	content, err := s.fs.ReadFile(ctx, s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return strings.TrimSuffix(content, "\n"), true, nil
}

// Get returns the value of key, or def when the key is not set.
func (s *Store) Get(ctx context.Context, key, def string) (string, error) {
	value, ok, err := s.Lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return value, nil
}

// Has reports whether key is set.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	ok, err := s.fs.Exists(ctx, s.Path(key))
	if err != nil {
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	return ok, nil
}

// Set stores value under key. Without overwrite an existing key fails
// with ErrAlreadySet.
func (s *Store) Set(ctx context.Context, key, value string, overwrite bool) error {
	if err := validKey(key); err != nil {
		return err
	}
	if strings.Contains(value, "\n") {
		return fmt.Errorf("set %s: %w", key, ErrMalformedValue)
	}
	if !overwrite {
		exists, err := s.Has(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("set %s: %w", key, ErrAlreadySet)
		}
	}
	if err := s.fs.MkdirAll(ctx, s.root); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := s.fs.WriteFile(ctx, s.Path(key), value+"\n"); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Append adds value as a new line of key, creating the key when absent.
func (s *Store) Append(ctx context.Context, key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if strings.Contains(value, "\n") {
		return fmt.Errorf("append %s: %w", key, ErrMalformedValue)
	}
	if err := s.fs.MkdirAll(ctx, s.root); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	if err := s.fs.AppendFile(ctx, s.Path(key), value+"\n"); err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

// Lines returns the lines of key, or nil when the key is not set.
func (s *Store) Lines(ctx context.Context, key string) ([]string, error) {
	value, ok, err := s.Lookup(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return machine.Lines(value), nil
}

// Remove deletes key. A missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.fs.Remove(ctx, s.Path(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys lists the entries under the storage root, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	names, err := s.fs.ReadDir(ctx, s.root)
	if err != nil {
		return nil, fmt.Errorf("list store: %w", err)
	}
	return names, nil
}

// Clear removes every entry, LastKey last, so an interrupted Clear still
// reads as applied.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	last := false
	for _, key := range keys {
		if key == LastKey {
			last = true
			continue
		}
		if err := s.fs.Remove(ctx, s.Path(key)); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	if last {
		return s.Remove(ctx, LastKey)
	}
	return nil
}
