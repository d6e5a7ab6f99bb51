package machine

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FS is the file access needed on a target machine.
// Missing files are reported with an error wrapping fs.ErrNotExist.
type FS interface {
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	AppendFile(ctx context.Context, path, content string) error
	// Remove deletes path recursively; a missing path is not an error.
	Remove(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	MkdirAll(ctx context.Context, path string) error
	// ReadDir lists entry names sorted; a missing directory lists nothing.
	ReadDir(ctx context.Context, path string) ([]string, error)
	Rename(ctx context.Context, oldPath, newPath string) error
}

// SessionFS accesses files on the machine behind a Session using
// plain POSIX shell utilities.
type SessionFS struct {
	s Session
}

// NewSessionFS creates an FS over s.
func NewSessionFS(s Session) *SessionFS {
	return &SessionFS{s: s}
}

// ReadFile returns the file content byte for byte. The content travels
// base64 encoded since command output loses trailing newlines.
func (f *SessionFS) ReadFile(ctx context.Context, path string) (string, error) {
	command := "base64 < " + Quote(path)
	status, out, err := f.s.RunCapture(ctx, command)
	if err != nil {
		return "", err
	}
	if status == 0 {
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(out), ""))
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", path, err)
		}
		return string(data), nil
	}
	exists, err := f.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	return "", &CommandError{Command: command, Status: status, Output: out}
}

// WriteFile replaces the file content.
func (f *SessionFS) WriteFile(ctx context.Context, path, content string) error {
	return RunChecked(ctx, f.s, Quote("printf", "%s", content)+" > "+Quote(path))
}

// AppendFile appends content, creating the file when missing.
func (f *SessionFS) AppendFile(ctx context.Context, path, content string) error {
	return RunChecked(ctx, f.s, Quote("printf", "%s", content)+" >> "+Quote(path))
}

// Remove deletes path recursively.
func (f *SessionFS) Remove(ctx context.Context, path string) error {
	return RunChecked(ctx, f.s, Quote("rm", "-rf", "--", path))
}

// Exists reports whether path exists.
func (f *SessionFS) Exists(ctx context.Context, path string) (bool, error) {
	command := Quote("test", "-e", path)
	status, err := f.s.Run(ctx, command)
	if err != nil {
		return false, err
	}
	switch status {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, &CommandError{Command: command, Status: status}
	}
}

// MkdirAll creates path and any missing parents.
func (f *SessionFS) MkdirAll(ctx context.Context, path string) error {
	return RunChecked(ctx, f.s, Quote("mkdir", "-p", "--", path))
}

// ReadDir lists the entries of path.
func (f *SessionFS) ReadDir(ctx context.Context, path string) ([]string, error) {
	command := Quote("ls", "-1A", "--", path)
	status, out, err := f.s.RunCapture(ctx, command)
	if err != nil {
		return nil, err
	}
	if status != 0 {
		exists, err := f.Exists(ctx, path)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, nil
		}
		return nil, &CommandError{Command: command, Status: status, Output: out}
	}
	names := Lines(out)
	sort.Strings(names)
	return names, nil
}

// Rename moves oldPath to newPath.
func (f *SessionFS) Rename(ctx context.Context, oldPath, newPath string) error {
	return RunChecked(ctx, f.s, Quote("mv", "-f", "--", oldPath, newPath))
}

// AferoFS adapts an afero filesystem. It backs local runs and tests.
type AferoFS struct {
	fs afero.Fs
}

// NewAferoFS wraps fsys.
func NewAferoFS(fsys afero.Fs) *AferoFS {
	return &AferoFS{fs: fsys}
}

// ReadFile returns the file content.
func (f *AferoFS) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile replaces the file content.
func (f *AferoFS) WriteFile(ctx context.Context, path, content string) error {
	return afero.WriteFile(f.fs, path, []byte(content), 0644)
}

// AppendFile appends content, creating the file when missing.
func (f *AferoFS) AppendFile(ctx context.Context, path, content string) error {
	file, err := f.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		return fmt.Errorf("append %s: %w", path, err)
	}
	return file.Close()
}

// Remove deletes path recursively.
func (f *AferoFS) Remove(ctx context.Context, path string) error {
	return f.fs.RemoveAll(path)
}

// Exists reports whether path exists.
func (f *AferoFS) Exists(ctx context.Context, path string) (bool, error) {
	return afero.Exists(f.fs, path)
}

// MkdirAll creates path and any missing parents.
func (f *AferoFS) MkdirAll(ctx context.Context, path string) error {
	return f.fs.MkdirAll(path, 0755)
}

// ReadDir lists the entries of path.
func (f *AferoFS) ReadDir(ctx context.Context, path string) ([]string, error) {
	infos, err := afero.ReadDir(f.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Rename moves oldPath to newPath.
func (f *AferoFS) Rename(ctx context.Context, oldPath, newPath string) error {
	return f.fs.Rename(oldPath, newPath)
}
