// Package fsstore provides durable, atomic filesystem primitives for the
// coordination core. All cross-process correctness in this module rests on
// the rename and link guarantees implemented here, not on in-memory locking.
package fsstore

import (
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/agentcoord/internal/errors"
)

// WriteAtomic writes data to path so that a concurrent reader observes either
// the previous content or the new content, never a partial file. The data is
// written to a temp sibling in the same directory and renamed into place.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.FileWriteError(path, fmt.Errorf("create directory %s: %w", dir, err))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.FileWriteError(path, fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.FileWriteError(path, fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.FileWriteError(path, fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.FileWriteError(path, fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return errors.FileWriteError(path, fmt.Errorf("chmod temp file: %w", err))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.FileWriteError(path, fmt.Errorf("rename into place: %w", err))
	}
	return nil
}

// Read returns the full content of path.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.FileReadError(path, err)
	}
	return data, nil
}

// Exists reports whether path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.FileReadError(path, err)
}

// AppendLine appends line plus a trailing newline to path using a single
// O_APPEND write. POSIX guarantees the write is not interleaved with other
// appenders for writes below PIPE_BUF-scale sizes; history entries stay well
// under that.
func AppendLine(path string, line []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.FileWriteError(path, fmt.Errorf("create directory %s: %w", dir, err))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return errors.FileWriteError(path, fmt.Errorf("open for append: %w", err))
	}
	defer f.Close()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return errors.FileWriteError(path, fmt.Errorf("append: %w", err))
	}
	return f.Sync()
}

// PublishExclusive atomically publishes the prepared file at tmpPath to
// dstPath, failing if dstPath already exists. The temp file is removed on
// both success and failure. os.Link is the create-or-fail primitive: two
// racing publishers cannot both succeed, and the loser receives ErrExist.
func PublishExclusive(tmpPath, dstPath string) error {
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, dstPath); err != nil {
		if os.IsExist(err) {
			return err
		}
		return errors.FileWriteError(dstPath, fmt.Errorf("link into place: %w", err))
	}
	return nil
}

// IsExist reports whether err signals that the destination already existed in
// a PublishExclusive race.
func IsExist(err error) bool {
	return os.IsExist(err)
}
