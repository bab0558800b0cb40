// Package filestore owns the upload directory: saving incoming files under
// collision-free names and removing them when documents are deleted.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ErrOutsideRoot indicates a path that does not resolve inside the upload
// directory. Remove refuses such paths so a crafted file_path can never
// reach files elsewhere on disk.
var ErrOutsideRoot = errors.New("path outside upload directory")

// SavedFile describes a stored upload.
type SavedFile struct {
	Filename string // collision-free name on disk
	Path     string // absolute path
	Size     int64
}

// Store writes and removes files in a single upload directory. Writes are
// serialized with an advisory lock so concurrent processes sharing the
// directory cannot interleave partially-written files.
type Store struct {
	dir    string
	lock   *flock.Flock
	logger *slog.Logger
}

// New creates the upload directory if needed and returns a Store rooted there.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &Store{
		dir:    abs,
		lock:   flock.New(filepath.Join(abs, ".write.lock")),
		logger: logger,
	}, nil
}

// Dir returns the absolute upload directory path.
func (s *Store) Dir() string { return s.dir }

// Save streams r to disk under a fresh UUID-prefixed name that keeps the
// original extension. The file is written to a temp name and renamed into
// place, so a partially-written upload is never visible under its final name.
func (s *Store) Save(r io.Reader, originalName string) (SavedFile, error) {
	if err := s.lock.Lock(); err != nil {
		return SavedFile{}, fmt.Errorf("acquiring write lock: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release write lock", "error", err)
		}
	}()

	name := uuid.NewString() + sanitizeExt(originalName)
	final := filepath.Join(s.dir, name)
	tmp := final + ".part"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return SavedFile{}, fmt.Errorf("creating upload file: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return SavedFile{}, fmt.Errorf("writing upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return SavedFile{}, fmt.Errorf("closing upload: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return SavedFile{}, fmt.Errorf("finalizing upload: %w", err)
	}

	s.logger.Debug("saved upload", "filename", name, "size", size)
	return SavedFile{Filename: name, Path: final, Size: size}, nil
}

// Remove deletes a stored file. Paths outside the upload directory are
// rejected; a file that is already gone is not an error.
func (s *Store) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if abs != s.dir && !strings.HasPrefix(abs, s.dir+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if abs == s.dir {
		return fmt.Errorf("%w: refusing to remove the directory itself", ErrOutsideRoot)
	}

	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// sanitizeExt returns a safe lowercase extension for name, or "" when the
// extension is missing or suspicious.
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if ext == "" || ext == "." || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
