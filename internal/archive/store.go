package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no archive exists under the given name.
var ErrNotFound = errors.New("no archive for name")

// Store is the narrow contract the archiver needs from its persistence
// collaborator: existence check by name, full-content download and
// overwrite-or-create upload. No versioning, no range reads.
type Store interface {
	Exists(name string) (bool, error)
	Download(name string) ([]byte, error)
	Upload(name string, content []byte) error
}

// FSStore keeps one file per archive under a single directory. Uploads write
// a complete replacement through a temp file and rename, so a crashed cycle
// never leaves a partially written archive behind.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FSStore) Download(name string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return content, err
}

func (s *FSStore) Upload(name string, content []byte) error {
	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}
