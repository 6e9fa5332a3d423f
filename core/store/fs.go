package store

import (
	"errors"
	"io/fs"
	"net/url"
	"path/filepath"

	"github.com/spf13/afero"
)

// FsStore keeps one file per key in a directory.
type FsStore struct {
	fs  afero.Fs
	dir string
}

var _ Store = (*FsStore)(nil)

// NewFsStore creates a store in dir, creating the directory if needed.
func NewFsStore(fsys afero.Fs, dir string) (*FsStore, error) {
	if err := fsys.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FsStore{fs: fsys, dir: dir}, nil
}

func (s *FsStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Get implements Store.
func (s *FsStore) Get(key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put implements Store. The data is written to a temporary file first so a
// crash never leaves half a snapshot behind.
func (s *FsStore) Put(key string, data []byte) error {
	dest := s.path(key)
	tmp := dest + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0600); err != nil {
		return err
	}
	return s.fs.Rename(tmp, dest)
}

// Delete implements Store.
func (s *FsStore) Delete(key string) error {
	err := s.fs.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Close implements Store.
func (s *FsStore) Close() error {
	return nil
}
