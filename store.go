package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore is the durable key-value file store backing config.json and
// settings.json.  Names are flat file names.  Mount must be called before the
// other methods and may be called repeatedly.
type FileStore interface {
	Mount() error
	Exists(name string) bool
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	Remove(name string) error
}

// dirStore keeps each record as a file inside a single directory.
type dirStore struct {
	dir string
}

// NewDirStore returns a FileStore rooted at dir.
func NewDirStore(dir string) FileStore {
	return &dirStore{dir: dir}
}

// Mount creates the data directory if needed.
func (d *dirStore) Mount() error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("mount %s: %w", d.dir, err)
	}
	return nil
}

func (d *dirStore) path(name string) string {
	return filepath.Join(d.dir, filepath.Base(name))
}

func (d *dirStore) Exists(name string) bool {
	_, err := os.Stat(d.path(name))
	return err == nil
}

func (d *dirStore) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(d.path(name))
}

// WriteFile replaces name with data.  The bytes go to a temporary file first
// and are renamed over the old record, so a crash never leaves a half-written
// file behind.
func (d *dirStore) WriteFile(name string, data []byte) error {
	p := d.path(name)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Remove deletes name.  Removing a missing file is not an error.
func (d *dirStore) Remove(name string) error {
	err := os.Remove(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
