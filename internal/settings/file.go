package settings

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// FileStore keeps the record in a 0600 JSON file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(_ context.Context) (Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Wrap(err, "read settings")
	}
	if err := checkFile(s.Path); err != nil {
		return Record{}, err
	}
	return Decode(data)
}

// Save writes through a temp file so a crash never leaves a torn record.
func (s *FileStore) Save(_ context.Context, record Record) error {
	data, err := Encode(record)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir settings dir")
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp settings")
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod settings")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write settings")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync settings")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close settings")
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return errors.Wrap(err, "replace settings")
	}
	return nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "stat settings")
	}
	if info.Mode().Perm() != 0o600 {
		return errors.Errorf("settings file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return errors.Errorf("settings file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}
