package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"actionboard/internal/domain"
)

const (
	activitiesFile = "activities.json"
	registryFile   = "responsibles.json"
)

// FileStore keeps the collection and the registry as JSON documents in a
// data directory. Saves write a temporary file in the same directory and
// rename it over the target, so readers never observe a partial write.
type FileStore struct {
	Dir    string
	Logger *log.Logger
}

func NewFileStore(dir string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{Dir: dir, Logger: logger}
}

func (s *FileStore) LoadActivities(ctx context.Context) (domain.Collection, error) {
	var c domain.Collection
	ok, err := s.readJSON(activitiesFile, &c)
	if err != nil {
		return domain.Collection{}, err
	}
	if !ok {
		return EmptyCollection(), nil
	}
	if c.Activities == nil {
		c.Activities = []domain.Activity{}
	}
	if c.NextID < 1 {
		c.NextID = 1
	}
	return c, nil
}

func (s *FileStore) SaveActivities(ctx context.Context, c domain.Collection) error {
	return s.writeJSON(activitiesFile, c)
}

func (s *FileStore) LoadRegistry(ctx context.Context) (domain.Registry, error) {
	var r domain.Registry
	ok, err := s.readJSON(registryFile, &r)
	if err != nil {
		return domain.Registry{}, err
	}
	if !ok {
		return domain.Registry{}, nil
	}
	return r, nil
}

func (s *FileStore) SaveRegistry(ctx context.Context, r domain.Registry) error {
	return s.writeJSON(registryFile, r)
}

// readJSON reports whether usable content was found. A missing file is
// not an error; a corrupt file is logged and treated as missing so a
// damaged deployment degrades to an empty dataset instead of refusing
// every request.
func (s *FileStore) readJSON(name string, v any) (bool, error) {
	path := filepath.Join(s.Dir, name)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, domain.StorageError{Op: "read " + name, Err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.Logger.Printf("store: %s is corrupt, starting from empty: %v", path, err)
		return false, nil
	}
	return true, nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return domain.StorageError{Op: "mkdir", Err: err}
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.StorageError{Op: "encode " + name, Err: err}
	}
	path := filepath.Join(s.Dir, name)
	tmp, err := os.CreateTemp(s.Dir, name+".*")
	if err != nil {
		return domain.StorageError{Op: "write " + name, Err: err}
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return domain.StorageError{Op: "write " + name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return domain.StorageError{Op: "write " + name, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return domain.StorageError{Op: "rename " + name, Err: fmt.Errorf("%s: %w", tmp.Name(), err)}
	}
	return nil
}
