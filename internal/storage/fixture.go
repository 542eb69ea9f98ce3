package storage

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/light"
)

const (
	fixtureKind = "fixture"
	fixtureID   = "state"
)

// StateStore persists the fixture's logical state.
type StateStore interface {
	Load() (light.State, error)
	Save(light.State) error
}

// SQLiteStateStore keeps the fixture state in the resource_state table.
type SQLiteStateStore struct {
	store *Store
}

// NewSQLiteStateStore creates a state store on top of the generic store.
func NewSQLiteStateStore(store *Store) *SQLiteStateStore {
	return &SQLiteStateStore{store: store}
}

// Load reads the persisted state. Returns ErrStateNotFound if nothing has
// been saved yet.
func (s *SQLiteStateStore) Load() (light.State, error) {
	payload, version, err := s.store.Get(fixtureKind, fixtureID)
	if err != nil {
		return light.State{}, err
	}
	if payload == nil {
		return light.State{}, ErrStateNotFound
	}
	st, err := Decode(payload)
	if err != nil {
		return light.State{}, err
	}
	log.Debug().Int64("version", version).Msg("Loaded fixture state")
	return st, nil
}

// Save writes the persistable form of st.
func (s *SQLiteStateStore) Save(st light.State) error {
	payload, err := Encode(st)
	if err != nil {
		return err
	}
	return s.store.Set(fixtureKind, fixtureID, payload)
}

// FileStateStore keeps the fixture state in a single JSON file.
type FileStateStore struct {
	path string
}

// NewFileStateStore creates a store writing to path.
func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

// Load reads the state file. Returns ErrStateNotFound if the file does not exist.
func (s *FileStateStore) Load() (light.State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return light.State{}, ErrStateNotFound
	}
	if err != nil {
		return light.State{}, eris.Wrapf(err, "failed to read %s", s.path)
	}
	return Decode(data)
}

// Save atomically replaces the state file.
func (s *FileStateStore) Save(st light.State) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return eris.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return eris.Wrapf(err, "failed to replace %s", s.path)
	}
	return nil
}

// LoadOrDefault loads the persisted state. When nothing is persisted and
// createIfMissing is set, the default state is saved and returned. Malformed
// state is always an error.
func LoadOrDefault(store StateStore, createIfMissing bool) (light.State, error) {
	st, err := store.Load()
	if err == nil {
		return st, nil
	}
	if !eris.Is(err, ErrStateNotFound) || !createIfMissing {
		return light.State{}, err
	}

	st = light.DefaultState()
	if err := store.Save(st); err != nil {
		return light.State{}, eris.Wrap(err, "failed to save default state")
	}
	log.Info().Msg("No persisted state, using defaults")
	return st, nil
}
