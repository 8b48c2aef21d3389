package playerdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/storage"
	"github.com/google/uuid"
)

// Settings holds the persisted per-player settings.
type Settings struct {
	// Name is the last known name of the player.
	Name string `json:"name"`
	// Locale is the locale the player picked with the lang sub-command. It is
	// empty if the player never picked one.
	Locale    string    `json:"locale,omitempty"`
	FirstJoin time.Time `json:"first_join"`
	LastSeen  time.Time `json:"last_seen"`
	// Commands is the number of sub-commands the player ran successfully.
	Commands int `json:"commands"`
}

// Provider loads and saves player settings.
type Provider interface {
	Load(id uuid.UUID) (Settings, bool, error)
	Save(id uuid.UUID, s Settings) error
	Delete(id uuid.UUID) error
	Count() (int, error)
	Close() error
}

// NopProvider is a Provider that never stores anything.
type NopProvider struct{}

func (NopProvider) Load(uuid.UUID) (Settings, bool, error) { return Settings{}, false, nil }
func (NopProvider) Save(uuid.UUID, Settings) error         { return nil }
func (NopProvider) Delete(uuid.UUID) error                 { return nil }
func (NopProvider) Count() (int, error)                    { return 0, nil }
func (NopProvider) Close() error                           { return nil }

// DB is a Provider storing settings in a LevelDB database, keyed by the
// binary form of the player UUID.
type DB struct {
	db *leveldb.DB
}

// Open opens or creates the database in dir.
func Open(dir string) (*DB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{Compression: opt.SnappyCompression})
	if err != nil {
		return nil, fmt.Errorf("open player db: %w", err)
	}
	return &DB{db: db}, nil
}

// OpenMemory opens a database that lives in memory only.
func OpenMemory() (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory player db: %w", err)
	}
	return &DB{db: db}, nil
}

// Load returns the settings of the player with the id passed. ok is false if
// no settings were stored yet.
func (d *DB) Load(id uuid.UUID) (s Settings, ok bool, err error) {
	data, err := d.db.Get(id[:], nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("read settings %v: %w", id, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, false, fmt.Errorf("decode settings %v: %w", id, err)
	}
	return s, true, nil
}

// Save stores the settings of a player, replacing any settings stored
// before.
func (d *DB) Save(id uuid.UUID, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings %v: %w", id, err)
	}
	if err := d.db.Put(id[:], data, nil); err != nil {
		return fmt.Errorf("write settings %v: %w", id, err)
	}
	return nil
}

// Delete removes the settings of a player. Deleting settings that were never
// stored is not an error.
func (d *DB) Delete(id uuid.UUID) error {
	if err := d.db.Delete(id[:], nil); err != nil {
		return fmt.Errorf("delete settings %v: %w", id, err)
	}
	return nil
}

// Count returns the number of players with stored settings.
func (d *DB) Count() (int, error) {
	iter := d.db.NewIterator(nil, nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		return n, fmt.Errorf("iterate settings: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

var (
	_ Provider = (*DB)(nil)
	_ Provider = NopProvider{}
)
