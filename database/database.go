package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/fulldump/offlinestore/collection"
	"github.com/fulldump/offlinestore/utils"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

const metaFilename = "_meta.json"

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrClosed             = errors.New("database is closed")
	ErrBlocked            = errors.New("upgrade blocked by open connections")
)

type Config struct {
	Dir    string
	Name   string
	Engine string
	Logger *zerolog.Logger
}

// Database is a named, versioned set of collections stored under
// Dir/Name. The set of collections only changes inside Upgrade.
type Database struct {
	Config *Config

	mutex        sync.Mutex
	status       string
	version      int64
	collections  map[string]*collection.Collection
	connections  map[*Connection]struct{}
	released     chan struct{} // closed every time a connection goes away
	upgrades     singleflight.Group
	upgradeMutex sync.Mutex
	exit         chan struct{}
	exitOnce     sync.Once
	logger       zerolog.Logger
}

type meta struct {
	Name        string   `json:"name"`
	Version     int64    `json:"version"`
	Collections []string `json:"collections"`
}

func NewDatabase(config *Config) *Database {
	db := &Database{
		Config:      config,
		status:      StatusOpening,
		collections: map[string]*collection.Collection{},
		connections: map[*Connection]struct{}{},
		released:    make(chan struct{}),
		exit:        make(chan struct{}),
		logger:      zerolog.Nop(),
	}
	if config.Logger != nil {
		db.logger = config.Logger.With().Str("database", config.Name).Logger()
	}

	return db
}

func (db *Database) GetStatus() string {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.status
}

func (db *Database) Name() string {
	return db.Config.Name
}

func (db *Database) Version() int64 {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.version
}

func (db *Database) HasCollection(name string) bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	_, exists := db.collections[name]
	return exists
}

func (db *Database) CollectionNames() []string {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.collectionNames()
}

func (db *Database) collectionNames() []string {
	return utils.GetKeys(db.collections)
}

func (db *Database) dir() string {
	return path.Join(db.Config.Dir, db.Config.Name)
}

func (db *Database) collectionFilename(name string) string {
	return path.Join(db.dir(), name)
}

func (db *Database) collectionOptions() *collection.Options {
	return &collection.Options{
		Engine: db.Config.Engine,
		Logger: &db.logger,
	}
}

// Load opens every collection recorded in the metadata file. A missing
// metadata file means an empty database at version 0.
func (db *Database) Load() error {

	db.logger.Info().Str("dir", db.dir()).Msg("loading database")

	err := os.MkdirAll(db.dir(), 0755)
	if err != nil {
		db.setStatus(StatusClosing)
		return err
	}

	m, err := db.readMeta()
	if err != nil {
		db.setStatus(StatusClosing)
		return err
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.version = m.Version
	for _, name := range m.Collections {
		col, err := collection.OpenCollection(db.collectionFilename(name), db.collectionOptions())
		if err != nil {
			db.logger.Error().Err(err).Str("collection", name).Msg("open collection")
			db.status = StatusClosing
			return fmt.Errorf("open collection '%s': %w", name, err)
		}
		db.logger.Info().Str("collection", name).Int("rows", col.Len()).Msg("collection loaded")
		db.collections[name] = col
	}

	db.status = StatusOperating

	return nil
}

func (db *Database) setStatus(status string) {
	db.mutex.Lock()
	db.status = status
	db.mutex.Unlock()
}

func (db *Database) readMeta() (*meta, error) {
	m := &meta{Name: db.Config.Name}

	data, err := os.ReadFile(path.Join(db.dir(), metaFilename))
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	err = json.Unmarshal(data, m)
	if err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}

	return m, nil
}

func (db *Database) writeMeta(version int64, names []string) error {
	data, err := json.MarshalIndent(&meta{
		Name:        db.Config.Name,
		Version:     version,
		Collections: names,
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	filename := path.Join(db.dir(), metaFilename)
	tmp := filename + ".tmp"
	err = os.WriteFile(tmp, data, 0666)
	if err != nil {
		return fmt.Errorf("write meta: %w", err)
	}

	return os.Rename(tmp, filename)
}

func (db *Database) Start() error {

	go func() {
		err := db.Load()
		if err != nil {
			db.logger.Error().Err(err).Msg("load database")
		}
	}()

	<-db.exit

	return nil
}

func (db *Database) Stop() error {

	defer db.exitOnce.Do(func() {
		close(db.exit)
	})

	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.status = StatusClosing

	var lastErr error
	for name, col := range db.collections {
		db.logger.Info().Str("collection", name).Msg("closing collection")
		err := col.Close()
		if err != nil {
			db.logger.Error().Err(err).Str("collection", name).Msg("close collection")
			lastErr = err
		}
	}

	return lastErr
}
