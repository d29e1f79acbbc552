package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulldump/offlinestore/collection"
)

const maxEnsureAttempts = 32

// UpgradeTx is the only place where collections are created or deleted.
// It runs with the database locked: do not call Database methods from it.
type UpgradeTx struct {
	OldVersion int64
	NewVersion int64

	db      *Database
	created map[string]*collection.Collection
	deleted map[string]*collection.Collection
}

func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("collection name '%s' is reserved", name)
	}
	if strings.ContainsAny(name, `/\:`) {
		return fmt.Errorf("collection name '%s' has invalid characters", name)
	}
	return nil
}

// CreateCollection is idempotent: an existing collection is left as it is.
func (tx *UpgradeTx) CreateCollection(name string) error {
	err := validateCollectionName(name)
	if err != nil {
		return err
	}

	if _, exists := tx.db.collections[name]; exists {
		return nil
	}

	col, err := collection.OpenCollection(tx.db.collectionFilename(name), tx.db.collectionOptions())
	if err != nil {
		return fmt.Errorf("create collection '%s': %w", name, err)
	}

	tx.db.collections[name] = col
	tx.created[name] = col

	return nil
}

func (tx *UpgradeTx) DeleteCollection(name string) error {
	col, exists := tx.db.collections[name]
	if !exists {
		return fmt.Errorf("%w: '%s'", ErrCollectionNotFound, name)
	}

	delete(tx.db.collections, name)
	if _, created := tx.created[name]; created {
		delete(tx.created, name)
		return col.Drop()
	}
	tx.deleted[name] = col

	return nil
}

func (tx *UpgradeTx) rollback() {
	for name, col := range tx.created {
		delete(tx.db.collections, name)
		err := col.Drop()
		if err != nil {
			tx.db.logger.Error().Err(err).Str("collection", name).Msg("rollback created collection")
		}
	}
	for name, col := range tx.deleted {
		tx.db.collections[name] = col
	}
}

func (tx *UpgradeTx) commit() error {
	err := tx.db.writeMeta(tx.NewVersion, tx.db.collectionNames())
	if err != nil {
		return err
	}

	tx.db.version = tx.NewVersion

	for name, col := range tx.deleted {
		err := col.Drop()
		if err != nil {
			// metadata already forgot it, the file is just garbage now
			tx.db.logger.Error().Err(err).Str("collection", name).Msg("drop deleted collection")
		}
	}

	return nil
}

// Upgrade bumps the database version by one and runs f to change the set
// of collections. Open connections are asked to close first; if any is
// still open when ctx is done the upgrade fails with ErrBlocked. Upgrades
// never overlap.
func (db *Database) Upgrade(ctx context.Context, f func(tx *UpgradeTx) error) error {

	db.upgradeMutex.Lock()
	defer db.upgradeMutex.Unlock()

	db.mutex.Lock()
	for {
		if db.status != StatusOperating {
			status := db.status
			db.mutex.Unlock()
			return fmt.Errorf("upgrade: database is %s", status)
		}
		if len(db.connections) == 0 {
			break
		}

		pending := make([]*Connection, 0, len(db.connections))
		for c := range db.connections {
			pending = append(pending, c)
		}
		released := db.released
		newVersion := db.version + 1
		db.mutex.Unlock()

		for _, c := range pending {
			c.versionChange(newVersion)
		}

		select {
		case <-released:
		case <-ctx.Done():
			db.logger.Warn().Int("connections", len(pending)).Int64("version", newVersion).Msg("upgrade blocked")
			return fmt.Errorf("%w: %d open at version %d: %w", ErrBlocked, len(pending), newVersion-1, ctx.Err())
		}

		db.mutex.Lock()
	}
	defer db.mutex.Unlock()

	tx := &UpgradeTx{
		OldVersion: db.version,
		NewVersion: db.version + 1,
		db:         db,
		created:    map[string]*collection.Collection{},
		deleted:    map[string]*collection.Collection{},
	}

	err := f(tx)
	if err != nil {
		tx.rollback()
		return fmt.Errorf("upgrade to version %d: %w", tx.NewVersion, err)
	}

	err = tx.commit()
	if err != nil {
		tx.rollback()
		return fmt.Errorf("upgrade to version %d: %w", tx.NewVersion, err)
	}

	db.logger.Info().Int64("version", tx.NewVersion).Strs("collections", db.collectionNames()).Msg("database upgraded")

	return nil
}

// EnsureCollection returns an open connection on which the named collection
// exists, upgrading the database to create it when missing. Callers that
// find the same database missing collections at the same time share one
// upgrade and then check again.
func (db *Database) EnsureCollection(ctx context.Context, name string) (*Connection, error) {

	err := validateCollectionName(name)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxEnsureAttempts; attempt++ {
		conn, err := db.Connect()
		if err != nil {
			return nil, err
		}
		if conn.Has(name) {
			return conn, nil
		}
		conn.Close()

		_, err, shared := db.upgrades.Do(db.Config.Name, func() (interface{}, error) {
			if db.HasCollection(name) {
				return nil, nil
			}
			return nil, db.Upgrade(ctx, func(tx *UpgradeTx) error {
				return tx.CreateCollection(name)
			})
		})
		if err != nil {
			return nil, err
		}
		if shared {
			db.logger.Debug().Str("collection", name).Msg("joined concurrent upgrade")
		}
	}

	return nil, fmt.Errorf("collection '%s' still missing after %d upgrades", name, maxEnsureAttempts)
}

// DropCollection deletes a collection and its data in its own upgrade.
func (db *Database) DropCollection(ctx context.Context, name string) error {
	return db.Upgrade(ctx, func(tx *UpgradeTx) error {
		return tx.DeleteCollection(name)
	})
}
