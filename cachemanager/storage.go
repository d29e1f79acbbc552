package cachemanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulldump/offlinestore/collection"
	"github.com/fulldump/offlinestore/database"
)

// CacheStorage keeps named buckets, each one a collection of the
// underlying database.
type CacheStorage struct {
	db *database.Database
}

func NewCacheStorage(db *database.Database) *CacheStorage {
	return &CacheStorage{db: db}
}

// Open returns the bucket with the given name, creating it if needed.
func (s *CacheStorage) Open(ctx context.Context, name string) (*Bucket, error) {
	conn, err := s.db.EnsureCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open bucket '%s': %w", name, err)
	}
	defer conn.Close()

	col, err := conn.Collection(name)
	if err != nil {
		return nil, fmt.Errorf("open bucket '%s': %w", name, err)
	}

	return &Bucket{Name: name, col: col}, nil
}

func (s *CacheStorage) Has(name string) bool {
	return s.db.HasCollection(name)
}

// Keys returns the bucket names, sorted.
func (s *CacheStorage) Keys() []string {
	return s.db.CollectionNames()
}

// Delete removes a bucket and its entries. It reports false when there was
// no such bucket.
func (s *CacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	err := s.db.DropCollection(ctx, name)
	if errors.Is(err, database.ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete bucket '%s': %w", name, err)
	}
	return true, nil
}

// Bucket maps request URLs to snapshots, in insertion order.
type Bucket struct {
	Name string
	col  *collection.Collection
}

func (b *Bucket) Match(url string) (*Snapshot, bool, error) {
	row, exists := b.col.Get(url)
	if !exists {
		return nil, false, nil
	}

	s, err := decodeSnapshot(row.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode snapshot '%s': %w", url, err)
	}

	return s, true, nil
}

func (b *Bucket) Put(url string, s *Snapshot) error {
	payload, err := encodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("encode snapshot '%s': %w", url, err)
	}

	_, err = b.col.PutPayload(url, payload)
	return err
}

func (b *Bucket) Delete(url string) (bool, error) {
	return b.col.Remove(url)
}

func (b *Bucket) Len() int {
	return b.col.Len()
}

// Keys returns the cached URLs from oldest to newest.
func (b *Bucket) Keys() []string {
	keys := []string{}
	b.col.Traverse(func(row *collection.Row) bool {
		keys = append(keys, row.Id)
		return true
	})
	return keys
}

// Oldest returns the first inserted URL still in the bucket.
func (b *Bucket) Oldest() (string, bool) {
	oldest := ""
	found := false
	b.col.Traverse(func(row *collection.Row) bool {
		oldest = row.Id
		found = true
		return false
	})
	return oldest, found
}
