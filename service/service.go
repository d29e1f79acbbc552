package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fulldump/offlinestore/cachemanager"
	"github.com/fulldump/offlinestore/database"
	"github.com/fulldump/offlinestore/recordstore"
)

type Service struct {
	db      *database.Database
	cache   *cachemanager.Manager
	options []recordstore.Option

	mutex  sync.Mutex
	stores map[string]*recordstore.Store
}

func NewService(db *database.Database, cache *cachemanager.Manager, options ...recordstore.Option) *Service {
	return &Service{
		db:      db,
		cache:   cache,
		options: options,
		stores:  map[string]*recordstore.Store{},
	}
}

func (s *Service) GetStore(name string) *recordstore.Store {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	store, exists := s.stores[name]
	if !exists {
		store = recordstore.New(s.db, name, s.options...)
		s.stores[name] = store
	}

	return store
}

func (s *Service) FindStore(name string) (*recordstore.Store, error) {
	if !s.db.HasCollection(name) {
		return nil, fmt.Errorf("%w: '%s'", ErrStoreNotFound, name)
	}
	return s.GetStore(name), nil
}

func (s *Service) ListStores(ctx context.Context) ([]*StoreInfo, error) {
	result := []*StoreInfo{}

	for _, name := range s.db.CollectionNames() {
		total, err := s.GetStore(name).Len(ctx)
		if err != nil {
			return nil, err
		}
		result = append(result, &StoreInfo{
			Name:  name,
			Total: total,
		})
	}

	return result, nil
}

func (s *Service) DropStore(ctx context.Context, name string) error {
	s.mutex.Lock()
	store, exists := s.stores[name]
	delete(s.stores, name)
	s.mutex.Unlock()

	if exists {
		store.Close()
	}

	err := s.db.DropCollection(ctx, name)
	if errors.Is(err, database.ErrCollectionNotFound) {
		return fmt.Errorf("%w: '%s'", ErrStoreNotFound, name)
	}
	return err
}

func (s *Service) Cache() *cachemanager.Manager {
	return s.cache
}
