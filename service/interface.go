package service

import (
	"context"
	"errors"

	"github.com/fulldump/offlinestore/cachemanager"
	"github.com/fulldump/offlinestore/recordstore"
)

var ErrStoreNotFound = errors.New("store not found")

type Servicer interface {
	// GetStore returns the store with that name, created on first use.
	GetStore(name string) *recordstore.Store
	// FindStore is GetStore for stores that already exist.
	FindStore(name string) (*recordstore.Store, error)
	ListStores(ctx context.Context) ([]*StoreInfo, error)
	DropStore(ctx context.Context, name string) error
	Cache() *cachemanager.Manager
}

type StoreInfo struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}
