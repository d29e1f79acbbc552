package apicachev1

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulldump/offlinestore/cachemanager"
	"github.com/fulldump/offlinestore/service"
)

var ErrInstall = errors.New("install failed")

func getStatus(s service.Servicer) interface{} {
	return func(ctx context.Context) *cachemanager.Status {
		return s.Cache().Status()
	}
}

func install(s service.Servicer) interface{} {
	return func(ctx context.Context) (*cachemanager.Status, error) {
		m := s.Cache()
		err := m.Install(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInstall, err)
		}
		return m.Status(), nil
	}
}

func activate(s service.Servicer) interface{} {
	return func(ctx context.Context) (*cachemanager.Status, error) {
		m := s.Cache()
		err := m.Activate(ctx)
		if err != nil {
			return nil, err
		}
		return m.Status(), nil
	}
}
