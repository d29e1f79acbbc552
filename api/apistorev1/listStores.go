package apistorev1

import (
	"context"

	"github.com/fulldump/offlinestore/service"
)

func listStores(s service.Servicer) interface{} {
	return func(ctx context.Context) ([]*service.StoreInfo, error) {
		return s.ListStores(ctx)
	}
}
