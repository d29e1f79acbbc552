package apistorev1

import (
	"context"
)

func getStore(ctx context.Context) (*StoreResponse, error) {

	store, err := GetServicer(ctx).FindStore(storeName(ctx))
	if err != nil {
		return nil, err
	}

	total, err := store.Len(ctx)
	if err != nil {
		return nil, err
	}

	return &StoreResponse{
		Name:  store.Name(),
		Total: total,
	}, nil
}
