package apistorev1

import (
	"context"
	"fmt"

	"github.com/fulldump/offlinestore/recordstore"
)

func latest(ctx context.Context) (*recordstore.Record, error) {

	record, err := getOrCreateStore(ctx).GetLatest(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: store '%s' is empty", ErrRecordNotFound, storeName(ctx))
	}

	return record, nil
}
