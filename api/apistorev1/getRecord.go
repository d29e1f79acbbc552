package apistorev1

import (
	"context"
	"fmt"

	"github.com/fulldump/offlinestore/recordstore"
)

func getRecord(ctx context.Context) (*recordstore.Record, error) {

	id, err := recordId(ctx)
	if err != nil {
		return nil, err
	}

	data, err := getOrCreateStore(ctx).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrRecordNotFound, id)
	}

	return &recordstore.Record{
		Id:   id,
		Data: data,
	}, nil
}
