package apistorev1

import (
	"context"

	"github.com/fulldump/offlinestore/recordstore"
)

// putRecord upserts, the body is the record data.
func putRecord(ctx context.Context, data map[string]any) (*recordstore.Record, error) {

	id, err := recordId(ctx)
	if err != nil {
		return nil, err
	}

	err = getOrCreateStore(ctx).Put(ctx, id, data)
	if err != nil {
		return nil, err
	}

	if data == nil {
		data = map[string]any{}
	}

	return &recordstore.Record{
		Id:   id,
		Data: data,
	}, nil
}
