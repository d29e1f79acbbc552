package apistorev1

import (
	"context"
	"fmt"

	"github.com/fulldump/offlinestore/recordstore"
)

type latestByFieldRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func latestByField(ctx context.Context, input *latestByFieldRequest) (*recordstore.Record, error) {

	if input == nil || input.Field == "" {
		return nil, fmt.Errorf("%w: field is required", ErrInvalidInput)
	}

	record, err := getOrCreateStore(ctx).GetLatestByField(ctx, input.Field, input.Value)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: no record with %s=%v", ErrRecordNotFound, input.Field, input.Value)
	}

	return record, nil
}
