package apistorev1

import (
	"context"
	"fmt"

	"github.com/fulldump/offlinestore/recordstore"
)

type evictRequest struct {
	Field  string `json:"field"`
	Months *int   `json:"months"`
}

type evictResponse struct {
	Removed int `json:"removed"`
}

func evict(ctx context.Context, input *evictRequest) (*evictResponse, error) {

	if input == nil || input.Field == "" {
		return nil, fmt.Errorf("%w: field is required", ErrInvalidInput)
	}

	months := recordstore.DefaultRetentionMonths
	if input.Months != nil {
		months = *input.Months
	}

	removed, err := getOrCreateStore(ctx).EvictOlderThan(ctx, input.Field, months)
	if err != nil {
		return nil, err
	}

	return &evictResponse{Removed: removed}, nil
}
