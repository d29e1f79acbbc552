package apistorev1

import (
	"context"
	"fmt"

	"github.com/fulldump/offlinestore/recordstore"
)

type queryRequest struct {
	Criteria recordstore.Criteria `json:"criteria"`
	Limit    int                  `json:"limit"`
}

func query(ctx context.Context, input *queryRequest) ([]*recordstore.Record, error) {

	if input == nil {
		input = &queryRequest{}
	}
	if input.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be 0 or positive", ErrInvalidInput)
	}

	return getOrCreateStore(ctx).QueryByFields(ctx, input.Criteria, input.Limit)
}
