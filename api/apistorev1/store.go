package apistorev1

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fulldump/box"

	"github.com/fulldump/offlinestore/recordstore"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrRecordNotFound = errors.New("record not found")
)

type StoreResponse struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

func storeName(ctx context.Context) string {
	return box.GetUrlParameter(ctx, "storeName")
}

// getOrCreateStore creates the store on first access.
func getOrCreateStore(ctx context.Context) *recordstore.Store {
	return GetServicer(ctx).GetStore(storeName(ctx))
}

func recordId(ctx context.Context) (string, error) {
	id := strings.TrimSpace(box.GetUrlParameter(ctx, "recordId"))
	if id == "" {
		return "", fmt.Errorf("%w: record id is required", ErrInvalidInput)
	}
	return id, nil
}
