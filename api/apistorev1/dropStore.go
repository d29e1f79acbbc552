package apistorev1

import (
	"context"
	"net/http"
)

func dropStore(ctx context.Context, w http.ResponseWriter) error {

	err := GetServicer(ctx).DropStore(ctx, storeName(ctx))
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
