package apistorev1

import (
	"context"
	"net/http"
)

func removeRecord(ctx context.Context, w http.ResponseWriter) error {

	id, err := recordId(ctx)
	if err != nil {
		return err
	}

	err = getOrCreateStore(ctx).Remove(ctx, id)
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}
