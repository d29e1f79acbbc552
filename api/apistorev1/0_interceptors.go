package apistorev1

import (
	"context"

	"github.com/fulldump/offlinestore/service"
)

const ContextServicerKey = "3c8a6f0e-1b9d-4f57-a2f4-6d1c0b7e9a21"

func SetServicer(ctx context.Context, s service.Servicer) context.Context {
	return context.WithValue(ctx, ContextServicerKey, s)
}

func GetServicer(ctx context.Context) service.Servicer {
	return ctx.Value(ContextServicerKey).(service.Servicer)
}
