package api

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
	"github.com/fulldump/box/boxopenapi"

	"github.com/fulldump/offlinestore/api/apicachev1"
	"github.com/fulldump/offlinestore/api/apistorev1"
	"github.com/fulldump/offlinestore/service"
)

func Build(s service.Servicer, version, apiKey, apiSecret string) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1")
	v1.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
		Authenticate(apiKey, apiSecret),
	)

	apistorev1.BuildV1Store(v1, s).
		WithInterceptors(
			injectServicer(s),
		)

	apicachev1.BuildV1Cache(v1, s)

	b.Resource("/v1/*").
		WithActions(box.AnyMethod(func(w http.ResponseWriter) interface{} {
			w.WriteHeader(http.StatusNotImplemented)
			return PrettyError{
				Message:     "not implemented",
				Description: "this endpoint does not exist, please check the documentation",
			}
		}).WithName("notImplemented"))

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}).WithName("release"))

	spec := boxopenapi.Spec(b)
	spec.Info.Title = "Offline Store"
	spec.Info.Description = "Durable local records and an offline cache for the merchant portal."
	b.Handle("GET", "/openapi.json", func(r *http.Request) any {

		spec.Servers = []boxopenapi.Server{
			{
				Url: "https://" + r.Host,
			},
			{
				Url: "http://" + r.Host,
			},
		}

		return spec
	})

	// Everything else is an asset, answered through the offline cache
	b.Resource("/*").
		WithActions(
			box.Get(s.Cache().ServeHTTP).WithName("serveCache"),
		)

	return b
}

func injectServicer(s service.Servicer) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			next(apistorev1.SetServicer(ctx, s))
		}
	}
}
