package api

import (
	"testing"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
	"github.com/rs/zerolog"

	"github.com/fulldump/offlinestore/cachemanager"
	"github.com/fulldump/offlinestore/database"
	"github.com/fulldump/offlinestore/service"
	"github.com/fulldump/offlinestore/statics"
)

func newTestService(t *testing.T) (*service.Service, *database.Database, *database.Database) {

	dir := t.TempDir()

	db := database.NewDatabase(&database.Config{
		Dir:  dir,
		Name: "records",
	})
	biff.AssertNil(db.Load())
	biff.AssertEqual(db.GetStatus(), database.StatusOperating)

	caches := database.NewDatabase(&database.Config{
		Dir:  dir,
		Name: "caches",
	})
	biff.AssertNil(caches.Load())

	cache := cachemanager.New(cachemanager.NewCacheStorage(caches), &cachemanager.Config{
		Version:    "test",
		Manifest:   cachemanager.DefaultManifest,
		Exclusions: cachemanager.DefaultExclusions,
		Transport:  &cachemanager.HandlerTransport{Handler: statics.Handler("")},
	})

	return service.NewService(db, cache), db, caches
}

func TestAcceptance(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		s, db, caches := newTestService(t)

		b := Build(s, "test", "", "")
		b.WithInterceptors(
			InterceptorUnavailable(db, caches),
			RecoverFromPanic(zerolog.Nop()),
			PrettyErrorInterceptor,
		)

		api := apitest.NewWithHandler(b)
		defer api.Destroy()

		service.Acceptance(a, func(method, path string) *apitest.Request {
			return api.Request(method, path)
		})

	})
}
