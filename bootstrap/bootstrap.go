package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fulldump/box"
	"github.com/rs/zerolog"

	"github.com/fulldump/offlinestore/api"
	"github.com/fulldump/offlinestore/cachemanager"
	"github.com/fulldump/offlinestore/configuration"
	"github.com/fulldump/offlinestore/database"
	"github.com/fulldump/offlinestore/logger"
	"github.com/fulldump/offlinestore/recordstore"
	"github.com/fulldump/offlinestore/service"
	"github.com/fulldump/offlinestore/statics"
)

var VERSION = "dev"

const cachesDatabase = "caches"

const installTimeout = time.Minute

var errNotReady = errors.New("caches database is not ready")

func Bootstrap(c *configuration.Configuration) (start, stop func(), err error) {

	l := logger.New(c.LogLevel)

	db := database.NewDatabase(&database.Config{
		Dir:    c.Dir,
		Name:   c.Database,
		Engine: c.Engine,
		Logger: &l,
	})

	caches := database.NewDatabase(&database.Config{
		Dir:    c.Dir,
		Name:   cachesDatabase,
		Engine: c.Engine,
		Logger: &l,
	})

	cacheConfig := &cachemanager.Config{
		Version:      c.AppVersion,
		Manifest:     cachemanager.DefaultManifest,
		Exclusions:   cachemanager.DefaultExclusions,
		MaxEntries:   c.CacheMaxEntries,
		FallbackPath: c.FallbackPath,
		Logger:       l,
	}
	if c.Origin != "" {
		origin, err := url.Parse(c.Origin)
		if err != nil {
			return nil, nil, fmt.Errorf("origin: %w", err)
		}
		cacheConfig.Origin = origin
	} else {
		cacheConfig.Transport = &cachemanager.HandlerTransport{
			Handler: statics.Handler(c.Statics),
		}
	}
	cache := cachemanager.New(cachemanager.NewCacheStorage(caches), cacheConfig)

	s := service.NewService(db, cache, recordstore.WithLogger(l))

	b := api.Build(s, VERSION, c.ApiKey, c.ApiSecret)
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.AccessLog(l),
		api.InterceptorUnavailable(db, caches),
		api.RecoverFromPanic(l),
		api.PrettyErrorInterceptor,
	)

	server := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		return nil, nil, err
	}
	l.Info().Str("addr", c.HttpAddr).Msg("listening")

	ctx, cancel := context.WithCancel(context.Background())

	stop = func() {
		cancel()
		db.Stop()
		caches.Stop()
		server.Shutdown(context.Background())
		cache.Wait()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for {
			sig := <-signalChan
			l.Info().Str("signal", sig.String()).Msg("signal received")
			stop()
		}
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		for _, d := range []*database.Database{db, caches} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := d.Start()
				if err != nil {
					l.Error().Err(err).Str("database", d.Name()).Msg("start")
				}
			}()
		}

		if c.InstallOnStart {
			go installCache(ctx, l, caches, cache)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := server.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error().Err(err).Msg("serve")
			}
		}()

		wg.Wait()
	}

	return start, stop, nil
}

// installCache installs and activates the cache once the caches database is
// loaded, retrying while the origin can not be reached. A bucket left by a
// previous run for the same version is activated first so the portal keeps
// working offline while the install is retried.
func installCache(ctx context.Context, l zerolog.Logger, caches *database.Database, cache *cachemanager.Manager) {

	restored := false

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if caches.GetStatus() != database.StatusOperating {
			return struct{}{}, errNotReady
		}
		if !restored {
			ok, err := cache.Restore(ctx)
			if err != nil {
				l.Warn().Err(err).Msg("restore cache")
			}
			if ok {
				restored = true
				err := cache.Activate(ctx)
				if err != nil {
					l.Warn().Err(err).Msg("activate restored cache")
				}
			}
		}
		err := cache.Install(ctx)
		if err != nil {
			l.Warn().Err(err).Msg("install cache, retrying")
			return struct{}{}, err
		}
		return struct{}{}, cache.Activate(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(installTimeout),
	)
	if err != nil && restored {
		l.Warn().Err(err).Str("version", cache.Version()).Msg("cache not refreshed, serving restored bucket")
		return
	}
	if err != nil {
		l.Error().Err(err).Msg("cache not installed")
		return
	}

	l.Info().Str("version", cache.Version()).Msg("cache active")
}
