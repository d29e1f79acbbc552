package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fulldump/box"
	"github.com/rs/zerolog"
)

var ErrUnauthorized = errors.New("unauthorized")

func RecoverFromPanic(l zerolog.Logger) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			defer func() {
				if r := recover(); r != nil {
					l.Error().
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("recovered from panic")
					box.SetError(ctx, fmt.Errorf("panic: %v", r))
				}
			}()
			next(ctx)
		}
	}
}

// Authenticate requires X-Api-Key and X-Api-Secret headers. It does nothing
// when no key is configured.
func Authenticate(apiKey, apiSecret string) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			if apiKey == "" && apiSecret == "" {
				next(ctx)
				return
			}

			r := box.GetRequest(ctx)
			key := r.Header.Get("X-Api-Key")
			secret := r.Header.Get("X-Api-Secret")
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 ||
				subtle.ConstantTimeCompare([]byte(secret), []byte(apiSecret)) != 1 {
				box.SetError(ctx, ErrUnauthorized)
				return
			}

			next(ctx)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func AccessLog(l zerolog.Logger) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			r := box.GetRequest(ctx)
			c := box.GetBoxContext(ctx)
			w := &statusRecorder{ResponseWriter: c.Response}
			c.Response = w

			now := time.Now()
			defer func() {
				status := w.status
				if status == 0 {
					status = http.StatusOK
				}
				l.Info().
					Str("remote", formatRemoteAddr(r)).
					Str("method", r.Method).
					Str("url", r.URL.String()).
					Int("status", status).
					Dur("elapsed", time.Since(now)).
					Msg("access")
			}()

			next(ctx)
		}
	}
}

func formatRemoteAddr(r *http.Request) string {
	xorigin := strings.TrimSpace(strings.Split(
		r.Header.Get("X-Forwarded-For"), ",")[0])
	if xorigin != "" {
		return xorigin
	}

	i := strings.LastIndex(r.RemoteAddr, ":")
	if i < 0 {
		return r.RemoteAddr
	}
	return r.RemoteAddr[0:i]
}
