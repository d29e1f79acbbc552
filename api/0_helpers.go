package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/offlinestore/api/apicachev1"
	"github.com/fulldump/offlinestore/api/apistorev1"
	"github.com/fulldump/offlinestore/cachemanager"
	"github.com/fulldump/offlinestore/database"
	"github.com/fulldump/offlinestore/recordstore"
	"github.com/fulldump/offlinestore/service"
)

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

func InterceptorUnavailable(dbs ...*database.Database) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			for _, db := range dbs {
				status := db.GetStatus()
				if status == database.StatusOpening || status == database.StatusClosing {
					box.SetError(ctx, fmt.Errorf("%w: database '%s' is %s", ErrUnavailable, db.Name(), status))
					return
				}
			}
			next(ctx)
		}
	}
}

var ErrUnavailable = errors.New("temporary unavailable")

// errorStatus maps an error to its http status and a description.
func errorStatus(ctx context.Context, err error) (int, string) {

	var syntaxError *json.SyntaxError

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "user is not authenticated"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "try again later"
	case errors.Is(err, box.ErrResourceNotFound):
		return http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String())
	case errors.Is(err, box.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method)
	case errors.As(err, &syntaxError):
		return http.StatusBadRequest, "Malformed JSON"
	case errors.Is(err, apistorev1.ErrInvalidInput), errors.Is(err, recordstore.ErrInvalidArgument):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, service.ErrStoreNotFound):
		return http.StatusNotFound, "Store not found"
	case errors.Is(err, apistorev1.ErrRecordNotFound):
		return http.StatusNotFound, "Record not found"
	case errors.Is(err, cachemanager.ErrNotInstalled):
		return http.StatusConflict, "Install the cache first"
	case errors.Is(err, apicachev1.ErrInstall):
		return http.StatusBadGateway, "Manifest could not be fetched"
	case recordstore.IsKind(err, recordstore.KindConnection):
		return http.StatusServiceUnavailable, "Store could not be opened"
	case recordstore.IsKind(err, recordstore.KindTransaction):
		return http.StatusInternalServerError, "Store operation failed"
	}

	return http.StatusInternalServerError, "Unexpected error"
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		status, description := errorStatus(ctx, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		PrettyError{
			Message:     err.Error(),
			Description: description,
		}.MarshalTo(w)
	}
}
