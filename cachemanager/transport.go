package cachemanager

import (
	"net/http"
	"net/http/httptest"
)

// HandlerTransport answers requests with a local handler instead of the
// network. It lets the manager cache embedded or on-disk statics.
type HandlerTransport struct {
	Handler http.Handler
}

func (t *HandlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	w := httptest.NewRecorder()
	t.Handler.ServeHTTP(w, req)

	resp := w.Result()
	resp.Request = req
	return resp, nil
}
