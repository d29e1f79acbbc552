package cachemanager

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	json2 "github.com/go-json-experiment/json"
)

// Snapshot is a stored copy of a response.
type Snapshot struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	CachedAt time.Time   `json:"cached_at"`
}

// newSnapshot consumes the body of resp. The caller keeps ownership of resp
// and should replace its body if it still has to be read.
func newSnapshot(url string, resp *http.Response, now time.Time) (*Snapshot, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body of '%s': %w", url, err)
	}

	return &Snapshot{
		URL:      url,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		CachedAt: now,
	}, nil
}

func encodeSnapshot(s *Snapshot) ([]byte, error) {
	return json2.Marshal(s)
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	s := &Snapshot{}
	err := json2.Unmarshal(data, s)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Response builds a fresh response for req out of the snapshot.
func (s *Snapshot) Response(req *http.Request) *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(s.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.Status, http.StatusText(s.Status)),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}
