package cachemanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActive     State = "active"
	StateSuperseded State = "superseded"
)

const DefaultMaxEntries = 150

var (
	DefaultManifest = []string{
		"/",
		"/index.html",
		"/assets/index.css",
		"/assets/index.js",
		"/assets/manifest.json",
		"/assets/logo.svg",
		"/assets/logo_receipt.svg",
		"/icons/favicon.png",
	}
	DefaultExclusions = []string{
		"apimanager",
		"us-central1",
		"service_worker",
	}
)

var (
	ErrNotInstalled = errors.New("cache is not installed")
	ErrNotCached    = errors.New("not cached and network failed")
)

type Config struct {
	// Version names the current bucket.
	Version string
	// Manifest lists the paths fetched on install, relative to Origin.
	Manifest []string
	// Requests whose URL contains any of these never touch the cache.
	Exclusions []string
	MaxEntries int
	// FallbackPath, when set, is served from the bucket to HTML requests
	// that can not be answered otherwise.
	FallbackPath string
	Origin       *url.URL
	// Transport reaches the network, http.DefaultTransport if nil.
	Transport http.RoundTripper
	Clock     func() time.Time
	Logger    zerolog.Logger
}

// Manager caches GET responses in a bucket named after the running version.
// It is an http.RoundTripper for outgoing requests and an http.Handler that
// proxies to Origin through itself.
type Manager struct {
	config    *Config
	storage   *CacheStorage
	transport http.RoundTripper
	client    *http.Client
	logger    zerolog.Logger

	mutex  sync.RWMutex
	state  State
	bucket *Bucket

	evictMutex sync.Mutex
	evictions  sync.WaitGroup
}

func New(storage *CacheStorage, config *Config) *Manager {

	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	if config.Origin == nil {
		config.Origin = &url.URL{Scheme: "http", Host: "localhost"}
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Manager{
		config:    config,
		storage:   storage,
		transport: transport,
		client:    &http.Client{Transport: transport},
		logger:    config.Logger.With().Str("cache", config.Version).Logger(),
		state:     StateInstalling,
	}
}

func (m *Manager) Version() string {
	return m.config.Version
}

// State reports the lifecycle state. An active manager whose bucket was
// deleted by a newer version is superseded.
func (m *Manager) State() State {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.state == StateActive && !m.storage.Has(m.config.Version) {
		m.state = StateSuperseded
		m.bucket = nil
		m.logger.Info().Msg("superseded")
	}

	return m.state
}

func (m *Manager) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return m.config.Origin.ResolveReference(ref).String()
}

// Install fetches every manifest path and stores them in the bucket for
// the current version. It is all or nothing: if any fetch fails or answers
// with a non 2xx status nothing is stored and the state is left as it was.
// An active manager stays active while it reinstalls.
func (m *Manager) Install(ctx context.Context) error {

	snapshots := []*Snapshot{}
	for _, path := range m.config.Manifest {
		if path == "" {
			continue
		}

		u := m.resolve(path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("install: %w", err)
		}

		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("install: fetch '%s': %w", u, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return fmt.Errorf("install: fetch '%s': unexpected status %d", u, resp.StatusCode)
		}

		snapshot, err := newSnapshot(u, resp, m.config.Clock())
		if err != nil {
			return fmt.Errorf("install: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	existed := m.storage.Has(m.config.Version)
	bucket, err := m.storage.Open(ctx, m.config.Version)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	for _, snapshot := range snapshots {
		err := bucket.Put(snapshot.URL, snapshot)
		if err != nil {
			if !existed {
				m.storage.Delete(ctx, m.config.Version)
			}
			return fmt.Errorf("install: store '%s': %w", snapshot.URL, err)
		}
	}

	m.mutex.Lock()
	m.bucket = bucket
	if m.state != StateActive {
		m.state = StateInstalled
	}
	m.mutex.Unlock()

	m.logger.Info().Int("entries", len(snapshots)).Msg("installed")

	return nil
}

// Restore adopts the bucket a previous run left for the current version, so
// a restart can serve offline before the origin is reachable again. It
// reports false when there is no such bucket or it misses a manifest path.
func (m *Manager) Restore(ctx context.Context) (bool, error) {

	if !m.storage.Has(m.config.Version) {
		return false, nil
	}

	bucket, err := m.storage.Open(ctx, m.config.Version)
	if err != nil {
		return false, fmt.Errorf("restore: %w", err)
	}

	for _, path := range m.config.Manifest {
		if path == "" {
			continue
		}
		_, found, err := bucket.Match(m.resolve(path))
		if err != nil {
			return false, fmt.Errorf("restore: %w", err)
		}
		if !found {
			return false, nil
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.state == StateInstalling {
		m.bucket = bucket
		m.state = StateInstalled
		m.logger.Info().Int("entries", bucket.Len()).Msg("restored")
	}

	return true, nil
}

// Activate starts intercepting at once and deletes every bucket that does
// not belong to the current version.
func (m *Manager) Activate(ctx context.Context) error {

	m.mutex.Lock()
	if m.state != StateInstalled && m.state != StateActive {
		state := m.state
		m.mutex.Unlock()
		return fmt.Errorf("activate: %w (state %s)", ErrNotInstalled, state)
	}
	m.state = StateActive
	m.mutex.Unlock()

	var errs []error
	for _, name := range m.storage.Keys() {
		if name == m.config.Version {
			continue
		}
		_, err := m.storage.Delete(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.logger.Info().Str("bucket", name).Msg("deleted stale bucket")
	}

	if len(errs) > 0 {
		return fmt.Errorf("activate: %w", errors.Join(errs...))
	}

	return nil
}

func (m *Manager) activeBucket() *Bucket {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.state != StateActive {
		return nil
	}
	return m.bucket
}

func (m *Manager) excluded(u string) bool {
	for _, pattern := range m.config.Exclusions {
		if pattern != "" && strings.Contains(u, pattern) {
			return true
		}
	}
	return false
}

// RoundTrip answers from the bucket when possible. On a miss the response
// comes from the network and a copy is stored. Excluded URLs, methods other
// than GET and requests made before activation go straight to the network.
func (m *Manager) RoundTrip(req *http.Request) (*http.Response, error) {

	key := req.URL.String()

	bucket := m.activeBucket()
	if bucket == nil || req.Method != http.MethodGet || m.excluded(key) {
		return m.transport.RoundTrip(req)
	}

	snapshot, found, err := bucket.Match(key)
	if err != nil {
		m.logger.Warn().Err(err).Str("url", key).Msg("match")
	}
	if found {
		return snapshot.Response(req), nil
	}

	resp, err := m.transport.RoundTrip(req)
	if err != nil {
		return m.fallback(bucket, req, err)
	}

	if !storable(resp) {
		return resp, nil
	}

	snapshot, err = newSnapshot(key, resp, m.config.Clock())
	if err != nil {
		return m.fallback(bucket, req, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(snapshot.Body))

	err = bucket.Put(key, snapshot)
	if err != nil {
		// the live response is still good
		m.logger.Warn().Err(err).Str("url", key).Msg("store response")
		return resp, nil
	}

	m.evictions.Add(1)
	go func() {
		defer m.evictions.Done()
		m.evict(bucket)
	}()

	return resp, nil
}

func storable(resp *http.Response) bool {
	if resp.StatusCode == http.StatusPartialContent {
		return false
	}
	for _, v := range resp.Header.Values("Vary") {
		if strings.TrimSpace(v) == "*" {
			return false
		}
	}
	return true
}

func (m *Manager) fallback(bucket *Bucket, req *http.Request, cause error) (*http.Response, error) {

	if m.config.FallbackPath != "" && acceptsHTML(req) {
		snapshot, found, err := bucket.Match(m.resolve(m.config.FallbackPath))
		if err == nil && found {
			return snapshot.Response(req), nil
		}
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrNotCached, req.URL, cause)
}

func acceptsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// evict deletes the oldest entries until the bucket is within MaxEntries.
func (m *Manager) evict(bucket *Bucket) {
	m.evictMutex.Lock()
	defer m.evictMutex.Unlock()

	for bucket.Len() > m.config.MaxEntries {
		oldest, found := bucket.Oldest()
		if !found {
			return
		}
		_, err := bucket.Delete(oldest)
		if err != nil {
			m.logger.Warn().Err(err).Str("url", oldest).Msg("evict")
			return
		}
		m.logger.Debug().Str("url", oldest).Msg("evicted")
	}
}

// Wait blocks until background evictions are done.
func (m *Manager) Wait() {
	m.evictions.Wait()
}

// ServeHTTP proxies the request to Origin through the cache. When there is
// no response at all it answers 502.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	out := r.Clone(r.Context())
	out.RequestURI = ""
	out.URL = m.config.Origin.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	})
	out.Host = out.URL.Host
	// bodies are stored and served as the origin sent them
	out.Header.Del("Accept-Encoding")

	resp, err := m.RoundTrip(out)
	if err != nil {
		m.logger.Debug().Err(err).Str("url", out.URL.String()).Msg("no response")
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// Status describes the manager and its buckets.
type Status struct {
	Version    string   `json:"version"`
	State      State    `json:"state"`
	Entries    int      `json:"entries"`
	MaxEntries int      `json:"max_entries"`
	Buckets    []string `json:"buckets"`
}

func (m *Manager) Status() *Status {
	status := &Status{
		Version:    m.config.Version,
		State:      m.State(),
		MaxEntries: m.config.MaxEntries,
		Buckets:    m.storage.Keys(),
	}

	m.mutex.RLock()
	if m.bucket != nil {
		status.Entries = m.bucket.Len()
	}
	m.mutex.RUnlock()

	return status
}
