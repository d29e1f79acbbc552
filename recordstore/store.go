package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/fulldump/offlinestore/collection"
	"github.com/fulldump/offlinestore/database"
)

const DefaultRetentionMonths = 6

type Record struct {
	Id   string         `json:"id"`
	Data map[string]any `json:"data"`
}

func newRecord(row *collection.Row) (*Record, error) {
	data, err := row.Decode()
	if err != nil {
		return nil, err
	}
	return &Record{Id: row.Id, Data: data}, nil
}

// Store is a named collection of records inside a database. The connection
// is opened on first use and kept until Close. Operations are independent of
// each other: there is no compare-and-swap and overlapping writes on the same
// id are last-writer-wins.
type Store struct {
	db      *database.Database
	name    string
	options *Options
	logger  zerolog.Logger

	mutex  sync.Mutex
	conn   *database.Connection
	closed bool
}

func New(db *database.Database, name string, opts ...Option) *Store {
	options := newOptions(opts)
	return &Store{
		db:      db,
		name:    name,
		options: options,
		logger:  options.Logger.With().Str("store", name).Logger(),
	}
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) connectionError(op string, err error) error {
	return &Error{Kind: KindConnection, Op: op, Store: s.name, Err: err}
}

func (s *Store) transactionError(op string, err error) error {
	return &Error{Kind: KindTransaction, Op: op, Store: s.name, Err: err}
}

// OpenCollection makes sure the connection is open and the collection
// exists, upgrading the database when it does not. Blocked upgrades are
// retried with exponential backoff.
func (s *Store) OpenCollection(ctx context.Context) error {
	_, err := s.collection(ctx, "open")
	return err
}

func (s *Store) retryable(err error) bool {
	if errors.Is(err, database.ErrBlocked) || errors.Is(err, database.ErrOpening) {
		return true
	}
	// connection closed by a concurrent upgrade, not by database shutdown
	return errors.Is(err, database.ErrClosed) && s.db.GetStatus() == database.StatusOperating
}

func (s *Store) collection(ctx context.Context, op string) (*collection.Collection, error) {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, s.connectionError(op, ErrStoreClosed)
	}

	if s.conn != nil {
		col, err := s.conn.Collection(s.name)
		if err == nil {
			return col, nil
		}
		s.conn.Close()
		s.conn = nil
	}

	attempt := 0
	col, err := backoff.Retry(ctx, func() (*collection.Collection, error) {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, s.options.OpenTimeout)
		defer cancel()

		conn, err := s.db.EnsureCollection(attemptCtx, s.name)
		if err == nil {
			var col *collection.Collection
			col, err = conn.Collection(s.name)
			if err == nil {
				s.conn = conn
				return col, nil
			}
			conn.Close()
		}

		if !s.retryable(err) {
			return nil, backoff.Permanent(err)
		}
		s.logger.Debug().Err(err).Int("attempt", attempt).Msg("open collection, retrying")
		return nil, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(s.options.RetryTimeout),
	)
	if err != nil {
		return nil, s.connectionError(op, err)
	}

	return col, nil
}

// Get returns the data stored under id, or nil when there is none.
func (s *Store) Get(ctx context.Context, id string) (map[string]any, error) {

	col, err := s.collection(ctx, "get")
	if err != nil {
		return nil, err
	}

	row, exists := col.Get(id)
	if !exists {
		return nil, nil
	}

	data, err := row.Decode()
	if err != nil {
		return nil, s.transactionError("get", err)
	}

	return data, nil
}

// Put inserts or replaces the record. A replaced record keeps its position
// in insertion order.
func (s *Store) Put(ctx context.Context, id string, data map[string]any) error {

	if id == "" {
		return s.transactionError("put", fmt.Errorf("id is required"))
	}

	col, err := s.collection(ctx, "put")
	if err != nil {
		return err
	}

	if data == nil {
		data = map[string]any{}
	}

	_, err = col.Put(id, data)
	if err != nil {
		return s.transactionError("put", err)
	}

	return nil
}

// Remove deletes the record. Removing an id that does not exist succeeds.
func (s *Store) Remove(ctx context.Context, id string) error {

	col, err := s.collection(ctx, "remove")
	if err != nil {
		return err
	}

	_, err = col.Remove(id)
	if err != nil {
		return s.transactionError("remove", err)
	}

	return nil
}

// GetLatest returns the most recently inserted record or nil.
func (s *Store) GetLatest(ctx context.Context) (*Record, error) {

	col, err := s.collection(ctx, "getLatest")
	if err != nil {
		return nil, err
	}

	row, exists := col.Last()
	if !exists {
		return nil, nil
	}

	record, err := newRecord(row)
	if err != nil {
		return nil, s.transactionError("getLatest", err)
	}

	return record, nil
}

// GetLatestByField returns the newest record whose field equals value, or
// nil when none does.
func (s *Store) GetLatestByField(ctx context.Context, field string, value any) (*Record, error) {

	records, err := s.query(ctx, "getLatestByField", Criteria{field: value}, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	return records[0], nil
}

// QueryByFields returns the records matching every exact field of criteria
// and every range of its RangeKey entry, newest first. A limit of 0 means no
// limit. The result is never nil.
func (s *Store) QueryByFields(ctx context.Context, criteria Criteria, limit int) ([]*Record, error) {
	return s.query(ctx, "queryByFields", criteria, limit)
}

func (s *Store) query(ctx context.Context, op string, criteria Criteria, limit int) ([]*Record, error) {

	m, err := compileCriteria(criteria)
	if err != nil {
		return nil, s.transactionError(op, err)
	}

	col, err := s.collection(ctx, op)
	if err != nil {
		return nil, err
	}

	records := []*Record{}
	var scanErr error
	col.TraverseReverse(func(row *collection.Row) bool {
		if err := ctx.Err(); err != nil {
			scanErr = err
			return false
		}

		record, err := newRecord(row)
		if err != nil {
			scanErr = err
			return false
		}

		match, err := m.match(record.Data)
		if err != nil {
			scanErr = err
			return false
		}
		if !match {
			return true
		}

		records = append(records, record)
		return limit <= 0 || len(records) < limit
	})
	if scanErr != nil {
		return nil, s.transactionError(op, scanErr)
	}

	return records, nil
}

// EvictOlderThan deletes every record whose field holds a date strictly
// before now minus months calendar months, and returns how many were
// deleted. Records with a missing or unparseable date are kept. Zero months
// puts the cutoff at now. If a delete fails the records deleted so far stay
// deleted.
func (s *Store) EvictOlderThan(ctx context.Context, field string, months int) (int, error) {

	if months < 0 {
		return 0, s.transactionError("evictOlderThan", fmt.Errorf("%w: months must be 0 or positive, got %d", ErrInvalidArgument, months))
	}

	col, err := s.collection(ctx, "evictOlderThan")
	if err != nil {
		return 0, err
	}

	cutoff := s.options.Clock().AddDate(0, -months, 0)

	removed, err := col.RemoveIf(func(row *collection.Row) bool {
		data, err := row.Decode()
		if err != nil {
			return false
		}
		t, ok := parseDate(data[field])
		return ok && t.Before(cutoff)
	})
	if err != nil {
		return removed, s.transactionError("evictOlderThan", err)
	}

	s.logger.Info().
		Str("field", field).
		Time("cutoff", cutoff).
		Int("removed", removed).
		Msg("evicted old records")

	return removed, nil
}

// Len returns the number of records.
func (s *Store) Len(ctx context.Context) (int, error) {
	col, err := s.collection(ctx, "len")
	if err != nil {
		return 0, err
	}
	return col.Len(), nil
}

// Close releases the connection. A closed store fails every operation.
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.closed = true
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	return err
}
