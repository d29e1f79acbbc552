package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const (
	EngineJSON   = "json"
	EngineSQLite = "sqlite"
)

var ErrCollectionClosed = errors.New("collection is closed")

type Options struct {
	Engine string
	Logger *zerolog.Logger
}

// Collection holds records keyed by id, ordered by insertion. Every public
// method runs under the collection mutex, so a single call is atomic, but
// nothing orders two independent calls: concurrent Put on the same id is
// last-writer-wins.
type Collection struct {
	Filename string
	storage  Storage
	Rows     RowContainer
	ids      map[string]*Row
	mutex    *sync.RWMutex
	MaxID    int64 // Monotonic sequence counter
	closed   bool
	logger   zerolog.Logger
}

func NewStorage(filename string, options *Options) (Storage, error) {
	engine := EngineJSON
	if options != nil && options.Engine != "" {
		engine = options.Engine
	}

	switch engine {
	case EngineJSON:
		return NewJSONStorage(filename)
	case EngineSQLite:
		return NewSQLiteStorage(filename)
	}

	return nil, fmt.Errorf("unknown storage engine '%s', must be [%s|%s]", engine, EngineJSON, EngineSQLite)
}

func OpenCollection(filename string, options *Options) (*Collection, error) {

	storage, err := NewStorage(filename, options)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	c := &Collection{
		Filename: filename,
		storage:  storage,
		Rows:     NewBTreeContainer(),
		ids:      map[string]*Row{},
		mutex:    &sync.RWMutex{},
		logger:   zerolog.Nop(),
	}
	if options != nil && options.Logger != nil {
		c.logger = options.Logger.With().Str("collection", filename).Logger()
	}

	// Load from storage
	err = LoadCollection(c)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("load collection: %w", err)
	}

	return c, nil
}

// Put inserts or replaces the record with the given id. A replaced record
// keeps its position.
func (c *Collection) Put(id string, data map[string]any) (*Row, error) {

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("json encode payload: %w", err)
	}

	return c.PutPayload(id, payload)
}

// PutPayload is Put for data that is already JSON encoded.
func (c *Collection) PutPayload(id string, payload json.RawMessage) (*Row, error) {

	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload for '%s' is not valid json", id)
	}

	command, err := newCommand(CommandPut, &PutCommand{
		Id:   id,
		Data: payload,
	})
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil, ErrCollectionClosed
	}

	// Persist first, memory only changes once the command is durable
	err = c.storage.Persist(command)
	if err != nil {
		return nil, fmt.Errorf("persist put '%s': %w", id, err)
	}

	return c.putRow(id, payload), nil
}

func (c *Collection) putRow(id string, payload json.RawMessage) *Row {
	// Rows are immutable once published, an update swaps in a new row with
	// the same sequence number.
	if previous, exists := c.ids[id]; exists {
		row := &Row{
			I:       previous.I,
			Id:      id,
			Payload: payload,
		}
		c.ids[id] = row
		c.Rows.ReplaceOrInsert(row)
		return row
	}

	c.MaxID++
	row := &Row{
		I:       c.MaxID,
		Id:      id,
		Payload: payload,
	}
	c.ids[id] = row
	c.Rows.ReplaceOrInsert(row)

	return row
}

func (c *Collection) Get(id string) (*Row, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	row, ok := c.ids[id]
	return row, ok
}

// Remove deletes the record with the given id. Removing an absent id is not
// an error, removed reports whether something was deleted.
func (c *Collection) Remove(id string) (removed bool, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false, ErrCollectionClosed
	}

	return c.removeById(id)
}

func (c *Collection) removeById(id string) (bool, error) {
	if _, exists := c.ids[id]; !exists {
		return false, nil
	}

	command, err := newCommand(CommandRemove, &RemoveCommand{Id: id})
	if err != nil {
		return false, err
	}

	err = c.storage.Persist(command)
	if err != nil {
		return false, fmt.Errorf("persist remove '%s': %w", id, err)
	}

	c.removeRow(id)

	return true, nil
}

func (c *Collection) removeRow(id string) {
	row, exists := c.ids[id]
	if !exists {
		return
	}
	delete(c.ids, id)
	c.Rows.Delete(row)
}

// RemoveIf scans the rows in insertion order and deletes every row matching
// f, all under one write lock. On a failed delete the rows removed so far
// stay removed and their count is returned along with the error.
func (c *Collection) RemoveIf(f func(row *Row) bool) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return 0, ErrCollectionClosed
	}

	// btree can not be mutated while iterating
	matches := []string{}
	c.Rows.Traverse(func(row *Row) bool {
		if f(row) {
			matches = append(matches, row.Id)
		}
		return true
	})

	removed := 0
	for _, id := range matches {
		ok, err := c.removeById(id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	return removed, nil
}

// Last returns the most recently inserted row.
func (c *Collection) Last() (*Row, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.Rows.Max()
}

func (c *Collection) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.Rows.Len()
}

// Traverse visits rows from oldest to newest until f returns false. f must
// not call back into the collection to write.
func (c *Collection) Traverse(f func(row *Row) bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	c.Rows.Traverse(f)
}

// TraverseReverse visits rows from newest to oldest until f returns false.
func (c *Collection) TraverseReverse(f func(row *Row) bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	c.Rows.TraverseReverse(f)
}

func (c *Collection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.storage.Close()
}

func (c *Collection) Drop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.closed = true

	return c.storage.Drop()
}
