package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fulldump/offlinestore/collection"
)

var ErrOpening = errors.New("database is opening")

// Connection is a handle bound to one database version. While any
// connection is open the database can not be upgraded.
type Connection struct {
	db      *Database
	version int64

	mutex           sync.Mutex
	closed          bool
	notified        bool
	onVersionChange func(c *Connection, newVersion int64)
}

// Connect opens a connection on the current version. By default the
// connection closes itself when another caller asks for an upgrade; use
// OnVersionChange to override.
func (db *Database) Connect() (*Connection, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	switch db.status {
	case StatusOpening:
		return nil, ErrOpening
	case StatusClosing:
		return nil, ErrClosed
	}

	c := &Connection{
		db:      db,
		version: db.version,
		onVersionChange: func(c *Connection, newVersion int64) {
			c.Close()
		},
	}
	db.connections[c] = struct{}{}

	return c, nil
}

func (c *Connection) Version() int64 {
	return c.version
}

func (c *Connection) Closed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closed
}

// OnVersionChange replaces the handler called when an upgrade is waiting
// for this connection. A nil handler keeps the connection open, which
// blocks the upgrade until its context expires.
func (c *Connection) OnVersionChange(f func(c *Connection, newVersion int64)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onVersionChange = f
}

func (c *Connection) versionChange(newVersion int64) {
	c.mutex.Lock()
	if c.closed || c.notified {
		c.mutex.Unlock()
		return
	}
	c.notified = true
	f := c.onVersionChange
	c.mutex.Unlock()

	if f != nil {
		f(c, newVersion)
	}
}

func (c *Connection) Collection(name string) (*collection.Collection, error) {
	if c.Closed() {
		return nil, ErrClosed
	}

	db := c.db
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.status == StatusClosing {
		return nil, ErrClosed
	}

	col, exists := db.collections[name]
	if !exists {
		return nil, fmt.Errorf("%w: '%s' at version %d", ErrCollectionNotFound, name, c.version)
	}

	return col, nil
}

func (c *Connection) Has(name string) bool {
	_, err := c.Collection(name)
	return err == nil
}

func (c *Connection) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	c.mutex.Unlock()

	c.db.release(c)

	return nil
}

func (db *Database) release(c *Connection) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	delete(db.connections, c)
	close(db.released)
	db.released = make(chan struct{})
}
