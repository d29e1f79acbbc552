package collection

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps the same command stream as JSONStorage inside a single
// SQLite table, so every Persist is its own transaction.
//
// Tables:
//
//	commands(seq, name, uuid, timestamp, payload)  PRIMARY KEY (seq)
type SQLiteStorage struct {
	Filename string
	db       *sql.DB
	mutex    sync.Mutex
	closed   bool
}

func NewSQLiteStorage(filename string) (*SQLiteStorage, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(filename)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// One writer keeps the command order identical to the call order.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS commands (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    uuid TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    payload BLOB NOT NULL
);
`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure commands table: %w", err)
	}

	return &SQLiteStorage{
		Filename: cleanPath,
		db:       db,
	}, nil
}

func (s *SQLiteStorage) Persist(command *Command) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO commands (name, uuid, timestamp, payload) VALUES (?, ?, ?, ?)`,
		command.Name, command.Uuid, command.Timestamp, []byte(command.Payload),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert command: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit command: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) Load() (<-chan *Command, <-chan error) {
	out := make(chan *Command, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)

		rows, err := s.db.Query(`SELECT name, uuid, timestamp, payload FROM commands ORDER BY seq`)
		if err != nil {
			errChan <- fmt.Errorf("query commands: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			cmd := &Command{}
			var payload []byte
			err := rows.Scan(&cmd.Name, &cmd.Uuid, &cmd.Timestamp, &payload)
			if err != nil {
				errChan <- fmt.Errorf("scan command: %w", err)
				return
			}
			cmd.Payload = payload
			out <- cmd
		}

		if err := rows.Err(); err != nil {
			errChan <- err
		}
	}()

	return out, errChan
}

func (s *SQLiteStorage) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

func (s *SQLiteStorage) Drop() error {
	err := s.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		err = os.Remove(s.Filename + suffix)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove: %w", err)
		}
	}

	return nil
}
