package collection

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrStorageClosed = errors.New("storage closed")

type Storage interface {
	// Persist durably appends a command. When it returns nil the command
	// survives a reopen.
	Persist(cmd *Command) error
	Load() (<-chan *Command, <-chan error)
	Close() error
	// Drop closes the storage and removes its data.
	Drop() error
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// --- JSONStorage ---

// JSONStorage is an append-only log with one JSON encoded command per line.
type JSONStorage struct {
	Filename string
	file     *os.File
	buffer   *bufio.Writer
	mutex    sync.Mutex
	closed   bool
}

func NewJSONStorage(filename string) (*JSONStorage, error) {
	s := &JSONStorage{
		Filename: filename,
	}

	// Open file for append
	var err error
	s.file, err = os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("open file for write: %w", err)
	}

	s.buffer = bufio.NewWriterSize(s.file, 64*1024)

	return s, nil
}

func (s *JSONStorage) Persist(command *Command) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(command)
	if err != nil {
		return fmt.Errorf("json encode command: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	_, err = s.buffer.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	err = s.buffer.Flush()
	if err != nil {
		return fmt.Errorf("flush command: %w", err)
	}

	return nil
}

func (s *JSONStorage) Load() (<-chan *Command, <-chan error) {
	out := make(chan *Command, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)

		f, err := os.Open(s.Filename)
		if os.IsNotExist(err) {
			return
		}
		if err != nil {
			errChan <- err
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		// Increase buffer size for large lines
		const maxCapacity = 16 * 1024 * 1024
		scanner.Buffer(make([]byte, 0, 64*1024), maxCapacity)

		line := 0
		for scanner.Scan() {
			line++
			data := scanner.Bytes()
			if len(bytes.TrimSpace(data)) == 0 {
				continue
			}
			cmd := &Command{}
			err := json.Unmarshal(data, cmd)
			if err != nil {
				errChan <- fmt.Errorf("decode command at line %d: %w", line, err)
				return
			}
			out <- cmd
		}

		if err := scanner.Err(); err != nil {
			errChan <- err
		}
	}()

	return out, errChan
}

func (s *JSONStorage) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.buffer.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (s *JSONStorage) Drop() error {
	err := s.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	err = os.Remove(s.Filename)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove: %w", err)
	}

	return nil
}
