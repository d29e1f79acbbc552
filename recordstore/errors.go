package recordstore

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindConnection means the database could not be opened or upgraded.
	KindConnection Kind = "connection"
	// KindTransaction means a read, write or delete failed.
	KindTransaction Kind = "transaction"
)

var (
	ErrStoreClosed     = errors.New("store is closed")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error is returned by every Store operation that fails.
type Error struct {
	Kind  Kind
	Op    string
	Store string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s '%s': %s error: %v", e.Op, e.Store, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
