package config

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is attempted in the wrong load state.
	ErrInvalidState = errors.New("store is not in a valid state for this operation")
	// ErrDuplicateIdentifier is returned when adding an entry whose identifier already exists.
	ErrDuplicateIdentifier = errors.New("identifier already exists")
	// ErrNotFound is returned when no entry matches the identifier.
	ErrNotFound = errors.New("entry not found")
	// ErrInvalidEntry is returned for entries with missing or out of range fields.
	ErrInvalidEntry = errors.New("invalid entry")

	ErrPersistenceRead   = errors.New("failed to read connections file")
	ErrPersistenceDecode = errors.New("failed to decode connections file")
	ErrPersistenceWrite  = errors.New("failed to write connections file")
)

// PersistenceOp names the disk operation that failed.
type PersistenceOp string

const (
	OpRead   PersistenceOp = "read"
	OpDecode PersistenceOp = "decode"
	OpWrite  PersistenceOp = "write"
)

// PersistenceError wraps an I/O or decoding failure of the backing file.
type PersistenceError struct {
	Op   PersistenceOp
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches the sentinel for the failed operation.
func (e *PersistenceError) Is(target error) bool {
	switch e.Op {
	case OpRead:
		return target == ErrPersistenceRead
	case OpDecode:
		return target == ErrPersistenceDecode
	case OpWrite:
		return target == ErrPersistenceWrite
	}
	return false
}

// EntryStore is the store surface consumed by the tunnel manager and the UI.
type EntryStore interface {
	Load() error
	Wait(ctx context.Context) (LoadState, error)
	State() LoadState

	Entries() []Entry
	Get(identifier string) (Entry, bool)
	Len() int

	Add(e Entry) error
	Remove(identifier string) error
	Edit(identifier string, fields Fields) error
	Save() error

	Subscribe() (<-chan Event, func())
	SetStatusSource(src StatusSource)
}

var _ EntryStore = (*Store)(nil)
