package config

import (
	"fmt"
	"strings"
	"time"
)

// Status is the runtime state of an entry's session. It is never persisted.
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
	StatusError
)

// String makes Status satisfy the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusRunning:
		return "Running"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Entry is a tunnel definition persisted in connections.json.
// Status, StatusMessage and Since are filled in from the session supervisor
// when a snapshot is taken and are never written to disk.
type Entry struct {
	Nickname   *string `json:"nickname"`
	Identifier string  `json:"identifier"` // Instance id, unique within the store
	Env        string  `json:"env"`        // Credential profile passed to the aws cli
	LocalPort  int     `json:"localPort"`
	RemotePort int     `json:"remotePort"`

	Status        Status    `json:"-"`
	StatusMessage string    `json:"-"`
	Since         time.Time `json:"-"`
}

// NewEntry creates a stopped entry without a nickname.
func NewEntry(identifier, env string, localPort, remotePort int) Entry {
	return Entry{
		Identifier: identifier,
		Env:        env,
		LocalPort:  localPort,
		RemotePort: remotePort,
	}
}

// WithNickname returns a copy of e with the nickname set. An empty name clears it.
func (e Entry) WithNickname(name string) Entry {
	e.Nickname = nicknamePtr(name)
	return e
}

// Name returns the display name, falling back to the identifier.
func (e Entry) Name() string {
	if e.Nickname == nil || *e.Nickname == "" {
		return e.Identifier
	}
	return *e.Nickname
}

// Validate checks the persisted fields of the entry.
func (e Entry) Validate() error {
	if e.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Identifier) != e.Identifier {
		return fmt.Errorf("%w: identifier '%s' contains leading/trailing whitespace", ErrInvalidEntry, e.Identifier)
	}
	if strings.TrimSpace(e.Env) == "" {
		return fmt.Errorf("%w: env is required for '%s'", ErrInvalidEntry, e.Identifier)
	}
	if err := validatePort("localPort", e.LocalPort); err != nil {
		return fmt.Errorf("%w for '%s'", err, e.Identifier)
	}
	if err := validatePort("remotePort", e.RemotePort); err != nil {
		return fmt.Errorf("%w for '%s'", err, e.Identifier)
	}
	return nil
}

// Fields holds the editable parts of an entry. Nil fields are left unchanged.
type Fields struct {
	Nickname   *string
	Env        *string
	LocalPort  *int
	RemotePort *int
}

// apply returns a copy of e with the non-nil fields applied.
func (f Fields) apply(e Entry) Entry {
	if f.Nickname != nil {
		e.Nickname = nicknamePtr(*f.Nickname)
	}
	if f.Env != nil {
		e.Env = *f.Env
	}
	if f.LocalPort != nil {
		e.LocalPort = *f.LocalPort
	}
	if f.RemotePort != nil {
		e.RemotePort = *f.RemotePort
	}
	return e
}

// ConnectionChanged reports whether applying f to e changes anything a running
// session depends on.
func (f Fields) ConnectionChanged(e Entry) bool {
	n := f.apply(e)
	return n.Env != e.Env || n.LocalPort != e.LocalPort || n.RemotePort != e.RemotePort
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %s %d out of range 1-65535", ErrInvalidEntry, name, port)
	}
	return nil
}

func nicknamePtr(name string) *string {
	if name == "" {
		return nil
	}
	return &name
}

// StatusSource supplies the runtime status for an identifier.
type StatusSource interface {
	SessionStatus(identifier string) (status Status, message string, since time.Time)
}
