package ssm

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn matches every *SpawnError.
	ErrSpawn = errors.New("session process could not be started")
	// ErrAbnormalTermination matches every *AbnormalTermination.
	ErrAbnormalTermination = errors.New("session process exited unexpectedly")
)

// SpawnError is returned when the session-manager process cannot be launched,
// for example when the executable is missing or not executable.
type SpawnError struct {
	Identifier string
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start session for %s (%s): %v", e.Identifier, e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// AbnormalTermination describes a session process that exited without being stopped.
type AbnormalTermination struct {
	Identifier string
	ExitCode   int    // -1 when the process was killed by a signal
	Stderr     string // Last line the process wrote to stderr
	Err        error
}

func (e *AbnormalTermination) Error() string {
	msg := fmt.Sprintf("session for %s exited with code %d", e.Identifier, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *AbnormalTermination) Unwrap() error { return e.Err }

func (e *AbnormalTermination) Is(target error) bool { return target == ErrAbnormalTermination }
