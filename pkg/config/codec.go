package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// wireEntry mirrors Entry on disk. Pointers let Decode tell a missing key
// from a zero value.
type wireEntry struct {
	Nickname   *string `json:"nickname"`
	Identifier *string `json:"identifier"`
	Env        *string `json:"env"`
	LocalPort  *int    `json:"localPort"`
	RemotePort *int    `json:"remotePort"`
}

// Encode serializes entries as a JSON array in sequence order.
// Runtime status is not part of the output. An empty sequence encodes as [].
func Encode(entries []Entry) ([]byte, error) {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return json.Marshal(out)
}

// Decode parses a JSON array of entries, preserving order. Every decoded
// entry starts Stopped whatever the file contains. Unknown keys are ignored.
func Decode(data []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("expected a JSON array of entries")
	}

	var wire []wireEntry
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(wire))
	for i, w := range wire {
		switch {
		case w.Identifier == nil:
			return nil, fmt.Errorf("entry %d: missing identifier", i)
		case w.Env == nil:
			return nil, fmt.Errorf("entry %d (%s): missing env", i, *w.Identifier)
		case w.LocalPort == nil:
			return nil, fmt.Errorf("entry %d (%s): missing localPort", i, *w.Identifier)
		case w.RemotePort == nil:
			return nil, fmt.Errorf("entry %d (%s): missing remotePort", i, *w.Identifier)
		}
		entries = append(entries, Entry{
			Nickname:   w.Nickname,
			Identifier: *w.Identifier,
			Env:        *w.Env,
			LocalPort:  *w.LocalPort,
			RemotePort: *w.RemotePort,
			Status:     StatusStopped,
		})
	}
	return entries, nil
}

// validateEntries checks every entry and that identifiers are unique.
func validateEntries(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if seen[e.Identifier] {
			return fmt.Errorf("entry %d: %w: '%s'", i, ErrDuplicateIdentifier, e.Identifier)
		}
		seen[e.Identifier] = true
	}
	return nil
}
