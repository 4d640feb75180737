package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xlttj/ssmfwd/pkg/notify"

	"pkt.systems/pslog"
)

// FileName is the name of the backing file inside the data directory.
const FileName = "connections.json"

// Phase is the tag of a LoadState.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

// String makes Phase satisfy the fmt.Stringer interface.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseLoading:
		return "Loading"
	case PhaseLoaded:
		return "Loaded"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// LoadState is the store's load lifecycle. Err is only set when Phase is PhaseFailed.
type LoadState struct {
	Phase Phase
	Err   error
}

// EventKind identifies a store notification.
type EventKind int

const (
	EventState      EventKind = iota // Load state changed
	EventEntries                     // The entry sequence changed
	EventSaveFailed                  // A save that had no caller to report to failed
)

// Event is published once per logical change.
type Event struct {
	Kind  EventKind
	State LoadState
	Err   error
}

// Store owns the ordered entry sequence and its persistence.
// Mutations are only valid once the store is loaded.
type Store struct {
	path string
	log  pslog.Logger
	bus  *notify.Bus[Event]

	mu       sync.Mutex
	state    LoadState
	entries  []Entry
	rev      uint64
	loadDone chan struct{}
	status   StatusSource

	// writeMu serializes disk writes; written is the revision last on disk.
	writeMu sync.Mutex
	written uint64

	// Swapped in tests.
	stat     func(string) (os.FileInfo, error)
	readFile func(string) ([]byte, error)
}

// DefaultPath returns the connections file path inside dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// NewStore creates an Idle store backed by path.
func NewStore(path string, logger pslog.Logger) *Store {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("store", path)
	done := make(chan struct{})
	close(done)
	return &Store{
		path:     path,
		log:      logger,
		bus:      notify.New[Event](logger, 0),
		loadDone: done,
		stat:     os.Stat,
		readFile: os.ReadFile,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// SetStatusSource sets where snapshots take their runtime status from.
func (s *Store) SetStatusSource(src StatusSource) {
	s.mu.Lock()
	s.status = src
	s.mu.Unlock()
}

// Subscribe returns a channel of store events and a cancel func.
func (s *Store) Subscribe() (<-chan Event, func()) {
	return s.bus.Subscribe()
}

// State returns the current load state.
func (s *Store) State() LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load starts loading the backing file. The store is Loading when Load returns;
// the file is read in the background. Valid only from Idle or Failed.
func (s *Store) Load() error {
	s.mu.Lock()
	if s.state.Phase != PhaseIdle && s.state.Phase != PhaseFailed {
		phase := s.state.Phase
		s.mu.Unlock()
		return fmt.Errorf("%w: load requested while %s", ErrInvalidState, phase)
	}
	s.state = LoadState{Phase: PhaseLoading}
	s.entries = nil
	done := make(chan struct{})
	s.loadDone = done
	s.bus.Publish(Event{Kind: EventState, State: s.state})
	s.mu.Unlock()

	s.log.Debug("store load started")
	go s.loadFromDisk(done)
	return nil
}

// Wait blocks until the current load has finished or ctx is done.
func (s *Store) Wait(ctx context.Context) (LoadState, error) {
	s.mu.Lock()
	done := s.loadDone
	s.mu.Unlock()
	select {
	case <-done:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// loadFromDisk runs off the caller's goroutine and reports back under the lock.
func (s *Store) loadFromDisk(done chan struct{}) {
	defer close(done)

	if _, err := s.stat(s.path); errors.Is(err, fs.ErrNotExist) {
		s.log.Info("connections file does not exist, starting empty")
		data, rev := s.finishLoad(nil, nil)
		if err := s.persist(data, rev); err != nil {
			s.log.Error("initial save failed", "err", err)
			s.bus.Publish(Event{Kind: EventSaveFailed, Err: err})
		}
		return
	} else if err != nil {
		s.finishLoad(nil, &PersistenceError{Op: OpRead, Path: s.path, Err: err})
		return
	}

	data, err := s.readFile(s.path)
	if err != nil {
		s.finishLoad(nil, &PersistenceError{Op: OpRead, Path: s.path, Err: err})
		return
	}
	entries, err := Decode(data)
	if err == nil {
		err = validateEntries(entries)
	}
	if err != nil {
		s.finishLoad(nil, &PersistenceError{Op: OpDecode, Path: s.path, Err: err})
		return
	}
	s.finishLoad(entries, nil)
}

// finishLoad applies the load result. On success it returns the encoded
// snapshot so an absent file can be created.
func (s *Store) finishLoad(entries []Entry, loadErr error) ([]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if loadErr != nil {
		s.state = LoadState{Phase: PhaseFailed, Err: loadErr}
		s.entries = nil
		s.log.Warn("store load failed", "err", loadErr)
		s.bus.Publish(Event{Kind: EventState, State: s.state})
		return nil, 0
	}

	s.state = LoadState{Phase: PhaseLoaded}
	s.entries = entries
	if s.entries == nil {
		s.entries = []Entry{}
	}
	s.log.Info("store loaded", "entries", len(s.entries))
	s.bus.Publish(Event{Kind: EventState, State: s.state})
	s.bus.Publish(Event{Kind: EventEntries, State: s.state})

	data, rev, err := s.snapshotLocked()
	if err != nil {
		s.log.Error("encode after load failed", "err", err)
		return nil, 0
	}
	return data, rev
}

// Entries returns a copy of the sequence with runtime status filled in.
// It is empty unless the store is loaded.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = s.withStatusLocked(e)
	}
	return out
}

// Get returns the entry with the given identifier.
func (s *Store) Get(identifier string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(identifier); i >= 0 {
		return s.withStatusLocked(s.entries[i]), true
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Add appends e to the sequence and saves.
func (s *Store) Add(e Entry) error {
	s.mu.Lock()
	if err := s.requireLoadedLocked("add"); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := e.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.indexLocked(e.Identifier) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: '%s'", ErrDuplicateIdentifier, e.Identifier)
	}
	e.Status, e.StatusMessage, e.Since = StatusStopped, "", time.Time{}
	s.entries = append(s.entries, e)
	s.log.Debug("entry added", "identifier", e.Identifier)
	return s.commitLocked()
}

// Remove deletes the entry with the given identifier. Removing an absent
// identifier is a no-op.
func (s *Store) Remove(identifier string) error {
	s.mu.Lock()
	if err := s.requireLoadedLocked("remove"); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(identifier)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
	s.log.Debug("entry removed", "identifier", identifier)
	return s.commitLocked()
}

// Edit updates nickname, env and ports of an entry in place. The identifier
// cannot change.
func (s *Store) Edit(identifier string, fields Fields) error {
	s.mu.Lock()
	if err := s.requireLoadedLocked("edit"); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(identifier)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: '%s'", ErrNotFound, identifier)
	}
	updated := fields.apply(s.entries[i])
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.entries[i] = updated
	s.log.Debug("entry edited", "identifier", identifier)
	return s.commitLocked()
}

// Save writes the current sequence to disk. Valid only when loaded.
func (s *Store) Save() error {
	s.mu.Lock()
	if err := s.requireLoadedLocked("save"); err != nil {
		s.mu.Unlock()
		return err
	}
	data, rev, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return &PersistenceError{Op: OpWrite, Path: s.path, Err: err}
	}
	return s.persist(data, rev)
}

// commitLocked publishes the change, releases the lock and writes the new
// snapshot. The in-memory change stays even if the write fails.
func (s *Store) commitLocked() error {
	s.bus.Publish(Event{Kind: EventEntries, State: s.state})
	data, rev, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return &PersistenceError{Op: OpWrite, Path: s.path, Err: err}
	}
	return s.persist(data, rev)
}

func (s *Store) snapshotLocked() ([]byte, uint64, error) {
	data, err := Encode(s.entries)
	if err != nil {
		return nil, 0, err
	}
	s.rev++
	return data, s.rev, nil
}

// persist writes a snapshot atomically unless a newer one is already on disk.
func (s *Store) persist(data []byte, rev uint64) error {
	if data == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if rev < s.written {
		s.log.Debug("skipping stale snapshot", "rev", rev, "written", s.written)
		return nil
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.log.Error("save failed", "err", err)
		return &PersistenceError{Op: OpWrite, Path: s.path, Err: err}
	}
	s.written = rev
	s.log.Debug("saved", "rev", rev, "bytes", len(data))
	return nil
}

func (s *Store) requireLoadedLocked(op string) error {
	if s.state.Phase != PhaseLoaded {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, s.state.Phase)
	}
	return nil
}

func (s *Store) indexLocked(identifier string) int {
	for i, e := range s.entries {
		if e.Identifier == identifier {
			return i
		}
	}
	return -1
}

func (s *Store) withStatusLocked(e Entry) Entry {
	if s.status == nil {
		e.Status, e.StatusMessage, e.Since = StatusStopped, "", time.Time{}
		return e
	}
	e.Status, e.StatusMessage, e.Since = s.status.SessionStatus(e.Identifier)
	return e
}

// writeFileAtomic replaces path with data through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "connections-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
