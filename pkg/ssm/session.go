package ssm

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/notify"

	"pkt.systems/pslog"
)

const (
	defaultStopTimeout = 5 * time.Second
	// waitDelay bounds how long Wait keeps draining output after the process exits.
	waitDelay = 2 * time.Second
)

// ExitReason tells why a session process ended.
type ExitReason int

const (
	ExitRequested ExitReason = iota // Stop was called
	ExitAbnormal                    // The process ended on its own
)

// String makes ExitReason satisfy the fmt.Stringer interface.
func (r ExitReason) String() string {
	if r == ExitRequested {
		return "requested"
	}
	return "abnormal"
}

// ExitEvent is passed to the exit handler when a session process ends.
type ExitEvent struct {
	Identifier string
	HandleID   uuid.UUID
	Reason     ExitReason
	Err        error // *AbnormalTermination for ExitAbnormal
}

// Event is published on every session status change.
type Event struct {
	Identifier string
	Status     config.Status
	Err        error
	HandleID   uuid.UUID
}

// Options configures a Supervisor.
type Options struct {
	Executable  string
	BinDir      string
	ProfileEnv  string
	StopTimeout time.Duration
	Environ     func() []string // Defaults to os.Environ
	Logger      pslog.Logger
}

// OptionsFromSettings maps application settings onto supervisor options.
func OptionsFromSettings(s config.AWSSettings, logger pslog.Logger) Options {
	return Options{
		Executable:  s.Executable,
		BinDir:      s.BinDir,
		ProfileEnv:  s.ProfileEnv,
		StopTimeout: s.StopTimeout,
		Logger:      logger,
	}
}

// Handle references one live session process.
type Handle struct {
	ID         uuid.UUID
	Identifier string
	Spec       ConnectionSpec
	PID        int
	StartedAt  time.Time

	cmd     *exec.Cmd
	stderr  *lineWriter
	done    chan struct{}
	exitErr error

	requested bool // guarded by Supervisor.mu
}

// Alive reports whether the process has not exited yet.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitErr returns the error from waiting on the process. Valid after Done.
func (h *Handle) ExitErr() error {
	<-h.done
	return h.exitErr
}

// SessionState is the last known status of an identifier's session.
type SessionState struct {
	Status config.Status
	Err    error     // Set for StatusError
	Since  time.Time // Time of the last status change
}

// Supervisor owns the session processes, keyed by entry identifier.
// All changes to the process table and to session status happen under mu,
// including the reconciliation of process exits.
type Supervisor struct {
	opts Options
	log  pslog.Logger
	bus  *notify.Bus[Event]

	mu       sync.Mutex
	sessions map[string]*Handle
	records  map[string]SessionState

	handlerMu sync.Mutex
	onExit    func(ExitEvent)
	exits     chan ExitEvent
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSupervisor creates a Supervisor and starts its exit dispatcher.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = pslog.Ctx(context.Background())
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	s := &Supervisor{
		opts:     opts,
		log:      opts.Logger.With("component", "ssm"),
		bus:      notify.New[Event](opts.Logger, 0),
		sessions: make(map[string]*Handle),
		records:  make(map[string]SessionState),
		exits:    make(chan ExitEvent, 64),
		closed:   make(chan struct{}),
	}
	go s.dispatchExits()
	return s
}

// OnExit registers the handler called, in order and one at a time, for
// every session process exit.
func (s *Supervisor) OnExit(fn func(ExitEvent)) {
	s.handlerMu.Lock()
	s.onExit = fn
	s.handlerMu.Unlock()
}

// Subscribe returns a channel of status changes and a cancel func.
func (s *Supervisor) Subscribe() (<-chan Event, func()) {
	return s.bus.Subscribe()
}

// Start launches a session for identifier. If a live session already exists
// its handle is returned and nothing is spawned.
func (s *Supervisor) Start(identifier string, spec ConnectionSpec) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.sessions[identifier]; ok {
		if h.Alive() {
			s.log.Debug("session already running", "identifier", identifier, "session", h.ID)
			return h, nil
		}
		// Exited but not reconciled yet; its monitor will see it was replaced.
		s.log.Debug("replacing exited session", "identifier", identifier, "session", h.ID)
		delete(s.sessions, identifier)
	}

	id := uuid.New()
	log := s.log.With("identifier", identifier, "session", id.String())
	cmd := s.command(spec)
	stderr := newLineWriter(log, "stderr")
	cmd.Stdout = newLineWriter(log, "stdout")
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	log.Debug("starting session", "executable", cmd.Path, "args", cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		spawnErr := &SpawnError{Identifier: identifier, Executable: s.opts.Executable, Err: err}
		s.setRecordLocked(identifier, config.StatusError, spawnErr, uuid.Nil)
		log.Error("session spawn failed", "err", err)
		return nil, spawnErr
	}

	h := &Handle{
		ID:         id,
		Identifier: identifier,
		Spec:       spec,
		PID:        cmd.Process.Pid,
		StartedAt:  time.Now(),
		cmd:        cmd,
		stderr:     stderr,
		done:       make(chan struct{}),
	}
	s.sessions[identifier] = h
	s.setRecordLocked(identifier, config.StatusRunning, nil, h.ID)
	log.Info("session started", "pid", h.PID, "local_port", spec.LocalPort, "remote_port", spec.RemotePort)

	go s.monitor(h, log)
	return h, nil
}

// Stop asks the session process for identifier to terminate and forgets its
// handle. It does nothing if no session exists.
func (s *Supervisor) Stop(identifier string) error {
	s.mu.Lock()
	h, ok := s.sessions[identifier]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.sessions, identifier)
	h.requested = true
	s.setRecordLocked(identifier, config.StatusStopped, nil, h.ID)
	s.mu.Unlock()

	log := s.log.With("identifier", identifier, "session", h.ID.String())
	log.Info("stopping session", "pid", h.PID)
	err := terminate(h.cmd.Process)
	if err != nil {
		log.Error("failed to signal session", "err", err)
	}

	go func() {
		timer := time.NewTimer(s.opts.StopTimeout)
		defer timer.Stop()
		select {
		case <-h.done:
		case <-timer.C:
			log.Warn("session did not exit, killing", "timeout", s.opts.StopTimeout.String())
			_ = h.cmd.Process.Kill()
		}
	}()
	return err
}

// StopAll stops every session and waits for the processes to exit.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.sessions))
	for _, h := range s.sessions {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			if err := s.Stop(h.Identifier); err != nil {
				return err
			}
			select {
			case <-h.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	err := g.Wait()
	s.log.Debug("stopped all sessions", "count", len(handles))
	return err
}

// Handle returns the current handle for identifier, if any.
func (s *Supervisor) Handle(identifier string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[identifier]
	return h, ok
}

// Running returns the number of sessions with a handle.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Status returns the session state of identifier. Unknown identifiers are Stopped.
func (s *Supervisor) Status(identifier string) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[identifier]
}

// SessionStatus implements config.StatusSource.
func (s *Supervisor) SessionStatus(identifier string) (config.Status, string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[identifier]
	return r.Status, errString(r.Err), r.Since
}

// Forget drops the status record of an identifier without a session, so a
// removed entry does not leave an Error behind.
func (s *Supervisor) Forget(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.sessions[identifier]; running {
		return
	}
	delete(s.records, identifier)
}

// Close stops the exit dispatcher and closes subscriber channels. Sessions
// are not stopped; call StopAll first.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.bus.Close()
	})
}

// monitor waits for the process and reconciles the exit under the lock.
func (s *Supervisor) monitor(h *Handle, log pslog.Logger) {
	err := h.cmd.Wait()
	h.exitErr = err
	close(h.done)

	s.mu.Lock()
	ev := ExitEvent{Identifier: h.Identifier, HandleID: h.ID, Reason: ExitRequested}
	if !h.requested {
		ev.Reason = ExitAbnormal
		ev.Err = &AbnormalTermination{
			Identifier: h.Identifier,
			ExitCode:   exitCode(err),
			Stderr:     h.stderr.Last(),
			Err:        err,
		}
	}
	current := s.sessions[h.Identifier] == h
	if current {
		delete(s.sessions, h.Identifier)
		s.setRecordLocked(h.Identifier, config.StatusError, ev.Err, h.ID)
	}
	s.mu.Unlock()

	if ev.Reason == ExitAbnormal {
		log.Warn("session exited unexpectedly", "err", ev.Err, "current", current)
	} else {
		log.Info("session stopped", "exit", errString(err))
	}

	select {
	case s.exits <- ev:
	case <-s.closed:
	}
}

func (s *Supervisor) dispatchExits() {
	for {
		select {
		case ev := <-s.exits:
			s.handlerMu.Lock()
			fn := s.onExit
			s.handlerMu.Unlock()
			if fn != nil {
				fn(ev)
			}
		case <-s.closed:
			return
		}
	}
}

// setRecordLocked records a status change and notifies subscribers.
func (s *Supervisor) setRecordLocked(identifier string, status config.Status, err error, handleID uuid.UUID) {
	s.records[identifier] = SessionState{Status: status, Err: err, Since: time.Now()}
	s.bus.Publish(Event{Identifier: identifier, Status: status, Err: err, HandleID: handleID})
}

// terminate asks the process to exit, falling back to a kill where signals
// are not supported.
func terminate(p *os.Process) error {
	if runtime.GOOS == "windows" {
		return ignoreDone(p.Kill())
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return ignoreDone(p.Kill())
	}
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
