package ssm

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xlttj/ssmfwd/pkg/config"

	"pkt.systems/pslog"
)

const (
	sleeper = "#!/bin/sh\nexec sleep 30\n"
	failing = "#!/bin/sh\necho 'An error occurred (TargetNotConnected)' >&2\nexit 3\n"
)

// fakeAWS writes an executable shell script standing in for the aws cli.
func fakeAWS(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "aws")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestSupervisor(t *testing.T, executable string) *Supervisor {
	t.Helper()
	s := NewSupervisor(Options{
		Executable:  executable,
		ProfileEnv:  "AWS_PROFILE",
		StopTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.StopAll(ctx)
		s.Close()
	})
	return s
}

var testSpec = ConnectionSpec{Target: "i-1", Profile: "dev", LocalPort: 13389, RemotePort: 3389}

// exitRecorder collects exit callbacks.
type exitRecorder struct {
	mu     sync.Mutex
	events []ExitEvent
}

func (r *exitRecorder) record(ev ExitEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *exitRecorder) all() []ExitEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExitEvent(nil), r.events...)
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not exit", h.ID)
	}
}

func TestStartSpawnError(t *testing.T) {
	s := newTestSupervisor(t, filepath.Join(t.TempDir(), "does-not-exist"))

	h, err := s.Start("i-1", testSpec)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrSpawn)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "i-1", spawnErr.Identifier)

	_, ok := s.Handle("i-1")
	assert.False(t, ok)
	st := s.Status("i-1")
	assert.Equal(t, config.StatusError, st.Status)
	assert.ErrorIs(t, st.Err, ErrSpawn)

	status, msg, _ := s.SessionStatus("i-1")
	assert.Equal(t, config.StatusError, status)
	assert.NotEmpty(t, msg)
}

func TestStartIsIdempotentWhileAlive(t *testing.T) {
	s := newTestSupervisor(t, fakeAWS(t, sleeper))

	h1, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	assert.True(t, h1.Alive())
	assert.NotZero(t, h1.PID)

	h2, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	assert.Equal(t, h1.ID, h2.ID)
	assert.Equal(t, 1, s.Running())
	assert.Equal(t, config.StatusRunning, s.Status("i-1").Status)
}

func TestStopThenRestart(t *testing.T) {
	s := newTestSupervisor(t, fakeAWS(t, sleeper))
	rec := &exitRecorder{}
	s.OnExit(rec.record)

	h1, err := s.Start("i-1", testSpec)
	require.NoError(t, err)

	require.NoError(t, s.Stop("i-1"))
	assert.Equal(t, config.StatusStopped, s.Status("i-1").Status)
	_, ok := s.Handle("i-1")
	assert.False(t, ok)
	waitDone(t, h1)

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	ev := rec.all()[0]
	assert.Equal(t, ExitRequested, ev.Reason)
	assert.Equal(t, h1.ID, ev.HandleID)
	assert.NoError(t, ev.Err)
	// A requested exit leaves the status alone.
	assert.Equal(t, config.StatusStopped, s.Status("i-1").Status)

	h2, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID, h2.ID)
	assert.Equal(t, config.StatusRunning, s.Status("i-1").Status)
}

func TestStopWithoutSession(t *testing.T) {
	s := newTestSupervisor(t, fakeAWS(t, sleeper))
	assert.NoError(t, s.Stop("i-unknown"))
	assert.Equal(t, config.StatusStopped, s.Status("i-unknown").Status)
}

func TestAbnormalExit(t *testing.T) {
	s := newTestSupervisor(t, fakeAWS(t, failing))
	rec := &exitRecorder{}
	s.OnExit(rec.record)
	events, cancel := s.Subscribe()
	defer cancel()

	h, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	waitDone(t, h)

	require.Eventually(t, func() bool {
		return s.Status("i-1").Status == config.StatusError
	}, 5*time.Second, 10*time.Millisecond)
	_, ok := s.Handle("i-1")
	assert.False(t, ok)

	var term *AbnormalTermination
	require.ErrorAs(t, s.Status("i-1").Err, &term)
	assert.Equal(t, 3, term.ExitCode)
	assert.Equal(t, "An error occurred (TargetNotConnected)", term.Stderr)
	assert.ErrorIs(t, s.Status("i-1").Err, ErrAbnormalTermination)

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, ExitAbnormal, rec.all()[0].Reason)

	assert.Equal(t, config.StatusRunning, (<-events).Status)
	assert.Equal(t, config.StatusError, (<-events).Status)
}

func TestRestartAfterError(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "first-run")
	// Fails on the first run, stays up on the second.
	script := "#!/bin/sh\nif [ ! -f " + marker + " ]; then touch " + marker + "; exit 1; fi\nexec sleep 30\n"
	s := newTestSupervisor(t, fakeAWS(t, script))

	h1, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	waitDone(t, h1)
	require.Eventually(t, func() bool {
		return s.Status("i-1").Status == config.StatusError
	}, 5*time.Second, 10*time.Millisecond)

	h2, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID, h2.ID)
	assert.True(t, h2.Alive())
	assert.Equal(t, config.StatusRunning, s.Status("i-1").Status)
}

func TestStaleExitDoesNotClobberNewSession(t *testing.T) {
	s := newTestSupervisor(t, fakeAWS(t, sleeper))

	h1, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	require.NoError(t, s.Stop("i-1"))
	h2, err := s.Start("i-1", testSpec)
	require.NoError(t, err)

	waitDone(t, h1)
	// Give the first monitor time to reconcile.
	time.Sleep(50 * time.Millisecond)

	cur, ok := s.Handle("i-1")
	require.True(t, ok)
	assert.Equal(t, h2.ID, cur.ID)
	assert.Equal(t, config.StatusRunning, s.Status("i-1").Status)
}

func TestSessionInvocation(t *testing.T) {
	out := filepath.Join(t.TempDir(), "invocation")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + out + "\necho \"profile=$AWS_PROFILE\" >> " + out + "\nexec sleep 30\n"
	s := newTestSupervisor(t, fakeAWS(t, script))

	_, err := s.Start("i-1", testSpec)
	require.NoError(t, err)

	var lines []string
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		if err != nil {
			return false
		}
		lines = strings.Split(strings.TrimSpace(string(data)), "\n")
		return len(lines) == 9
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "start-session", lines[1])
	assert.Equal(t, "i-1", lines[3])
	assert.Equal(t, DocumentName, lines[5])
	assert.Equal(t, `{"localPortNumber":["13389"],"portNumber":["3389"]}`, lines[7])
	assert.Equal(t, "profile=dev", lines[8])
}

func TestBareExecutableFoundInBinDir(t *testing.T) {
	aws := fakeAWS(t, sleeper)
	s := NewSupervisor(Options{
		Executable:  "aws",
		BinDir:      filepath.Dir(aws),
		ProfileEnv:  "AWS_PROFILE",
		StopTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.StopAll(ctx)
		s.Close()
	})

	h, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	assert.Equal(t, aws, h.cmd.Path)
	assert.True(t, h.Alive())
}

func TestStopEscalatesToKill(t *testing.T) {
	script := "#!/bin/sh\ntrap '' TERM\nwhile true; do sleep 1; done\n"
	s := newTestSupervisor(t, fakeAWS(t, script))

	h, err := s.Start("i-1", testSpec)
	require.NoError(t, err)
	require.NoError(t, s.Stop("i-1"))
	waitDone(t, h)
	assert.Equal(t, config.StatusStopped, s.Status("i-1").Status)
}

func TestStopAll(t *testing.T) {
	s := newTestSupervisor(t, fakeAWS(t, sleeper))

	var handles []*Handle
	for _, id := range []string{"i-1", "i-2", "i-3"} {
		h, err := s.Start(id, testSpec)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.StopAll(ctx))
	assert.Zero(t, s.Running())
	for _, h := range handles {
		assert.False(t, h.Alive())
		assert.Equal(t, config.StatusStopped, s.Status(h.Identifier).Status)
	}
}

func TestForget(t *testing.T) {
	s := newTestSupervisor(t, filepath.Join(t.TempDir(), "missing"))
	_, err := s.Start("i-1", testSpec)
	require.Error(t, err)

	s.Forget("i-1")
	assert.Equal(t, config.StatusStopped, s.Status("i-1").Status)
}

func TestLineWriterKeepsLastLine(t *testing.T) {
	w := newLineWriter(pslog.Ctx(context.Background()), "stderr")
	_, _ = w.Write([]byte("first\nsec"))
	assert.Equal(t, "sec", w.Last())
	_, _ = w.Write([]byte("ond\n\n"))
	assert.Equal(t, "second", w.Last())
}
