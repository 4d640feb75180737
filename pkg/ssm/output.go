package ssm

import (
	"bytes"
	"strings"
	"sync"

	"pkt.systems/pslog"
)

// maxPartialLine flushes output that never ends in a newline.
const maxPartialLine = 4096

// lineWriter drains one output stream of a session process into the log.
// exec copies the child's pipe into it continuously, so the child never
// blocks on a full pipe buffer.
type lineWriter struct {
	log    pslog.Logger
	stream string

	mu   sync.Mutex
	buf  []byte
	last string
}

func newLineWriter(log pslog.Logger, stream string) *lineWriter {
	return &lineWriter{log: log, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxPartialLine {
		w.emit(string(w.buf))
		w.buf = nil
	}
	return len(p), nil
}

// emit must be called with mu held.
func (w *lineWriter) emit(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	w.last = line
	w.log.Debug("session output", "stream", w.stream, "line", line)
}

// Last returns the most recent non-empty line, including an unterminated tail.
func (w *lineWriter) Last() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if tail := strings.TrimSpace(string(w.buf)); tail != "" {
		return tail
	}
	return w.last
}
