// Package health projects entry status onto a three-state health value and
// a one-line summary for display.
package health

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/xlttj/ssmfwd/pkg/config"
)

// Health is the display state of an entry.
type Health int

const (
	Unchecked Health = iota // No session
	Okay                    // Session running
	Failed                  // Last session failed
)

// String makes Health satisfy the fmt.Stringer interface.
func (h Health) String() string {
	switch h {
	case Okay:
		return "okay"
	case Failed:
		return "failed"
	default:
		return "unchecked"
	}
}

// Of maps a session status onto its health.
func Of(status config.Status) Health {
	switch status {
	case config.StatusRunning:
		return Okay
	case config.StatusError:
		return Failed
	default:
		return Unchecked
	}
}

// View is an entry together with its projected health.
type View struct {
	Entry   config.Entry
	Health  Health
	Summary string
}

// now is swapped in tests.
var now = time.Now

// Project computes the view of a single entry.
func Project(e config.Entry) View {
	h := Of(e.Status)
	return View{Entry: e, Health: h, Summary: summary(e, h)}
}

// ProjectAll projects every entry, keeping order.
func ProjectAll(entries []config.Entry) []View {
	views := make([]View, len(entries))
	for i, e := range entries {
		views[i] = Project(e)
	}
	return views
}

func summary(e config.Entry, h Health) string {
	switch h {
	case Okay:
		s := fmt.Sprintf("Running, accessing %d at localhost:%d", e.RemotePort, e.LocalPort)
		if !e.Since.IsZero() {
			s += fmt.Sprintf(" (started %s)", humanize.RelTime(e.Since, now(), "ago", "from now"))
		}
		return s
	case Failed:
		if e.StatusMessage == "" {
			return "Connection failed"
		}
		return "Connection failed: " + e.StatusMessage
	default:
		return "Not running"
	}
}
