package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xlttj/ssmfwd/pkg/config"
)

func TestOf(t *testing.T) {
	assert.Equal(t, Unchecked, Of(config.StatusStopped))
	assert.Equal(t, Okay, Of(config.StatusRunning))
	assert.Equal(t, Failed, Of(config.StatusError))
}

func TestProjectSummaries(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = orig })

	e := config.NewEntry("i-1", "dev", 8080, 80)

	v := Project(e)
	assert.Equal(t, Unchecked, v.Health)
	assert.Equal(t, "Not running", v.Summary)

	e.Status = config.StatusRunning
	e.Since = fixed.Add(-3 * time.Minute)
	v = Project(e)
	assert.Equal(t, Okay, v.Health)
	assert.Equal(t, "Running, accessing 80 at localhost:8080 (started 3 minutes ago)", v.Summary)

	e.Since = time.Time{}
	assert.Equal(t, "Running, accessing 80 at localhost:8080", Project(e).Summary)

	e.Status = config.StatusError
	e.StatusMessage = "exited with code 255"
	v = Project(e)
	assert.Equal(t, Failed, v.Health)
	assert.Equal(t, "Connection failed: exited with code 255", v.Summary)
}

func TestProjectAllKeepsOrder(t *testing.T) {
	entries := []config.Entry{
		config.NewEntry("i-2", "dev", 1, 2),
		config.NewEntry("i-1", "dev", 3, 4),
	}
	views := ProjectAll(entries)
	assert.Len(t, views, 2)
	assert.Equal(t, "i-2", views[0].Entry.Identifier)
	assert.Equal(t, "i-1", views[1].Entry.Identifier)
}
