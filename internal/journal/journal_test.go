package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/dropship/internal/provisioning"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.Context(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(t.Context(), path)
	require.NoError(t, err)
	require.NoError(t, j.BeginRun(t.Context(), "r1", "lab"))
	require.NoError(t, j.Close())

	j, err = Open(t.Context(), path)
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.Runs(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)
	ctx := t.Context()

	require.NoError(t, j.BeginRun(ctx, "r1", "corp1,corp2"))
	require.NoError(t, j.Record(ctx, "r1", provisioning.Event{
		Type:     provisioning.EventPushCompleted,
		Phase:    "bootstrap",
		Resource: "corp1_services",
		Message:  "bootstrap applied",
		Fields:   map[string]string{"task_set": "bootstrap"},
	}))
	require.NoError(t, j.EndRun(ctx, "r1", nil))

	runs, err := j.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusSucceeded, runs[0].Status)
	assert.Equal(t, "corp1,corp2", runs[0].Summary)
	assert.Equal(t, 1, runs[0].Events)
	require.NotNil(t, runs[0].FinishedAt)

	events, err := j.Events(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "push.completed", events[0].Type)
	assert.Equal(t, "corp1_services", events[0].Resource)
	assert.Equal(t, map[string]string{"task_set": "bootstrap"}, events[0].Fields)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestEndRunFailure(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)
	ctx := t.Context()

	require.NoError(t, j.BeginRun(ctx, "r1", ""))
	require.NoError(t, j.EndRun(ctx, "r1", errors.New("phase bootstrap failed")))

	runs, err := j.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "phase bootstrap failed", runs[0].Error)
}

func TestUnknownRun(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)

	err := j.EndRun(t.Context(), "missing", nil)
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = j.Events(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestDuplicateRun(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)
	require.NoError(t, j.BeginRun(t.Context(), "r1", ""))
	assert.Error(t, j.BeginRun(t.Context(), "r1", ""))
}

func TestRunsNewestFirstWithLimit(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)
	ctx := t.Context()

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, j.BeginRun(ctx, id, ""))
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := j.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
}

func TestObserverRecordsWithFields(t *testing.T) {
	t.Parallel()
	j := openTestJournal(t)
	ctx := t.Context()
	require.NoError(t, j.BeginRun(ctx, "r1", ""))

	o := NewObserver(j, "r1").WithFields(map[string]string{"instance": "corp1", "group": "services"})
	provisioning.LogGroupState(o, "bootstrap", provisioning.StateCloning)
	o.Event(provisioning.Event{Type: provisioning.EventVMStarted, Fields: map[string]string{"group": "clients"}})
	o.Printf("ignored")
	o.Progress("bootstrap", 1, 2)

	events, err := j.Events(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "corp1", events[0].Fields["instance"])
	assert.Equal(t, "services", events[0].Fields["group"])
	assert.Equal(t, "clients", events[1].Fields["group"])
}

func TestObserverSurvivesClosedJournal(t *testing.T) {
	t.Parallel()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	o := NewObserver(j, "r1")
	assert.NotPanics(t, func() {
		o.Event(provisioning.Event{Type: provisioning.EventProgress})
		o.Event(provisioning.Event{Type: provisioning.EventProgress})
	})
}
