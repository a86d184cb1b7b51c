package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
	"github.com/jocr1627/fun-with-ml-server/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func progress(t *testing.T, v any) worker.Event {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return worker.Event{Type: worker.EventProgress, Payload: data}
}

func TestCreateOverwrites(t *testing.T) {
	m := NewJobManager()

	_, err := m.Create(models.JobKindGenerate, "1")
	require.NoError(t, err)
	_, changed := m.Apply(models.JobKindGenerate, "1", progress(t, "abc"))
	require.True(t, changed)

	job, err := m.Create(models.JobKindGenerate, "1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Empty(t, job.Chunks)
	assert.Equal(t, "1", job.ModelID)
}

func TestCreateRejectsUnknownKind(t *testing.T) {
	m := NewJobManager()
	_, err := m.Create(models.JobKind("delete"), "1")
	assert.ErrorIs(t, err, ErrInvalidKind)
	_, err = m.Start(models.JobKind(""), "1")
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestKindsHaveSeparateIDSpaces(t *testing.T) {
	m := NewJobManager()
	_, err := m.Create(models.JobKindGenerate, "1")
	require.NoError(t, err)

	assert.Nil(t, m.Get(models.JobKindTrain, "1"))
	assert.NotNil(t, m.Get(models.JobKindGenerate, "1"))
}

func TestStartRefusesInFlightJob(t *testing.T) {
	m := NewJobManager()

	_, err := m.Start(models.JobKindTrain, "1")
	require.NoError(t, err)

	existing, err := m.Start(models.JobKindTrain, "1")
	require.ErrorIs(t, err, ErrJobInProgress)
	assert.Equal(t, models.JobStatusPending, existing.Status)

	m.Apply(models.JobKindTrain, "1", worker.Event{Type: worker.EventDone})

	job, err := m.Start(models.JobKindTrain, "1")
	require.NoError(t, err, "finished jobs may be replaced")
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestChunksAreConcatenatedInArrivalOrder(t *testing.T) {
	m := NewJobManager()
	_, err := m.Create(models.JobKindGenerate, "1")
	require.NoError(t, err)

	parts := []string{"Once", " upon", " a", "", " time"}
	for _, p := range parts {
		job, changed := m.Apply(models.JobKindGenerate, "1", progress(t, p))
		require.True(t, changed)
		assert.Equal(t, models.JobStatusActive, job.Status)
	}

	job := m.Get(models.JobKindGenerate, "1")
	require.NotNil(t, job)
	assert.Equal(t, parts, job.Chunks)
	assert.Equal(t, "Once upon a time", job.Text())
}

func TestMetricsLastOneWins(t *testing.T) {
	m := NewJobManager()
	_, err := m.Create(models.JobKindTrain, "1")
	require.NoError(t, err)

	m.Apply(models.JobKindTrain, "1", progress(t, map[string]any{"loss": 0.9, "epoch": 1}))
	job, _ := m.Apply(models.JobKindTrain, "1", progress(t, map[string]any{"loss": 0.5}))

	assert.Equal(t, models.JobStatusActive, job.Status)
	assert.Equal(t, map[string]any{"loss": 0.5}, job.Metrics)
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	terminals := []struct {
		name   string
		event  worker.Event
		status models.JobStatus
	}{
		{"done", worker.Event{Type: worker.EventDone}, models.JobStatusDone},
		{"error", worker.Event{Type: worker.EventError, Message: "boom"}, models.JobStatusError},
	}
	later := []worker.Event{
		{Type: worker.EventDone},
		{Type: worker.EventError, Message: "late"},
		{Type: worker.EventProgress, Payload: json.RawMessage(`"stray"`)},
	}

	for _, tt := range terminals {
		t.Run(tt.name, func(t *testing.T) {
			m := NewJobManager()
			_, err := m.Create(models.JobKindGenerate, "1")
			require.NoError(t, err)
			m.Apply(models.JobKindGenerate, "1", progress(t, "a"))

			final, changed := m.Apply(models.JobKindGenerate, "1", tt.event)
			require.True(t, changed)
			require.Equal(t, tt.status, final.Status)
			require.NotNil(t, final.CompletedAt)

			for _, ev := range later {
				job, changed := m.Apply(models.JobKindGenerate, "1", ev)
				assert.False(t, changed)
				assert.Equal(t, final, job)
			}
			assert.Equal(t, final, *m.Get(models.JobKindGenerate, "1"))
		})
	}
}

func TestErrorAppendsMessage(t *testing.T) {
	m := NewJobManager()
	_, err := m.Create(models.JobKindTrain, "1")
	require.NoError(t, err)

	job, changed := m.Apply(models.JobKindTrain, "1", worker.Event{Type: worker.EventError, Message: "connection closed unexpectedly"})
	require.True(t, changed)
	assert.Equal(t, models.JobStatusError, job.Status)
	assert.Equal(t, []string{"connection closed unexpectedly"}, job.Errors)
}

func TestMalformedProgressFailsJob(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.JobKind
		payload string
	}{
		{"generate non-string", models.JobKindGenerate, `{"text":"a"}`},
		{"train non-object", models.JobKindTrain, `"loss"`},
		{"train array", models.JobKindTrain, `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewJobManager()
			_, err := m.Create(tt.kind, "1")
			require.NoError(t, err)

			job, changed := m.Apply(tt.kind, "1", worker.Event{Type: worker.EventProgress, Payload: json.RawMessage(tt.payload)})
			require.True(t, changed)
			assert.Equal(t, models.JobStatusError, job.Status)
			require.Len(t, job.Errors, 1)
			assert.Contains(t, job.Errors[0], "malformed")
		})
	}
}

func TestApplyUnknownJob(t *testing.T) {
	m := NewJobManager()
	job, changed := m.Apply(models.JobKindGenerate, "missing", worker.Event{Type: worker.EventDone})
	assert.False(t, changed)
	assert.Empty(t, job.ID)
}

func TestSnapshotsAreDetached(t *testing.T) {
	m := NewJobManager()
	_, err := m.Create(models.JobKindGenerate, "1")
	require.NoError(t, err)
	m.Apply(models.JobKindGenerate, "1", progress(t, "a"))

	snap := m.Get(models.JobKindGenerate, "1")
	snap.Chunks[0] = "changed"

	assert.Equal(t, []string{"a"}, m.Get(models.JobKindGenerate, "1").Chunks)
}

func TestReleaseRestoresPreviousJob(t *testing.T) {
	m := NewJobManager()

	_, err := m.Start(models.JobKindTrain, "1")
	require.NoError(t, err)
	done, _ := m.Apply(models.JobKindTrain, "1", worker.Event{Type: worker.EventDone})

	_, err = m.Start(models.JobKindTrain, "1")
	require.NoError(t, err)
	m.Release(models.JobKindTrain, "1", &done)

	got := m.Get(models.JobKindTrain, "1")
	require.NotNil(t, got)
	assert.Equal(t, models.JobStatusDone, got.Status)

	_, err = m.Start(models.JobKindTrain, "2")
	require.NoError(t, err)
	m.Release(models.JobKindTrain, "2", nil)
	assert.Nil(t, m.Get(models.JobKindTrain, "2"))
}

func TestListAndRemove(t *testing.T) {
	m := NewJobManager()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, id := range []string{"a", "b", "c"} {
		_, err := m.Create(models.JobKindTrain, id)
		require.NoError(t, err)
	}

	jobs := m.List(models.JobKindTrain)
	require.Len(t, jobs, 3)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Equal(t, "a", jobs[2].ID)
	assert.Empty(t, m.List(models.JobKindGenerate))

	m.Remove(models.JobKindTrain, "b")
	assert.Nil(t, m.Get(models.JobKindTrain, "b"))
	assert.Len(t, m.List(models.JobKindTrain), 2)
}

func TestPrune(t *testing.T) {
	m := NewJobManager()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for _, id := range []string{"old", "running"} {
		_, err := m.Create(models.JobKindGenerate, id)
		require.NoError(t, err)
	}
	m.Apply(models.JobKindGenerate, "old", worker.Event{Type: worker.EventDone})

	now = now.Add(time.Hour)
	_, err := m.Create(models.JobKindTrain, "recent")
	require.NoError(t, err)
	m.Apply(models.JobKindTrain, "recent", worker.Event{Type: worker.EventDone})

	removed := m.Prune(30 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Nil(t, m.Get(models.JobKindGenerate, "old"))
	assert.NotNil(t, m.Get(models.JobKindGenerate, "running"), "unfinished jobs are never pruned")
	assert.NotNil(t, m.Get(models.JobKindTrain, "recent"))
}
