package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jocr1627/fun-with-ml-server/internal/client"
)

func fakeServer(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/query"
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		outputFormat = formatText
	})
	err := Execute(context.Background())
	return out.String(), err
}

func TestModelsList(t *testing.T) {
	url := fakeServer(t, `{"data":{"models":[
		{"id":"0","name":"shakespeare","sources":["http://a","http://b"],"createdAt":"2024-05-01T10:00:00Z"},
		{"id":"1","name":"poe","sources":[],"createdAt":"2024-05-02T10:00:00Z"}]}}`)

	out, err := run(t, "--server", url, "models", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "shakespeare")
	assert.Contains(t, out, "poe")
	assert.Contains(t, out, "2024-05-01 10:00:00")
}

func TestModelsShowMissing(t *testing.T) {
	url := fakeServer(t, `{"data":{"model":null}}`)

	_, err := run(t, "--server", url, "models", "show", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found: 42")
}

func TestTrainAlreadyIngested(t *testing.T) {
	url := fakeServer(t, `{"data":{"trainModel":null},"errors":[{"message":"already ingested","extensions":{"code":"ALREADY_INGESTED"}}]}`)

	_, err := run(t, "--server", url, "train", "0", "http://a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestJobsTrainShow(t *testing.T) {
	url := fakeServer(t, `{"data":{"trainingJob":{"id":"0","modelId":"0","status":"ERROR",
		"metrics":{"loss":0.5,"epoch":1},"errors":["connection closed unexpectedly"],
		"startedAt":"2024-05-01T10:00:00Z","completedAt":"2024-05-01T10:00:02Z"}}}`)

	out, err := run(t, "--server", url, "jobs", "train", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: ERROR")
	assert.Contains(t, out, "Metrics: epoch=1 loss=0.5")
	assert.Contains(t, out, "Duration: 2s")
	assert.Contains(t, out, "- connection closed unexpectedly")
}

func TestChunkPrinterPrintsEachChunkOnce(t *testing.T) {
	var buf bytes.Buffer
	p := &chunkPrinter{w: &buf}

	p.update(&client.GenerateJob{Text: []string{"Once "}})
	p.update(&client.GenerateJob{Text: []string{"Once ", "upon "}})
	p.update(&client.GenerateJob{Text: []string{"Once "}})
	p.update(&client.GenerateJob{Text: []string{"Once ", "upon ", "a time"}})

	assert.Equal(t, "Once upon a time", buf.String())
}

func TestStreamGenerationFollowsUpdates(t *testing.T) {
	gqlClient = client.New(fakeServer(t, `{"data":{"generateJob":null}}`))

	updates := make(chan *client.GenerateJob, 3)
	updates <- &client.GenerateJob{ID: "0", Status: client.StatusActive, Text: []string{"Once "}}
	updates <- &client.GenerateJob{ID: "0", Status: client.StatusActive, Text: []string{"Once ", "upon"}}
	updates <- &client.GenerateJob{ID: "0", Status: client.StatusDone, Text: []string{"Once ", "upon"}}

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := streamGeneration(ctx, &buf, &client.GenerateJob{ID: "0", Status: client.StatusPending}, updates, nil)
	require.NoError(t, err)
	assert.Equal(t, client.StatusDone, job.Status)
	assert.Equal(t, "Once upon", buf.String())
}

func TestEpochProgress(t *testing.T) {
	assert.Zero(t, epochProgress(nil, 4))
	assert.Zero(t, epochProgress(map[string]any{"epoch": 2.0}, 0))
	assert.Zero(t, epochProgress(map[string]any{"epoch": "two"}, 4))
	assert.InDelta(t, 0.5, epochProgress(map[string]any{"epoch": 2.0}, 4), 1e-9)
	assert.InDelta(t, 1.0, epochProgress(map[string]any{"epoch": 9.0}, 4), 1e-9)
}

func TestFormatMetrics(t *testing.T) {
	assert.Empty(t, formatMetrics(nil))
	assert.Equal(t, "epoch=3 loss=0.1235 phase=fit",
		formatMetrics(map[string]any{"loss": 0.123456, "epoch": 3.0, "phase": "fit"}))
}

func TestTrainingModelTransitions(t *testing.T) {
	start := &client.TrainingJob{ID: "0", Status: client.StatusPending}

	t.Run("active keeps polling", func(t *testing.T) {
		m := newTrainingModel(nil, start, 2)
		next, cmd := m.Update(jobUpdateMsg{job: &client.TrainingJob{ID: "0", Status: client.StatusActive}})
		assert.NotNil(t, cmd)
		assert.False(t, next.(trainingModel).done)
	})

	t.Run("done quits cleanly", func(t *testing.T) {
		m := newTrainingModel(nil, start, 2)
		next, _ := m.Update(jobUpdateMsg{job: &client.TrainingJob{ID: "0", Status: client.StatusDone}})
		tm := next.(trainingModel)
		assert.True(t, tm.done)
		assert.NoError(t, tm.err)
	})

	t.Run("error carries job errors", func(t *testing.T) {
		m := newTrainingModel(nil, start, 2)
		next, _ := m.Update(jobUpdateMsg{job: &client.TrainingJob{ID: "0", Status: client.StatusError, Errors: []string{"boom"}}})
		tm := next.(trainingModel)
		assert.True(t, tm.done)
		assert.EqualError(t, tm.err, "boom")
	})

	t.Run("vanished job fails", func(t *testing.T) {
		m := newTrainingModel(nil, start, 2)
		next, _ := m.Update(jobUpdateMsg{})
		assert.Error(t, next.(trainingModel).err)
	})
}

func TestPrintServerStats(t *testing.T) {
	var buf bytes.Buffer
	printServerStats(&buf, &client.ServerStats{
		UptimeSeconds: 12.5,
		WorkerSession: &client.OperationStats{Count: 3, Errors: 1, TotalTimeMs: 30, AvgTimeMs: 10, MinTimeMs: 5, MaxTimeMs: 15},
		GenerateJobs:  client.JobCounts{Started: 2, Done: 1, Failed: 1},
	})

	out := buf.String()
	assert.Contains(t, out, "Uptime: 12.5 seconds")
	assert.Contains(t, out, "Worker Sessions:")
	assert.Contains(t, out, "Calls: 3 (1 failed)")
	assert.NotContains(t, out, "Registry Reads:")
	assert.Contains(t, out, "Generate: 2 started, 1 done, 1 failed")
}

func TestOutputFormats(t *testing.T) {
	url := fakeServer(t, `{"data":{"model":{"id":"0","name":"gpt","sources":["http://a"]}}}`)

	out, err := run(t, "--server", url, "-o", "yaml", "models", "show", "0")
	require.NoError(t, err)
	assert.Contains(t, out, `id: "0"`)
	assert.Contains(t, out, "name: gpt")
	assert.Contains(t, out, "- http://a")

	out, err = run(t, "--server", url, "-o", "json", "models", "show", "0")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "gpt"`)

	_, err = run(t, "--server", url, "-o", "xml", "models", "show", "0")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestTrainFollowsWithoutTerminal(t *testing.T) {
	url := fakeServer(t, `{"data":{"trainModel":{"id":"0","modelId":"0","status":"DONE","metrics":{"epoch":1,"loss":0.5},"errors":[]}}}`)

	out, err := run(t, "--server", url, "train", "0", "http://a")
	require.NoError(t, err)
	assert.Equal(t, "[DONE] epoch=1 loss=0.5\n", out)
}
