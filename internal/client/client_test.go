package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGraphQL answers every POST with the given JSON body and records requests.
func fakeGraphQL(t *testing.T, status int, body string) (*Client, *[]graphQLRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []graphQLRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return New(srv.URL + "/query"), &requests
}

func TestNewDefaultsEndpoint(t *testing.T) {
	t.Setenv("FWML_SERVER_URL", "")
	assert.Equal(t, DefaultEndpoint, New("").Endpoint())

	t.Setenv("FWML_SERVER_URL", "http://example:9000/query")
	assert.Equal(t, "http://example:9000/query", New("").Endpoint())
	assert.Equal(t, "http://explicit/query", New("http://explicit/query").Endpoint())
}

func TestCreateModel(t *testing.T) {
	c, requests := fakeGraphQL(t, http.StatusOK,
		`{"data":{"createModel":{"id":"0","name":"gpt","sources":[],"createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}}}`)

	m, err := c.CreateModel(context.Background(), "gpt")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "0", m.ID)
	assert.Equal(t, "gpt", m.Name)
	assert.Empty(t, m.Sources)

	require.Len(t, *requests, 1)
	assert.Contains(t, (*requests)[0].Query, "createModel(input: $input)")
	assert.Equal(t, map[string]any{"name": "gpt"}, (*requests)[0].Variables["input"])
}

func TestMissingModelIsNil(t *testing.T) {
	c, _ := fakeGraphQL(t, http.StatusOK, `{"data":{"model":null}}`)

	m, err := c.GetModel(context.Background(), "42")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestTrainModelOmitsZeroValues(t *testing.T) {
	c, requests := fakeGraphQL(t, http.StatusOK,
		`{"data":{"trainModel":{"id":"0","modelId":"0","status":"PENDING","errors":[]}}}`)

	job, err := c.TrainModel(context.Background(), TrainModelInput{ID: "0", URL: "http://a"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.False(t, job.Finished())

	raw, err := json.Marshal((*requests)[0].Variables["input"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"0","url":"http://a"}`, string(raw))
}

func TestErrorsCarryCodes(t *testing.T) {
	c, _ := fakeGraphQL(t, http.StatusOK,
		`{"data":{"trainModel":null},"errors":[{"message":"already ingested","path":["trainModel"],"extensions":{"code":"ALREADY_INGESTED"}}]}`)

	job, err := c.TrainModel(context.Background(), TrainModelInput{ID: "0", URL: "http://a"})
	require.Error(t, err)
	assert.Nil(t, job)
	assert.True(t, HasCode(err, "ALREADY_INGESTED"))
	assert.False(t, HasCode(err, "JOB_IN_PROGRESS"))
	assert.Contains(t, err.Error(), "already ingested")
}

func TestServerErrorStatus(t *testing.T) {
	c, _ := fakeGraphQL(t, http.StatusBadGateway, `bad gateway`)

	_, err := c.ListModels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:4000/query", want: "ws://localhost:4000/query"},
		{in: "https://example.com/query", want: "wss://example.com/query"},
		{in: "ws://localhost/query", want: "ws://localhost/query"},
		{in: "ftp://localhost/query", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := websocketURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeSubscriptionServer speaks the server side of graphql-transport-ws and
// replies to a subscribe with the given next payloads.
func fakeSubscriptionServer(t *testing.T, payloads ...string) (*Client, <-chan wsSubscribePayload) {
	t.Helper()
	received := make(chan wsSubscribePayload, 1)
	upgrader := websocket.Upgrader{Subprotocols: []string{"graphql-transport-ws"}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var init wsMessage
		if err := conn.ReadJSON(&init); err != nil || init.Type != gqlConnectionInit {
			return
		}
		_ = conn.WriteJSON(wsMessage{Type: gqlConnectionAck})
		_ = conn.WriteJSON(wsMessage{Type: gqlPing})

		var sub wsMessage
		for {
			if err := conn.ReadJSON(&sub); err != nil {
				return
			}
			if sub.Type == gqlSubscribe {
				break
			}
		}
		var p wsSubscribePayload
		_ = json.Unmarshal(sub.Payload, &p)
		received <- p

		for _, payload := range payloads {
			_ = conn.WriteJSON(wsMessage{ID: sub.ID, Type: gqlNext, Payload: json.RawMessage(payload)})
		}

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return New(srv.URL + "/query"), received
}

func TestWatchGenerationStopsWhenFinished(t *testing.T) {
	c, received := fakeSubscriptionServer(t,
		`{"data":{"textGenerated":{"id":"0","status":"ACTIVE","text":["Once "]}}}`,
		`{"data":{"textGenerated":{"id":"0","status":"ACTIVE","text":["Once ","upon"]}}}`,
		`{"data":{"textGenerated":{"id":"0","status":"DONE","text":["Once ","upon"],"output":"Once upon"}}}`,
		`{"data":{"textGenerated":{"id":"0","status":"DONE","text":["ignored"]}}}`,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var statuses []string
	var last *GenerateJob
	err := c.WatchGeneration(ctx, "0", func(job *GenerateJob) error {
		statuses = append(statuses, job.Status)
		last = job
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{StatusActive, StatusActive, StatusDone}, statuses)
	assert.Equal(t, "Once upon", last.Output)

	p := <-received
	assert.Contains(t, p.Query, "textGenerated(id: $id)")
	assert.Equal(t, "0", p.Variables["id"])
}

func TestWatchTrainingReportsErrors(t *testing.T) {
	c, _ := fakeSubscriptionServer(t,
		`{"data":{"batchCompleted":null},"errors":[{"message":"boom"}]}`,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.WatchTraining(ctx, "0", func(*TrainingJob) error { return nil })
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"), err.Error())
}

func TestWatchEndsWithContext(t *testing.T) {
	c, _ := fakeSubscriptionServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.WatchTraining(ctx, "0", func(*TrainingJob) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
