package worker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    EventType
		payload string
		message string
	}{
		{"done", `{"status":0}`, EventDone, "", ""},
		{"done ignores results", `{"status":0,"results":"bye"}`, EventDone, "", ""},
		{"text progress", `{"status":1,"results":"hello"}`, EventProgress, `"hello"`, ""},
		{"metrics progress", `{"status":1,"results":{"loss":0.5}}`, EventProgress, `{"loss":0.5}`, ""},
		{"error with message", `{"status":2,"results":"out of memory"}`, EventError, "", "out of memory"},
		{"error without message", `{"status":2}`, EventError, "", "worker reported an error"},
		{"error with object", `{"status":2,"results":{"code":3}}`, EventError, "", `{"code":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeFrame([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, tt.payload, string(ev.Payload))
			assert.Equal(t, tt.message, ev.Message)
			assert.Nil(t, ev.Err, "worker-reported events carry no local error")
		})
	}
}

func TestDecodeFrameProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `hello`},
		{"missing status", `{"results":"x"}`},
		{"unknown status", `{"status":7}`},
		{"progress without results", `{"status":1}`},
		{"progress with null results", `{"status":1,"results":null}`},
		{"status is a string", `{"status":"1"}`},
		{"trailing garbage", `{"status":1,"results":"a"}garbage`},
		{"two frames in one message", `{"status":1,"results":"a"}{"status":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProtocol), "expected ErrProtocol, got %v", err)
		})
	}
}

func TestCommandEncoding(t *testing.T) {
	m := &models.Model{ID: "1", Name: "gpt", Sources: []string{"http://a"}}

	data, err := json.Marshal(TrainCommand(m, "http://b", 3, nil))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "train", decoded["key"])
	args := decoded["args"].(map[string]any)
	assert.Equal(t, "http://b", args["url"])
	assert.Equal(t, float64(3), args["epochs"])
	assert.Equal(t, []any{}, args["selectors"])

	model := args["model"].(map[string]any)
	assert.Equal(t, "1", model["id"])
	assert.Equal(t, []any{"http://a"}, model["sources"])
	assert.Equal(t, []any{"http://a"}, model["urls"])
}

func TestGenerateCommandEncoding(t *testing.T) {
	m := &models.Model{ID: "7", Name: "poet"}

	data, err := json.Marshal(GenerateCommand(m, "Once", 2, 100, 0.7))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"key": "generate",
		"args": {
			"model": {"id": "7", "name": "poet", "sources": [], "urls": []},
			"prefix": "Once",
			"count": 2,
			"maxLength": 100,
			"temperature": 0.7
		}
	}`, string(data))
}

func TestEventTerminal(t *testing.T) {
	assert.False(t, Event{Type: EventProgress}.Terminal())
	assert.True(t, Event{Type: EventDone}.Terminal())
	assert.True(t, Event{Type: EventError}.Terminal())
}

func TestSessionErrorMessageIsBare(t *testing.T) {
	err := newError(ErrConnection, "connection closed unexpectedly")
	assert.Equal(t, "connection closed unexpectedly", err.Error())
	assert.ErrorIs(t, err, ErrConnection)
	assert.NotErrorIs(t, err, ErrProtocol)
}
