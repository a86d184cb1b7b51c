package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// graphql-transport-ws protocol message types
const (
	gqlConnectionInit = "connection_init"
	gqlConnectionAck  = "connection_ack"
	gqlSubscribe      = "subscribe"
	gqlNext           = "next"
	gqlError          = "error"
	gqlComplete       = "complete"
	gqlPing           = "ping"
	gqlPong           = "pong"
)

// errStop ends a subscription without reporting an error.
var errStop = errors.New("stop subscription")

// wsMessage represents a graphql-transport-ws protocol message.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsSubscribePayload is the payload for subscribe messages.
type wsSubscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// WatchGeneration streams updates of the generate job id until it finishes.
// onUpdate receives every snapshot; returning an error from it aborts.
func (c *Client) WatchGeneration(ctx context.Context, id string, onUpdate func(*GenerateJob) error) error {
	const query = `
		subscription WatchGeneration($id: ID) {
			textGenerated(id: $id) { ` + generateJobFields + ` }
		}
	`

	return c.subscribe(ctx, query, map[string]any{"id": id}, func(data json.RawMessage) error {
		var payload struct {
			TextGenerated *GenerateJob `json:"textGenerated"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal next payload: %w", err)
		}
		job := payload.TextGenerated
		if job == nil {
			return nil
		}
		if err := onUpdate(job); err != nil {
			return err
		}
		if job.Finished() {
			return errStop
		}
		return nil
	})
}

// WatchTraining streams updates of the training job id until it finishes.
func (c *Client) WatchTraining(ctx context.Context, id string, onUpdate func(*TrainingJob) error) error {
	const query = `
		subscription WatchTraining($id: ID) {
			batchCompleted(id: $id) { ` + trainingJobFields + ` }
		}
	`

	return c.subscribe(ctx, query, map[string]any{"id": id}, func(data json.RawMessage) error {
		var payload struct {
			BatchCompleted *TrainingJob `json:"batchCompleted"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("unmarshal next payload: %w", err)
		}
		job := payload.BatchCompleted
		if job == nil {
			return nil
		}
		if err := onUpdate(job); err != nil {
			return err
		}
		if job.Finished() {
			return errStop
		}
		return nil
	})
}

// websocketURL converts the HTTP endpoint to its websocket equivalent.
func websocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// subscribe runs one subscription over graphql-transport-ws and hands the
// data of every next message to onNext until the server completes it,
// onNext returns an error, or ctx ends.
func (c *Client) subscribe(ctx context.Context, query string, vars map[string]any, onNext func(json.RawMessage) error) error {
	wsEndpoint, err := websocketURL(c.endpoint)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"graphql-transport-ws"},
	}

	conn, _, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() { _ = conn.Close() })
	}
	defer closeConn()

	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	if err := conn.WriteJSON(wsMessage{Type: gqlConnectionInit}); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}

	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read connection_ack: %w", err)
	}
	if ack.Type != gqlConnectionAck {
		return fmt.Errorf("expected connection_ack, got %s", ack.Type)
	}

	subscriptionID := uuid.New().String()
	payload, err := json.Marshal(wsSubscribePayload{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal subscribe payload: %w", err)
	}
	if err := conn.WriteJSON(wsMessage{ID: subscriptionID, Type: gqlSubscribe, Payload: payload}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		switch msg.Type {
		case gqlNext:
			var resp graphQLResponse
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				return fmt.Errorf("unmarshal next message: %w", err)
			}
			if len(resp.Errors) > 0 {
				return fmt.Errorf("subscription error: %w", resp.Errors[0])
			}
			if err := onNext(resp.Data); err != nil {
				if errors.Is(err, errStop) {
					complete(conn, subscriptionID)
					return nil
				}
				return err
			}

		case gqlError:
			var errs []*Error
			if err := json.Unmarshal(msg.Payload, &errs); err != nil || len(errs) == 0 {
				return fmt.Errorf("subscription error: %s", string(msg.Payload))
			}
			return fmt.Errorf("subscription error: %w", errs[0])

		case gqlComplete:
			return nil

		case gqlPing:
			if err := conn.WriteJSON(wsMessage{Type: gqlPong}); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}

		default:
			// pong, ka and unknown types
			continue
		}
	}
}

func complete(conn *websocket.Conn, id string) {
	_ = conn.WriteJSON(wsMessage{ID: id, Type: gqlComplete})
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
