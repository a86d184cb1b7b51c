// Package pubsub fans job snapshots out to live subscribers.
package pubsub

import (
	"context"
	"errors"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
)

// ErrClosed is returned when subscribing to a closed broker.
var ErrClosed = errors.New("broker closed")

// Broker is a topic-scoped publish/subscribe channel for job snapshots.
//
// Subscribers only see snapshots published after Subscribe returns. Within a
// topic every subscriber receives snapshots in publish order, and a slow or
// gone subscriber never holds up the others.
type Broker interface {
	// Publish delivers job to every current subscriber of topic.
	Publish(ctx context.Context, topic string, job models.Job) error
	// Subscribe returns a channel of snapshots published to topic.
	// The channel is closed when ctx ends or the broker is closed.
	Subscribe(ctx context.Context, topic string) (<-chan models.Job, error)
	// Close releases the broker and ends all subscriptions.
	Close() error
}

// TopicFor returns the topic carrying updates for a job kind.
func TopicFor(kind models.JobKind) string {
	return "job-updated:" + string(kind)
}
