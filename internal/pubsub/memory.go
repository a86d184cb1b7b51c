package pubsub

import (
	"context"
	"sync"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
)

// MemoryBroker is an in-process Broker.
// Each subscriber owns an unbounded queue drained by its own goroutine, so
// Publish never blocks on a consumer.
type MemoryBroker struct {
	mu     sync.Mutex
	topics map[string]map[*subscriber]struct{}
	closed bool
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]map[*subscriber]struct{}),
	}
}

// Publish implements Broker.
func (b *MemoryBroker) Publish(_ context.Context, topic string, job models.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	for sub := range b.topics[topic] {
		sub.push(job.Clone())
	}
	return nil
}

// Subscribe implements Broker.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (<-chan models.Job, error) {
	sub := &subscriber{
		signal: make(chan struct{}, 1),
		out:    make(chan models.Job),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*subscriber]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.out)
		defer b.unsubscribe(topic, sub)
		sub.pump(ctx)
	}()

	return sub.out, nil
}

// Subscribers returns the number of live subscribers of topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Close implements Broker.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.topics {
		for sub := range subs {
			sub.stop()
		}
		delete(b.topics, topic)
	}
	return nil
}

func (b *MemoryBroker) unsubscribe(topic string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	if subs == nil {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

type subscriber struct {
	mu     sync.Mutex
	queue  []models.Job
	signal chan struct{}
	out    chan models.Job

	done     chan struct{}
	stopOnce sync.Once
}

func (s *subscriber) push(job models.Job) {
	s.mu.Lock()
	s.queue = append(s.queue, job)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// pump forwards queued snapshots to out until ctx ends or the subscriber stops.
func (s *subscriber) pump(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = models.Job{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

var _ Broker = (*MemoryBroker)(nil)
