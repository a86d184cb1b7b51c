package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for a Redis-backed broker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces channel names, e.g. "fwml:".
	Prefix string
}

// ConnectRedis opens a Redis client and verifies it answers.
func ConnectRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if logger != nil {
		addr := cfg.Addr
		if i := strings.LastIndex(addr, "@"); i > -1 {
			addr = addr[i+1:]
		}
		logger.Info("redis connected", "addr", addr)
	}
	return client, nil
}

// RedisBroker is a Broker backed by Redis PUBLISH/SUBSCRIBE, which lets
// several server processes share job updates.
type RedisBroker struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisBroker wraps client. The broker takes ownership of the client.
func NewRedisBroker(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{client: client, prefix: prefix, logger: logger}
}

func (b *RedisBroker) channel(topic string) string {
	return b.prefix + topic
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, topic string, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(topic), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements Broker. It returns once Redis has confirmed the
// subscription, so no message published afterwards can be missed.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan models.Job, error) {
	ps := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan models.Job)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var job models.Job
				if err := json.Unmarshal([]byte(msg.Payload), &job); err != nil {
					b.logger.Warn("dropping undecodable job update", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close implements Broker.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ Broker = (*RedisBroker)(nil)
