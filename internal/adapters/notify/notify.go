package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

var (
	_ domain.SeverityPublisher = (*ChannelNotifier)(nil)
	_ domain.SeverityPublisher = (*RedisPublisher)(nil)
	_ domain.SeverityPublisher = Multi(nil)
)

var ErrNotifierFull = errors.New("severity notifier buffer full")

// ChannelNotifier hands changes to an in-process consumer. Publish never
// blocks; a full buffer drops the change and reports ErrNotifierFull.
type ChannelNotifier struct {
	ch      chan domain.SeverityChange
	dropped atomic.Int64
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelNotifier{ch: make(chan domain.SeverityChange, buffer)}
}

func (n *ChannelNotifier) Publish(ctx context.Context, change domain.SeverityChange) error {
	select {
	case n.ch <- change:
		return nil
	default:
		n.dropped.Add(1)
		return ErrNotifierFull
	}
}

func (n *ChannelNotifier) Changes() <-chan domain.SeverityChange {
	return n.ch
}

func (n *ChannelNotifier) Dropped() int64 {
	return n.dropped.Load()
}

// RedisPublisher publishes each change as JSON on "<prefix>:<userID>" so a
// presentation process can subscribe per user or with a pattern.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "severity"
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

func (p *RedisPublisher) Channel(userID string) string {
	return fmt.Sprintf("%s:%s", p.prefix, userID)
}

func (p *RedisPublisher) Publish(ctx context.Context, change domain.SeverityChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode severity change: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.Channel(change.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish severity change: %w", err)
	}
	return nil
}

// Multi delivers to every publisher and joins their errors.
type Multi []domain.SeverityPublisher

func (m Multi) Publish(ctx context.Context, change domain.SeverityChange) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
