// Package events carries generation completion events from the workers to
// the API instance holding the waiting generate-report request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/svaia/api/internal/model"
)

// Subscription delivers the events of one project until Close is called.
type Subscription interface {
	Events() <-chan model.GenerationEvent
	Close() error
}

// Bus publishes generation events keyed by project.
type Bus interface {
	Publish(ctx context.Context, ev model.GenerationEvent) error
	// Subscribe returns once the subscription is active, so an event
	// published after Subscribe returns is never missed.
	Subscribe(ctx context.Context, key model.ProjectKey) (Subscription, error)
}

func channel(key model.ProjectKey) string {
	return fmt.Sprintf("reports:events:%s:%s", key.Email, key.Name)
}

// RedisBus uses Redis pub/sub so API instances and workers can live in
// different processes.
type RedisBus struct {
	redis *redis.Client
	log   zerolog.Logger
}

func NewRedisBus(client *redis.Client, log zerolog.Logger) *RedisBus {
	return &RedisBus{redis: client, log: log.With().Str("component", "events").Logger()}
}

func (b *RedisBus) Publish(ctx context.Context, ev model.GenerationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	key := model.ProjectKey{Email: ev.Email, Name: ev.ProjectName}
	return b.redis.Publish(ctx, channel(key), data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, key model.ProjectKey) (Subscription, error) {
	ps := b.redis.Subscribe(ctx, channel(key))
	// Wait for the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan model.GenerationEvent, 4), done: make(chan struct{})}
	go func() {
		defer close(sub.out)
		for msg := range ps.Channel() {
			var ev model.GenerationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
				continue
			}
			select {
			case sub.out <- ev:
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan model.GenerationEvent
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) Events() <-chan model.GenerationEvent { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// MemoryBus is an in-process Bus.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[model.ProjectKey]map[*memorySubscription]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[model.ProjectKey]map[*memorySubscription]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, ev model.GenerationEvent) error {
	key := model.ProjectKey{Email: ev.Email, Name: ev.ProjectName}

	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[key] {
		select {
		case s.out <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, key model.ProjectKey) (Subscription, error) {
	s := &memorySubscription{bus: b, key: key, out: make(chan model.GenerationEvent, 4)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[*memorySubscription]struct{})
	}
	b.subs[key][s] = struct{}{}
	return s, nil
}

type memorySubscription struct {
	bus    *MemoryBus
	key    model.ProjectKey
	out    chan model.GenerationEvent
	closed bool
}

func (s *memorySubscription) Events() <-chan model.GenerationEvent { return s.out }

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.bus.subs[s.key], s)
	if len(s.bus.subs[s.key]) == 0 {
		delete(s.bus.subs, s.key)
	}
	close(s.out)
	return nil
}
