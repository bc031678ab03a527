package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/svaia/api/internal/model"
)

func testBuses(t *testing.T) map[string]Bus {
	t.Helper()
	buses := map[string]Bus{"memory": NewMemoryBus()}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return buses
	}
	t.Cleanup(func() { client.Close() })
	buses["redis"] = NewRedisBus(client, zerolog.Nop())
	return buses
}

func TestBus_DeliversToMatchingProjectOnly(t *testing.T) {
	for name, bus := range testBuses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := model.ProjectKey{Email: "a@x.com", Name: "P1-" + name}

			sub, err := bus.Subscribe(ctx, key)
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			defer sub.Close()

			other := model.GenerationEvent{Type: model.GenerationCompleted, Email: "b@x.com", ProjectName: key.Name}
			if err := bus.Publish(ctx, other); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			want := model.GenerationEvent{
				Type:        model.GenerationCompleted,
				Email:       key.Email,
				ProjectName: key.Name,
				Report:      &model.Report{Name: "R1", Data: "# hi"},
			}
			if err := bus.Publish(ctx, want); err != nil {
				t.Fatalf("Publish: %v", err)
			}

			select {
			case got := <-sub.Events():
				if got.Email != want.Email || got.Report == nil || got.Report.Data != "# hi" {
					t.Errorf("unexpected event: %+v", got)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for event")
			}
		})
	}
}

func TestMemoryBus_CloseIsIdempotent(t *testing.T) {
	bus := NewMemoryBus()
	sub, _ := bus.Subscribe(context.Background(), model.ProjectKey{Email: "a@x.com", Name: "P1"})
	if err := sub.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sub.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed channel")
	}
	// Publishing with no subscribers is fine.
	if err := bus.Publish(context.Background(), model.GenerationEvent{Email: "a@x.com", ProjectName: "P1"}); err != nil {
		t.Fatal(err)
	}
}
