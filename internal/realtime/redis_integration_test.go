package realtime

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

func TestRedisBusIntegrationCrossInstanceDelivery(t *testing.T) {
	addr := os.Getenv("LUGGO_REDIS_ADDR_INTEGRATION")
	if addr == "" {
		t.Skip("set LUGGO_REDIS_ADDR_INTEGRATION to run Redis integration tests")
	}
	ctx := context.Background()
	channel := "luggo:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)

	sender := NewRedisBus(RedisBusConfig{Addr: addr, Channel: channel, Timeout: 2 * time.Second})
	receiver := NewRedisBus(RedisBusConfig{Addr: addr, Channel: channel, Timeout: 2 * time.Second})

	got := make(chan Envelope, 1)
	receiver.Subscribe(func(env Envelope) { got <- env })
	for _, bus := range []Bus{sender, receiver} {
		if err := bus.Start(ctx); err != nil {
			t.Fatalf("start bus: %v", err)
		}
	}
	t.Cleanup(func() {
		_ = sender.Stop()
		_ = receiver.Stop()
	})

	env := Envelope{Kind: KindNotification, RecipientID: "executor-1"}
	if err := sender.Publish(ctx, env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case received := <-got:
		if received.Kind != KindNotification || received.RecipientID != "executor-1" {
			t.Fatalf("unexpected envelope: %+v", received)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("envelope did not cross instances")
	}
}
