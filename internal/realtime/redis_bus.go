package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/navodchik131/luggo-sub000/internal/observability"
)

type RedisBusConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Timeout  time.Duration
}

// RedisBus fans envelopes out across broker instances over a pub/sub
// channel. Subscribers on every instance, including the publishing one,
// receive each envelope through redis, so delivery stays uniform whether
// the recipient's connection lives here or elsewhere.
type RedisBus struct {
	cfg    RedisBusConfig
	client *redis.Client
	pubsub *redis.PubSub
	h      Handler
}

func NewRedisBus(cfg RedisBusConfig) *RedisBus {
	if cfg.Channel == "" {
		cfg.Channel = "luggo:events"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  0, // subscription reads block indefinitely
		WriteTimeout: cfg.Timeout,
	})
	return &RedisBus{cfg: cfg, client: client}
}

func (b *RedisBus) Subscribe(h Handler) { b.h = h }

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.cfg.Channel, payload).Err()
}

func (b *RedisBus) Start(ctx context.Context) error {
	if _, err := b.client.Ping(ctx).Result(); err != nil {
		return err
	}
	b.pubsub = b.client.Subscribe(ctx, b.cfg.Channel)
	// Force the subscription to be established before we report started.
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return err
	}
	go b.receiveLoop()
	return nil
}

func (b *RedisBus) receiveLoop() {
	for msg := range b.pubsub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("redis bus: dropping malformed envelope: %v", err)
			observability.Default.IncCounter("realtime_bus_decode_errors_total", map[string]string{"bus_backend": "redis"}, 1)
			continue
		}
		if b.h != nil {
			b.h(env)
		}
	}
}

func (b *RedisBus) Stop() error {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	return b.client.Close()
}

func (b *RedisBus) Backend() string { return "redis" }
