package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/navodchik131/luggo-sub000/internal/lifecycle"
	"github.com/navodchik131/luggo-sub000/internal/messaging"
	"github.com/navodchik131/luggo-sub000/internal/notify"
	"github.com/navodchik131/luggo-sub000/internal/realtime"
	"github.com/navodchik131/luggo-sub000/internal/state"
)

// Core is the assembled broker: every service wired to the shared store,
// event sink and realtime hub.
type Core struct {
	Store         state.Store
	Hub           *realtime.Hub
	Engine        *lifecycle.Engine
	Messages      *messaging.Service
	Notifications *notify.Dispatcher
}

// NewCoreFromEnv builds the broker from LUGGO_* environment variables.
func NewCoreFromEnv() (*Core, error) {
	store, err := newStore(getenv("LUGGO_STORE", "memory"))
	if err != nil {
		return nil, err
	}
	bus, err := newBus(getenv("LUGGO_BUS", "memory"))
	if err != nil {
		return nil, err
	}
	hub := realtime.NewHub(bus, realtime.Options{
		QueueSize: getenvInt("LUGGO_STREAM_QUEUE_SIZE", 0),
	})
	dispatcher := notify.NewDispatcher(store, hub)
	return &Core{
		Store:         store,
		Hub:           hub,
		Engine:        lifecycle.NewEngine(store, dispatcher),
		Messages:      messaging.NewService(store, hub, dispatcher),
		Notifications: dispatcher,
	}, nil
}

func newStore(kind string) (state.Store, error) {
	switch kind {
	case "memory":
		return state.NewMemoryStore(), nil
	case "postgres":
		dsn := os.Getenv("LUGGO_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("LUGGO_POSTGRES_DSN is required when LUGGO_STORE=postgres")
		}
		return state.NewPostgresStore(dsn)
	case "sqlite":
		return state.NewSQLiteStore(getenv("LUGGO_SQLITE_PATH", "luggo.db"))
	default:
		return nil, fmt.Errorf("unsupported LUGGO_STORE value %q", kind)
	}
}

func newBus(kind string) (realtime.Bus, error) {
	switch kind {
	case "memory":
		return realtime.NewMemoryBus(), nil
	case "redis":
		return realtime.NewRedisBus(realtime.RedisBusConfig{
			Addr:     getenv("LUGGO_REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("LUGGO_REDIS_PASSWORD"),
			DB:       getenvInt("LUGGO_REDIS_DB", 0),
			Channel:  getenv("LUGGO_REDIS_CHANNEL", "luggo:events"),
			Timeout:  3 * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LUGGO_BUS value %q", kind)
	}
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
