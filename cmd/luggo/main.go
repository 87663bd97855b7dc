package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/navodchik131/luggo-sub000/internal/api"
	"github.com/navodchik131/luggo-sub000/internal/bootstrap"
	"github.com/navodchik131/luggo-sub000/internal/observability"
)

func main() {
	port := os.Getenv("LUGGO_PORT")
	if port == "" {
		port = "8080"
	}

	shutdownTracing, err := observability.InitTracingFromEnv("luggo")
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	core, err := bootstrap.NewCoreFromEnv()
	if err != nil {
		log.Fatalf("bootstrap core: %v", err)
	}
	if err := core.Hub.Start(context.Background()); err != nil {
		log.Fatalf("start realtime hub: %v", err)
	}
	defer func() { _ = core.Hub.Stop() }()

	server := api.NewServer(core.Engine, core.Messages, core.Notifications, core.Hub, core.Store)

	log.Printf("luggo broker listening on :%s", port)
	if err := http.ListenAndServe(":"+port, server.Handler()); err != nil {
		log.Fatalf("broker failed: %v", err)
	}
}
