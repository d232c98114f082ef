// Command authd serves the authentication API over HTTP.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scalebench/authcore"
	"github.com/scalebench/authcore/envconfig"
	"github.com/scalebench/authcore/gate"
	"github.com/scalebench/authcore/users"
)

var version = "0.3.1"

func main() {
	cfg, err := envconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatalf("redis ping %s: %v", cfg.RedisAddr, err)
	}
	cancelPing()

	builder := authcore.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(rdb).
		WithUserProvider(users.NewStore(rdb, "users")).
		WithMetricsEnabled(cfg.MetricsEnabled)
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(authcore.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	server, err := gate.New(gate.Config{
		Engine:         engine,
		Production:     cfg.Production(),
		BurstPerSecond: cfg.BurstPerSecond,
		BurstSize:      cfg.BurstSize,
	})
	if err != nil {
		log.Fatalf("build gate: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting authd %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	server.Close()
	engine.Close()
	_ = rdb.Close()
	log.Println("stopped")
}
