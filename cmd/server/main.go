package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"gomokuhub/internal/api"
	"gomokuhub/internal/broadcast"
	"gomokuhub/internal/invite"
	"gomokuhub/internal/presence"
	"gomokuhub/internal/room"
	"gomokuhub/internal/store"
	"gomokuhub/internal/ws"
)

const (
	waitingRoomIdle = time.Hour
	playingRoomIdle = 2 * time.Hour
	sweepInterval   = 10 * time.Minute
	sweepGrace      = 30 * time.Second
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// Postgres when configured, in-memory otherwise.
	var st store.Store
	cfg := store.LoadConfig()
	if cfg.DBName != "" {
		pg, err := store.OpenPostgres(cfg)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		st = pg
		log.Info("using postgres store", "host", cfg.DBHost, "db", cfg.DBName)
	} else {
		st = store.NewMemory()
		log.Warn("DB_NAME not set, using in-memory store")
	}

	hub := broadcast.NewHub(log)
	registry := presence.NewRegistry(log)
	rooms := room.NewManager(log, st, hub, registry, waitingRoomIdle, playingRoomIdle)
	broker := invite.NewBroker(log, registry, hub, rooms)
	gateway := ws.NewGateway(log, st, hub, registry, broker, rooms, sweepGrace)
	handler := api.NewHandler(log, st, rooms)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux)
	handler.RegisterRoutes(mux)

	// Periodic sweep of abandoned rooms, independent of connection events.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := rooms.SweepIdle(ctx); err != nil {
				log.Error("idle room sweep failed", "error", err)
			}
			cancel()
		}
	}()

	server := api.CORSMiddleware(mux)
	log.Info("server starting", "addr", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
