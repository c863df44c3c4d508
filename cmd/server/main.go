package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsphere/internal/api"
	"chatsphere/internal/auth"
	"chatsphere/internal/chat"
	"chatsphere/internal/config"
	"chatsphere/internal/db"
	"chatsphere/internal/dispatch"
	myMiddleware "chatsphere/internal/middleware"
	"chatsphere/internal/presence"
	"chatsphere/internal/registry"
	"chatsphere/internal/router"
	"chatsphere/internal/signaling"
	"chatsphere/internal/storage"
	"chatsphere/internal/tasks"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[MAIN] Failed to connect to database: %v", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("[MAIN] Failed to connect to Redis: %v", err)
	}
	log.Println("[MAIN] Connected to Redis")

	store := storage.NewPostgres(pool)
	reg := registry.New()
	rt := router.New(reg)
	tracker := presence.NewTracker(reg, presence.NewRedisStore(rdb), rt)
	relay := signaling.New(rt, store)
	dispatcher := dispatch.New(reg, rt, store, relay)
	ws := chat.NewServer(reg, tracker, dispatcher)

	janitor := tasks.NewMessageJanitor(store)
	janitor.Start()

	tokens := auth.NewManager(cfg.AuthKey)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/login", api.LoginHandler(store, tokens))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(myMiddleware.Authenticate(tokens))
		r.Get("/ws", ws.ServeWS)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[MAIN] Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[MAIN] ListenAndServe: %v", err)
		}
	}()

	<-stop

	log.Println("[MAIN] Shutdown signal received. Cleaning up...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[MAIN] Shutdown error: %v", err)
	}
	log.Println("[MAIN] Graceful shutdown complete")
}
