package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/thehouse/wager-engine/internal/access"
	"github.com/thehouse/wager-engine/internal/book"
	"github.com/thehouse/wager-engine/internal/metrics"
	"github.com/thehouse/wager-engine/internal/store"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Superuser directory ---
	// SUPERUSERS is a comma-separated list of user IDs with full visibility.
	dir := access.StaticDirectory{}
	for _, id := range strings.Split(os.Getenv("SUPERUSERS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			dir[id] = true
		}
	}

	// --- WebSocket hub ---
	wsHub := book.NewWSHub()
	go wsHub.Run()

	// --- Book service ---
	bookSvc := book.NewService(st, dir, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"wager-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time market updates.
		r.Get("/ws", wsHub.HandleWS)

		// Market management.
		r.Get("/markets", bookSvc.HandleListMarkets)
		r.Post("/markets", bookSvc.HandleCreateMarket)
		r.Get("/markets/{marketID}", bookSvc.HandleGetMarket)
		r.Post("/markets/{marketID}/settle", bookSvc.HandleSettleMarket)
		r.Post("/markets/{marketID}/shares", bookSvc.HandleAddShare)
		r.Get("/markets/{marketID}/access", bookSvc.HandleCanView)
		r.Get("/markets/{marketID}/net/{userID}", bookSvc.HandleBettorNet)

		// Wagering.
		r.Post("/wagers", bookSvc.HandlePlaceWager)
		r.Get("/users/{userID}/wagers", bookSvc.HandleListUserWagers)

		// Wallets and ledger.
		r.Post("/deposits", bookSvc.HandleDeposit)
		r.Post("/withdrawals", bookSvc.HandleWithdraw)
		r.Get("/wallets/{userID}", bookSvc.HandleGetWallet)
		r.Get("/wallets/{userID}/ledger", bookSvc.HandleWalletLedger)

		// Events, memberships, treasuries.
		r.Post("/events", bookSvc.HandleCreateEvent)
		r.Post("/events/{eventID}/members", bookSvc.HandleAddMember)
		r.Get("/events/{eventID}/treasury", bookSvc.HandleEventTreasury)
		r.Get("/events/{eventID}/treasury/ledger", bookSvc.HandleTreasuryLedger)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("wager-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down wager-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("wager-engine stopped")
}
