package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"ratewatch/internal/handler"
	"ratewatch/internal/middleware"
	"ratewatch/internal/rates"
	"ratewatch/internal/repository/postgres"
	"ratewatch/pkg/config"
	"ratewatch/pkg/logger"
	"ratewatch/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("ratewatch")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting ratewatch", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Postgres is optional; without it snapshot history is disabled.
	var repo rates.SnapshotRepository
	var db *sqlx.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to connect to database", map[string]interface{}{
				"error": err.Error(),
			})
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		repo = postgres.NewSnapshotRepository(db)
	} else {
		log.Warn("DATABASE_URL not set, snapshot history disabled", nil)
	}

	// Provider chain: real endpoint first, static fallback for offline runs.
	providers := []rates.RateProvider{
		rates.NewExchangeRateAPIProvider(cfg.Provider.Endpoint, cfg.Provider.Timeout),
		rates.NewStaticProvider("USD", map[string]float64{
			"USD": 1.0,
			"EUR": 0.92,
			"GBP": 0.79,
			"JPY": 151.2,
			"INR": 83.3,
		}),
	}

	cache := rates.NewRedisSnapshotCache(redisClient, cfg.Cache.TTL)
	service := rates.NewService(cache, providers, repo, log)

	val := validator.New()
	ratesHandler := handler.NewRatesHandler(service, val, log)

	// Setup router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.NewRateLimiter(redisClient, 100, time.Minute).Limit)

	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ready", readyCheck(db)).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rates", ratesHandler.GetRates).Methods("GET")
	api.HandleFunc("/rates/stats", ratesHandler.GetStats).Methods("GET")
	api.HandleFunc("/rates/search", ratesHandler.Search).Methods("GET")
	api.HandleFunc("/rates/chart", ratesHandler.Chart).Methods("GET")
	api.HandleFunc("/rates/convert", ratesHandler.Convert).Methods("POST")
	api.HandleFunc("/rates/publish", ratesHandler.Publish).Methods("POST")
	api.HandleFunc("/rates/history", ratesHandler.History).Methods("GET")

	// WebSocket for live updates
	api.HandleFunc("/rates/ws", ratesHandler.WebSocketHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("ratewatch started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down ratewatch...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("ratewatch forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("ratewatch stopped gracefully", nil)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	_ = r
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"ratewatch"}`))
}

func readyCheck(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r
		if db != nil {
			if err := db.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"ratewatch"}`))
	}
}
