// One-shot report: renders the rate chart to a file, prints the aggregate
// figures, and runs a range search. Mirrors what the API serves, but usable
// from a shell or cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ratewatch/internal/rates"
	"ratewatch/pkg/config"
	"ratewatch/pkg/errors"
	"ratewatch/pkg/logger"
)

func main() {
	chartPath := flag.String("chart", "exchange_rates.png", "path to write the bar chart PNG")
	minRate := flag.Float64("min", 0.5, "lower bound for the range search (inclusive)")
	maxRate := flag.Float64("max", 2.0, "upper bound for the range search (inclusive)")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("ratewatch-report")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}

	providers := []rates.RateProvider{
		rates.NewExchangeRateAPIProvider(cfg.Provider.Endpoint, cfg.Provider.Timeout),
	}

	cache := rates.NewRedisSnapshotCache(redisClient, cfg.Cache.TTL)
	service := rates.NewService(cache, providers, nil, log)

	plotRates(ctx, service, *chartPath, log)
	aggregateRates(ctx, service)
	searchRates(ctx, service, *minRate, *maxRate, log)

	if snap, err := service.GetRates(ctx); err == nil {
		if err := service.PublishRates(ctx, snap); err != nil {
			log.Warn("failed to publish rates", map[string]interface{}{"error": err.Error()})
		}
	}
}

func plotRates(ctx context.Context, service *rates.Service, path string, log logger.Logger) {
	f, err := os.Create(path)
	if err != nil {
		log.Error("failed to create chart file", map[string]interface{}{"error": err.Error()})
		return
	}
	defer f.Close()

	if err := service.RenderChart(ctx, f); err != nil {
		if errors.Is(err, errors.ErrRatesUnavailable) {
			return
		}
		log.Error("failed to render chart", map[string]interface{}{"error": err.Error()})
		return
	}

	fmt.Println("Chart written to:", path)
}

func aggregateRates(ctx context.Context, service *rates.Service) {
	stats, err := service.AggregateRates(ctx)
	if err != nil {
		return
	}

	fmt.Println("Average Exchange Rate:", stats.Average)
	fmt.Println("Minimum Exchange Rate:", stats.Min)
	fmt.Println("Maximum Exchange Rate:", stats.Max)
	fmt.Println("Median Exchange Rate:", stats.Median)
}

func searchRates(ctx context.Context, service *rates.Service, min, max float64, log logger.Logger) {
	codes, err := service.SearchRates(ctx, min, max)
	if err != nil {
		if !errors.Is(err, errors.ErrRatesUnavailable) {
			log.Error("search failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	fmt.Println("Currencies within the given value range:", codes)
}
