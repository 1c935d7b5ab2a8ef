// Package config loads and validates service configuration from the
// environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Database DatabaseConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ProviderConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type CacheConfig struct {
	// TTL of zero means cached snapshots never expire; the service itself
	// never invalidates them.
	TTL time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type DatabaseConfig struct {
	// URL may be empty, in which case snapshot history is disabled.
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Provider: ProviderConfig{
			Endpoint: getEnv("RATE_API_ENDPOINT", ""),
			Timeout:  getDurationEnv("RATE_API_TIMEOUT", 10*time.Second),
		},
		Cache: CacheConfig{
			TTL: getDurationEnv("CACHE_TTL", 0),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
