// speedcast-proxy is a thin forward proxy built on the speedcast client.
// Every proxied request goes through the client's cache, deduplication,
// rate-limit and retry layers; Prometheus metrics are served on /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/virtualheet/speedcast-api/pkg/cache"
	"github.com/virtualheet/speedcast-api/pkg/client"
	"github.com/virtualheet/speedcast-api/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	}).With().Str("component", "proxy").Logger()

	upstream := getEnv("UPSTREAM_URL", "")
	if upstream == "" {
		logger.Fatal().Msg("UPSTREAM_URL is required")
	}
	port := getEnv("PORT", "8080")

	cfg := client.DefaultConfig()
	cfg.BaseURL = upstream
	cfg.CacheEnabled = getEnv("CACHE", "true") == "true"
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Timeout = getEnvDuration("TIMEOUT", 10*time.Second)
	cfg.MaxRetries = getEnvInt("RETRIES", 3)

	if n := getEnvInt("RATE_LIMIT", 0); n > 0 {
		cfg.RateLimit = &client.RateLimitConfig{
			Requests: n,
			Window:   getEnvDuration("RATE_WINDOW", time.Second),
		}
	}

	var opts []client.Option
	if redisURL := getEnv("REDIS_URL", ""); redisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		opts = append(opts, client.WithCacheStore(cache.NewRedisStore(rdb)))
		logger.Info().Str("redis_url", redisURL).Msg("Using Redis cache store")
	}

	c, err := client.New(cfg, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/", proxyHandler(c, logger))

	addr := ":" + port
	logger.Info().Str("addr", addr).Str("upstream", upstream).Msg("Starting speedcast proxy")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func proxyHandler(c *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		var body []byte
		if r.Body != nil {
			data, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "read request body", http.StatusBadRequest)
				return
			}
			body = data
		}

		var resp *client.Response
		var err error
		switch r.Method {
		case http.MethodGet:
			resp, err = c.Get(r.Context(), path, nil)
		case http.MethodPost:
			resp, err = c.Post(r.Context(), path, body, nil)
		case http.MethodPut:
			resp, err = c.Put(r.Context(), path, body, nil)
		case http.MethodPatch:
			resp, err = c.Patch(r.Context(), path, body, nil)
		case http.MethodDelete:
			resp, err = c.Delete(r.Context(), path, body, nil)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err != nil {
			var typed *client.Error
			if errors.As(err, &typed) && typed.Kind == client.KindHTTPStatus {
				http.Error(w, typed.Message, typed.Status)
				return
			}
			logger.Warn().Err(err).Str("path", path).Msg("Upstream request failed")
			http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
			return
		}

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.Status)
		if _, err := w.Write(resp.Data); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
