package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"signalRelay/internal/adapters/logger" // Import the logger package for LogLevel
	"signalRelay/internal/domain"
	"signalRelay/internal/ports"
)

// Config holds all application configuration.
type Config struct {
	// Stream
	Stream     domain.StreamConfig // Initial live stream (Symbol + Interval)
	BatchLimit int                 // Default history window for batch queries

	// Consumer surface
	HTTPPort int

	// Feed connection
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration // Zero keeps the fixed delay
	StreamReadTimeout time.Duration

	// Fan-out
	SubscriberQueueSize int

	// Binance endpoints
	BinanceWSURL       string
	BinanceRESTURL     string
	BinanceHTTPTimeout time.Duration

	// Relay sinks (empty address disables the sink)
	NATSURL            string
	NATSSubjectPrefix  string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannelPrefix string

	// gRPC health endpoint (empty disables it)
	GRPCHealthAddr string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// fileConfig mirrors the optional YAML overlay. Keys use the environment
// variable names so both sources document the same settings.
type fileConfig map[string]interface{}

// source resolves a key from the environment first, then from the overlay file.
type source struct {
	file map[string]string
}

// LoadConfig loads configuration from environment variables (.env file), on
// top of the YAML file named by RELAY_CONFIG_FILE when set.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	src, err := newSource(os.Getenv("RELAY_CONFIG_FILE"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Stream
	symbol := src.getEnv("SYMBOL", "BTCUSDT")
	interval := src.getEnv("INTERVAL", string(domain.Interval1m))
	cfg.Stream, err = domain.NewStreamConfig(symbol, interval)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYMBOL/INTERVAL: %v", err))
	}

	limitKey := "BATCH_LIMIT"
	if src.getEnv(limitKey, "") == "" && src.getEnv("BACCARAT_LIMIT", "") != "" {
		limitKey = "BACCARAT_LIMIT"
	}
	cfg.BatchLimit, err = src.getEnvAsIntRequired(limitKey, 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid %s: %v", limitKey, err))
	} else if cfg.BatchLimit < 1 || cfg.BatchLimit > 1000 {
		errs = append(errs, fmt.Sprintf("%s must be between 1 and 1000", limitKey))
	}

	// Consumer surface
	cfg.HTTPPort, err = src.getEnvAsIntRequired("PORT", 9000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PORT: %v", err))
	} else if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		errs = append(errs, "PORT must be between 1 and 65535")
	}

	// Connection Settings
	reconnectDelaySeconds := src.getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	maxDelaySeconds := src.getEnvAsInt("RECONNECT_MAX_DELAY_SECONDS", 0)
	if maxDelaySeconds < 0 {
		errs = append(errs, "RECONNECT_MAX_DELAY_SECONDS cannot be negative")
	}
	cfg.ReconnectMaxDelay = time.Duration(maxDelaySeconds) * time.Second

	readTimeoutSeconds := src.getEnvAsInt("STREAM_READ_TIMEOUT_SECONDS", 90)
	if readTimeoutSeconds <= 0 {
		errs = append(errs, "STREAM_READ_TIMEOUT_SECONDS must be positive")
	}
	cfg.StreamReadTimeout = time.Duration(readTimeoutSeconds) * time.Second

	cfg.SubscriberQueueSize = src.getEnvAsInt("SUBSCRIBER_QUEUE_SIZE", 64)
	if cfg.SubscriberQueueSize <= 0 {
		errs = append(errs, "SUBSCRIBER_QUEUE_SIZE must be positive")
	}

	// Binance endpoints
	cfg.BinanceWSURL = strings.TrimRight(src.getEnv("BINANCE_WS_URL", "wss://stream.binance.com:9443/ws"), "/")
	if !strings.HasPrefix(cfg.BinanceWSURL, "ws://") && !strings.HasPrefix(cfg.BinanceWSURL, "wss://") {
		errs = append(errs, "BINANCE_WS_URL must be a ws:// or wss:// URL")
	}
	cfg.BinanceRESTURL = strings.TrimRight(src.getEnv("BINANCE_REST_URL", "https://api.binance.com"), "/")
	if !strings.HasPrefix(cfg.BinanceRESTURL, "http://") && !strings.HasPrefix(cfg.BinanceRESTURL, "https://") {
		errs = append(errs, "BINANCE_REST_URL must be an http:// or https:// URL")
	}
	httpTimeoutSeconds := src.getEnvAsInt("BINANCE_HTTP_TIMEOUT_SECONDS", 30)
	if httpTimeoutSeconds <= 0 {
		errs = append(errs, "BINANCE_HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.BinanceHTTPTimeout = time.Duration(httpTimeoutSeconds) * time.Second

	// Relay sinks
	cfg.NATSURL = src.getEnv("NATS_URL", "")
	cfg.NATSSubjectPrefix = src.getEnv("NATS_SUBJECT_PREFIX", "signals")
	cfg.RedisAddr = src.getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = src.getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = src.getEnvAsIntRequired("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REDIS_DB: %v", err))
	} else if cfg.RedisDB < 0 {
		errs = append(errs, "REDIS_DB cannot be negative")
	}
	cfg.RedisChannelPrefix = src.getEnv("REDIS_CHANNEL_PREFIX", "signals")

	cfg.GRPCHealthAddr = src.getEnv("GRPC_HEALTH_ADDR", "")

	// Logging
	logLevelStr := src.getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %s", ports.ErrConfiguration, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Overlay file ---

func newSource(path string) (source, error) {
	src := source{file: map[string]string{}}
	if path == "" {
		return src, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return src, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return src, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		src.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return src, nil
}

// --- Env Var Helpers ---

func (s source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s source) getEnv(key, defaultValue string) string {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (s source) getEnvAsInt(key string, defaultValue int) int {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Non-required fields fall back to their default.
		return defaultValue
	}
	return value
}

func (s source) getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := s.lookup(key)
	if valueStr == "" {
		// Use default if the key is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if the key is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
