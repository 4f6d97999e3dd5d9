package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/tailscale/hujson"
)

type Config struct {
	Port              int    `json:"port"`
	DataDir           string `json:"data_dir"`
	LogLevel          string `json:"log_level"`
	AllowedOrigin     string `json:"allowed_origin"`
	CacheMarginPx     int    `json:"cache_margin_px"`
	CacheBudgetMB     int64  `json:"cache_budget_mb"`
	PreviewMaxPx      int    `json:"preview_max_px"`
	PreviewCacheSize  int    `json:"preview_cache_size"`
	DefaultViewWidth  int    `json:"default_view_width"`
	DefaultViewHeight int    `json:"default_view_height"`
	MaxSessions       int    `json:"max_sessions"`
	WarmupWorkers     int    `json:"warmup_workers"`
	VipsMaxCacheMB    int    `json:"vips_max_cache_mb"`
	VipsConcurrency   int    `json:"vips_concurrency"`
}

// Load builds the configuration from defaults, then the optional config
// file at path (JSON with comments and trailing commas allowed), then
// environment variables. Later layers win.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:              8080,
		DataDir:           "/data",
		LogLevel:          "info",
		AllowedOrigin:     "",
		CacheMarginPx:     1024,
		CacheBudgetMB:     256,
		PreviewMaxPx:      1600,
		PreviewCacheSize:  16,
		DefaultViewWidth:  1280,
		DefaultViewHeight: 800,
		MaxSessions:       32,
		WarmupWorkers:     1,
		VipsMaxCacheMB:    256,
		VipsConcurrency:   1,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		std, err := hujson.Standardize(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := json.Unmarshal(std, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.CacheMarginPx = getEnvInt("CACHE_MARGIN_PX", cfg.CacheMarginPx)
	cfg.CacheBudgetMB = getEnvInt64("CACHE_BUDGET_MB", cfg.CacheBudgetMB)
	cfg.PreviewMaxPx = getEnvInt("PREVIEW_MAX_PX", cfg.PreviewMaxPx)
	cfg.PreviewCacheSize = getEnvInt("PREVIEW_CACHE_SIZE", cfg.PreviewCacheSize)
	cfg.DefaultViewWidth = getEnvInt("DEFAULT_VIEW_WIDTH", cfg.DefaultViewWidth)
	cfg.DefaultViewHeight = getEnvInt("DEFAULT_VIEW_HEIGHT", cfg.DefaultViewHeight)
	cfg.MaxSessions = getEnvInt("MAX_SESSIONS", cfg.MaxSessions)
	cfg.WarmupWorkers = getEnvInt("WARMUP_WORKERS", cfg.WarmupWorkers)
	cfg.VipsMaxCacheMB = getEnvInt("VIPS_MAX_CACHE_MB", cfg.VipsMaxCacheMB)
	cfg.VipsConcurrency = getEnvInt("VIPS_CONCURRENCY", cfg.VipsConcurrency)

	return cfg, nil
}

// BudgetBytes returns the cache pixel budget in bytes.
func (c *Config) BudgetBytes() int64 {
	return c.CacheBudgetMB << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
