package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HeatmapConfig configures the heatmap service. Values come from the optional
// YAML file named by HEATMAP_CONFIG and are then overridden by env vars.
type HeatmapConfig struct {
	Env          string        `yaml:"env"`
	JWTSecret    string        `yaml:"jwt_secret"`
	RedisURL     string        `yaml:"redis_url"`
	AsyncWrites  bool          `yaml:"async_writes"`
	Budget       int           `yaml:"budget"`
	FanIn        int           `yaml:"fan_in"`
	Workers      int           `yaml:"workers"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	EventTTL     time.Duration `yaml:"event_ttl"`
	Subject      string        `yaml:"subject"`
	Durable      string        `yaml:"durable"`
	BatchSize    int           `yaml:"batch_size"`
	BatchWait    time.Duration `yaml:"batch_wait"`
	CBFailures   uint32        `yaml:"cb_failures"`
	CBTimeout    time.Duration `yaml:"cb_timeout"`
	EnsureSchema bool          `yaml:"ensure_schema"`
	// UploadRate is the per-user upload rate in requests per second; 0 disables limiting.
	UploadRate  float64 `yaml:"upload_rate"`
	UploadBurst int     `yaml:"upload_burst"`
}

func defaults() HeatmapConfig {
	return HeatmapConfig{
		Env:         "development",
		AsyncWrites: true,
		Budget:      50,
		FanIn:       16,
		CacheTTL:    time.Hour,
		EventTTL:    24 * time.Hour,
		Subject:     "playback.actions",
		Durable:     "heatmap_actions",
		BatchSize:   100,
		BatchWait:   2 * time.Second,
		CBFailures:  5,
		CBTimeout:   30 * time.Second,
		UploadRate:  5,
		UploadBurst: 20,
	}
}

// IsProd reports whether the service runs in production.
func (c HeatmapConfig) IsProd() bool {
	return c.Env == "production" || c.Env == "prod"
}

// LoadHeatmap builds the configuration from defaults, the YAML file and env.
func LoadHeatmap() (HeatmapConfig, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("HEATMAP_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return HeatmapConfig{}, err
		}
	}
	applyEnv(&cfg)

	if cfg.Budget <= 0 {
		return HeatmapConfig{}, errors.New("HEATMAP_BUDGET must be positive")
	}
	if cfg.FanIn < 2 {
		return HeatmapConfig{}, errors.New("HEATMAP_FAN_IN must be at least 2")
	}
	if cfg.IsProd() && cfg.JWTSecret == "" {
		return HeatmapConfig{}, errors.New("JWT_SECRET is required in production")
	}
	return cfg, nil
}

func loadFile(path string, cfg *HeatmapConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *HeatmapConfig) {
	cfg.Env = envString("APP_ENV", cfg.Env)
	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)
	cfg.RedisURL = envString("REDIS_URL", cfg.RedisURL)
	cfg.AsyncWrites = envBool("HEATMAP_ASYNC_WRITES", cfg.AsyncWrites)
	cfg.Budget = envInt("HEATMAP_BUDGET", cfg.Budget)
	cfg.FanIn = envInt("HEATMAP_FAN_IN", cfg.FanIn)
	cfg.Workers = envInt("HEATMAP_WORKERS", cfg.Workers)
	cfg.CacheTTL = envDuration("HEATMAP_CACHE_TTL", cfg.CacheTTL)
	cfg.EventTTL = envDuration("HEATMAP_EVENT_TTL", cfg.EventTTL)
	cfg.Subject = envString("HEATMAP_SUBJECT", cfg.Subject)
	cfg.Durable = envString("HEATMAP_DURABLE", cfg.Durable)
	cfg.BatchSize = envInt("WORKER_BATCH_SIZE", cfg.BatchSize)
	if ms := envInt("WORKER_BATCH_INTERVAL_MS", 0); ms > 0 {
		cfg.BatchWait = time.Duration(ms) * time.Millisecond
	}
	cfg.CBFailures = uint32(envInt("HEATMAP_CB_FAILURES", int(cfg.CBFailures)))
	cfg.CBTimeout = envDuration("HEATMAP_CB_TIMEOUT", cfg.CBTimeout)
	cfg.EnsureSchema = envBool("HEATMAP_ENSURE_SCHEMA", cfg.EnsureSchema)
	cfg.UploadRate = envFloat("HEATMAP_UPLOAD_RATE", cfg.UploadRate)
	cfg.UploadBurst = envInt("HEATMAP_UPLOAD_BURST", cfg.UploadBurst)
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	return v != "0" && v != "false" && v != "no"
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
