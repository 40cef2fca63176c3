package config

import (
	"os"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
}

// Load reads the settings shared by every service. SERVICE_NAME overrides
// service.
func Load(service string) (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		HTTP: HTTPConfig{
			Addr:            strings.TrimSpace(os.Getenv("HTTP_ADDR")),
			ShutdownTimeout: 10 * time.Second,
		},
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = service
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_SHUTDOWN_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return AppConfig{}, err
		}
		cfg.HTTP.ShutdownTimeout = d
	}
	return cfg, nil
}
