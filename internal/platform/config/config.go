package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr                string
	DatabaseURL         string
	Environment         string
	MasterSecret        string
	AdminJWTSecret      string
	SlackClientID       string
	SlackClientSecret   string
	SlackSigningSecret  string
	SlackRedirectURI    string
	SupermemoryAPIURL   string
	SupermemoryAPIKey   string
	RunMigrations       bool
	MetricsEnabled      bool
	MaxBodyBytes        int64
	RotationMaxTokenAge time.Duration
	RotateOnFailure     bool
	HealthCheckInterval time.Duration
	RetentionInterval   time.Duration
	SlackAPITimeout     time.Duration
	SlackRatePerMinute  int
	NotifyOnRevocation  bool
	AuditRetentionDays  int
}

func Load() Config {
	return Config{
		Addr:                getEnv("APP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		Environment:         getEnv("APP_ENV", "development"),
		MasterSecret:        getEnv("MASTER_SECRET", ""),
		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		SlackClientID:       getEnv("SLACK_CLIENT_ID", ""),
		SlackClientSecret:   getEnv("SLACK_CLIENT_SECRET", ""),
		SlackSigningSecret:  getEnv("SLACK_SIGNING_SECRET", ""),
		SlackRedirectURI:    getEnv("SLACK_REDIRECT_URI", ""),
		SupermemoryAPIURL:   getEnv("SUPERMEMORY_API_URL", "https://api.supermemory.ai"),
		SupermemoryAPIKey:   getEnv("SUPERMEMORY_API_KEY", ""),
		RunMigrations:       getEnvBool("RUN_MIGRATIONS", true),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		MaxBodyBytes:        int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RotationMaxTokenAge: getEnvDuration("ROTATION_MAX_TOKEN_AGE", 30*24*time.Hour),
		RotateOnFailure:     getEnvBool("ROTATE_ON_FAILURE", true),
		HealthCheckInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 6*time.Hour),
		RetentionInterval:   getEnvDuration("RETENTION_INTERVAL", 24*time.Hour),
		SlackAPITimeout:     getEnvDuration("SLACK_API_TIMEOUT", 10*time.Second),
		SlackRatePerMinute:  getEnvInt("SLACK_RATE_PER_MINUTE", 50),
		NotifyOnRevocation:  getEnvBool("NOTIFY_ON_REVOCATION", true),
		AuditRetentionDays:  getEnvInt("AUDIT_RETENTION_DAYS", 365),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(strings.TrimSpace(c.MasterSecret)) < 32 {
		return fmt.Errorf("MASTER_SECRET must be at least 32 characters")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.AdminJWTSecret) == "" {
			return fmt.Errorf("ADMIN_JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.SlackSigningSecret) == "" {
			return fmt.Errorf("SLACK_SIGNING_SECRET must be set in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.SlackRatePerMinute <= 0 {
		return fmt.Errorf("SLACK_RATE_PER_MINUTE must be positive")
	}
	if c.AuditRetentionDays <= 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be positive")
	}
	return nil
}
