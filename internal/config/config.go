package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Startup connection probe
	ConnectMaxRetries  int
	ConnectBaseDelayMs int

	// Redis (event guard + rate limiting); optional
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// AWS SES admin email copies; enabled when AdminEmail is set
	AWSRegion    string
	SESFromEmail string
	AdminEmail   string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "talentbridge",
		DBPassword: "",
		DBName:     "talentbridge",
		DBSSLMode:  "disable",

		ConnectMaxRetries:  5,
		ConnectBaseDelayMs: 1000,

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@talentbridge.local",
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	if retries := os.Getenv("CONNECT_MAX_RETRIES"); retries != "" {
		n, err := strconv.Atoi(retries)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid CONNECT_MAX_RETRIES: %q", retries)
		}
		cfg.ConnectMaxRetries = n
	}

	if delay := os.Getenv("CONNECT_BASE_DELAY_MS"); delay != "" {
		n, err := strconv.Atoi(delay)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid CONNECT_BASE_DELAY_MS: %q", delay)
		}
		cfg.ConnectBaseDelayMs = n
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if to := os.Getenv("ADMIN_EMAIL"); to != "" {
		cfg.AdminEmail = to
	}

	return cfg, nil
}
