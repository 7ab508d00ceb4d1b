package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Auth      AuthConfig
	Platforms PlatformsConfig
	Services  ServicesConfig
	Redis     RedisConfig
	Server    ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// AuthConfig holds staff session and credential-encryption configuration
type AuthConfig struct {
	JWTSecret     string
	EncryptionKey string // master key for credential encryption at rest
}

// OAuthAppConfig holds one platform's operator-level OAuth app credentials
type OAuthAppConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// PlatformsConfig holds operator-level API credentials for the ad platforms.
// These are app secrets, not tenant secrets; tenant tokens live encrypted in
// the database.
type PlatformsConfig struct {
	GoogleAds         OAuthAppConfig
	GoogleAdsDevToken string
	GoogleAnalytics   OAuthAppConfig
	MetaAppID         string
	MetaAppSecret     string
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	ResendAPIKey        string
	DefaultReportSender string
	WebAppURI           string
}

// RedisConfig holds optional Redis settings for rate limiting
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	RateLimitRPM int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Auth.EncryptionKey, err = requireEnv("CREDENTIALS_ENCRYPTION_KEY"); err != nil {
		return nil, err
	}

	// Platform app credentials
	if cfg.Platforms.GoogleAds.ClientID, err = requireEnv("GOOGLE_ADS_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.Platforms.GoogleAds.ClientSecret, err = requireEnv("GOOGLE_ADS_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Platforms.GoogleAds.RedirectURI, err = requireEnv("GOOGLE_ADS_REDIRECT_URI"); err != nil {
		return nil, err
	}
	if cfg.Platforms.GoogleAdsDevToken, err = requireEnv("GOOGLE_ADS_DEVELOPER_TOKEN"); err != nil {
		return nil, err
	}
	if cfg.Platforms.GoogleAnalytics.ClientID, err = requireEnv("GA_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.Platforms.GoogleAnalytics.ClientSecret, err = requireEnv("GA_CLIENT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Platforms.GoogleAnalytics.RedirectURI, err = requireEnv("GA_REDIRECT_URI"); err != nil {
		return nil, err
	}
	if cfg.Platforms.MetaAppID, err = requireEnv("META_APP_ID"); err != nil {
		return nil, err
	}
	if cfg.Platforms.MetaAppSecret, err = requireEnv("META_APP_SECRET"); err != nil {
		return nil, err
	}

	// Services configuration
	if cfg.Services.ResendAPIKey, err = requireEnv("RESEND_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.DefaultReportSender, err = requireEnv("DEFAULT_REPORT_SENDER_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.Services.WebAppURI, err = requireEnv("WEBAPP_URI"); err != nil {
		return nil, err
	}

	// Redis configuration (optional, rate limiting only)
	cfg.Redis.Enabled = getEnvWithDefault("REDIS_ENABLED", "false") == "true"
	if cfg.Redis.Enabled {
		cfg.Redis.Host = getEnvWithDefault("REDIS_HOST", "localhost")
		redisPort := getEnvWithDefault("REDIS_PORT", "6379")
		cfg.Redis.Port, err = strconv.Atoi(redisPort)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_PORT: %w", err)
		}
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
		redisDB := getEnvWithDefault("REDIS_DB", "0")
		cfg.Redis.DB, err = strconv.Atoi(redisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_DB: %w", err)
		}
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	rateLimitRPM := getEnvWithDefault("RATE_LIMIT_RPM", "120")
	cfg.Server.RateLimitRPM, err = strconv.Atoi(rateLimitRPM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RATE_LIMIT_RPM: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
