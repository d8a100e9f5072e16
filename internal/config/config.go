/**
 * @description
 * This file handles the configuration management for the financial-service.
 * It uses the Viper library to read settings from environment variables or a .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 */
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	Environment           string `mapstructure:"ENVIRONMENT"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
	StoreBackend          string `mapstructure:"STORE_BACKEND"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	DBHost                string `mapstructure:"DB_HOST"`
	DBPort                string `mapstructure:"DB_PORT"`
	DBUser                string `mapstructure:"DB_USER"`
	DBPassword            string `mapstructure:"DB_PASS"`
	DBName                string `mapstructure:"DB_NAME"`
	DBSSLMode             string `mapstructure:"DB_SSLMODE"`
	DBMaxConns            int32  `mapstructure:"DB_MAX_CONNS"`
	PaystackSecretKey     string `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL       string `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackPreferredBank string `mapstructure:"PAYSTACK_PREFERRED_BANK"`
	PaystackCountry       string `mapstructure:"PAYSTACK_COUNTRY"`
	IssuerTimeoutSeconds  int    `mapstructure:"ISSUER_TIMEOUT_SECONDS"`
	DefaultCurrency       string `mapstructure:"DEFAULT_CURRENCY"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	LedgerEventsExchange  string `mapstructure:"LEDGER_EVENTS_EXCHANGE"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix  string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RateLimitPerMinute    int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins    string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from an optional .env file in path and from
// environment variables, which take precedence.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "10000")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("STORE_BACKEND", StoreBackendPostgres)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_NAME", "financial")
	viper.SetDefault("DB_SSLMODE", "require")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("PAYSTACK_PREFERRED_BANK", "wema-bank")
	viper.SetDefault("PAYSTACK_COUNTRY", "NG")
	viper.SetDefault("ISSUER_TIMEOUT_SECONDS", 15)
	viper.SetDefault("DEFAULT_CURRENCY", "NGN")
	viper.SetDefault("LEDGER_EVENTS_EXCHANGE", "ledger_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "financial:rate_limit")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// Bind envs explicitly so containers pick them up reliably
	_ = viper.BindEnv("SERVER_PORT", "SERVER_PORT", "PORT")
	_ = viper.BindEnv("ENVIRONMENT")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("STORE_BACKEND")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DB_HOST")
	_ = viper.BindEnv("DB_PORT")
	_ = viper.BindEnv("DB_USER")
	_ = viper.BindEnv("DB_PASS", "DB_PASS", "DB_PASSWORD")
	_ = viper.BindEnv("DB_NAME")
	_ = viper.BindEnv("DB_SSLMODE")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("PAYSTACK_SECRET_KEY")
	_ = viper.BindEnv("PAYSTACK_BASE_URL")
	_ = viper.BindEnv("PAYSTACK_PREFERRED_BANK")
	_ = viper.BindEnv("PAYSTACK_COUNTRY")
	_ = viper.BindEnv("ISSUER_TIMEOUT_SECONDS")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_EVENTS_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return config, fmt.Errorf("read config file: %w", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}

	config.normalize()
	if err = config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *Config) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.PaystackSecretKey = strings.TrimSpace(c.PaystackSecretKey)
	c.RabbitMQURL = strings.TrimSpace(c.RabbitMQURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if c.IssuerTimeoutSeconds <= 0 {
		c.IssuerTimeoutSeconds = 15
	}
	if c.DBMaxConns <= 0 {
		c.DBMaxConns = 10
	}
}

// Validate reports configuration that would prevent the service from running.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be %q or %q", c.StoreBackend, StoreBackendPostgres, StoreBackendMemory)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("invalid DEFAULT_CURRENCY %q: must be a 3-letter code", c.DefaultCurrency)
	}
	if c.PaystackSecretKey == "" && !c.IsDevelopment() {
		return errors.New("PAYSTACK_SECRET_KEY is required outside development")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local environment.
func (c Config) IsDevelopment() bool {
	switch c.Environment {
	case "development", "dev", "local":
		return true
	}
	return false
}

// DatabaseDSN returns DATABASE_URL when set, otherwise a postgres URL built
// from the individual DB_* settings.
func (c Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.DBSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// IssuerTimeout is the bound applied to each call to the virtual account issuer.
func (c Config) IssuerTimeout() time.Duration {
	return time.Duration(c.IssuerTimeoutSeconds) * time.Second
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
