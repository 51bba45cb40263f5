package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	Auth         AuthConfig
	CORS         CORSConfig
	Log          LogConfig
	Registration RegistrationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig holds the validation parameters for portal-issued access tokens.
// Token issuance lives in the portal's auth service; this API only verifies.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RegistrationConfig tunes the enrollment transaction engine.
type RegistrationConfig struct {
	// PaymentDeadlineDays is added to the period start date when the
	// payment deadline is lazily backfilled on first batch creation.
	PaymentDeadlineDays int
	// NextPaymentDueDays offsets the first installment due date from the
	// day the financial status row is seeded.
	NextPaymentDueDays int
	// CourseCacheTTL bounds how stale the cached selectable-course
	// classification may get on the read endpoint.
	CourseCacheTTL time.Duration
	// Seeder worker pool settings for the post-commit financial pass.
	SeedWorkers    int
	SeedBufferSize int
	SeedRetries    int
	SeedRetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		Secret:   v.GetString("AUTH_TOKEN_SECRET"),
		Issuer:   v.GetString("AUTH_TOKEN_ISSUER"),
		Audience: splitAndTrim(v.GetString("AUTH_TOKEN_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Registration = RegistrationConfig{
		PaymentDeadlineDays: v.GetInt("REGISTRATION_PAYMENT_DEADLINE_DAYS"),
		NextPaymentDueDays:  v.GetInt("REGISTRATION_NEXT_PAYMENT_DUE_DAYS"),
		CourseCacheTTL:      parseDuration(v.GetString("REGISTRATION_COURSE_CACHE_TTL"), 2*time.Minute),
		SeedWorkers:         v.GetInt("REGISTRATION_SEED_WORKERS"),
		SeedBufferSize:      v.GetInt("REGISTRATION_SEED_BUFFER"),
		SeedRetries:         v.GetInt("REGISTRATION_SEED_RETRIES"),
		SeedRetryDelay:      parseDuration(v.GetString("REGISTRATION_SEED_RETRY_DELAY"), 2*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_TOKEN_SECRET", "dev_secret")
	v.SetDefault("AUTH_TOKEN_ISSUER", "campus-portal")
	v.SetDefault("AUTH_TOKEN_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REGISTRATION_PAYMENT_DEADLINE_DAYS", 14)
	v.SetDefault("REGISTRATION_NEXT_PAYMENT_DUE_DAYS", 30)
	v.SetDefault("REGISTRATION_COURSE_CACHE_TTL", "2m")
	v.SetDefault("REGISTRATION_SEED_WORKERS", 1)
	v.SetDefault("REGISTRATION_SEED_BUFFER", 16)
	v.SetDefault("REGISTRATION_SEED_RETRIES", 3)
	v.SetDefault("REGISTRATION_SEED_RETRY_DELAY", "2s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
