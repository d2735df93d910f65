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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	OMR       OMRConfig
	Scans     ScanStorageConfig
	Analytics AnalyticsConfig
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

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// OMRConfig tunes the extraction pipeline and the review routing rule.
type OMRConfig struct {
	// ConfidenceThreshold flags a scan for review when extraction
	// confidence falls below it.
	ConfidenceThreshold float64
	// BlankAnswerRatio flags a scan when the fraction of blank or
	// ambiguous marks exceeds it. The default 0 flags any blank.
	BlankAnswerRatio  float64
	WorkerConcurrency int
	WorkerRetries     int
}

// ScanStorageConfig controls storage of uploaded sheet images.
type ScanStorageConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// AnalyticsConfig governs cache behaviour and the item statistics conventions.
type AnalyticsConfig struct {
	CacheTTL time.Duration
	// GroupFraction is the upper/lower slice used by the discrimination
	// index, conventionally 27%.
	GroupFraction float64
	// MinGroupSize is the smallest group the discrimination index will
	// divide by; smaller groups report 0.
	MinGroupSize int
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

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.OMR = OMRConfig{
		ConfidenceThreshold: v.GetFloat64("OMR_CONFIDENCE_THRESHOLD"),
		BlankAnswerRatio:    v.GetFloat64("OMR_BLANK_ANSWER_RATIO"),
		WorkerConcurrency:   v.GetInt("OMR_WORKER_CONCURRENCY"),
		WorkerRetries:       v.GetInt("OMR_WORKER_RETRIES"),
	}

	maxScanSize := v.GetInt64("SCANS_MAX_FILE_SIZE")
	if maxScanSize <= 0 {
		maxScanSize = 10 * 1024 * 1024
	}
	cfg.Scans = ScanStorageConfig{
		StorageDir:       v.GetString("SCANS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("SCANS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("SCANS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxScanSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("SCANS_ALLOWED_MIME_TYPES")),
	}

	cfg.Analytics = AnalyticsConfig{
		CacheTTL:      parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
		GroupFraction: v.GetFloat64("ANALYTICS_GROUP_FRACTION"),
		MinGroupSize:  v.GetInt("ANALYTICS_MIN_GROUP_SIZE"),
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
	v.SetDefault("DB_NAME", "omr_grade")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "omr-grade-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OMR_CONFIDENCE_THRESHOLD", 0.85)
	v.SetDefault("OMR_BLANK_ANSWER_RATIO", 0.0)
	v.SetDefault("OMR_WORKER_CONCURRENCY", 2)
	v.SetDefault("OMR_WORKER_RETRIES", 3)

	v.SetDefault("SCANS_STORAGE_DIR", "./scans")
	v.SetDefault("SCANS_SIGNED_URL_SECRET", "dev_scans_secret")
	v.SetDefault("SCANS_SIGNED_URL_TTL", "30m")
	v.SetDefault("SCANS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("SCANS_ALLOWED_MIME_TYPES", "image/png,image/jpeg")

	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")
	v.SetDefault("ANALYTICS_GROUP_FRACTION", 0.27)
	v.SetDefault("ANALYTICS_MIN_GROUP_SIZE", 2)
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
