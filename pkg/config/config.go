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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Pass     PassPolicyConfig
	Gate     GateConfig
	Exports  ExportsConfig
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PassPolicyConfig holds the tunable policy constants of the pass engine.
// The violation penalty, grace period and cooldown threshold are deployment
// policy, not code.
type PassPolicyConfig struct {
	TrustBaseline      int
	ViolationPenalty   int
	CooldownThreshold  int
	ReturnGrace        time.Duration
	SweepInterval      time.Duration
	SweepWorkers       int
	SweepRetries       int
	RestrictionTTL     time.Duration
	RestrictionCaching bool
}

// GateConfig governs the gate-device surface.
type GateConfig struct {
	DeviceToken string
}

// ExportsConfig governs pass-history exports and their download links.
type ExportsConfig struct {
	Enabled    bool
	Dir        string
	SignSecret string
	ResultTTL  time.Duration
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
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Pass = PassPolicyConfig{
		TrustBaseline:      v.GetInt("PASS_TRUST_BASELINE"),
		ViolationPenalty:   v.GetInt("PASS_VIOLATION_PENALTY"),
		CooldownThreshold:  v.GetInt("PASS_COOLDOWN_THRESHOLD"),
		ReturnGrace:        parseDuration(v.GetString("PASS_RETURN_GRACE"), 30*time.Minute),
		SweepInterval:      parseDuration(v.GetString("PASS_SWEEP_INTERVAL"), 5*time.Minute),
		SweepWorkers:       v.GetInt("PASS_SWEEP_WORKERS"),
		SweepRetries:       v.GetInt("PASS_SWEEP_RETRIES"),
		RestrictionTTL:     parseDuration(v.GetString("RESTRICTION_CACHE_TTL"), 5*time.Minute),
		RestrictionCaching: v.GetBool("RESTRICTION_CACHE_ENABLED"),
	}

	cfg.Gate = GateConfig{
		DeviceToken: v.GetString("GATE_DEVICE_TOKEN"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:    v.GetBool("ENABLE_EXPORTS"),
		Dir:        v.GetString("EXPORTS_DIR"),
		SignSecret: v.GetString("EXPORTS_SIGN_SECRET"),
		ResultTTL:  parseDuration(v.GetString("EXPORTS_RESULT_TTL"), 24*time.Hour),
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
	v.SetDefault("DB_NAME", "campus_pass")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PASS_TRUST_BASELINE", 70)
	v.SetDefault("PASS_VIOLATION_PENALTY", 10)
	v.SetDefault("PASS_COOLDOWN_THRESHOLD", 3)
	v.SetDefault("PASS_RETURN_GRACE", "30m")
	v.SetDefault("PASS_SWEEP_INTERVAL", "5m")
	v.SetDefault("PASS_SWEEP_WORKERS", 1)
	v.SetDefault("PASS_SWEEP_RETRIES", 3)
	v.SetDefault("RESTRICTION_CACHE_TTL", "5m")
	v.SetDefault("RESTRICTION_CACHE_ENABLED", true)

	v.SetDefault("GATE_DEVICE_TOKEN", "")
	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGN_SECRET", "dev_export_secret")
	v.SetDefault("EXPORTS_RESULT_TTL", "24h")
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
