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

// Order transition policies.
const (
	OrderPolicyFree       = "free"
	OrderPolicySequential = "sequential"
)

// Notification providers.
const (
	ProviderNoop   = "noop"
	ProviderResend = "resend"
)

type Config struct {
	Env             string
	Port            int
	APIPrefix       string
	ShutdownTimeout time.Duration

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Workflow      WorkflowConfig
	Notifications NotificationsConfig
	Client        ClientConfig
	Bootstrap     BootstrapConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
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

// WorkflowConfig tunes the status workflow and its list cache.
type WorkflowConfig struct {
	OrderPolicy  string
	CacheEnabled bool
	CacheTTL     time.Duration
}

// NotificationsConfig controls transactional email for workflow decisions.
type NotificationsConfig struct {
	Enabled      bool
	Provider     string
	ResendAPIKey string
	From         string
	ReplyTo      string
	Workers      int
	Retries      int
	RetryDelay   time.Duration
}

// BootstrapConfig seeds the first administrator when the users table has no
// account for Email.
type BootstrapConfig struct {
	Email    string
	Password string
	FullName string
}

// ClientConfig is consumed by adminctl and any other workflow client.
type ClientConfig struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	DetailCacheSize int
	DetailCacheTTL  time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ShutdownTimeout = parseDuration(v.GetString("SHUTDOWN_TIMEOUT"), 15*time.Second)

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
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

	cfg.Workflow = WorkflowConfig{
		OrderPolicy:  normalizeOrderPolicy(v.GetString("WORKFLOW_ORDER_POLICY")),
		CacheEnabled: v.GetBool("WORKFLOW_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("WORKFLOW_CACHE_TTL"), time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:      v.GetBool("ENABLE_NOTIFICATIONS"),
		Provider:     strings.ToLower(strings.TrimSpace(v.GetString("NOTIFICATIONS_PROVIDER"))),
		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		From:         v.GetString("NOTIFICATIONS_FROM"),
		ReplyTo:      v.GetString("NOTIFICATIONS_REPLY_TO"),
		Workers:      v.GetInt("NOTIFICATIONS_WORKERS"),
		Retries:      v.GetInt("NOTIFICATIONS_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Client = ClientConfig{
		BaseURL:         strings.TrimRight(v.GetString("ADMIN_API_BASE_URL"), "/"),
		Token:           v.GetString("ADMIN_API_TOKEN"),
		Timeout:         parseDuration(v.GetString("ADMIN_API_TIMEOUT"), 15*time.Second),
		DetailCacheSize: v.GetInt("ADMIN_DETAIL_CACHE_SIZE"),
		DetailCacheTTL:  parseDuration(v.GetString("ADMIN_DETAIL_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Bootstrap = BootstrapConfig{
		Email:    strings.TrimSpace(v.GetString("ADMIN_BOOTSTRAP_EMAIL")),
		Password: v.GetString("ADMIN_BOOTSTRAP_PASSWORD"),
		FullName: v.GetString("ADMIN_BOOTSTRAP_FULL_NAME"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "hmx_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "hmx-admin-api")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:5174")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WORKFLOW_ORDER_POLICY", OrderPolicyFree)
	v.SetDefault("WORKFLOW_CACHE_ENABLED", true)
	v.SetDefault("WORKFLOW_CACHE_TTL", "1m")

	v.SetDefault("ENABLE_NOTIFICATIONS", true)
	v.SetDefault("NOTIFICATIONS_PROVIDER", ProviderNoop)
	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("NOTIFICATIONS_FROM", "HMX FPV Tours <noreply@hmxfpvtours.com>")
	v.SetDefault("NOTIFICATIONS_REPLY_TO", "support@hmxfpvtours.com")
	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "5s")

	v.SetDefault("ADMIN_API_BASE_URL", "http://localhost:8080")
	v.SetDefault("ADMIN_API_TOKEN", "")
	v.SetDefault("ADMIN_API_TIMEOUT", "15s")
	v.SetDefault("ADMIN_DETAIL_CACHE_SIZE", 256)
	v.SetDefault("ADMIN_DETAIL_CACHE_TTL", "2m")

	v.SetDefault("ADMIN_BOOTSTRAP_EMAIL", "")
	v.SetDefault("ADMIN_BOOTSTRAP_PASSWORD", "")
	v.SetDefault("ADMIN_BOOTSTRAP_FULL_NAME", "HMX Administrator")
}

func normalizeOrderPolicy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case OrderPolicySequential:
		return OrderPolicySequential
	default:
		return OrderPolicyFree
	}
}

// viper reports an absent explicit config file as a *fs.PathError rather than
// ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
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
