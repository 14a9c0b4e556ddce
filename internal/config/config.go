// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Plex      PlexConfig      `koanf:"plex"`
	Tiers     TiersConfig     `koanf:"tiers"`
	Stripe    StripeConfig    `koanf:"stripe"`
	Tautulli  TautulliConfig  `koanf:"tautulli"`
	Admin     AdminConfig     `koanf:"admin"`
	Session   SessionConfig   `koanf:"session"`
	Device    DeviceConfig    `koanf:"device"`
	Webhook   WebhookConfig   `koanf:"webhook"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	FrontendURL string `koanf:"frontend_url"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// RedisConfig backs webhook dedupe and rate limiting. Both fail open, so
// with Required unset the gateway starts while Redis is still down.
type RedisConfig struct {
	URL             string        `koanf:"url"`
	PoolSize        int           `koanf:"pool_size"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	PoolTimeout     time.Duration `koanf:"pool_timeout"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	PingTimeout     time.Duration `koanf:"ping_timeout"`
	Required        bool          `koanf:"required"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint      string        `koanf:"endpoint"`
	ServiceName   string        `koanf:"service_name"`
	Enabled       bool          `koanf:"enabled"`
	Insecure      bool          `koanf:"insecure"`
	SampleRate    float64       `koanf:"sample_rate"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
	BatchTimeout  time.Duration `koanf:"batch_timeout"`
	// AlwaysSample lists span name prefixes kept regardless of SampleRate.
	AlwaysSample []string `koanf:"always_sample"`
}

type PlexConfig struct {
	Token     string        `koanf:"token"`
	MachineID string        `koanf:"machine_id"`
	ServerURL string        `koanf:"server_url"`
	TVBaseURL string        `koanf:"tv_base_url"`
	ClientID  string        `koanf:"client_id"`
	Product   string        `koanf:"product"`
	Timeout   time.Duration `koanf:"timeout"`
	Breaker   BreakerConfig `koanf:"breaker"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// TiersConfig holds the local library keys granted by each tier.
type TiersConfig struct {
	HD    []int `koanf:"hd"`
	FourK []int `koanf:"4k"`
	Admin []int `koanf:"admin"`
}

type StripeConfig struct {
	SecretKey      string `koanf:"secret_key"`
	WebhookSecret  string `koanf:"webhook_secret"`
	PriceHD        string `koanf:"price_hd"`
	Price4K        string `koanf:"price_4k"`
	DefaultPriceID string `koanf:"default_price_id"`
}

type TautulliConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

func (t TautulliConfig) Enabled() bool {
	return t.URL != "" && t.APIKey != ""
}

type AdminConfig struct {
	APIKey string `koanf:"api_key"`
}

type SessionConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

type DeviceConfig struct {
	CodeTTL        time.Duration `koanf:"code_ttl"`
	PollInterval   time.Duration `koanf:"poll_interval"`
	TokenTTL       time.Duration `koanf:"token_ttl"`
	PrivateKeyPath string        `koanf:"private_key_path"`
	Issuer         string        `koanf:"issuer"`
	Audience       string        `koanf:"audience"`
}

type WebhookConfig struct {
	DedupTTL time.Duration `koanf:"dedup_ttl"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":         "Novix Gateway",
		"app.version":      "1.0.0",
		"app.environment":  "development",
		"app.frontend_url": "http://localhost:5173",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":          10,
		"redis.min_idle_conns":     5,
		"redis.pool_timeout":       "4s",
		"redis.conn_max_idle_time": "5m",
		"redis.ping_timeout":       "2s",
		"redis.required":           true,

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"cors.allowed_origins": []string{"http://localhost:5173"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": false,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":        false,
		"otel.insecure":       true,
		"otel.sample_rate":    0.1,
		"otel.service_name":   "novix-gateway",
		"otel.export_timeout": "5s",
		"otel.batch_timeout":  "5s",
		"otel.always_sample":  []string{"billing.", "access."},

		"plex.tv_base_url":           "https://plex.tv",
		"plex.client_id":             "novix-tv",
		"plex.product":               "NovixTV",
		"plex.timeout":               "15s",
		"plex.breaker.max_requests":  3,
		"plex.breaker.interval":      "1m",
		"plex.breaker.timeout":       "30s",
		"plex.breaker.min_requests":  5,
		"plex.breaker.failure_ratio": 0.6,

		"tautulli.timeout": "10s",

		"session.issuer": "",

		"device.code_ttl":         "15m",
		"device.poll_interval":    "5s",
		"device.token_ttl":        "8760h",
		"device.private_key_path": "keys/device.pem",
		"device.issuer":           "novix-gateway",
		"device.audience":         "novix-tv-app",

		"webhook.dedup_ttl": "72h",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":                   "redis.url",
	"REDIS_POOL_SIZE":             "redis.pool_size",
	"REDIS_REQUIRED":              "redis.required",
	"ENVIRONMENT":                 "app.environment",
	"FRONTEND_URL":                "app.frontend_url",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"CORS_ALLOWED_ORIGINS":        "cors.allowed_origins",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"OTEL_ALWAYS_SAMPLE":          "otel.always_sample",
	"PLEX_TOKEN":                  "plex.token",
	"PLEX_MACHINE_ID":             "plex.machine_id",
	"PLEX_SERVER_URL":             "plex.server_url",
	"PLEX_TV_BASE_URL":            "plex.tv_base_url",
	"LIBRARY_IDS_HD":              "tiers.hd",
	"LIBRARY_IDS_4K":              "tiers.4k",
	"LIBRARY_IDS_ADMIN":           "tiers.admin",
	"STRIPE_SECRET_KEY":           "stripe.secret_key",
	"STRIPE_WEBHOOK_SECRET":       "stripe.webhook_secret",
	"STRIPE_PRICE_HD":             "stripe.price_hd",
	"STRIPE_PRICE_4K":             "stripe.price_4k",
	"STRIPE_DEFAULT_PRICE_ID":     "stripe.default_price_id",
	"TAUTULLI_URL":                "tautulli.url",
	"TAUTULLI_API_KEY":            "tautulli.api_key",
	"ADMIN_API_KEY":               "admin.api_key",
	"SUPABASE_JWT_SECRET":         "session.jwt_secret",
	"SUPABASE_JWT_ISSUER":         "session.issuer",
	"DEVICE_PRIVATE_KEY_PATH":     "device.private_key_path",
	"DEVICE_TOKEN_TTL":            "device.token_ttl",
}

var listKeys = map[string]bool{
	"tiers.hd":             true,
	"tiers.4k":             true,
	"tiers.admin":          true,
	"cors.allowed_origins": true,
	"otel.always_sample":   true,
}

// envValue maps an environment variable onto its config key. List-valued
// keys accept either "1,3,4" or the JSON-ish "[1,3,4]" form.
func envValue(key, value string) (string, any) {
	mapped, ok := envKeyMap[key]
	if !ok {
		return "", nil
	}

	if listKeys[mapped] {
		return mapped, splitList(value)
	}

	return mapped, value
}

func splitList(value string) []string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Plex.Token == "" {
		return fmt.Errorf("PLEX_TOKEN is required")
	}

	if c.Plex.MachineID == "" {
		return fmt.Errorf("PLEX_MACHINE_ID is required")
	}

	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}

	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}

	if c.Stripe.PriceHD == "" || c.Stripe.Price4K == "" {
		return fmt.Errorf("STRIPE_PRICE_HD and STRIPE_PRICE_4K are required")
	}

	if c.Admin.APIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY is required")
	}

	if c.Device.PrivateKeyPath == "" {
		return fmt.Errorf("DEVICE_PRIVATE_KEY_PATH is required")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
		if c.Session.JWTSecret == "" {
			return fmt.Errorf("SUPABASE_JWT_SECRET is required in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if c.Plex.Timeout <= 0 {
		return fmt.Errorf("plex.timeout must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
