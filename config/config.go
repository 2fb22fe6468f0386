package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	DecisionLogNone   = "none"
	DecisionLogMemory = "memory"
	DecisionLogRedis  = "redis"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Headers          bool     `mapstructure:"headers"`
	SensitiveHeaders []string `mapstructure:"sensitive_headers"`
}

type RateLimitConfig struct {
	Capacity          int     `mapstructure:"capacity"`
	RefillPerSecond   float64 `mapstructure:"refill_per_second"`
	KeyHeader         string  `mapstructure:"key_header"`
	TrustForwardedFor bool    `mapstructure:"trust_forwarded_for"`
	IdleTTL           string  `mapstructure:"idle_ttl"`
}

type CircuitBreakerConfig struct {
	FailureThreshold   int    `mapstructure:"failure_threshold"`
	Window             string `mapstructure:"window"`
	Cooldown           string `mapstructure:"cooldown"`
	HalfOpenProbeCount int    `mapstructure:"half_open_probe_count"`
	SuccessThreshold   int    `mapstructure:"success_threshold"`
}

type CacheConfig struct {
	DefaultTTL  string   `mapstructure:"default_ttl"`
	MaxEntries  int      `mapstructure:"max_entries"`
	Shards      int      `mapstructure:"shards"`
	VaryHeaders []string `mapstructure:"vary_headers"`
	QueryKeys   []string `mapstructure:"query_keys"`
}

type TargetConfig struct {
	URL    string `mapstructure:"url"`
	Weight int    `mapstructure:"weight"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Path     string `mapstructure:"path"`
}

type LoadBalancerConfig struct {
	Strategy     string            `mapstructure:"strategy"`
	VirtualNodes int               `mapstructure:"virtual_nodes"`
	MaxFails     int               `mapstructure:"max_fails"`
	Targets      []TargetConfig    `mapstructure:"targets"`
	HealthCheck  HealthCheckConfig `mapstructure:"health_check"`
}

type ProxyConfig struct {
	Prefix     string   `mapstructure:"prefix"`
	Timeout    string   `mapstructure:"timeout"`
	Middleware []string `mapstructure:"middleware"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	TTL      string `mapstructure:"ttl"`
}

type DecisionLogConfig struct {
	Backend   string      `mapstructure:"backend"`
	TrackKeys bool        `mapstructure:"track_keys"`
	Buffer    int         `mapstructure:"buffer"`
	Redis     RedisConfig `mapstructure:"redis"`
}

type MaintenanceConfig struct {
	SweepCron string `mapstructure:"sweep_cron"`
}

type MetricsConfig struct {
	Path   string `mapstructure:"path"`
	Buffer int    `mapstructure:"buffer"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Cache          CacheConfig          `mapstructure:"cache"`
	LoadBalancer   LoadBalancerConfig   `mapstructure:"load_balancer"`
	Proxy          ProxyConfig          `mapstructure:"proxy"`
	DecisionLog    DecisionLogConfig    `mapstructure:"decision_log"`
	Maintenance    MaintenanceConfig    `mapstructure:"maintenance"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")

	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.headers", false)
	v.SetDefault("logging.sensitive_headers", []string{"authorization", "proxy-authorization", "cookie", "set-cookie", "x-api-key"})

	v.SetDefault("rate_limit.capacity", 5)
	v.SetDefault("rate_limit.refill_per_second", 1.0)
	v.SetDefault("rate_limit.idle_ttl", "15m")

	v.SetDefault("circuit_breaker.failure_threshold", 3)
	v.SetDefault("circuit_breaker.window", "30s")
	v.SetDefault("circuit_breaker.cooldown", "10s")
	v.SetDefault("circuit_breaker.half_open_probe_count", 1)
	v.SetDefault("circuit_breaker.success_threshold", 1)

	v.SetDefault("cache.default_ttl", "30s")
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.shards", 16)
	v.SetDefault("cache.vary_headers", []string{"accept"})

	v.SetDefault("load_balancer.strategy", "round-robin")
	v.SetDefault("load_balancer.virtual_nodes", 100)
	v.SetDefault("load_balancer.max_fails", 3)
	v.SetDefault("load_balancer.health_check.interval", "2s")
	v.SetDefault("load_balancer.health_check.path", "/health")

	v.SetDefault("proxy.prefix", "/")
	v.SetDefault("proxy.timeout", "10s")
	v.SetDefault("proxy.middleware", []string{"request_id", "logging", "metrics", "rate_limit", "cache", "circuit_breaker"})

	v.SetDefault("decision_log.backend", DecisionLogMemory)
	v.SetDefault("decision_log.buffer", 1024)
	v.SetDefault("decision_log.redis.addr", "localhost:6379")
	v.SetDefault("decision_log.redis.prefix", "routekit:decisions")
	v.SetDefault("decision_log.redis.ttl", "24h")

	v.SetDefault("maintenance.sweep_cron", "* * * * *")

	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.buffer", 1024)
}

// Load reads .env (when present), then config.yaml from ./config or the
// working directory, then the environment. A missing config file is not an
// error; defaults and environment variables are used instead.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err == nil {
		slog.Info("loaded .env file")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// duration parses a value that Validate has already accepted.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c RateLimitConfig) IdleTTLDuration() time.Duration { return duration(c.IdleTTL) }

func (c CircuitBreakerConfig) WindowDuration() time.Duration   { return duration(c.Window) }
func (c CircuitBreakerConfig) CooldownDuration() time.Duration { return duration(c.Cooldown) }

func (c CacheConfig) DefaultTTLDuration() time.Duration { return duration(c.DefaultTTL) }

func (c HealthCheckConfig) IntervalDuration() time.Duration { return duration(c.Interval) }

func (c ProxyConfig) TimeoutDuration() time.Duration { return duration(c.Timeout) }

func (c RedisConfig) TTLDuration() time.Duration { return duration(c.TTL) }
