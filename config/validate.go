package config

import (
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Strategies accepted by load_balancer.strategy.
var Strategies = []interface{}{
	"round-robin", "weighted", "random", "weighted-round-robin",
	"least-conn", "least-response", "consistent-hash", "consistent_hash",
}

// Middleware names usable in proxy.middleware.
var Middleware = []interface{}{
	"request_id", "recover", "logging", "metrics", "timeout",
	"rate_limit", "cache", "circuit_breaker",
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.RateLimit,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RateLimitConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RateLimitConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.Capacity, validation.Required, validation.Min(1)),
					validation.Field(&rc.RefillPerSecond, validation.Required, validation.Min(0.001)),
					validation.Field(&rc.IdleTTL, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.By(func(value interface{}) error {
				bc, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&bc.Window, validation.Required, validation.By(validateDuration)),
					validation.Field(&bc.Cooldown, validation.Required, validation.By(validateDuration)),
					validation.Field(&bc.HalfOpenProbeCount, validation.Required, validation.Min(1)),
					validation.Field(&bc.SuccessThreshold, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Cache,
			validation.By(func(value interface{}) error {
				cc, ok := value.(CacheConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CacheConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.DefaultTTL, validation.Required, validation.By(validateDuration)),
					validation.Field(&cc.MaxEntries, validation.Required, validation.Min(1)),
					validation.Field(&cc.Shards, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.LoadBalancer,
			validation.By(func(value interface{}) error {
				lb, ok := value.(LoadBalancerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoadBalancerConfig")
				}
				return validation.ValidateStruct(&lb,
					validation.Field(&lb.Strategy,
						validation.Required,
						validation.In(Strategies...),
					),
					validation.Field(&lb.VirtualNodes, validation.Required, validation.Min(1)),
					validation.Field(&lb.MaxFails, validation.Required, validation.Min(1)),
					validation.Field(&lb.Targets, validation.Each(validation.By(validateTargetConfig))),
					validation.Field(&lb.HealthCheck, validation.By(func(value interface{}) error {
						hc, ok := value.(HealthCheckConfig)
						if !ok {
							return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
						}
						return validation.ValidateStruct(&hc,
							validation.Field(&hc.Interval, validation.Required, validation.By(validateDuration)),
							validation.Field(&hc.Path, validation.Required, validation.By(validatePath)),
						)
					})),
				)
			}),
		),
		validation.Field(&c.Proxy,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProxyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProxyConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.Prefix, validation.Required, validation.By(validatePath)),
					validation.Field(&pc.Timeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&pc.Middleware, validation.Each(validation.In(Middleware...))),
				)
			}),
		),
		validation.Field(&c.DecisionLog,
			validation.By(func(value interface{}) error {
				dc, ok := value.(DecisionLogConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a DecisionLogConfig")
				}
				return validation.ValidateStruct(&dc,
					validation.Field(&dc.Backend,
						validation.Required,
						validation.In(DecisionLogNone, DecisionLogMemory, DecisionLogRedis),
					),
					validation.Field(&dc.Redis, validation.When(dc.Backend == DecisionLogRedis,
						validation.By(func(value interface{}) error {
							rc, ok := value.(RedisConfig)
							if !ok {
								return validation.NewError("validation_invalid_type", "must be a RedisConfig")
							}
							return validation.ValidateStruct(&rc,
								validation.Field(&rc.Addr, validation.Required, validation.By(validateHostPort)),
								validation.Field(&rc.DB, validation.Min(0)),
								validation.Field(&rc.TTL, validation.Required, validation.By(validateDuration)),
							)
						}),
					)),
				)
			}),
		),
		validation.Field(&c.Maintenance,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MaintenanceConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MaintenanceConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.SweepCron, validation.Required, validation.By(validateCron)),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Path, validation.Required, validation.By(validatePath)),
					validation.Field(&mc.Buffer, validation.Required, validation.Min(1)),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validatePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}
	return nil
}

func validateCron(value interface{}) error {
	expr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if !gronx.New().IsValid(expr) {
		return validation.NewError("validation_invalid_cron", "must be a valid cron expression")
	}
	return nil
}

func validateTargetConfig(value interface{}) error {
	target, ok := value.(TargetConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a TargetConfig")
	}

	if target.URL == "" {
		return validation.NewError("validation_empty_url", "target URL cannot be empty")
	}

	parsedURL, err := url.Parse(target.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	if target.Weight < 1 {
		return validation.NewError("validation_invalid_weight", "weight must be at least 1")
	}

	return nil
}
