package routekit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/routekit/config"
	"github.com/angeloszaimis/routekit/internal/decisionlog"
	"github.com/angeloszaimis/routekit/internal/strategy"
	"github.com/angeloszaimis/routekit/internal/upstream"
)

const redisPingTimeout = 3 * time.Second

var ErrNoTargets = errors.New("no valid targets configured")

// initializeTargets parses the configured targets, skipping the ones whose
// URL is invalid. An empty list is fine; a list where every entry is
// invalid is not.
func initializeTargets(cfg *config.Config, log *slog.Logger) ([]*upstream.Target, error) {
	var targets []*upstream.Target

	for _, tc := range cfg.LoadBalancer.Targets {
		t, err := upstream.Parse(tc.URL, tc.Weight)
		if err != nil {
			log.Error("Failed to parse URL",
				slog.String("url", tc.URL),
				slog.String("error", err.Error()))
			continue
		}
		t.SetMaxFails(cfg.LoadBalancer.MaxFails)
		targets = append(targets, t)
	}

	if len(cfg.LoadBalancer.Targets) > 0 && len(targets) == 0 {
		return nil, ErrNoTargets
	}

	return targets, nil
}

func createStrategy(log *slog.Logger, name string, virtualNodes int) strategy.Strategy {
	strat, err := strategy.New(name, virtualNodes)
	if err != nil {
		log.Warn("Unknown strategy, defaulting to round-robin", slog.String("requested", name))
		return strategy.NewRoundRobinStrategy()
	}
	return strat
}

// newDecisionLog returns the configured store plus the redis client backing
// it, if any, so the caller can close it. The redis store sits behind an
// Async writer that App.Start runs.
func newDecisionLog(ctx context.Context, cfg config.DecisionLogConfig, log *slog.Logger) (decisionlog.Store, *redis.Client, error) {
	switch cfg.Backend {
	case config.DecisionLogNone:
		return decisionlog.Discard{}, nil, nil

	case config.DecisionLogRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect decision log redis %s: %w", cfg.Redis.Addr, err)
		}

		store := decisionlog.NewRedisStore(rdb,
			decisionlog.WithPrefix(cfg.Redis.Prefix),
			decisionlog.WithTTL(cfg.Redis.TTLDuration()),
			decisionlog.WithRedisTrackKeys(cfg.TrackKeys),
		)
		return decisionlog.NewAsync(store, decisionlog.AsyncOptions{
			Buffer: cfg.Buffer,
			Logger: log,
		}), rdb, nil

	default:
		return decisionlog.NewMemoryStore(decisionlog.WithTrackKeys(cfg.TrackKeys)), nil, nil
	}
}
