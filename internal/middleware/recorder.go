package middleware

import (
	"log/slog"
	"time"

	"github.com/angeloszaimis/routekit/internal/decisionlog"
	"github.com/angeloszaimis/routekit/internal/metrics"
	"github.com/angeloszaimis/routekit/internal/web"
)

// recorder reports a guard's decisions to the decision log and metrics.
type recorder struct {
	policy    string
	decisions decisionlog.Store
	metrics   metrics.Emitter
	logger    *slog.Logger
}

func newRecorder(policy string, decisions decisionlog.Store, emitter metrics.Emitter, logger *slog.Logger) *recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &recorder{policy: policy, decisions: decisions, metrics: emitter, logger: logger}
}

func (r *recorder) record(req *web.Request, key string, allowed bool) {
	now := time.Now()

	if r.metrics != nil {
		r.metrics.Emit(metrics.MetricEvent{
			Type:      metrics.EventPolicyDecision,
			Timestamp: now,
			Route:     routeLabel(req),
			Method:    req.Method,
			Policy:    r.policy,
			Allowed:   allowed,
		})
	}

	if r.decisions == nil {
		return
	}
	err := r.decisions.Record(req.Context(), decisionlog.Event{
		Policy:  r.policy,
		Key:     key,
		Allowed: allowed,
		Method:  req.Method,
		Route:   routeOnly(req),
		At:      now,
	})
	if err != nil {
		r.logger.Warn("Failed to record policy decision",
			slog.String("policy", r.policy),
			slog.Any("err", err))
	}
}

func routeOnly(req *web.Request) string {
	if id := req.GetString(web.ExtRouteID); id != "" {
		return id
	}
	return req.Path
}
