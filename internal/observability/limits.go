package observability

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LimitObserver logs and counts rate-limit denials per client.
type LimitObserver struct {
	logger  *zap.Logger
	metrics *Metrics

	mu         sync.Mutex
	denyCounts map[string]int64
}

func NewLimitObserver(logger *zap.Logger, metrics *Metrics) *LimitObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LimitObserver{
		logger:     logger,
		metrics:    metrics,
		denyCounts: make(map[string]int64),
	}
}

func (o *LimitObserver) RecordDeny(ctx context.Context, client, route string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.denyCounts[client]++
	count := o.denyCounts[client]
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RateLimited.Add(ctx, 1, Transport(route))
	}
	o.logger.Debug("rate limited", zap.String("client", client), zap.String("route", route), zap.Int64("count", count))
	if count%10 == 0 {
		o.logger.Warn("repeated rate limiting", zap.String("client", client), zap.Int64("count", count))
	}
}

// Denials returns how often client has been rejected.
func (o *LimitObserver) Denials(client string) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.denyCounts[client]
}
