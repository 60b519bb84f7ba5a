package channels

import (
	"context"
	"time"

	"castgate/internal/domain"
	"castgate/internal/infra/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Directory interface {
	LookupParentURL(ctx context.Context, channelID string) (string, error)
}

// Resolver maps channel ids to parent URLs: cache first, then the
// directory. Concurrent lookups of one id share a single directory call.
type Resolver struct {
	directory Directory
	cache     Cache
	logger    *zap.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration
	group     singleflight.Group
}

func NewResolver(directory Directory, cache Cache, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		directory: directory,
		cache:     cache,
		logger:    logger,
		metrics:   m,
		timeout:   5 * time.Second,
	}
}

func (r *Resolver) ResolveParentURL(ctx context.Context, channelID string) (string, error) {
	if r.cache != nil {
		parentURL, ok, err := r.cache.Get(ctx, channelID)
		if err != nil {
			r.logger.Warn("channel cache read failed", zap.String("channel_id", channelID), zap.Error(err))
		}
		if ok && parentURL != "" {
			r.count("hit")
			return parentURL, nil
		}
	}
	r.count("miss")

	v, err, _ := r.group.Do(channelID, func() (any, error) {
		// Shared by every waiter on channelID, so not tied to one caller.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.directory.LookupParentURL(lookupCtx, channelID)
	})
	if err != nil {
		r.logger.Info("channel lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		return "", domain.WrapError(domain.CodeChannelNotFound, "Channel not found: "+channelID, err).
			WithDetail("channel_id", channelID)
	}
	parentURL := v.(string)
	if r.cache != nil {
		if err := r.cache.Put(ctx, channelID, parentURL); err != nil {
			r.logger.Warn("channel cache write failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}
	return parentURL, nil
}

func (r *Resolver) count(result string) {
	if r.metrics != nil {
		r.metrics.ChannelCache.WithLabelValues(result).Inc()
	}
}
