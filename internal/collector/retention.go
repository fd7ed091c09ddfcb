package collector

import (
	"context"
	"time"
)

// pruneTimeout bounds one retention sweep.
const pruneTimeout = 30 * time.Second

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RunRetention deletes samples older than keep, once immediately and then
// every interval, until ctx is done. A failed sweep is logged and retried on
// the next tick.
func (c *Collector) RunRetention(ctx context.Context, p Pruner, keep, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.prune(ctx, p, keep)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Collector) prune(ctx context.Context, p Pruner, keep time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	n, err := p.Prune(ctx, keep)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error("history retention sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		c.pruned.Add(uint64(n)) //nolint:gosec // row counts are non-negative
		c.logger.Info("pruned telemetry history", "deleted", n, "retention", keep.String())
	}
}
