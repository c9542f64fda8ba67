// AngelaMos | 2026
// janitor.go

package auth

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically deletes expired token records.
type Janitor struct {
	interval time.Duration
	logger   *slog.Logger
	purgers  map[string]Purger
}

func NewJanitor(
	interval time.Duration,
	logger *slog.Logger,
	purgers map[string]Purger,
) *Janitor {
	return &Janitor{
		interval: interval,
		logger:   logger,
		purgers:  purgers,
	}
}

// Run purges once immediately and then on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce returns the number of rows deleted per purger. A failing purger
// does not stop the others.
func (j *Janitor) RunOnce(ctx context.Context) map[string]int64 {
	names := make([]string, 0, len(j.purgers))
	for name := range j.purgers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]int64, len(names))
	for _, name := range names {
		deleted, err := j.purgers[name].PurgeExpired(ctx)
		if err != nil {
			j.logger.Error("token purge failed",
				"kind", name,
				"error", err,
			)
			continue
		}

		results[name] = deleted
		if deleted > 0 {
			j.logger.Info("expired tokens purged",
				"kind", name,
				"count", deleted,
			)
		}
	}

	return results
}
