package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/claude-rss-reader/app/aggregator"
)

type WarmCacheTask struct {
	Task
	warmer Warmer
}

// NewWarmCacheTask refreshes one stale cache scope. An empty provider name
// means the merged feed.
func NewWarmCacheTask(provider string, warmer Warmer) *WarmCacheTask {
	scope := provider
	if scope == "" {
		scope = aggregator.AllKey
	}

	return &WarmCacheTask{
		Task:   NewTask(TaskTypeWarmCache, scope),
		warmer: warmer,
	}
}

func (t *WarmCacheTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	provider := t.Scope
	if provider == aggregator.AllKey {
		provider = ""
	}

	if err := t.warmer.Prefetch(ctx, provider); err != nil {
		return fmt.Errorf("failed to warm %s: %w", t.Scope, err)
	}

	slog.Debug("Cache warmed", "scope", t.Scope, "duration", t.GetDuration())
	return nil
}
