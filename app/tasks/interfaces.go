package tasks

import (
	"context"

	"github.com/lysyi3m/claude-rss-reader/app/aggregator"
)

// TaskSchedulerInterface is what the server needs to run background cache
// warming.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Warmer loads a cache scope ahead of client requests.
type Warmer interface {
	Prefetch(ctx context.Context, provider string) error
	Providers() []string
}

var _ Warmer = (*aggregator.Service)(nil)
