package tasks

import (
	"context"

	"github.com/lysyi3m/boxd-relay/app/feed"
	"github.com/lysyi3m/boxd-relay/app/publish"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by serve mode to run the publish task periodically and on demand.
// Example usage:
//
//	scheduler := NewScheduler(publishTask, time.Hour, 10*time.Minute)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(publishTask)
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Source yields the current window of the origin feed.
type Source interface {
	Fetch(ctx context.Context) ([]feed.SourceItem, error)
}

// ArtifactWriter replaces every artifact of a run or none of them.
type ArtifactWriter interface {
	WriteAll(artifacts []publish.Artifact) error
}
