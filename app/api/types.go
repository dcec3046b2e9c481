package api

import (
	"github.com/lysyi3m/boxd-relay/app/feed"
	"github.com/lysyi3m/boxd-relay/app/tasks"
)

// PublishTaskInterface is what the handlers need from the publish task.
type PublishTaskInterface interface {
	tasks.TaskInterface
	LastReport() *tasks.Report
	Targets() []feed.Target
	ArtifactPath(target feed.Target) string
}

var _ PublishTaskInterface = (*tasks.PublishTask)(nil)

type Handler struct {
	task      PublishTaskInterface
	scheduler tasks.TaskSchedulerInterface
	version   string
}
