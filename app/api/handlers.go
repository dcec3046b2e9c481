package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/boxd-relay/app/feed"
	"github.com/lysyi3m/boxd-relay/app/tasks"
)

func NewHandler(task PublishTaskInterface, scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		task:      task,
		scheduler: scheduler,
		version:   version,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	target, ok := h.findTarget(name)
	if !ok {
		slog.Debug("Unknown feed requested", "feed", name)
		c.Status(http.StatusNotFound)
		return
	}

	path := h.task.ArtifactPath(target)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Feed not generated yet", "feed", name, "path", path)
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to read feed", "feed", name, "path", path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("X-Feed-Name", target.Name)
	c.Header("X-Feed-Max-Chars", strconv.Itoa(target.MaxChars))
	if report := h.task.LastReport(); report != nil {
		c.Header("X-Last-Run", report.FinishedAt.Format(time.RFC3339))
	}

	c.Data(http.StatusOK, "application/atom+xml; charset=utf-8", data)
}

func (h *Handler) findTarget(name string) (feed.Target, bool) {
	for _, target := range h.task.Targets() {
		if strings.EqualFold(target.Name, name) || target.Output == name {
			return target, true
		}
	}
	return feed.Target{}, false
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if report := h.task.LastReport(); report != nil {
		if report.Failed {
			health["status"] = "degraded"
		}
		health["last_run"] = report
	}

	targets := make([]string, 0, len(h.task.Targets()))
	for _, target := range h.task.Targets() {
		targets = append(targets, target.Name)
	}
	health["targets"] = targets

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APITriggerRun(c *gin.Context) {
	err := h.scheduler.EnqueueTask(h.task)
	if errors.Is(err, tasks.ErrRunQueued) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Run already queued",
			"details": err.Error(),
		})
		return
	}
	if err != nil {
		slog.Error("Error enqueueing publish task", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue publish task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Publish run enqueued",
		"task": gin.H{
			"id":   h.task.GetID(),
			"type": h.task.GetType(),
		},
	})
}
