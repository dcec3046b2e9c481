package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/lysyi3m/boxd-relay/app/database"
	"github.com/lysyi3m/boxd-relay/app/feed"
	"github.com/lysyi3m/boxd-relay/app/publish"
	"github.com/lysyi3m/boxd-relay/app/summary"
)

// MinReviewChars is the shortest cleaned review body worth publishing.
const MinReviewChars = 20

// Pipeline holds the collaborators of a publish run.
type Pipeline struct {
	Source    Source
	Filterer  *feed.Filterer
	Cleaner   *feed.Cleaner
	Renderer  *feed.Renderer
	Generator *feed.Generator
	History   *feed.HistoryReader
	Writer    ArtifactWriter
	Publisher publish.Publisher
	Processed *database.ProcessedSet
	Targets   []feed.Target
	Meta      feed.FeedMeta
	// Summarizer is only reported, fitting goes through Renderer.
	Summarizer string
}

type PublishOptions struct {
	OutputDir string
	// Limit > 0 selects the newest Limit reviews ignoring the processed set.
	Limit           int
	LimitSkipCommit bool
	ClearCache      bool
}

// PublishTask runs fetch, filter, render, write, commit and push once per
// Execute. The processed set is only replaced after a successful commit, so a
// failed run leaves it exactly as it was.
type PublishTask struct {
	Task
	pipeline Pipeline
	opts     PublishOptions

	mu         sync.Mutex
	processed  *database.ProcessedSet
	clearCache bool
	last       *Report
}

func NewPublishTask(pipeline Pipeline, opts PublishOptions) *PublishTask {
	return &PublishTask{
		Task:       NewTask(TaskTypePublish),
		pipeline:   pipeline,
		opts:       opts,
		processed:  pipeline.Processed,
		clearCache: opts.ClearCache,
	}
}

// LastReport returns a copy of the most recent run report, or nil before the first run.
func (t *PublishTask) LastReport() *Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil {
		return nil
	}
	report := *t.last
	return &report
}

// Processed returns the committed processed set.
func (t *PublishTask) Processed() *database.ProcessedSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed
}

// Targets returns the configured targets.
func (t *PublishTask) Targets() []feed.Target {
	return t.pipeline.Targets
}

// ArtifactPath returns where target's feed is written.
func (t *PublishTask) ArtifactPath(target feed.Target) string {
	return filepath.Join(t.opts.OutputDir, target.Output)
}

func (t *PublishTask) Execute(ctx context.Context) error {
	report := &Report{
		TaskID:     t.GetID(),
		RunID:      NewID(),
		Stage:      StageIdle,
		Summarizer: t.pipeline.Summarizer,
		StartedAt:  time.Now().UTC(),
	}

	err := t.run(ctx, report)

	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Failed = true
		report.Error = err.Error()
	} else {
		report.Stage = StageDone
	}

	t.mu.Lock()
	t.last = report
	t.mu.Unlock()

	if err != nil {
		slog.Error("Publish run failed", "run_id", report.RunID, "stage", report.Stage, "duration", t.GetDuration(), "error", err)
		return err
	}

	slog.Info("Task completed",
		"type", "Publish",
		"run_id", report.RunID,
		"duration", t.GetDuration(),
		"fetched", report.Fetched,
		"reviews", report.Reviews,
		"rendered", report.Rendered,
		"carried", report.Carried,
		"skipped_short", report.SkippedShort,
		"render_errors", report.RenderErrors,
		"committed", report.Committed)

	return nil
}

type renderResult struct {
	entries      map[string][]feed.RenderedEntry
	renderedIDs  []string
	skippedShort []string
}

func (t *PublishTask) run(ctx context.Context, report *Report) error {
	fail := func(err error) error {
		return &StageError{Stage: report.Stage, Err: err}
	}

	report.Stage = StageFetching
	items, err := t.pipeline.Source.Fetch(ctx)
	if err != nil {
		return fail(err)
	}
	report.Fetched = len(items)

	report.Stage = StageFiltering
	working := t.Processed().Clone()
	if t.clearCache {
		slog.Info("Clearing processed set", "ids", working.Len())
		working.Clear()
	}

	reviews := t.pipeline.Filterer.Reviews(items)
	report.Reviews = len(reviews)

	var selected []feed.SourceItem
	if t.opts.Limit > 0 {
		selected = t.pipeline.Filterer.Newest(items, t.opts.Limit)
		slog.Info("Limit mode, processed set bypassed for selection", "limit", t.opts.Limit, "selected", len(selected))
	} else {
		selected = t.pipeline.Filterer.Unseen(items, working)
	}
	report.Selected = len(selected)

	report.Stage = StageRendering
	result, err := t.render(ctx, selected, report)
	if err != nil {
		return fail(err)
	}

	report.Stage = StageWriting
	artifacts, err := t.buildArtifacts(reviews, result.entries, report)
	if err != nil {
		return fail(err)
	}
	if err := t.pipeline.Writer.WriteAll(artifacts); err != nil {
		return fail(fmt.Errorf("failed to write artifacts: %w", err))
	}

	report.Stage = StageCommitting
	if t.opts.Limit > 0 && t.opts.LimitSkipCommit {
		slog.Info("Limit mode, processed set left untouched", "rendered", len(result.renderedIDs))
	} else {
		for _, id := range result.renderedIDs {
			working.MarkProcessed(id)
		}
		for _, id := range result.skippedShort {
			working.MarkProcessed(id)
		}
		if err := working.Persist(ctx); err != nil {
			return fail(err)
		}

		t.mu.Lock()
		t.processed = working
		t.clearCache = false
		t.mu.Unlock()
		report.Committed = true
	}

	report.Stage = StagePushing
	if err := t.pipeline.Publisher.Push(ctx, artifacts); err != nil {
		return fail(fmt.Errorf("failed to push artifacts: %w", err))
	}

	return nil
}

// render produces one entry per target for every selected item. An item that
// fails for any target is dropped for all of them.
func (t *PublishTask) render(ctx context.Context, selected []feed.SourceItem, report *Report) (renderResult, error) {
	result := renderResult{entries: make(map[string][]feed.RenderedEntry)}

	for _, item := range selected {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		body, err := t.pipeline.Cleaner.Run(item.RawBody)
		if err != nil {
			slog.Warn("Failed to clean review, skipping", "id", item.GUID, "error", err)
			report.RenderErrors++
			continue
		}
		if summary.Len(body) < MinReviewChars {
			slog.Debug("Review too short, skipping", "id", item.GUID, "chars", summary.Len(body))
			result.skippedShort = append(result.skippedShort, item.GUID)
			report.SkippedShort++
			continue
		}

		rendered := make([]feed.RenderedEntry, 0, len(t.pipeline.Targets))
		var renderErr error
		for _, target := range t.pipeline.Targets {
			entry, err := t.pipeline.Renderer.Run(ctx, item, body, target)
			if err != nil {
				renderErr = fmt.Errorf("target %s: %w", target.Name, err)
				break
			}
			rendered = append(rendered, entry)
		}
		if renderErr != nil {
			if errors.Is(renderErr, context.Canceled) || errors.Is(renderErr, context.DeadlineExceeded) {
				return result, renderErr
			}
			slog.Warn("Failed to render review, skipping for all targets", "id", item.GUID, "error", renderErr)
			report.RenderErrors++
			continue
		}

		for _, entry := range rendered {
			result.entries[entry.TargetName] = append(result.entries[entry.TargetName], entry)
		}
		result.renderedIDs = append(result.renderedIDs, item.GUID)
		report.Rendered++
	}

	return result, nil
}

// buildArtifacts serializes every target's feed in memory. Each feed holds the
// reviews of the current source window: fresh renders, plus entries carried
// over from the previous artifact for reviews published by earlier runs.
func (t *PublishTask) buildArtifacts(window []feed.SourceItem, fresh map[string][]feed.RenderedEntry, report *Report) ([]publish.Artifact, error) {
	artifacts := make([]publish.Artifact, 0, len(t.pipeline.Targets))

	for _, target := range t.pipeline.Targets {
		path := t.ArtifactPath(target)

		history, err := t.pipeline.History.Run(path, target)
		if err != nil {
			slog.Warn("Failed to read previous feed, historical entries dropped", "target", target.Name, "path", path, "error", err)
			history = nil
		}

		current := make(map[string]feed.RenderedEntry, len(fresh[target.Name]))
		for _, entry := range fresh[target.Name] {
			current[entry.SourceID] = entry
		}

		entries := make([]feed.RenderedEntry, 0, len(window))
		for _, item := range window {
			if entry, ok := current[item.GUID]; ok {
				entries = append(entries, entry)
				continue
			}
			if entry, ok := history[item.GUID]; ok {
				entries = append(entries, entry)
				report.Carried++
			}
		}

		data, err := t.pipeline.Generator.Run(t.pipeline.Meta, target, entries)
		if err != nil {
			return nil, fmt.Errorf("failed to build feed for %s: %w", target.Name, err)
		}

		slog.Debug("Feed built", "target", target.Name, "entries", len(entries), "bytes", len(data))
		artifacts = append(artifacts, publish.Artifact{Path: path, Data: data})
	}

	return artifacts, nil
}
