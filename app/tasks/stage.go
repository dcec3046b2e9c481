package tasks

import (
	"fmt"
	"time"
)

// Stage is a step of a publish run.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageFiltering  Stage = "filtering"
	StageRendering  Stage = "rendering"
	StageWriting    Stage = "writing"
	StageCommitting Stage = "committing"
	StagePushing    Stage = "pushing"
	StageDone       Stage = "done"
)

// StageError is the terminal failure of a run in Stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Report summarises one publish run.
type Report struct {
	TaskID       string    `json:"task_id"`
	RunID        string    `json:"run_id"`
	Stage        Stage     `json:"stage"`
	Failed       bool      `json:"failed"`
	Error        string    `json:"error,omitempty"`
	Fetched      int       `json:"fetched"`
	Reviews      int       `json:"reviews"`
	Selected     int       `json:"selected"`
	Rendered     int       `json:"rendered"`
	RenderErrors int       `json:"render_errors"`
	SkippedShort int       `json:"skipped_short"`
	Carried      int       `json:"carried"`
	Committed    bool      `json:"committed"`
	Summarizer   string    `json:"summarizer,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
