package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingTask struct {
	Task
	runs    atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
}

func newCountingTask(delay time.Duration) *countingTask {
	return &countingTask{Task: NewTask(TaskTypePublish), delay: delay}
}

func (c *countingTask) Execute(ctx context.Context) error {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.active.Add(-1)

	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
	}
	c.runs.Add(1)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestScheduler_RunsAtStartAndOnTick(t *testing.T) {
	task := newCountingTask(0)
	s := NewScheduler(task, 20*time.Millisecond, time.Second)
	s.Start()
	defer s.Stop()

	waitFor(t, func() bool { return task.runs.Load() >= 2 })
}

func TestScheduler_NoIntervalRunsOnce(t *testing.T) {
	task := newCountingTask(0)
	s := NewScheduler(task, 0, time.Second)
	s.Start()

	waitFor(t, func() bool { return task.runs.Load() == 1 })
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if task.runs.Load() != 1 {
		t.Errorf("Expected 1 run, got %d", task.runs.Load())
	}
}

func TestScheduler_RunsNeverOverlap(t *testing.T) {
	task := newCountingTask(30 * time.Millisecond)
	s := NewScheduler(task, 5*time.Millisecond, time.Second)
	s.Start()

	waitFor(t, func() bool { return task.runs.Load() >= 3 })
	s.Stop()

	if task.overlap.Load() {
		t.Error("Expected runs not to overlap")
	}
}

func TestScheduler_EnqueueWhileQueued(t *testing.T) {
	s := NewScheduler(nil, 0, time.Second)

	task := newCountingTask(0)
	if err := s.EnqueueTask(task); err != nil {
		t.Fatalf("Expected first enqueue to succeed, got %v", err)
	}
	if err := s.EnqueueTask(task); !errors.Is(err, ErrRunQueued) {
		t.Errorf("Expected ErrRunQueued, got %v", err)
	}

	s.Start()
	waitFor(t, func() bool { return task.runs.Load() == 1 })
	s.Stop()

	if err := s.EnqueueTask(task); err == nil {
		t.Error("Expected enqueue after stop to fail")
	}
}
