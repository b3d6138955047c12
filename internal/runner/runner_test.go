package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	name     string
	schedule string
	runs     atomic.Int32
	block    chan struct{}
	err      error
}

func (t *countingTask) Name() string           { return t.name }
func (t *countingTask) Schedule() string       { return t.schedule }
func (t *countingTask) Timeout() time.Duration { return time.Second }
func (t *countingTask) Run(ctx context.Context) error {
	t.runs.Add(1)
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
		}
	}
	return t.err
}

func TestRunnerExecutesOnSchedule(t *testing.T) {
	task := &countingTask{name: "tick", schedule: "@every 1s"}
	reg := NewTaskRegistry()
	reg.Register(task)

	r := NewRunner(reg, zerolog.Nop())
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool { return task.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestRunnerRejectsBadSchedule(t *testing.T) {
	reg := NewTaskRegistry()
	reg.Register(&countingTask{name: "bad", schedule: "not a schedule"})

	r := NewRunner(reg, zerolog.Nop())
	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestRunNow(t *testing.T) {
	boom := errors.New("boom")
	reg := NewTaskRegistry()
	reg.Register(&countingTask{name: "ok", schedule: "@daily"})
	reg.Register(&countingTask{name: "fails", schedule: "@daily", err: boom})
	r := NewRunner(reg, zerolog.Nop())

	assert.NoError(t, r.RunNow(context.Background(), "ok"))
	assert.ErrorIs(t, r.RunNow(context.Background(), "fails"), boom)
	assert.Error(t, r.RunNow(context.Background(), "missing"))
	assert.Equal(t, []string{"fails", "ok"}, reg.Names())
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	task := &countingTask{name: "slow", schedule: "@daily", block: make(chan struct{})}
	reg := NewTaskRegistry()
	reg.Register(task)
	r := NewRunner(reg, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- r.RunNow(context.Background(), "slow") }()
	require.Eventually(t, func() bool { return task.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.NoError(t, r.RunNow(context.Background(), "slow"))
	assert.Equal(t, int32(1), task.runs.Load())

	close(task.block)
	require.NoError(t, <-done)
}

func TestStopWaitsForRunningTaskAndRejectsNewRuns(t *testing.T) {
	task := &countingTask{name: "slow", schedule: "@daily", block: make(chan struct{})}
	reg := NewTaskRegistry()
	reg.Register(task)
	r := NewRunner(reg, zerolog.Nop())
	require.NoError(t, r.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- r.RunNow(context.Background(), "slow") }()
	require.Eventually(t, func() bool { return task.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		return errors.Is(r.RunNow(context.Background(), "slow"), ErrStopped)
	}, time.Second, 5*time.Millisecond)
	select {
	case <-stopped:
		t.Fatal("Stop returned while a task was still running")
	default:
	}

	close(task.block)
	require.NoError(t, <-done)
	<-stopped
	assert.Equal(t, int32(1), task.runs.Load())
}
