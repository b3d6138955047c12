// Package runner executes scheduled maintenance tasks such as periodic
// collection resyncs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by RunNow once Stop has been called.
var ErrStopped = errors.New("task runner stopped")

// Runner manages and executes scheduled background tasks
type Runner struct {
	cron     *cron.Cron
	registry *TaskRegistry
	logger   zerolog.Logger
	wg       sync.WaitGroup

	mu       sync.Mutex
	running  map[string]bool
	stopping bool
}

// NewRunner creates a task runner using standard five-field cron specs and
// descriptors such as "@every 15m".
func NewRunner(registry *TaskRegistry, logger zerolog.Logger) *Runner {
	return &Runner{
		cron:     cron.New(),
		registry: registry,
		logger:   logger.With().Str("component", "runner").Logger(),
		running:  make(map[string]bool),
	}
}

// Start schedules every registered task and starts the scheduler. Tasks run
// with ctx as their parent context.
func (r *Runner) Start(ctx context.Context) error {
	for _, name := range r.registry.Names() {
		task, _ := r.registry.Get(name)
		r.logger.Info().Str("task", name).Str("schedule", task.Schedule()).Msg("registering task")

		if _, err := r.cron.AddFunc(task.Schedule(), func() {
			r.executeTask(ctx, task)
		}); err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", name, err)
		}
	}

	r.cron.Start()
	r.logger.Info().Int("tasks", len(r.registry.Names())).Msg("task runner started")
	return nil
}

// RunNow executes a registered task immediately, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	task, ok := r.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown task %s", name)
	}
	return r.executeTask(ctx, task)
}

// executeTask runs a single task with timeout and error handling. A task
// still running from its previous tick is skipped.
func (r *Runner) executeTask(ctx context.Context, task Task) error {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return ErrStopped
	}
	if r.running[task.Name()] {
		r.mu.Unlock()
		r.logger.Warn().Str("task", task.Name()).Msg("previous run still in progress, skipping")
		return nil
	}
	r.running[task.Name()] = true
	r.wg.Add(1)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, task.Name())
		r.mu.Unlock()
		r.wg.Done()
	}()

	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		r.logger.Error().Err(err).Str("task", task.Name()).Dur("duration", duration).Msg("task failed")
		return err
	}
	r.logger.Debug().Str("task", task.Name()).Dur("duration", duration).Msg("task completed")
	return nil
}

// Stop gracefully shuts down the runner
func (r *Runner) Stop() {
	// No task may join the wait group once Wait can be running.
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()

	// Stop accepting new tasks
	ctx := r.cron.Stop()
	<-ctx.Done()

	// Wait for running tasks to complete
	r.wg.Wait()

	r.logger.Info().Msg("task runner stopped")
}
