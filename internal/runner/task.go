package runner

import (
	"context"
	"sort"
	"time"
)

// Task represents a background task that can be scheduled
type Task interface {
	// Name returns the unique name of the task
	Name() string

	// Schedule returns the cron schedule expression for this task
	Schedule() string

	// Run executes the task
	Run(ctx context.Context) error

	// Timeout returns the maximum time this task should run
	Timeout() time.Duration
}

// TaskRegistry holds all registered tasks
type TaskRegistry struct {
	tasks map[string]Task
}

// NewTaskRegistry creates a new task registry
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]Task),
	}
}

// Register adds a task to the registry. A task with the same name replaces
// the earlier one.
func (r *TaskRegistry) Register(task Task) {
	r.tasks[task.Name()] = task
}

// Get returns a task by name
func (r *TaskRegistry) Get(name string) (Task, bool) {
	task, exists := r.tasks[name]
	return task, exists
}

// Names returns the registered task names in sorted order.
func (r *TaskRegistry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
