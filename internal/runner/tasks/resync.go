package tasks

import (
	"context"
	"time"
)

// Resyncer reloads a collection from scratch. *subscription.Manager
// implements it.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// ResyncTask periodically discards a collection and reloads its first
// page. Channel events are never replayed, so this bounds how long a
// missed event can leave the collection stale.
type ResyncTask struct {
	target   Resyncer
	schedule string
	timeout  time.Duration
}

// NewResyncTask creates the task. A zero timeout defaults to one minute.
func NewResyncTask(target Resyncer, schedule string, timeout time.Duration) *ResyncTask {
	if timeout == 0 {
		timeout = time.Minute
	}
	return &ResyncTask{target: target, schedule: schedule, timeout: timeout}
}

func (t *ResyncTask) Name() string           { return "collection-resync" }
func (t *ResyncTask) Schedule() string       { return t.schedule }
func (t *ResyncTask) Timeout() time.Duration { return t.timeout }

func (t *ResyncTask) Run(ctx context.Context) error {
	return t.target.Resync(ctx)
}
