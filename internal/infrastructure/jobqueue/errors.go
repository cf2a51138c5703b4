package jobqueue

import "errors"

var (
	// ErrQueueStopped is returned when enqueuing onto a stopped queue
	ErrQueueStopped = errors.New("job queue is stopped")

	// ErrJobPanicked wraps a recovered panic from a job body
	ErrJobPanicked = errors.New("job panicked")
)
