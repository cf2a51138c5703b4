package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrNoDispatcher is returned when the trigger has nothing to call
	ErrNoDispatcher = errors.New("scheduler has no dispatcher")
)
