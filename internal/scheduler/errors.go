package scheduler

import "errors"

// ErrQueueFull is returned by Submit when the task queue is at capacity.
// The caller receives the rejection immediately; Submit never blocks.
var ErrQueueFull = errors.New("task queue is full")
