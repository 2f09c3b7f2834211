package review

import "errors"

// ErrQueueFull is returned by Enqueue when the review queue is at capacity.
var ErrQueueFull = errors.New("review queue is full")

// errNoNewCommit indicates the agent finished an edit run without committing
// anything. The commenter gets told instead of receiving a silent no-op push.
var errNoNewCommit = errors.New("agent made no new commit")
