package review

import "github.com/ajibigad/codebot/internal/models"

// Queue is the bounded buffer between the webhook ingress and the processor.
// Enqueue never blocks; a full queue is the caller's signal to shed load.
type Queue struct {
	ch chan models.ReviewComment
}

// NewQueue creates a queue holding up to size pending comments.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{ch: make(chan models.ReviewComment, size)}
}

// Enqueue adds a comment or returns ErrQueueFull.
func (q *Queue) Enqueue(c models.ReviewComment) error {
	select {
	case q.ch <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of comments waiting.
func (q *Queue) Depth() int {
	return len(q.ch)
}
