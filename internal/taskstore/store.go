// Package taskstore provides in-memory task records with status tracking.
//
// The store is the only object mutated by multiple task workers concurrently;
// every mutation is atomic with respect to reads from the status and list
// APIs. Records do not survive a process restart; finished tasks are archived
// to the ledger by the caller.
package taskstore

import (
	"sort"
	"sync"
	"time"

	"github.com/ajibigad/codebot/internal/models"
)

// List limits, enforced on every call.
const (
	MinListLimit = 1
	MaxListLimit = 1000
)

// Store is a thread-safe map of task ID to task record.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

// New creates an empty Store.
func New() *Store {
	return &Store{tasks: make(map[string]*models.Task)}
}

// Add inserts a new pending task record.
func (s *Store) Add(task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return ErrDuplicateID
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now().UTC()
	}
	s.tasks[task.ID] = &task
	return nil
}

// Get returns a copy of the task record.
func (s *Store) Get(id string) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return *task, nil
}

// Remove deletes a task record regardless of status. It is used to roll back
// a submission that could not be enqueued.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// MarkRunning transitions a pending task to running and stamps started_at.
func (s *Store) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if task.Status != models.TaskStatusPending {
		return ErrBadTransition
	}
	now := time.Now().UTC()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &now
	return nil
}

// Complete transitions a running task to completed with its result.
func (s *Store) Complete(id string, result models.TaskResult) error {
	return s.finish(id, models.TaskStatusCompleted, &result, "")
}

// Fail transitions a running task to failed with an error summary.
func (s *Store) Fail(id string, errMsg string) error {
	return s.finish(id, models.TaskStatusFailed, nil, errMsg)
}

func (s *Store) finish(id string, status models.TaskStatus, result *models.TaskResult, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if task.Status != models.TaskStatusRunning {
		return ErrBadTransition
	}
	now := time.Now().UTC()
	task.Status = status
	task.CompletedAt = &now
	task.Result = result
	task.Error = errMsg
	return nil
}

// List returns copies of task records, most recently submitted first,
// optionally filtered by status. The limit is clamped to [MinListLimit,
// MaxListLimit].
func (s *Store) List(status models.TaskStatus, limit int) []models.Task {
	if limit < MinListLimit {
		limit = MinListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	s.mu.RLock()
	tasks := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if status != "" && t.Status != status {
			continue
		}
		tasks = append(tasks, *t)
	}
	s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].SubmittedAt.After(tasks[j].SubmittedAt)
	})

	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks
}

// Size returns the number of records held.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Evict removes records submitted before the cutoff and returns the evicted
// tasks. A running task is never evicted, whatever its age.
func (s *Store) Evict(cutoff time.Time) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []models.Task
	for id, t := range s.tasks {
		if t.Status == models.TaskStatusRunning {
			continue
		}
		if t.SubmittedAt.Before(cutoff) {
			evicted = append(evicted, *t)
			delete(s.tasks, id)
		}
	}
	return evicted
}
