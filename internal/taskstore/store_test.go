package taskstore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ajibigad/codebot/internal/models"
)

func newTask(id string, submitted time.Time) models.Task {
	return models.Task{
		ID: id,
		Prompt: models.TaskPrompt{
			RepositoryURL: "https://github.com/acme/widgets.git",
			Description:   "add a widget",
		},
		Status:      models.TaskStatusPending,
		SubmittedAt: submitted,
	}
}

func TestAdd_DuplicateID(t *testing.T) {
	s := New()
	task := newTask("t1", time.Now())

	if err := s.Add(task); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := s.Add(task); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Expected ErrDuplicateID, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := New()
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := New()
	s.Add(newTask("t1", time.Now()))

	got, _ := s.Get("t1")
	got.Status = models.TaskStatusFailed

	again, _ := s.Get("t1")
	if again.Status != models.TaskStatusPending {
		t.Errorf("Mutating a returned task leaked into the store: %s", again.Status)
	}
}

func TestTransitions_Monotonic(t *testing.T) {
	s := New()
	s.Add(newTask("t1", time.Now()))

	if err := s.Complete("t1", models.TaskResult{}); !errors.Is(err, ErrBadTransition) {
		t.Errorf("Complete on pending task: expected ErrBadTransition, got %v", err)
	}

	if err := s.MarkRunning("t1"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := s.MarkRunning("t1"); !errors.Is(err, ErrBadTransition) {
		t.Errorf("Second MarkRunning: expected ErrBadTransition, got %v", err)
	}

	result := models.TaskResult{PRURL: "https://github.com/acme/widgets/pull/1", BranchName: "u/codebot/abc1234"}
	if err := s.Complete("t1", result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// Terminal states never change again.
	if err := s.Fail("t1", "boom"); !errors.Is(err, ErrBadTransition) {
		t.Errorf("Fail after Complete: expected ErrBadTransition, got %v", err)
	}

	task, _ := s.Get("t1")
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed, got %s", task.Status)
	}
	if task.Result == nil || task.Result.PRURL != result.PRURL {
		t.Errorf("Result not recorded: %+v", task.Result)
	}
	if task.CompletedAt == nil {
		t.Error("Expected CompletedAt to be stamped")
	}
}

func TestFail_RecordsError(t *testing.T) {
	s := New()
	s.Add(newTask("t1", time.Now()))
	s.MarkRunning("t1")

	if err := s.Fail("t1", "agent timed out"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	task, _ := s.Get("t1")
	if task.Status != models.TaskStatusFailed {
		t.Errorf("Expected failed, got %s", task.Status)
	}
	if task.Error != "agent timed out" {
		t.Errorf("Expected error message recorded, got %q", task.Error)
	}
}

func TestList_MostRecentFirst(t *testing.T) {
	s := New()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		s.Add(newTask(fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Minute)))
	}

	tasks := s.List("", 10)
	if len(tasks) != 5 {
		t.Fatalf("Expected 5 tasks, got %d", len(tasks))
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].SubmittedAt.After(tasks[i-1].SubmittedAt) {
			t.Errorf("Tasks out of order at %d: %v after %v", i, tasks[i].SubmittedAt, tasks[i-1].SubmittedAt)
		}
	}
}

func TestList_FilterAndClamp(t *testing.T) {
	s := New()
	now := time.Now()
	for i := 0; i < 4; i++ {
		s.Add(newTask(fmt.Sprintf("t%d", i), now.Add(time.Duration(i)*time.Second)))
	}
	s.MarkRunning("t0")

	running := s.List(models.TaskStatusRunning, 100)
	if len(running) != 1 || running[0].ID != "t0" {
		t.Errorf("Expected only t0 running, got %+v", running)
	}

	// Limit below the minimum is clamped up, not treated as zero.
	clamped := s.List("", 0)
	if len(clamped) != 1 {
		t.Errorf("Expected limit clamped to 1, got %d tasks", len(clamped))
	}
}

func TestEvict_SkipsRunning(t *testing.T) {
	s := New()
	old := time.Now().Add(-48 * time.Hour)

	s.Add(newTask("done", old))
	s.MarkRunning("done")
	s.Complete("done", models.TaskResult{})

	s.Add(newTask("stuck", old))
	s.MarkRunning("stuck")

	s.Add(newTask("fresh", time.Now()))

	evicted := s.Evict(time.Now().Add(-24 * time.Hour))
	if len(evicted) != 1 || evicted[0].ID != "done" {
		t.Fatalf("Expected only 'done' evicted, got %+v", evicted)
	}

	if _, err := s.Get("stuck"); err != nil {
		t.Error("Running task was evicted")
	}
	if _, err := s.Get("fresh"); err != nil {
		t.Error("Fresh task was evicted")
	}
	if s.Size() != 2 {
		t.Errorf("Expected 2 tasks left, got %d", s.Size())
	}
}
