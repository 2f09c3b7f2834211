package maintenance

import (
	"testing"
	"time"

	"github.com/ajibigad/codebot/internal/models"
	"github.com/ajibigad/codebot/internal/taskstore"
)

type captureArchiver struct {
	tasks []models.Task
}

func (a *captureArchiver) ArchiveTask(task models.Task) error {
	a.tasks = append(a.tasks, task)
	return nil
}

func seed(t *testing.T, store *taskstore.Store, id string, age time.Duration, status models.TaskStatus) {
	t.Helper()
	if err := store.Add(models.Task{
		ID: id,
		Prompt: models.TaskPrompt{
			RepositoryURL: "https://github.com/acme/widgets.git",
			Description:   "task " + id,
		},
		SubmittedAt: time.Now().Add(-age),
	}); err != nil {
		t.Fatal(err)
	}
	switch status {
	case models.TaskStatusRunning:
		store.MarkRunning(id)
	case models.TaskStatusCompleted:
		store.MarkRunning(id)
		store.Complete(id, models.TaskResult{})
	case models.TaskStatusFailed:
		store.MarkRunning(id)
		store.Fail(id, "boom")
	}
}

func TestSweep_EvictsOnlyExpiredTerminal(t *testing.T) {
	store := taskstore.New()
	archiver := &captureArchiver{}

	seed(t, store, "old-done", 48*time.Hour, models.TaskStatusCompleted)
	seed(t, store, "old-failed", 48*time.Hour, models.TaskStatusFailed)
	seed(t, store, "old-running", 48*time.Hour, models.TaskStatusRunning)
	seed(t, store, "fresh-done", time.Minute, models.TaskStatusCompleted)

	s, err := NewSweeper(store, archiver, 24*time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}
	s.Sweep()

	if store.Size() != 2 {
		t.Errorf("Expected 2 tasks remaining, got %d", store.Size())
	}
	if _, err := store.Get("old-running"); err != nil {
		t.Error("Running task was evicted")
	}
	if _, err := store.Get("fresh-done"); err != nil {
		t.Error("Fresh task was evicted")
	}

	if len(archiver.tasks) != 2 {
		t.Fatalf("Expected 2 tasks archived, got %d", len(archiver.tasks))
	}
	for _, task := range archiver.tasks {
		if !task.Status.Terminal() {
			t.Errorf("Archived non-terminal task %s (%s)", task.ID, task.Status)
		}
	}
}

func TestSweep_NilArchiver(t *testing.T) {
	store := taskstore.New()
	seed(t, store, "old", 48*time.Hour, models.TaskStatusCompleted)

	s, err := NewSweeper(store, nil, 24*time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}
	s.Sweep() // must not panic

	if store.Size() != 0 {
		t.Errorf("Expected eviction without archiver, %d tasks left", store.Size())
	}
}
