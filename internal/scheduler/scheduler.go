// Package scheduler provides the bounded task queue and worker pool.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ajibigad/codebot/internal/models"
	"github.com/ajibigad/codebot/internal/taskstore"
	"github.com/google/uuid"
)

// Runner executes one task end to end: clone, branch, agent edit, push,
// PR creation. It is invoked synchronously from a worker.
type Runner interface {
	Run(ctx context.Context, prompt models.TaskPrompt) (*models.TaskResult, error)
}

// Archiver records terminal task states. Archive failures are logged, never
// propagated; the archive is a history surface, not part of the pipeline.
type Archiver interface {
	ArchiveTask(task models.Task) error
}

// Scheduler owns the FIFO task queue and its worker pool.
type Scheduler struct {
	store    *taskstore.Store
	runner   Runner
	archiver Archiver
	workers  int

	queue chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler with the given queue capacity and worker count.
func New(store *taskstore.Store, runner Runner, workers, queueSize int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   store,
		runner:  runner,
		workers: workers,
		queue:   make(chan string, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetArchiver wires an optional terminal-state archiver.
func (sch *Scheduler) SetArchiver(a Archiver) {
	sch.archiver = a
}

// Start launches the worker pool.
func (sch *Scheduler) Start() {
	for i := 0; i < sch.workers; i++ {
		sch.wg.Add(1)
		go sch.worker(i + 1)
	}
	log.Printf("Started %d task worker(s)", sch.workers)
}

// Stop prevents workers from picking up further tasks and waits for in-flight
// work to finish. Tasks still queued are abandoned with the process.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	log.Println("Task workers stopped")
}

// Submit validates the prompt, records a pending task, and enqueues it.
// When the queue is at capacity the record is rolled back and ErrQueueFull
// returned; Submit never blocks on a full queue.
func (sch *Scheduler) Submit(prompt models.TaskPrompt) (string, error) {
	if err := prompt.Validate(); err != nil {
		return "", err
	}

	task := models.Task{
		ID:          uuid.New().String(),
		Prompt:      prompt,
		Status:      models.TaskStatusPending,
		SubmittedAt: time.Now().UTC(),
	}
	if err := sch.store.Add(task); err != nil {
		return "", err
	}

	select {
	case sch.queue <- task.ID:
		return task.ID, nil
	default:
		sch.store.Remove(task.ID)
		return "", ErrQueueFull
	}
}

// Depth returns the number of queued, unclaimed tasks.
func (sch *Scheduler) Depth() int {
	return len(sch.queue)
}

func (sch *Scheduler) worker(n int) {
	defer sch.wg.Done()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case id := <-sch.queue:
			sch.process(n, id)
		}
	}
}

// process runs one task to a terminal state. A task failure is recorded and
// the worker moves on; it never stops the loop.
func (sch *Scheduler) process(worker int, id string) {
	task, err := sch.store.Get(id)
	if err != nil {
		// Evicted between enqueue and claim; nothing to run.
		log.Printf("worker %d: task %s no longer in store, skipping", worker, id)
		return
	}

	if err := sch.store.MarkRunning(id); err != nil {
		log.Printf("worker %d: cannot claim task %s: %v", worker, id, err)
		return
	}

	log.Printf("worker %d: executing task %s", worker, id)

	// The run deliberately uses a background context: shutdown stops intake
	// but lets in-flight work drain.
	result, runErr := sch.runner.Run(context.Background(), task.Prompt)
	if runErr != nil {
		log.Printf("worker %d: task %s failed: %v", worker, id, runErr)
		if err := sch.store.Fail(id, runErr.Error()); err != nil {
			log.Printf("worker %d: record failure for %s: %v", worker, id, err)
		}
	} else {
		log.Printf("worker %d: task %s completed: %s", worker, id, result.PRURL)
		if err := sch.store.Complete(id, *result); err != nil {
			log.Printf("worker %d: record completion for %s: %v", worker, id, err)
		}
	}

	sch.archive(id)
}

func (sch *Scheduler) archive(id string) {
	if sch.archiver == nil {
		return
	}
	task, err := sch.store.Get(id)
	if err != nil {
		return
	}
	if err := sch.archiver.ArchiveTask(task); err != nil {
		log.Printf("archive task %s: %v", id, err)
	}
}
