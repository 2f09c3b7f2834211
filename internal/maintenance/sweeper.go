// Package maintenance evicts finished tasks once they age past retention.
package maintenance

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ajibigad/codebot/internal/models"
	"github.com/ajibigad/codebot/internal/taskstore"
)

// Archiver persists evicted tasks before they leave memory.
type Archiver interface {
	ArchiveTask(task models.Task) error
}

// Sweeper periodically drops terminal tasks older than the retention window.
// Running tasks are never evicted regardless of age.
type Sweeper struct {
	store     *taskstore.Store
	archiver  Archiver
	retention time.Duration
	cron      *cron.Cron
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(store *taskstore.Store, archiver Archiver, retention, interval time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		store:     store,
		archiver:  archiver,
		retention: retention,
		cron:      cron.New(),
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.Sweep); err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return s, nil
}

// Start begins the sweep schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	log.Printf("Retention sweeper started (retention %s)", s.retention)
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep evicts expired tasks once. Exposed for tests and manual runs.
func (s *Sweeper) Sweep() {
	cutoff := time.Now().Add(-s.retention)
	evicted := s.store.Evict(cutoff)
	if len(evicted) == 0 {
		return
	}

	for _, task := range evicted {
		if s.archiver == nil {
			continue
		}
		if err := s.archiver.ArchiveTask(task); err != nil {
			log.Printf("Failed to archive evicted task %s: %v", task.ID, err)
		}
	}
	log.Printf("Evicted %d expired tasks", len(evicted))
}
