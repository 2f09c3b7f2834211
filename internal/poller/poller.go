// Package poller is the review intake for deployments the webhook cannot
// reach. It periodically lists new comments on the PRs of completed tasks and
// feeds them into the same review queue the webhook ingress uses.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ajibigad/codebot/internal/models"
	"github.com/ajibigad/codebot/internal/review"
)

// Host lists new PR activity. *hosting.GitHub satisfies it.
type Host interface {
	IssueCommentsSince(ctx context.Context, owner, repo string, number int, since time.Time) ([]models.ReviewComment, error)
	ReviewCommentsSince(ctx context.Context, owner, repo string, number int, since time.Time) ([]models.ReviewComment, error)
	ReviewsSince(ctx context.Context, owner, repo string, number int, since time.Time) ([]models.ReviewComment, error)
}

// TaskSource yields the tasks whose PRs should be watched. *taskstore.Store
// satisfies it.
type TaskSource interface {
	List(status models.TaskStatus, limit int) []models.Task
}

// sinceOverlap is subtracted from the last poll time so a comment created
// right at the previous poll boundary is not missed. Re-reads are absorbed by
// the seen set.
const sinceOverlap = 30 * time.Second

type seenKey struct {
	id   int64
	kind models.CommentKind
}

// Poller drives the polling schedule. One instance watches every completed
// task that produced a pull request.
type Poller struct {
	tasks    TaskSource
	host     Host
	queue    *review.Queue
	botLogin string
	marker   string
	cron     *cron.Cron

	mu       sync.Mutex
	lastPoll map[string]time.Time
	seen     map[seenKey]struct{}
}

// New creates a poller that runs every interval. botLogin and marker identify
// the bot's own comments, which are never enqueued.
func New(tasks TaskSource, host Host, queue *review.Queue, botLogin, marker string, interval time.Duration) (*Poller, error) {
	p := &Poller{
		tasks:    tasks,
		host:     host,
		queue:    queue,
		botLogin: botLogin,
		marker:   marker,
		cron:     cron.New(),
		lastPoll: make(map[string]time.Time),
		seen:     make(map[seenKey]struct{}),
	}
	if _, err := p.cron.AddFunc(fmt.Sprintf("@every %s", interval), p.Poll); err != nil {
		return nil, fmt.Errorf("schedule poll: %w", err)
	}
	return p, nil
}

// Start begins the poll schedule.
func (p *Poller) Start() {
	p.cron.Start()
	log.Println("Comment poller started")
}

// Stop halts the schedule and waits for a running poll to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	log.Println("Comment poller stopped")
}

// Poll runs one polling cycle over every watched PR. Exposed for tests and
// manual runs. Failures on one PR never stop the cycle.
func (p *Poller) Poll() {
	ctx := context.Background()
	for _, task := range p.tasks.List(models.TaskStatusCompleted, 1000) {
		if task.Result == nil || task.Result.PRURL == "" {
			continue
		}
		if err := p.pollPR(ctx, task); err != nil {
			log.Printf("Polling %s failed: %v", task.Result.PRURL, err)
		}
	}
}

func (p *Poller) pollPR(ctx context.Context, task models.Task) error {
	owner, repo, number, err := parsePRURL(task.Result.PRURL)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/%s#%d", owner, repo, number)

	p.mu.Lock()
	since, polled := p.lastPoll[key]
	p.mu.Unlock()

	start := time.Now().UTC()
	if polled {
		since = since.Add(-sinceOverlap)
	} else {
		// First look at this PR: start just before the task was submitted so
		// comments posted while the server was down are still picked up.
		since = task.SubmittedAt.Add(-time.Minute)
	}

	var batch []models.ReviewComment
	for _, fetch := range []func(context.Context, string, string, int, time.Time) ([]models.ReviewComment, error){
		p.host.IssueCommentsSince,
		p.host.ReviewCommentsSince,
		p.host.ReviewsSince,
	} {
		comments, err := fetch(ctx, owner, repo, number, since)
		if err != nil {
			log.Printf("Could not list comments on %s: %v", key, err)
			continue
		}
		batch = append(batch, comments...)
	}

	for _, c := range batch {
		if p.selfAuthored(c) {
			continue
		}
		k := seenKey{id: c.CommentID, kind: c.Kind}
		p.mu.Lock()
		_, dup := p.seen[k]
		p.mu.Unlock()
		if dup {
			continue
		}

		// BranchName stays empty; the review processor resolves it together
		// with the PR title and body before classifying.
		c.RepoURL = task.Prompt.RepositoryURL
		if err := p.queue.Enqueue(c); err != nil {
			if errors.Is(err, review.ErrQueueFull) {
				// Leave the comment unseen so the next cycle retries it.
				log.Printf("Review queue full, deferring comment %d on %s", c.CommentID, key)
				return nil
			}
			return err
		}
		p.mu.Lock()
		p.seen[k] = struct{}{}
		p.mu.Unlock()
		log.Printf("Queued %s %d from %s on %s", c.Kind, c.CommentID, c.Author, key)
	}

	p.mu.Lock()
	p.lastPoll[key] = start
	p.mu.Unlock()
	return nil
}

func (p *Poller) selfAuthored(c models.ReviewComment) bool {
	if c.Author != "" && c.Author == p.botLogin {
		return true
	}
	return p.marker != "" && strings.Contains(c.Body, p.marker)
}

// parsePRURL extracts owner, repo, and number from a pull request web URL
// like https://github.com/owner/repo/pull/123.
func parsePRURL(url string) (owner, repo string, number int, err error) {
	s := strings.TrimSuffix(strings.TrimSpace(url), "/")
	if i := strings.Index(s, "github.com/"); i >= 0 {
		s = s[i+len("github.com/"):]
	}
	parts := strings.Split(s, "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return "", "", 0, fmt.Errorf("cannot parse PR URL %q", url)
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("cannot parse PR URL %q: %w", url, err)
	}
	return parts[0], parts[1], n, nil
}
