package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ajibigad/codebot/internal/classify"
	"github.com/ajibigad/codebot/internal/hosting"
	"github.com/ajibigad/codebot/internal/models"
	"github.com/ajibigad/codebot/internal/workspace"
)

const marker = "Automated by codebot"

// fakeHost records replies and serves canned PR details.
type fakeHost struct {
	mu      sync.Mutex
	pr      *hosting.PR
	prErr   error
	replies []string
}

func (f *fakeHost) PRDetails(ctx context.Context, owner, repo string, number int) (*hosting.PR, error) {
	if f.prErr != nil {
		return nil, f.prErr
	}
	return f.pr, nil
}

func (f *fakeHost) CommentThread(ctx context.Context, owner, repo string, number int, commentID int64) ([]models.ThreadComment, error) {
	return nil, nil
}

func (f *fakeHost) ChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	return []string{"parser.go"}, nil
}

func (f *fakeHost) Reply(ctx context.Context, c models.ReviewComment, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, body)
	return nil
}

func (f *fakeHost) CreatePR(ctx context.Context, owner, repo, title, body, head, base string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeHost) UpdatePRDescription(ctx context.Context, owner, repo string, number int, body string) error {
	return nil
}

func (f *fakeHost) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

// fixedClassifier returns one decision for every comment.
type fixedClassifier struct {
	decision classify.Decision
	err      error
}

func (f *fixedClassifier) Classify(ctx context.Context, c models.ReviewComment) (classify.Decision, error) {
	return f.decision, f.err
}

// noopAgent satisfies agent.Runner for flows that never reach it.
type noopAgent struct{}

func (noopAgent) Prompt(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (noopAgent) RunTask(ctx context.Context, workDir, description, systemPrompt string) (string, error) {
	return "", errors.New("not used")
}

type captureRecorder struct {
	mu      sync.Mutex
	records []string
}

func (r *captureRecorder) RecordComment(c models.ReviewComment, label models.Classification, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fmt.Sprintf("%d %s %s", c.CommentID, label, outcome))
	return nil
}

func newTestProcessor(t *testing.T, host hosting.Client, c classify.Classifier) (*Processor, *Queue) {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueue(10)
	return NewProcessor(q, host, ws, noopAgent{}, c, marker), q
}

func branchComment() models.ReviewComment {
	return models.ReviewComment{
		Kind:       models.CommentKindReviewSummary,
		CommentID:  42,
		Owner:      "acme",
		Repo:       "widgets",
		PRNumber:   7,
		PRTitle:    "Fix parser",
		BranchName: "u/codebot/abc1234",
		RepoURL:    "https://github.com/acme/widgets.git",
		Author:     "alice",
		Body:       "hmm, not sure about this",
	}
}

func TestQueue_EnqueueAndDepth(t *testing.T) {
	q := NewQueue(2)
	if q.Depth() != 0 {
		t.Errorf("Expected empty queue, depth %d", q.Depth())
	}

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(models.ReviewComment{CommentID: int64(i)}); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	if err := q.Enqueue(models.ReviewComment{CommentID: 3}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if q.Depth() != 2 {
		t.Errorf("Expected depth 2, got %d", q.Depth())
	}
}

func TestProcess_AmbiguousAsksForClarification(t *testing.T) {
	host := &fakeHost{}
	classifier := &fixedClassifier{decision: classify.Decision{
		Label:                 models.ClassificationAmbiguous,
		ClarificationQuestion: "Do you want me to change the parser, or just explain it?",
	}}
	p, _ := newTestProcessor(t, host, classifier)

	p.process(branchComment())

	reply := host.lastReply()
	if !strings.Contains(reply, "Do you want me to change the parser") {
		t.Errorf("Clarification question not posted: %q", reply)
	}
	if !strings.Contains(reply, marker) {
		t.Errorf("Reply missing signature marker: %q", reply)
	}
}

func TestProcess_ResolvesBranchForIssueComments(t *testing.T) {
	host := &fakeHost{pr: &hosting.PR{
		Number:     7,
		Title:      "Fix parser",
		HeadBranch: "u/codebot/abc1234",
		BaseBranch: "main",
	}}
	classifier := &fixedClassifier{decision: classify.Decision{
		Label:                 models.ClassificationAmbiguous,
		ClarificationQuestion: "Which part do you mean?",
	}}
	p, _ := newTestProcessor(t, host, classifier)

	c := branchComment()
	c.Kind = models.CommentKindIssue
	c.BranchName = "" // issue comments arrive without a head branch
	p.process(c)

	if host.lastReply() == "" {
		t.Fatal("No reply posted after branch resolution")
	}
}

func TestProcess_BranchResolutionFailureReported(t *testing.T) {
	host := &fakeHost{prErr: errors.New("API down")}
	p, _ := newTestProcessor(t, host, &fixedClassifier{})
	rec := &captureRecorder{}
	p.SetRecorder(rec)

	c := branchComment()
	c.BranchName = ""
	p.process(c)

	reply := host.lastReply()
	if !strings.Contains(reply, "problem") {
		t.Errorf("Expected a best-effort error reply, got %q", reply)
	}
	if len(rec.records) != 1 || !strings.Contains(rec.records[0], "error") {
		t.Errorf("Outcome not recorded as error: %v", rec.records)
	}
}

func TestProcess_ClassifierErrorDoesNotStopWorker(t *testing.T) {
	host := &fakeHost{}
	classifier := &fixedClassifier{err: errors.New("agent unreachable")}
	p, q := newTestProcessor(t, host, classifier)

	p.Start()
	defer p.Stop()

	if err := q.Enqueue(branchComment()); err != nil {
		t.Fatal(err)
	}
	second := branchComment()
	second.CommentID = 43
	if err := q.Enqueue(second); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		host.mu.Lock()
		n := len(host.replies)
		host.mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("worker stopped after first failure")
}

// timingClassifier records a [start, end] interval for every call so tests
// can assert that no two comments were ever in flight at once.
type timingClassifier struct {
	mu        sync.Mutex
	intervals [][2]time.Time
}

func (c *timingClassifier) Classify(ctx context.Context, _ models.ReviewComment) (classify.Decision, error) {
	start := time.Now()
	time.Sleep(15 * time.Millisecond)
	end := time.Now()
	c.mu.Lock()
	c.intervals = append(c.intervals, [2]time.Time{start, end})
	c.mu.Unlock()
	return classify.Decision{
		Label:                 models.ClassificationAmbiguous,
		ClarificationQuestion: "?",
	}, nil
}

func TestProcess_SameBranchCommentsNeverOverlap(t *testing.T) {
	host := &fakeHost{}
	classifier := &timingClassifier{}
	p, q := newTestProcessor(t, host, classifier)

	p.Start()

	const n = 5
	for i := 0; i < n; i++ {
		c := branchComment()
		c.CommentID = int64(100 + i)
		if err := q.Enqueue(c); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		host.mu.Lock()
		done := len(host.replies) >= n
		host.mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for all comments to be processed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()

	classifier.mu.Lock()
	intervals := classifier.intervals
	classifier.mu.Unlock()
	if len(intervals) != n {
		t.Fatalf("Expected %d classified comments, got %d", n, len(intervals))
	}
	for i := 1; i < len(intervals); i++ {
		prevEnd, start := intervals[i-1][1], intervals[i][0]
		if start.Before(prevEnd) {
			t.Errorf("Comment %d started at %s before comment %d ended at %s",
				i, start.Format(time.RFC3339Nano), i-1, prevEnd.Format(time.RFC3339Nano))
		}
	}
}

func TestProcess_RecordsOutcome(t *testing.T) {
	host := &fakeHost{}
	classifier := &fixedClassifier{decision: classify.Decision{
		Label:                 models.ClassificationAmbiguous,
		ClarificationQuestion: "?",
	}}
	p, _ := newTestProcessor(t, host, classifier)
	rec := &captureRecorder{}
	p.SetRecorder(rec)

	p.process(branchComment())

	if len(rec.records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(rec.records))
	}
	if rec.records[0] != "42 ambiguous asked for clarification" {
		t.Errorf("Unexpected record: %q", rec.records[0])
	}
}
