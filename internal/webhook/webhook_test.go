package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/ajibigad/codebot/internal/models"
)

const testSecret = "s3cret"

// fakeQueue collects enqueued comments, optionally rejecting everything.
type fakeQueue struct {
	comments []models.ReviewComment
	full     bool
}

func (q *fakeQueue) Enqueue(c models.ReviewComment) error {
	if q.full {
		return errors.New("review queue is full")
	}
	q.comments = append(q.comments, c)
	return nil
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func newIngress(q Enqueuer) *Ingress {
	return New(testSecret, "codebot-007[bot]", "Automated by codebot", q)
}

func issueCommentBody(action, author, comment string, onPR bool) []byte {
	pr := ""
	if onPR {
		pr = `"pull_request": {},`
	}
	return []byte(fmt.Sprintf(`{
		"action": %q,
		"issue": {"number": 7, "title": "Add widgets", "body": "desc", %s "id": 1},
		"comment": {"id": 42, "body": %q, "user": {"login": %q}},
		"repository": {"name": "widgets", "clone_url": "https://github.com/acme/widgets.git", "owner": {"login": "acme"}}
	}`, action, pr, comment, author))
}

func TestVerifySignature(t *testing.T) {
	in := newIngress(&fakeQueue{})
	body := []byte(`{"action":"created"}`)

	if !in.VerifySignature(body, sign(body)) {
		t.Error("valid signature rejected")
	}
	if in.VerifySignature(body, SignaturePrefix+"deadbeef") {
		t.Error("wrong signature accepted")
	}
	if in.VerifySignature(body, "") {
		t.Error("missing signature accepted")
	}
	if in.VerifySignature(body, "sha1=abc") {
		t.Error("wrong scheme accepted")
	}

	// No configured secret means nothing can be verified.
	open := New("", "bot", "", &fakeQueue{})
	if open.VerifySignature(body, sign(body)) {
		t.Error("signature accepted with empty secret")
	}
}

func TestHandle_BadSignatureRejected(t *testing.T) {
	q := &fakeQueue{}
	in := newIngress(q)
	body := issueCommentBody("created", "alice", "please fix", true)

	outcome, err := in.Handle("issue_comment", body, SignaturePrefix+"0000")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Expected ErrBadSignature, got %v", err)
	}
	if outcome.Accepted {
		t.Error("Delivery with bad signature was accepted")
	}
	if len(q.comments) != 0 {
		t.Error("Comment enqueued despite bad signature")
	}
}

func TestHandle_IssueCommentQueued(t *testing.T) {
	q := &fakeQueue{}
	in := newIngress(q)
	body := issueCommentBody("created", "alice", "please fix the flag parsing", true)

	outcome, err := in.Handle("issue_comment", body, sign(body))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !outcome.Accepted || !outcome.Queued {
		t.Fatalf("Expected accepted+queued, got %+v", outcome)
	}

	c := q.comments[0]
	if c.Kind != models.CommentKindIssue {
		t.Errorf("Expected kind %s, got %s", models.CommentKindIssue, c.Kind)
	}
	if c.PRNumber != 7 || c.Owner != "acme" || c.Repo != "widgets" {
		t.Errorf("Bad normalization: %+v", c)
	}
	if c.BranchName != "" {
		t.Errorf("Issue comments carry no branch; got %q", c.BranchName)
	}
}

func TestHandle_NonPRIssueCommentIgnored(t *testing.T) {
	q := &fakeQueue{}
	in := newIngress(q)
	body := issueCommentBody("created", "alice", "plain issue chatter", false)

	outcome, err := in.Handle("issue_comment", body, sign(body))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !outcome.Accepted || outcome.Queued {
		t.Errorf("Expected accepted but not queued, got %+v", outcome)
	}
	if len(q.comments) != 0 {
		t.Error("Non-PR comment was enqueued")
	}
}

func TestHandle_WrongActionIgnored(t *testing.T) {
	q := &fakeQueue{}
	in := newIngress(q)
	body := issueCommentBody("edited", "alice", "edited text", true)

	outcome, err := in.Handle("issue_comment", body, sign(body))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !outcome.Accepted || outcome.Queued {
		t.Errorf("Expected accepted but not queued for edited action, got %+v", outcome)
	}
}

func TestHandle_SelfCommentNeverQueued(t *testing.T) {
	cases := []struct {
		name   string
		author string
		body   string
	}{
		{"by login", "codebot-007[bot]", "working on it"},
		{"by marker", "someone-else", "done!\n\n---\n*Automated by codebot*"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := &fakeQueue{}
			in := newIngress(q)
			body := issueCommentBody("created", tc.author, tc.body, true)

			outcome, err := in.Handle("issue_comment", body, sign(body))
			if err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if !outcome.Accepted || outcome.Queued {
				t.Errorf("Self comment: expected accepted but not queued, got %+v", outcome)
			}
			if len(q.comments) != 0 {
				t.Error("Self comment was enqueued")
			}
		})
	}
}

func TestHandle_ReviewCommentQueued(t *testing.T) {
	q := &fakeQueue{}
	in := newIngress(q)
	body := []byte(`{
		"action": "created",
		"comment": {"id": 99, "body": "rename this", "user": {"login": "alice"},
			"path": "internal/server/server.go", "line": 12, "diff_hunk": "@@ -1,3 +1,3 @@", "in_reply_to_id": 50},
		"pull_request": {"number": 8, "title": "Fix parser", "body": "desc", "head": {"ref": "u/codebot/abc1234"}},
		"repository": {"name": "widgets", "clone_url": "https://github.com/acme/widgets.git", "owner": {"login": "acme"}}
	}`)

	outcome, err := in.Handle("pull_request_review_comment", body, sign(body))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !outcome.Queued {
		t.Fatalf("Expected queued, got %+v", outcome)
	}

	c := q.comments[0]
	if c.Kind != models.CommentKindReviewComment {
		t.Errorf("Expected kind %s, got %s", models.CommentKindReviewComment, c.Kind)
	}
	if c.BranchName != "u/codebot/abc1234" {
		t.Errorf("Expected head branch captured, got %q", c.BranchName)
	}
	if c.FilePath != "internal/server/server.go" || c.Line != 12 || c.InReplyTo != 50 {
		t.Errorf("Inline location lost: %+v", c)
	}
}

func TestHandle_ReviewSummary(t *testing.T) {
	reviewBody := func(action, body string) []byte {
		return []byte(fmt.Sprintf(`{
			"action": %q,
			"review": {"id": 5, "body": %q, "user": {"login": "alice"}, "state": "commented"},
			"pull_request": {"number": 8, "title": "Fix parser", "body": "", "head": {"ref": "u/codebot/abc1234"}},
			"repository": {"name": "widgets", "clone_url": "https://github.com/acme/widgets.git", "owner": {"login": "acme"}}
		}`, action, body))
	}

	q := &fakeQueue{}
	in := newIngress(q)

	body := reviewBody("submitted", "looks good but fix the typo")
	if outcome, _ := in.Handle("pull_request_review", body, sign(body)); !outcome.Queued {
		t.Errorf("Expected review with body queued, got %+v", outcome)
	}

	// Approvals without text carry nothing to act on.
	body = reviewBody("submitted", "")
	if outcome, _ := in.Handle("pull_request_review", body, sign(body)); outcome.Queued {
		t.Error("Empty review body was queued")
	}

	body = reviewBody("dismissed", "whatever")
	if outcome, _ := in.Handle("pull_request_review", body, sign(body)); outcome.Queued {
		t.Error("Dismissed review was queued")
	}
}

func TestHandle_UnsupportedEvent(t *testing.T) {
	in := newIngress(&fakeQueue{})
	body := []byte(`{"action":"created"}`)

	outcome, err := in.Handle("push", body, sign(body))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if outcome.Accepted {
		t.Errorf("Unsupported event accepted: %+v", outcome)
	}
}

func TestHandle_QueueFull(t *testing.T) {
	in := newIngress(&fakeQueue{full: true})
	body := issueCommentBody("created", "alice", "please fix", true)

	outcome, err := in.Handle("issue_comment", body, sign(body))
	if err == nil {
		t.Fatal("Expected error when queue is full")
	}
	if outcome.Accepted {
		t.Errorf("Full-queue delivery accepted: %+v", outcome)
	}
}
