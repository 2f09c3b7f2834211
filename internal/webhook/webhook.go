// Package webhook verifies and normalizes inbound hosting events.
//
// The ingress accepts three event shapes (issue comments on PRs, inline
// review comments, review summaries), filters out the bot's own comments,
// and enqueues everything else for the review worker. Verification fails
// closed: no valid signature, no processing.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ajibigad/codebot/internal/models"
)

// SignaturePrefix is the scheme tag GitHub puts in X-Hub-Signature-256.
const SignaturePrefix = "sha256="

// Enqueuer is the review queue intake. Enqueue must not block; at capacity it
// returns an error the ingress surfaces as a rejection.
type Enqueuer interface {
	Enqueue(c models.ReviewComment) error
}

// ErrBadSignature indicates a missing or invalid webhook signature.
var ErrBadSignature = errors.New("invalid webhook signature")

// Outcome is the ingress decision for one delivery.
type Outcome struct {
	// Accepted is false only when the delivery is rejected outright
	// (bad signature, malformed payload, unsupported event, full queue).
	Accepted bool
	// Queued is true when a normalized comment was handed to the worker.
	// A self-authored comment is Accepted but never Queued.
	Queued bool
	Reason string
}

// Ingress validates, filters, and normalizes webhook deliveries.
type Ingress struct {
	secret          []byte
	botLogin        string
	signatureMarker string
	queue           Enqueuer
}

// New creates an Ingress posting into the given review queue.
func New(secret, botLogin, signatureMarker string, queue Enqueuer) *Ingress {
	return &Ingress{
		secret:          []byte(secret),
		botLogin:        botLogin,
		signatureMarker: signatureMarker,
		queue:           queue,
	}
}

// VerifySignature checks an X-Hub-Signature-256 value against the raw body
// using a constant-time comparison.
func (in *Ingress) VerifySignature(body []byte, signature string) bool {
	if len(in.secret) == 0 || !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, SignaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, in.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// IsSelfAuthored reports whether a comment originates from the bot itself,
// either by author login or by the signature marker embedded in replies.
// Self-authored comments are dropped unconditionally; this is what keeps the
// bot from replying to its own replies.
func (in *Ingress) IsSelfAuthored(author, body string) bool {
	if in.botLogin != "" && author == in.botLogin {
		return true
	}
	return in.signatureMarker != "" && strings.Contains(body, in.signatureMarker)
}

// Handle processes one delivery. The signature is verified over the raw body
// before anything is parsed. The response never waits on comment processing.
func (in *Ingress) Handle(eventType string, body []byte, signature string) (Outcome, error) {
	if !in.VerifySignature(body, signature) {
		return Outcome{Accepted: false, Reason: "invalid signature"}, ErrBadSignature
	}

	switch eventType {
	case "issue_comment":
		return in.handleIssueComment(body)
	case "pull_request_review_comment":
		return in.handleReviewComment(body)
	case "pull_request_review":
		return in.handleReviewSummary(body)
	default:
		return Outcome{Accepted: false, Reason: fmt.Sprintf("unsupported event type %q", eventType)}, nil
	}
}

func (in *Ingress) handleIssueComment(body []byte) (Outcome, error) {
	var ev issueCommentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return Outcome{Accepted: false, Reason: "malformed payload"}, err
	}
	if ev.Action != "created" {
		return Outcome{Accepted: true, Reason: fmt.Sprintf("ignoring action %q", ev.Action)}, nil
	}
	if ev.Issue.PullRequest == nil {
		return Outcome{Accepted: true, Reason: "not a pull request comment"}, nil
	}
	if in.IsSelfAuthored(ev.Comment.User.Login, ev.Comment.Body) {
		log.Printf("Ignoring own comment on PR #%d", ev.Issue.Number)
		return Outcome{Accepted: true, Reason: "own comment"}, nil
	}

	return in.enqueue(models.ReviewComment{
		Kind:      models.CommentKindIssue,
		CommentID: ev.Comment.ID,
		Owner:     ev.Repository.Owner.Login,
		Repo:      ev.Repository.Name,
		PRNumber:  ev.Issue.Number,
		PRTitle:   ev.Issue.Title,
		PRBody:    ev.Issue.Body,
		RepoURL:   ev.Repository.CloneURL,
		Author:    ev.Comment.User.Login,
		Body:      ev.Comment.Body,
	})
}

func (in *Ingress) handleReviewComment(body []byte) (Outcome, error) {
	var ev reviewCommentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return Outcome{Accepted: false, Reason: "malformed payload"}, err
	}
	if ev.Action != "created" {
		return Outcome{Accepted: true, Reason: fmt.Sprintf("ignoring action %q", ev.Action)}, nil
	}
	if in.IsSelfAuthored(ev.Comment.User.Login, ev.Comment.Body) {
		log.Printf("Ignoring own review comment on PR #%d", ev.PullRequest.Number)
		return Outcome{Accepted: true, Reason: "own comment"}, nil
	}

	return in.enqueue(models.ReviewComment{
		Kind:       models.CommentKindReviewComment,
		CommentID:  ev.Comment.ID,
		Owner:      ev.Repository.Owner.Login,
		Repo:       ev.Repository.Name,
		PRNumber:   ev.PullRequest.Number,
		PRTitle:    ev.PullRequest.Title,
		PRBody:     ev.PullRequest.Body,
		BranchName: ev.PullRequest.Head.Ref,
		RepoURL:    ev.Repository.CloneURL,
		Author:     ev.Comment.User.Login,
		Body:       ev.Comment.Body,
		FilePath:   ev.Comment.Path,
		Line:       ev.Comment.Line,
		DiffHunk:   ev.Comment.DiffHunk,
		InReplyTo:  ev.Comment.InReplyTo,
	})
}

func (in *Ingress) handleReviewSummary(body []byte) (Outcome, error) {
	var ev reviewEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return Outcome{Accepted: false, Reason: "malformed payload"}, err
	}
	if ev.Action != "submitted" {
		return Outcome{Accepted: true, Reason: fmt.Sprintf("ignoring action %q", ev.Action)}, nil
	}
	if strings.TrimSpace(ev.Review.Body) == "" {
		return Outcome{Accepted: true, Reason: "review has no body"}, nil
	}
	if in.IsSelfAuthored(ev.Review.User.Login, ev.Review.Body) {
		log.Printf("Ignoring own review on PR #%d", ev.PullRequest.Number)
		return Outcome{Accepted: true, Reason: "own review"}, nil
	}

	return in.enqueue(models.ReviewComment{
		Kind:       models.CommentKindReviewSummary,
		CommentID:  ev.Review.ID,
		Owner:      ev.Repository.Owner.Login,
		Repo:       ev.Repository.Name,
		PRNumber:   ev.PullRequest.Number,
		PRTitle:    ev.PullRequest.Title,
		PRBody:     ev.PullRequest.Body,
		BranchName: ev.PullRequest.Head.Ref,
		RepoURL:    ev.Repository.CloneURL,
		Author:     ev.Review.User.Login,
		Body:       ev.Review.Body,
	})
}

func (in *Ingress) enqueue(c models.ReviewComment) (Outcome, error) {
	if err := in.queue.Enqueue(c); err != nil {
		return Outcome{Accepted: false, Reason: "review queue full"}, err
	}
	log.Printf("Queued %s for PR #%d", c.Kind, c.PRNumber)
	return Outcome{Accepted: true, Queued: true, Reason: "queued"}, nil
}
