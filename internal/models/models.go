// Package models defines the core domain types for codebot.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskPrompt is a validated task specification. It is immutable after
// submission and opaque to the queue.
type TaskPrompt struct {
	RepositoryURL string `json:"repository_url" yaml:"repository_url"`
	Description   string `json:"description" yaml:"description"`
	TicketID      string `json:"ticket_id,omitempty" yaml:"ticket_id,omitempty"`
	TicketSummary string `json:"ticket_summary,omitempty" yaml:"ticket_summary,omitempty"`
	TestCommand   string `json:"test_command,omitempty" yaml:"test_command,omitempty"`
	BaseBranch    string `json:"base_branch,omitempty" yaml:"base_branch,omitempty"`
}

// Validate checks the required prompt fields.
func (p *TaskPrompt) Validate() error {
	if p.RepositoryURL == "" {
		return ErrMissingRepositoryURL
	}
	if p.Description == "" {
		return ErrMissingDescription
	}
	return nil
}

// TaskResult is the success payload of a completed task.
type TaskResult struct {
	PRURL         string `json:"pr_url"`
	BranchName    string `json:"branch_name"`
	WorkspacePath string `json:"workspace_path,omitempty"`
}

// Task tracks one execution request from submission to terminal status.
type Task struct {
	ID          string      `json:"id"`
	Prompt      TaskPrompt  `json:"prompt"`
	Status      TaskStatus  `json:"status"`
	SubmittedAt time.Time   `json:"submitted_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Result      *TaskResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// CommentKind identifies which webhook shape a review comment came from.
type CommentKind string

const (
	CommentKindIssue         CommentKind = "issue_comment"
	CommentKindReviewComment CommentKind = "review_comment"
	CommentKindReviewSummary CommentKind = "review_summary"
)

// ThreadComment is one prior comment in a review thread, oldest first.
type ThreadComment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// ReviewComment is one inbound PR comment event, normalized from the three
// webhook shapes.
type ReviewComment struct {
	Kind      CommentKind `json:"kind"`
	CommentID int64       `json:"comment_id"`
	Owner     string      `json:"owner"`
	Repo      string      `json:"repo"`
	PRNumber  int         `json:"pr_number"`
	PRTitle   string      `json:"pr_title"`
	PRBody    string      `json:"pr_body"`
	// BranchName is the PR head branch; empty for issue comments until
	// resolved against the hosting API.
	BranchName string `json:"branch_name,omitempty"`
	RepoURL    string `json:"repo_url"`
	Author     string `json:"author"`
	Body       string `json:"body"`

	// Inline comment location, set only for review comments.
	FilePath  string `json:"file_path,omitempty"`
	Line      int    `json:"line,omitempty"`
	DiffHunk  string `json:"diff_hunk,omitempty"`
	InReplyTo int64  `json:"in_reply_to,omitempty"`

	Thread []ThreadComment `json:"thread,omitempty"`

	// PRFiles lists the files the PR touches, fetched before classification.
	PRFiles []string `json:"pr_files,omitempty"`
}

// Classification is the closed label set for review comment intent.
type Classification string

const (
	ClassificationQuery         Classification = "query"
	ClassificationChangeRequest Classification = "change_request"
	ClassificationAmbiguous     Classification = "ambiguous"
)

// Valid reports whether the label is one of the known three.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationQuery, ClassificationChangeRequest, ClassificationAmbiguous:
		return true
	}
	return false
}

// Workspace is an on-disk checkout of a repository branch, keyed by the
// 7-character identifier embedded in its branch and directory names.
type Workspace struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Branch string `json:"branch,omitempty"`
}
