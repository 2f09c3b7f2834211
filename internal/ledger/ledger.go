// Package ledger provides SQLite-backed history for codebot.
//
// The live task queue is in-memory and intentionally not durable; the ledger
// only records what already happened, so operators can answer "what did the
// bot do last week" after tasks age out of the store.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ajibigad/codebot/internal/models"
	_ "modernc.org/sqlite"
)

// Ledger provides access to the codebot SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open creates a Ledger and runs migrations.
func Open(dbPath string) (*Ledger, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// migrate runs idempotent schema migrations.
func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		repository_url TEXT NOT NULL,
		description TEXT NOT NULL,
		ticket_id TEXT,
		status TEXT NOT NULL,
		branch_name TEXT,
		pr_url TEXT,
		error TEXT,
		submitted_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS processed_comments (
		comment_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		repository TEXT NOT NULL,
		pr_number INTEGER NOT NULL,
		author TEXT NOT NULL,
		classification TEXT NOT NULL,
		outcome TEXT NOT NULL,
		processed_at DATETIME NOT NULL,
		PRIMARY KEY (comment_id, kind)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_comments_pr ON processed_comments(repository, pr_number);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ArchiveTask records a finished task. Called when a task reaches a terminal
// state and again, harmlessly, if the eviction sweep re-archives it.
func (l *Ledger) ArchiveTask(task models.Task) error {
	var branch, prURL string
	if task.Result != nil {
		branch = task.Result.BranchName
		prURL = task.Result.PRURL
	}
	var completed any
	if task.CompletedAt != nil {
		completed = task.CompletedAt.UTC()
	}

	_, err := l.db.Exec(`
		INSERT INTO tasks (id, repository_url, description, ticket_id, status, branch_name, pr_url, error, submitted_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			branch_name = excluded.branch_name,
			pr_url = excluded.pr_url,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		task.ID, task.Prompt.RepositoryURL, task.Prompt.Description, task.Prompt.TicketID,
		string(task.Status), branch, prURL, task.Error, task.SubmittedAt.UTC(), completed)
	if err != nil {
		return fmt.Errorf("archive task %s: %w", task.ID, err)
	}
	return nil
}

// RecordComment records the outcome of a processed review comment.
func (l *Ledger) RecordComment(c models.ReviewComment, label models.Classification, outcome string) error {
	_, err := l.db.Exec(`
		INSERT INTO processed_comments (comment_id, kind, repository, pr_number, author, classification, outcome, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(comment_id, kind) DO UPDATE SET
			classification = excluded.classification,
			outcome = excluded.outcome,
			processed_at = excluded.processed_at`,
		c.CommentID, string(c.Kind), c.Owner+"/"+c.Repo, c.PRNumber, c.Author,
		string(label), outcome, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record comment %d: %w", c.CommentID, err)
	}
	return nil
}

// ArchivedTask is one row of task history.
type ArchivedTask struct {
	ID            string     `json:"id"`
	RepositoryURL string     `json:"repository_url"`
	Description   string     `json:"description"`
	TicketID      string     `json:"ticket_id,omitempty"`
	Status        string     `json:"status"`
	BranchName    string     `json:"branch_name,omitempty"`
	PRURL         string     `json:"pr_url,omitempty"`
	Error         string     `json:"error,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// RecentTasks returns archived tasks, most recent first.
func (l *Ledger) RecentTasks(limit int) ([]ArchivedTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(`
		SELECT id, repository_url, description, ticket_id, status, branch_name, pr_url, error, submitted_at, completed_at
		FROM tasks ORDER BY submitted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []ArchivedTask
	for rows.Next() {
		var t ArchivedTask
		var ticket, branch, prURL, errMsg sql.NullString
		var completed sql.NullTime
		if err := rows.Scan(&t.ID, &t.RepositoryURL, &t.Description, &ticket, &t.Status,
			&branch, &prURL, &errMsg, &t.SubmittedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.TicketID = ticket.String
		t.BranchName = branch.String
		t.PRURL = prURL.String
		t.Error = errMsg.String
		if completed.Valid {
			ts := completed.Time
			t.CompletedAt = &ts
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
