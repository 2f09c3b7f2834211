// Package gitops wraps the git plumbing used by the pipeline.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repo runs git commands inside one working directory.
type Repo struct {
	dir string
}

// Open returns a Repo for an existing checkout.
func Open(dir string) *Repo {
	return &Repo{dir: dir}
}

// Clone clones url into dir and returns the Repo.
func Clone(ctx context.Context, url, dir string) (*Repo, error) {
	if _, err := git(ctx, "", "clone", url, dir); err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	return &Repo{dir: dir}, nil
}

// Dir returns the working directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Fetch updates remote tracking refs.
func (r *Repo) Fetch(ctx context.Context) error {
	_, err := git(ctx, r.dir, "fetch", "origin")
	return err
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	if _, err := git(ctx, r.dir, "checkout", branch); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	return nil
}

// CheckoutNew creates and switches to a new branch.
func (r *Repo) CheckoutNew(ctx context.Context, branch string) error {
	if _, err := git(ctx, r.dir, "checkout", "-b", branch); err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	return nil
}

// Pull brings the branch up to date with its remote counterpart.
func (r *Repo) Pull(ctx context.Context, branch string) error {
	if _, err := git(ctx, r.dir, "pull", "origin", branch); err != nil {
		return fmt.Errorf("pull %s: %w", branch, err)
	}
	return nil
}

// Push publishes the branch to origin.
func (r *Repo) Push(ctx context.Context, branch string) error {
	if _, err := git(ctx, r.dir, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}

// HeadSHA returns the current commit hash.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	out, err := git(ctx, r.dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CommitMessage returns the subject and body of a commit.
func (r *Repo) CommitMessage(ctx context.Context, sha string) (string, error) {
	out, err := git(ctx, r.dir, "log", "-1", "--format=%B", sha)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := git(ctx, r.dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DefaultBranch resolves the remote HEAD branch, falling back to main.
func (r *Repo) DefaultBranch(ctx context.Context) string {
	out, err := git(ctx, r.dir, "symbolic-ref", "refs/remotes/origin/HEAD", "--short")
	if err != nil {
		return "main"
	}
	return strings.TrimPrefix(strings.TrimSpace(out), "origin/")
}

// CommitsAhead counts commits on HEAD that are not on origin/<branch>.
func (r *Repo) CommitsAhead(ctx context.Context, branch string) (int, error) {
	out, err := git(ctx, r.dir, "rev-list", "--count", "origin/"+branch+"..HEAD")
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(out), "%d", &n); err != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", out, err)
	}
	return n, nil
}

// ChangedFiles lists files changed between base and HEAD.
func (r *Repo) ChangedFiles(ctx context.Context, base string) ([]string, error) {
	out, err := git(ctx, r.dir, "diff", "--name-only", "origin/"+base+"...HEAD")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// Diff returns the full diff between base and HEAD.
func (r *Repo) Diff(ctx context.Context, base string) (string, error) {
	out, err := git(ctx, r.dir, "diff", "origin/"+base+"...HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// StripAuthorTrailers rewrites the HEAD commit message without
// Co-Authored-By or generated-with attribution lines. The agent is told not
// to add them; this is the backstop before a push.
func (r *Repo) StripAuthorTrailers(ctx context.Context) error {
	sha, err := r.HeadSHA(ctx)
	if err != nil {
		return err
	}
	msg, err := r.CommitMessage(ctx, sha)
	if err != nil {
		return err
	}

	var kept []string
	changed := false
	for _, line := range strings.Split(msg, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Co-Authored-By:") || strings.Contains(trimmed, "Generated with") {
			changed = true
			continue
		}
		kept = append(kept, line)
	}
	if !changed {
		return nil
	}

	clean := strings.TrimSpace(strings.Join(kept, "\n"))
	if _, err := git(ctx, r.dir, "commit", "--amend", "-m", clean); err != nil {
		return fmt.Errorf("amend commit: %w", err)
	}
	return nil
}

// HasUncommittedChanges reports whether the worktree is dirty.
func (r *Repo) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := git(ctx, r.dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}
