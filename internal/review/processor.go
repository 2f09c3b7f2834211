// Package review runs the PR comment pipeline: one worker drains the queue
// sequentially, so two comments on the same branch can never race a shared
// workspace.
package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ajibigad/codebot/internal/agent"
	"github.com/ajibigad/codebot/internal/classify"
	"github.com/ajibigad/codebot/internal/gitops"
	"github.com/ajibigad/codebot/internal/hosting"
	"github.com/ajibigad/codebot/internal/models"
	"github.com/ajibigad/codebot/internal/workspace"
)

// Recorder persists the outcome of a processed comment. Optional; a nil
// recorder disables history.
type Recorder interface {
	RecordComment(c models.ReviewComment, label models.Classification, outcome string) error
}

// Processor consumes the review queue and acts on each comment.
type Processor struct {
	queue      *Queue
	host       hosting.Client
	workspaces *workspace.Manager
	agent      agent.Runner
	classifier classify.Classifier
	marker     string
	recorder   Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessor wires the pipeline. marker is the signature appended to every
// reply; the ingress uses the same string to recognize the bot's own comments.
func NewProcessor(queue *Queue, host hosting.Client, workspaces *workspace.Manager, runner agent.Runner, classifier classify.Classifier, marker string) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		queue:      queue,
		host:       host,
		workspaces: workspaces,
		agent:      runner,
		classifier: classifier,
		marker:     marker,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetRecorder attaches a history recorder.
func (p *Processor) SetRecorder(r Recorder) {
	p.recorder = r
}

// Start launches the single worker goroutine.
func (p *Processor) Start() {
	p.wg.Add(1)
	go p.loop()
	log.Println("Review processor started")
}

// Stop cancels intake and waits for the in-flight comment to finish.
func (p *Processor) Stop() {
	p.cancel()
	p.wg.Wait()
	log.Println("Review processor stopped")
}

func (p *Processor) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case c := <-p.queue.ch:
			p.process(c)
		}
	}
}

// process handles one comment end to end. Failures are logged and reported
// back to the commenter; they never stop the worker.
func (p *Processor) process(c models.ReviewComment) {
	// The work itself runs under a background context so a shutdown lets
	// the current comment drain instead of half-finishing a push.
	ctx := context.Background()

	label, outcome, err := p.handle(ctx, &c)
	if err != nil {
		log.Printf("Failed to process %s on PR #%d: %v", c.Kind, c.PRNumber, err)
		p.replyBestEffort(ctx, c, fmt.Sprintf("I ran into a problem while handling this comment:\n\n```\n%v\n```", err))
		outcome = "error: " + err.Error()
	}

	if p.recorder != nil {
		if rerr := p.recorder.RecordComment(c, label, outcome); rerr != nil {
			log.Printf("Failed to record comment %d: %v", c.CommentID, rerr)
		}
	}
}

func (p *Processor) handle(ctx context.Context, c *models.ReviewComment) (models.Classification, string, error) {
	// Issue comments arrive without a head branch; resolve it from the PR.
	if c.BranchName == "" {
		pr, err := p.host.PRDetails(ctx, c.Owner, c.Repo, c.PRNumber)
		if err != nil {
			return "", "", fmt.Errorf("resolve PR branch: %w", err)
		}
		c.BranchName = pr.HeadBranch
		if c.PRTitle == "" {
			c.PRTitle = pr.Title
		}
		if c.PRBody == "" {
			c.PRBody = pr.Body
		}
	}

	// Pull the thread for inline replies so the classifier sees context.
	if c.Kind == models.CommentKindReviewComment && c.InReplyTo != 0 && len(c.Thread) == 0 {
		thread, err := p.host.CommentThread(ctx, c.Owner, c.Repo, c.PRNumber, c.CommentID)
		if err != nil {
			log.Printf("Could not fetch thread for comment %d: %v", c.CommentID, err)
		} else {
			c.Thread = thread
		}
	}

	// Changed files are classification context only; failing to fetch them
	// degrades the verdict, not the pipeline.
	if files, err := p.host.ChangedFiles(ctx, c.Owner, c.Repo, c.PRNumber); err != nil {
		log.Printf("Could not fetch changed files for PR #%d: %v", c.PRNumber, err)
	} else {
		c.PRFiles = files
	}

	decision, err := p.classifier.Classify(ctx, *c)
	if err != nil {
		return "", "", fmt.Errorf("classify: %w", err)
	}
	log.Printf("Comment %d on PR #%d classified as %s: %s", c.CommentID, c.PRNumber, decision.Label, decision.Reasoning)

	switch decision.Label {
	case models.ClassificationAmbiguous:
		if err := p.reply(ctx, *c, decision.ClarificationQuestion); err != nil {
			return decision.Label, "", err
		}
		return decision.Label, "asked for clarification", nil

	case models.ClassificationQuery:
		if err := p.answer(ctx, *c); err != nil {
			return decision.Label, "", err
		}
		return decision.Label, "answered", nil

	case models.ClassificationChangeRequest:
		if err := p.applyChange(ctx, *c); err != nil {
			if errors.Is(err, errNoNewCommit) {
				msg := "I looked into this but did not end up making a code change. " +
					"If you expected one, could you spell out what should change?"
				if rerr := p.reply(ctx, *c, msg); rerr != nil {
					return decision.Label, "", rerr
				}
				return decision.Label, "no changes made", nil
			}
			return decision.Label, "", err
		}
		return decision.Label, "changes pushed", nil
	}

	return decision.Label, "", fmt.Errorf("unhandled classification %q", decision.Label)
}

// answer runs the agent read-only inside the workspace and posts its response.
func (p *Processor) answer(ctx context.Context, c models.ReviewComment) error {
	ws, _, err := p.ensureWorkspace(ctx, c)
	if err != nil {
		return err
	}

	response, err := p.agent.RunTask(ctx, ws.Path, queryPrompt(c),
		"You are answering a reviewer's question about this repository. "+
			"Do not modify any files. Answer concisely in Markdown.")
	if err != nil {
		return fmt.Errorf("answer query: %w", err)
	}
	return p.reply(ctx, c, response)
}

// applyChange runs the agent in edit mode, verifies it committed, pushes, and
// refreshes the PR description.
func (p *Processor) applyChange(ctx context.Context, c models.ReviewComment) error {
	ws, repo, err := p.ensureWorkspace(ctx, c)
	if err != nil {
		return err
	}

	before, err := repo.HeadSHA(ctx)
	if err != nil {
		return err
	}

	summary, err := p.agent.RunTask(ctx, ws.Path, changePrompt(c),
		"Make the requested change and commit it with a clear message. "+
			"Do not add Co-Authored-By trailers or tool attribution to the commit message. "+
			"Do not push.")
	if err != nil {
		return fmt.Errorf("apply change: %w", err)
	}

	after, err := repo.HeadSHA(ctx)
	if err != nil {
		return err
	}
	if after == before {
		return errNoNewCommit
	}

	if err := repo.StripAuthorTrailers(ctx); err != nil {
		log.Printf("Could not strip commit trailers: %v", err)
	}
	if err := repo.Push(ctx, ws.Branch); err != nil {
		return err
	}

	if err := p.refreshDescription(ctx, c, repo); err != nil {
		// The change is already pushed; a stale description is not worth
		// failing the whole comment over.
		log.Printf("Could not refresh PR #%d description: %v", c.PRNumber, err)
	}

	msg, err := repo.CommitMessage(ctx, after)
	if err != nil || strings.TrimSpace(msg) == "" {
		msg = summary
	}
	return p.reply(ctx, c, "Done. I pushed a commit for this:\n\n"+quoteBlock(firstLine(msg)))
}

// refreshDescription regenerates the PR body from the branch's full diff.
func (p *Processor) refreshDescription(ctx context.Context, c models.ReviewComment, repo *gitops.Repo) error {
	pr, err := p.host.PRDetails(ctx, c.Owner, c.Repo, c.PRNumber)
	if err != nil {
		return err
	}

	diff, err := repo.Diff(ctx, pr.BaseBranch)
	if err != nil {
		return err
	}
	if diff == "" {
		return nil
	}

	body, err := p.agent.Prompt(ctx, descriptionPrompt(pr.Title, diff))
	if err != nil {
		return err
	}

	files, err := repo.ChangedFiles(ctx, pr.BaseBranch)
	if err == nil && len(files) > 0 && len(files) <= 5 {
		body += "\n\n## Files Changed\n"
		for _, f := range files {
			body += "- `" + f + "`\n"
		}
	}
	return p.host.UpdatePRDescription(ctx, c.Owner, c.Repo, c.PRNumber, body)
}

// ensureWorkspace reuses the checkout whose directory carries the branch's
// embedded id, or clones fresh when none exists on this host.
func (p *Processor) ensureWorkspace(ctx context.Context, c models.ReviewComment) (*models.Workspace, *gitops.Repo, error) {
	id := workspace.ExtractID(c.BranchName)
	if path, ok := p.workspaces.Locate(id); ok {
		log.Printf("Reusing workspace %s for branch %s", path, c.BranchName)
		return p.workspaces.Reuse(ctx, path, c.BranchName)
	}
	log.Printf("Cloning fresh workspace for branch %s", c.BranchName)
	return p.workspaces.CloneForBranch(ctx, c.RepoURL, c.BranchName)
}

// reply posts a response with the bot signature appended.
func (p *Processor) reply(ctx context.Context, c models.ReviewComment, body string) error {
	signed := strings.TrimSpace(body) + "\n\n---\n*" + p.marker + "*"
	if err := p.host.Reply(ctx, c, signed); err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	return nil
}

func (p *Processor) replyBestEffort(ctx context.Context, c models.ReviewComment, body string) {
	if err := p.reply(ctx, c, body); err != nil {
		log.Printf("Could not post error reply on PR #%d: %v", c.PRNumber, err)
	}
}

func queryPrompt(c models.ReviewComment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A reviewer asked a question on pull request %q.\n", c.PRTitle)
	writeLocation(&b, c)
	fmt.Fprintf(&b, "\nQuestion from %s:\n%s\n\nAnswer the question based on the code in this repository.", c.Author, c.Body)
	return b.String()
}

func changePrompt(c models.ReviewComment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A reviewer requested a change on pull request %q.\n", c.PRTitle)
	writeLocation(&b, c)
	fmt.Fprintf(&b, "\nRequest from %s:\n%s\n\nMake the requested change and commit it.", c.Author, c.Body)
	return b.String()
}

func writeLocation(b *strings.Builder, c models.ReviewComment) {
	if c.FilePath != "" {
		fmt.Fprintf(b, "The comment is on %s line %d:\n%s\n", c.FilePath, c.Line, c.DiffHunk)
	}
	if len(c.Thread) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range c.Thread {
			fmt.Fprintf(b, "%s: %s\n", t.Author, t.Body)
		}
	}
}

func descriptionPrompt(title, diff string) string {
	return fmt.Sprintf(`Write a pull request description for %q from this diff.

Use two sections: "## Task Description" summarizing the intent, and
"## Changes Made" listing the notable changes. Output only the Markdown body.

%s`, title, diff)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func quoteBlock(s string) string {
	return "> " + s
}
