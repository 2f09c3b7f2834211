// Package orchestrator executes submitted tasks: it prepares a workspace,
// runs the coding agent, and opens the pull request.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ajibigad/codebot/internal/agent"
	"github.com/ajibigad/codebot/internal/gitops"
	"github.com/ajibigad/codebot/internal/hosting"
	"github.com/ajibigad/codebot/internal/models"
	"github.com/ajibigad/codebot/internal/workspace"
)

// Orchestrator implements the scheduler's Runner.
type Orchestrator struct {
	workspaces *workspace.Manager
	agent      agent.Runner
	host       hosting.Client
}

// New wires an Orchestrator.
func New(workspaces *workspace.Manager, runner agent.Runner, host hosting.Client) *Orchestrator {
	return &Orchestrator{workspaces: workspaces, agent: runner, host: host}
}

// Run executes one task end to end and returns the PR that came out of it.
func (o *Orchestrator) Run(ctx context.Context, prompt models.TaskPrompt) (*models.TaskResult, error) {
	owner, repoName, err := hosting.ParseRepoURL(prompt.RepositoryURL)
	if err != nil {
		return nil, err
	}

	ws, repo, err := o.workspaces.Create(ctx, prompt.RepositoryURL, prompt.TicketID, prompt.TicketSummary, prompt.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}
	log.Printf("Workspace %s ready on branch %s", ws.Path, ws.Branch)

	base := prompt.BaseBranch
	if base == "" {
		base = repo.DefaultBranch(ctx)
	}

	before, err := repo.HeadSHA(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := o.agent.RunTask(ctx, ws.Path, taskPrompt(prompt), taskSystemPrompt); err != nil {
		return nil, fmt.Errorf("run agent: %w", err)
	}

	after, err := repo.HeadSHA(ctx)
	if err != nil {
		return nil, err
	}
	if after == before {
		return nil, fmt.Errorf("agent completed without committing any changes")
	}

	if err := repo.StripAuthorTrailers(ctx); err != nil {
		log.Printf("Could not strip commit trailers: %v", err)
	}
	if err := repo.Push(ctx, ws.Branch); err != nil {
		return nil, err
	}

	body, err := o.prBody(ctx, prompt, repo, base)
	if err != nil {
		return nil, err
	}

	prURL, err := o.host.CreatePR(ctx, owner, repoName, prTitle(prompt), body, ws.Branch, base)
	if err != nil {
		return nil, err
	}
	log.Printf("Opened %s", prURL)

	return &models.TaskResult{
		PRURL:         prURL,
		BranchName:    ws.Branch,
		WorkspacePath: ws.Path,
	}, nil
}

func prTitle(prompt models.TaskPrompt) string {
	title := prompt.TicketSummary
	if title == "" {
		title = firstLine(prompt.Description)
	}
	if prompt.TicketID != "" {
		title = prompt.TicketID + ": " + title
	}
	if len(title) > 72 {
		title = title[:72]
	}
	return title
}

// prBody builds the pull request description: the task statement, an
// agent-written summary of the diff, and the changed files when the list is
// short enough to be useful.
func (o *Orchestrator) prBody(ctx context.Context, prompt models.TaskPrompt, repo *gitops.Repo, base string) (string, error) {
	var b strings.Builder
	b.WriteString("## Task Description\n")
	b.WriteString(prompt.Description)
	b.WriteString("\n")

	diff, err := repo.Diff(ctx, base)
	if err != nil {
		return "", err
	}
	if diff != "" {
		summary, err := o.agent.Prompt(ctx, changesPrompt(diff))
		if err != nil {
			log.Printf("Could not summarize changes: %v", err)
		} else {
			b.WriteString("\n## Changes Made\n")
			b.WriteString(summary)
			b.WriteString("\n")
		}
	}

	files, err := repo.ChangedFiles(ctx, base)
	if err == nil && len(files) > 0 && len(files) <= 5 {
		b.WriteString("\n## Files Changed\n")
		for _, f := range files {
			b.WriteString("- `" + f + "`\n")
		}
	}
	return b.String(), nil
}

const taskSystemPrompt = "Complete the task, then commit your changes with a clear message. " +
	"Do not add Co-Authored-By trailers or tool attribution to the commit message. Do not push."

func taskPrompt(prompt models.TaskPrompt) string {
	var b strings.Builder
	b.WriteString(prompt.Description)
	if prompt.TicketID != "" {
		fmt.Fprintf(&b, "\n\nTicket: %s", prompt.TicketID)
		if prompt.TicketSummary != "" {
			fmt.Fprintf(&b, " (%s)", prompt.TicketSummary)
		}
	}
	if prompt.TestCommand != "" {
		fmt.Fprintf(&b, "\n\nVerify your work by running: %s", prompt.TestCommand)
	}
	return b.String()
}

func changesPrompt(diff string) string {
	return "Summarize this diff as a short Markdown bullet list of the notable changes. " +
		"Output only the list.\n\n" + diff
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
