// Package agent invokes the coding agent CLI in headless mode.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner is the narrow surface the pipeline needs from the agent: one-shot
// prompts for classification and summarization, and full task runs inside a
// workspace.
type Runner interface {
	// Prompt runs a single constrained prompt with no workspace and returns
	// the raw text output.
	Prompt(ctx context.Context, prompt string) (string, error)

	// RunTask runs the agent inside workDir with a task description and an
	// appended system prompt, returning the agent's final text response.
	RunTask(ctx context.Context, workDir, description, systemPrompt string) (string, error)
}

// CLIRunner shells out to the agent binary (claude by default).
type CLIRunner struct {
	bin     string
	timeout time.Duration
}

// NewCLIRunner creates a runner for the given agent binary.
func NewCLIRunner(bin string, timeout time.Duration) *CLIRunner {
	if bin == "" {
		bin = "claude"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &CLIRunner{bin: bin, timeout: timeout}
}

// Installed checks that the agent binary is on PATH.
func (r *CLIRunner) Installed() error {
	if _, err := exec.LookPath(r.bin); err != nil {
		return fmt.Errorf("agent binary %q not found: %w", r.bin, err)
	}
	return nil
}

// Prompt implements Runner.
func (r *CLIRunner) Prompt(ctx context.Context, prompt string) (string, error) {
	return r.run(ctx, "", r.bin, "-p", prompt, "--output-format", "text")
}

// RunTask implements Runner.
func (r *CLIRunner) RunTask(ctx context.Context, workDir, description, systemPrompt string) (string, error) {
	args := []string{
		"-p", "Task: " + description,
		"--output-format", "text",
		"--dangerously-skip-permissions",
	}
	if systemPrompt != "" {
		args = append(args, "--append-system-prompt", systemPrompt)
	}
	return r.run(ctx, workDir, r.bin, args...)
}

func (r *CLIRunner) run(ctx context.Context, dir, bin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("agent timed out after %s", r.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("agent failed: %s", msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
