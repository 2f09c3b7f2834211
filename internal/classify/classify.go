// Package classify decides how the review worker should treat a comment.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ajibigad/codebot/internal/agent"
	"github.com/ajibigad/codebot/internal/models"
)

// Decision is the classifier verdict for one review comment.
type Decision struct {
	Label models.Classification
	// Reasoning is the model's short explanation, logged for operators.
	Reasoning string
	// ClarificationQuestion is set when Label is ambiguous and carries the
	// question to post back to the commenter.
	ClarificationQuestion string
}

// Classifier labels review comments.
type Classifier interface {
	Classify(ctx context.Context, c models.ReviewComment) (Decision, error)
}

// AgentClassifier asks the coding agent for a one-shot JSON verdict.
type AgentClassifier struct {
	runner agent.Runner
}

// NewAgentClassifier creates a classifier backed by the agent CLI.
func NewAgentClassifier(runner agent.Runner) *AgentClassifier {
	return &AgentClassifier{runner: runner}
}

type verdict struct {
	Type                  string `json:"type"`
	Reasoning             string `json:"reasoning"`
	ClarificationQuestion string `json:"clarification_question"`
}

// Classify implements Classifier. Any failure to get a clean verdict falls
// back to ambiguous, so an unreadable model response turns into a clarifying
// question instead of an unwanted code change.
func (a *AgentClassifier) Classify(ctx context.Context, c models.ReviewComment) (Decision, error) {
	out, err := a.runner.Prompt(ctx, buildPrompt(c))
	if err != nil {
		return Decision{}, fmt.Errorf("classification prompt: %w", err)
	}

	var v verdict
	if err := json.Unmarshal([]byte(extractJSON(out)), &v); err != nil {
		log.Printf("Unparseable classification %q, treating as ambiguous", truncate(out, 200))
		return Decision{
			Label:                 models.ClassificationAmbiguous,
			Reasoning:             "classifier returned unparseable output",
			ClarificationQuestion: defaultClarification,
		}, nil
	}

	label := models.Classification(v.Type)
	if !label.Valid() {
		log.Printf("Unknown classification label %q, treating as ambiguous", v.Type)
		label = models.ClassificationAmbiguous
	}

	d := Decision{
		Label:                 label,
		Reasoning:             v.Reasoning,
		ClarificationQuestion: v.ClarificationQuestion,
	}
	if d.Label == models.ClassificationAmbiguous && strings.TrimSpace(d.ClarificationQuestion) == "" {
		d.ClarificationQuestion = defaultClarification
	}
	return d, nil
}

const defaultClarification = "Could you clarify whether you would like me to make a code change here, or are you asking a question about the current implementation?"

func buildPrompt(c models.ReviewComment) string {
	var b strings.Builder
	b.WriteString("You are triaging a pull request review comment for an automated coding assistant.\n\n")
	fmt.Fprintf(&b, "Pull request: %s\n", c.PRTitle)
	if c.PRBody != "" {
		fmt.Fprintf(&b, "PR description:\n%s\n", truncate(c.PRBody, 2000))
	}
	if len(c.PRFiles) > 0 {
		fmt.Fprintf(&b, "Files changed in this PR: %s\n", strings.Join(c.PRFiles, ", "))
	}
	if c.FilePath != "" {
		fmt.Fprintf(&b, "\nThe comment is on %s line %d:\n%s\n", c.FilePath, c.Line, c.DiffHunk)
	}
	if len(c.Thread) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, t := range c.Thread {
			fmt.Fprintf(&b, "%s: %s\n", t.Author, t.Body)
		}
	}
	fmt.Fprintf(&b, "\nComment from %s:\n%s\n\n", c.Author, c.Body)
	b.WriteString(`Classify the comment as exactly one of:
- "query": a question or remark that needs a textual answer, no code change
- "change_request": a request to modify the code on this branch
- "ambiguous": unclear intent, needs a clarifying question

Respond with only a JSON object:
{"type": "...", "reasoning": "...", "clarification_question": "..."}
Set clarification_question only when type is "ambiguous".`)
	return b.String()
}

// extractJSON pulls the first JSON object out of model output that may be
// wrapped in prose or a code fence.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
