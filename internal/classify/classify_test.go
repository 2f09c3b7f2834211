package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ajibigad/codebot/internal/models"
)

// fakeAgent returns a canned one-shot response.
type fakeAgent struct {
	response string
	err      error
	prompt   string
}

func (f *fakeAgent) Prompt(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeAgent) RunTask(ctx context.Context, workDir, description, systemPrompt string) (string, error) {
	return "", errors.New("not used")
}

func testComment() models.ReviewComment {
	return models.ReviewComment{
		Kind:     models.CommentKindReviewComment,
		PRTitle:  "Fix parser",
		Author:   "alice",
		Body:     "should this handle empty input?",
		FilePath: "parser.go",
		Line:     10,
		DiffHunk: "@@ -1 +1 @@",
	}
}

func TestClassify_ParsesVerdict(t *testing.T) {
	agent := &fakeAgent{response: `{"type": "change_request", "reasoning": "asks for a rename"}`}
	c := NewAgentClassifier(agent)

	d, err := c.Classify(context.Background(), testComment())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if d.Label != models.ClassificationChangeRequest {
		t.Errorf("Expected change_request, got %s", d.Label)
	}
	if d.Reasoning != "asks for a rename" {
		t.Errorf("Reasoning lost: %q", d.Reasoning)
	}
}

func TestClassify_JSONInsideProse(t *testing.T) {
	agent := &fakeAgent{response: "Here is my verdict:\n```json\n{\"type\": \"query\", \"reasoning\": \"a question\"}\n```\nDone."}
	c := NewAgentClassifier(agent)

	d, err := c.Classify(context.Background(), testComment())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if d.Label != models.ClassificationQuery {
		t.Errorf("Expected query, got %s", d.Label)
	}
}

func TestClassify_GarbageFallsBackToAmbiguous(t *testing.T) {
	agent := &fakeAgent{response: "I cannot decide, sorry"}
	c := NewAgentClassifier(agent)

	d, err := c.Classify(context.Background(), testComment())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if d.Label != models.ClassificationAmbiguous {
		t.Errorf("Expected ambiguous fallback, got %s", d.Label)
	}
	if d.ClarificationQuestion == "" {
		t.Error("Expected a default clarification question")
	}
}

func TestClassify_UnknownLabelFallsBackToAmbiguous(t *testing.T) {
	agent := &fakeAgent{response: `{"type": "appreciation", "reasoning": "says thanks"}`}
	c := NewAgentClassifier(agent)

	d, err := c.Classify(context.Background(), testComment())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if d.Label != models.ClassificationAmbiguous {
		t.Errorf("Expected ambiguous for unknown label, got %s", d.Label)
	}
}

func TestClassify_AgentErrorPropagates(t *testing.T) {
	agent := &fakeAgent{err: errors.New("binary missing")}
	c := NewAgentClassifier(agent)

	if _, err := c.Classify(context.Background(), testComment()); err == nil {
		t.Error("Expected error when the agent cannot run")
	}
}

func TestClassify_PromptCarriesContext(t *testing.T) {
	agent := &fakeAgent{response: `{"type": "query"}`}
	c := NewAgentClassifier(agent)

	comment := testComment()
	comment.Thread = []models.ThreadComment{{Author: "bob", Body: "earlier reply"}}
	if _, err := c.Classify(context.Background(), comment); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	for _, want := range []string{"Fix parser", "parser.go", "earlier reply", comment.Body} {
		if !strings.Contains(agent.prompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}
