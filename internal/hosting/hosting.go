// Package hosting talks to the GitHub API on behalf of the bot.
package hosting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/ajibigad/codebot/internal/models"
)

// Client is the hosting surface the pipeline needs. The review processor and
// the task orchestrator both depend on this interface so tests can substitute
// a fake.
type Client interface {
	// PRDetails fetches title, body, and head branch for a pull request.
	PRDetails(ctx context.Context, owner, repo string, number int) (*PR, error)

	// CommentThread returns the chain of review comments leading to the
	// given comment, oldest first.
	CommentThread(ctx context.Context, owner, repo string, number int, commentID int64) ([]models.ThreadComment, error)

	// ChangedFiles lists the file paths touched by a pull request.
	ChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error)

	// Reply posts a response to a review comment. Inline comments get a
	// threaded reply; issue comments and review summaries get a regular PR
	// comment.
	Reply(ctx context.Context, c models.ReviewComment, body string) error

	// CreatePR opens a pull request and returns its URL.
	CreatePR(ctx context.Context, owner, repo, title, body, head, base string) (string, error)

	// UpdatePRDescription replaces the pull request body.
	UpdatePRDescription(ctx context.Context, owner, repo string, number int, body string) error
}

// PR carries the pull request fields the pipeline reads.
type PR struct {
	Number     int
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
	URL        string
}

// GitHub implements Client against the GitHub REST API.
type GitHub struct {
	client *github.Client
}

// NewGitHub builds an authenticated client from a token.
func NewGitHub(ctx context.Context, token string) *GitHub {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GitHub{client: github.NewClient(oauth2.NewClient(ctx, ts))}
}

// BotLogin returns the authenticated account's login.
func (g *GitHub) BotLogin(ctx context.Context) (string, error) {
	user, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("get authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}

// PRDetails implements Client.
func (g *GitHub) PRDetails(ctx context.Context, owner, repo string, number int) (*PR, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("get PR %s/%s#%d: %w", owner, repo, number, err)
	}
	return &PR{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		URL:        pr.GetHTMLURL(),
	}, nil
}

// CommentThread implements Client. It walks in_reply_to links from the full
// comment list so the classifier sees the whole exchange, not just the
// triggering comment.
func (g *GitHub) CommentThread(ctx context.Context, owner, repo string, number int, commentID int64) ([]models.ThreadComment, error) {
	opts := &github.PullRequestListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	byID := make(map[int64]*github.PullRequestComment)
	for {
		comments, resp, err := g.client.PullRequests.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list PR comments: %w", err)
		}
		for _, c := range comments {
			byID[c.GetID()] = c
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	var thread []models.ThreadComment
	for id := commentID; id != 0; {
		c, ok := byID[id]
		if !ok {
			break
		}
		thread = append(thread, models.ThreadComment{
			Author: c.GetUser().GetLogin(),
			Body:   c.GetBody(),
		})
		id = c.GetInReplyTo()
	}

	// Reverse into chronological order.
	for i, j := 0, len(thread)-1; i < j; i, j = i+1, j-1 {
		thread[i], thread[j] = thread[j], thread[i]
	}
	return thread, nil
}

// ChangedFiles implements Client.
func (g *GitHub) ChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}
	var files []string
	for {
		page, resp, err := g.client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list PR files: %w", err)
		}
		for _, f := range page {
			files = append(files, f.GetFilename())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

// Reply implements Client.
func (g *GitHub) Reply(ctx context.Context, c models.ReviewComment, body string) error {
	if c.Kind == models.CommentKindReviewComment {
		// Reply in the inline thread. When the comment is itself a reply,
		// GitHub requires the thread root id.
		target := c.CommentID
		if c.InReplyTo != 0 {
			target = c.InReplyTo
		}
		_, _, err := g.client.PullRequests.CreateCommentInReplyTo(ctx, c.Owner, c.Repo, c.PRNumber, body, target)
		if err != nil {
			return fmt.Errorf("reply to review comment %d: %w", c.CommentID, err)
		}
		return nil
	}

	_, _, err := g.client.Issues.CreateComment(ctx, c.Owner, c.Repo, c.PRNumber, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("comment on PR #%d: %w", c.PRNumber, err)
	}
	return nil
}

// CreatePR implements Client.
func (g *GitHub) CreatePR(ctx context.Context, owner, repo, title, body, head, base string) (string, error) {
	pr, _, err := g.client.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
	})
	if err != nil {
		return "", fmt.Errorf("create PR %s/%s %s -> %s: %w", owner, repo, head, base, err)
	}
	return pr.GetHTMLURL(), nil
}

// UpdatePRDescription implements Client.
func (g *GitHub) UpdatePRDescription(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := g.client.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("update PR #%d description: %w", number, err)
	}
	return nil
}

// IssueCommentsSince returns PR conversation comments created at or after
// since, normalized for the review queue.
func (g *GitHub) IssueCommentsSince(ctx context.Context, owner, repo string, number int, since time.Time) ([]models.ReviewComment, error) {
	opts := &github.IssueListCommentsOptions{
		Since:       &since,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var out []models.ReviewComment
	for {
		comments, resp, err := g.client.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list issue comments for PR #%d: %w", number, err)
		}
		for _, c := range comments {
			out = append(out, models.ReviewComment{
				Kind:      models.CommentKindIssue,
				CommentID: c.GetID(),
				Owner:     owner,
				Repo:      repo,
				PRNumber:  number,
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ReviewCommentsSince returns inline review comments created at or after
// since, normalized for the review queue.
func (g *GitHub) ReviewCommentsSince(ctx context.Context, owner, repo string, number int, since time.Time) ([]models.ReviewComment, error) {
	opts := &github.PullRequestListCommentsOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var out []models.ReviewComment
	for {
		comments, resp, err := g.client.PullRequests.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list review comments for PR #%d: %w", number, err)
		}
		for _, c := range comments {
			out = append(out, models.ReviewComment{
				Kind:      models.CommentKindReviewComment,
				CommentID: c.GetID(),
				Owner:     owner,
				Repo:      repo,
				PRNumber:  number,
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				FilePath:  c.GetPath(),
				Line:      c.GetLine(),
				DiffHunk:  c.GetDiffHunk(),
				InReplyTo: c.GetInReplyTo(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ReviewsSince returns review summaries submitted at or after since. Approvals
// and change requests with no body get a stand-in body; a bodiless COMMENTED
// review is dropped because its inline comments arrive separately.
func (g *GitHub) ReviewsSince(ctx context.Context, owner, repo string, number int, since time.Time) ([]models.ReviewComment, error) {
	opts := &github.ListOptions{PerPage: 100}
	var out []models.ReviewComment
	for {
		reviews, resp, err := g.client.PullRequests.ListReviews(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list reviews for PR #%d: %w", number, err)
		}
		for _, r := range reviews {
			if r.GetSubmittedAt().Time.Before(since) {
				continue
			}
			body := strings.TrimSpace(r.GetBody())
			switch r.GetState() {
			case "APPROVED":
				if body == "" {
					body = "PR approved"
				}
			case "CHANGES_REQUESTED":
				if body == "" {
					body = "Changes requested"
				}
			case "COMMENTED":
				if body == "" {
					continue
				}
			default:
				continue
			}
			out = append(out, models.ReviewComment{
				Kind:      models.CommentKindReviewSummary,
				CommentID: r.GetID(),
				Owner:     owner,
				Repo:      repo,
				PRNumber:  number,
				Author:    r.GetUser().GetLogin(),
				Body:      body,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ParseRepoURL splits a clone or web URL into owner and repo name.
func ParseRepoURL(url string) (owner, repo string, err error) {
	s := strings.TrimSuffix(strings.TrimSpace(url), ".git")
	s = strings.TrimSuffix(s, "/")
	if i := strings.Index(s, "github.com"); i >= 0 {
		s = strings.TrimPrefix(s[i+len("github.com"):], ":")
		s = strings.TrimPrefix(s, "/")
	}
	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("cannot parse repository URL %q", url)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
