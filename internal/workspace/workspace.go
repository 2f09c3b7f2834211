// Package workspace manages per-task git checkouts under a base directory.
//
// Every task gets a short id derived from a fresh UUID. The id is embedded in
// both the branch name and the workspace directory name, which is what lets a
// later review comment on the same branch find and reuse the checkout.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ajibigad/codebot/internal/gitops"
	"github.com/ajibigad/codebot/internal/models"
)

// IDLength is the number of hex characters in a workspace id.
const IDLength = 7

var shortIDPattern = regexp.MustCompile(`^[0-9a-f]{7}$`)

// Manager creates, locates, and reuses workspaces under a base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a Manager rooted at baseDir, creating it if needed.
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	return &Manager{baseDir: baseDir}, nil
}

// BaseDir returns the root directory workspaces live under.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// ShortID returns a fresh 7-character hex workspace id.
func ShortID() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// BranchName builds the task branch: u/codebot/[TICKET-ID/]<id>[/<slug>].
func BranchName(ticketID, slug, id string) string {
	parts := []string{"u", "codebot"}
	if ticketID != "" {
		parts = append(parts, ticketID)
	}
	parts = append(parts, id)
	if slug != "" {
		parts = append(parts, Slugify(slug))
	}
	return strings.Join(parts, "/")
}

// DirName builds the workspace directory name: task_[TICKET-ID_]<id>.
func DirName(ticketID, id string) string {
	if ticketID != "" {
		return "task_" + ticketID + "_" + id
	}
	return "task_" + id
}

// Slugify lowercases a summary and reduces it to a short branch-safe token.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	return slug
}

// ExtractID pulls the workspace id out of a task branch name. It returns
// empty for branches the bot did not create.
func ExtractID(branch string) string {
	parts := strings.Split(branch, "/")
	if len(parts) < 3 || parts[0] != "u" || parts[1] != "codebot" {
		return ""
	}
	for _, p := range parts[2:] {
		if shortIDPattern.MatchString(p) {
			return p
		}
	}
	return ""
}

// Locate finds an existing workspace directory for an id. Directory names
// carry an optional ticket segment, so both task_<id> and task_<ticket>_<id>
// match.
func (m *Manager) Locate(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "task_"+id || strings.HasSuffix(name, "_"+id) {
			return filepath.Join(m.baseDir, name), true
		}
	}
	return "", false
}

// Create clones repoURL into a new workspace directory and checks out a new
// branch from baseBranch. When baseBranch is empty the remote default is used.
func (m *Manager) Create(ctx context.Context, repoURL, ticketID, slug, baseBranch string) (*models.Workspace, *gitops.Repo, error) {
	id := ShortID()
	dir := filepath.Join(m.baseDir, DirName(ticketID, id))

	repo, err := gitops.Clone(ctx, repoURL, dir)
	if err != nil {
		return nil, nil, err
	}
	if baseBranch != "" {
		if err := repo.Checkout(ctx, baseBranch); err != nil {
			return nil, nil, err
		}
	}

	branch := BranchName(ticketID, slug, id)
	if err := repo.CheckoutNew(ctx, branch); err != nil {
		return nil, nil, err
	}

	return &models.Workspace{ID: id, Path: dir, Branch: branch}, repo, nil
}

// Reuse opens an existing workspace, checks out the branch, and pulls the
// latest remote state so the agent sees the commits under review.
func (m *Manager) Reuse(ctx context.Context, path, branch string) (*models.Workspace, *gitops.Repo, error) {
	repo := gitops.Open(path)
	if err := repo.Fetch(ctx); err != nil {
		return nil, nil, err
	}
	if err := repo.Checkout(ctx, branch); err != nil {
		return nil, nil, err
	}
	if err := repo.Pull(ctx, branch); err != nil {
		return nil, nil, err
	}
	return &models.Workspace{ID: ExtractID(branch), Path: path, Branch: branch}, repo, nil
}

// CloneForBranch clones repoURL into a new directory named after the branch
// id and checks out an existing remote branch. This covers review comments on
// branches whose workspace was cleaned up or created on another host.
func (m *Manager) CloneForBranch(ctx context.Context, repoURL, branch string) (*models.Workspace, *gitops.Repo, error) {
	id := ExtractID(branch)
	if id == "" {
		id = ShortID()
	}
	dir := filepath.Join(m.baseDir, DirName("", id))

	repo, err := gitops.Clone(ctx, repoURL, dir)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Checkout(ctx, branch); err != nil {
		return nil, nil, err
	}
	return &models.Workspace{ID: id, Path: dir, Branch: branch}, repo, nil
}

// Remove deletes a workspace directory. Used by retention cleanup.
func (m *Manager) Remove(path string) error {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(m.baseDir)+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s: outside workspace root", path)
	}
	return os.RemoveAll(clean)
}
