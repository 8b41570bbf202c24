// Package committer materializes a generated artifact onto a branch of the
// task's target repository and pushes it. Each commit runs in a throwaway
// clone; either the push succeeds and the hash is returned, or the caller
// sees an error and no partial state.
package committer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultTimeout bounds clone and push operations.
const DefaultTimeout = 120 * time.Second

const maxSummaryChars = 200

// Config carries the Git identity and credentials used for commits.
type Config struct {
	// Username is the committer name. Default: "loom-bot".
	Username string

	// Email is the committer email. Default: "loom-bot@localhost".
	Email string

	// SSHKeyPath is the private key used for SSH remotes. Empty relies
	// on ambient credentials.
	SSHKeyPath string

	// Token authenticates HTTP(S) remotes as a basic-auth password.
	Token string

	// Timeout bounds clone and push. Default: DefaultTimeout.
	Timeout time.Duration
}

// Request is one commit of a generated artifact.
type Request struct {
	// RepositoryURL is the remote to push to.
	RepositoryURL string

	// Branch is the target branch, created from HEAD when it exists
	// neither locally nor under remotes/origin.
	Branch string

	// OutputPath is the directory inside the repository the artifact is
	// written under.
	OutputPath string

	// Files maps artifact-relative paths to file contents.
	Files map[string]string

	// AnalysisTitle names the requirement in the commit subject. Empty
	// falls back to "new requirement".
	AnalysisTitle string

	// RequirementText is summarized into the commit body.
	RequirementText string
}

// Result reports the pushed commit.
type Result struct {
	CommitHash   string   `json:"commit_hash"`
	FilesChanged []string `json:"files_changed"`
}

// ValidationError reports a commit request that can never succeed as
// given. The pipeline fails such tasks immediately instead of retrying.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Committer pushes generated artifacts through throwaway clones.
type Committer struct {
	config Config
	logger *slog.Logger
}

// New creates a Committer with the given identity and credentials.
func New(config Config) *Committer {
	if config.Username == "" {
		config.Username = "loom-bot"
	}
	if config.Email == "" {
		config.Email = "loom-bot@localhost"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Committer{
		config: config,
		logger: slog.Default().With("component", "pipeline.committer"),
	}
}

// fileEntry pairs a worktree-relative path with its content.
type fileEntry struct {
	rel     string
	content string
}

// Commit clones the repository, writes the artifact onto the requested
// branch and pushes it. The temporary clone is removed on every path;
// removal failures are logged, not returned.
func (c *Committer) Commit(ctx context.Context, req Request) (*Result, error) {
	name, entries, err := validate(req)
	if err != nil {
		return nil, err
	}

	auth, err := buildAuth(c.config, req.RepositoryURL)
	if err != nil {
		return nil, err
	}

	workdir, err := os.MkdirTemp("", "loom-"+name+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workdir); err != nil {
			c.logger.Warn("failed to remove working directory", "path", workdir, "error", err)
		}
	}()

	cloneCtx, cancelClone := context.WithTimeout(ctx, c.config.Timeout)
	defer cancelClone()

	repo, err := gogit.PlainCloneContext(cloneCtx, workdir, false, &gogit.CloneOptions{
		URL:  req.RepositoryURL,
		Auth: auth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := checkoutBranch(repo, worktree, req.Branch); err != nil {
		return nil, err
	}

	changed := make([]string, 0, len(entries))
	for _, entry := range entries {
		target := filepath.Join(workdir, filepath.FromSlash(entry.rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", entry.rel, err)
		}
		if err := os.WriteFile(target, []byte(entry.content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", entry.rel, err)
		}
		changed = append(changed, entry.rel)
	}

	for _, rel := range changed {
		if _, err := worktree.Add(rel); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}

	hash, err := worktree.Commit(commitMessage(req.AnalysisTitle, req.RequirementText), &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  c.config.Username,
			Email: c.config.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	pushCtx, cancelPush := context.WithTimeout(ctx, c.config.Timeout)
	defer cancelPush()

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", req.Branch, req.Branch))
	err = repo.PushContext(pushCtx, &gogit.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to push branch %s: %w", req.Branch, err)
	}

	c.logger.Info("pushed generated artifact",
		"branch", req.Branch,
		"commit", hash.String(),
		"files", len(changed),
	)

	return &Result{CommitHash: hash.String(), FilesChanged: changed}, nil
}

// validate checks the request and returns the derived repository name plus
// the files to write, sorted by worktree-relative path.
func validate(req Request) (string, []fileEntry, error) {
	name := RepoName(req.RepositoryURL)
	if name == "" {
		return "", nil, &ValidationError{Field: "repositoryUrl", Message: fmt.Sprintf("no repository name in %q", req.RepositoryURL)}
	}
	if req.Branch == "" {
		return "", nil, &ValidationError{Field: "branch", Message: "branch cannot be empty"}
	}
	if len(req.Files) == 0 {
		return "", nil, &ValidationError{Field: "files", Message: "artifact contains no files"}
	}

	entries := make([]fileEntry, 0, len(req.Files))
	for artifact, content := range req.Files {
		rel := path.Join(req.OutputPath, artifact)
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return "", nil, &ValidationError{Field: "files", Message: fmt.Sprintf("path %q escapes the worktree", artifact)}
		}
		entries = append(entries, fileEntry{rel: rel, content: content})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	return name, entries, nil
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// RepoName derives a name from a repository URL by stripping the scheme
// and the .git suffix and collapsing everything else to hyphen-separated
// alphanumerics. An empty result means the URL is unusable.
func RepoName(repoURL string) string {
	name := strings.TrimSpace(repoURL)
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	name = strings.TrimSuffix(name, ".git")
	name = nonAlphanumeric.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

// checkoutBranch switches the worktree to branch: a local ref is checked
// out directly, a remotes/origin ref seeds a new local branch, and when
// neither exists the branch is created from current HEAD.
func checkoutBranch(repo *gogit.Repository, worktree *gogit.Worktree, branch string) error {
	local := plumbing.NewBranchReferenceName(branch)

	if _, err := repo.Reference(local, true); err == nil {
		if err := worktree.Checkout(&gogit.CheckoutOptions{Branch: local}); err != nil {
			return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
		}
		return nil
	}

	remote := plumbing.NewRemoteReferenceName("origin", branch)
	if ref, err := repo.Reference(remote, true); err == nil {
		if err := worktree.Checkout(&gogit.CheckoutOptions{Branch: local, Hash: ref.Hash(), Create: true}); err != nil {
			return fmt.Errorf("failed to checkout remote branch %s: %w", branch, err)
		}
		return nil
	}

	if err := worktree.Checkout(&gogit.CheckoutOptions{Branch: local, Create: true}); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return nil
}

// commitMessage builds the conventional-commit message for an artifact.
func commitMessage(title, requirement string) string {
	if title == "" {
		title = "new requirement"
	}
	summary := requirement
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars] + "..."
	}
	return fmt.Sprintf("feat: implement %s\n\n%s", title, summary)
}
