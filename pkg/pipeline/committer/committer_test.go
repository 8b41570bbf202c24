package committer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// newRemoteRepo builds a bare repository with an initial commit on the
// default branch and returns its path plus the default branch name.
func newRemoteRepo(t *testing.T) (string, string) {
	t.Helper()

	seed := t.TempDir()
	repo, err := gogit.PlainInit(seed, false)
	if err != nil {
		t.Fatalf("failed to init seed repo: %v", err)
	}

	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("# demo\n"), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	if _, err := worktree.Add("README.md"); err != nil {
		t.Fatalf("failed to add seed file: %v", err)
	}
	if _, err := worktree.Commit("initial commit", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Seed", Email: "seed@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("failed to commit seed file: %v", err)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("failed to resolve seed HEAD: %v", err)
	}

	bare := filepath.Join(t.TempDir(), "remote.git")
	if _, err := gogit.PlainClone(bare, true, &gogit.CloneOptions{URL: seed}); err != nil {
		t.Fatalf("failed to create bare remote: %v", err)
	}

	return bare, head.Name().Short()
}

// addRemoteBranch seeds an extra branch with one commit into the bare
// remote without touching its HEAD branch.
func addRemoteBranch(t *testing.T, remote, branch string) plumbing.Hash {
	t.Helper()

	work := t.TempDir()
	repo, err := gogit.PlainClone(work, false, &gogit.CloneOptions{URL: remote})
	if err != nil {
		t.Fatalf("failed to clone remote for branch seeding: %v", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	if err := worktree.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}); err != nil {
		t.Fatalf("failed to create branch %s: %v", branch, err)
	}

	if err := os.WriteFile(filepath.Join(work, "NOTES.md"), []byte("notes\n"), 0o644); err != nil {
		t.Fatalf("failed to write branch file: %v", err)
	}
	if _, err := worktree.Add("NOTES.md"); err != nil {
		t.Fatalf("failed to add branch file: %v", err)
	}
	hash, err := worktree.Commit("seed branch", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Seed", Email: "seed@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("failed to commit branch file: %v", err)
	}

	if err := repo.Push(&gogit.PushOptions{RemoteName: "origin"}); err != nil {
		t.Fatalf("failed to push seeded branch: %v", err)
	}

	return hash
}

func remoteBranchTip(t *testing.T, remote, branch string) *object.Commit {
	t.Helper()

	repo, err := gogit.PlainOpen(remote)
	if err != nil {
		t.Fatalf("failed to open remote: %v", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		t.Fatalf("failed to resolve branch %s on remote: %v", branch, err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		t.Fatalf("failed to read commit %s: %v", ref.Hash(), err)
	}
	return commit
}

func TestCommitter_Commit_NewBranch(t *testing.T) {
	remote, _ := newRemoteRepo(t)
	c := New(Config{Username: "tester", Email: "tester@example.com", Timeout: 30 * time.Second})

	result, err := c.Commit(context.Background(), Request{
		RepositoryURL:   remote,
		Branch:          "feature-login",
		OutputPath:      "src",
		Files:           map[string]string{"app.ts": "export const app = 1;\n", "lib/util.ts": "export const util = 2;\n"},
		AnalysisTitle:   "User login",
		RequirementText: "Build a login form with validation",
	})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	expectedFiles := []string{"src/app.ts", "src/lib/util.ts"}
	if len(result.FilesChanged) != len(expectedFiles) {
		t.Fatalf("expected %d changed files, got %v", len(expectedFiles), result.FilesChanged)
	}
	for i, want := range expectedFiles {
		if result.FilesChanged[i] != want {
			t.Errorf("expected changed file %q at %d, got %q", want, i, result.FilesChanged[i])
		}
	}

	tip := remoteBranchTip(t, remote, "feature-login")
	if tip.Hash.String() != result.CommitHash {
		t.Errorf("expected remote branch at %s, got %s", result.CommitHash, tip.Hash)
	}
	if !strings.HasPrefix(tip.Message, "feat: implement User login\n\n") {
		t.Errorf("unexpected commit message %q", tip.Message)
	}
	if !strings.Contains(tip.Message, "Build a login form") {
		t.Errorf("expected requirement summary in message, got %q", tip.Message)
	}

	if _, err := tip.File("src/app.ts"); err != nil {
		t.Errorf("expected src/app.ts in pushed tree: %v", err)
	}
	if _, err := tip.File("README.md"); err != nil {
		t.Errorf("expected seed README.md preserved in tree: %v", err)
	}
}

func TestCommitter_Commit_ExistingBranch(t *testing.T) {
	remote, defaultBranch := newRemoteRepo(t)
	before := remoteBranchTip(t, remote, defaultBranch)
	c := New(Config{Timeout: 30 * time.Second})

	result, err := c.Commit(context.Background(), Request{
		RepositoryURL:   remote,
		Branch:          defaultBranch,
		OutputPath:      "generated",
		Files:           map[string]string{"main.py": "print('hi')\n"},
		RequirementText: "print a greeting",
	})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	tip := remoteBranchTip(t, remote, defaultBranch)
	if tip.Hash.String() != result.CommitHash {
		t.Errorf("expected branch tip %s, got %s", result.CommitHash, tip.Hash)
	}
	if tip.NumParents() != 1 {
		t.Fatalf("expected one parent, got %d", tip.NumParents())
	}
	parent, err := tip.Parent(0)
	if err != nil {
		t.Fatalf("failed to read parent: %v", err)
	}
	if parent.Hash != before.Hash {
		t.Errorf("expected new commit on top of %s, got parent %s", before.Hash, parent.Hash)
	}
	if !strings.HasPrefix(tip.Message, "feat: implement new requirement\n\n") {
		t.Errorf("expected fallback title in message, got %q", tip.Message)
	}
}

func TestCommitter_Commit_RemoteOnlyBranch(t *testing.T) {
	remote, _ := newRemoteRepo(t)
	seeded := addRemoteBranch(t, remote, "develop")
	c := New(Config{Timeout: 30 * time.Second})

	result, err := c.Commit(context.Background(), Request{
		RepositoryURL:   remote,
		Branch:          "develop",
		OutputPath:      "src",
		Files:           map[string]string{"index.ts": "export {};\n"},
		AnalysisTitle:   "Index module",
		RequirementText: "add an index module",
	})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	tip := remoteBranchTip(t, remote, "develop")
	if tip.Hash.String() != result.CommitHash {
		t.Errorf("expected develop at %s, got %s", result.CommitHash, tip.Hash)
	}
	parent, err := tip.Parent(0)
	if err != nil {
		t.Fatalf("failed to read parent: %v", err)
	}
	if parent.Hash != seeded {
		t.Errorf("expected commit on top of seeded %s, got parent %s", seeded, parent.Hash)
	}
	if _, err := tip.File("NOTES.md"); err != nil {
		t.Errorf("expected seeded NOTES.md preserved: %v", err)
	}
}

func TestCommitter_Commit_ValidationErrors(t *testing.T) {
	c := New(Config{})
	files := map[string]string{"a.ts": "x"}

	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "unusable repository URL",
			req:  Request{RepositoryURL: "https://", Branch: "main", Files: files},
		},
		{
			name: "empty branch",
			req:  Request{RepositoryURL: "https://github.com/acme/shop.git", Files: files},
		},
		{
			name: "empty artifact",
			req:  Request{RepositoryURL: "https://github.com/acme/shop.git", Branch: "main"},
		},
		{
			name: "path escaping worktree",
			req: Request{
				RepositoryURL: "https://github.com/acme/shop.git",
				Branch:        "main",
				Files:         map[string]string{"../evil.ts": "x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Commit(context.Background(), tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRepoName(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://github.com/acme/shop.git", "github-com-acme-shop"},
		{"http://gitlab.local/team/api", "gitlab-local-team-api"},
		{"git@github.com:acme/shop.git", "git-github-com-acme-shop"},
		{"https://", ""},
		{"", ""},
		{".git", ""},
	}

	for _, tt := range tests {
		if got := RepoName(tt.url); got != tt.expected {
			t.Errorf("RepoName(%q): expected %q, got %q", tt.url, tt.expected, got)
		}
	}
}

func TestCommitMessage(t *testing.T) {
	long := strings.Repeat("requirement text ", 20)
	msg := commitMessage("Login page", long)

	if !strings.HasPrefix(msg, "feat: implement Login page\n\n") {
		t.Errorf("unexpected subject in %q", msg)
	}
	if !strings.HasSuffix(msg, "...") {
		t.Error("expected truncated requirement to end with ellipsis")
	}
	if len(msg) > len("feat: implement Login page\n\n")+maxSummaryChars+3 {
		t.Errorf("expected summary capped at %d chars, got %d", maxSummaryChars, len(msg))
	}

	short := commitMessage("", "do the thing")
	if short != "feat: implement new requirement\n\ndo the thing" {
		t.Errorf("unexpected message %q", short)
	}
}
