// Package gitops wraps the go-git operations the sync coordinator needs:
// clone-if-missing, per-path staging, commit, push and fetch against a
// single configured branch.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

const (
	remoteName = "origin"

	commitAuthorName  = "GitBridge"
	commitAuthorEmail = "gitbridge@localhost"
)

// ErrNothingToCommit is returned by Commit when the staged tree matches
// HEAD, e.g. an upload that rewrote a file with identical content.
var ErrNothingToCommit = errors.New("nothing to commit")

// Client defines the git operations used by the sync coordinator
type Client interface {
	// Stage adds the given workspace-relative paths to the index. A path
	// whose file was removed stages the deletion.
	Stage(paths ...string) error

	// Commit records the staged changes and returns the new commit hash
	Commit(message string) (string, error)

	// Push updates the configured branch on the remote
	Push(ctx context.Context) error

	// Fetch refreshes remote state, typically before a push retry
	Fetch(ctx context.Context) error

	// IsClean reports whether the working tree matches HEAD
	IsClean() (bool, error)

	// Head returns the current HEAD commit hash
	Head() (string, error)
}

// Options configures access to a repository clone
type Options struct {
	// URL is the remote repository URL
	URL string

	// Branch is the single branch commits are pushed to
	Branch string

	// Path is the local clone path
	Path string

	// Token is the credential used for clone, fetch and push. Empty means
	// unauthenticated access.
	Token string
}

// repository implements Client over a go-git worktree
type repository struct {
	repo   *git.Repository
	branch string
	auth   transport.AuthMethod
}

// Open opens the clone at opts.Path, cloning from opts.URL first if the
// path holds no repository, and ensures the configured branch is checked
// out. The returned client is bound to that branch.
func Open(ctx context.Context, opts Options) (Client, error) {
	auth := authMethod(opts.URL, opts.Token)

	repo, err := git.PlainOpen(opts.Path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		slog.Info("Cloning repository", "url", redacted(opts.URL), "path", opts.Path, "branch", opts.Branch)
		repo, err = git.PlainCloneContext(ctx, opts.Path, false, &git.CloneOptions{
			URL:           opts.URL,
			Auth:          auth,
			ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
			SingleBranch:  true,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", opts.Path, err)
	}

	r := &repository{
		repo:   repo,
		branch: opts.Branch,
		auth:   auth,
	}

	if err := r.checkout(); err != nil {
		return nil, err
	}

	return r, nil
}

// authMethod builds HTTP basic auth from a token. GitHub accepts any
// non-empty username when the password is a PAT. Token auth only applies to
// HTTP remotes; local and SSH remotes carry their own credentials.
func authMethod(url, token string) transport.AuthMethod {
	if token == "" || !strings.HasPrefix(url, "http") {
		return nil
	}
	return &githttp.BasicAuth{
		Username: "git",
		Password: token,
	}
}

// redacted strips userinfo that may be embedded in a clone URL before it
// reaches the logs.
func redacted(url string) string {
	e, err := transport.NewEndpoint(url)
	if err != nil {
		return url
	}
	e.User = ""
	e.Password = ""
	return e.String()
}

// checkout ensures the configured branch is checked out, creating it from
// the current HEAD when it does not exist locally.
func (r *repository) checkout() error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(r.branch)
	err = worktree.Checkout(&git.CheckoutOptions{Branch: branchRef})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		err = worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true})
	}
	if err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", r.branch, err)
	}

	return nil
}

// Stage adds the given paths to the index
func (r *repository) Stage(paths ...string) error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	for _, path := range paths {
		if _, err := worktree.Add(path); err != nil {
			return fmt.Errorf("failed to stage %s: %w", path, err)
		}
	}

	return nil
}

// Commit records the staged changes and returns the new commit hash
func (r *repository) Commit(message string) (string, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthorName,
			Email: commitAuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrNothingToCommit
		}
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	return hash.String(), nil
}

// Push updates the configured branch on the remote
func (r *repository) Push(ctx context.Context) error {
	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", r.branch, r.branch))
	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       r.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push branch %s: %w", r.branch, err)
	}

	return nil
}

// Fetch refreshes remote state
func (r *repository) Fetch(ctx context.Context) error {
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       r.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch: %w", err)
	}

	return nil
}

// IsClean reports whether the working tree matches HEAD
func (r *repository) IsClean() (bool, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}

	return status.IsClean(), nil
}

// Head returns the current HEAD commit hash
func (r *repository) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD reference: %w", err)
	}

	return ref.Hash().String(), nil
}
