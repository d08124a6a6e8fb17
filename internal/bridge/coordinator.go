package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"

	"github.com/gray247/gitbridge/internal/config"
	"github.com/gray247/gitbridge/internal/gitops"
	"github.com/gray247/gitbridge/internal/status"
	"github.com/gray247/gitbridge/internal/workspace"
)

const (
	// pushAttempts bounds the push to one retry after a re-fetch
	pushAttempts = 2

	// pushRetryDelay is the pause before the single push retry
	pushRetryDelay = time.Second

	// lockFileName is the advisory lock taken on the clone while a sync
	// sequence runs, guarding against a second process on the same clone
	lockFileName = "gitbridge.lock"
)

// GitFactory opens the git client for a profile. Swappable in tests.
type GitFactory func(ctx context.Context, opts gitops.Options) (gitops.Client, error)

// Coordinator implements Service. It funnels every mutate, stage, commit and
// push sequence through a single mutex so at most one git-mutating sequence
// is in flight at a time; read-only queries go through the active session
// without taking it.
type Coordinator struct {
	cfg     *config.Config
	persist status.Persistence
	openGit GitFactory

	// mu serializes write sequences and profile activation
	mu sync.Mutex

	// active is the session for the current profile. Swapped only under mu,
	// read lock-free by the read-only operations.
	active atomic.Pointer[session]
}

// session is the per-activation state: everything a sync sequence touches
// that belongs to exactly one profile.
type session struct {
	profile   config.Profile
	workspace *workspace.Workspace
	git       gitops.Client
	lock      *flock.Flock
	lastPush  atomic.Pointer[status.PushStatus]
}

// Option is a function that configures the coordinator
type Option func(*Coordinator)

// WithGitFactory sets the factory used to open git clients
func WithGitFactory(f GitFactory) Option {
	return func(c *Coordinator) {
		c.openGit = f
	}
}

// WithStatusPersistence sets the push status persistence
func WithStatusPersistence(p status.Persistence) Option {
	return func(c *Coordinator) {
		c.persist = p
	}
}

// New creates a coordinator for the given profile configuration. No profile
// is active until Activate is called.
func New(cfg *config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		persist: status.NewFilePersistence("./data"),
		openGit: gitops.Open,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var _ Service = (*Coordinator)(nil)

// Activate makes the named profile active. It resolves the credential,
// clones the repository if the local path holds none, checks out the
// configured branch and swaps the session under the write lock, so an
// in-flight sync sequence can never observe a half-switched profile.
func (c *Coordinator) Activate(ctx context.Context, name string) error {
	profile, ok := c.cfg.Profile(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}

	// Missing credentials surface here, not mid-operation.
	token, err := profile.ResolveToken()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	gitClient, err := c.openGit(ctx, gitops.Options{
		URL:    profile.CloneURL(),
		Branch: profile.GetBranch(),
		Path:   profile.LocalPath,
		Token:  token,
	})
	if err != nil {
		return fmt.Errorf("failed to open repository for profile '%s': %w", name, err)
	}

	ws, err := workspace.New(profile.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to open working copy for profile '%s': %w", name, err)
	}

	lastPush, err := c.persist.Load(ctx, profile.Name)
	if err != nil {
		slog.Warn("Failed to load persisted push status", "profile", profile.Name, "error", err)
		lastPush = &status.PushStatus{Phase: status.PushPhaseNone}
	}

	sess := &session{
		profile:   *profile,
		workspace: ws,
		git:       gitClient,
		lock:      flock.New(filepath.Join(profile.LocalPath, workspace.GitDirName, lockFileName)),
	}
	sess.lastPush.Store(lastPush)

	c.active.Store(sess)
	slog.Info("Activated profile",
		"profile", profile.Name,
		"repository", profile.Repository,
		"branch", profile.GetBranch(),
		"path", ws.Root(),
		"safe_mode", profile.SafeMode)

	return nil
}

// Upload creates or overwrites a file and syncs the change upstream
func (c *Coordinator) Upload(ctx context.Context, path string, content string) (string, error) {
	var uploaded string
	err := c.runSync(ctx, func(sess *session) ([]string, string, error) {
		rel, err := sess.workspace.Upload(path, []byte(content))
		if err != nil {
			return nil, "", err
		}
		uploaded = rel
		return []string{rel}, "Upload " + rel, nil
	})
	if err != nil {
		return "", err
	}
	return uploaded, nil
}

// Move relocates a file and syncs the change upstream
func (c *Coordinator) Move(ctx context.Context, src, dst string) error {
	return c.runSync(ctx, func(sess *session) ([]string, string, error) {
		srcRel, dstRel, err := sess.workspace.Move(src, dst)
		if err != nil {
			return nil, "", err
		}
		// Staging the source records the deletion half of the move.
		return []string{srcRel, dstRel}, fmt.Sprintf("Move %s to %s", srcRel, dstRel), nil
	})
}

// Delete removes a file and syncs the change upstream
func (c *Coordinator) Delete(ctx context.Context, path string) error {
	return c.runSync(ctx, func(sess *session) ([]string, string, error) {
		if sess.profile.SafeMode {
			return nil, "", fmt.Errorf("%w: profile '%s'", ErrSafeModeViolation, sess.profile.Name)
		}
		rel, err := sess.workspace.Delete(path)
		if err != nil {
			return nil, "", err
		}
		return []string{rel}, "Delete " + rel, nil
	})
}

// runSync executes one complete sync sequence: acquire the write lock,
// apply the mutation, stage exactly the affected paths, commit and push.
// The lock is released on every exit path.
func (c *Coordinator) runSync(ctx context.Context, mutate func(*session) (paths []string, subject string, err error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.active.Load()
	if sess == nil {
		return ErrNoActiveProfile
	}

	if err := sess.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock working copy: %w", err)
	}
	defer func() {
		if err := sess.lock.Unlock(); err != nil {
			slog.Warn("Failed to unlock working copy", "error", err)
		}
	}()

	// A failed mutation surfaces immediately; nothing is staged or committed.
	paths, subject, err := mutate(sess)
	if err != nil {
		return err
	}

	if err := sess.git.Stage(paths...); err != nil {
		return fmt.Errorf("failed to stage %v: %w", paths, err)
	}

	message := fmt.Sprintf("%s at %s", subject, time.Now().UTC().Format(time.RFC3339))
	hash, err := sess.git.Commit(message)
	if errors.Is(err, gitops.ErrNothingToCommit) {
		// The mutation reproduced the committed state, e.g. an upload with
		// identical content. Nothing to push.
		slog.Info("Working tree already matches HEAD, skipping push", "operation", subject)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	pushErr := c.pushWithRetry(ctx, sess)
	c.record(ctx, sess, hash, pushErr)

	if pushErr != nil {
		// The local commit stands. Discarding the caller's change silently
		// would be worse than a manual reconciliation step.
		slog.Error("Push failed, local clone is ahead of the remote",
			"profile", sess.profile.Name,
			"commit", hash,
			"error", pushErr)
		return &PushError{CommitHash: hash, Err: pushErr}
	}

	slog.Info("Sync sequence completed", "operation", subject, "commit", hash)
	return nil
}

// pushWithRetry pushes to the remote, retrying once after a re-fetch when
// the first attempt fails (remote divergence, transient network error).
func (c *Coordinator) pushWithRetry(ctx context.Context, sess *session) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			slog.Warn("Retrying push after fetch", "profile", sess.profile.Name, "attempt", attempt)
			if fetchErr := sess.git.Fetch(ctx); fetchErr != nil {
				slog.Warn("Fetch before push retry failed", "error", fetchErr)
			}
		}
		return struct{}{}, sess.git.Push(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(pushRetryDelay)),
		backoff.WithMaxTries(pushAttempts),
	)
	return err
}

// record stores the sequence outcome for health reporting and persists it
// across restarts. Persistence failures are logged, not surfaced: the sync
// itself already settled.
func (c *Coordinator) record(ctx context.Context, sess *session, hash string, pushErr error) {
	now := time.Now().UTC()
	outcome := &status.PushStatus{
		Phase:      status.PushPhaseComplete,
		CommitHash: hash,
		Time:       &now,
	}
	if pushErr != nil {
		outcome.Phase = status.PushPhaseFailed
		outcome.Message = pushErr.Error()
	}

	sess.lastPush.Store(outcome)
	if err := c.persist.Save(ctx, sess.profile.Name, outcome); err != nil {
		slog.Warn("Failed to persist push status", "profile", sess.profile.Name, "error", err)
	}
}

// Tree lists the relative paths of every file in the working copy. It takes
// no write lock; results may reflect a mid-commit state when invoked
// concurrently with a sync sequence.
func (c *Coordinator) Tree(_ context.Context) ([]string, error) {
	sess := c.active.Load()
	if sess == nil {
		return nil, ErrNoActiveProfile
	}
	return sess.workspace.List()
}

// Health reports the state of the active profile's working copy
func (c *Coordinator) Health(_ context.Context) (*HealthReport, error) {
	sess := c.active.Load()
	if sess == nil {
		return nil, ErrNoActiveProfile
	}

	clean, err := sess.git.IsClean()
	if err != nil {
		return nil, fmt.Errorf("failed to check working tree: %w", err)
	}

	return &HealthReport{
		Repository: sess.profile.Repository,
		Branch:     sess.profile.GetBranch(),
		Path:       sess.workspace.Root(),
		Clean:      clean,
		SafeMode:   sess.profile.SafeMode,
		LastPush:   sess.lastPush.Load(),
	}, nil
}

// VerifyUpload reports existence, size and modification time of a path
func (c *Coordinator) VerifyUpload(_ context.Context, path string) (*workspace.FileInfo, error) {
	sess := c.active.Load()
	if sess == nil {
		return nil, ErrNoActiveProfile
	}
	return sess.workspace.Stat(path)
}

// Profiles lists the known profiles without their credentials
func (c *Coordinator) Profiles(_ context.Context) ([]ProfileSummary, error) {
	summaries := make([]ProfileSummary, 0, len(c.cfg.Profiles))
	for _, p := range c.cfg.Profiles {
		summaries = append(summaries, ProfileSummary{
			Name:       p.Name,
			Repository: p.Repository,
		})
	}
	return summaries, nil
}
