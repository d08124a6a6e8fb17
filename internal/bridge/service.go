// Package bridge implements the synchronization engine behind the GitBridge
// API: it applies file mutations to the working copy of the active profile
// and reflects each one upstream as exactly one commit and push.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/gray247/gitbridge/internal/status"
	"github.com/gray247/gitbridge/internal/workspace"
)

var (
	// ErrSafeModeViolation is returned when a delete is attempted while the
	// active profile has safe mode enabled.
	ErrSafeModeViolation = errors.New("deletion disabled by safe mode")

	// ErrUnknownProfile is returned when activation names a profile that
	// does not exist.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrNoActiveProfile is returned when an operation arrives before any
	// profile has been activated.
	ErrNoActiveProfile = errors.New("no active profile")
)

// PushError reports a push that failed after the local commit was created.
// The commit is not rolled back; CommitHash identifies the local commit the
// operator needs to reconcile manually.
type PushError struct {
	CommitHash string
	Err        error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push failed, local commit %s is ahead of the remote: %v", e.CommitHash, e.Err)
}

func (e *PushError) Unwrap() error {
	return e.Err
}

// ProfileSummary is the credential-free view of a profile exposed by the API
type ProfileSummary struct {
	Name       string `json:"name"`
	Repository string `json:"repo"`
}

// HealthReport is a snapshot of the active profile's working copy state
type HealthReport struct {
	// Repository is the active profile's repository identifier
	Repository string

	// Branch is the branch commits are pushed to
	Branch string

	// Path is the resolved working copy root
	Path string

	// Clean reports whether the working tree matches the last commit
	Clean bool

	// SafeMode reports whether destructive operations are gated
	SafeMode bool

	// LastPush is the outcome of the most recent sync sequence
	LastPush *status.PushStatus
}

// Service is the synchronization engine consumed by the HTTP layer. Mutating
// operations block until the full mutate, commit and push sequence settles.
//
//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service
type Service interface {
	// Upload creates or overwrites a file and syncs the change upstream.
	// Returns the normalized relative path of the written file.
	Upload(ctx context.Context, path string, content string) (string, error)

	// Move relocates a file and syncs the change upstream
	Move(ctx context.Context, src, dst string) error

	// Delete removes a file and syncs the change upstream. Fails with
	// ErrSafeModeViolation while the active profile has safe mode enabled.
	Delete(ctx context.Context, path string) error

	// Tree lists the relative paths of every file in the working copy
	Tree(ctx context.Context) ([]string, error)

	// Health reports the state of the active profile's working copy
	Health(ctx context.Context) (*HealthReport, error)

	// VerifyUpload reports existence, size and modification time of a path.
	// A missing file is a normal result, not an error.
	VerifyUpload(ctx context.Context, path string) (*workspace.FileInfo, error)

	// Profiles lists the known profiles without their credentials
	Profiles(ctx context.Context) ([]ProfileSummary, error)

	// Activate makes the named profile active, cloning its repository if
	// the local path does not hold one yet
	Activate(ctx context.Context, name string) error
}
