// Package status provides push outcome tracking and persistence for the
// GitBridge server.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StatusFileName is the name of the per-profile status file
	StatusFileName = "status.json"
)

// Persistence defines the interface for push status persistence
type Persistence interface {
	// Save saves the push status to persistent storage for a specific profile
	Save(ctx context.Context, profileName string, status *PushStatus) error

	// Load loads the push status from persistent storage for a specific
	// profile. Returns a zero-valued status if none was recorded yet.
	Load(ctx context.Context, profileName string) (*PushStatus, error)
}

// filePersistence implements Persistence using the local filesystem
type filePersistence struct {
	basePath string
}

// NewFilePersistence creates a new file-based status persistence.
// basePath is the base directory where per-profile status files are stored.
func NewFilePersistence(basePath string) Persistence {
	return &filePersistence{
		basePath: basePath,
	}
}

// Save writes the push status to a JSON file in a profile-specific directory
func (f *filePersistence) Save(_ context.Context, profileName string, status *PushStatus) error {
	profileDir := filepath.Join(f.basePath, profileName)
	if err := os.MkdirAll(profileDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for profile '%s': %w", profileName, err)
	}

	filePath := filepath.Join(profileDir, StatusFileName)

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for profile '%s': %w", profileName, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for profile '%s': %w", profileName, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for profile '%s': %w", profileName, err)
	}

	return nil
}

// Load reads the push status from a JSON file for a specific profile.
// Returns a status with PushPhaseNone if the file doesn't exist.
func (f *filePersistence) Load(_ context.Context, profileName string) (*PushStatus, error) {
	filePath := filepath.Join(f.basePath, profileName, StatusFileName)

	// #nosec G304 -- filePath is constructed from trusted internal sources (basePath + validated profileName)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No status recorded yet - this is OK for first run
			return &PushStatus{Phase: PushPhaseNone}, nil
		}
		return nil, fmt.Errorf("failed to read status file for profile '%s': %w", profileName, err)
	}

	var status PushStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for profile '%s': %w", profileName, err)
	}

	return &status, nil
}
