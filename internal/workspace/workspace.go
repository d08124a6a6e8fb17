// Package workspace performs file mutations on the working copy of the
// active profile. Every operation sanitizes its paths, acts on exactly one
// file, and leaves the tree without half-written content: uploads go through
// a temp-file-plus-rename so a partially written file is never observable.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/gray247/gitbridge/internal/pathutil"
)

// GitDirName is the version control metadata directory excluded from
// tree listings.
const GitDirName = ".git"

var (
	// ErrNotFound is returned when the source of a move or the target of a
	// delete does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrConflict is returned when the destination of a move already exists.
	// Moves never overwrite implicitly.
	ErrConflict = errors.New("destination already exists")

	// ErrDestinationUnwritable is returned when the parent directory of a
	// move destination cannot be created.
	ErrDestinationUnwritable = errors.New("destination is not writable")
)

// Workspace is bound to the working copy root of the active profile.
// Its operations are pure filesystem actions; staging and committing are the
// sync coordinator's job.
type Workspace struct {
	root string
}

// New creates a Workspace rooted at the given directory. The directory must
// already exist (the coordinator clones before constructing a workspace).
func New(root string) (*Workspace, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace root is not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", absRoot)
	}

	return &Workspace{root: absRoot}, nil
}

// Root returns the absolute path of the working copy root.
func (w *Workspace) Root() string {
	return w.root
}

// resolve sanitizes a client-supplied path and returns both its normalized
// relative form and the absolute path confined to the workspace root.
func (w *Workspace) resolve(p string) (rel string, full string, err error) {
	rel, err = pathutil.Sanitize(p)
	if err != nil {
		return "", "", err
	}

	full, err = pathutil.Confine(w.root, rel)
	if err != nil {
		return "", "", err
	}

	return rel, full, nil
}

// Upload writes content to the given path, creating parent directories as
// needed and silently overwriting an existing file. The content is written
// to a temporary file in the destination directory and renamed into place,
// so readers never observe a partial write. Returns the normalized relative
// path of the written file.
func (w *Workspace) Upload(path string, content []byte) (string, error) {
	rel, full, err := w.resolve(path)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create parent directories for %s: %w", rel, err)
	}

	// The temp file must live in the destination directory: rename is only
	// atomic within a single filesystem.
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(full), uuid.NewString()))
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}

	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize %s: %w", rel, err)
	}

	return rel, nil
}

// Move relocates src to dst. It fails with ErrNotFound if src does not
// exist, ErrConflict if dst already exists, and ErrDestinationUnwritable if
// the parent of dst cannot be created. Returns the normalized relative
// source and destination paths.
func (w *Workspace) Move(src, dst string) (srcRel, dstRel string, err error) {
	srcRel, srcFull, err := w.resolve(src)
	if err != nil {
		return "", "", err
	}
	dstRel, dstFull, err := w.resolve(dst)
	if err != nil {
		return "", "", err
	}

	if _, err := os.Lstat(srcFull); err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: %s", ErrNotFound, srcRel)
		}
		return "", "", fmt.Errorf("failed to stat %s: %w", srcRel, err)
	}

	if _, err := os.Lstat(dstFull); err == nil {
		return "", "", fmt.Errorf("%w: %s", ErrConflict, dstRel)
	}

	// Anything blocking the destination's parent chain surfaces here.
	if err := os.MkdirAll(filepath.Dir(dstFull), 0750); err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrDestinationUnwritable, dstRel, err)
	}

	if err := os.Rename(srcFull, dstFull); err != nil {
		return "", "", fmt.Errorf("failed to move %s to %s: %w", srcRel, dstRel, err)
	}

	return srcRel, dstRel, nil
}

// Delete removes the file at the given path. It fails with ErrNotFound if
// the path does not exist. Emptied parent directories are left in place.
// Returns the normalized relative path of the removed file.
func (w *Workspace) Delete(path string) (string, error) {
	rel, full, err := w.resolve(path)
	if err != nil {
		return "", err
	}

	if _, err := os.Lstat(full); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	if err := os.Remove(full); err != nil {
		return "", fmt.Errorf("failed to delete %s: %w", rel, err)
	}

	return rel, nil
}
