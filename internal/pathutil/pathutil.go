// Package pathutil validates client-supplied file paths before they reach
// the filesystem. Every path-bearing field of an inbound request passes
// through Sanitize, and Confine re-checks containment against the working
// copy root after symlink resolution.
package pathutil

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ErrInvalidPath is returned when a client-supplied path fails validation.
var ErrInvalidPath = errors.New("invalid path")

// Sanitize validates a client-supplied relative path and returns its
// normalized, slash-separated form. It rejects absolute paths, parent
// directory traversal, and paths containing NUL or other control characters.
// Sanitize is idempotent: sanitizing an already-sanitized path returns it
// unchanged.
func Sanitize(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}

	for _, r := range p {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: path contains control characters", ErrInvalidPath)
		}
	}

	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: absolute paths are not allowed: %s", ErrInvalidPath, p)
	}

	// Collapse redundant separators and "." segments.
	cleaned := path.Clean(filepath.ToSlash(p))
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("%w: path resolves to the repository root", ErrInvalidPath)
	}

	for segment := range strings.SplitSeq(cleaned, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: parent traversal is not allowed: %s", ErrInvalidPath, p)
		}
	}

	// filepath.IsLocal catches anything the checks above missed, such as
	// Windows drive-relative forms.
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("%w: path is not local: %s", ErrInvalidPath, p)
	}

	return cleaned, nil
}

// Confine resolves the sanitized relative path rel against root and verifies
// the result still resides under root once symlinks are taken into account.
// It returns the absolute filesystem path to operate on.
func Confine(root, rel string) (string, error) {
	// Resolve symlinks in the root itself so the containment check compares
	// like with like.
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working copy root: %w", err)
	}

	// SecureJoin resolves any symlinks along the way and clamps the result
	// inside the root, defending against encoded traversal through links.
	full, err := securejoin.SecureJoin(resolvedRoot, filepath.FromSlash(rel))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}

	if full != resolvedRoot && !strings.HasPrefix(full, resolvedRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes the working copy: %s", ErrInvalidPath, rel)
	}

	return full, nil
}
