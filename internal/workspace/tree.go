package workspace

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileInfo describes the result of a Stat query. Absence is a normal
// result, not an error: Exists is false and the remaining fields are zero.
type FileInfo struct {
	Exists   bool
	Path     string
	Size     int64
	Modified time.Time
}

// Files returns a lazy, restartable sequence of the relative paths of every
// regular file under the workspace root, excluding the version control
// metadata directory. The walk takes no lock: a caller iterating while a
// sync sequence runs may observe a mid-commit state.
func (w *Workspace) Files() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// A file disappearing mid-walk is expected when writes run
				// concurrently; anything else is surfaced to the caller.
				if os.IsNotExist(err) {
					return nil
				}
				yield("", err)
				return fs.SkipAll
			}

			if d.IsDir() {
				if d.Name() == GitDirName && path != w.root {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			rel, relErr := filepath.Rel(w.root, path)
			if relErr != nil {
				yield("", relErr)
				return fs.SkipAll
			}

			if !yield(filepath.ToSlash(rel), nil) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// List returns the sorted relative paths of every file in the workspace.
func (w *Workspace) List() ([]string, error) {
	files := []string{}
	for path, err := range w.Files() {
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// Stat sanitizes the given path and reports existence, byte size and last
// modification time. A missing file is reported with Exists set to false.
func (w *Workspace) Stat(path string) (*FileInfo, error) {
	rel, full, err := w.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileInfo{Exists: false, Path: rel}, nil
		}
		return nil, err
	}

	return &FileInfo{
		Exists:   true,
		Path:     rel,
		Size:     info.Size(),
		Modified: info.ModTime(),
	}, nil
}
