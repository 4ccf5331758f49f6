// Package fsys implements the FileSystem port and the path-safety,
// file-block-applying, and shell-verifying mechanics ApplyVerifyTask
// needs: path validation, file-write mechanics, and subprocess-capture
// for the verifier, narrowed from a
// general-purpose action-registry shape to microfactory's one
// applier ("overwrite_file") and one verifier (a configured shell
// command).
package fsys

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// PathGuard resolves a step-supplied relative path against a workspace
// root, rejecting absolute paths, parent-traversal, and any path with
// a ".git" component.
type PathGuard struct {
	Root string
}

// NewPathGuard returns a guard rooted at the given workspace directory.
func NewPathGuard(root string) PathGuard {
	return PathGuard{Root: filepath.Clean(root)}
}

// Resolve validates relPath and returns its absolute location under Root.
func (g PathGuard) Resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "path validation: empty path")
	}
	if strings.ContainsRune(relPath, 0) {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "path validation: %q contains a null byte", relPath)
	}
	if filepath.IsAbs(relPath) {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "path validation: %q is absolute", relPath)
	}

	clean := filepath.Clean(filepath.ToSlash(relPath))
	for _, part := range strings.Split(clean, "/") {
		switch part {
		case "..":
			return "", schema.NewErrorf(schema.ErrCodeValidation, "path validation: %q escapes the workspace", relPath)
		case ".git":
			return "", schema.NewErrorf(schema.ErrCodeValidation, "path validation: %q touches .git", relPath)
		}
	}

	abs := filepath.Join(g.Root, clean)
	rel, err := filepath.Rel(g.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "path validation: %q escapes the workspace", relPath)
	}
	if err := g.rejectSymlinkEscape(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// rejectSymlinkEscape walks abs's existing ancestor directories and
// resolves any symlink among them, rejecting the path if the resolved
// target falls outside Root.
// A path's own leaf component may not exist yet (WriteFile creates it),
// so only existing ancestors are checked.
func (g PathGuard) rejectSymlinkEscape(abs string) error {
	dir := filepath.Dir(abs)
	for {
		info, err := os.Lstat(dir)
		if err != nil {
			if dir == g.Root || dir == filepath.Dir(dir) {
				return nil
			}
			dir = filepath.Dir(dir)
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return schema.NewErrorf(schema.ErrCodeValidation, "path validation: cannot resolve symlink %q: %v", dir, err).WithCause(err)
			}
			rel, err := filepath.Rel(g.Root, resolved)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return schema.NewErrorf(schema.ErrCodeValidation, "path validation: %q escapes the workspace via symlink", abs)
			}
		}
		if dir == g.Root || dir == filepath.Dir(dir) {
			return nil
		}
		dir = filepath.Dir(dir)
	}
}
