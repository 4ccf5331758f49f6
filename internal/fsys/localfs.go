package fsys

import (
	"os"
	"path/filepath"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

// LocalFS implements ports.FileSystem against a workspace directory on
// disk, narrowed to the two operations ApplyVerifyTask needs and routed
// through PathGuard on every call.
type LocalFS struct {
	guard PathGuard
	mode  os.FileMode
}

// NewLocalFS returns a FileSystem port adapter rooted at root.
func NewLocalFS(root string) *LocalFS {
	return &LocalFS{guard: NewPathGuard(root), mode: 0o644}
}

// WriteFile validates relPath and writes data, creating parent
// directories as needed (mirrors fsWriteAction's create_dirs default).
func (f *LocalFS) WriteFile(relPath string, data []byte) error {
	abs, err := f.guard.Resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "create parent dirs for %q: %v", relPath, err).WithCause(err)
	}
	if err := os.WriteFile(abs, data, f.mode); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "write %q: %v", relPath, err).WithCause(err)
	}
	return nil
}

// ReadFile validates relPath and returns its contents.
func (f *LocalFS) ReadFile(relPath string) ([]byte, error) {
	abs, err := f.guard.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read %q: %v", relPath, err).WithCause(err)
	}
	return data, nil
}
