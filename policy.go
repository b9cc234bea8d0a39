package bridge

import (
	"fmt"
	"path/filepath"
	"strings"
)

// WorkspacePolicy is a PathPolicy confining file access to the
// workspace the client declared in its hello. Tools that touch the
// filesystem consult it before acting; the dispatcher itself never
// sees paths.
type WorkspacePolicy struct{}

// Validate reports an error when path resolves outside workspace. Both
// paths are resolved to absolute form first, so relative traversal
// tricks do not escape.
func (WorkspacePolicy) Validate(path, operation, workspace string) error {
	if workspace == "" {
		return fmt.Errorf("%s %q refused: client declared no workspace", operation, path)
	}

	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace %q: %w", workspace, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path %q: %w", path, err)
	}

	rel, err := filepath.Rel(absWorkspace, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s %q refused: outside workspace %q", operation, path, workspace)
	}
	return nil
}
