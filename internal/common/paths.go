// Package common holds small helpers shared across the internal packages.
package common

import (
	"fmt"
	"path/filepath"
	"strings"
)

// WithinRoot resolves a possibly relative path against a project root and
// rejects results that escape it. File-writing commands take user-supplied
// names and must never touch anything outside the project.
func WithinRoot(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(absRoot, resolved)
	}
	resolved = filepath.Clean(resolved)

	if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the project root", path)
	}
	return resolved, nil
}
