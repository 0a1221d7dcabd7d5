// Package git inspects the local repository to find which dbt files the user
// is currently working on. Only go-git is used; the git binary is never
// invoked.
package git

import (
	"path/filepath"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"dbtkit/pkg/errors"
)

// dbtFolders are the project directories whose SQL and YAML files are
// candidates for formatting and linting.
var dbtFolders = []string{"models", "macros", "tests", "seeds", "analyses"}

// StagedFiles returns the added or modified dbt files in the repository
// containing dir, relative to the repository root, sorted.
func StagedFiles(dir string) ([]string, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGit, "Not inside a git repository").
			WithContext("dir", dir)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGit, "Failed to open worktree")
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGit, "Failed to read repository status")
	}

	var files []string
	for path, fileStatus := range status {
		if !isChanged(fileStatus) {
			continue
		}
		if IsDbtFile(path) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func isChanged(s *gogit.FileStatus) bool {
	for _, code := range []gogit.StatusCode{s.Staging, s.Worktree} {
		switch code {
		case gogit.Added, gogit.Modified, gogit.Untracked:
			return true
		}
	}
	return false
}

// IsDbtFile reports whether a repository-relative path is a dbt source file
// that the formatter and linter should touch.
func IsDbtFile(path string) bool {
	ext := filepath.Ext(path)
	if ext != ".sql" && ext != ".yml" && ext != ".yaml" {
		return false
	}
	normalized := filepath.ToSlash(path)
	for _, folder := range dbtFolders {
		if strings.HasPrefix(normalized, folder+"/") {
			return true
		}
	}
	return false
}

// SQLFiles filters a file list down to SQL files
func SQLFiles(files []string) []string {
	var out []string
	for _, f := range files {
		if filepath.Ext(f) == ".sql" {
			out = append(out, f)
		}
	}
	return out
}
