package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"dbtkit/internal/common"
	"dbtkit/pkg/errors"
)

// MoveRequest describes moving or renaming an existing model
type MoveRequest struct {
	// OldName is the current full model name
	OldName string
	// OldPath is the current SQL file path relative to the project root
	OldPath string
	// Spec describes the destination model
	Spec ModelSpec
	// Safe keeps the old model as a forwarding view so downstream consumers
	// outside the project keep working until they migrate.
	Safe bool
}

// MoveModel relocates a model's SQL and YAML files. New files are written
// before old ones are removed; a failure midway leaves the new files cleaned
// up and the original model intact.
func MoveModel(root string, req MoveRequest) error {
	if err := req.Spec.Validate(); err != nil {
		return err
	}
	newName := req.Spec.FullName()
	if newName == req.OldName {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Model is already named %s", newName))
	}

	oldSQL, err := common.WithinRoot(root, req.OldPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid model path")
	}
	oldYAML := strings.TrimSuffix(oldSQL, ".sql") + ".yml"
	newBase := filepath.Join(root, req.Spec.RelPath())
	newSQL := newBase + ".sql"
	newYAML := newBase + ".yml"

	sqlContent, err := os.ReadFile(oldSQL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileNotFound,
			fmt.Sprintf("Cannot read model file %s", oldSQL))
	}
	yamlContent, err := os.ReadFile(oldYAML)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	hasYAML := err == nil

	for _, path := range []string{newSQL, newYAML} {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrCodeFileExists, fmt.Sprintf("%s already exists", path))
		}
	}
	if err := os.MkdirAll(filepath.Dir(newBase), common.DirPermissionNormal); err != nil {
		return err
	}

	var written []string
	cleanup := func() {
		for _, path := range written {
			_ = os.Remove(path)
		}
	}

	if err := os.WriteFile(newSQL, sqlContent, common.FilePermissionNormal); err != nil {
		return err
	}
	written = append(written, newSQL)

	if hasYAML {
		renamed := renameInSchema(string(yamlContent), req.OldName, newName)
		if err := os.WriteFile(newYAML, []byte(renamed), common.FilePermissionNormal); err != nil {
			cleanup()
			return err
		}
		written = append(written, newYAML)
	}

	if req.Safe {
		if err := os.WriteFile(oldSQL, []byte(forwardingView(newName)), common.FilePermissionNormal); err != nil {
			cleanup()
			return err
		}
		if hasYAML {
			if err := os.WriteFile(oldYAML, []byte(forwardingSchema(req.OldName, newName)), common.FilePermissionNormal); err != nil {
				cleanup()
				return err
			}
		}
		return nil
	}

	if err := os.Remove(oldSQL); err != nil {
		cleanup()
		return err
	}
	if hasYAML {
		if err := os.Remove(oldYAML); err != nil {
			return err
		}
	}
	return nil
}

// renameInSchema rewrites the model name in a schema file, touching nothing
// else so hand-written formatting and comments survive the move.
func renameInSchema(content, oldName, newName string) string {
	pattern := regexp.MustCompile(`(name:\s*)` + regexp.QuoteMeta(oldName) + `\b`)
	return pattern.ReplaceAllString(content, "${1}"+newName)
}

// forwardingView is the SQL body left behind by a safe move
func forwardingView(newName string) string {
	return fmt.Sprintf(`{{
    config(
        materialized='view',
    )
}}

select * from {{ ref('%s') }}
`, newName)
}

// forwardingSchema marks the leftover model as a temporary copy so it can be
// found and removed once consumers have migrated.
func forwardingSchema(oldName, newName string) string {
	return fmt.Sprintf(`version: 2
models:
  - name: %s
    description: Temporary forwarding view for %s, kept during migration.
    meta:
      is_tmp_old_copy: true
`, oldName, newName)
}
