package scaffold

import (
	"context"
	"os"
	"os/exec"

	"dbtkit/pkg/errors"
)

// FormatFiles runs sqlfmt over the given SQL files
func FormatFiles(ctx context.Context, root string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	return runTool(ctx, root, "sqlfmt", files)
}

// LintFiles runs sqlfluff over the given SQL files
func LintFiles(ctx context.Context, root string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	return runTool(ctx, root, "sqlfluff", append([]string{"lint"}, files...))
}

func runTool(ctx context.Context, root, tool string, args []string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.ExternalToolError(tool, err).
			WithSuggestions("Install it with 'pipx install " + tool + "'")
	}
	return nil
}
