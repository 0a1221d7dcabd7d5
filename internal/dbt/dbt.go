// Package dbt shells out to the dbt CLI. The tool never reimplements dbt
// behavior; it only prepares arguments, working state and environment, then
// hands off and streams output through.
package dbt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

// Invocation describes one dbt subprocess run
type Invocation struct {
	// Command is the dbt subcommand, e.g. "build" or "source freshness"
	Command string
	Target  models.Target
	// Select holds already-decorated selectors passed through to --select
	Select      []string
	Exclude     []string
	FullRefresh bool
	// Vars is rendered as a YAML-ish dict for --vars
	Vars map[string]string
	// ProfilesDir overrides dbt's profile lookup, used for non-dev targets
	// that run against a checked-in CI profile.
	ProfilesDir string
	Quiet       bool
}

// Args renders the command line arguments for the invocation
func (inv Invocation) Args() []string {
	args := strings.Fields(inv.Command)
	if inv.Quiet {
		args = append([]string{"--quiet"}, args...)
	}

	if len(inv.Select) > 0 {
		args = append(args, "--select")
		args = append(args, inv.Select...)
	}
	if len(inv.Exclude) > 0 {
		args = append(args, "--exclude")
		args = append(args, inv.Exclude...)
	}
	args = append(args, "--target", string(inv.Target))
	if inv.FullRefresh {
		args = append(args, "--full-refresh")
	}
	if len(inv.Vars) > 0 {
		args = append(args, "--vars", renderVars(inv.Vars))
	}
	if !inv.Target.IsDev() {
		args = append(args, "--use-colors=false")
		if inv.ProfilesDir != "" {
			args = append(args, "--profiles-dir", inv.ProfilesDir)
		}
	}
	return args
}

// renderVars formats vars as an inline YAML mapping, sorted for stable output
func renderVars(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, quoteIfNeeded(vars[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func quoteIfNeeded(value string) string {
	if _, err := strconv.Atoi(value); err == nil {
		return value
	}
	if value == "true" || value == "false" {
		return value
	}
	return strconv.Quote(value)
}

// Run executes dbt with the invocation's arguments, streaming its output to
// the user's terminal.
func Run(ctx context.Context, inv Invocation) error {
	cmd := exec.CommandContext(ctx, "dbt", inv.Args()...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.ExternalToolError("dbt", err).
			WithContext("args", strings.Join(inv.Args(), " "))
	}
	return nil
}

// DecorateSelector adds dbt graph operators around a model name
func DecorateSelector(name string, upstream, downstream bool) string {
	out := name
	if upstream {
		out = "+" + out
	}
	if downstream {
		out = out + "+"
	}
	return out
}
