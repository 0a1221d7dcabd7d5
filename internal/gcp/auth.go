// Package gcp handles Google Cloud credential hygiene. API access itself goes
// through the cloud client libraries; this package only makes sure the
// application-default credentials behind them are likely to still work before
// a long interactive flow starts.
package gcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"dbtkit/internal/ui"
	"dbtkit/pkg/errors"
)

// Tokens minted from application-default credentials stop refreshing some
// time after login. Credentials older than this get a proactive reauth offer
// instead of a mid-command failure.
const adcMaxAge = 18 * time.Hour

// adcPath returns the location of the application-default credentials file
func adcPath() string {
	if path := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); path != "" {
		return path
	}
	configDir := os.Getenv("CLOUDSDK_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config", "gcloud")
	}
	return filepath.Join(configDir, "application_default_credentials.json")
}

// CredentialsFresh reports whether the credential file exists and was
// refreshed recently enough to trust.
func CredentialsFresh(now time.Time) bool {
	info, err := os.Stat(adcPath())
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) < adcMaxAge
}

// EnsureAuth checks credential freshness and offers to rerun the gcloud login
// flow when they look stale. Disabled by the auth_check user setting.
func EnsureAuth(ctx context.Context, enabled bool) error {
	if !enabled || CredentialsFresh(time.Now()) {
		return nil
	}

	ui.ShowWarning("Google Cloud credentials are missing or stale")
	reauth, err := ui.Confirm("Run 'gcloud auth application-default login' now?", true)
	if err != nil {
		return err
	}
	if !reauth {
		return nil
	}
	return Login(ctx)
}

// Login runs the interactive gcloud ADC login flow
func Login(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "gcloud", "auth", "application-default", "login")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.ExternalToolError("gcloud", err).
			WithSuggestions("Install the Google Cloud SDK and make sure gcloud is on PATH")
	}

	// Touch the credential file so the freshness check reflects the new login
	// even when gcloud reuses the existing file.
	now := time.Now()
	if err := os.Chtimes(adcPath(), now, now); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to update credential timestamp: %w", err)
	}
	return nil
}
