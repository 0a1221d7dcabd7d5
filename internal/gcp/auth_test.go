package gcp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdcPathOverrides(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/creds.json")
	assert.Equal(t, "/tmp/creds.json", adcPath())

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("CLOUDSDK_CONFIG", "/tmp/gcloud")
	assert.Equal(t, "/tmp/gcloud/application_default_credentials.json", adcPath())
}

func TestCredentialsFresh(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("CLOUDSDK_CONFIG", dir)

	now := time.Now()

	// No credential file at all.
	assert.False(t, CredentialsFresh(now))

	credFile := filepath.Join(dir, "application_default_credentials.json")
	require.NoError(t, os.WriteFile(credFile, []byte("{}"), 0o600))

	assert.True(t, CredentialsFresh(now))

	stale := now.Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(credFile, stale, stale))
	assert.False(t, CredentialsFresh(now))
}
