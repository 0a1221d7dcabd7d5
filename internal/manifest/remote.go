package manifest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"

	"dbtkit/pkg/errors"
)

const (
	stateObjectName = "manifest.json"

	// Cached production manifests older than this are refreshed from the bucket
	prodManifestMaxAge = 2 * time.Hour
)

// StateStore reads and writes the published dbt state in a GCS bucket.
// Production lookups always use the last-published remote manifest, never the
// user's local compiled state.
type StateStore struct {
	client *storage.Client
}

// NewStateStore creates a state store using application-default credentials
func NewStateStore(ctx context.Context) (*StateStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStateBucket, "Failed to create storage client")
	}
	return &StateStore{client: client}, nil
}

// Close releases the underlying client
func (s *StateStore) Close() error { return s.client.Close() }

// DownloadProdManifest fetches the last-published production manifest into
// dest unless a fresh local copy already exists. Force skips the age check.
func (s *StateStore) DownloadProdManifest(ctx context.Context, bucket, dest string, force bool) error {
	if !force && fileAge(dest) < prodManifestMaxAge {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	reader, err := s.client.Bucket(bucket).Object(stateObjectName).NewReader(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStateBucket,
			fmt.Sprintf("Failed to fetch production manifest from bucket %s", bucket)).
			WithSuggestions("Check the state_bucket setting in pyproject.toml",
				"Verify you have storage.objects.get on the bucket")
	}
	defer reader.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return errors.Wrap(err, errors.ErrCodeStateBucket, "Failed to download production manifest")
	}
	return nil
}

// UploadManifest publishes a freshly built manifest as the new state
func (s *StateStore) UploadManifest(ctx context.Context, bucket, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	writer := s.client.Bucket(bucket).Object(stateObjectName).NewWriter(ctx)
	if _, err := io.Copy(writer, in); err != nil {
		_ = writer.Close()
		return errors.Wrap(err, errors.ErrCodeStateBucket, "Failed to upload manifest to state bucket")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStateBucket, "Failed to upload manifest to state bucket")
	}
	return nil
}

// fileAge returns the time since last modification, or a very large duration
// when the file does not exist.
func fileAge(path string) time.Duration {
	info, err := os.Stat(path)
	if err != nil {
		return 365 * 24 * time.Hour
	}
	return time.Since(info.ModTime())
}
