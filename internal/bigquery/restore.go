package bigquery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

// BigQuery keeps table history for seven days
const timeTravelWindow = 7 * 24 * time.Hour

var snapshotLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseSnapshotTime parses a user-supplied restore point. Accepted forms are
// epoch milliseconds, RFC 3339, "YYYY-MM-DD HH:MM:SS" and a bare date. The
// point must lie inside the time-travel window relative to now.
func ParseSnapshotTime(value string, now time.Time) (time.Time, error) {
	at, err := parseSnapshotValue(value)
	if err != nil {
		return time.Time{}, err
	}
	if at.After(now) {
		return time.Time{}, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Restore point %s is in the future", at.Format(time.RFC3339)))
	}
	if now.Sub(at) > timeTravelWindow {
		return time.Time{}, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Restore point %s is outside the 7 day time travel window", at.Format(time.RFC3339)))
	}
	return at, nil
}

func parseSnapshotValue(value string) (time.Time, error) {
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}
	for _, layout := range snapshotLayouts {
		if at, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return at, nil
		}
	}
	return time.Time{}, errors.New(errors.ErrCodeInvalidInput,
		fmt.Sprintf("Cannot parse restore point %q", value)).
		WithSuggestions("Use epoch milliseconds, an RFC 3339 timestamp or YYYY-MM-DD")
}

// SnapshotDecorator formats the time-travel table decorator for a point in time
func SnapshotDecorator(table string, at time.Time) string {
	return fmt.Sprintf("%s@%d", table, at.UnixMilli())
}

// RestoreTable copies the historical snapshot of a table into dest. The
// destination must not already exist; restores never overwrite live data.
func (c *Client) RestoreTable(ctx context.Context, ref models.TableRef, at time.Time, dest models.TableRef) error {
	exists, err := c.TableExists(ctx, dest)
	if err != nil {
		return err
	}
	if exists {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Destination table %s already exists", dest)).
			WithSuggestions("Pick a different destination or delete it first")
	}

	src := c.bq.DatasetInProject(ref.Project, ref.Dataset).Table(SnapshotDecorator(ref.Table, at))
	copier := c.table(dest).CopierFrom(src)
	job, err := copier.Run(ctx)
	if err != nil {
		return wrapAPIError(err, fmt.Sprintf("Failed to start restore of %s", ref))
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return wrapAPIError(err, fmt.Sprintf("Restore of %s failed", ref))
	}
	if err := status.Err(); err != nil {
		return wrapAPIError(err, fmt.Sprintf("Restore of %s failed", ref))
	}
	return nil
}
