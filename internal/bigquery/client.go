// Package bigquery wraps the BigQuery API surface the tool needs: catalog
// listing, partition expiration reads and patches, deletes, schema fetches
// and time-travel restores. No retries beyond what the underlying client
// performs; a failure aborts the command with a user-visible error.
package bigquery

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

const millisPerDay = 24 * 60 * 60 * 1000

// Options configures the client
type Options struct {
	// Project used for job execution and as the default billing project
	Project string
	// ImpersonateServiceAccount, when set, runs every call as this service
	// account. Used for production operations.
	ImpersonateServiceAccount string
}

// Client is a thin wrapper over the BigQuery API client
type Client struct {
	bq *bq.Client
}

// NewClient creates a client using application-default credentials
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	var clientOpts []option.ClientOption
	if opts.ImpersonateServiceAccount != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: opts.ImpersonateServiceAccount,
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		})
		if err != nil {
			return nil, errors.BigQueryError("Failed to impersonate service account", err).
				WithContext("service_account", opts.ImpersonateServiceAccount)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}

	project := opts.Project
	if project == "" {
		project = bq.DetectProjectID
	}
	client, err := bq.NewClient(ctx, project, clientOpts...)
	if err != nil {
		return nil, errors.BigQueryError("Failed to create BigQuery client", err)
	}
	return &Client{bq: client}, nil
}

// Close releases the underlying client
func (c *Client) Close() error { return c.bq.Close() }

// ListDatasets returns the dataset ids of a project, sorted
func (c *Client) ListDatasets(ctx context.Context, project string) ([]string, error) {
	it := c.bq.DatasetsInProject(ctx, project)
	var datasets []string
	for {
		ds, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapAPIError(err, fmt.Sprintf("Failed to list datasets in project %s", project))
		}
		datasets = append(datasets, ds.DatasetID)
	}
	return datasets, nil
}

// ListTableNames returns the table and view names of a dataset
func (c *Client) ListTableNames(ctx context.Context, project, dataset string) ([]string, error) {
	it := c.bq.DatasetInProject(project, dataset).Tables(ctx)
	var names []string
	for {
		table, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapAPIError(err, fmt.Sprintf("Failed to list tables in %s.%s", project, dataset))
		}
		names = append(names, table.TableID)
	}
	return names, nil
}

// ListDatasetEntries returns the full catalog view of a dataset: every table
// and view with its type and observed partition expiration.
func (c *Client) ListDatasetEntries(ctx context.Context, project, dataset string) ([]models.CatalogEntry, error) {
	names, err := c.ListTableNames(ctx, project, dataset)
	if err != nil {
		return nil, err
	}

	entries := make([]models.CatalogEntry, 0, len(names))
	for _, name := range names {
		ref := models.TableRef{Project: project, Dataset: dataset, Table: name}
		md, err := c.metadata(ctx, ref)
		if err != nil {
			return nil, err
		}
		entry := models.CatalogEntry{Ref: ref, Type: models.TypeTable}
		if md.Type == bq.ViewTable {
			entry.Type = models.TypeView
		}
		entry.ExpirationDays = expirationDays(md.TimePartitioning)
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetPartitionExpiration returns the observed partition expiration of a
// table in days, or nil when the table is unpartitioned or has none set.
func (c *Client) GetPartitionExpiration(ctx context.Context, ref models.TableRef) (*int, error) {
	md, err := c.metadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	return expirationDays(md.TimePartitioning), nil
}

// UpdatePartitionExpiration patches the partition expiration of a table.
// Unpartitioned tables are rejected rather than silently skipped.
func (c *Client) UpdatePartitionExpiration(ctx context.Context, ref models.TableRef, days int) error {
	md, err := c.metadata(ctx, ref)
	if err != nil {
		return err
	}
	if md.TimePartitioning == nil {
		return errors.New(errors.ErrCodeTableUnsupported,
			fmt.Sprintf("Table %s is not partitioned", ref))
	}

	update := bq.TableMetadataToUpdate{
		TimePartitioning: &bq.TimePartitioning{
			Type:       md.TimePartitioning.Type,
			Field:      md.TimePartitioning.Field,
			Expiration: time.Duration(days) * 24 * time.Hour,
		},
	}
	if _, err := c.table(ref).Update(ctx, update, md.ETag); err != nil {
		return wrapAPIError(err, fmt.Sprintf("Failed to update partition expiration for %s", ref))
	}
	return nil
}

// DeleteTable removes a table or view
func (c *Client) DeleteTable(ctx context.Context, ref models.TableRef) error {
	if err := c.table(ref).Delete(ctx); err != nil {
		return wrapAPIError(err, fmt.Sprintf("Failed to delete %s", ref))
	}
	return nil
}

// TableExists reports whether a table is currently present
func (c *Client) TableExists(ctx context.Context, ref models.TableRef) (bool, error) {
	_, err := c.metadata(ctx, ref)
	if err == nil {
		return true, nil
	}
	if errors.GetErrorCode(err) == errors.ErrCodeTableNotFound {
		return false, nil
	}
	return false, err
}

// Column is one flattened column of a table schema. Nested RECORD fields are
// reported with dotted names.
type Column struct {
	Name        string
	Type        string
	Description string
}

// FetchColumns returns the flattened schema of a table
func (c *Client) FetchColumns(ctx context.Context, ref models.TableRef) ([]Column, error) {
	md, err := c.metadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	return flattenSchema(md.Schema, ""), nil
}

func flattenSchema(schema bq.Schema, prefix string) []Column {
	var columns []Column
	for _, field := range schema {
		if field.Type == bq.RecordFieldType {
			columns = append(columns, flattenSchema(field.Schema, prefix+field.Name+".")...)
			continue
		}
		columns = append(columns, Column{
			Name:        prefix + field.Name,
			Type:        strings.ToLower(string(field.Type)),
			Description: field.Description,
		})
	}
	return columns
}

func (c *Client) table(ref models.TableRef) *bq.Table {
	return c.bq.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table)
}

func (c *Client) metadata(ctx context.Context, ref models.TableRef) (*bq.TableMetadata, error) {
	md, err := c.table(ref).Metadata(ctx)
	if err != nil {
		return nil, wrapAPIError(err, fmt.Sprintf("Failed to fetch metadata for %s", ref))
	}
	return md, nil
}

// expirationDays converts a partitioning expiration to whole days; nil when
// unpartitioned or unset.
func expirationDays(tp *bq.TimePartitioning) *int {
	if tp == nil || tp.Expiration <= 0 {
		return nil
	}
	days := int(tp.Expiration.Milliseconds() / millisPerDay)
	return &days
}

// wrapAPIError maps transport errors onto the error taxonomy, carrying the
// underlying error verbatim.
func wrapAPIError(err error, message string) error {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return errors.Wrap(err, errors.ErrCodeTableNotFound, message)
		case http.StatusForbidden:
			return errors.Wrap(err, errors.ErrCodeAccessDenied, message).
				WithSuggestions("Verify your role has the required BigQuery permissions")
		}
	}
	return errors.BigQueryError(message, err)
}
