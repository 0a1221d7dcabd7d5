package backfill

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"dbtkit/internal/config"
	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

func TestJobName(t *testing.T) {
	tests := []struct {
		selector string
		want     string
	}{
		{"mrt_orders", "mrt-orders"},
		{"+mrt_orders+", "mrt-orders"},
		{"Mrt_Orders", "mrt-orders"},
		{"stg_orders mrt_orders", "stg-orders-mrt-orders"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JobName(tt.selector), tt.selector)
	}
}

func TestJobNameShortening(t *testing.T) {
	long := "mrt_" + strings.Repeat("verylongword", 10)
	name := JobName(long)
	assert.LessOrEqual(t, len(name), maxJobNameLen)
	// The layer prefix survives; only the longest word gets halved.
	assert.True(t, strings.HasPrefix(name, "mrt-"), name)
}

func TestShortenKeepsShortNames(t *testing.T) {
	assert.Equal(t, "mrt-orders", shorten("mrt-orders", maxJobNameLen))
}

func writeProjectConfig(t *testing.T) *config.ProjectConfig {
	t.Helper()
	dir := t.TempDir()
	content := `[tool.dbtkit.project]
docker_image = "europe-docker.pkg.dev/acme/dbt/runner:latest"
service_account = "dbt-backfill@acme-infra.iam.gserviceaccount.com"
service_account_project = "acme-infra"
service_account_region = "europe-west1"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(content), 0o644))
	cfg, err := config.LoadProjectFrom(dir)
	require.NoError(t, err)
	return cfg
}

func TestNewJobSpecTaskLayout(t *testing.T) {
	cfg := writeProjectConfig(t)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		days            int
		batch           int
		parallelism     int
		wantTasks       int
		wantParallelism int
	}{
		{"single day", 1, 1, 4, 1, 1},
		{"even split", 30, 5, 4, 6, 4},
		{"uneven split rounds up", 31, 5, 4, 7, 4},
		{"parallelism capped by ceiling", 100, 1, 50, 100, 8},
		{"parallelism capped by task count", 3, 1, 8, 3, 3},
		{"zero parallelism becomes one", 10, 5, 0, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewJobSpec(Params{
				Selector:    "mrt_orders",
				StartDate:   start,
				EndDate:     start.AddDate(0, 0, tt.days-1),
				BatchDays:   tt.batch,
				Parallelism: tt.parallelism,
				Target:      models.TargetProd,
			}, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTasks, spec.TaskCount)
			assert.Equal(t, tt.wantParallelism, spec.Parallelism)
		})
	}
}

func TestNewJobSpecValidation(t *testing.T) {
	cfg := writeProjectConfig(t)
	start := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		params Params
	}{
		{
			name: "missing selector",
			params: Params{
				StartDate: start, EndDate: start, BatchDays: 1,
			},
		},
		{
			name: "end before start",
			params: Params{
				Selector: "mrt_orders", StartDate: start,
				EndDate: start.AddDate(0, 0, -1), BatchDays: 1,
			},
		},
		{
			name: "zero batch size",
			params: Params{
				Selector: "mrt_orders", StartDate: start, EndDate: start,
			},
		},
		{
			name: "full refresh over multiple days",
			params: Params{
				Selector: "mrt_orders", StartDate: start,
				EndDate: start.AddDate(0, 0, 5), BatchDays: 1, FullRefresh: true,
			},
		},
		{
			name: "full refresh with graph operator",
			params: Params{
				Selector: "+mrt_orders", StartDate: start, EndDate: start,
				BatchDays: 1, FullRefresh: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJobSpec(tt.params, cfg)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
		})
	}
}

func TestNewJobSpecRequiresProjectSettings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"),
		[]byte("[tool.dbtkit.project]\n"), 0o644))
	cfg, err := config.LoadProjectFrom(dir)
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err = NewJobSpec(Params{
		Selector: "mrt_orders", StartDate: start, EndDate: start, BatchDays: 1,
	}, cfg)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetErrorCode(err))
}

func TestJobSpecArgs(t *testing.T) {
	spec := JobSpec{
		Selector:    "+mrt_orders",
		Target:      models.TargetProd,
		StartDate:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		BatchDays:   5,
		FullRefresh: false,
	}
	assert.Equal(t, []string{
		"build", "--target", "prod", "--date", "2024-05-01",
		"--batch-days", "5", "--use-task-index", "+mrt_orders",
	}, spec.Args())

	spec.FullRefresh = true
	args := spec.Args()
	assert.Contains(t, args, "--full-refresh")
	// The selector stays positional, after every flag.
	assert.Equal(t, "+mrt_orders", args[len(args)-1])
}

func TestJobSpecNames(t *testing.T) {
	spec := JobSpec{Name: "mrt-orders", Project: "acme-infra", Region: "europe-west1"}
	assert.Equal(t, "projects/acme-infra/locations/europe-west1/jobs/mrt-orders", spec.FullName())
	assert.Equal(t,
		"https://console.cloud.google.com/run/jobs/details/europe-west1/mrt-orders/executions?project=acme-infra",
		spec.ConsoleURL())
}

func TestWriteManifest(t *testing.T) {
	spec := JobSpec{
		Name:           "mrt-orders",
		Project:        "acme-infra",
		Region:         "europe-west1",
		Image:          "europe-docker.pkg.dev/acme/dbt/runner:latest",
		ServiceAccount: "dbt-backfill@acme-infra.iam.gserviceaccount.com",
		TaskCount:      6,
		Parallelism:    4,
		Selector:       "mrt_orders",
		StartDate:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		BatchDays:      5,
		Target:         models.TargetProd,
	}

	path := filepath.Join(t.TempDir(), "backfill-cloudrun.yaml")
	require.NoError(t, spec.WriteManifest(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var manifest map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &manifest))
	assert.Equal(t, "mrt-orders", manifest["name"])
	assert.Equal(t, 6, manifest["task_count"])
	assert.Equal(t, 4, manifest["parallelism"])
}
