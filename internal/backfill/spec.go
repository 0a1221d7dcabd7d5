// Package backfill plans and launches Cloud Run jobs that re-run dbt models
// over a historical date range. The range is split into batches of whole
// days; each Cloud Run task processes one batch, offset by its task index.
package backfill

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dbtkit/internal/config"
	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

const (
	// Hard ceiling on parallel tasks, protecting warehouse slot capacity
	maxConcurrentTasks = 8

	// Per-task execution timeout
	taskTimeout = 2 * time.Hour

	dateLayout = "2006-01-02"
)

// Params are the user-facing knobs of a backfill request
type Params struct {
	Selector    string
	StartDate   time.Time
	EndDate     time.Time
	BatchDays   int
	Parallelism int
	FullRefresh bool
	Target      models.Target
}

// JobSpec is a fully resolved backfill job ready to submit to Cloud Run
type JobSpec struct {
	Name           string
	Project        string
	Region         string
	Image          string
	ServiceAccount string
	TaskCount      int
	Parallelism    int
	StartDate      time.Time
	BatchDays      int
	Selector       string
	FullRefresh    bool
	Target         models.Target
}

// NewJobSpec validates backfill parameters against the project configuration
// and computes the task layout.
func NewJobSpec(params Params, cfg *config.ProjectConfig) (JobSpec, error) {
	if params.Selector == "" {
		return JobSpec{}, errors.New(errors.ErrCodeInvalidInput, "A selector is required for backfill")
	}
	if params.EndDate.Before(params.StartDate) {
		return JobSpec{}, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("End date %s is before start date %s",
				params.EndDate.Format(dateLayout), params.StartDate.Format(dateLayout)))
	}
	if params.BatchDays < 1 {
		return JobSpec{}, errors.New(errors.ErrCodeInvalidInput, "Batch size must be at least one day")
	}

	days := int(params.EndDate.Sub(params.StartDate).Hours()/24) + 1
	if params.FullRefresh {
		// A full refresh rebuilds the whole table on every run, so spreading
		// it over multiple days or pulling in dependencies makes no sense.
		if days > 1 {
			return JobSpec{}, errors.New(errors.ErrCodeInvalidInput,
				"Full refresh requires a single-day date range")
		}
		if strings.Contains(params.Selector, "+") {
			return JobSpec{}, errors.New(errors.ErrCodeInvalidInput,
				"Full refresh cannot be combined with graph operators in the selector")
		}
	}

	image, err := cfg.Require("docker_image")
	if err != nil {
		return JobSpec{}, err
	}
	serviceAccount, err := cfg.Require("service_account")
	if err != nil {
		return JobSpec{}, err
	}
	project, err := cfg.Require("service_account_project")
	if err != nil {
		return JobSpec{}, err
	}
	region, err := cfg.Require("service_account_region")
	if err != nil {
		return JobSpec{}, err
	}

	taskCount := (days + params.BatchDays - 1) / params.BatchDays
	parallelism := params.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > maxConcurrentTasks {
		parallelism = maxConcurrentTasks
	}
	if parallelism > taskCount {
		parallelism = taskCount
	}

	return JobSpec{
		Name:           JobName(params.Selector),
		Project:        project,
		Region:         region,
		Image:          image,
		ServiceAccount: serviceAccount,
		TaskCount:      taskCount,
		Parallelism:    parallelism,
		StartDate:      params.StartDate,
		BatchDays:      params.BatchDays,
		Selector:       params.Selector,
		FullRefresh:    params.FullRefresh,
		Target:         params.Target,
	}, nil
}

// Args returns the container arguments for one task: a `build` invocation of
// this same CLI. --use-task-index makes each task derive its own date window
// from the CLOUD_RUN_TASK_INDEX environment variable that Cloud Run injects.
func (s JobSpec) Args() []string {
	args := []string{
		"build",
		"--target", string(s.Target),
		"--date", s.StartDate.Format(dateLayout),
		"--batch-days", strconv.Itoa(s.BatchDays),
		"--use-task-index",
	}
	if s.FullRefresh {
		args = append(args, "--full-refresh")
	}
	return append(args, s.Selector)
}

// FullName returns the fully qualified Cloud Run job resource name
func (s JobSpec) FullName() string {
	return fmt.Sprintf("projects/%s/locations/%s/jobs/%s", s.Project, s.Region, s.Name)
}

// ConsoleURL returns the Cloud Console page showing the job's executions
func (s JobSpec) ConsoleURL() string {
	return fmt.Sprintf("https://console.cloud.google.com/run/jobs/details/%s/%s/executions?project=%s",
		s.Region, s.Name, s.Project)
}

// jobManifest is the reviewable YAML rendering of the job
type jobManifest struct {
	Name           string   `yaml:"name"`
	Project        string   `yaml:"project"`
	Region         string   `yaml:"region"`
	Image          string   `yaml:"image"`
	ServiceAccount string   `yaml:"service_account"`
	TaskCount      int      `yaml:"task_count"`
	Parallelism    int      `yaml:"parallelism"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Args           []string `yaml:"args"`
}

// WriteManifest saves a YAML rendering of the job so the exact submitted
// configuration can be reviewed and diffed after the fact.
func (s JobSpec) WriteManifest(path string) error {
	data, err := yaml.Marshal(jobManifest{
		Name:           s.Name,
		Project:        s.Project,
		Region:         s.Region,
		Image:          s.Image,
		ServiceAccount: s.ServiceAccount,
		TaskCount:      s.TaskCount,
		Parallelism:    s.Parallelism,
		TimeoutSeconds: int(taskTimeout.Seconds()),
		Args:           s.Args(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
