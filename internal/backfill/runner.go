package backfill

import (
	"context"
	"fmt"

	run "cloud.google.com/go/run/apiv2"
	"cloud.google.com/go/run/apiv2/runpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"dbtkit/pkg/errors"
)

// Runner submits backfill jobs to Cloud Run
type Runner struct {
	jobs *run.JobsClient
}

// NewRunner creates a runner using application-default credentials
func NewRunner(ctx context.Context) (*Runner, error) {
	client, err := run.NewJobsClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCloudRun, "Failed to create Cloud Run client")
	}
	return &Runner{jobs: client}, nil
}

// Close releases the underlying client
func (r *Runner) Close() error { return r.jobs.Close() }

// EnsureJob creates the Cloud Run job or updates it in place when a job with
// the same name already exists from an earlier backfill of the same selector.
func (r *Runner) EnsureJob(ctx context.Context, spec JobSpec) error {
	job := buildJob(spec)

	_, err := r.jobs.GetJob(ctx, &runpb.GetJobRequest{Name: spec.FullName()})
	switch status.Code(err) {
	case codes.OK:
		job.Name = spec.FullName()
		op, err := r.jobs.UpdateJob(ctx, &runpb.UpdateJobRequest{Job: job})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCloudRun,
				fmt.Sprintf("Failed to update Cloud Run job %s", spec.Name))
		}
		if _, err := op.Wait(ctx); err != nil {
			return errors.Wrap(err, errors.ErrCodeCloudRun,
				fmt.Sprintf("Cloud Run job update for %s did not complete", spec.Name))
		}
		return nil
	case codes.NotFound:
		op, err := r.jobs.CreateJob(ctx, &runpb.CreateJobRequest{
			Parent: fmt.Sprintf("projects/%s/locations/%s", spec.Project, spec.Region),
			JobId:  spec.Name,
			Job:    job,
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCloudRun,
				fmt.Sprintf("Failed to create Cloud Run job %s", spec.Name))
		}
		if _, err := op.Wait(ctx); err != nil {
			return errors.Wrap(err, errors.ErrCodeCloudRun,
				fmt.Sprintf("Cloud Run job creation for %s did not complete", spec.Name))
		}
		return nil
	default:
		return errors.Wrap(err, errors.ErrCodeCloudRun,
			fmt.Sprintf("Failed to look up Cloud Run job %s", spec.Name))
	}
}

// Start launches an execution of the job without waiting for it to finish.
// Backfills can run for hours; progress lives in the Cloud Console.
func (r *Runner) Start(ctx context.Context, spec JobSpec) error {
	_, err := r.jobs.RunJob(ctx, &runpb.RunJobRequest{Name: spec.FullName()})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCloudRun,
			fmt.Sprintf("Failed to start Cloud Run job %s", spec.Name))
	}
	return nil
}

func buildJob(spec JobSpec) *runpb.Job {
	return &runpb.Job{
		Template: &runpb.ExecutionTemplate{
			TaskCount:   int32(spec.TaskCount),
			Parallelism: int32(spec.Parallelism),
			Template: &runpb.TaskTemplate{
				ServiceAccount: spec.ServiceAccount,
				Timeout:        durationpb.New(taskTimeout),
				Retries:        &runpb.TaskTemplate_MaxRetries{MaxRetries: 1},
				Containers: []*runpb.Container{{
					Image: spec.Image,
					Args:  spec.Args(),
				}},
			},
		},
	}
}
