package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/miradorstack/pipeline-rca/internal/repo"
	"github.com/miradorstack/pipeline-rca/internal/utils"
)

var errJenkinsNotConfigured = errors.New("jenkins client not configured")

// JenkinsQuery carries per-request overrides of the configured Jenkins target.
type JenkinsQuery struct {
	BaseURL  string
	Username string
	APIToken string
	Job      string
	Build    int
	Limit    int
	Tail     int
}

func (s *PipelineService) resolveTarget(q JenkinsQuery) (repo.Target, error) {
	if s.jenkins == nil {
		return repo.Target{}, utils.NewAppError("jenkins", "upstream unavailable", errJenkinsNotConfigured)
	}
	t := s.target
	if q.BaseURL != "" {
		t = repo.Target{BaseURL: q.BaseURL, Username: q.Username, APIToken: q.APIToken}
	}
	if t.BaseURL == "" {
		return repo.Target{}, utils.NewValidationError("baseUrl")
	}
	return t, nil
}

func requireJob(q JenkinsQuery) error {
	if q.Job == "" {
		return utils.NewValidationError("job")
	}
	return nil
}

// Jobs lists Jenkins jobs.
func (s *PipelineService) Jobs(ctx context.Context, q JenkinsQuery) ([]repo.Job, error) {
	t, err := s.resolveTarget(q)
	if err != nil {
		return nil, err
	}
	return s.jenkins.ListJobs(ctx, t)
}

// Builds lists recent builds of a job; a positive Build selects that single build.
func (s *PipelineService) Builds(ctx context.Context, q JenkinsQuery) ([]repo.Build, error) {
	t, err := s.resolveTarget(q)
	if err != nil {
		return nil, err
	}
	if err := requireJob(q); err != nil {
		return nil, err
	}
	if q.Build > 0 {
		b, err := s.jenkins.GetBuild(ctx, t, q.Job, q.Build)
		if err != nil {
			return nil, err
		}
		return []repo.Build{b}, nil
	}
	return s.jenkins.LastBuilds(ctx, t, q.Job, q.Limit)
}

// ConsoleLog returns the tail of a build's console output.
func (s *PipelineService) ConsoleLog(ctx context.Context, q JenkinsQuery) ([]string, error) {
	t, err := s.resolveTarget(q)
	if err != nil {
		return nil, err
	}
	if err := requireJob(q); err != nil {
		return nil, err
	}
	return s.jenkins.ConsoleLog(ctx, t, q.Job, q.Build, q.Tail)
}

// Queue returns pending builds.
func (s *PipelineService) Queue(ctx context.Context, q JenkinsQuery) ([]repo.QueueItem, error) {
	t, err := s.resolveTarget(q)
	if err != nil {
		return nil, err
	}
	return s.jenkins.Queue(ctx, t)
}

// Stages returns the pipeline stages of a build.
func (s *PipelineService) Stages(ctx context.Context, q JenkinsQuery) ([]repo.Stage, error) {
	t, err := s.resolveTarget(q)
	if err != nil {
		return nil, err
	}
	if err := requireJob(q); err != nil {
		return nil, err
	}
	return s.jenkins.Stages(ctx, t, q.Job, q.Build)
}

// Restart triggers a new build of a job.
func (s *PipelineService) Restart(ctx context.Context, q JenkinsQuery) error {
	t, err := s.resolveTarget(q)
	if err != nil {
		return err
	}
	if err := requireJob(q); err != nil {
		return err
	}
	s.logger.Info("build restart requested", slog.String("job", q.Job))
	return s.jenkins.TriggerBuild(ctx, t, q.Job)
}
