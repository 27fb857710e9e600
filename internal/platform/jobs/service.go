package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"slackmemory/internal/domain/retention"
	"slackmemory/internal/domain/rotation"
	"slackmemory/internal/platform/config"
)

const (
	JobHealthCheck = "token_health_check"
	JobRetention   = "retention_pass"
)

// Service runs background maintenance on a cadence: token health
// checks and retention passes. Each run is recorded in job_runs.
type Service struct {
	DB        *pgxpool.Pool
	Cfg       config.Config
	Rotation  *rotation.Service
	Retention *retention.Service
	queue     chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config, rotationSvc *rotation.Service, retentionSvc *retention.Service) *Service {
	return &Service{
		DB:        db,
		Cfg:       cfg,
		Rotation:  rotationSvc,
		Retention: retentionSvc,
		queue:     make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.HealthCheckInterval > 0 {
		go s.schedule(ctx, s.Cfg.HealthCheckInterval, JobHealthCheck, func(ctx context.Context) (any, error) {
			return s.Rotation.PerformHealthChecks(ctx)
		})
	}
	if s.Cfg.RetentionInterval > 0 {
		go s.schedule(ctx, s.Cfg.RetentionInterval, JobRetention, func(ctx context.Context) (any, error) {
			return s.Retention.ExecuteRetentionPolicies(ctx, false)
		})
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

// RunNow executes a job inline, still recording the run.
func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) schedule(ctx context.Context, interval time.Duration, jobType string, run func(context.Context) (any, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(jobType, run)
		}
	}
}
