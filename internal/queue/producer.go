package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher sends a JSON body to a named queue
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes grade jobs and results
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewProducer creates a new queue producer
func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{pub: pub, logger: logger}
}

// PublishGradeJob publishes a job, assigning an id and timestamp if unset
func (p *Producer) PublishGradeJob(ctx context.Context, job *GradeJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := p.pub.PublishJSON(ctx, GradeQueueName, job); err != nil {
		return fmt.Errorf("failed to publish grade job: %w", err)
	}

	p.logger.Info("published grade job",
		"job_id", job.ID,
		"user_id", job.UserID,
		"problem_id", job.ProblemID,
		"run_tests", job.RunTests,
	)
	return nil
}

// PublishResult publishes a grade result to the results queue
func (p *Producer) PublishResult(ctx context.Context, result *GradeResult) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}

	if err := p.pub.PublishJSON(ctx, ResultQueueName, result); err != nil {
		return fmt.Errorf("failed to publish grade result: %w", err)
	}

	p.logger.Info("published grade result",
		"job_id", result.JobID,
		"status", result.Status,
		"duration", result.Duration,
	)
	return nil
}
