package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/execution"
	"github.com/google/uuid"
)

// JobPublisher publishes grade jobs
type JobPublisher interface {
	PublishGradeJob(ctx context.Context, job *GradeJob) error
}

// Budgeter estimates how long grading a request may take
type Budgeter interface {
	Budget(ctx context.Context, req execution.Request) time.Duration
}

// Dispatcher accepts async submissions and answers status polls
type Dispatcher struct {
	publisher JobPublisher
	tracker   *Tracker
	budget    Budgeter
}

// NewDispatcher creates a dispatcher. Each job's worker timeout comes
// from budget.
func NewDispatcher(publisher JobPublisher, tracker *Tracker, budget Budgeter) *Dispatcher {
	return &Dispatcher{publisher: publisher, tracker: tracker, budget: budget}
}

// Submit validates req, records it as pending and publishes it. The
// pending record is written first so a fast worker cannot complete a job
// nobody is tracking.
func (d *Dispatcher) Submit(ctx context.Context, userID string, req execution.Request) (*JobStatus, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadRequest, domain.ErrEmptyCode)
	}
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	job := &GradeJob{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      req.Code,
		ProblemID: req.ProblemID,
		RunTests:  req.RunTests,
		TimeSpent: req.TimeSpent,
		Timeout:   jobSeconds(d.budget.Budget(ctx, req)),
		CreatedAt: time.Now(),
	}

	status, err := d.tracker.Pending(job)
	if err != nil {
		return nil, err
	}
	if err := d.publisher.PublishGradeJob(ctx, job); err != nil {
		_ = d.tracker.Complete(&GradeResult{
			JobID:       job.ID,
			Status:      StatusFailed,
			Error:       "could not enqueue submission",
			CompletedAt: time.Now(),
		})
		return nil, err
	}
	return status, nil
}

// Status returns the caller's job
func (d *Dispatcher) Status(userID, jobID string) (*JobStatus, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return d.tracker.Get(userID, jobID)
}

// jobSeconds rounds a budget up to whole seconds
func jobSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
