package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/storage/local"
	"github.com/google/uuid"
)

// JobCollection is the local store collection holding job statuses
const JobCollection = "jobs"

// ErrJobNotFound is returned for unknown jobs and for jobs owned by
// another user
var ErrJobNotFound = errors.New("job not found")

// JobStatus is what a client sees when polling an async submission
type JobStatus struct {
	JobID       uuid.UUID       `json:"job_id"`
	UserID      string          `json:"user_id"`
	Status      string          `json:"status"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// RecordStore persists JSON records by collection and id
type RecordStore interface {
	Save(collection, id string, data any) error
	Load(collection, id string, data any) error
	Prune(collection string, cutoff time.Time) (int, error)
}

// Tracker records the lifecycle of async jobs
type Tracker struct {
	store RecordStore
}

// NewTracker creates a tracker over a record store
func NewTracker(store RecordStore) *Tracker {
	return &Tracker{store: store}
}

// Pending records a job that was just published
func (t *Tracker) Pending(job *GradeJob) (*JobStatus, error) {
	status := &JobStatus{
		JobID:       job.ID,
		UserID:      job.UserID,
		Status:      StatusPending,
		SubmittedAt: job.CreatedAt,
	}
	if err := t.store.Save(JobCollection, job.ID.String(), status); err != nil {
		return nil, fmt.Errorf("save job status: %w", err)
	}
	return status, nil
}

// Complete stores a result against its pending job. Results for jobs the
// tracker has never seen are kept with an empty owner, so nobody can read
// them.
func (t *Tracker) Complete(result *GradeResult) error {
	var status JobStatus
	err := t.store.Load(JobCollection, result.JobID.String(), &status)
	if err != nil && !errors.Is(err, local.ErrNotFound) {
		return fmt.Errorf("load job status: %w", err)
	}

	completedAt := result.CompletedAt
	status.JobID = result.JobID
	status.Status = result.Status
	status.Response = result.Response
	status.Error = result.Error
	status.CompletedAt = &completedAt

	if err := t.store.Save(JobCollection, result.JobID.String(), &status); err != nil {
		return fmt.Errorf("save job status: %w", err)
	}
	return nil
}

// Get returns a job's status if userID owns it
func (t *Tracker) Get(userID, jobID string) (*JobStatus, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, ErrJobNotFound
	}

	var status JobStatus
	if err := t.store.Load(JobCollection, id.String(), &status); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job status: %w", err)
	}
	if status.UserID == "" || status.UserID != userID {
		return nil, ErrJobNotFound
	}
	return &status, nil
}

// Prune drops job statuses older than maxAge
func (t *Tracker) Prune(maxAge time.Duration) (int, error) {
	return t.store.Prune(JobCollection, time.Now().Add(-maxAge))
}
