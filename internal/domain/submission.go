package domain

import "time"

// SubmissionStatus is the two-valued outcome recorded for a submission
type SubmissionStatus string

const (
	SubmissionAttempted SubmissionStatus = "attempted"
	SubmissionCompleted SubmissionStatus = "completed"
)

// StatusFor maps a grading outcome to a submission status
func StatusFor(allPassed bool) SubmissionStatus {
	if allPassed {
		return SubmissionCompleted
	}
	return SubmissionAttempted
}

// Submission is one grading attempt. Submissions are append-only.
type Submission struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	ProblemID int64            `json:"problem_id"`
	Code      string           `json:"code_submitted"`
	Status    SubmissionStatus `json:"status"`
	Language  string           `json:"language"`
	Results   []byte           `json:"-"` // JSON encoded per-test results
	CreatedAt time.Time        `json:"created_at"`
}
