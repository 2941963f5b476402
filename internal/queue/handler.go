package queue

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/codedojo/internal/execution"
)

// Executor runs or grades a request
type Executor interface {
	Execute(ctx context.Context, userID string, req execution.Request) (*execution.Response, error)
}

// ExecuteHandler adapts an Executor to a JobHandler
func ExecuteHandler(exec Executor) JobHandler {
	return func(ctx context.Context, job *GradeJob) (json.RawMessage, error) {
		resp, err := exec.Execute(ctx, job.UserID, execution.Request{
			Code:      job.Code,
			ProblemID: job.ProblemID,
			RunTests:  job.RunTests,
			TimeSpent: job.TimeSpent,
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}
