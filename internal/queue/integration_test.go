//go:build integration

package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/queue"
	"github.com/felixgeelhaar/codedojo/internal/storage/local"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func setupRabbitMQ(t *testing.T) string {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get AMQP URL: %v", err)
	}
	return amqpURL
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	if _, err := queue.NewConnection("amqp://invalid:5672", nil); err == nil {
		t.Error("NewConnection() error = nil; want error")
	}
}

func TestIntegration_GradeRoundTrip(t *testing.T) {
	amqpURL := setupRabbitMQ(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := queue.NewConnection(amqpURL, nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer conn.Close()

	if !conn.IsConnected() {
		t.Fatal("expected connection to be active")
	}

	store, _ := local.NewStore(t.TempDir())
	tracker := queue.NewTracker(store)

	handler := func(ctx context.Context, job *queue.GradeJob) (json.RawMessage, error) {
		return json.RawMessage(`{"all_tests_passed":true,"test_results":[],"submission_id":1}`), nil
	}
	consumer := queue.NewConsumer(conn, handler, queue.DefaultConsumerConfig(), nil)
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("consumer Start() error = %v", err)
	}
	defer consumer.Stop()

	done := make(chan *queue.GradeResult, 1)
	results := queue.NewResultConsumer(conn, func(r *queue.GradeResult) {
		if err := tracker.Complete(r); err != nil {
			t.Errorf("Complete() error = %v", err)
		}
		done <- r
	}, nil)

	job := &queue.GradeJob{ID: uuid.New(), UserID: "u1", Code: "print(1)", ProblemID: 1, RunTests: true, CreatedAt: time.Now()}
	if err := results.Start(ctx); err != nil {
		t.Fatalf("result consumer Start() error = %v", err)
	}
	defer results.Stop()

	if _, err := tracker.Pending(job); err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if err := queue.NewProducer(conn, nil).PublishGradeJob(ctx, job); err != nil {
		t.Fatalf("PublishGradeJob() error = %v", err)
	}

	select {
	case r := <-done:
		if r.Status != queue.StatusCompleted {
			t.Errorf("Status = %v; want completed", r.Status)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for result")
	}

	status, err := tracker.Get("u1", job.ID.String())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if status.Status != queue.StatusCompleted {
		t.Errorf("tracked Status = %v; want completed", status.Status)
	}
}
