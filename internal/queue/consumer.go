package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/runner"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultJobTimeout bounds a job that does not set its own timeout
const DefaultJobTimeout = 60 * time.Second

// JobHandler grades one job and returns the JSON response body
type JobHandler func(ctx context.Context, job *GradeJob) (json.RawMessage, error)

// Consumer consumes grade jobs from the queue
type Consumer struct {
	conn       *Connection
	handler    JobHandler
	results    *Producer
	workers    int
	prefetch   int
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int // Number of concurrent workers
	Prefetch int // Prefetch count per worker
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 1,
	}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	return cfg
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler JobHandler, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Consumer{
		conn:     conn,
		handler:  handler,
		results:  NewProducer(conn, logger),
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		logger:   logger,
	}
}

// Start begins consuming grade jobs with the configured number of workers
func (c *Consumer) Start(ctx context.Context) error {
	ch := c.conn.Channel()
	if ch == nil {
		return ErrNotConnected
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	// manual ack: a job is acked only after its result is published
	msgs, err := ch.Consume(GradeQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", GradeQueueName, err)
	}

	ctx, c.cancelFunc = context.WithCancel(ctx)
	c.logger.Info("grade workers started", "workers", c.workers, "prefetch", c.prefetch)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func(id int) {
			defer c.wg.Done()
			drain(ctx, msgs, func(msg amqp.Delivery) { c.handle(ctx, id, msg) })
			c.logger.Debug("grade worker stopped", "worker_id", id)
		}(i)
	}
	return nil
}

// drain calls fn for each delivery until ctx ends or msgs closes
func drain(ctx context.Context, msgs <-chan amqp.Delivery, fn func(amqp.Delivery)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			fn(msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, workerID int, msg amqp.Delivery) {
	result, err := c.process(ctx, msg.Body)
	if err != nil {
		c.logger.Error("dropping malformed grade job", "worker_id", workerID, "error", err)
		_ = msg.Reject(false)
		return
	}

	log := c.logger.With("worker_id", workerID, "job_id", result.JobID)
	if err := c.results.PublishResult(ctx, result); err != nil {
		log.Error("failed to publish grade result", "error", err)
	}
	if err := msg.Ack(false); err != nil {
		log.Error("failed to ack grade job", "error", err)
	}
}

// process decodes and runs one job. It returns an error only when the
// body is not a job; handler failures become failed or timeout results.
func (c *Consumer) process(ctx context.Context, body []byte) (*GradeResult, error) {
	var job GradeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, err
	}

	timeout := time.Duration(job.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	response, err := c.handler(jobCtx, &job)
	result := &GradeResult{
		JobID:       job.ID,
		Status:      StatusCompleted,
		Response:    response,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
	}

	if err != nil {
		result.Status = StatusFailed
		result.Response = nil
		result.Error = jobError(err)
		if errors.Is(err, context.DeadlineExceeded) || jobCtx.Err() == context.DeadlineExceeded {
			result.Status = StatusTimeout
			result.Error = "execution timed out"
		}
		c.logger.Warn("grade job failed", "job_id", job.ID, "status", result.Status, "error", err)
		return result, nil
	}

	c.logger.Info("grade job completed", "job_id", job.ID, "duration", result.Duration)
	return result, nil
}

// jobError is the failure text stored for a job. Only request problems the
// submitter can act on are shown; anything else stays in the worker log.
func jobError(err error) string {
	switch {
	case errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrNoTestCases),
		errors.Is(err, domain.ErrEmptyCode),
		errors.Is(err, domain.ErrProblemNotFound):
		return err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, runner.ErrBusy):
		return "runner busy, try again"
	default:
		return "internal error"
	}
}

// Stop cancels the workers and waits for in-flight jobs
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
}

// ResultHandler receives a decoded grade result
type ResultHandler func(result *GradeResult)

// ResultConsumer feeds every message on the result queue to one sink
type ResultConsumer struct {
	conn       *Connection
	sink       ResultHandler
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewResultConsumer creates a result consumer
func NewResultConsumer(conn *Connection, sink ResultHandler, logger *slog.Logger) *ResultConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultConsumer{conn: conn, sink: sink, logger: logger}
}

// Start begins consuming results. Results are auto-acked.
func (rc *ResultConsumer) Start(ctx context.Context) error {
	ch := rc.conn.Channel()
	if ch == nil {
		return ErrNotConnected
	}
	msgs, err := ch.Consume(ResultQueueName, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", ResultQueueName, err)
	}

	ctx, rc.cancelFunc = context.WithCancel(ctx)
	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		drain(ctx, msgs, func(msg amqp.Delivery) { rc.dispatch(msg.Body) })
	}()
	return nil
}

func (rc *ResultConsumer) dispatch(body []byte) {
	var result GradeResult
	if err := json.Unmarshal(body, &result); err != nil {
		rc.logger.Error("dropping malformed grade result", "error", err)
		return
	}
	rc.sink(&result)
}

// Stop stops the result consumer
func (rc *ResultConsumer) Stop() {
	if rc.cancelFunc != nil {
		rc.cancelFunc()
	}
	rc.wg.Wait()
}
