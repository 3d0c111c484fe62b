package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Job struct {
	Target  string
	Message string
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("notification worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("notification worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type GatewayConfig struct {
	URL            string
	APIKey         string
	Timeout        time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	MaxWorkers     int
	JobQueueSize   int
	WorkerPoolSize int
}

// GatewayClient posts messages to an SMS/email gateway from a bounded worker pool.
// Send only enqueues; delivery failures are logged by the workers.
type GatewayClient struct {
	cfg        GatewayConfig
	httpClient *http.Client
	logger     *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
	stopOnce   sync.Once
}

func NewGatewayClient(cfg GatewayConfig, logger *slog.Logger) *GatewayClient {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	if cfg.JobQueueSize <= 0 {
		cfg.JobQueueSize = 100
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = cfg.MaxWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &GatewayClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		jobQueue:   make(chan Job, cfg.JobQueueSize),
		workerPool: make(chan chan Job, cfg.WorkerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.start()
	return c
}

func (c *GatewayClient) start() {
	c.once.Do(func() {
		for i := 0; i < c.cfg.MaxWorkers; i++ {
			NewWorker(i, c.workerPool, c.logger).Start(c.ctx, &c.wg, c.process)
		}

		c.wg.Add(1)
		go c.dispatch()

		c.logger.Info("notification worker pool started",
			"max_workers", c.cfg.MaxWorkers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *GatewayClient) dispatch() {
	defer c.wg.Done()

	for {
		select {
		case job := <-c.jobQueue:
			select {
			case jobChannel := <-c.workerPool:
				select {
				case jobChannel <- job:
				case <-c.ctx.Done():
					return
				}
			case <-c.ctx.Done():
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send enqueues without blocking. A full queue is reported to the caller, who logs it.
func (c *GatewayClient) Send(ctx context.Context, target, message string) error {
	select {
	case <-c.ctx.Done():
		return fmt.Errorf("notification client stopped")
	default:
	}

	select {
	case c.jobQueue <- Job{Target: target, Message: message}:
		return nil
	default:
		c.logger.WarnContext(ctx, "notification queue full",
			"target", MaskTarget(target),
			"queue_capacity", cap(c.jobQueue))
		return ErrQueueFull
	}
}

func (c *GatewayClient) Shutdown() {
	c.stopOnce.Do(func() {
		c.logger.Info("shutting down notification client")
		c.cancel()
		c.wg.Wait()
		c.logger.Info("notification client shutdown complete")
	})
}

func (c *GatewayClient) process(job Job) {
	var err error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err = c.post(job); err == nil {
			c.logger.Info("notification delivered", "target", MaskTarget(job.Target), "attempt", attempt)
			return
		}

		c.logger.Warn("notification delivery failed",
			"target", MaskTarget(job.Target),
			"attempt", attempt,
			"error", err)

		if attempt == c.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
		case <-c.ctx.Done():
			return
		}
	}

	c.logger.Error("notification dropped after retries",
		"target", MaskTarget(job.Target),
		"attempts", c.cfg.MaxAttempts,
		"error", err)
}

func (c *GatewayClient) post(job Job) error {
	payload, err := json.Marshal(map[string]string{
		"to":      job.Target,
		"message": job.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
