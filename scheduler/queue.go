package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/vgarvardt/gue/v5"
	adapter "github.com/vgarvardt/gue/v5/adapter/zap"
	"go.uber.org/zap"
)

const queueType = "sync-account"

// GueQueue is a PostgreSQL backed queue, jobs survive restarts and can be shared by several processes.
type GueQueue struct {
	client   *gue.Client
	poolSize int
	logger   *zap.Logger
}

func NewGueQueue(c *gue.Client, poolSize int, l *zap.Logger) *GueQueue {
	if poolSize < 1 {
		poolSize = 1
	}
	return &GueQueue{client: c, poolSize: poolSize, logger: l}
}

func (q *GueQueue) Enqueue(ctx context.Context, job Job) error {
	bb, err := json.Marshal(&job)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	if err := q.client.Enqueue(ctx, &gue.Job{Type: queueType, Args: bb}); err != nil {
		return fmt.Errorf("gue enqueue: %w", err)
	}

	return nil
}

func (q *GueQueue) Run(ctx context.Context, handle Handler) error {
	work := func(ctx context.Context, j *gue.Job) error {
		var job Job
		if err := json.Unmarshal(j.Args, &job); err != nil {
			return fmt.Errorf("json unmarshal: %w", err)
		}
		return handle(ctx, job)
	}

	updaters, err := gue.NewWorkerPool(
		q.client,
		gue.WorkMap{queueType: work},
		q.poolSize,
		gue.WithPoolLogger(adapter.New(q.logger)),
	)
	if err != nil {
		return fmt.Errorf("gue new worker pool: %w", err)
	}

	if err := updaters.Run(ctx); err != nil {
		return fmt.Errorf("gue worker pool run: %w", err)
	}
	return nil
}

// PoolQueue is an in-process queue served by a bounded worker pool, used with the embedded store.
type PoolQueue struct {
	poolSize int
	jobs     chan Job
	logger   *zap.Logger
}

func NewPoolQueue(poolSize, queueSize int, l *zap.Logger) *PoolQueue {
	if poolSize < 1 {
		poolSize = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &PoolQueue{poolSize: poolSize, jobs: make(chan Job, queueSize), logger: l}
}

func (q *PoolQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *PoolQueue) Run(ctx context.Context, handle Handler) error {
	p := pond.NewPool(q.poolSize, pond.WithContext(ctx))
	defer func() {
		p.StopAndWait()
		q.logger.Info(
			"updaters pool stopped",
			zap.Uint64("submitted", p.SubmittedTasks()),
			zap.Uint64("failed", p.FailedTasks()),
		)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.jobs:
			p.SubmitErr(func() error {
				return handle(ctx, job)
			})
		}
	}
}
