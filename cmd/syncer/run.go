package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
	adapter "github.com/vgarvardt/gue/v5/adapter/zap"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/scheduler"
	"github.com/eqtlab/paycache-syncer/syncer"
)

const progressBuffer = 64

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the configured accounts in sync until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), a)
		},
	}
}

func runDaemon(ctx context.Context, a *app) error {
	if len(a.cfg.Scheduler.Accounts) == 0 {
		return errors.New("no accounts configured, set SCHEDULER_ACCOUNTS")
	}

	queue, err := newQueue(a)
	if err != nil {
		return err
	}

	sched := scheduler.New(a.engine, a.store, queue, a.log.Logger, a.cfg.Scheduler)

	events, unsubscribe := a.engine.Emitter().Subscribe(progressBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runErr error
	runForever(
		ctx,
		a.log,
		func() { logProgress(ctx, a.log.Logger, events) },
		func() {
			// the progress logger has nothing to do once the scheduler is gone
			defer cancel()
			runErr = sched.Run(ctx)
		},
	)

	a.log.Info("syncer has been stopped")
	return runErr
}

func newQueue(a *app) (scheduler.Queue, error) {
	if a.pool == nil {
		return scheduler.NewPoolQueue(a.cfg.Scheduler.WorkerPoolSize, a.cfg.Scheduler.QueueSize, a.log.Logger), nil
	}

	client, err := gue.NewClient(pgxv5.NewConnPool(a.pool), gue.WithClientLogger(adapter.New(a.log.Logger)))
	if err != nil {
		return nil, fmt.Errorf("pgx adapter for gue: %w", err)
	}
	return scheduler.NewGueQueue(client, a.cfg.Scheduler.WorkerPoolSize, a.log.Logger), nil
}

func logProgress(ctx context.Context, log *zap.Logger, events <-chan syncer.Progress) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				return
			}
			if p.Stage == syncer.StageStart {
				continue
			}
			log.Debug(
				"sync progress",
				zap.String("run_id", p.RunID.String()),
				zap.String("account_id", p.AccountID),
				zap.String("phase", string(p.Phase)),
				zap.String("stage", string(p.Stage)),
				zap.Int("page", p.Page),
				zap.Int("records", p.Records),
				zap.Duration("elapsed", p.Elapsed),
			)
		}
	}
}
