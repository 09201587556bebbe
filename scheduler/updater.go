package scheduler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/syncer"
)

// updater never hands an error back to the queue: a failed account is released and picked up again
// by the actualizer, so queue-level redelivery would only duplicate work.
func (s *Scheduler) updater(ctx context.Context, job Job) error {
	err := s.SyncAccount(ctx, job.AccountID)
	s.release(job.AccountID, err == nil)

	switch {
	case err == nil:
	case errors.Is(err, syncer.ErrAborted):
		s.logger.Info("updater: sync aborted", zap.String("account_id", job.AccountID))
	default:
		s.logger.Error("updater: sync failed, will retry on next check", zap.Error(err), zap.String("account_id", job.AccountID))
	}
	return nil
}
