package scheduler

import (
	"context"

	"go.uber.org/zap"

	timeutils "github.com/eqtlab/paycache-syncer/pkg/time"
)

// actualizer enqueues every account that is due on start and then on every tick. It never fails:
// an account that could not be enqueued is retried on the next tick.
func (s *Scheduler) actualizer(ctx context.Context) {
	s.iteration(ctx)
	for range timeutils.TickWithCtx(ctx, s.cfg.AccountsCheckInterval) {
		s.iteration(ctx)
	}
}

func (s *Scheduler) iteration(ctx context.Context) {
	for _, accountID := range s.cfg.Accounts {
		if ctx.Err() != nil {
			return
		}
		if !s.claim(accountID) {
			continue
		}
		if err := s.queue.Enqueue(ctx, Job{AccountID: accountID}); err != nil {
			s.release(accountID, false)
			s.logger.Error("actualizer: enqueue failed", zap.Error(err), zap.String("account_id", accountID))
			continue
		}
		s.logger.Debug("actualizer: account enqueued", zap.String("account_id", accountID))
	}
}

// claim marks the account in flight when it is not being synced and its last sync is old enough.
func (s *Scheduler) claim(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[accountID] {
		return false
	}
	if last, ok := s.lastSync[accountID]; ok && s.now().Sub(last) < s.cfg.AccountSyncInterval {
		return false
	}
	s.inFlight[accountID] = true
	return true
}

func (s *Scheduler) release(accountID string, synced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, accountID)
	if synced {
		s.lastSync[accountID] = s.now()
	}
}
