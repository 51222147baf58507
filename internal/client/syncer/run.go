package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/sethvargo/go-retry"
)

// Trigger asks a running Run loop for a sync as soon as possible. Requests
// made while one is already queued collapse into it.
func (s *Session) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Session) backoff() retry.Backoff {
	base := s.retryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(30*time.Second, b)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(s.retryMax, b)
}

// syncWithRetry runs one cycle, retrying with backoff while the server is
// unavailable.
func (s *Session) syncWithRetry(ctx context.Context) error {
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		_, err := s.SyncOnce(ctx)
		if errors.Is(err, client.ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Run syncs immediately, then on every tick of interval and on every
// Trigger, until ctx is done. It returns early only when the server rejects
// the credentials; other failures are logged and retried on the next tick.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		err := s.syncWithRetry(ctx)
		switch {
		case errors.Is(err, client.ErrUnauthorized):
			s.logger.Error(ctx, "sync stopped, access token rejected")
			return err
		case ctx.Err() != nil:
			return nil
		case err != nil:
			s.logger.Warn(ctx, "sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		case <-s.trigger:
		}
	}
}
