package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Base: 10 * time.Millisecond}

func (p RetryPolicy) run(ctx context.Context, attempt func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Base
	exp.MaxInterval = 50 * p.Base
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)

	tries := 0
	return backoff.Retry(func() error {
		tries++
		err := attempt()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConflict) {
			log.Debug().Int("attempt", tries).Msg("transaction conflict, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func logPublishError(c Change, err error) {
	log.Error().Err(err).
		Str("collection", c.Collection).
		Str("id", c.ID).
		Uint64("seq", c.Seq).
		Msg("failed to publish change")
}
