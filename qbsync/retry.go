package qbsync

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"github.com/sirupsen/logrus"
)

// maxAttempts bounds remote calls: one initial try plus up to two retries,
// and only for transient failures.
const maxAttempts = 3

var retryBaseDelay = 500 * time.Millisecond

// withRetry runs fn up to maxAttempts times with exponential backoff.
// Permanent errors (validation, auth, business rules) return immediately; a
// cancelled context stops the loop between attempts.
func withRetry(ctx context.Context, logger *logrus.Logger, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		logger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("transient remote error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBaseDelay * time.Duration(1<<(attempt-1))):
		}
	}
	config.LogError(logger, "qbsync", "withRetry", op, nil, err)
	return err
}
