package qbsync

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	old := retryBaseDelay
	retryBaseDelay = time.Millisecond
	defer func() { retryBaseDelay = old }()

	calls := 0
	err := withRetry(context.Background(), quietLogger(), "test", func() error {
		calls++
		if calls < 3 {
			return &HttpError{Status: 503, Body: "busy"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	old := retryBaseDelay
	retryBaseDelay = time.Millisecond
	defer func() { retryBaseDelay = old }()

	calls := 0
	err := withRetry(context.Background(), quietLogger(), "test", func() error {
		calls++
		return &HttpError{Status: 500, Body: "boom"}
	})
	if err == nil {
		t.Fatal("expected the last transient error back")
	}
	if calls != maxAttempts {
		t.Fatalf("calls = %d, want %d", calls, maxAttempts)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), quietLogger(), "test", func() error {
		calls++
		return &ValidationError{Detail: "bad shape"}
	})
	if err == nil {
		t.Fatal("expected the permanent error back")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (permanent errors are never retried)", calls)
	}
}

func TestWithRetryHonoursCancelledContext(t *testing.T) {
	old := retryBaseDelay
	retryBaseDelay = time.Minute
	defer func() { retryBaseDelay = old }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, quietLogger(), "test", func() error {
		calls++
		return &HttpError{Status: 429, Body: "throttled"}
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
