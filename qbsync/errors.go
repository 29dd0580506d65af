package qbsync

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
)

// ErrRunInProgress is returned when a push/pull is requested for a
// (tenant, action) pair that already has a run in flight. Callers (schedulers,
// webhooks) must honor it instead of forcing a second run.
var ErrRunInProgress = errors.New("a sync run for this tenant and action is already in progress")

// AuthError means the tenant has no valid access token or the remote platform
// rejected ours. Not retryable without re-authorization; aborts the whole run.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "qbo auth error: " + e.Reason
}

// ValidationError means the request shape was wrong before or at the remote
// boundary (missing id/version token, malformed payload). Never retried.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "qbo validation error: " + e.Detail
}

// HttpError is a transport-level failure: 5xx, 429, timeouts and connection
// errors (Status 0). The caller decides whether to retry.
type HttpError struct {
	Status int
	Body   string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("qbo http error %d: %s", e.Status, e.Body)
}

// RemoteBusinessError is a platform-specific semantic rejection, e.g. voiding
// a paid document. The platform's detail message is surfaced verbatim and the
// call is never retried.
type RemoteBusinessError struct {
	Code   string
	Detail string
}

func (e *RemoteBusinessError) Error() string {
	return fmt.Sprintf("qbo business error %s: %s", e.Code, e.Detail)
}

// PrerequisiteError marks an item whose dependency is not yet mapped (e.g. an
// invoice whose customer hasn't synced). This is an expected, recoverable
// condition: the item is counted as skipped, not failed.
type PrerequisiteError struct {
	EntityType models.EntityType
	LocalId    string
	Missing    string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("prerequisite not mapped: %s %s requires %s", e.EntityType, e.LocalId, e.Missing)
}

// StorageError wraps a mapping-store/audit-log/local-store failure. Without
// durable storage no result can be recorded, so it aborts the run.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsRetryable reports whether an error is worth a bounded retry: transport
// failures and 5xx/429 only. Auth and validation errors are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		return httpErr.Status == 0 || httpErr.Status == 429 || httpErr.Status >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// isRunFatal reports whether an error must abort the whole batch rather than
// being recorded against a single item.
func isRunFatal(err error) bool {
	var authErr *AuthError
	var storageErr *StorageError
	return errors.As(err, &authErr) || errors.As(err, &storageErr)
}
