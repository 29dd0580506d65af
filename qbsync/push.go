package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// remoteCallResult decodes the id and version token every write returns.
type remoteCallResult struct {
	Id        string `json:"Id"`
	SyncToken string `json:"SyncToken"`
}

func decodeCallResult(raw json.RawMessage) (remoteCallResult, error) {
	var res remoteCallResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return res, &ValidationError{Detail: "unreadable remote response: " + err.Error()}
	}
	if res.Id == "" {
		return res, &ValidationError{Detail: "remote response missing object id"}
	}
	return res, nil
}

// currentRemoteToken fetches an object's live version token. Used when the
// stored token is missing or has gone stale under a concurrent remote edit.
func (o *Orchestrator) currentRemoteToken(ctx context.Context, tenantId, kind, remoteId string) (string, error) {
	var result QueryResult
	err := withRetry(ctx, o.logger, "fetch version token", func() error {
		var callErr error
		result, callErr = o.gateway.Query(ctx, tenantId, kind, fmt.Sprintf("Id = '%s'", escapeQueryValue(remoteId)), 1, 1)
		return callErr
	})
	if err != nil {
		return "", err
	}
	if len(result.Items) == 0 {
		return "", &ValidationError{Detail: fmt.Sprintf("remote %s %s no longer exists", kind, remoteId)}
	}
	var res remoteCallResult
	if err := json.Unmarshal(result.Items[0], &res); err != nil {
		return "", &ValidationError{Detail: "unreadable remote response: " + err.Error()}
	}
	return res.SyncToken, nil
}

// isStaleToken recognizes the platform's optimistic-concurrency rejection.
func isStaleToken(err error) bool {
	var businessErr *RemoteBusinessError
	if !errors.As(err, &businessErr) {
		return false
	}
	return businessErr.Code == "5010" || strings.Contains(strings.ToLower(businessErr.Detail), "stale")
}

// updateWithTokenRefresh performs a versioned update, refreshing the token
// and retrying once when the stored token has gone stale. apply must build a
// fresh payload for the given token on each invocation.
func (o *Orchestrator) updateWithTokenRefresh(ctx context.Context, tenantId, kind, remoteId, storedToken string, apply func(token string) (json.RawMessage, error)) (remoteCallResult, error) {
	token := storedToken
	if token == "" {
		fresh, err := o.currentRemoteToken(ctx, tenantId, kind, remoteId)
		if err != nil {
			return remoteCallResult{}, err
		}
		token = fresh
	}

	raw, err := apply(token)
	if isStaleToken(err) {
		fresh, tokenErr := o.currentRemoteToken(ctx, tenantId, kind, remoteId)
		if tokenErr != nil {
			return remoteCallResult{}, tokenErr
		}
		raw, err = apply(fresh)
	}
	if err != nil {
		return remoteCallResult{}, err
	}
	return decodeCallResult(raw)
}
