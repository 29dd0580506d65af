package qbsync

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"golang.org/x/sync/errgroup"
)

func (o *Orchestrator) pushExpenses(ctx context.Context, tenantId string, localIds []int, stats *runStats) error {
	expenses, err := o.local.ExpensesForSync(ctx, tenantId, localIds)
	if err != nil {
		return err
	}
	if len(expenses) == 0 {
		return nil
	}

	settings, err := o.settings(ctx, tenantId)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(expenses))
	for _, e := range expenses {
		ids = append(ids, localIdString(e.ID))
	}
	mappings, err := o.mappings.FindManyByLocalIds(ctx, tenantId, models.EntityTypeExpense, ids)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, expense := range expenses {
		expense := expense
		g.Go(func() error {
			pushErr := o.pushOneExpense(gctx, tenantId, expense, settings, mappings[localIdString(expense.ID)])
			return o.recordItemError(gctx, tenantId, models.EntityTypeExpense, localIdString(expense.ID), pushErr, stats)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) pushOneExpense(ctx context.Context, tenantId string, e models.Expense, settings models.ConnectionSettings, mapping *models.EntityMapping) error {
	localId := localIdString(e.ID)

	// Purchases need a debit account; until the tenant configures one every
	// expense is skipped, not failed.
	if settings.ExpenseAccountRemoteId == "" {
		return &PrerequisiteError{
			EntityType: models.EntityTypeExpense,
			LocalId:    localId,
			Missing:    "expense account setting",
		}
	}

	if mapping == nil || mapping.RemoteId == "" {
		payload := EncodeExpense(e, settings.ExpenseAccountRemoteId, "", "")
		var raw json.RawMessage
		err := withRetry(ctx, o.logger, "create purchase", func() error {
			var callErr error
			raw, callErr = o.gateway.Create(ctx, tenantId, "Purchase", payload)
			return callErr
		})
		if err != nil {
			return err
		}
		result, err := decodeCallResult(raw)
		if err != nil {
			return err
		}
		_, err = o.mappings.Upsert(ctx, tenantId, models.EntityTypeExpense, localId, result.Id, result.SyncToken)
		return err
	}

	result, err := o.updateWithTokenRefresh(ctx, tenantId, "Purchase", mapping.RemoteId, mapping.RemoteVersionToken, func(token string) (json.RawMessage, error) {
		payload := EncodeExpense(e, settings.ExpenseAccountRemoteId, mapping.RemoteId, token)
		var raw json.RawMessage
		callErr := withRetry(ctx, o.logger, "update purchase", func() error {
			var innerErr error
			raw, innerErr = o.gateway.Update(ctx, tenantId, "Purchase", payload)
			return innerErr
		})
		return raw, callErr
	})
	if err != nil {
		return err
	}
	_, err = o.mappings.Upsert(ctx, tenantId, models.EntityTypeExpense, localId, result.Id, result.SyncToken)
	return err
}
