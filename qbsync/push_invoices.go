package qbsync

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"golang.org/x/sync/errgroup"
)

func (o *Orchestrator) pushInvoices(ctx context.Context, tenantId string, localIds []int, stats *runStats) error {
	invoices, err := o.local.InvoicesForSync(ctx, tenantId, localIds)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		return nil
	}

	invoiceIds := make([]string, 0, len(invoices))
	customerIdSet := map[string]struct{}{}
	for _, inv := range invoices {
		invoiceIds = append(invoiceIds, localIdString(inv.ID))
		customerIdSet[localIdString(inv.CustomerId)] = struct{}{}
	}
	customerIds := make([]string, 0, len(customerIdSet))
	for id := range customerIdSet {
		customerIds = append(customerIds, id)
	}

	invoiceMappings, err := o.mappings.FindManyByLocalIds(ctx, tenantId, models.EntityTypeInvoice, invoiceIds)
	if err != nil {
		return err
	}
	customerMappings, err := o.mappings.FindManyByLocalIds(ctx, tenantId, models.EntityTypeCustomer, customerIds)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, invoice := range invoices {
		invoice := invoice
		g.Go(func() error {
			pushErr := o.pushOneInvoice(gctx, tenantId, invoice,
				invoiceMappings[localIdString(invoice.ID)],
				customerMappings[localIdString(invoice.CustomerId)])
			return o.recordItemError(gctx, tenantId, models.EntityTypeInvoice, localIdString(invoice.ID), pushErr, stats)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) pushOneInvoice(ctx context.Context, tenantId string, inv models.SalesInvoice, mapping, customerMapping *models.EntityMapping) error {
	localId := localIdString(inv.ID)

	// An invoice cannot reference a customer the remote side has never seen.
	if customerMapping == nil || customerMapping.RemoteId == "" {
		return &PrerequisiteError{
			EntityType: models.EntityTypeInvoice,
			LocalId:    localId,
			Missing:    "customer " + localIdString(inv.CustomerId),
		}
	}

	if mapping == nil || mapping.RemoteId == "" {
		payload := EncodeInvoice(inv, customerMapping.RemoteId, "", "")
		var raw json.RawMessage
		err := withRetry(ctx, o.logger, "create invoice", func() error {
			var callErr error
			raw, callErr = o.gateway.Create(ctx, tenantId, "Invoice", payload)
			return callErr
		})
		if err != nil {
			return err
		}
		result, err := decodeCallResult(raw)
		if err != nil {
			return err
		}
		_, err = o.mappings.Upsert(ctx, tenantId, models.EntityTypeInvoice, localId, result.Id, result.SyncToken)
		return err
	}

	result, err := o.updateWithTokenRefresh(ctx, tenantId, "Invoice", mapping.RemoteId, mapping.RemoteVersionToken, func(token string) (json.RawMessage, error) {
		payload := EncodeInvoice(inv, customerMapping.RemoteId, mapping.RemoteId, token)
		var raw json.RawMessage
		callErr := withRetry(ctx, o.logger, "update invoice", func() error {
			var innerErr error
			raw, innerErr = o.gateway.Update(ctx, tenantId, "Invoice", payload)
			return innerErr
		})
		return raw, callErr
	})
	if err != nil {
		return err
	}
	_, err = o.mappings.Upsert(ctx, tenantId, models.EntityTypeInvoice, localId, result.Id, result.SyncToken)
	return err
}
