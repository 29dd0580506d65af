package qbsync

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"golang.org/x/sync/errgroup"
)

func (o *Orchestrator) pushPayments(ctx context.Context, tenantId string, localIds []int, stats *runStats) error {
	payments, err := o.local.PaymentsForSync(ctx, tenantId, localIds)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		return nil
	}

	settings, err := o.settings(ctx, tenantId)
	if err != nil {
		return err
	}

	paymentIds := make([]string, 0, len(payments))
	customerIdSet := map[string]struct{}{}
	invoiceIdSet := map[string]struct{}{}
	for _, p := range payments {
		paymentIds = append(paymentIds, localIdString(p.ID))
		customerIdSet[localIdString(p.CustomerId)] = struct{}{}
		for _, alloc := range p.Allocations {
			invoiceIdSet[localIdString(alloc.InvoiceId)] = struct{}{}
		}
	}
	customerIds := setToSlice(customerIdSet)
	invoiceIds := setToSlice(invoiceIdSet)

	paymentMappings, err := o.mappings.FindManyByLocalIds(ctx, tenantId, models.EntityTypePayment, paymentIds)
	if err != nil {
		return err
	}
	customerMappings, err := o.mappings.FindManyByLocalIds(ctx, tenantId, models.EntityTypeCustomer, customerIds)
	if err != nil {
		return err
	}
	invoiceMappings, err := o.mappings.FindManyByLocalIds(ctx, tenantId, models.EntityTypeInvoice, invoiceIds)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, payment := range payments {
		payment := payment
		g.Go(func() error {
			pushErr := o.pushOnePayment(gctx, tenantId, payment, settings,
				paymentMappings[localIdString(payment.ID)],
				customerMappings[localIdString(payment.CustomerId)],
				invoiceMappings)
			return o.recordItemError(gctx, tenantId, models.EntityTypePayment, localIdString(payment.ID), pushErr, stats)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) pushOnePayment(ctx context.Context, tenantId string, p models.CustomerPayment, settings models.ConnectionSettings, mapping, customerMapping *models.EntityMapping, invoiceMappings map[string]*models.EntityMapping) error {
	localId := localIdString(p.ID)

	if customerMapping == nil || customerMapping.RemoteId == "" {
		return &PrerequisiteError{
			EntityType: models.EntityTypePayment,
			LocalId:    localId,
			Missing:    "customer " + localIdString(p.CustomerId),
		}
	}

	// Every allocated invoice must already exist remotely, otherwise the
	// payment would land with missing links and reconcile wrong.
	invoiceRemoteIds := make(map[int]string, len(p.Allocations))
	for _, alloc := range p.Allocations {
		m := invoiceMappings[localIdString(alloc.InvoiceId)]
		if m == nil || m.RemoteId == "" {
			return &PrerequisiteError{
				EntityType: models.EntityTypePayment,
				LocalId:    localId,
				Missing:    "invoice " + localIdString(alloc.InvoiceId),
			}
		}
		invoiceRemoteIds[alloc.InvoiceId] = m.RemoteId
	}

	if mapping == nil || mapping.RemoteId == "" {
		payload := EncodePayment(p, customerMapping.RemoteId, invoiceRemoteIds, settings.DepositAccountRemoteId, "", "")
		var raw json.RawMessage
		err := withRetry(ctx, o.logger, "create payment", func() error {
			var callErr error
			raw, callErr = o.gateway.Create(ctx, tenantId, "Payment", payload)
			return callErr
		})
		if err != nil {
			return err
		}
		result, err := decodeCallResult(raw)
		if err != nil {
			return err
		}
		_, err = o.mappings.Upsert(ctx, tenantId, models.EntityTypePayment, localId, result.Id, result.SyncToken)
		return err
	}

	result, err := o.updateWithTokenRefresh(ctx, tenantId, "Payment", mapping.RemoteId, mapping.RemoteVersionToken, func(token string) (json.RawMessage, error) {
		payload := EncodePayment(p, customerMapping.RemoteId, invoiceRemoteIds, settings.DepositAccountRemoteId, mapping.RemoteId, token)
		var raw json.RawMessage
		callErr := withRetry(ctx, o.logger, "update payment", func() error {
			var innerErr error
			raw, innerErr = o.gateway.Update(ctx, tenantId, "Payment", payload)
			return innerErr
		})
		return raw, callErr
	})
	if err != nil {
		return err
	}
	_, err = o.mappings.Upsert(ctx, tenantId, models.EntityTypePayment, localId, result.Id, result.SyncToken)
	return err
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}
