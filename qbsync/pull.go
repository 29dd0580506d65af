package qbsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// remoteOnlyLocalId marks mapping rows for objects that exist only remotely
// (e.g. a payment recorded directly on the platform). The row's sole job is
// holding the version token so a later pull can tell "seen" from "changed".
func remoteOnlyLocalId(remoteId string) string {
	return "qbo:" + remoteId
}

func localIdInt(localId string) (int, bool) {
	n, err := strconv.Atoi(localId)
	if err != nil {
		return 0, false
	}
	return n, true
}

// pullEntity pages through remote objects of one type and applies the
// remote-owned fields to their mapped local counterparts. Expenses are
// push-only and pull nothing.
func (o *Orchestrator) pullEntity(ctx context.Context, tenantId string, entityType models.EntityType, stats *runStats) error {
	if entityType == models.EntityTypeExpense {
		return nil
	}
	kind := RemoteKindForEntity(entityType)
	filter := o.pullFilter(ctx, tenantId)

	startPosition := 1
	for {
		var result QueryResult
		err := withRetry(ctx, o.logger, "pull "+kind, func() error {
			var callErr error
			result, callErr = o.gateway.Query(ctx, tenantId, kind, filter, maxPageSize, startPosition)
			return callErr
		})
		if err != nil {
			return err
		}
		if len(result.Items) == 0 {
			return nil
		}

		if err := o.pullPage(ctx, tenantId, entityType, result.Items, stats); err != nil {
			return err
		}
		if len(result.Items) < maxPageSize {
			return nil
		}
		startPosition += len(result.Items)
	}
}

// pullFilter narrows a pull to objects changed since the last successful
// run. First pulls (no prior success) walk everything.
func (o *Orchestrator) pullFilter(ctx context.Context, tenantId string) string {
	db := o.db()
	if db == nil {
		return ""
	}
	var conn models.Connection
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ?", tenantId, models.IntegrationProviderQuickBooks).
		Take(&conn).Error
	if err != nil || conn.LastSuccessSyncAt == nil {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			config.LogError(o.logger, "qbsync", "pullFilter", tenantId, nil, err)
		}
		return ""
	}
	return fmt.Sprintf("Metadata.LastUpdatedTime > '%s'", conn.LastSuccessSyncAt.UTC().Format(time.RFC3339))
}

func (o *Orchestrator) pullPage(ctx context.Context, tenantId string, entityType models.EntityType, items []json.RawMessage, stats *runStats) error {
	switch entityType {
	case models.EntityTypeCustomer:
		return o.pullCustomerPage(ctx, tenantId, items, stats)
	case models.EntityTypeInvoice:
		return o.pullInvoicePage(ctx, tenantId, items, stats)
	case models.EntityTypePayment:
		return o.pullPaymentPage(ctx, tenantId, items, stats)
	}
	return nil
}

func (o *Orchestrator) pullCustomerPage(ctx context.Context, tenantId string, items []json.RawMessage, stats *runStats) error {
	customers := make([]RemoteCustomer, 0, len(items))
	remoteIds := make([]string, 0, len(items))
	for _, item := range items {
		var rc RemoteCustomer
		if err := json.Unmarshal(item, &rc); err != nil || rc.Id == "" {
			stats.skipQuiet()
			continue
		}
		customers = append(customers, rc)
		remoteIds = append(remoteIds, rc.Id)
	}
	mappings, err := o.mappings.FindManyByRemoteIds(ctx, tenantId, models.EntityTypeCustomer, remoteIds)
	if err != nil {
		return err
	}

	for _, rc := range customers {
		itemErr := o.pullOneCustomer(ctx, tenantId, rc, mappings[rc.Id], stats)
		if itemErr != nil {
			localId := rc.Id
			if m := mappings[rc.Id]; m != nil {
				localId = m.LocalId
			}
			if err := o.recordItemError(ctx, tenantId, models.EntityTypeCustomer, localId, itemErr, stats); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) pullOneCustomer(ctx context.Context, tenantId string, rc RemoteCustomer, mapping *models.EntityMapping, stats *runStats) error {
	if mapping == nil {
		if !config.LinkByEmailMatch() || rc.PrimaryEmailAddr == nil || rc.PrimaryEmailAddr.Address == "" {
			stats.skipQuiet()
			return nil
		}
		local, err := o.local.CustomerByEmail(ctx, tenantId, rc.PrimaryEmailAddr.Address)
		if err != nil {
			return err
		}
		if local == nil {
			stats.skipQuiet()
			return nil
		}
		if _, err := o.mappings.Upsert(ctx, tenantId, models.EntityTypeCustomer, localIdString(local.ID), rc.Id, rc.SyncToken); err != nil {
			return err
		}
		if err := o.local.ApplyCustomerRemoteFields(ctx, tenantId, local.ID, DecodeCustomerFields(rc)); err != nil {
			return err
		}
		o.logger.WithFields(logrus.Fields{
			"tenant":    tenantId,
			"remote_id": rc.Id,
			"local_id":  local.ID,
		}).Info("linked remote customer by email match")
		stats.succeed()
		return nil
	}

	if mapping.RemoteVersionToken == rc.SyncToken {
		stats.skipQuiet()
		return nil
	}
	localId, ok := localIdInt(mapping.LocalId)
	if !ok {
		stats.skipQuiet()
		return nil
	}
	if err := o.local.ApplyCustomerRemoteFields(ctx, tenantId, localId, DecodeCustomerFields(rc)); err != nil {
		return err
	}
	if _, err := o.mappings.Upsert(ctx, tenantId, models.EntityTypeCustomer, mapping.LocalId, rc.Id, rc.SyncToken); err != nil {
		return err
	}
	stats.succeed()
	return nil
}

func (o *Orchestrator) pullInvoicePage(ctx context.Context, tenantId string, items []json.RawMessage, stats *runStats) error {
	invoices := make([]RemoteInvoice, 0, len(items))
	remoteIds := make([]string, 0, len(items))
	for _, item := range items {
		var ri RemoteInvoice
		if err := json.Unmarshal(item, &ri); err != nil || ri.Id == "" {
			stats.skipQuiet()
			continue
		}
		invoices = append(invoices, ri)
		remoteIds = append(remoteIds, ri.Id)
	}
	mappings, err := o.mappings.FindManyByRemoteIds(ctx, tenantId, models.EntityTypeInvoice, remoteIds)
	if err != nil {
		return err
	}

	for _, ri := range invoices {
		itemErr := o.pullOneInvoice(ctx, tenantId, ri, mappings[ri.Id], stats)
		if itemErr != nil {
			localId := ri.Id
			if m := mappings[ri.Id]; m != nil {
				localId = m.LocalId
			}
			if err := o.recordItemError(ctx, tenantId, models.EntityTypeInvoice, localId, itemErr, stats); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) pullOneInvoice(ctx context.Context, tenantId string, ri RemoteInvoice, mapping *models.EntityMapping, stats *runStats) error {
	if mapping == nil {
		// Remote-created invoices have no local counterpart to patch.
		stats.skipQuiet()
		return nil
	}
	if mapping.RemoteVersionToken == ri.SyncToken {
		stats.skipQuiet()
		return nil
	}
	localId, ok := localIdInt(mapping.LocalId)
	if !ok {
		stats.skipQuiet()
		return nil
	}
	if err := o.local.ApplyInvoiceRemoteFields(ctx, tenantId, localId, DecodeInvoiceFields(ri)); err != nil {
		return err
	}
	if _, err := o.mappings.Upsert(ctx, tenantId, models.EntityTypeInvoice, mapping.LocalId, ri.Id, ri.SyncToken); err != nil {
		return err
	}
	stats.succeed()
	return nil
}

func (o *Orchestrator) pullPaymentPage(ctx context.Context, tenantId string, items []json.RawMessage, stats *runStats) error {
	payments := make([]RemotePayment, 0, len(items))
	remoteIds := make([]string, 0, len(items))
	for _, item := range items {
		var rp RemotePayment
		if err := json.Unmarshal(item, &rp); err != nil || rp.Id == "" {
			stats.skipQuiet()
			continue
		}
		payments = append(payments, rp)
		remoteIds = append(remoteIds, rp.Id)
	}
	mappings, err := o.mappings.FindManyByRemoteIds(ctx, tenantId, models.EntityTypePayment, remoteIds)
	if err != nil {
		return err
	}

	for _, rp := range payments {
		itemErr := o.pullOnePayment(ctx, tenantId, rp, mappings[rp.Id], stats)
		if itemErr != nil {
			localId := rp.Id
			if m := mappings[rp.Id]; m != nil {
				localId = m.LocalId
			}
			if err := o.recordItemError(ctx, tenantId, models.EntityTypePayment, localId, itemErr, stats); err != nil {
				return err
			}
		}
	}
	return nil
}

// pullOnePayment folds one remote payment into local invoice balances. A
// payment is applied exactly once: the mapping row's version token marks it
// as seen. Remote edits to an already-applied payment refresh the token but
// are not re-applied, since replaying full allocation amounts would double
// count.
func (o *Orchestrator) pullOnePayment(ctx context.Context, tenantId string, rp RemotePayment, mapping *models.EntityMapping, stats *runStats) error {
	if mapping != nil {
		if mapping.RemoteVersionToken == rp.SyncToken {
			stats.skipQuiet()
			return nil
		}
		if _, err := o.mappings.Upsert(ctx, tenantId, models.EntityTypePayment, mapping.LocalId, rp.Id, rp.SyncToken); err != nil {
			return err
		}
		o.logger.WithFields(logrus.Fields{
			"tenant":    tenantId,
			"remote_id": rp.Id,
		}).Warn("remote payment edited after sync, not re-applied")
		stats.skipQuiet()
		return nil
	}

	allocations := DecodePaymentAllocations(rp)
	if len(allocations) == 0 {
		stats.skipQuiet()
		return nil
	}

	invoiceRemoteIds := make([]string, 0, len(allocations))
	for _, alloc := range allocations {
		invoiceRemoteIds = append(invoiceRemoteIds, alloc.RemoteInvoiceId)
	}
	invoiceMappings, err := o.mappings.FindManyByRemoteIds(ctx, tenantId, models.EntityTypeInvoice, invoiceRemoteIds)
	if err != nil {
		return err
	}

	applied := 0
	for _, alloc := range allocations {
		invoiceMapping := invoiceMappings[alloc.RemoteInvoiceId]
		if invoiceMapping == nil {
			stats.skip(fmt.Sprintf("payment %s allocation skipped: remote invoice %s not mapped", rp.Id, alloc.RemoteInvoiceId))
			continue
		}
		invoiceId, ok := localIdInt(invoiceMapping.LocalId)
		if !ok {
			stats.skipQuiet()
			continue
		}
		if err := o.local.ApplyInvoicePaymentDelta(ctx, tenantId, invoiceId, alloc.Amount); err != nil {
			return err
		}
		applied++
	}

	if _, err := o.mappings.Upsert(ctx, tenantId, models.EntityTypePayment, remoteOnlyLocalId(rp.Id), rp.Id, rp.SyncToken); err != nil {
		return err
	}
	if applied > 0 {
		stats.succeed()
	} else {
		stats.skipQuiet()
	}
	return nil
}

// PullOne fetches a single remote object by id and applies it locally, the
// webhook fast path. It runs outside the audit log: webhook bursts would
// drown the run history, and failures surface to the webhook handler instead.
func (o *Orchestrator) PullOne(ctx context.Context, tenantId string, entityType models.EntityType, remoteId string) error {
	if !entityType.Valid() || entityType == models.EntityTypeExpense {
		return &ValidationError{Detail: fmt.Sprintf("entity type %q cannot be pulled", entityType)}
	}
	kind := RemoteKindForEntity(entityType)

	var result QueryResult
	err := withRetry(ctx, o.logger, "pull one "+kind, func() error {
		var callErr error
		result, callErr = o.gateway.Query(ctx, tenantId, kind, fmt.Sprintf("Id = '%s'", escapeQueryValue(remoteId)), 1, 1)
		return callErr
	})
	if err != nil {
		return err
	}
	if len(result.Items) == 0 {
		return nil
	}
	stats := &runStats{}
	return o.pullPage(ctx, tenantId, entityType, result.Items, stats)
}
