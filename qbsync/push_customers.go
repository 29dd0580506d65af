package qbsync

import (
	"context"
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/qbo_sync/config"
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func (o *Orchestrator) pushCustomers(ctx context.Context, tenantId string, localIds []int, stats *runStats) error {
	customers, err := o.local.CustomersForSync(ctx, tenantId, localIds)
	if err != nil {
		return err
	}
	if len(customers) == 0 {
		return nil
	}

	ids := make([]string, 0, len(customers))
	for _, c := range customers {
		ids = append(ids, localIdString(c.ID))
	}
	mappings, err := o.mappings.FindManyByLocalIds(ctx, tenantId, models.EntityTypeCustomer, ids)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, customer := range customers {
		customer := customer
		g.Go(func() error {
			pushErr := o.pushOneCustomer(gctx, tenantId, customer, mappings[localIdString(customer.ID)])
			return o.recordItemError(gctx, tenantId, models.EntityTypeCustomer, localIdString(customer.ID), pushErr, stats)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) pushOneCustomer(ctx context.Context, tenantId string, c models.Customer, mapping *models.EntityMapping) error {
	localId := localIdString(c.ID)

	if mapping == nil || mapping.RemoteId == "" {
		// Before creating, an existing remote customer with the same email
		// may be linked instead, so re-connecting a tenant does not duplicate
		// its customer list.
		if config.LinkByEmailMatch() && c.Email != "" {
			existing, err := o.findRemoteCustomerByEmail(ctx, tenantId, c.Email)
			if err != nil {
				return err
			}
			if existing != nil {
				if _, err := o.mappings.Upsert(ctx, tenantId, models.EntityTypeCustomer, localId, existing.Id, existing.SyncToken); err != nil {
					return err
				}
				mapping = &models.EntityMapping{RemoteId: existing.Id, RemoteVersionToken: existing.SyncToken}
				o.logger.WithFields(logrus.Fields{
					"tenant":    tenantId,
					"local_id":  localId,
					"remote_id": existing.Id,
				}).Info("linked local customer to remote by email match")
			}
		}
	}

	if mapping == nil || mapping.RemoteId == "" {
		payload := EncodeCustomer(c, "", "")
		var raw json.RawMessage
		err := withRetry(ctx, o.logger, "create customer", func() error {
			var callErr error
			raw, callErr = o.gateway.Create(ctx, tenantId, "Customer", payload)
			return callErr
		})
		if err != nil {
			return err
		}
		result, err := decodeCallResult(raw)
		if err != nil {
			return err
		}
		_, err = o.mappings.Upsert(ctx, tenantId, models.EntityTypeCustomer, localId, result.Id, result.SyncToken)
		return err
	}

	return o.updateCustomer(ctx, tenantId, c, mapping)
}

// findRemoteCustomerByEmail looks for the single remote customer carrying an
// email. Zero or several matches return nothing; guessing between candidates
// would link the wrong books.
func (o *Orchestrator) findRemoteCustomerByEmail(ctx context.Context, tenantId, email string) (*remoteCallResult, error) {
	var result QueryResult
	err := withRetry(ctx, o.logger, "find customer by email", func() error {
		var callErr error
		result, callErr = o.gateway.Query(ctx, tenantId, "Customer",
			fmt.Sprintf("PrimaryEmailAddr = '%s'", escapeQueryValue(email)), 2, 1)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(result.Items) != 1 {
		return nil, nil
	}
	var res remoteCallResult
	if err := json.Unmarshal(result.Items[0], &res); err != nil || res.Id == "" {
		return nil, nil
	}
	return &res, nil
}

func (o *Orchestrator) updateCustomer(ctx context.Context, tenantId string, c models.Customer, mapping *models.EntityMapping) error {
	localId := localIdString(c.ID)
	result, err := o.updateWithTokenRefresh(ctx, tenantId, "Customer", mapping.RemoteId, mapping.RemoteVersionToken, func(token string) (json.RawMessage, error) {
		payload := EncodeCustomer(c, mapping.RemoteId, token)
		var raw json.RawMessage
		callErr := withRetry(ctx, o.logger, "update customer", func() error {
			var innerErr error
			raw, innerErr = o.gateway.Update(ctx, tenantId, "Customer", payload)
			return innerErr
		})
		return raw, callErr
	})
	if err != nil {
		return err
	}
	_, err = o.mappings.Upsert(ctx, tenantId, models.EntityTypeCustomer, localId, result.Id, result.SyncToken)
	return err
}
