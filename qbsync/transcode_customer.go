package qbsync

import (
	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"bitbucket.org/mmdatafocus/qbo_sync/utils"
)

// EncodeCustomer builds the remote payload for a local customer. remoteId and
// syncToken are empty on create and required on update; empty optional fields
// are omitted so the remote copy is never cleared by an absent local value.
func EncodeCustomer(c models.Customer, remoteId, syncToken string) RemoteCustomer {
	rc := RemoteCustomer{
		Id:          remoteId,
		SyncToken:   syncToken,
		DisplayName: c.DisplayName,
		Notes:       remoteNote(c.Notes),
	}
	if c.Email != "" {
		rc.PrimaryEmailAddr = &RemoteEmail{Address: c.Email}
	}
	if c.Phone != "" {
		phone := c.Phone
		if normalized, err := utils.NormalizePhoneNumber(c.Phone); err == nil {
			phone = normalized
		}
		rc.PrimaryPhone = &RemotePhone{FreeFormNumber: phone}
	}
	if c.CurrentStatus == models.CustomerStatusArchived {
		inactive := false
		rc.Active = &inactive
	}
	return rc
}

// DecodeCustomerFields extracts the remote-owned fields from a remote
// customer. Everything else on the payload is ignored; names and contact
// details stay locally owned.
func DecodeCustomerFields(rc RemoteCustomer) models.CustomerRemoteFields {
	return models.CustomerRemoteFields{Balance: rc.Balance}
}
