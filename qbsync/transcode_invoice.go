package qbsync

import (
	"bitbucket.org/mmdatafocus/qbo_sync/models"
)

// EncodeInvoice builds the remote payload for a local invoice. The customer
// must already be mapped; customerRemoteId carries its remote id.
func EncodeInvoice(inv models.SalesInvoice, customerRemoteId, remoteId, syncToken string) RemoteInvoice {
	ri := RemoteInvoice{
		Id:          remoteId,
		SyncToken:   syncToken,
		DocNumber:   inv.InvoiceNumber,
		TxnDate:     remoteDate(inv.InvoiceDate),
		DueDate:     remoteDatePtr(inv.DueDate),
		CustomerRef: &RemoteRef{Value: customerRemoteId},
		PrivateNote: remoteNote(inv.Notes),
	}
	for _, line := range inv.Lines {
		qty := line.Quantity
		rl := RemoteLine{
			Amount:      *money(line.Amount),
			Description: line.Description,
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: &RemoteSalesLineDetail{
				Qty:       &qty,
				UnitPrice: money(line.UnitRate),
			},
		}
		ri.Line = append(ri.Line, rl)
	}
	return ri
}

// DecodeInvoiceFields derives the remote-owned invoice fields from a remote
// invoice: paid and due amounts, plus the status those amounts imply. The
// status is only produced when both totals are present; DRAFT and VOID are
// never produced here, so a locally voided invoice keeps its state.
func DecodeInvoiceFields(ri RemoteInvoice) models.InvoiceRemoteFields {
	var fields models.InvoiceRemoteFields
	if ri.TotalAmt == nil || ri.Balance == nil {
		return fields
	}
	due := *ri.Balance
	paid := ri.TotalAmt.Sub(due)
	fields.AmountPaid = &paid
	fields.AmountDue = &due

	var status models.SalesInvoiceStatus
	switch {
	case due.Sign() <= 0:
		status = models.SalesInvoiceStatusPaid
	case paid.Sign() > 0:
		status = models.SalesInvoiceStatusPartial
	default:
		return fields
	}
	fields.CurrentStatus = &status
	return fields
}
