package qbsync

import (
	"strconv"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/shopspring/decimal"
)

// EncodePayment builds the remote payload for a local payment.
// invoiceRemoteIds maps local invoice ids to their remote ids; allocations
// whose invoice is unmapped are left out of the payload and surface as a
// prerequisite error upstream before this is called.
func EncodePayment(p models.CustomerPayment, customerRemoteId string, invoiceRemoteIds map[int]string, depositAccountId, remoteId, syncToken string) RemotePayment {
	rp := RemotePayment{
		Id:            remoteId,
		SyncToken:     syncToken,
		CustomerRef:   &RemoteRef{Value: customerRemoteId},
		TotalAmt:      money(p.Amount),
		TxnDate:       remoteDate(p.PaymentDate),
		PaymentRefNum: p.ReferenceNumber,
		PrivateNote:   remoteNote(p.Notes),
	}
	if depositAccountId != "" {
		rp.DepositToAccountRef = &RemoteRef{Value: depositAccountId}
	}
	for _, alloc := range p.Allocations {
		remoteInvoiceId, ok := invoiceRemoteIds[alloc.InvoiceId]
		if !ok {
			continue
		}
		rp.Line = append(rp.Line, RemoteLine{
			Amount: *money(alloc.Amount),
			LinkedTxn: []RemoteLinkedTxn{
				{TxnId: remoteInvoiceId, TxnType: "Invoice"},
			},
		})
	}
	return rp
}

// RemoteAllocation is one invoice-linked line of a remote payment, keyed by
// the remote invoice id.
type RemoteAllocation struct {
	RemoteInvoiceId string
	Amount          decimal.Decimal
}

// DecodePaymentAllocations extracts the invoice-linked lines of a remote
// payment. Lines linked to other transaction kinds (credit memos, deposits)
// are skipped.
func DecodePaymentAllocations(rp RemotePayment) []RemoteAllocation {
	var allocations []RemoteAllocation
	for _, line := range rp.Line {
		for _, txn := range line.LinkedTxn {
			if txn.TxnType != "Invoice" || txn.TxnId == "" {
				continue
			}
			allocations = append(allocations, RemoteAllocation{
				RemoteInvoiceId: txn.TxnId,
				Amount:          line.Amount,
			})
		}
	}
	return allocations
}

// localIdString converts a local integer id to the mapping store's string
// key form.
func localIdString(id int) string {
	return strconv.Itoa(id)
}
