package qbsync

import (
	"bitbucket.org/mmdatafocus/qbo_sync/models"
)

// EncodeExpense builds the remote purchase document for a local expense.
// expenseAccountId is the tenant's configured expense account on the remote
// side; it must be present before an expense can be pushed. Vendors are not
// mapped as entities, so the vendor name travels in the line description.
func EncodeExpense(e models.Expense, expenseAccountId, remoteId, syncToken string) RemotePurchase {
	desc := e.VendorName
	if desc == "" {
		desc = e.ReferenceNumber
	}
	return RemotePurchase{
		Id:          remoteId,
		SyncToken:   syncToken,
		PaymentType: "Cash",
		AccountRef:  &RemoteRef{Value: expenseAccountId},
		DocNumber:   e.ReferenceNumber,
		TxnDate:     remoteDate(e.ExpenseDate),
		PrivateNote: remoteNote(e.Notes),
		Line: []RemoteLine{
			{
				Amount:      *money(e.Amount),
				Description: desc,
				DetailType:  "AccountBasedExpenseLineDetail",
				AccountBasedExpenseLineDetail: &RemoteAccountLineDetail{
					AccountRef: &RemoteRef{Value: expenseAccountId},
				},
			},
		},
	}
}
