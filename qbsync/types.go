package qbsync

import (
	"strings"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/shopspring/decimal"
)

// Remote payload shapes. Field names follow the platform's wire format;
// optional fields are pointers (or omitempty strings) so an absent local value
// is omitted instead of sending a null that could clear remote data.

type RemoteRef struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type RemoteEmail struct {
	Address string `json:"Address,omitempty"`
}

type RemotePhone struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

type RemoteMeta struct {
	CreateTime      string `json:"CreateTime,omitempty"`
	LastUpdatedTime string `json:"LastUpdatedTime,omitempty"`
}

type RemoteCustomer struct {
	Id               string           `json:"Id,omitempty"`
	SyncToken        string           `json:"SyncToken,omitempty"`
	DisplayName      string           `json:"DisplayName,omitempty"`
	PrimaryEmailAddr *RemoteEmail     `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *RemotePhone     `json:"PrimaryPhone,omitempty"`
	Notes            string           `json:"Notes,omitempty"`
	Balance          *decimal.Decimal `json:"Balance,omitempty"`
	Active           *bool            `json:"Active,omitempty"`
	MetaData         *RemoteMeta      `json:"MetaData,omitempty"`
}

type RemoteLinkedTxn struct {
	TxnId   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

type RemoteSalesLineDetail struct {
	Qty       *decimal.Decimal `json:"Qty,omitempty"`
	UnitPrice *decimal.Decimal `json:"UnitPrice,omitempty"`
}

type RemoteAccountLineDetail struct {
	AccountRef *RemoteRef `json:"AccountRef,omitempty"`
}

type RemoteLine struct {
	Amount                      decimal.Decimal          `json:"Amount"`
	Description                 string                   `json:"Description,omitempty"`
	DetailType                  string                   `json:"DetailType,omitempty"`
	SalesItemLineDetail         *RemoteSalesLineDetail   `json:"SalesItemLineDetail,omitempty"`
	AccountBasedExpenseLineDetail *RemoteAccountLineDetail `json:"AccountBasedExpenseLineDetail,omitempty"`
	LinkedTxn                   []RemoteLinkedTxn        `json:"LinkedTxn,omitempty"`
}

type RemoteInvoice struct {
	Id          string           `json:"Id,omitempty"`
	SyncToken   string           `json:"SyncToken,omitempty"`
	DocNumber   string           `json:"DocNumber,omitempty"`
	TxnDate     string           `json:"TxnDate,omitempty"`
	DueDate     string           `json:"DueDate,omitempty"`
	CustomerRef *RemoteRef       `json:"CustomerRef,omitempty"`
	Line        []RemoteLine     `json:"Line,omitempty"`
	PrivateNote string           `json:"PrivateNote,omitempty"`
	TotalAmt    *decimal.Decimal `json:"TotalAmt,omitempty"`
	Balance     *decimal.Decimal `json:"Balance,omitempty"`
	MetaData    *RemoteMeta      `json:"MetaData,omitempty"`
}

type RemotePayment struct {
	Id                  string           `json:"Id,omitempty"`
	SyncToken           string           `json:"SyncToken,omitempty"`
	CustomerRef         *RemoteRef       `json:"CustomerRef,omitempty"`
	TotalAmt            *decimal.Decimal `json:"TotalAmt,omitempty"`
	TxnDate             string           `json:"TxnDate,omitempty"`
	PaymentRefNum       string           `json:"PaymentRefNum,omitempty"`
	DepositToAccountRef *RemoteRef       `json:"DepositToAccountRef,omitempty"`
	PrivateNote         string           `json:"PrivateNote,omitempty"`
	Line                []RemoteLine     `json:"Line,omitempty"`
	MetaData            *RemoteMeta      `json:"MetaData,omitempty"`
}

type RemotePurchase struct {
	Id          string           `json:"Id,omitempty"`
	SyncToken   string           `json:"SyncToken,omitempty"`
	PaymentType string           `json:"PaymentType,omitempty"`
	AccountRef  *RemoteRef       `json:"AccountRef,omitempty"`
	EntityRef   *RemoteRef       `json:"EntityRef,omitempty"`
	DocNumber   string           `json:"DocNumber,omitempty"`
	TxnDate     string           `json:"TxnDate,omitempty"`
	TotalAmt    *decimal.Decimal `json:"TotalAmt,omitempty"`
	PrivateNote string           `json:"PrivateNote,omitempty"`
	Line        []RemoteLine     `json:"Line,omitempty"`
	MetaData    *RemoteMeta      `json:"MetaData,omitempty"`
}

// RemoteKindForEntity maps an entity type to the platform's object name.
// Expenses are "Purchase" documents on the remote side.
func RemoteKindForEntity(e models.EntityType) string {
	switch e {
	case models.EntityTypeCustomer:
		return "Customer"
	case models.EntityTypeInvoice:
		return "Invoice"
	case models.EntityTypePayment:
		return "Payment"
	case models.EntityTypeExpense:
		return "Purchase"
	}
	return ""
}

// EntityForRemoteKind is the inverse, used by the webhook adapter. Unknown
// kinds return "".
func EntityForRemoteKind(name string) models.EntityType {
	switch strings.TrimSpace(name) {
	case "Customer":
		return models.EntityTypeCustomer
	case "Invoice":
		return models.EntityTypeInvoice
	case "Payment":
		return models.EntityTypePayment
	case "Purchase":
		return models.EntityTypeExpense
	}
	return ""
}
