package models

// EntityType names a syncable logical entity. One mapping row links one local
// object of this type to one remote object of the same type.
type EntityType string

const (
	EntityTypeCustomer EntityType = "customer"
	EntityTypeInvoice  EntityType = "invoice"
	EntityTypePayment  EntityType = "payment"
	EntityTypeExpense  EntityType = "expense"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityTypeCustomer, EntityTypeInvoice, EntityTypePayment, EntityTypeExpense:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusError   SyncStatus = "error"
)

type SyncRunStatus string

const (
	SyncRunStatusStarted   SyncRunStatus = "started"
	SyncRunStatusCompleted SyncRunStatus = "completed"
	SyncRunStatusFailed    SyncRunStatus = "failed"
)

type SyncAction string

const (
	SyncActionCustomers SyncAction = "sync_customers"
	SyncActionInvoices  SyncAction = "sync_invoices"
	SyncActionExpenses  SyncAction = "sync_expenses"
	SyncActionPayments  SyncAction = "sync_payments"
	SyncActionFull      SyncAction = "full_sync"
)

func (a SyncAction) Valid() bool {
	switch a {
	case SyncActionCustomers, SyncActionInvoices, SyncActionExpenses, SyncActionPayments, SyncActionFull:
		return true
	}
	return false
}

// ActionForEntity maps an entity type to its dedicated batch action.
func ActionForEntity(e EntityType) SyncAction {
	switch e {
	case EntityTypeCustomer:
		return SyncActionCustomers
	case EntityTypeInvoice:
		return SyncActionInvoices
	case EntityTypeExpense:
		return SyncActionExpenses
	case EntityTypePayment:
		return SyncActionPayments
	}
	return ""
}

// EntityForAction is the inverse of ActionForEntity. full_sync has no single
// entity and returns "".
func EntityForAction(a SyncAction) EntityType {
	switch a {
	case SyncActionCustomers:
		return EntityTypeCustomer
	case SyncActionInvoices:
		return EntityTypeInvoice
	case SyncActionExpenses:
		return EntityTypeExpense
	case SyncActionPayments:
		return EntityTypePayment
	}
	return ""
}

type SyncTrigger string

const (
	SyncTriggeredManual   SyncTrigger = "manual"
	SyncTriggeredEvent    SyncTrigger = "event"
	SyncTriggeredWebhook  SyncTrigger = "webhook"
	SyncTriggeredSchedule SyncTrigger = "schedule"
)
