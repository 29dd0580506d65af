package qbsync

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/qbo_sync/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LocalStore reads sync-eligible records from the operational database and
// writes back the remote-owned fields pulls produce. Local-owned fields are
// never touched from this package.
type LocalStore interface {
	CustomersForSync(ctx context.Context, tenantId string, localIds []int) ([]models.Customer, error)
	InvoicesForSync(ctx context.Context, tenantId string, localIds []int) ([]models.SalesInvoice, error)
	ExpensesForSync(ctx context.Context, tenantId string, localIds []int) ([]models.Expense, error)
	PaymentsForSync(ctx context.Context, tenantId string, localIds []int) ([]models.CustomerPayment, error)

	CustomerByEmail(ctx context.Context, tenantId string, email string) (*models.Customer, error)

	ApplyCustomerRemoteFields(ctx context.Context, tenantId string, localId int, fields models.CustomerRemoteFields) error
	ApplyInvoiceRemoteFields(ctx context.Context, tenantId string, localId int, fields models.InvoiceRemoteFields) error
	ApplyInvoicePaymentDelta(ctx context.Context, tenantId string, invoiceId int, amount decimal.Decimal) error
}

type gormLocalStore struct {
	db func() *gorm.DB
}

func NewLocalStore(db func() *gorm.DB) LocalStore {
	return &gormLocalStore{db: db}
}

func (s *gormLocalStore) conn() (*gorm.DB, error) {
	db := s.db()
	if db == nil {
		return nil, wrapStorage("local store", errors.New("database not ready"))
	}
	return db, nil
}

func (s *gormLocalStore) CustomersForSync(ctx context.Context, tenantId string, localIds []int) ([]models.Customer, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if len(localIds) > 0 {
		q = q.Where("id IN ?", localIds)
	} else {
		q = q.Where("current_status = ?", models.CustomerStatusActive)
	}
	var customers []models.Customer
	if err := q.Order("id ASC").Find(&customers).Error; err != nil {
		return nil, wrapStorage("load customers", err)
	}
	return customers, nil
}

func (s *gormLocalStore) InvoicesForSync(ctx context.Context, tenantId string, localIds []int) ([]models.SalesInvoice, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if len(localIds) > 0 {
		q = q.Where("id IN ?", localIds)
	} else {
		q = q.Where("current_status IN ?", models.InvoiceStatusesForPush)
	}
	var invoices []models.SalesInvoice
	if err := q.Order("id ASC").Find(&invoices).Error; err != nil {
		return nil, wrapStorage("load invoices", err)
	}
	return invoices, nil
}

func (s *gormLocalStore) ExpensesForSync(ctx context.Context, tenantId string, localIds []int) ([]models.Expense, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if len(localIds) > 0 {
		q = q.Where("id IN ?", localIds)
	} else {
		q = q.Where("current_status IN ?", models.ExpenseStatusesForPush)
	}
	var expenses []models.Expense
	if err := q.Order("id ASC").Find(&expenses).Error; err != nil {
		return nil, wrapStorage("load expenses", err)
	}
	return expenses, nil
}

func (s *gormLocalStore) PaymentsForSync(ctx context.Context, tenantId string, localIds []int) ([]models.CustomerPayment, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	q := db.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if len(localIds) > 0 {
		q = q.Where("id IN ?", localIds)
	}
	var payments []models.CustomerPayment
	if err := q.Order("id ASC").Find(&payments).Error; err != nil {
		return nil, wrapStorage("load payments", err)
	}
	return payments, nil
}

// CustomerByEmail finds the single active customer with a given email, used
// to link unmapped remote customers. Ambiguous matches (several customers
// sharing one email) return nothing rather than guessing.
func (s *gormLocalStore) CustomerByEmail(ctx context.Context, tenantId string, email string) (*models.Customer, error) {
	if email == "" {
		return nil, nil
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var customers []models.Customer
	err = db.WithContext(ctx).
		Where("tenant_id = ? AND email = ? AND current_status = ?", tenantId, email, models.CustomerStatusActive).
		Limit(2).
		Find(&customers).Error
	if err != nil {
		return nil, wrapStorage("customer by email", err)
	}
	if len(customers) != 1 {
		return nil, nil
	}
	return &customers[0], nil
}

func (s *gormLocalStore) ApplyCustomerRemoteFields(ctx context.Context, tenantId string, localId int, fields models.CustomerRemoteFields) error {
	if fields.IsEmpty() {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	updates := map[string]interface{}{}
	if fields.Balance != nil {
		updates["balance"] = *fields.Balance
	}
	return wrapStorage("apply customer fields", db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("tenant_id = ? AND id = ?", tenantId, localId).
		Updates(updates).Error)
}

func (s *gormLocalStore) ApplyInvoiceRemoteFields(ctx context.Context, tenantId string, localId int, fields models.InvoiceRemoteFields) error {
	if fields.IsEmpty() {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	updates := map[string]interface{}{}
	if fields.AmountPaid != nil {
		updates["amount_paid"] = *fields.AmountPaid
	}
	if fields.AmountDue != nil {
		updates["amount_due"] = *fields.AmountDue
	}
	if fields.CurrentStatus != nil {
		updates["current_status"] = *fields.CurrentStatus
	}
	return wrapStorage("apply invoice fields", db.WithContext(ctx).
		Model(&models.SalesInvoice{}).
		Where("tenant_id = ? AND id = ?", tenantId, localId).
		Updates(updates).Error)
}

// ApplyInvoicePaymentDelta moves an invoice's paid/due balances by one
// payment's allocation amount, then derives the status from the new balance.
// VOID and DRAFT invoices keep their status.
func (s *gormLocalStore) ApplyInvoicePaymentDelta(ctx context.Context, tenantId string, invoiceId int, amount decimal.Decimal) error {
	if amount.IsZero() {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	err = db.WithContext(ctx).
		Model(&models.SalesInvoice{}).
		Where("tenant_id = ? AND id = ?", tenantId, invoiceId).
		Updates(map[string]interface{}{
			"amount_paid": gorm.Expr("amount_paid + ?", amount),
			"amount_due":  gorm.Expr("amount_due - ?", amount),
		}).Error
	if err != nil {
		return wrapStorage("apply payment delta", err)
	}

	err = db.WithContext(ctx).
		Model(&models.SalesInvoice{}).
		Where("tenant_id = ? AND id = ? AND current_status NOT IN ?", tenantId, invoiceId,
			[]models.SalesInvoiceStatus{models.SalesInvoiceStatusDraft, models.SalesInvoiceStatusVoid}).
		Update("current_status", gorm.Expr("CASE WHEN amount_due <= 0 THEN ? ELSE ? END",
			models.SalesInvoiceStatusPaid, models.SalesInvoiceStatusPartial)).Error
	return wrapStorage("apply payment status", err)
}
