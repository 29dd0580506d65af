package models

import "gorm.io/gorm"

// MigrateSyncModels creates/updates the tables this service owns. The local
// business-object tables belong to the books backend and are only read here;
// they are still migrated to keep dev/test environments self-contained.
func MigrateSyncModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Connection{},
		&EntityMapping{},
		&SyncRun{},
		&Customer{},
		&SalesInvoice{},
		&Expense{},
		&CustomerPayment{},
	)
}
