package database

import (
	"log"

	"backend/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM.
// TranslateError is required so unique-constraint violations surface as
// gorm.ErrDuplicatedKey, which the folio retry loop depends on.
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.User{},
		&model.Party{},
		&model.Product{},
		&model.SalesNote{},
		&model.SalesNoteLine{},
		&model.Payment{},
		&model.Quotation{},
		&model.QuotationLine{},
		&model.SupplierPurchase{},
		&model.SupplierPayment{},
		&model.AuditLog{},
		&model.AuditLogChange{},
		&model.FormDraft{},
	)
	if err != nil {
		log.Println("WARNING: Failed to auto-migrate models:", err)
	}

	return db, nil
}
