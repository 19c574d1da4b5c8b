package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SupplierPurchase is a purchase document on the supply side, mirroring a
// sales note: a total, recorded outgoing payments, and a balance due to the
// supplier.
type SupplierPurchase struct {
	ID         uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Folio      string            `gorm:"type:varchar(30);uniqueIndex;not null" json:"folio"` // e.g. CPR-20260901-00001
	SupplierID uuid.UUID         `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Supplier   *Party            `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	Status     string            `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	Subtotal   decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	Total      decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"total"`
	Note       string            `gorm:"type:text" json:"note"`
	Payments   []SupplierPayment `gorm:"foreignKey:PurchaseID" json:"payments"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	DeletedAt  gorm.DeletedAt    `gorm:"index" json:"-"`
}

// PaidAmount sums the live payments loaded on the purchase.
func (p *SupplierPurchase) PaidAmount() decimal.Decimal {
	paid := decimal.Zero
	for _, pay := range p.Payments {
		paid = paid.Add(pay.Amount)
	}
	return paid
}

// BalanceDue is the remaining amount owed to the supplier.
func (p *SupplierPurchase) BalanceDue() decimal.Decimal {
	return p.Total.Sub(p.PaidAmount())
}

// SupplierPayment is money paid out against a supplier purchase.
type SupplierPayment struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PurchaseID uuid.UUID       `gorm:"type:uuid;not null;index" json:"purchase_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Method     string          `gorm:"type:varchar(20);not null;default:'TRANSFER'" json:"method"`
	Note       string          `gorm:"type:text" json:"note"`
	PaidAt     time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt  time.Time       `json:"created_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`
}
