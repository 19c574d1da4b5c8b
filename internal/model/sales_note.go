package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesNoteStatus enum constants
const (
	SalesNoteActive   = "ACTIVE"
	SalesNoteInactive = "INACTIVE"
)

// Payment method enum constants
const (
	PaymentMethodCash     = "CASH"
	PaymentMethodTransfer = "TRANSFER"
	PaymentMethodCard     = "CARD"
)

// SalesNote is a customer-facing sales document with line items and recorded
// payments. Balance due is total minus the sum of live payments.
type SalesNote struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Folio     string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"folio"` // e.g. NV-20260901-00001
	PartyID   *uuid.UUID      `gorm:"type:uuid;index" json:"party_id"`                    // nullable: walk-in sales resolve to the public party
	Party     *Party          `gorm:"foreignKey:PartyID" json:"party,omitempty"`
	Status    string          `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	Total     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	Note      string          `gorm:"type:text" json:"note"`
	Lines     []SalesNoteLine `gorm:"foreignKey:SalesNoteID;constraint:OnDelete:CASCADE" json:"lines"`
	Payments  []Payment       `gorm:"foreignKey:SalesNoteID" json:"payments"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// PaidAmount sums the live (not soft-deleted) payments loaded on the note.
func (n *SalesNote) PaidAmount() decimal.Decimal {
	paid := decimal.Zero
	for _, p := range n.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

// BalanceDue is the remaining unpaid amount.
func (n *SalesNote) BalanceDue() decimal.Decimal {
	return n.Total.Sub(n.PaidAmount())
}

// SalesNoteLine is one product line on a sales note.
type SalesNoteLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SalesNoteID uuid.UUID       `gorm:"type:uuid;not null;index" json:"sales_note_id"`
	ProductID   *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"` // nullable for unregistered free-text lines
	Product     *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Description string          `gorm:"type:varchar(255);not null" json:"description"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Payment is money received against a sales note. Payments are soft-deleted
// when their note is deactivated and are NOT restored on reactivation.
type Payment struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SalesNoteID uuid.UUID       `gorm:"type:uuid;not null;index" json:"sales_note_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Method      string          `gorm:"type:varchar(20);not null;default:'CASH'" json:"method"`
	Note        string          `gorm:"type:text" json:"note"`
	PaidAt      time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt   time.Time       `json:"created_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}
