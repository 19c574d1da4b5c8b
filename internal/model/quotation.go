package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QuotationStatus enum constants
const (
	QuotationOpen      = "OPEN"
	QuotationConverted = "CONVERTED"
	QuotationExpired   = "EXPIRED"
)

// Quotation is a priced offer that can later be converted into a sales note.
type Quotation struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Folio       string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"folio"` // e.g. COT-20260901-00001
	PartyID     *uuid.UUID      `gorm:"type:uuid;index" json:"party_id"`
	Party       *Party          `gorm:"foreignKey:PartyID" json:"party,omitempty"`
	Status      string          `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"status"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	Total       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	ValidUntil  *time.Time      `json:"valid_until"`
	Note        string          `gorm:"type:text" json:"note"`
	SalesNoteID *uuid.UUID      `gorm:"type:uuid" json:"sales_note_id"` // set when converted
	Lines       []QuotationLine `gorm:"foreignKey:QuotationID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// QuotationLine is one product line on a quotation.
type QuotationLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	QuotationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"quotation_id"`
	ProductID   *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	Description string          `gorm:"type:varchar(255);not null" json:"description"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}
