package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PartyKind enum constants
const (
	PartyKindCustomer = "CUSTOMER"
	PartyKindSupplier = "SUPPLIER"
	PartyKindBoth     = "BOTH"
)

// SystemKeyWalkIn identifies the singleton placeholder counterparty used for
// anonymous sales. It is resolved via upsert on system_key, never
// check-then-create, so concurrent first-time creation cannot duplicate it.
const SystemKeyWalkIn = "WALK_IN_CUSTOMER"

// Party is a customer, supplier, or both.
type Party struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Kind          string         `gorm:"type:varchar(20);not null;index" json:"kind"` // CUSTOMER, SUPPLIER, BOTH
	SystemKey     *string        `gorm:"type:varchar(50);uniqueIndex" json:"system_key,omitempty"`
	TaxCode       string         `gorm:"type:varchar(50)" json:"tax_code"`
	CompanyName   string         `gorm:"type:varchar(255)" json:"company_name"`
	ContactPerson string         `gorm:"type:varchar(255)" json:"contact_person"`
	Phone         string         `gorm:"type:varchar(50)" json:"phone"`
	Email         string         `gorm:"type:varchar(255)" json:"email"`
	Address       string         `gorm:"type:text" json:"address"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
