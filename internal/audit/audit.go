// Package audit is the write side of the ledger: every balance-affecting
// mutation records one AuditLog row plus one AuditLogChange row per observed
// field delta, in the same database transaction as the mutation itself. The
// rows are append-only and survive soft deletion of the entity they
// reference, so historical balances can be reconstructed without
// recomputation.
package audit

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Event keys are dot-namespaced, stable identifiers shared by the write path
// and every reporting path.
const (
	EventSalesNoteCreated        = "salesNote.created"
	EventSalesNotePaymentCreated = "salesNote.payment.created"
	EventSalesNoteDeactivated    = "salesNote.deactivated"
	EventSalesNoteReactivated    = "salesNote.reactivated"
	EventQuotationCreated        = "quotation.created"
	EventPurchaseCreated         = "supplierPurchase.created"
	EventPurchasePaymentCreated  = "supplierPurchase.payment.created"
)

// Change keys are the stable vocabulary reporting UIs depend on. Renaming one
// is a breaking change to historical data interpretation.
const (
	KeySalesNoteSubtotal   = "SALES_NOTE_SUBTOTAL"
	KeySalesNoteTotal      = "SALES_NOTE_TOTAL"
	KeySalesNoteBalanceDue = "SALES_NOTE_BALANCE_DUE"
	KeySalesNoteStatus     = "SALES_NOTE_STATUS"
	KeyPaymentAmount       = "PAYMENT_AMOUNT"
	KeyPurchaseTotal       = "SUPPLIER_PURCHASE_TOTAL"
	KeyPurchaseBalanceDue  = "SUPPLIER_PURCHASE_BALANCE_DUE"
	KeyQuotationTotal      = "QUOTATION_TOTAL"
)

// Root entity types referenced by audit rows.
const (
	EntitySalesNote        = "SALES_NOTE"
	EntityQuotation        = "QUOTATION"
	EntitySupplierPurchase = "SUPPLIER_PURCHASE"
	EntityPayment          = "PAYMENT"
)

// Change is one observed field delta. Exactly one of the decimal, string or
// JSON before/after pairs is populated; the populated pair is the
// discriminant the rendering layer uses to pick a diff display. Build values
// through Decimal, String or JSON so the invariant holds by construction.
type Change struct {
	Key           string
	DecimalBefore *decimal.Decimal
	DecimalAfter  *decimal.Decimal
	StringBefore  *string
	StringAfter   *string
	JSONBefore    *string
	JSONAfter     *string
}

// Decimal builds a monetary change. A nil before means the field did not
// exist prior to the mutation (e.g. a freshly created total).
func Decimal(key string, before, after *decimal.Decimal) Change {
	return Change{Key: key, DecimalBefore: before, DecimalAfter: after}
}

// String builds a textual/status change.
func String(key string, before, after *string) Change {
	return Change{Key: key, StringBefore: before, StringAfter: after}
}

// JSON builds a structured change by marshaling both sides. Nil sides stay
// null.
func JSON(key string, before, after any) (Change, error) {
	c := Change{Key: key}
	if before != nil {
		raw, err := json.Marshal(before)
		if err != nil {
			return Change{}, fmt.Errorf("marshal %s before: %w", key, err)
		}
		s := string(raw)
		c.JSONBefore = &s
	}
	if after != nil {
		raw, err := json.Marshal(after)
		if err != nil {
			return Change{}, fmt.Errorf("marshal %s after: %w", key, err)
		}
		s := string(raw)
		c.JSONAfter = &s
	}
	return c, nil
}

// Pair reports which value pair a change populates: "decimal", "string",
// "json" or "" for a malformed row.
func (c Change) Pair() string {
	switch {
	case c.DecimalBefore != nil || c.DecimalAfter != nil:
		return "decimal"
	case c.StringBefore != nil || c.StringAfter != nil:
		return "string"
	case c.JSONBefore != nil || c.JSONAfter != nil:
		return "json"
	default:
		return ""
	}
}

// DecimalPtr is a convenience for building Decimal changes from values.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// StringPtr is a convenience for building String changes from values.
func StringPtr(s string) *string {
	return &s
}
