package service

import (
	"context"
	"fmt"
	"strings"

	"backend/internal/form"
	"backend/internal/wizard"

	"github.com/shopspring/decimal"
)

// WizardFlow describes one multi-step document flow the wizard session
// service can run: its step definitions, field rules, and the domain use
// case invoked on final submission.
type WizardFlow interface {
	Name() string
	Steps() []wizard.StepDefinition
	RegisterRules(store *form.Store)
	// DraftSchema validates recovered drafts; nil disables the check.
	DraftSchema() form.Validator
	// Submit maps the validated snapshot onto the domain use case.
	Submit(ctx context.Context, userID string, values form.Values) (any, error)
}

// Customer mode values on the sales note wizard.
const (
	customerModeWalkIn   = "walkIn"
	customerModeExisting = "existing"
	customerModeNew      = "new"
)

// salesNoteFlow is the canonical three-step-plus-summary flow: customer,
// lines, optional payment, summary.
type salesNoteFlow struct {
	notes   SalesNoteService
	parties PartyService
}

// NewSalesNoteFlow builds the sales note wizard flow.
func NewSalesNoteFlow(notes SalesNoteService, parties PartyService) WizardFlow {
	return &salesNoteFlow{notes: notes, parties: parties}
}

func (f *salesNoteFlow) Name() string { return "sales-note" }

func (f *salesNoteFlow) Steps() []wizard.StepDefinition {
	return []wizard.StepDefinition{
		{
			ID:    "customer",
			Title: "Cliente",
			FieldPaths: []string{
				"customer.mode", "customer.party_id", "customer.name", "customer.phone",
			},
			// The customer step is union-shaped: which fields are mounted
			// depends on the mode toggle, so the schema over the computed
			// slice is authoritative and the field list is only used for
			// error focusing.
			Validator: wizard.PrefixedValidator("customer", customerSchema()),
		},
		{
			ID:         "lines",
			Title:      "Conceptos",
			FieldPaths: []string{"lines"},
			Validator: &wizard.StepValidator{
				Schema: linesSchema(),
				StepValues: func(values form.Values) any {
					return values.Get("lines")
				},
				// Issue paths arrive as "<index>.<field>"; anchor them under
				// the lines array for the UI.
				MapIssuePath: func(path string) string {
					if path == "" {
						return "lines"
					}
					return "lines." + path
				},
			},
		},
		{
			ID:         "payment",
			Title:      "Pago inicial",
			Optional:   true,
			FieldPaths: []string{"payment.amount", "payment.method"},
			Visible: func(values form.Values) bool {
				enabled, _ := values.Get("payment.enabled").(bool)
				return enabled
			},
			Validator: wizard.PrefixedValidator("payment", paymentSchema()),
		},
		{
			ID:         "summary",
			Kind:       wizard.KindSummary,
			Title:      "Resumen",
			FieldPaths: nil,
		},
	}
}

func (f *salesNoteFlow) RegisterRules(store *form.Store) {
	store.RegisterRule("customer.mode", form.Required())
	store.RegisterRule("lines", form.Required())
}

func (f *salesNoteFlow) DraftSchema() form.Validator {
	// Drafts only need to be structurally plausible to be worth recovering.
	return form.ValidatorFunc(func(input any) (any, []form.Issue) {
		values, ok := input.(form.Values)
		if !ok {
			return nil, []form.Issue{{Message: "not a form snapshot"}}
		}
		if mode, found := values["customer.mode"]; found {
			if _, isString := mode.(string); !isString {
				return nil, []form.Issue{{Path: "customer.mode", Message: "must be a string"}}
			}
		}
		return values, nil
	})
}

func (f *salesNoteFlow) Submit(ctx context.Context, userID string, values form.Values) (any, error) {
	req := CreateSalesNoteRequest{}
	if note, _ := values.Get("note").(string); note != "" {
		req.Note = note
	}

	mode, _ := values.Get("customer.mode").(string)
	switch mode {
	case customerModeExisting:
		req.PartyID, _ = values.Get("customer.party_id").(string)
	case customerModeNew:
		name, _ := values.Get("customer.name").(string)
		phone, _ := values.Get("customer.phone").(string)
		party, err := f.parties.CreateParty(ctx, CreatePartyRequest{
			Name:  name,
			Kind:  "CUSTOMER",
			Phone: phone,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		req.PartyID = party.ID
	case customerModeWalkIn:
		// Empty PartyID resolves to the walk-in singleton.
	default:
		return nil, fmt.Errorf("unknown customer mode %q", mode)
	}

	rawLines, _ := values.Get("lines").([]any)
	for _, raw := range rawLines {
		line, _ := raw.(map[string]any)
		lineReq := SalesNoteLineRequest{}
		lineReq.ProductID, _ = line["product_id"].(string)
		lineReq.Description, _ = line["description"].(string)
		lineReq.Quantity = toInt(line["quantity"])
		lineReq.UnitPrice = toDecimalString(line["unit_price"])
		req.Lines = append(req.Lines, lineReq)
	}

	note, err := f.notes.CreateSalesNote(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	// Optional initial payment recorded right after creation.
	if enabled, _ := values.Get("payment.enabled").(bool); enabled {
		amount := toDecimalString(values.Get("payment.amount"))
		method, _ := values.Get("payment.method").(string)
		if amount != "" {
			note, err = f.notes.RecordPayment(ctx, userID, note.ID, RecordPaymentRequest{
				Amount: amount,
				Method: method,
			})
			if err != nil {
				return nil, fmt.Errorf("note %s created but initial payment failed: %w", note.Folio, err)
			}
		}
	}
	return note, nil
}

// --- Schemas ---

func customerSchema() form.Validator {
	return form.ValidatorFunc(func(input any) (any, []form.Issue) {
		slice, ok := input.(map[string]any)
		if !ok {
			return nil, []form.Issue{{Path: "mode", Message: "is required"}}
		}
		mode, _ := slice["mode"].(string)

		var issues []form.Issue
		switch mode {
		case customerModeWalkIn:
			// Nothing else required.
		case customerModeExisting:
			if id, _ := slice["party_id"].(string); strings.TrimSpace(id) == "" {
				issues = append(issues, form.Issue{Path: "party_id", Message: "select a customer"})
			}
		case customerModeNew:
			if name, _ := slice["name"].(string); strings.TrimSpace(name) == "" {
				issues = append(issues, form.Issue{Path: "name", Message: "is required"})
			}
		default:
			issues = append(issues, form.Issue{Path: "mode", Message: "is required"})
		}
		if issues != nil {
			return nil, issues
		}
		return slice, nil
	})
}

func linesSchema() form.Validator {
	return form.ValidatorFunc(func(input any) (any, []form.Issue) {
		lines, ok := input.([]any)
		if !ok || len(lines) == 0 {
			return nil, []form.Issue{{Message: "add at least one line"}}
		}

		var issues []form.Issue
		for i, raw := range lines {
			line, isMap := raw.(map[string]any)
			if !isMap {
				issues = append(issues, form.Issue{
					Path: fmt.Sprintf("%d", i), Message: "malformed line",
				})
				continue
			}
			if desc, _ := line["description"].(string); strings.TrimSpace(desc) == "" {
				issues = append(issues, form.Issue{
					Path: fmt.Sprintf("%d.description", i), Message: "is required",
				})
			}
			if qty := toInt(line["quantity"]); qty <= 0 {
				issues = append(issues, form.Issue{
					Path: fmt.Sprintf("%d.quantity", i), Message: "must be positive",
				})
			}
			if price := toDecimalString(line["unit_price"]); price == "" {
				issues = append(issues, form.Issue{
					Path: fmt.Sprintf("%d.unit_price", i), Message: "must be a valid amount",
				})
			}
		}
		if issues != nil {
			return nil, issues
		}
		return lines, nil
	})
}

func paymentSchema() form.Validator {
	return form.ValidatorFunc(func(input any) (any, []form.Issue) {
		slice, ok := input.(map[string]any)
		if !ok {
			return nil, []form.Issue{{Path: "amount", Message: "is required"}}
		}
		var issues []form.Issue
		if amount := toDecimalString(slice["amount"]); amount == "" {
			issues = append(issues, form.Issue{Path: "amount", Message: "must be a valid amount"})
		}
		if issues != nil {
			return nil, issues
		}
		return slice, nil
	})
}

// --- Coercions (JSON numbers arrive as float64) ---

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toDecimalString(v any) string {
	switch n := v.(type) {
	case string:
		if _, err := decimal.NewFromString(n); err != nil {
			return ""
		}
		return n
	case float64:
		return decimal.NewFromFloat(n).String()
	case int:
		return decimal.NewFromInt(int64(n)).String()
	default:
		return ""
	}
}
