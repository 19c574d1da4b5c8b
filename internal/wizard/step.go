package wizard

import (
	"backend/internal/form"
)

// StepKind distinguishes ordinary data-entry steps from read-only summaries.
type StepKind string

const (
	// KindStep owns form fields and can be validated.
	KindStep StepKind = "STEP"
	// KindSummary is read-only and owns no fields.
	KindSummary StepKind = "SUMMARY"
)

// StepStatus is the derived display status of a step. Priority when a step
// belongs to several runtime sets: error > active > completed > skipped > pending.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusActive    StepStatus = "active"
	StatusCompleted StepStatus = "completed"
	StatusSkipped   StepStatus = "skipped"
	StatusError     StepStatus = "error"
)

// StepValidator pairs a schema with the projection that extracts this step's
// slice of the full form values. When a step declares a validator it is
// authoritative for the step's validity and field-level checks are skipped.
type StepValidator struct {
	// Schema validates the projected step values.
	Schema form.Validator
	// StepValues extracts the slice of the form this step is responsible for.
	StepValues func(values form.Values) any
	// MapIssuePath translates a schema issue path (relative to the step's
	// value slice) into a full-form field path. Nil means dot-join with
	// PathPrefix.
	MapIssuePath func(path string) string
	// PathPrefix is the default prefix used when MapIssuePath is nil,
	// e.g. "customer" turns issue path "name" into "customer.name".
	PathPrefix string
}

func (v *StepValidator) mapPath(path string) string {
	if v.MapIssuePath != nil {
		return v.MapIssuePath(path)
	}
	if v.PathPrefix == "" || path == "" {
		if path != "" {
			return path
		}
		return v.PathPrefix
	}
	return v.PathPrefix + "." + path
}

// StepDefinition describes one page of a wizard. Definitions are built once
// per wizard instantiation and consumed read-only by the Engine.
type StepDefinition struct {
	// ID must be unique within the wizard and stable across recomputations.
	ID string
	// Kind defaults to KindStep when empty.
	Kind StepKind
	// Title is the display label.
	Title string
	// FieldPaths is the ordered list of form fields this step owns, used for
	// field-level fallback validation and error focusing. Required for
	// KindStep.
	FieldPaths []string
	// Visible decides whether the step appears given the current form values.
	// Nil means always visible.
	Visible func(values form.Values) bool
	// Validator, when set, supersedes field-level validation for this step.
	Validator *StepValidator
	// Optional steps can be bypassed without completing them.
	Optional bool
}

func (d StepDefinition) kind() StepKind {
	if d.Kind == "" {
		return KindStep
	}
	return d.Kind
}

func (d StepDefinition) visible(values form.Values) bool {
	if d.Visible == nil {
		return true
	}
	return d.Visible(values)
}

// PrefixedValidator builds the common case of a step validating a nested
// object slice of the form: StepValues projects values under prefix and issue
// paths are dot-joined back under it.
func PrefixedValidator(prefix string, schema form.Validator) *StepValidator {
	return &StepValidator{
		Schema:     schema,
		PathPrefix: prefix,
		StepValues: func(values form.Values) any {
			return values.Slice(prefix)
		},
	}
}
