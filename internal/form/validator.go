package form

import (
	"fmt"
	"strings"
)

// Issue is a single validation failure located by a dot-separated field path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Validator checks an input value and returns the parsed/normalized value
// together with any issues found. A nil issue slice means the input is valid
// and the first return value is safe to use.
type Validator interface {
	Validate(input any) (any, []Issue)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(input any) (any, []Issue)

func (f ValidatorFunc) Validate(input any) (any, []Issue) {
	return f(input)
}

// FieldRule validates a single field value. A nil return means the value is
// acceptable.
type FieldRule func(value any) error

// Required fails on nil, empty string and empty slices.
func Required() FieldRule {
	return func(value any) error {
		if isEmpty(value) {
			return fmt.Errorf("is required")
		}
		return nil
	}
}

// MinLen fails when a string value is shorter than n runes.
func MinLen(n int) FieldRule {
	return func(value any) error {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		if len([]rune(s)) < n {
			return fmt.Errorf("must be at least %d characters", n)
		}
		return nil
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
