package workflow

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hyperengineering/rentops/internal/validation"
)

// ValidateValue checks a value written to f. A nil value clears the field and
// is always accepted.
func ValidateValue(f Field, v any) *validation.ValidationError {
	if v == nil {
		return nil
	}
	invalid := func(msg string) *validation.ValidationError {
		return &validation.ValidationError{Field: f.Key, Message: msg}
	}

	switch f.Kind {
	case FieldBool:
		if _, ok := v.(bool); !ok {
			return invalid("must be a boolean")
		}
		return nil

	case FieldNumber, FieldInteger:
		n, ok := toFloat(v)
		if !ok {
			return invalid("must be a number")
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return invalid("must be a finite number")
		}
		if f.Kind == FieldInteger && n != math.Trunc(n) {
			return invalid("must be a whole number")
		}
		return validation.Var(f.Key, n, f.Rule)
	}

	s, ok := v.(string)
	if !ok {
		return invalid("must be a string")
	}
	if err := validation.ValidateUTF8(f.Key, s); err != nil {
		return err
	}
	if err := validation.ValidateNoNullBytes(f.Key, s); err != nil {
		return err
	}
	// Blank strings are how forms clear a text input.
	if strings.TrimSpace(s) == "" {
		return nil
	}

	switch f.Kind {
	case FieldDate:
		if _, err := time.Parse(DateLayout, s); err != nil {
			return invalid(fmt.Sprintf("must be a date in %s format", DateLayout))
		}
	case FieldEnum:
		if err := validation.ValidateEnum(f.Key, s, f.Options); err != nil {
			return err
		}
	case FieldEmail:
		if err := validation.Var(f.Key, s, "email"); err != nil {
			return err
		}
	case FieldURL:
		if err := validation.Var(f.Key, s, "url"); err != nil {
			return err
		}
	case FieldPhone:
		if err := validation.Var(f.Key, s, "min=6,max=32"); err != nil {
			return err
		}
	case FieldDocument:
		if err := validation.Var(f.Key, s, "max=2048"); err != nil {
			return err
		}
	}
	return validation.Var(f.Key, s, f.Rule)
}
