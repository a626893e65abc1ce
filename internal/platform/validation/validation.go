// Package validation wraps go-playground/validator with the conventions the
// services share: JSON field names, decimal amounts compared as numbers, and
// failures reported as lifecycle validation errors.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Lets numeric tags such as gt=0 apply to decimal amounts.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates s. Field names in the returned error are prefixed, so
// callers can report nested paths such as lineItems[2].quantity.
func Struct(s interface{}, prefix, message string) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	return &lifecycle.Error{Kind: lifecycle.KindValidation, Message: message, Fields: FieldErrors(prefix, err)}
}

// FieldErrors converts validator output into field-level messages.
func FieldErrors(prefix string, err error) []lifecycle.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []lifecycle.FieldError{{Field: strings.TrimSuffix(prefix, "."), Message: err.Error()}}
	}
	out := make([]lifecycle.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, lifecycle.FieldError{Field: prefix + fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gte", "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
