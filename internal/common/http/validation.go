package http

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json field names, not Go struct fields
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateBody runs validator/v10 over a decoded request struct. The
// returned error is a validator.ValidationErrors the error handler knows
// how to render field by field.
func ValidateBody(v any) error {
	return validate.Struct(v)
}
