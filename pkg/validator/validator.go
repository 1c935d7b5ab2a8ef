// Package validator wraps go-playground/validator with request-friendly
// output.
package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var currencyCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) registerCustomValidations() {
	// 3-letter uppercase ISO 4217 style currency code
	_ = v.validate.RegisterValidation("currency_code", func(fl validator.FieldLevel) bool {
		return currencyCodeRe.MatchString(fl.Field().String())
	})
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for API responses.
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "gt":
					msg = fmt.Sprintf("Must be greater than %s", e.Param())
				case "gte":
					msg = fmt.Sprintf("Must be at least %s", e.Param())
				case "currency_code":
					msg = "Must be a 3-letter uppercase currency code"
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
