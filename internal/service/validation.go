package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// decimal.Decimal is a struct, so the builtin numeric tags don't apply.
		_ = v.RegisterValidation("nonzero_decimal", func(fl validator.FieldLevel) bool {
			d, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && !d.IsZero()
		})
		_ = v.RegisterValidation("nonnegative_decimal", func(fl validator.FieldLevel) bool {
			d, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && !d.IsNegative()
		})

		validate = v
	})
	return validate
}

// validateStruct returns nil or an error wrapping models.ErrInvalidTransfer
// that names the first failing field.
func validateStruct(payload any) error {
	err := getValidator().Struct(payload)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: field '%s' failed '%s'", models.ErrInvalidTransfer, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", models.ErrInvalidTransfer, err)
}
