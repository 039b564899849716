package service

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
)

var usPhonePattern = regexp.MustCompile(`^\(\d{3}\) \d{3}-\d{4}$`)

// registerFormValidations adds the tags used by registration and profile forms.
// Registering twice on the same validator is harmless.
func registerFormValidations(v *validator.Validate) {
	_ = v.RegisterValidation("us_phone", func(fl validator.FieldLevel) bool {
		return usPhonePattern.MatchString(fl.Field().String())
	})
}

// validationError turns validator output into a VALIDATION_ERROR naming the
// offending fields.
func validationError(err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if ok := asValidationErrors(err, &fieldErrs); ok && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
		}
		message = message + ": " + strings.Join(fields, ", ")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*target = v
	}
	return ok
}
