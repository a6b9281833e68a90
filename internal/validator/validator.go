package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
)

var (
	validate *validator.Validate
	once     sync.Once

	last4Pattern = regexp.MustCompile(`^[0-9]{4}$`)

	// strictPolicy drops every element and leaves text entity-escaped.
	strictPolicy = bluemonday.StrictPolicy()
	// apostrophes are common in names and inert in text content
	apostrophe = strings.NewReplacer("&#39;", "'")
)

// Get returns a singleton validator instance
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New()

		// Register validation for extracting JSON field names instead of struct field names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		// numeric accepts signs and decimals; last4 is strictly four ASCII digits
		_ = validate.RegisterValidation("last4", func(fl validator.FieldLevel) bool {
			return last4Pattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate validates a struct and returns formatted errors wrapping apperrors.ErrValidation
func Validate(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' %s", e.Field(), getErrorMessage(e)))
	}

	return fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(messages, "; "))
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return Get().Var(field, tag)
}

// Sanitize removes all markup and trims whitespace. Encoded markup in the
// input stays encoded in the result.
func Sanitize(s string) string {
	s = apostrophe.Replace(strictPolicy.Sanitize(s))
	return strings.TrimSpace(s)
}

// getErrorMessage returns a user-friendly error message for a validation tag
func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "last4":
		return "must be exactly 4 digits"
	case "len":
		return fmt.Sprintf("must be exactly %s characters long", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
