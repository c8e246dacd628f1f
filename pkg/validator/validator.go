package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	registrationTag   = "regd"
	registrationText  = "{0} must be a registration number"
	registrationRegex = regexp.MustCompile(`^[A-Za-z0-9/\-]+$`)

	once       sync.Once
	validate   *validator.Validate
	translator ut.Translator
)

func instance() (*validator.Validate, ut.Translator) {
	once.Do(func() {
		validate = validator.New()
		english := en.New()
		translator, _ = ut.New(english, english).GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(validate, translator)

		// Report JSON field names instead of Go struct names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = validate.RegisterValidation(registrationTag, func(fl validator.FieldLevel) bool {
			return registrationRegex.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		_ = validate.RegisterTranslation(registrationTag, translator,
			func(t ut.Translator) error { return t.Add(registrationTag, registrationText, false) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(registrationTag, fe.Field())
				return s
			},
		)
	})
	return validate, translator
}

// ValidateStruct validates a struct based on validate tags and returns the
// first failure as a readable error
func ValidateStruct(s interface{}) error {
	v, trans := instance()

	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return errors.New(verrs[0].Translate(trans))
	}
	return err
}

// IsValidEmail reports whether email looks like an address
func IsValidEmail(email string) bool {
	return emailRegex.MatchString(strings.TrimSpace(email))
}

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return errors.New("email is required")
	}
	if !IsValidEmail(email) {
		return errors.New("invalid email format")
	}
	return nil
}

// SanitizeString sanitizes a string by removing potentially dangerous characters
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(SanitizeString(email))
}
