package soap

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/winfrey-Git/customer-portal/internal/apperr"
)

// CustomerFields are the inputs of the CreateCustomer operation. Element
// order in the envelope follows field order.
type CustomerFields struct {
	Name         string `json:"name" validate:"required"`
	Address      string `json:"address" validate:"required"`
	City         string `json:"city" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required"`
	CountryCode  string `json:"countryCode" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Email        string `json:"email" validate:"required"`
	TemplateCode string `json:"templateCode" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Trimmed returns a copy with surrounding whitespace removed from every value.
func (f CustomerFields) Trimmed() CustomerFields {
	return CustomerFields{
		Name:         strings.TrimSpace(f.Name),
		Address:      strings.TrimSpace(f.Address),
		City:         strings.TrimSpace(f.City),
		PostalCode:   strings.TrimSpace(f.PostalCode),
		CountryCode:  strings.TrimSpace(f.CountryCode),
		Phone:        strings.TrimSpace(f.Phone),
		Email:        strings.TrimSpace(f.Email),
		TemplateCode: strings.TrimSpace(f.TemplateCode),
	}
}

// Missing lists the JSON names of every blank required field.
func (f CustomerFields) Missing() []string {
	err := validate.Struct(f.Trimmed())
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return missing
}

// Validate reports all blank fields at once as a caller error.
func (f CustomerFields) Validate() error {
	missing := f.Missing()
	if len(missing) == 0 {
		return nil
	}
	err := apperr.Caller("Missing required fields", missing...)
	err.Details = "missing: " + strings.Join(missing, ", ")
	return err
}
