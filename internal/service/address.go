package service

import (
	"regexp"
	"strings"

	"github.com/tanatos09/perfectbody/internal/models"
)

// AddressInput is the typed address form for a checkout step.
type AddressInput struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Street       string `json:"street"`
	StreetNumber string `json:"street_number"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Email        string `json:"email"`
}

var (
	postalCodeRx = regexp.MustCompile(`^[0-9]+$`)
	emailRx      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateAddress checks the address form and returns field-level errors,
// empty when the input is valid.
func ValidateAddress(in AddressInput) []models.FieldError {
	var errs []models.FieldError

	required := []struct {
		field string
		value string
	}{
		{"first_name", in.FirstName},
		{"last_name", in.LastName},
		{"street", in.Street},
		{"street_number", in.StreetNumber},
		{"city", in.City},
		{"postal_code", in.PostalCode},
		{"country", in.Country},
		{"email", in.Email},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, models.FieldError{Field: r.field, Message: "this field is required"})
		}
	}

	if code := strings.TrimSpace(in.PostalCode); code != "" && !postalCodeRx.MatchString(code) {
		errs = append(errs, models.FieldError{Field: "postal_code", Message: "postal code must contain digits only"})
	}
	if email := strings.TrimSpace(in.Email); email != "" && !emailRx.MatchString(email) {
		errs = append(errs, models.FieldError{Field: "email", Message: "enter a valid email address"})
	}

	return errs
}

func (in AddressInput) toAddress(userID *int64) *models.Address {
	return &models.Address{
		UserID:       userID,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Street:       strings.TrimSpace(in.Street),
		StreetNumber: strings.TrimSpace(in.StreetNumber),
		City:         strings.TrimSpace(in.City),
		PostalCode:   strings.TrimSpace(in.PostalCode),
		Country:      strings.TrimSpace(in.Country),
		Email:        strings.TrimSpace(in.Email),
	}
}

func addressToInput(a *models.Address) *AddressInput {
	return &AddressInput{
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Street:       a.Street,
		StreetNumber: a.StreetNumber,
		City:         a.City,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		Email:        a.Email,
	}
}
