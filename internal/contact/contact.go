// Package contact holds the customer contact step of a quote.
package contact

import (
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// Details are the contact fields entered by the customer.
type Details struct {
	Salutation string `json:"salutation" yaml:"salutation" validate:"required"`
	FirstName  string `json:"firstName" yaml:"first_name" validate:"required"`
	LastName   string `json:"lastName" yaml:"last_name" validate:"required"`
	Email      string `json:"email" yaml:"email" validate:"required,email"`
	Phone      string `json:"phone,omitempty" yaml:"phone"`
	Company    string `json:"company,omitempty" yaml:"company"`
	Street     string `json:"street,omitempty" yaml:"street"`
	Zip        string `json:"zip,omitempty" yaml:"zip"`
	City       string `json:"city,omitempty" yaml:"city"`
}

var validate = validator.New()

// Valid reports whether salutation, names and a well-formed email are present.
func (d Details) Valid() bool {
	return validate.Struct(d.trimmed()) == nil
}

// Missing lists the json names of required fields that are absent or invalid.
func (d Details) Missing() []string {
	err := validate.Struct(d.trimmed())
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, jsonName(fe.Field()))
	}
	return out
}

// Touched reports whether any field has content.
func (d Details) Touched() bool {
	return d.trimmed() != Details{}
}

func (d Details) trimmed() Details {
	return Details{
		Salutation: strings.TrimSpace(d.Salutation),
		FirstName:  strings.TrimSpace(d.FirstName),
		LastName:   strings.TrimSpace(d.LastName),
		Email:      strings.TrimSpace(d.Email),
		Phone:      strings.TrimSpace(d.Phone),
		Company:    strings.TrimSpace(d.Company),
		Street:     strings.TrimSpace(d.Street),
		Zip:        strings.TrimSpace(d.Zip),
		City:       strings.TrimSpace(d.City),
	}
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Salutation *string `json:"salutation,omitempty"`
	FirstName  *string `json:"firstName,omitempty"`
	LastName   *string `json:"lastName,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Company    *string `json:"company,omitempty"`
	Street     *string `json:"street,omitempty"`
	Zip        *string `json:"zip,omitempty"`
	City       *string `json:"city,omitempty"`
}

// Apply returns d with the patch applied.
func (p Patch) Apply(d Details) Details {
	set(&d.Salutation, p.Salutation)
	set(&d.FirstName, p.FirstName)
	set(&d.LastName, p.LastName)
	set(&d.Email, p.Email)
	set(&d.Phone, p.Phone)
	set(&d.Company, p.Company)
	set(&d.Street, p.Street)
	set(&d.Zip, p.Zip)
	set(&d.City, p.City)
	return d
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func jsonName(field string) string {
	switch field {
	case "FirstName":
		return "firstName"
	case "LastName":
		return "lastName"
	default:
		return strings.ToLower(field)
	}
}
