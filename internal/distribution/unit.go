package distribution

import (
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidUnit is returned when a unit record from an external source is malformed.
	ErrInvalidUnit = errors.New("distribution: invalid unit")
	// ErrUnknownUnit is returned when an operation targets a unit that is not selected.
	ErrUnknownUnit = errors.New("distribution: unit not selected")
	// ErrInvalidAudience is returned for audience values outside the known set.
	ErrInvalidAudience = errors.New("distribution: invalid audience")
)

// Audience selects which household subpopulation a quote targets.
type Audience string

const (
	AudienceAll          Audience = "all"
	AudienceMultiFamily  Audience = "multi_family"
	AudienceSingleFamily Audience = "single_family"
)

// ParseAudience normalises an audience value.
func ParseAudience(value string) (Audience, error) {
	switch a := Audience(strings.ToLower(strings.TrimSpace(value))); a {
	case AudienceAll, AudienceMultiFamily, AudienceSingleFamily:
		return a, nil
	case "":
		return AudienceAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAudience, value)
	}
}

// Households holds the household counts of a unit per audience category.
type Households struct {
	All          int `json:"all" yaml:"all" validate:"gte=0"`
	MultiFamily  int `json:"multiFamily" yaml:"multi_family" validate:"gte=0"`
	SingleFamily int `json:"singleFamily" yaml:"single_family" validate:"gte=0"`
}

// Unit is a postal-code addressable distribution area.
type Unit struct {
	ID             string     `json:"id" yaml:"id" validate:"required"`
	PostalCode     string     `json:"postalCode" yaml:"postal_code" validate:"required"`
	PostalCodeLong string     `json:"postalCodeLong,omitempty" yaml:"postal_code_long"`
	Place          string     `json:"place" yaml:"place" validate:"required"`
	Canton         string     `json:"canton,omitempty" yaml:"canton"`
	PriceCategory  string     `json:"priceCategory" yaml:"price_category"`
	Households     Households `json:"households" yaml:"households"`

	MultiFamilyOverride  *int `json:"multiFamilyOverride,omitempty" yaml:"multi_family_override,omitempty"`
	SingleFamilyOverride *int `json:"singleFamilyOverride,omitempty" yaml:"single_family_override,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Check reports whether the unit is well formed. Errors wrap ErrInvalidUnit.
func (u Unit) Check() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidUnit, describe(err))
	}
	return nil
}

// Label renders the unit the way line items and search results show it.
func (u Unit) Label() string {
	label := strings.TrimSpace(u.PostalCode + " " + u.Place)
	if u.Canton != "" {
		label += " (" + u.Canton + ")"
	}
	return label
}

// HousingTotal is the sum of the two housing categories used as allocation weight.
func (u Unit) HousingTotal() int {
	return u.Households.MultiFamily + u.Households.SingleFamily
}

// withOverride sets the override for the audience, clamped to [0, households].
func (u Unit) withOverride(a Audience, count *int) (Unit, error) {
	switch a {
	case AudienceMultiFamily:
		u.MultiFamilyOverride = clamp(count, u.Households.MultiFamily)
	case AudienceSingleFamily:
		u.SingleFamilyOverride = clamp(count, u.Households.SingleFamily)
	default:
		return u, fmt.Errorf("%w: overrides apply to housing categories only", ErrInvalidAudience)
	}
	return u, nil
}

func clamp(count *int, max int) *int {
	if count == nil {
		return nil
	}
	v := *count
	if v < 0 {
		v = 0
	}
	if v > max {
		v = max
	}
	return &v
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" "+fe.Tag())
	}
	return strings.Join(fields, ", ")
}
